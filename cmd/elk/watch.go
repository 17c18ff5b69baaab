package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"sync/atomic"
	"syscall"
	"time"

	"elk/internal/config"
	"elk/internal/health"
	"elk/internal/logging"
	"elk/internal/metrics"
	"elk/internal/watcher"
)

// watchRun is one running watcher and its importer loop.
type watchRun struct {
	w      *watcher.Watcher
	cancel context.CancelFunc
	done   chan error
}

func (r *watchRun) stop() error {
	r.cancel()
	err := <-r.done
	if serr := r.w.Stop(); serr != nil && err == nil {
		err = serr
	}
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	return err
}

// startWatch watches the configured layout directories that exist and feeds
// settled files to im.
func startWatch(cfg *config.Config, im *watcher.Importer, logger *logging.Logger) (*watchRun, error) {
	var dirs []string
	for _, d := range cfg.Layouts.Dirs {
		if _, err := os.Stat(d); err != nil {
			logger.Warn("skipping layout directory", "dir", d, "error", err)
			continue
		}
		dirs = append(dirs, d)
	}
	if len(dirs) == 0 {
		return nil, fmt.Errorf("no layout directories to watch; set layouts.dirs or ELK_LAYOUT_DIRS")
	}

	w, err := watcher.New(dirs, cfg.Layouts.IncludePatterns, cfg.Debounce())
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	w.ReportExisting = cfg.Layouts.ImportExisting
	if err := w.Start(); err != nil {
		w.Stop()
		return nil, fmt.Errorf("start watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	run := &watchRun{w: w, cancel: cancel, done: make(chan error, 1)}
	go func() {
		run.done <- im.Run(ctx, w)
	}()

	if im.Metrics != nil {
		im.Metrics.WatchedDirs.Set(int64(len(dirs)))
	}
	logger.Info("watching layouts", "dirs", dirs, "patterns", cfg.Layouts.IncludePatterns)
	return run, nil
}

// serveStatus serves metrics and health endpoints on addr until the
// returned server is shut down. It returns the address actually bound.
func serveStatus(addr string, wm *metrics.WatchMetrics, checker *health.Checker, logger *logging.Logger) (*http.Server, string, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, "", fmt.Errorf("listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		wm.UpdateUptime()
		wm.Registry().HTTPHandler().ServeHTTP(w, r)
	})
	mux.Handle("/healthz", checker.HealthHandler())
	mux.Handle("/readyz", checker.ReadinessHandler())
	mux.Handle("/livez", checker.LivenessHandler())

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("status server stopped", "error", err)
		}
	}()
	logger.Info("serving status", "addr", ln.Addr().String())
	return srv, ln.Addr().String(), nil
}

// watchSettingsChanged reports whether a new configuration needs the
// watcher restarted.
func watchSettingsChanged(prev, next *config.Config) bool {
	return !slices.Equal(prev.Layouts.Dirs, next.Layouts.Dirs) ||
		!slices.Equal(prev.Layouts.IncludePatterns, next.Layouts.IncludePatterns) ||
		prev.Layouts.DebounceMs != next.Layouts.DebounceMs
}

func cmdWatch(args []string) error {
	fs, opts := newFlagSet("watch")
	existing := fs.Bool("existing", false, "Import files already present (overrides layouts.import_existing)")
	listen := fs.String("listen", "", "Serve /metrics and /healthz on this address, e.g. 127.0.0.1:9464")
	fs.Parse(args)

	loader := config.NewLoader(opts.configPath)
	cfg, err := loader.Load()
	if err != nil {
		return err
	}
	if *existing {
		cfg.Layouts.ImportExisting = true
	}
	for _, w := range config.Check(cfg).Warnings() {
		fmt.Fprintf(stderr, "warning: %v\n", w)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}
	logger, err := newLogger(cfg, opts.verbose)
	if err != nil {
		return err
	}
	defer logger.Close()
	logger = logger.WithComponent("watch")

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()
	im := watcher.NewImporter(st, logger)
	wm := metrics.NewWatchMetrics(metrics.NewRegistry("elk"))
	im.Metrics = wm

	run, err := startWatch(cfg, im, logger)
	if err != nil {
		return err
	}
	var current atomic.Pointer[watchRun]
	current.Store(run)

	checker := health.NewChecker()
	checker.Register("store", true, health.DatabaseCheck(st.DB().PingContext))
	checker.Register("layout_dirs", false, health.DirectoriesCheck(func() []string {
		return current.Load().w.WatchedPaths()
	}))
	if *listen != "" {
		srv, _, err := serveStatus(*listen, wm, checker, logger)
		if err != nil {
			run.stop()
			return err
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(ctx)
		}()
	}
	checker.SetReady(true)

	changes := make(chan *config.Config, 1)
	if _, err := os.Stat(loader.Path()); err == nil {
		loader.OnChange(func(prev, next *config.Config) {
			if !watchSettingsChanged(prev, next) {
				return
			}
			select {
			case changes <- next:
			default:
			}
		})
		if err := loader.Watch(); err != nil {
			logger.Warn("config file not watched", "path", loader.Path(), "error", err)
		}
	}
	defer loader.Close()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	fmt.Fprintf(stdout, "Watching %v (Ctrl-C to stop)\n", run.w.WatchedPaths())
	for {
		select {
		case sig := <-sigChan:
			logger.Info("shutting down", "signal", sig.String())
			return run.stop()

		case err := <-run.done:
			// The importer only returns early when the watcher closed.
			run.cancel()
			run.w.Stop()
			return fmt.Errorf("watcher stopped unexpectedly: %v", err)

		case next := <-changes:
			logger.Info("configuration changed, restarting watcher")
			if err := run.stop(); err != nil {
				logger.Warn("stop watcher", "error", err)
			}
			next = next.Clone()
			if *existing {
				next.Layouts.ImportExisting = true
			}
			checker.SetReady(false)
			if run, err = startWatch(next, im, logger); err != nil {
				return err
			}
			current.Store(run)
			wm.Restarts.Inc()
			checker.SetReady(true)

		case err := <-loader.Errors():
			logger.Warn("configuration reload rejected", "error", err)
		}
	}
}

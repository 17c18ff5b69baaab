package store

import (
	"bytes"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/crypto/blake2b"

	"elk/internal/layout"
	"elk/internal/layoutfile"
	"elk/internal/modifier"
)

// ErrNotFound is returned when no layout has the requested name.
var ErrNotFound = errors.New("store: layout not found")

// DefaultBusyTimeout is used when Open is given a zero timeout.
const DefaultBusyTimeout = 5 * time.Second

// Record is a stored layout. Document holds the layout in the JSON
// interchange format.
type Record struct {
	ID          int64
	Name        string
	Source      string
	Fingerprint [32]byte
	Document    []byte
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Layout decodes the stored document.
func (r *Record) Layout() (*layout.Layout, error) {
	return layoutfile.Decode(bytes.NewReader(r.Document), layoutfile.JSON)
}

// SequenceMatch is a dead sequence found in a stored layout.
type SequenceMatch struct {
	Layout   string
	Modifier modifier.State
	Sequence layout.DeadSequence
}

// Fingerprint returns the BLAKE2b-256 digest of a document.
func Fingerprint(data []byte) [32]byte {
	return blake2b.Sum256(data)
}

// Store represents the SQLite layout library.
type Store struct {
	db *sql.DB
}

// Open opens or creates the SQLite database at the given path and runs migrations.
func Open(path string, busyTimeout time.Duration) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}
	if busyTimeout <= 0 {
		busyTimeout = DefaultBusyTimeout
	}

	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=%d", path, busyTimeout.Milliseconds())
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := MigrateDB(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// DB exposes the underlying handle for maintenance tasks.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Save stores l under its name, replacing any earlier version. source
// records the file the layout was imported from, if any.
func (s *Store) Save(l *layout.Layout, source string) (*Record, error) {
	if l.Name() == "" {
		return nil, errors.New("store: layout has no name")
	}
	var buf bytes.Buffer
	if err := layoutfile.Encode(&buf, l, layoutfile.JSON); err != nil {
		return nil, err
	}
	doc := buf.Bytes()
	fp := Fingerprint(doc)
	now := time.Now().UnixNano()

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO layouts (name, document, fingerprint, source, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			document = excluded.document,
			fingerprint = excluded.fingerprint,
			source = excluded.source,
			updated_at = excluded.updated_at`,
		l.Name(), doc, fp[:], source, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("save layout: %w", err)
	}

	var id int64
	if err := tx.QueryRow("SELECT id FROM layouts WHERE name = ?", l.Name()).Scan(&id); err != nil {
		return nil, fmt.Errorf("get layout id: %w", err)
	}

	if _, err := tx.Exec("DELETE FROM sequences WHERE layout_id = ?", id); err != nil {
		return nil, fmt.Errorf("clear sequences: %w", err)
	}
	stmt, err := tx.Prepare(`
		INSERT INTO sequences (layout_id, modifier, keys, keys_folded, output)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING`)
	if err != nil {
		return nil, fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, m := range modifier.All() {
		for _, seq := range l.Sequences(m) {
			if _, err := stmt.Exec(id, int(m), seq.Keys, strings.ToLower(seq.Keys), seq.Output); err != nil {
				return nil, fmt.Errorf("insert sequence %q: %w", seq.Keys, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return s.Get(l.Name())
}

// Get returns the record named name.
func (s *Store) Get(name string) (*Record, error) {
	row := s.db.QueryRow(`
		SELECT id, name, source, fingerprint, document, created_at, updated_at
		FROM layouts WHERE name = ?`, name)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("get layout: %w", err)
	}
	return r, nil
}

// Load returns the decoded layout named name.
func (s *Store) Load(name string) (*layout.Layout, error) {
	r, err := s.Get(name)
	if err != nil {
		return nil, err
	}
	return r.Layout()
}

// List returns every record, ordered by name. Documents are not loaded.
func (s *Store) List() ([]Record, error) {
	rows, err := s.db.Query(`
		SELECT id, name, source, fingerprint, created_at, updated_at
		FROM layouts ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list layouts: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		var fp []byte
		var created, updated int64
		if err := rows.Scan(&r.ID, &r.Name, &r.Source, &fp, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan layout: %w", err)
		}
		copy(r.Fingerprint[:], fp)
		r.CreatedAt = time.Unix(0, created)
		r.UpdatedAt = time.Unix(0, updated)
		records = append(records, r)
	}
	return records, rows.Err()
}

// FindBySource returns the record imported from path.
func (s *Store) FindBySource(path string) (*Record, error) {
	row := s.db.QueryRow(`
		SELECT id, name, source, fingerprint, document, created_at, updated_at
		FROM layouts WHERE source = ? ORDER BY updated_at DESC LIMIT 1`, path)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: source %s", ErrNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("find layout: %w", err)
	}
	return r, nil
}

// Delete removes the layout named name and its sequences.
func (s *Store) Delete(name string) error {
	result, err := s.db.Exec("DELETE FROM layouts WHERE name = ?", name)
	if err != nil {
		return fmt.Errorf("delete layout: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return nil
}

// FindSequences returns the sequences of every layout whose keys equal keys
// ignoring case.
func (s *Store) FindSequences(keys string) ([]SequenceMatch, error) {
	rows, err := s.db.Query(`
		SELECT l.name, q.modifier, q.keys, q.output
		FROM sequences q JOIN layouts l ON l.id = q.layout_id
		WHERE q.keys_folded = ?
		ORDER BY l.name, q.modifier, q.keys`, strings.ToLower(keys))
	if err != nil {
		return nil, fmt.Errorf("find sequences: %w", err)
	}
	defer rows.Close()

	var matches []SequenceMatch
	for rows.Next() {
		var m SequenceMatch
		var mod int
		if err := rows.Scan(&m.Layout, &mod, &m.Sequence.Keys, &m.Sequence.Output); err != nil {
			return nil, fmt.Errorf("scan sequence: %w", err)
		}
		m.Modifier = modifier.State(mod)
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var r Record
	var fp []byte
	var created, updated int64
	if err := row.Scan(&r.ID, &r.Name, &r.Source, &fp, &r.Document, &created, &updated); err != nil {
		return nil, err
	}
	copy(r.Fingerprint[:], fp)
	r.CreatedAt = time.Unix(0, created)
	r.UpdatedAt = time.Unix(0, updated)
	return &r, nil
}

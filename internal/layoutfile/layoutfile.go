// Package layoutfile reads and writes layouts in a JSON or YAML
// interchange format.
//
// Documents are checked against an embedded JSON Schema before they are
// turned into a layout. YAML documents are validated through their JSON
// form. Text is NFC-normalized on the way in.
package layoutfile

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"

	"elk/internal/keycode"
	"elk/internal/layout"
	"elk/internal/modifier"
)

// ErrInvalid is returned for documents that do not describe a layout.
var ErrInvalid = errors.New("layoutfile: invalid layout document")

//go:embed layout.schema.json
var schemaJSON []byte

const schemaURL = "https://elk.dev/schema/layout-v1.schema.json"

// Format selects the document syntax.
type Format int

const (
	JSON Format = iota
	YAML
)

func (f Format) String() string {
	if f == YAML {
		return "yaml"
	}
	return "json"
}

// FormatFor picks the format from a file extension.
func FormatFor(path string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return JSON, true
	case ".yaml", ".yml":
		return YAML, true
	}
	return JSON, false
}

// File is the interchange document.
type File struct {
	Name      string     `json:"name" yaml:"name"`
	KeyMaps   []KeyMap   `json:"keymaps" yaml:"keymaps"`
	Sequences []Sequence `json:"sequences,omitempty" yaml:"sequences,omitempty"`
}

// KeyMap lists the characters typed under one modifier state, keyed by
// decimal key code.
type KeyMap struct {
	Modifier string            `json:"modifier" yaml:"modifier"`
	Keys     map[string]string `json:"keys" yaml:"keys"`
}

// Sequence is a dead sequence of one modifier state.
type Sequence struct {
	Modifier string `json:"modifier" yaml:"modifier"`
	Keys     string `json:"keys" yaml:"keys"`
	Output   string `json:"output" yaml:"output"`
}

var compileSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	if err := c.AddResource(schemaURL, bytes.NewReader(schemaJSON)); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	return c.Compile(schemaURL)
})

// Validate checks a JSON document against the layout schema.
func Validate(data []byte) error {
	schema, err := compileSchema()
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var instance any
	if err := json.Unmarshal(data, &instance); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := schema.Validate(instance); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// Decode reads a layout document in format f.
func Decode(r io.Reader, f Format) (*layout.Layout, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read layout: %w", err)
	}

	if f == YAML {
		var file File
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("%w: decode YAML: %v", ErrInvalid, err)
		}
		if data, err = json.Marshal(file); err != nil {
			return nil, fmt.Errorf("encode JSON: %w", err)
		}
	}

	if err := Validate(data); err != nil {
		return nil, err
	}
	var file File
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: decode JSON: %v", ErrInvalid, err)
	}
	return file.Layout()
}

// Encode writes l in format f.
func Encode(w io.Writer, l *layout.Layout, f Format) error {
	file := FromLayout(l)
	if f == YAML {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(file); err != nil {
			return fmt.Errorf("encode YAML: %w", err)
		}
		return enc.Close()
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(file); err != nil {
		return fmt.Errorf("encode JSON: %w", err)
	}
	return nil
}

// ReadFile decodes the layout stored at path, choosing the format from the
// extension.
func ReadFile(path string) (*layout.Layout, error) {
	f, ok := FormatFor(path)
	if !ok {
		return nil, fmt.Errorf("%s: unsupported layout file extension", path)
	}
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()

	l, err := Decode(fh, f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return l, nil
}

// WriteFile stores l at path in the format its extension names.
func WriteFile(path string, l *layout.Layout) error {
	f, ok := FormatFor(path)
	if !ok {
		return fmt.Errorf("%s: unsupported layout file extension", path)
	}
	var buf bytes.Buffer
	if err := Encode(&buf, l, f); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0644)
}

// Layout converts the document into a layout.
func (file *File) Layout() (*layout.Layout, error) {
	l := layout.New(norm.NFC.String(file.Name))

	var maps [modifier.Count]layout.KeyMap
	var seen [modifier.Count]bool
	for i, km := range file.KeyMaps {
		s, err := modifier.Parse(km.Modifier)
		if err != nil {
			return nil, fmt.Errorf("%w: keymaps[%d]: %v", ErrInvalid, i, err)
		}
		for key, text := range km.Keys {
			code, err := strconv.Atoi(key)
			if err != nil || code < 0 || code >= keycode.Count {
				return nil, fmt.Errorf("%w: keymaps[%d]: bad key code %q", ErrInvalid, i, key)
			}
			chars := []rune(norm.NFC.String(text))
			if len(chars) != 1 {
				return nil, fmt.Errorf("%w: keymaps[%d] key %d: %q is not one character", ErrInvalid, i, code, text)
			}
			maps[s][code] = chars[0]
		}
		seen[s] = true
	}
	for _, s := range modifier.All() {
		if seen[s] {
			l.SetKeyMap(s, maps[s])
		}
	}

	var seqs [modifier.Count][]layout.DeadSequence
	for i, seq := range file.Sequences {
		s, err := modifier.Parse(seq.Modifier)
		if err != nil {
			return nil, fmt.Errorf("%w: sequences[%d]: %v", ErrInvalid, i, err)
		}
		seqs[s] = append(seqs[s], layout.DeadSequence{
			Keys:   norm.NFC.String(seq.Keys),
			Output: norm.NFC.String(seq.Output),
		})
	}
	for _, s := range modifier.All() {
		if len(seqs[s]) > 0 {
			l.SetSequences(s, seqs[s])
		}
	}
	return l, nil
}

// FromLayout builds the document for l. Only states with a defined key map
// or sequences are listed.
func FromLayout(l *layout.Layout) *File {
	file := &File{Name: l.Name(), KeyMaps: []KeyMap{}}
	for _, s := range modifier.All() {
		km, ok := l.KeyMap(s)
		if !ok || !km.Defined() {
			continue
		}
		entry := KeyMap{Modifier: s.String(), Keys: make(map[string]string)}
		for code, r := range km {
			if r != 0 {
				entry.Keys[strconv.Itoa(code)] = string(r)
			}
		}
		file.KeyMaps = append(file.KeyMaps, entry)
	}
	for _, s := range modifier.All() {
		for _, seq := range l.Sequences(s) {
			file.Sequences = append(file.Sequences, Sequence{
				Modifier: s.String(),
				Keys:     seq.Keys,
				Output:   seq.Output,
			})
		}
	}
	return file
}

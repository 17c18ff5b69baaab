package layoutfile

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"elk/internal/layout"
	"elk/internal/modifier"
)

const frenchJSON = `{
  "name": "French",
  "keymaps": [
    {"modifier": "none", "keys": {"0": "q", "12": "a", "22": "6"}},
    {"modifier": "shift", "keys": {"0": "Q", "12": "A", "22": "^"}}
  ],
  "sequences": [
    {"modifier": "none", "keys": "^a", "output": "â"},
    {"modifier": "none", "keys": "^e", "output": "ê"}
  ]
}`

const frenchYAML = `name: French
keymaps:
  - modifier: none
    keys:
      "0": q
      "12": a
      "22": "6"
  - modifier: shift
    keys:
      "0": Q
      "12": A
      "22": ^
sequences:
  - modifier: none
    keys: ^a
    output: â
  - modifier: none
    keys: ^e
    output: ê
`

func TestDecodeJSON(t *testing.T) {
	l, err := Decode(strings.NewReader(frenchJSON), JSON)
	require.NoError(t, err)

	assert.Equal(t, "French", l.Name())
	km, ok := l.KeyMap(modifier.None)
	require.True(t, ok)
	assert.Equal(t, 'q', km[0])
	assert.Equal(t, 'a', km[12])

	// The decomposed circumflex is normalized to one code point.
	assert.Equal(t, []layout.DeadSequence{
		{Keys: "^a", Output: "â"},
		{Keys: "^e", Output: "ê"},
	}, l.Sequences(modifier.None))

	_, ok = l.KeyMap(modifier.Option)
	assert.False(t, ok)
}

func TestDecodeYAMLMatchesJSON(t *testing.T) {
	fromJSON, err := Decode(strings.NewReader(frenchJSON), JSON)
	require.NoError(t, err)
	fromYAML, err := Decode(strings.NewReader(frenchYAML), YAML)
	require.NoError(t, err)

	assert.Equal(t, FromLayout(fromJSON), FromLayout(fromYAML))
}

func TestSchemaRejectsMalformedDocuments(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"not json", `{`},
		{"missing name", `{"keymaps": []}`},
		{"empty name", `{"name": "", "keymaps": []}`},
		{"unknown modifier", `{"name": "x", "keymaps": [{"modifier": "hyper", "keys": {}}]}`},
		{"code out of range", `{"name": "x", "keymaps": [{"modifier": "none", "keys": {"128": "a"}}]}`},
		{"code not a number", `{"name": "x", "keymaps": [{"modifier": "none", "keys": {"a": "a"}}]}`},
		{"empty character", `{"name": "x", "keymaps": [{"modifier": "none", "keys": {"0": ""}}]}`},
		{"extra field", `{"name": "x", "keymaps": [], "font": "y"}`},
		{"sequence without output", `{"name": "x", "keymaps": [], "sequences": [{"modifier": "none", "keys": "ab"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tt.doc), JSON)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalid), "got %v", err)
		})
	}
}

func TestDecodeRejectsMultiCharacterKey(t *testing.T) {
	doc := `{"name": "x", "keymaps": [{"modifier": "none", "keys": {"0": "ab"}}]}`
	_, err := Decode(strings.NewReader(doc), JSON)
	assert.True(t, errors.Is(err, ErrInvalid))
}

func TestEncodeRoundTrip(t *testing.T) {
	l, err := Decode(strings.NewReader(frenchJSON), JSON)
	require.NoError(t, err)

	for _, f := range []Format{JSON, YAML} {
		t.Run(f.String(), func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, Encode(&buf, l, f))

			back, err := Decode(&buf, f)
			require.NoError(t, err)
			assert.Equal(t, FromLayout(l), FromLayout(back))
		})
	}
}

func TestReadWriteFile(t *testing.T) {
	l, err := Decode(strings.NewReader(frenchJSON), JSON)
	require.NoError(t, err)

	dir := t.TempDir()
	for _, name := range []string{"french.json", "french.yaml", "french.yml"} {
		path := filepath.Join(dir, name)
		require.NoError(t, WriteFile(path, l))
		back, err := ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, FromLayout(l), FromLayout(back), name)
	}

	assert.Error(t, WriteFile(filepath.Join(dir, "french.txt"), l))
	_, err = ReadFile(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func TestFormatFor(t *testing.T) {
	f, ok := FormatFor("a/b/Layout.YAML")
	assert.True(t, ok)
	assert.Equal(t, YAML, f)

	_, ok = FormatFor("layout.keylayout")
	assert.False(t, ok)
}

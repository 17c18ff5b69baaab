package parser

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"elk/internal/compiler"
	"elk/internal/keylayout"
	"elk/internal/modifier"
)

func TestReadFile(t *testing.T) {
	doc, err := compiler.Compile(literalLayout(), compiler.Options{})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "Literal.keylayout")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, keylayout.Encode(f, doc))
	require.NoError(t, f.Close())

	l, err := ReadFile(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "Literal", l.Name())
	km, ok := l.KeyMap(modifier.Option)
	require.True(t, ok)
	assert.Equal(t, 'å', km[0])
}

func TestReadFileErrors(t *testing.T) {
	dir := t.TempDir()
	_, err := ReadFile(filepath.Join(dir, "missing.keylayout"), nil)
	assert.Error(t, err)

	path := filepath.Join(dir, "Broken.keylayout")
	require.NoError(t, os.WriteFile(path, []byte("<keyboard"), 0600))
	_, err = ReadFile(path, nil)
	assert.ErrorContains(t, err, path)
}

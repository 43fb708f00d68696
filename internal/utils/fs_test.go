package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/BurntSushi/toml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWritableDirCreatesMissing(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	assert.True(t, WritableDir(dir))
	assert.DirExists(t, dir)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "the write check leaves nothing behind")
}

func TestWriteTOMLFileReplaces(t *testing.T) {
	type section struct {
		Name  string `toml:"name"`
		Limit int    `toml:"limit"`
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("garbage = ["), 0o644))

	require.NoError(t, WriteTOMLFile(path, section{Name: "tags", Limit: 10}))

	var got section
	_, err := toml.DecodeFile(path, &got)
	require.NoError(t, err)
	assert.Equal(t, section{Name: "tags", Limit: 10}, got)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestWriteTOMLFileMissingDir(t *testing.T) {
	err := WriteTOMLFile(filepath.Join(t.TempDir(), "nope", "config.toml"), struct{}{})
	assert.Error(t, err)
}

func TestIsFileAndAbsPath(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "x.bin")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	assert.True(t, IsFile(file))
	assert.False(t, IsFile(dir))
	assert.False(t, IsFile(filepath.Join(dir, "missing")))

	assert.Equal(t, "", AbsPath(""))
	assert.Equal(t, file, AbsPath(file))
	assert.True(t, filepath.IsAbs(AbsPath("store")))
}

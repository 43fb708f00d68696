package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPathResolverFindsConfigData(t *testing.T) {
	configDir := t.TempDir()
	require.NoError(t, EnsureDir(filepath.Join(configDir, "data")))
	want := filepath.Join(configDir, "data", "tags-test-index.bin")
	require.NoError(t, os.WriteFile(want, []byte("x"), 0o644))

	pr, err := NewPathResolver(configDir)
	require.NoError(t, err)

	got, err := pr.Find("tags-test-index.bin")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestPathResolverAbsolute(t *testing.T) {
	pr, err := NewPathResolver("")
	require.NoError(t, err)

	abs := filepath.Join(t.TempDir(), "missing.bin")
	assert.Equal(t, []string{abs}, pr.Candidates(abs))

	_, err = pr.Find(abs)
	assert.Error(t, err)
}

func TestExtractHelpers(t *testing.T) {
	data := map[string]any{
		"name": "tags",
		"ids":  []any{int64(1), int64(2)},
		"bad":  []any{int64(1), "two"},
		"n":    int64(4),
	}

	s, ok := ExtractString(data, "name")
	assert.True(t, ok)
	assert.Equal(t, "tags", s)

	_, ok = ExtractString(data, "n")
	assert.False(t, ok)

	ids, ok := ExtractInt64Slice(data, "ids")
	assert.True(t, ok)
	assert.Equal(t, []int{1, 2}, ids)

	_, ok = ExtractInt64Slice(data, "bad")
	assert.False(t, ok)
}

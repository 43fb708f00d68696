package index

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatchFileReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "compiled.bin")
	require.NoError(t, os.WriteFile(path, fixture(t), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var loaded atomic.Pointer[CompiledIndex]
	var loads atomic.Int32
	require.NoError(t, WatchFile(ctx, path, func(ci *CompiledIndex) {
		loads.Add(1)
		loaded.Store(ci)
	}))

	// unrelated files in the same directory are ignored
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.bin"), fixture(t), 0o644))
	// a broken dump keeps the current index
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o644))
	time.Sleep(300 * time.Millisecond)
	assert.Zero(t, loads.Load())

	blob, err := Encode([]TagRecord{{Name: "fern", ImageCount: 7}, {Name: "moss", ImageCount: 2}})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, blob, 0o644))

	require.Eventually(t, func() bool {
		ci := loaded.Load()
		return ci != nil && ci.RecordCount() == 2
	}, 3*time.Second, 20*time.Millisecond)
}

func TestWatchFileStopsOnCancel(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "compiled.bin")

	ctx, cancel := context.WithCancel(context.Background())
	var loads atomic.Int32
	require.NoError(t, WatchFile(ctx, path, func(*CompiledIndex) { loads.Add(1) }))
	cancel()
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, os.WriteFile(path, fixture(t), 0o644))
	time.Sleep(300 * time.Millisecond)
	assert.Zero(t, loads.Load())
}

func TestWatchFileMissingDirectory(t *testing.T) {
	err := WatchFile(context.Background(), filepath.Join(t.TempDir(), "nope", "compiled.bin"), func(*CompiledIndex) {})
	assert.Error(t, err)
}

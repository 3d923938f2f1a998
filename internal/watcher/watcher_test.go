package watcher

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitForCalls(t *testing.T, calls *atomic.Int32, want int32) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if calls.Load() >= want {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("expected %d onChange calls, got %d", want, calls.Load())
}

func TestWatcherFiresOnTargetWrite(t *testing.T) {
	tmpDir := t.TempDir()
	target := filepath.Join(tmpDir, "settings.yaml")
	require.NoError(t, os.WriteFile(target, []byte("listen_addr: :8377\n"), 0o644))

	var calls atomic.Int32
	w, err := New(target, func() { calls.Add(1) })
	require.NoError(t, err)
	require.NoError(t, w.Start())
	defer w.Stop()

	require.NoError(t, os.WriteFile(target, []byte("listen_addr: :9000\n"), 0o644))
	waitForCalls(t, &calls, 1)
}

func TestWatcherIgnoresSiblingFiles(t *testing.T) {
	tmpDir := t.TempDir()
	target := filepath.Join(tmpDir, "settings.yaml")
	require.NoError(t, os.WriteFile(target, []byte("a: 1\n"), 0o644))

	var calls atomic.Int32
	w, err := New(target, func() { calls.Add(1) })
	require.NoError(t, err)
	require.NoError(t, w.Start())
	defer w.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "other.yaml"), []byte("b: 2\n"), 0o644))
	time.Sleep(500 * time.Millisecond)
	assert.Zero(t, calls.Load())
}

func TestWatcherDebouncesBursts(t *testing.T) {
	tmpDir := t.TempDir()
	target := filepath.Join(tmpDir, "settings.yaml")
	require.NoError(t, os.WriteFile(target, []byte("a: 1\n"), 0o644))

	var calls atomic.Int32
	w, err := New(target, func() { calls.Add(1) })
	require.NoError(t, err)
	require.NoError(t, w.Start())
	defer w.Stop()

	// An editor save sequence: several writes in quick succession.
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(target, []byte("a: 2\n"), 0o644))
		time.Sleep(10 * time.Millisecond)
	}

	waitForCalls(t, &calls, 1)
	time.Sleep(400 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}

func TestWatcherStopIsIdempotent(t *testing.T) {
	tmpDir := t.TempDir()
	target := filepath.Join(tmpDir, "settings.yaml")

	w, err := New(target, nil)
	require.NoError(t, err)
	require.NoError(t, w.Start())
	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())
}

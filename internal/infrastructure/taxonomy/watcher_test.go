package taxonomy

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type changeRecorder struct {
	mu    sync.Mutex
	calls [][]string
}

func (r *changeRecorder) record(_ context.Context, paths []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, paths)
}

func (r *changeRecorder) snapshot() [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]string(nil), r.calls...)
}

func TestWatcher_DebouncesMatchingWrites(t *testing.T) {
	dir := t.TempDir()
	tree := filepath.Join(dir, "main.yaml")
	require.NoError(t, os.WriteFile(tree, []byte("v1"), 0o644))

	rec := &changeRecorder{}
	w, err := NewWatcher(WatcherConfig{
		Patterns: []string{filepath.Join(dir, "*.yaml")},
		Debounce: 50 * time.Millisecond,
	}, rec.record)
	require.NoError(t, err)
	w.Start(context.Background())
	defer w.Stop()

	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(tree, []byte{byte('a' + i)}, 0o644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	assert.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(150 * time.Millisecond)

	calls := rec.snapshot()
	require.Len(t, calls, 1)
	assert.Equal(t, []string{tree}, calls[0])
}

func TestWatcher_StopEndsDelivery(t *testing.T) {
	dir := t.TempDir()
	rec := &changeRecorder{}
	w, err := NewWatcher(WatcherConfig{
		Patterns: []string{filepath.Join(dir, "*.yaml")},
		Debounce: 10 * time.Millisecond,
	}, rec.record)
	require.NoError(t, err)
	w.Start(context.Background())
	require.NoError(t, w.Stop())

	require.NoError(t, os.WriteFile(filepath.Join(dir, "late.yaml"), []byte("x"), 0o644))
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, rec.snapshot())
}

func TestNewWatcher_Validation(t *testing.T) {
	_, err := NewWatcher(WatcherConfig{}, func(context.Context, []string) {})
	assert.ErrorIs(t, err, ErrNoFiles)

	_, err = NewWatcher(WatcherConfig{Patterns: []string{"testdata/*.yaml"}}, nil)
	assert.Error(t, err)

	_, err = NewWatcher(WatcherConfig{Patterns: []string{"does-not-exist/*.yaml"}}, func(context.Context, []string) {})
	assert.Error(t, err)
}

func TestPatternDirs(t *testing.T) {
	dirs := patternDirs([]string{"taxonomy/*.yaml", "taxonomy/extra/*.yml", "taxonomy/main.yaml"})
	assert.Equal(t, []string{"taxonomy", "taxonomy/extra"}, dirs)
}

package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu    sync.Mutex
	paths []string
	ch    chan string
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan string, 16)}
}

func (r *recorder) handle(ctx context.Context, path string) {
	r.mu.Lock()
	r.paths = append(r.paths, path)
	r.mu.Unlock()
	r.ch <- path
}

func (r *recorder) wait(t *testing.T) string {
	t.Helper()
	select {
	case p := <-r.ch:
		return p
	case <-time.After(5 * time.Second):
		t.Fatal("handler was not called")
		return ""
	}
}

func (r *recorder) none(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case p := <-r.ch:
		t.Fatalf("unexpected handler call for %s", p)
	case <-time.After(d):
	}
}

func startWatcher(t *testing.T, dir string, opts Options, h Handler) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	w := New(zerolog.Nop(), opts, h)
	go func() { done <- w.Run(ctx, dir) }()
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-done)
	})
	// Give the watcher time to register.
	time.Sleep(50 * time.Millisecond)
}

func TestMatches(t *testing.T) {
	w := New(zerolog.Nop(), Options{Extensions: []string{"MP4", ".mkv", " "}}, nil)

	assert.True(t, w.Matches("/in/stream.mp4"))
	assert.True(t, w.Matches("/in/STREAM.MP4"))
	assert.True(t, w.Matches("/in/clip.mkv"))
	assert.False(t, w.Matches("/in/notes.txt"))
	assert.False(t, w.Matches("/in/.hidden.mp4"))
	assert.False(t, w.Matches("/in/clip.part.mp4"))
}

func TestDefaults(t *testing.T) {
	w := New(zerolog.Nop(), Options{}, nil)
	assert.Equal(t, DefaultSettle, w.opts.Settle)
	assert.Equal(t, DefaultExtensions, w.opts.Extensions)
}

func TestNewFileHandledOnceAfterSettling(t *testing.T) {
	dir := t.TempDir()
	rec := newRecorder()
	startWatcher(t, dir, Options{Extensions: []string{".mp4"}, Settle: 100 * time.Millisecond}, rec.handle)

	path := filepath.Join(dir, "match.mp4")
	f, err := os.Create(path)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		_, err := f.Write([]byte("chunk"))
		require.NoError(t, err)
		time.Sleep(20 * time.Millisecond)
	}
	require.NoError(t, f.Close())

	assert.Equal(t, path, rec.wait(t))

	// Touching it again does not reprocess.
	require.NoError(t, os.WriteFile(path, []byte("more"), 0o644))
	rec.none(t, 300*time.Millisecond)
}

func TestIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	rec := newRecorder()
	startWatcher(t, dir, Options{Extensions: []string{".mp4"}, Settle: 50 * time.Millisecond}, rec.handle)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "clip.part.mp4"), []byte("x"), 0o644))
	rec.none(t, 300*time.Millisecond)
}

func TestExistingFiles(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.mkv")
	b := filepath.Join(dir, "b.mkv")
	require.NoError(t, os.WriteFile(a, []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(b, []byte("y"), 0o644))

	rec := newRecorder()
	startWatcher(t, dir, Options{Extensions: []string{".mkv"}, Settle: 50 * time.Millisecond, Existing: true}, rec.handle)

	got := []string{rec.wait(t), rec.wait(t)}
	assert.ElementsMatch(t, []string{a, b}, got)
}

func TestRunMissingDir(t *testing.T) {
	w := New(zerolog.Nop(), Options{}, func(context.Context, string) {})
	err := w.Run(context.Background(), filepath.Join(t.TempDir(), "absent"))
	assert.Error(t, err)
}

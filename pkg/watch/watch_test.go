package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittocdn/pkg/cdn"
	"github.com/marmos91/dittocdn/pkg/site"
)

type call struct {
	command string
	files   []string
}

type recorder struct {
	mu    sync.Mutex
	calls []call
}

func (r *recorder) record(command string, files []string) (int, []cdn.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call{command, files})
	return len(files), nil, nil
}

func (r *recorder) Upload(_ context.Context, files []string, queueFailed bool) (int, []cdn.Result, error) {
	if !queueFailed {
		panic("watched transfers must queue failures")
	}
	return r.record("upload", files)
}

func (r *recorder) Delete(_ context.Context, files []string, queueFailed bool) (int, []cdn.Result, error) {
	if !queueFailed {
		panic("watched transfers must queue failures")
	}
	return r.record("delete", files)
}

func (r *recorder) snapshot() []call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]call(nil), r.calls...)
}

func (r *recorder) has(c call) bool {
	for _, got := range r.snapshot() {
		if got.command == c.command && len(got.files) == 1 && got.files[0] == c.files[0] {
			return true
		}
	}
	return false
}

func (r *recorder) touched(file string) bool {
	for _, got := range r.snapshot() {
		for _, f := range got.files {
			if f == file {
				return true
			}
		}
	}
	return false
}

func TestWatcher(t *testing.T) {
	layout := &site.Layout{Root: t.TempDir(), URL: "https://example.com"}
	layout.ApplyDefaults()
	uploads := layout.UploadsRoot()
	require.NoError(t, os.MkdirAll(uploads, 0o755))

	rec := &recorder{}
	w := New(Config{Enabled: true, Debounce: 50 * time.Millisecond}, layout, rec)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	defer func() {
		cancel()
		require.NoError(t, <-done)
	}()

	// Give the watcher time to register the root.
	time.Sleep(100 * time.Millisecond)

	t.Run("WritesAreDebounced", func(t *testing.T) {
		p := filepath.Join(uploads, "a.png")
		for i := 0; i < 5; i++ {
			require.NoError(t, os.WriteFile(p, []byte{byte(i)}, 0o644))
		}
		want := call{"upload", []string{"wp-content/uploads/a.png"}}
		require.Eventually(t, func() bool { return rec.has(want) }, 2*time.Second, 10*time.Millisecond)

		time.Sleep(150 * time.Millisecond)
		n := 0
		for _, c := range rec.snapshot() {
			if c.files[0] == want.files[0] {
				n++
			}
		}
		assert.Equal(t, 1, n)
	})

	t.Run("RemoveDeletes", func(t *testing.T) {
		require.NoError(t, os.Remove(filepath.Join(uploads, "a.png")))
		want := call{"delete", []string{"wp-content/uploads/a.png"}}
		require.Eventually(t, func() bool { return rec.has(want) }, 2*time.Second, 10*time.Millisecond)
	})

	t.Run("NewDirectories", func(t *testing.T) {
		dir := filepath.Join(uploads, "2024", "05")
		require.NoError(t, os.MkdirAll(dir, 0o755))
		time.Sleep(100 * time.Millisecond)
		require.NoError(t, os.WriteFile(filepath.Join(dir, "b.jpg"), []byte("b"), 0o644))

		want := call{"upload", []string{"wp-content/uploads/2024/05/b.jpg"}}
		require.Eventually(t, func() bool { return rec.has(want) }, 2*time.Second, 10*time.Millisecond)
	})

	t.Run("RemovedDirectoryNotDeleted", func(t *testing.T) {
		dir := filepath.Join(uploads, "2023")
		require.NoError(t, os.MkdirAll(dir, 0o755))
		time.Sleep(100 * time.Millisecond)
		require.NoError(t, os.RemoveAll(dir))

		time.Sleep(200 * time.Millisecond)
		assert.False(t, rec.touched("wp-content/uploads/2023"))
	})

	t.Run("ShortLivedFileDropped", func(t *testing.T) {
		p := filepath.Join(uploads, "ghost.png")
		require.NoError(t, os.WriteFile(p, []byte("boo"), 0o644))
		require.NoError(t, os.Remove(p))

		time.Sleep(200 * time.Millisecond)
		assert.False(t, rec.touched("wp-content/uploads/ghost.png"))
	})

	t.Run("IgnoresTemporaryFiles", func(t *testing.T) {
		require.NoError(t, os.WriteFile(filepath.Join(uploads, ".hidden"), []byte("x"), 0o644))
		require.NoError(t, os.WriteFile(filepath.Join(uploads, "c.png.tmp-123"), []byte("x"), 0o644))
		time.Sleep(200 * time.Millisecond)
		for _, c := range rec.snapshot() {
			assert.NotContains(t, c.files[0], ".hidden")
			assert.NotContains(t, c.files[0], ".tmp-")
		}
	})
}

func TestIgnored(t *testing.T) {
	assert.True(t, ignored("/x/.DS_Store"))
	assert.True(t, ignored("/x/a.png.tmp-abc"))
	assert.True(t, ignored("/x/a.png~"))
	assert.False(t, ignored("/x/a.png"))
}

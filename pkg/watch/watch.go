// Package watch turns file system changes under the uploads directory into
// foreground transfers. Failed transfers are queued for the processor.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/marmos91/dittocdn/internal/logger"
	"github.com/marmos91/dittocdn/pkg/cdn"
	"github.com/marmos91/dittocdn/pkg/site"
)

// DefaultDebounce is how long a path must be quiet before it is transferred.
const DefaultDebounce = 2 * time.Second

// Config configures the watcher.
type Config struct {
	Enabled  bool          `mapstructure:"enabled" yaml:"enabled"`
	Debounce time.Duration `mapstructure:"debounce" yaml:"debounce"`
}

// Transfers runs foreground transfers of site-relative files.
type Transfers interface {
	Upload(ctx context.Context, files []string, queueFailed bool) (int, []cdn.Result, error)
	Delete(ctx context.Context, files []string, queueFailed bool) (int, []cdn.Result, error)
}

// Watcher watches the uploads directory recursively.
type Watcher struct {
	layout    *site.Layout
	transfers Transfers
	debounce  time.Duration

	mu      sync.Mutex
	pending map[string]*pending
	dirs    map[string]struct{}
	closed  bool
	wg      sync.WaitGroup
}

// pending is a debounced transfer. created is set when the window began
// with the path appearing, so a vanished path has no remote copy to delete.
type pending struct {
	timer   *time.Timer
	created bool
}

// New creates a watcher for the uploads directory of layout.
func New(cfg Config, layout *site.Layout, t Transfers) *Watcher {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	return &Watcher{
		layout:    layout,
		transfers: t,
		debounce:  cfg.Debounce,
		pending:   make(map[string]*pending),
		dirs:      make(map[string]struct{}),
	}
}

// Run watches until ctx is done. Pending debounced transfers are dropped
// on exit; the next export or change picks them up.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = fw.Close() }()

	root := w.layout.UploadsRoot()
	if err := os.MkdirAll(root, 0o755); err != nil {
		return fmt.Errorf("failed to create uploads directory: %w", err)
	}
	if err := w.addTree(fw, root); err != nil {
		return err
	}
	logger.Info("Watching uploads directory", logger.KeyPath, root, "debounce", w.debounce)

	defer w.stopTimers()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			w.handle(ctx, fw, event)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logger.Warn("Uploads watcher error", logger.Err(err))
		}
	}
}

func (w *Watcher) addTree(fw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := fw.Add(p); err != nil {
			return fmt.Errorf("failed to watch %s: %w", p, err)
		}
		w.mu.Lock()
		w.dirs[p] = struct{}{}
		w.mu.Unlock()
		return nil
	})
}

// isDir reports whether path was ever watched as a directory. Removed
// directories stay known, since one removal can arrive as several events.
func (w *Watcher) isDir(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.dirs[path]
	return ok
}

func (w *Watcher) handle(ctx context.Context, fw *fsnotify.Watcher, event fsnotify.Event) {
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}
	if ignored(event.Name) {
		return
	}
	created := event.Op&fsnotify.Create != 0
	if created {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addTree(fw, event.Name); err != nil {
				logger.Warn("Failed to watch new directory", logger.KeyPath, event.Name, logger.Err(err))
			}
			w.scheduleTree(ctx, event.Name)
			return
		}
		w.mu.Lock()
		delete(w.dirs, event.Name)
		w.mu.Unlock()
	} else if w.isDir(event.Name) {
		return
	}
	w.schedule(ctx, event.Name, created)
}

// scheduleTree schedules files that landed in a new directory before its
// watch was added.
func (w *Watcher) scheduleTree(ctx context.Context, dir string) {
	_ = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err == nil && !d.IsDir() && !ignored(p) {
			w.schedule(ctx, p, true)
		}
		return nil
	})
}

func (w *Watcher) schedule(ctx context.Context, path string, created bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	if p, ok := w.pending[path]; ok {
		p.timer.Stop()
		created = created || p.created
	}
	w.pending[path] = &pending{
		created: created,
		timer: time.AfterFunc(w.debounce, func() {
			w.mu.Lock()
			if w.closed {
				w.mu.Unlock()
				return
			}
			delete(w.pending, path)
			w.wg.Add(1)
			w.mu.Unlock()
			defer w.wg.Done()
			w.transfer(ctx, path, created)
		}),
	}
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	w.closed = true
	for path, p := range w.pending {
		p.timer.Stop()
		delete(w.pending, path)
	}
	w.mu.Unlock()
	w.wg.Wait()
}

// transfer uploads path if it exists, else deletes its remote copy. A path
// created and removed within one window is dropped.
func (w *Watcher) transfer(ctx context.Context, path string, created bool) {
	if ctx.Err() != nil {
		return
	}
	rel, ok := w.layout.Relative(path)
	if !ok {
		return
	}

	info, err := os.Stat(path)
	switch {
	case err == nil && info.IsDir():
		return
	case err == nil:
		_, results, err := w.transfers.Upload(ctx, []string{rel}, true)
		w.log(rel, "upload", results, err)
	case errors.Is(err, fs.ErrNotExist) && created:
		logger.Debug("Changed file vanished before transfer", logger.KeyPath, rel)
	case errors.Is(err, fs.ErrNotExist):
		_, results, err := w.transfers.Delete(ctx, []string{rel}, true)
		w.log(rel, "delete", results, err)
	default:
		logger.Warn("Failed to stat changed file", logger.KeyPath, path, logger.Err(err))
	}
}

func (w *Watcher) log(rel, command string, results []cdn.Result, err error) {
	if err != nil {
		logger.Error("Watched transfer failed", logger.KeyPath, rel, logger.Command(command), logger.Err(err))
		return
	}
	for _, r := range results {
		if r.Outcome == cdn.OutcomeOK {
			logger.Debug("Watched transfer done", logger.KeyPath, rel, logger.Command(command))
		}
	}
}

// ignored skips hidden files and in-flight temporary files.
func ignored(path string) bool {
	base := filepath.Base(path)
	return strings.HasPrefix(base, ".") || strings.Contains(base, ".tmp-") || strings.HasSuffix(base, "~")
}

// Package watch reports cached files that changed on disk after they were
// parsed. It never evicts anything: cached trees stay authoritative for the
// life of the process, and the watcher only tells the operator they are
// out of date.
package watch

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Watcher tracks cached files through fsnotify directory watches.
type Watcher struct {
	fsw    *fsnotify.Watcher
	logger *slog.Logger

	mu      sync.Mutex
	tracked map[string]string // absolute path -> path as cached
	dirs    map[string]bool
	stale   map[string]bool

	done      chan struct{}
	closeOnce sync.Once
}

// New starts a watcher. Close must be called to release it.
func New(logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: %w", err)
	}
	w := &Watcher{
		fsw:     fsw,
		logger:  logger,
		tracked: make(map[string]string),
		dirs:    make(map[string]bool),
		stale:   make(map[string]bool),
		done:    make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

// Add starts tracking path. Its signature matches the scanner's cache hook
// so it can be passed directly to sitterscan.WithCachedHook.
func (w *Watcher) Add(path string) {
	abs, err := filepath.Abs(path)
	if err != nil {
		w.logger.Debug("cannot watch path", "path", path, "error", err)
		return
	}
	dir := filepath.Dir(abs)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.tracked[abs] = path
	if w.dirs[dir] {
		return
	}
	if err := w.fsw.Add(dir); err != nil {
		w.logger.Debug("cannot watch directory", "dir", dir, "error", err)
		return
	}
	w.dirs[dir] = true
}

// Stale returns the tracked paths modified since they were added, sorted.
func (w *Watcher) Stale() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.stale))
	for p := range w.stale {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Tracked reports how many files are being watched.
func (w *Watcher) Tracked() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.tracked)
}

// Close stops the watcher. Safe to call more than once.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		err = w.fsw.Close()
	})
	return err
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", "error", err)
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}

	w.mu.Lock()
	path, ok := w.tracked[event.Name]
	first := ok && !w.stale[path]
	if first {
		w.stale[path] = true
	}
	w.mu.Unlock()

	if first {
		w.logger.Warn("cached file changed on disk; results use the earlier parse until restart",
			"path", path, "op", event.Op.String())
	}
}

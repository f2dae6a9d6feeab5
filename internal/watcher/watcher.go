// Package watcher turns filesystem notifications into debounced change and removal calls.
package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

const DefaultDebounce = 100 * time.Millisecond

// Handler receives the settled state of a path: Changed when it exists after the last event, Removed otherwise.
type Handler interface {
	Changed(path string)
	Removed(path string)
}

type root struct {
	dir     string
	handler Handler
	// depth is how many levels of subdirectories are watched as well.
	depth int
}

type Watcher struct {
	fs       *fsnotify.Watcher
	debounce time.Duration

	mu     sync.Mutex
	roots  []root
	timers map[string]*time.Timer
	closed bool
}

func New(debounce time.Duration) (*Watcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		fs:       fs,
		debounce: debounce,
		timers:   map[string]*time.Timer{},
	}, nil
}

// Watch reports the events under dir, and under its subdirectories down to depth levels, to h. dir is created if
// it does not exist.
func (w *Watcher) Watch(dir string, h Handler, depth int) error {
	dir = filepath.Clean(dir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	w.mu.Lock()
	w.roots = append(w.roots, root{dir: dir, handler: h, depth: depth})
	w.mu.Unlock()

	return w.add(dir, depth)
}

// add watches dir and its subdirectories down to depth levels.
func (w *Watcher) add(dir string, depth int) error {
	if err := w.fs.Add(dir); err != nil {
		return err
	}
	if depth == 0 {
		return nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() {
			if err = w.add(filepath.Join(dir, e.Name()), depth-1); err != nil {
				return err
			}
		}
	}
	return nil
}

// owner finds the root path belongs to and how deep below it path is.
func (w *Watcher) owner(path string) (root, int, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	var (
		best  root
		level int
		found bool
	)
	for _, r := range w.roots {
		rel, err := filepath.Rel(r.dir, path)
		if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
			continue
		}
		if !found || len(r.dir) > len(best.dir) {
			best, level, found = r, strings.Count(rel, string(filepath.Separator)), true
		}
	}
	return best, level, found
}

// Run dispatches events until ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("file watcher error")
		case e, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.handle(e)
		}
	}
}

func (w *Watcher) handle(e fsnotify.Event) {
	if e.Has(fsnotify.Chmod) && !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
		return
	}
	r, level, ok := w.owner(e.Name)
	if !ok {
		return
	}

	if e.Has(fsnotify.Create) && level < r.depth {
		if info, err := os.Stat(e.Name); err == nil && info.IsDir() {
			if err = w.add(e.Name, r.depth-level-1); err != nil {
				log.Warn().Err(err).Str("dir", e.Name).Msg("failed to watch new directory")
			}
		}
	}
	w.schedule(e.Name, r.handler)
}

// schedule restarts the quiet period of path. Only the last event of a burst reaches the handler.
func (w *Watcher) schedule(path string, h Handler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}

	if t, ok := w.timers[path]; ok {
		t.Stop()
	}
	w.timers[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, path)
		closed := w.closed
		w.mu.Unlock()
		if closed {
			return
		}

		_, err := os.Stat(path)
		switch {
		case err == nil:
			h.Changed(path)
		case errors.Is(err, os.ErrNotExist):
			h.Removed(path)
		default:
			log.Warn().Err(err).Str("path", path).Msg("failed to stat watched path")
		}
	})
}

// Close stops watching. Pending notifications are dropped.
func (w *Watcher) Close() error {
	w.mu.Lock()
	w.closed = true
	for path, t := range w.timers {
		t.Stop()
		delete(w.timers, path)
	}
	w.mu.Unlock()
	return w.fs.Close()
}

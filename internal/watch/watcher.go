// Package watch monitors a directory tree and hands newly created or
// modified files to a handler once the tree has been quiet for the
// debounce window.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"prism/internal/logging"
	"prism/internal/metrics"
)

// DefaultDebounce is the quiet period before a batch is flushed.
const DefaultDebounce = 500 * time.Millisecond

// Handler receives one debounced batch of file paths, sorted.
type Handler func(ctx context.Context, paths []string)

// Watcher watches root and its subdirectories.
type Watcher struct {
	fsw        *fsnotify.Watcher
	root       string
	extensions []string
	debounce   time.Duration
	handler    Handler
	metrics    *metrics.Client
}

type Option func(*Watcher)

func WithExtensions(exts []string) Option {
	return func(w *Watcher) { w.extensions = exts }
}

func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

func WithMetrics(m *metrics.Client) Option {
	return func(w *Watcher) { w.metrics = m }
}

// New creates a watcher over root. Call Run to start it.
func New(root string, handler Handler, opts ...Option) (*Watcher, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	w := &Watcher{
		fsw:      fsw,
		root:     root,
		debounce: DefaultDebounce,
		handler:  handler,
	}
	for _, opt := range opts {
		opt(w)
	}
	if err := w.addTree(root); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

// Run processes events until ctx is done. The watcher is closed on return.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()
	log := logging.Get(logging.CategoryWatch)
	log.Infow("watching", "root", w.root, "debounce", w.debounce)

	pending := make(map[string]struct{})
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if w.handle(event, pending) {
				timer.Reset(w.debounce)
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			log.Warnw("watch error", "error", err)

		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			paths := make([]string, 0, len(pending))
			for p := range pending {
				paths = append(paths, p)
			}
			sort.Strings(paths)
			clear(pending)

			w.metrics.WatchEvent("flush")
			logging.Watch("flushing %d new files under %s", len(paths), w.root)
			w.handler(ctx, paths)
		}
	}
}

// handle records one event and reports whether the debounce timer should
// restart.
func (w *Watcher) handle(event fsnotify.Event, pending map[string]struct{}) bool {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
			delete(pending, event.Name)
		}
		return false
	}
	if isHidden(filepath.Base(event.Name)) {
		return false
	}

	info, err := os.Stat(event.Name)
	if err != nil {
		return false
	}
	if info.IsDir() {
		if event.Has(fsnotify.Create) {
			if err := w.addTree(event.Name); err != nil {
				logging.Get(logging.CategoryWatch).Warnw("cannot watch new directory", "dir", event.Name, "error", err)
			}
			// Files may already exist by the time the directory is added.
			_ = filepath.WalkDir(event.Name, func(path string, d fs.DirEntry, err error) error {
				if err == nil && !d.IsDir() && w.accepts(path) {
					pending[path] = struct{}{}
				}
				return nil
			})
			return len(pending) > 0
		}
		return false
	}
	if !info.Mode().IsRegular() || !w.accepts(event.Name) {
		w.metrics.WatchEvent("ignored")
		return false
	}

	pending[event.Name] = struct{}{}
	w.metrics.WatchEvent("queued")
	return true
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && isHidden(d.Name()) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		logging.Get(logging.CategoryWatch).Debugw("added directory", "dir", path)
		return nil
	})
}

func (w *Watcher) accepts(path string) bool {
	if isHidden(filepath.Base(path)) {
		return false
	}
	if len(w.extensions) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range w.extensions {
		if ext == strings.ToLower(e) {
			return true
		}
	}
	return false
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

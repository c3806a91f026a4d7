// Package catalog watches the resource root and reports changed samples to
// the room so that active sources are re-rendered.
package catalog

import (
	"context"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Notifier receives resource-root relative, slash separated paths.
type Notifier interface {
	ResourceChanged(path string)
}

const DefaultDebounce = 150 * time.Millisecond

type Watcher struct {
	root     string
	notify   Notifier
	debounce time.Duration
	log      *log.Logger

	fw *fsnotify.Watcher

	mu      sync.Mutex
	pending map[string]*time.Timer
}

// NewWatcher watches root and every directory below it. Hidden files and
// directories are ignored, which also hides the renderer's temporary files.
func NewWatcher(root string, notify Notifier, logger *log.Logger) (*Watcher, error) {
	if logger == nil {
		logger = log.Default()
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", root, err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	w := &Watcher{
		root:     abs,
		notify:   notify,
		debounce: DefaultDebounce,
		log:      logger,
		fw:       fw,
		pending:  make(map[string]*time.Timer),
	}
	if err := w.addRecursive(abs); err != nil {
		_ = fw.Close()
		return nil, err
	}
	return w, nil
}

func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && hidden(d.Name()) {
			return filepath.SkipDir
		}
		if err := w.fw.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}

// Run forwards changes until ctx is done, then closes the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.stopTimers()
	defer w.fw.Close()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fw.Events:
			if !ok {
				return nil
			}
			w.handle(ev)
		case err, ok := <-w.fw.Errors:
			if !ok {
				return nil
			}
			w.log.Printf("resource watch: %v", err)
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if hidden(filepath.Base(ev.Name)) {
		return
	}
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.addRecursive(ev.Name); err != nil {
				w.log.Printf("resource watch: %v", err)
			}
			return
		}
	}
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
		return
	}
	rel, err := filepath.Rel(w.root, ev.Name)
	if err != nil || strings.HasPrefix(rel, "..") {
		return
	}
	w.schedule(filepath.ToSlash(rel))
}

// schedule coalesces bursts of events on one path into a single notification.
func (w *Watcher) schedule(rel string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[rel]; ok {
		t.Reset(w.debounce)
		return
	}
	w.pending[rel] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, rel)
		w.mu.Unlock()
		w.notify.ResourceChanged(rel)
	})
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for rel, t := range w.pending {
		t.Stop()
		delete(w.pending, rel)
	}
}

func hidden(name string) bool {
	return strings.HasPrefix(name, ".") && name != "."
}

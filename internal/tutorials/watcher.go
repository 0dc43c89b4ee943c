package tutorials

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher keeps a catalog in sync with filesystem changes under the
// tutorials root. Changes are debounced so an unpacking tutorial archive
// triggers one rescan, not hundreds.
type Watcher struct {
	catalog  *Catalog
	watcher  *fsnotify.Watcher
	debounce time.Duration

	mu     sync.Mutex
	timer  *time.Timer
	cancel context.CancelFunc
}

// NewWatcher creates a watcher over the catalog's root
func NewWatcher(catalog *Catalog) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		catalog:  catalog,
		watcher:  fw,
		debounce: 500 * time.Millisecond,
	}

	if err := w.addTree(catalog.Root()); err != nil {
		fw.Close()
		return nil, err
	}
	return w, nil
}

// addTree watches root and every directory below it
func (w *Watcher) addTree(root string) error {
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return nil
	}
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			return w.watcher.Add(path)
		}
		return nil
	})
}

// Start begins watching for changes
func (w *Watcher) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				w.handleEvent(event)
			case _, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				// Keep watching on errors.
			}
		}
	}()
}

// Stop stops the watcher
func (w *Watcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.watcher.Close()
}

// SetDebounce sets the debounce window for batching changes
func (w *Watcher) SetDebounce(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.debounce = d
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}

	// New directories must be watched themselves or changes inside them
	// are invisible.
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			w.addTree(event.Name)
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		w.catalog.Refresh()
	})
}

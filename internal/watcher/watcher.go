// Package watcher reacts to external changes under books/ by scheduling a
// library rescan, so books dropped into the directory by hand show up
// without waiting for the cron pass.
package watcher

import (
	"context"
	"log"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/openshelf/bookreader/internal/library"
)

// debounce batches bursts of filesystem events (a large copy emits many)
// into a single rescan.
const debounce = 2 * time.Second

// Watcher triggers library rescans from filesystem events.
type Watcher struct {
	lib *library.Store
	fsw *fsnotify.Watcher
}

// New starts watching the books directory under the active storage root.
func New(lib *library.Store, booksDir string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(booksDir); err != nil {
		fsw.Close()
		return nil, err
	}
	return &Watcher{lib: lib, fsw: fsw}, nil
}

// Run consumes events until ctx is cancelled. Call in a goroutine.
func (w *Watcher) Run(ctx context.Context) {
	var timer *time.Timer
	fire := make(chan struct{}, 1)

	schedule := func() {
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(debounce, func() {
			select {
			case fire <- struct{}{}:
			default:
			}
		})
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				schedule()
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Printf("WARNING: filesystem watcher: %v", err)
		case <-fire:
			if err := w.lib.Rescan(ctx); err != nil {
				log.Printf("WARNING: watcher-triggered rescan failed: %v", err)
			}
		}
	}
}

// Close stops the underlying filesystem watcher.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

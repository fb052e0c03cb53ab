// Package watcher feeds live filesystem notifications into the event
// pipeline. A single goroutine owns the fsnotify backend and is the only
// producer on the outbound channel, so consumers see events in the order
// the watcher observed them.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"tidywatch/events"
	"tidywatch/logger"
	"tidywatch/utils"
)

// renameWindow bounds how long a rename-from waits for its matching create
// before decaying into a plain removal.
const renameWindow = 500 * time.Millisecond

type Watcher struct {
	fsw   *fsnotify.Watcher
	out   chan<- events.Event
	guard *utils.PathGuard

	pendingRename string
	renameTimer   *time.Timer
}

// New registers all dirs (recursively) with the OS watcher. Emitted events
// are delivered on out.
func New(dirs []string, out chan<- events.Event) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}

	w := &Watcher{
		fsw:   fsw,
		out:   out,
		guard: utils.NewPathGuard(dirs),
	}
	for _, dir := range dirs {
		if err := w.watchRecursive(dir); err != nil {
			fsw.Close()
			return nil, fmt.Errorf("watching %s: %w", dir, err)
		}
	}
	return w, nil
}

// Run drains the OS notification stream until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	defer w.fsw.Close()

	expired := make(chan struct{}, 1)
	for {
		select {
		case <-ctx.Done():
			w.flushPendingRename()
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				w.flushPendingRename()
				return
			}
			w.dispatch(event, expired)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				w.flushPendingRename()
				return
			}
			logger.Errorf("Watcher backend error: %v", err)
		case <-expired:
			w.flushPendingRename()
		}
	}
}

func (w *Watcher) dispatch(event fsnotify.Event, expired chan<- struct{}) {
	path := event.Name
	if !w.guard.Contains(path) {
		return
	}

	switch {
	case event.Op.Has(fsnotify.Create):
		w.handleCreate(path)
	case event.Op.Has(fsnotify.Remove):
		w.flushPendingRename()
		w.emit(events.Event{Action: events.Removed, Path: path})
	case event.Op.Has(fsnotify.Rename):
		w.flushPendingRename()
		w.pendingRename = path
		w.renameTimer = time.AfterFunc(renameWindow, func() {
			select {
			case expired <- struct{}{}:
			default:
			}
		})
	case event.Op.Has(fsnotify.Write):
		if isDir(path) {
			return
		}
		w.emit(events.Event{Action: events.ContentChanged, Path: path})
	case event.Op.Has(fsnotify.Chmod):
		if isDir(path) {
			return
		}
		w.emit(events.Event{Action: events.MetadataChanged, Path: path})
	}
}

func (w *Watcher) handleCreate(path string) {
	if w.pendingRename != "" {
		from := w.pendingRename
		w.clearPendingRename()
		if isDir(path) {
			w.registerNewDir(path)
			return
		}
		w.emit(events.Event{Action: events.Renamed, Path: from, NewPath: path})
		return
	}

	if isDir(path) {
		w.registerNewDir(path)
		return
	}
	w.emit(events.Event{Action: events.Created, Path: path})
}

// registerNewDir watches a directory created after startup and surfaces the
// files already inside it, which the OS will not announce separately.
func (w *Watcher) registerNewDir(dir string) {
	if err := w.watchRecursive(dir); err != nil {
		logger.Errorf("Failed to watch new directory %s: %v", dir, err)
		return
	}
	err := filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if entry.Type().IsRegular() {
			w.emit(events.Event{Action: events.Created, Path: path})
		}
		return nil
	})
	if err != nil {
		logger.Warnf("Failed to enumerate new directory %s: %v", dir, err)
	}
}

// flushPendingRename turns an uncorrelated rename-from into a removal: the
// file left the watched roots or the matching create never arrived.
func (w *Watcher) flushPendingRename() {
	if w.pendingRename == "" {
		return
	}
	path := w.pendingRename
	w.clearPendingRename()
	w.emit(events.Event{Action: events.Removed, Path: path})
}

func (w *Watcher) clearPendingRename() {
	w.pendingRename = ""
	if w.renameTimer != nil {
		w.renameTimer.Stop()
		w.renameTimer = nil
	}
}

func (w *Watcher) emit(event events.Event) {
	w.out <- event
}

func (w *Watcher) watchRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			logger.Warnf("Skipping unreadable path %s: %v", path, err)
			return nil
		}
		if entry.IsDir() {
			if err := w.fsw.Add(path); err != nil {
				return fmt.Errorf("adding %s: %w", path, err)
			}
		}
		return nil
	})
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

package serial

import (
	"context"
	"fmt"

	"github.com/fsnotify/fsnotify"
)

// DeviceWatch watches a FileDevice's backing path for external writes
// or removal between Engine sessions, invoking onChanged once per
// detected event (spec.md §5's single-writer assumption means any
// change seen here came from outside this process). Grounded on
// cmd/bd's FileWatcher: a single fsnotify.Watcher on the file itself,
// read until ctx is cancelled or the watcher is closed.
type DeviceWatch struct {
	watcher *fsnotify.Watcher
}

// NewDeviceWatch starts watching path. Call Run to begin delivering
// events and Close when done.
func NewDeviceWatch(path string) (*DeviceWatch, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("serial: creating device watcher: %w", err)
	}
	if err := watcher.Add(path); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("serial: watching %s: %w", path, err)
	}
	return &DeviceWatch{watcher: watcher}, nil
}

// Run blocks, delivering events to onChanged until ctx is cancelled.
func (dw *DeviceWatch) Run(ctx context.Context, onChanged func(fsnotify.Event)) {
	for {
		select {
		case event, ok := <-dw.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				onChanged(event)
			}
		case <-ctx.Done():
			return
		}
	}
}

// Close stops watching and releases the underlying inotify handle.
func (dw *DeviceWatch) Close() error {
	return dw.watcher.Close()
}

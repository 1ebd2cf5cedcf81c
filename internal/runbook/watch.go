package runbook

import (
	"log/slog"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Registry holds the currently active Runbook and keeps it live-reloadable:
// a write/rename event on the source file triggers a reload attempt. A
// reload that fails validation is rejected and the previous good
// definitions stay in effect, per the template-error recovery policy.
type Registry struct {
	mu      sync.RWMutex
	path    string
	current Runbook
	watcher *fsnotify.Watcher
}

// NewRegistry loads path once and returns a Registry serving it.
func NewRegistry(path string) (*Registry, error) {
	rb, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	return &Registry{path: path, current: rb}, nil
}

// Current returns the most recently accepted Runbook.
func (r *Registry) Current() Runbook {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// Watch starts an fsnotify watch on the registry's source file. Reload
// failures are logged and do not replace Current; the watcher runs until
// stop is closed.
func (r *Registry) Watch(stop <-chan struct{}) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(r.path); err != nil {
		w.Close()
		return err
	}
	r.watcher = w

	go func() {
		defer w.Close()
		for {
			select {
			case <-stop:
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				r.reload()
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				slog.Warn("runbook: watch error", "error", err)
			}
		}
	}()
	return nil
}

func (r *Registry) reload() {
	rb, err := LoadFile(r.path)
	if err != nil {
		slog.Error("runbook: reload rejected, keeping last good definitions", "path", r.path, "error", err)
		return
	}
	r.mu.Lock()
	r.current = rb
	r.mu.Unlock()
	slog.Info("runbook: reloaded", "path", r.path)
}

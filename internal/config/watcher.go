package config

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"reins/internal/api"
	"reins/pkg/logging"
)

const debounceInterval = 500 * time.Millisecond

// Watcher reloads the config file when it changes and hands the parsed
// result to the callback. Editors replace files through rename dances,
// so the watch covers the containing directory and filters by name.
type Watcher struct {
	path     string
	onChange func(Config)
	watcher  *fsnotify.Watcher

	mu      sync.Mutex
	pending *time.Timer
	done    chan struct{}
	closed  bool
}

// NewWatcher starts watching the config file. The callback runs on the
// watcher goroutine; keep it quick.
func NewWatcher(path string, onChange func(Config)) (*Watcher, error) {
	if onChange == nil {
		return nil, api.NewValidationError("config watcher requires a callback")
	}
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, api.NewOperationError("failed to create file watcher", err)
	}
	if err := fsWatcher.Add(filepath.Dir(path)); err != nil {
		fsWatcher.Close()
		return nil, api.NewOperationError("failed to watch config directory", err)
	}

	w := &Watcher{
		path:     path,
		onChange: onChange,
		watcher:  fsWatcher,
		done:     make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	if w.pending != nil {
		w.pending.Stop()
	}
	w.mu.Unlock()

	close(w.done)
	return w.watcher.Close()
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.scheduleReload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Warn("Config", "Watcher error: %v", err)
		}
	}
}

// scheduleReload debounces rapid successive writes into one reload.
func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	if w.pending != nil {
		w.pending.Stop()
	}
	w.pending = time.AfterFunc(debounceInterval, w.reload)
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		logging.Warn("Config", "Ignoring config reload: %v", err)
		return
	}
	logging.Info("Config", "Reloaded %s", w.path)
	w.onChange(cfg)
}

package config

import (
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher watches a configuration file and notifies handlers when it
// changes. The config is loaded fresh on each change so handlers never
// receive stale data. Editors replace files on save, so the parent
// directory is watched and events are filtered by name.
type Watcher struct {
	path     string
	debounce time.Duration
	logger   *slog.Logger

	mu       sync.Mutex
	handlers []func(Config)
	timer    *time.Timer

	fw   *fsnotify.Watcher
	done chan struct{}
}

// NewWatcher creates a config file watcher. Call Start to begin watching.
func NewWatcher(path string, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		path:     path,
		debounce: 1500 * time.Millisecond,
		logger:   logger.With("component", "config.watcher"),
		done:     make(chan struct{}),
	}
}

// OnReload registers a handler called with the freshly loaded config
// after every debounced file change.
func (w *Watcher) OnReload(fn func(Config)) {
	w.mu.Lock()
	w.handlers = append(w.handlers, fn)
	w.mu.Unlock()
}

// Start begins watching the config file's directory.
func (w *Watcher) Start() error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.fw = fw

	dir := filepath.Dir(w.path)
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return err
	}

	go w.loop()
	w.logger.Info("watching config file", "path", w.path)
	return nil
}

func (w *Watcher) loop() {
	target := filepath.Clean(w.path)
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.scheduleReload()
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watch error", "error", err)
		}
	}
}

// scheduleReload debounces bursts of events from editors and atomic saves.
func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.logger.Warn("config reload failed, keeping previous", "error", err)
		return
	}

	w.mu.Lock()
	handlers := make([]func(Config), len(w.handlers))
	copy(handlers, w.handlers)
	w.mu.Unlock()

	w.logger.Info("config reloaded", "path", w.path)
	for _, fn := range handlers {
		fn(cfg)
	}
}

// Stop halts watching. Safe to call once.
func (w *Watcher) Stop() {
	close(w.done)
	if w.fw != nil {
		w.fw.Close()
	}
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
}

package config

import (
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/twistedxcom/termscope/internal/logging"
	"github.com/twistedxcom/termscope/internal/platform"
)

var cfgLog = logging.ForComponent(logging.CompConfig)

// Watcher reloads the config file when it changes on disk. Editors
// write via rename, so the parent directory is watched rather than the
// file itself.
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	onChange func(*Config)
	debounce time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once

	mu        sync.Mutex
	lastEvent time.Time
}

// NewWatcher creates a watcher for the config file at path. onChange
// receives the freshly loaded config after each settled change.
func NewWatcher(path string, onChange func(*Config)) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		path:     path,
		watcher:  fsWatcher,
		onChange: onChange,
		debounce: 200 * time.Millisecond,
		stopCh:   make(chan struct{}),
	}, nil
}

// Start begins watching. The config directory must exist.
func (w *Watcher) Start() error {
	if warning := platform.CheckFsnotifySupport(w.path); warning != "" {
		cfgLog.Warn("watch_unreliable", slog.String("reason", warning))
	}
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return err
	}
	go w.watchLoop()
	return nil
}

// Stop ends the watch. Safe to call more than once.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.stopCh)
		err = w.watcher.Close()
	})
	return err
}

func (w *Watcher) watchLoop() {
	var debounceTimer *time.Timer

	for {
		select {
		case <-w.stopCh:
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filepath.Base(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}

			w.mu.Lock()
			w.lastEvent = time.Now()
			w.mu.Unlock()

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(w.debounce, w.fire)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			cfgLog.Warn("watch_error", slog.String("error", err.Error()))
		}
	}
}

func (w *Watcher) fire() {
	w.mu.Lock()
	elapsed := time.Since(w.lastEvent)
	w.mu.Unlock()
	if elapsed < w.debounce {
		return
	}

	cfg, err := Load(w.path)
	if err != nil {
		cfgLog.Warn("reload_failed", slog.String("error", err.Error()))
		return
	}
	cfgLog.Info("config_reloaded", slog.String("path", w.path))
	w.onChange(cfg)
}

// SetDebounce overrides the settle window, for tests.
func (w *Watcher) SetDebounce(d time.Duration) {
	w.debounce = d
}

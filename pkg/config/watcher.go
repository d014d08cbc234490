package config

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// DefaultDebounceInterval is how long the watcher waits after the last file
// change before reloading. Editors and config management tools often write a
// file several times in quick succession.
const DefaultDebounceInterval = 500 * time.Millisecond

// Watcher reloads a configuration file when it changes on disk. Reloads that
// fail to parse or validate are logged and dropped; the previous
// configuration stays in effect.
type Watcher struct {
	mu sync.Mutex

	path     string
	onReload func(*Config)
	logger   zerolog.Logger

	fsWatcher *fsnotify.Watcher
	stopCh    chan struct{}
	running   bool

	debounceMu    sync.Mutex
	debounceTimer *time.Timer
}

// NewWatcher creates a watcher for the given config file. onReload is called
// with each successfully loaded configuration.
func NewWatcher(path string, logger zerolog.Logger, onReload func(*Config)) *Watcher {
	return &Watcher{
		path:     path,
		onReload: onReload,
		logger:   logger.With().Str("component", "config_watcher").Logger(),
	}
}

// Start begins watching the config file's directory. Watching the directory
// instead of the file keeps the watch alive across rename-based atomic
// writes.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return nil
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	dir := filepath.Dir(w.path)
	if err := fsWatcher.Add(dir); err != nil {
		fsWatcher.Close()
		return err
	}

	w.fsWatcher = fsWatcher
	w.stopCh = make(chan struct{})
	w.running = true

	go w.processEvents(fsWatcher.Events, fsWatcher.Errors)

	w.logger.Info().Str("path", w.path).Msg("Watching config file for changes")
	return nil
}

// processEvents handles fsnotify events. The channels are passed as
// parameters to avoid racing with Stop.
func (w *Watcher) processEvents(eventsCh <-chan fsnotify.Event, errorsCh <-chan error) {
	for {
		select {
		case <-w.stopCh:
			return

		case event, ok := <-eventsCh:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-errorsCh:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msg("Config watch error")
		}
	}
}

// handleEvent filters events down to writes of the watched file.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != filepath.Clean(w.path) {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return
	}

	w.logger.Debug().Str("op", event.Op.String()).Msg("Config file changed")
	w.triggerReloadDebounced()
}

// triggerReloadDebounced schedules a reload after the debounce interval,
// resetting the timer on each change.
func (w *Watcher) triggerReloadDebounced() {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}

	w.debounceTimer = time.AfterFunc(DefaultDebounceInterval, w.reload)
}

// reload loads the file and hands the result to the callback.
func (w *Watcher) reload() {
	w.mu.Lock()
	running := w.running
	w.mu.Unlock()
	if !running {
		return
	}

	cfg, err := Load(w.path)
	if err != nil {
		w.logger.Error().Err(err).Msg("Config reload failed, keeping previous configuration")
		return
	}

	w.logger.Info().Msg("Config reloaded")
	if w.onReload != nil {
		w.onReload(cfg)
	}
}

// Stop stops the watcher.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return nil
	}

	w.running = false
	close(w.stopCh)

	w.debounceMu.Lock()
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
		w.debounceTimer = nil
	}
	w.debounceMu.Unlock()

	if w.fsWatcher != nil {
		if err := w.fsWatcher.Close(); err != nil {
			w.logger.Warn().Err(err).Msg("Error closing fsnotify watcher")
		}
		w.fsWatcher = nil
	}

	return nil
}

// IsRunning reports whether the watcher is active.
func (w *Watcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

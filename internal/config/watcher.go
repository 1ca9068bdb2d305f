package config

import (
	"log/slog"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"

	"github.com/marketpipe/marketpipe/internal/logging"
)

// Watcher holds the active IngestionConfiguration and refreshes it from disk
// when its backing file changes, using the same fsnotify-based hot-reload
// discipline this codebase applies elsewhere to on-disk assets. Reloads
// only ever affect the *next* dispatched job: the schedule command reads
// Current() once per tick, before the job is built, never mid-job.
type Watcher struct {
	store  *Store
	logger *slog.Logger

	current atomic.Pointer[IngestionConfiguration]

	watcher *fsnotify.Watcher
	stop    chan struct{}
}

// NewWatcher loads the initial configuration from store and starts watching
// its file for changes. The returned Watcher must be closed with Stop.
func NewWatcher(store *Store, logger *slog.Logger) (*Watcher, error) {
	w := &Watcher{
		store:  store,
		logger: logging.Default(logger).With("component", "config"),
	}

	cfg, err := store.Load()
	if err != nil {
		return nil, err
	}
	w.current.Store(&cfg)

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Watch the containing directory, not the file itself: Save replaces
	// the file via rename, which would otherwise orphan a watch held on
	// the old inode. A directory watch survives that and every event is
	// filtered down to the one path we care about.
	if err := fw.Add(filepath.Dir(store.Path)); err != nil {
		fw.Close()
		return nil, err
	}
	w.watcher = fw
	w.stop = make(chan struct{})

	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	for {
		select {
		case <-w.stop:
			return
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", "error", err)
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Name != w.store.Path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.reload()
		}
	}
}

// reload re-reads the config file. A failing reload is logged and leaves
// Current() pointing at the last good configuration, so an in-progress
// edit that briefly produces invalid JSON never blocks ingestion.
func (w *Watcher) reload() {
	cfg, err := w.store.Load()
	if err != nil {
		w.logger.Warn("config reload failed, keeping previous configuration", "error", err)
		return
	}
	if prev := w.current.Load(); prev != nil && prev.Equal(cfg) {
		return
	}
	w.current.Store(&cfg)
	w.logger.Info("configuration reloaded", "provider", cfg.Provider, "symbols", len(cfg.Symbols))
}

// Current returns the most recently loaded configuration.
func (w *Watcher) Current() IngestionConfiguration {
	return *w.current.Load()
}

// Stop stops watching and releases the underlying fsnotify watcher.
func (w *Watcher) Stop() error {
	close(w.stop)
	return w.watcher.Close()
}

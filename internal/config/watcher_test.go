package config_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/marketpipe/marketpipe/internal/config"
)

func TestWatcher_CurrentReflectsInitialLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "marketpipe.json")
	store := config.NewStore(path)
	cfg, err := config.New(validFields())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := store.Save(cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}

	w, err := config.NewWatcher(store, nil)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	if !w.Current().Equal(cfg) {
		t.Fatalf("Current() = %+v, want %+v", w.Current(), cfg)
	}
}

func TestWatcher_ReloadsOnFileChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "marketpipe.json")
	store := config.NewStore(path)
	initial, err := config.New(validFields())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := store.Save(initial); err != nil {
		t.Fatalf("Save: %v", err)
	}

	w, err := config.NewWatcher(store, nil)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	f := validFields()
	f.Workers = 16
	updated, err := config.New(f)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := store.Save(updated); err != nil {
		t.Fatalf("Save: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if w.Current().Workers == 16 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Current() never picked up the reloaded config, still %+v", w.Current())
}

func TestWatcher_StopReleasesWatcherWithoutError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "marketpipe.json")
	store := config.NewStore(path)
	cfg, err := config.New(validFields())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := store.Save(cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}

	w, err := config.NewWatcher(store, nil)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	if err := w.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

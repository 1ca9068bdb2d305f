package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/marketpipe/marketpipe/internal/pipelineerr"
)

// envelope is the versioned wrapper persisted to disk, matching spec §6's
// `{"version": N, "config": {...}}` shape.
type envelope struct {
	Version int             `json:"version"`
	Config  json.RawMessage `json:"config"`
}

// Store loads and atomically persists a single IngestionConfiguration record
// at Path. Unlike the teacher's multi-entity config store, there is exactly
// one record here: ingestion has one active configuration at a time.
type Store struct {
	Path string
}

// NewStore returns a Store backed by the JSON file at path.
func NewStore(path string) *Store {
	return &Store{Path: path}
}

// Load reads and validates the configuration envelope. An empty or
// non-JSON file is rejected as a malformed envelope. A version of 0 (the
// field absent) is rejected with
// instructions to write one; a version greater than CurrentVersion fails
// outright (unsupported); a version below CurrentVersion is accepted as-is
// since there is, as yet, no older schema to migrate from.
func (s *Store) Load() (IngestionConfiguration, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return IngestionConfiguration{}, fmt.Errorf("config: read %s: %w", s.Path, err)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return IngestionConfiguration{}, pipelineerr.Wrap(pipelineerr.KindConfiguration, "malformed config envelope", err)
	}

	if env.Version == 0 {
		return IngestionConfiguration{}, pipelineerr.New(pipelineerr.KindConfiguration,
			fmt.Sprintf("config at %s has no version field; write one with config_version=%d", s.Path, CurrentVersion))
	}
	if env.Version > CurrentVersion {
		return IngestionConfiguration{}, pipelineerr.New(pipelineerr.KindConfiguration,
			fmt.Sprintf("config version %d is newer than supported (max %d)", env.Version, CurrentVersion))
	}

	var fields Fields
	if err := json.Unmarshal(env.Config, &fields); err != nil {
		return IngestionConfiguration{}, pipelineerr.Wrap(pipelineerr.KindConfiguration, "malformed config record", err)
	}
	fields.ConfigVersion = env.Version

	cfg, err := New(fields)
	if err != nil {
		return IngestionConfiguration{}, err
	}
	return cfg, nil
}

// Save writes cfg atomically: encode to a temp file beside Path, check that
// the encoded envelope parses back as JSON, then rename over Path. The
// record's field ranges are not re-validated here. A reader never observes
// a partially written or unparsable file.
func (s *Store) Save(cfg IngestionConfiguration) error {
	if cfg.ConfigVersion == 0 {
		cfg.ConfigVersion = CurrentVersion
	}
	configJSON, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshal record: %w", err)
	}
	env := envelope{Version: cfg.ConfigVersion, Config: configJSON}
	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return fmt.Errorf("config: marshal envelope: %w", err)
	}

	dir := filepath.Dir(s.Path)
	tmp := s.Path + ".tmp"
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("config: create %s: %w", dir, err)
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("config: write temp file: %w", err)
	}

	var roundTrip envelope
	if err := json.Unmarshal(data, &roundTrip); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("config: round-trip validate: %w", err)
	}

	if err := os.Rename(tmp, s.Path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("config: rename into place: %w", err)
	}
	return nil
}

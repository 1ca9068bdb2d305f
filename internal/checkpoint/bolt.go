package checkpoint

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"time"

	"go.etcd.io/bbolt"

	"github.com/marketpipe/marketpipe/internal/bar"
)

var checkpointsBucket = []byte("checkpoints")

// recordSize is lastTsNs (8 bytes) followed by updatedAtUnixNano (8 bytes).
const recordSize = 16

// BoltStore is a Store backed by a single bbolt file. bbolt serialises
// writes internally via its single read-write transaction, which is what
// lets Save calls from different symbols interleave safely without the
// caller doing any locking of its own.
type BoltStore struct {
	db  *bbolt.DB
	now func() time.Time
}

// OpenBoltStore opens (creating if necessary) a bbolt-backed checkpoint store.
func OpenBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: open %s: %w", path, err)
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(checkpointsBucket)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("checkpoint: create bucket: %w", err)
	}
	return &BoltStore{db: db, now: time.Now}, nil
}

// SetClock overrides the clock used to stamp each Save's updatedAt, for
// deterministic retention tests.
func (s *BoltStore) SetClock(now func() time.Time) {
	s.now = now
}

// Save advances the checkpoint for (symbol, day), rejecting a regression.
func (s *BoltStore) Save(_ context.Context, symbol bar.Symbol, day bar.TradingDate, lastTsNs int64) error {
	k := []byte(key(symbol, day))
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(checkpointsBucket)
		if existing := b.Get(k); existing != nil {
			if int64(binary.BigEndian.Uint64(existing[:8])) > lastTsNs {
				return ErrRegression
			}
		}
		return b.Put(k, encodeRecord(lastTsNs, s.now().UnixNano()))
	})
}

// Get returns the stored checkpoint for (symbol, day), if any.
func (s *BoltStore) Get(_ context.Context, symbol bar.Symbol, day bar.TradingDate) (int64, bool, error) {
	k := []byte(key(symbol, day))
	var ts int64
	var ok bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(checkpointsBucket).Get(k)
		if v == nil {
			return nil
		}
		ts = int64(binary.BigEndian.Uint64(v[:8]))
		ok = true
		return nil
	})
	return ts, ok, err
}

// PruneOlderThan removes checkpoint rows whose last Save predates cutoff.
func (s *BoltStore) PruneOlderThan(_ context.Context, cutoff time.Time, dryRun bool) ([]string, error) {
	var removed []string
	cutoffNs := cutoff.UnixNano()

	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(checkpointsBucket)
		var stale [][]byte
		if err := b.ForEach(func(k, v []byte) error {
			updatedAt := int64(binary.BigEndian.Uint64(v[8:16]))
			if updatedAt < cutoffNs {
				removed = append(removed, string(k))
				stale = append(stale, append([]byte{}, k...))
			}
			return nil
		}); err != nil {
			return err
		}
		if dryRun {
			return nil
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	return removed, err
}

// Compact rewrites the underlying bbolt file into a fresh one with its free
// pages reclaimed, then atomically replaces the original. bbolt never
// shrinks its file on its own as keys are deleted, so a retention sweep
// that prunes many rows needs this to actually free disk space.
func (s *BoltStore) Compact(_ context.Context) error {
	path := s.db.Path()
	tmpPath := path + ".compact.tmp"
	_ = os.Remove(tmpPath)

	dst, err := bbolt.Open(tmpPath, 0o600, nil)
	if err != nil {
		return fmt.Errorf("checkpoint: open compaction target: %w", err)
	}

	err = s.db.View(func(tx *bbolt.Tx) error {
		return dst.Update(func(dtx *bbolt.Tx) error {
			db, err := dtx.CreateBucketIfNotExists(checkpointsBucket)
			if err != nil {
				return err
			}
			return tx.Bucket(checkpointsBucket).ForEach(func(k, v []byte) error {
				return db.Put(append([]byte{}, k...), append([]byte{}, v...))
			})
		})
	})
	if closeErr := dst.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("checkpoint: compact: %w", err)
	}

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("checkpoint: close before compaction swap: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("checkpoint: swap compacted file: %w", err)
	}

	reopened, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return fmt.Errorf("checkpoint: reopen after compaction: %w", err)
	}
	s.db = reopened
	return nil
}

// Close releases the underlying bbolt file handle.
func (s *BoltStore) Close() error { return s.db.Close() }

func encodeRecord(lastTsNs, updatedAtNs int64) []byte {
	var v [recordSize]byte
	binary.BigEndian.PutUint64(v[:8], uint64(lastTsNs))
	binary.BigEndian.PutUint64(v[8:16], uint64(updatedAtNs))
	return v[:]
}

var _ Store = (*BoltStore)(nil)
var _ Pruner = (*BoltStore)(nil)

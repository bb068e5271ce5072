// Package store is the persisted layer of the catalog snapshot cache:
// gzip-compressed JSON files, one per (library, kind) key, written
// atomically so a crash mid-write can never corrupt a previously good
// snapshot. It backs the in-memory layer for large, slow-changing kinds so
// a restart does not cost a full catalog re-fetch.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/renameio/v2"
	"github.com/klauspost/compress/gzip"

	"teleloop/work/types"
	"teleloop/work/utils"
)

// schemaVersion guards the on-disk shape. A mismatch on load is treated as
// a cache miss, never an error: the snapshot is simply re-fetched.
const schemaVersion = 1

// Envelope is the serialized per-key cache entry.
type Envelope struct {
	SchemaVersion int               `json:"schemaVersion"` // On-disk shape version
	FetchedAt     time.Time         `json:"fetchedAt"`     // When the snapshot was fetched from the server
	ItemCount     int               `json:"itemCount"`     // len(Items), kept explicit for quick inspection
	Key           string            `json:"key"`           // The (library, kind) key this entry belongs to
	Items         []types.MediaItem `json:"items"`         // The snapshot payload
}

// Store persists snapshots as gzip JSON files under a single directory.
type Store struct {
	dir string
}

// New creates the snapshot directory if needed and returns a store rooted
// there.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) path(key string) string {
	return filepath.Join(s.dir, utils.SanitizeKey(key)+".json.gz")
}

// Save writes a snapshot atomically: the gzip JSON is written to a temp file
// and renamed into place, so readers only ever observe complete entries.
func (s *Store) Save(key string, items []types.MediaItem, fetchedAt time.Time) error {
	env := Envelope{
		SchemaVersion: schemaVersion,
		FetchedAt:     fetchedAt,
		ItemCount:     len(items),
		Key:           key,
		Items:         items,
	}

	t, err := renameio.TempFile("", s.path(key))
	if err != nil {
		return fmt.Errorf("failed to create temp snapshot file: %w", err)
	}
	defer t.Cleanup()

	gz, err := gzip.NewWriterLevel(t, gzip.BestSpeed)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(gz).Encode(env); err != nil {
		return fmt.Errorf("failed to encode snapshot %s: %w", key, err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("failed to finish snapshot %s: %w", key, err)
	}

	return t.CloseAtomicallyReplace()
}

// Load reads the persisted snapshot for a key. A missing file, an
// unreadable entry, or a schema mismatch all report a miss (ok=false) with
// a nil error; only genuine I/O trouble on an existing file surfaces.
func (s *Store) Load(key string) (Envelope, bool, error) {
	f, err := os.Open(s.path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Envelope{}, false, nil
		}
		return Envelope{}, false, err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		// Corrupt or truncated entry; treat as a miss and let the caller
		// re-fetch over it.
		return Envelope{}, false, nil
	}
	defer gz.Close()

	var env Envelope
	if err := json.NewDecoder(gz).Decode(&env); err != nil {
		return Envelope{}, false, nil
	}
	if env.SchemaVersion != schemaVersion {
		return Envelope{}, false, nil
	}
	return env, true, nil
}

// Delete removes the persisted snapshot for a key, ignoring absence.
func (s *Store) Delete(key string) error {
	err := os.Remove(s.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// Keys lists every persisted snapshot key currently on disk.
func (s *Store) Keys() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	var keys []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if filepath.Ext(name) != ".gz" {
			continue
		}
		env, ok, err := s.Load(name[:len(name)-len(".json.gz")])
		if err != nil || !ok {
			continue
		}
		keys = append(keys, env.Key)
	}
	return keys, nil
}

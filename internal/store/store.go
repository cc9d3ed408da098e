// ABOUTME: Durable JSON snapshot of the board, rewritten on every commit
// ABOUTME: Loads fail open to an empty board when the snapshot is unreadable

package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/2389/corkboard/internal/board"
)

// Snapshot is the persisted document: every item plus the display order.
type Snapshot struct {
	Items []*board.Item `json:"items"`
	Order []int64       `json:"order"`
}

// SnapshotStore persists the board as a single JSON document at a fixed
// path. Save rewrites the whole file through a temp file and atomic
// rename, so a crash mid-write leaves the previous snapshot intact.
type SnapshotStore struct {
	path   string
	logger *slog.Logger
}

// NewSnapshotStore creates a store writing to path. Pass nil logger for
// the default.
func NewSnapshotStore(path string, logger *slog.Logger) *SnapshotStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &SnapshotStore{
		path:   path,
		logger: logger.With("component", "store"),
	}
}

// Load reads the snapshot from disk. A missing file is a normal first
// boot and returns an empty snapshot. A corrupt file is logged and also
// returns an empty snapshot: an unreadable snapshot must never prevent
// the server from starting.
func (s *SnapshotStore) Load() *Snapshot {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return &Snapshot{}
	}
	if err != nil {
		s.logger.Error("reading snapshot, starting with empty board", "path", s.path, "error", err)
		return &Snapshot{}
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		s.logger.Error("snapshot corrupt, starting with empty board", "path", s.path, "error", err)
		return &Snapshot{}
	}
	return &snap
}

// Save writes the snapshot atomically. The caller is responsible for
// calling Save after every committed mutation.
func (s *SnapshotStore) Save(snap *Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling snapshot: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating snapshot dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp snapshot: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("closing temp snapshot: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replacing snapshot: %w", err)
	}
	return nil
}

// Path returns the snapshot file path.
func (s *SnapshotStore) Path() string {
	return s.path
}

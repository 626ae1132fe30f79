// Package checkpoint provides durable run-state persistence keyed by a
// run identifier, enabling a loop run to resume after interruption.
//
// The file store writes snapshots via a temp-file-then-atomic-rename
// discipline so a partially written snapshot is never loadable. Missing
// or corrupt snapshots are reported as ErrNotFound, never as a fatal
// error; the caller decides whether to start fresh.
package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrNotFound is returned when no valid snapshot exists for a run id.
var ErrNotFound = errors.New("checkpoint not found")

// StateDirEnv overrides the default state directory (for testing).
const StateDirEnv = "RALPH_LOOP_STATE_DIR"

// DefaultStateDir is the state directory relative to the working tree.
const DefaultStateDir = ".ralph-loop"

// Snapshot is the persisted state of one loop run. All fields are
// primitives or containers of primitives so the wire format stays a
// plain JSON mapping.
type Snapshot struct {
	RunID     string           `json:"run_id"`
	State     string           `json:"state"`
	Iteration int              `json:"iteration"`
	Config    map[string]any   `json:"config"`
	History   []map[string]any `json:"history"`
	SavedAt   string           `json:"saved_at"`
}

// Store persists and retrieves run snapshots.
type Store interface {
	Save(runID string, snap Snapshot) error
	Load(runID string) (Snapshot, error)
}

// FileStore keeps one JSON file per run under a state directory.
type FileStore struct {
	dir string
}

// NewFileStore creates a store rooted at dir, or at the default state
// directory (honoring RALPH_LOOP_STATE_DIR) when dir is empty.
func NewFileStore(dir string) *FileStore {
	if dir == "" {
		dir = os.Getenv(StateDirEnv)
	}
	if dir == "" {
		dir = DefaultStateDir
	}
	return &FileStore{dir: dir}
}

// Dir returns the store's state directory.
func (s *FileStore) Dir() string { return s.dir }

func (s *FileStore) path(runID string) string {
	return filepath.Join(s.dir, runID+".json")
}

// Save persists the snapshot crash-safely: write to a temp file in the
// same directory, then rename over the final path.
func (s *FileStore) Save(runID string, snap Snapshot) error {
	if runID == "" {
		return fmt.Errorf("empty run id")
	}
	snap.RunID = runID
	// UTC keeps Latest's lexicographic SavedAt comparison valid across
	// offset changes.
	snap.SavedAt = time.Now().UTC().Format(time.RFC3339)

	data, err := json.MarshalIndent(snap, "", "    ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, runID+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close snapshot: %w", err)
	}

	if err := os.Rename(tmpPath, s.path(runID)); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}

// Load reads the snapshot for the run id. Missing or corrupt snapshots
// yield ErrNotFound.
func (s *FileStore) Load(runID string) (Snapshot, error) {
	data, err := os.ReadFile(s.path(runID))
	if err != nil {
		return Snapshot{}, ErrNotFound
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, ErrNotFound
	}
	if snap.RunID == "" {
		return Snapshot{}, ErrNotFound
	}
	return snap, nil
}

// Latest returns the most recently saved snapshot in the store, or
// ErrNotFound when the store is empty.
func (s *FileStore) Latest() (Snapshot, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return Snapshot{}, ErrNotFound
	}

	var latest Snapshot
	found := false
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		snap, err := s.Load(strings.TrimSuffix(name, ".json"))
		if err != nil {
			continue
		}
		if !found || snap.SavedAt > latest.SavedAt {
			latest = snap
			found = true
		}
	}
	if !found {
		return Snapshot{}, ErrNotFound
	}
	return latest, nil
}

// Delete removes the snapshot for the run id. Deleting a missing
// snapshot is not an error.
func (s *FileStore) Delete(runID string) error {
	err := os.Remove(s.path(runID))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

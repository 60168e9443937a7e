package adapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	m "covfold.dev/pkg/covfold/internal/model"
)

// SnapshotStore persists the accumulated coverage between merges and
// across processes. The JSON snapshot is the interchange format other
// tooling reads, so Save and Load must round-trip maps losslessly.
type SnapshotStore interface {
	// Save replaces the snapshot at path.
	Save(path m.Path, coverage m.CoverageMap) error

	// Load reads a snapshot back. Missing or unreadable files are errors
	// here; use LoadOrEmpty when an absent snapshot just means a fresh run.
	Load(path m.Path) (m.CoverageMap, error)

	// LoadOrEmpty reads a snapshot, degrading any failure to an empty
	// map so a run can always start.
	LoadOrEmpty(path m.Path) m.CoverageMap

	// LoadRaw reads a dump of raw script coverage, the format collectors
	// write before any conversion.
	LoadRaw(path m.Path) ([]m.RawScriptCoverage, error)

	// Remove deletes a snapshot. A snapshot that is already gone is not
	// an error.
	Remove(path m.Path) error

	// WriteSummary writes the run-end summary artifact.
	WriteSummary(path m.Path, summary m.RunSummary) error
}

// JSONSnapshotStore is the concrete SnapshotStore writing JSON snapshots
// and a YAML summary.
type JSONSnapshotStore struct{}

// NewJSONSnapshotStore constructs a JSONSnapshotStore.
func NewJSONSnapshotStore() *JSONSnapshotStore {
	return &JSONSnapshotStore{}
}

// Save implements SnapshotStore.
func (s *JSONSnapshotStore) Save(path m.Path, coverage m.CoverageMap) error {
	data, err := json.MarshalIndent(coverage, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(string(path)), 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	if err := os.WriteFile(string(path), data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}

	return nil
}

// Load implements SnapshotStore.
func (s *JSONSnapshotStore) Load(path m.Path) (m.CoverageMap, error) {
	data, err := os.ReadFile(string(path))
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	coverage := m.CoverageMap{}
	if err := json.Unmarshal(data, &coverage); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", path, err)
	}

	return coverage, nil
}

// LoadOrEmpty implements SnapshotStore.
func (s *JSONSnapshotStore) LoadOrEmpty(path m.Path) m.CoverageMap {
	coverage, err := s.Load(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			slog.Warn("starting with empty coverage, snapshot unusable", "path", path, "error", err)
		}

		return m.CoverageMap{}
	}

	return coverage
}

// LoadRaw implements SnapshotStore.
func (s *JSONSnapshotStore) LoadRaw(path m.Path) ([]m.RawScriptCoverage, error) {
	data, err := os.ReadFile(string(path))
	if err != nil {
		return nil, fmt.Errorf("read raw dump: %w", err)
	}

	var raw []m.RawScriptCoverage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode raw dump %s: %w", path, err)
	}

	return raw, nil
}

// Remove implements SnapshotStore.
func (s *JSONSnapshotStore) Remove(path m.Path) error {
	if err := os.Remove(string(path)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove snapshot: %w", err)
	}

	return nil
}

// WriteSummary implements SnapshotStore.
func (s *JSONSnapshotStore) WriteSummary(path m.Path, summary m.RunSummary) error {
	data, err := yaml.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(string(path)), 0o755); err != nil {
		return fmt.Errorf("create summary dir: %w", err)
	}

	if err := os.WriteFile(string(path), data, 0o644); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}

	return nil
}

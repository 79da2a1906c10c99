// Package history persists run summaries so past results can be compared.
//
// The store is an explicitly injected collaborator: the engine itself holds
// no filesystem state, and the caller decides where (or whether) runs are
// kept.
package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/devstress/devstress/internal/metrics"
)

// Store keeps one JSON file per run under a caller-chosen directory.
type Store struct {
	dir string
}

// NewStore opens (creating if needed) a history store at dir.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Save persists a summary under its run ID and returns the file path.
func (s *Store) Save(summary *metrics.Summary) (string, error) {
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal summary: %w", err)
	}

	path := filepath.Join(s.dir, summary.RunID+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write summary: %w", err)
	}
	return path, nil
}

// Load reads one stored summary by run ID.
func (s *Store) Load(runID string) (*metrics.Summary, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, runID+".json"))
	if err != nil {
		return nil, fmt.Errorf("failed to read summary %s: %w", runID, err)
	}

	var summary metrics.Summary
	if err := json.Unmarshal(data, &summary); err != nil {
		return nil, fmt.Errorf("failed to decode summary %s: %w", runID, err)
	}
	return &summary, nil
}

// List returns all stored summaries, newest first.
func (s *Store) List() ([]*metrics.Summary, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}

	var summaries []*metrics.Summary
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		summary, err := s.Load(strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			// A corrupt entry shouldn't hide the rest of the history.
			continue
		}
		summaries = append(summaries, summary)
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].StartTime.After(summaries[j].StartTime)
	})
	return summaries, nil
}

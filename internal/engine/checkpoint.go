package engine

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// CheckpointManager saves and loads run state so an interrupted crawl can
// resume where it stopped.
type CheckpointManager struct {
	path string
}

// CategoryProgress is the resume point of one category.
type CategoryProgress struct {
	NextPage int  `json:"next_page"`
	Done     bool `json:"done"`
}

// checkpointData is the serializable run state.
type checkpointData struct {
	Timestamp  time.Time                   `json:"timestamp"`
	Visited    []string                    `json:"visited"`
	Categories map[string]CategoryProgress `json:"categories"`
	Stats      StatsSnapshot               `json:"stats"`
}

// NewCheckpointManager creates a CheckpointManager writing to path.
func NewCheckpointManager(path string) *CheckpointManager {
	return &CheckpointManager{path: path}
}

// Path returns the checkpoint file location.
func (cm *CheckpointManager) Path() string { return cm.path }

// Save serializes the run state to disk.
func (cm *CheckpointManager) Save(visited *VisitedSet, progress map[string]CategoryProgress, stats *Stats) error {
	if err := os.MkdirAll(filepath.Dir(cm.path), 0o755); err != nil {
		return fmt.Errorf("create checkpoint dir: %w", err)
	}

	data := checkpointData{
		Timestamp:  time.Now(),
		Visited:    visited.Export(),
		Categories: progress,
		Stats:      stats.Snapshot(),
	}

	// Write to temp file, then rename (atomic write)
	tmpPath := cm.path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create checkpoint file: %w", err)
	}

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		f.Close()
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close checkpoint file: %w", err)
	}

	if err := os.Rename(tmpPath, cm.path); err != nil {
		return fmt.Errorf("rename checkpoint file: %w", err)
	}
	return nil
}

// Load restores the visited set and counters and returns per-category
// progress. A missing checkpoint yields empty progress.
func (cm *CheckpointManager) Load(visited *VisitedSet, stats *Stats) (map[string]CategoryProgress, error) {
	f, err := os.Open(cm.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]CategoryProgress{}, nil
		}
		return nil, fmt.Errorf("open checkpoint: %w", err)
	}
	defer f.Close()

	var data checkpointData
	if err := json.NewDecoder(f).Decode(&data); err != nil {
		return nil, fmt.Errorf("decode checkpoint: %w", err)
	}

	visited.Import(data.Visited)
	stats.restore(data.Stats)
	if data.Categories == nil {
		data.Categories = map[string]CategoryProgress{}
	}
	return data.Categories, nil
}

// HasCheckpoint returns true if a checkpoint file exists.
func (cm *CheckpointManager) HasCheckpoint() bool {
	_, err := os.Stat(cm.path)
	return err == nil
}

// Clean removes the checkpoint file.
func (cm *CheckpointManager) Clean() error {
	if err := os.Remove(cm.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

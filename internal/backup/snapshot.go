// Package backup provides full-state snapshot export and import.
//
// A snapshot is a single JSON document holding every collection the store
// manages. Import is all-or-nothing per collection: each collection present
// in the snapshot overwrites its local counterpart; it does not merge.
package backup

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/stillpointapp/stillpoint/internal/model"
	"github.com/stillpointapp/stillpoint/internal/store"
)

// SnapshotVersion is the current snapshot document version.
const SnapshotVersion = 1

// Snapshot is the full-state backup document.
type Snapshot struct {
	Version      int       `json:"version"`
	LastModified time.Time `json:"last_modified"`

	Tasks              []model.Task              `json:"tasks,omitempty"`
	Settings           *model.UserSettings       `json:"settings,omitempty"`
	MeditationSessions []model.MeditationSession `json:"meditation_sessions,omitempty"`
	FocusSessions      []model.FocusSession      `json:"focus_sessions,omitempty"`
}

// ImportResult contains statistics about an import.
type ImportResult struct {
	Tasks              int
	MeditationSessions int
	FocusSessions      int
	SettingsImported   bool
}

// Take gathers the store's current state into a snapshot.
func Take(st *store.Store) (*Snapshot, error) {
	tasks, err := st.Tasks()
	if err != nil {
		return nil, fmt.Errorf("failed to read tasks: %w", err)
	}
	settings, err := st.Settings()
	if err != nil {
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}
	med, err := st.MeditationSessions()
	if err != nil {
		return nil, fmt.Errorf("failed to read meditation sessions: %w", err)
	}
	focus, err := st.FocusSessions()
	if err != nil {
		return nil, fmt.Errorf("failed to read focus sessions: %w", err)
	}

	return &Snapshot{
		Version:            SnapshotVersion,
		LastModified:       time.Now(),
		Tasks:              tasks,
		Settings:           &settings,
		MeditationSessions: med,
		FocusSessions:      focus,
	}, nil
}

// Export writes a snapshot of the store to path and records the backup
// timestamp. The file is written atomically via a temp file.
func Export(st *store.Store, path string) (*Snapshot, error) {
	snap, err := Take(st)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return nil, fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return nil, fmt.Errorf("failed to rename temp file: %w", err)
	}

	if err := st.SetLastBackup(snap.LastModified); err != nil {
		return nil, err
	}

	return snap, nil
}

// Import reads a snapshot file and restores it into the store. Each
// collection present in the snapshot overwrites its local counterpart.
func Import(st *store.Store, path string) (*ImportResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot file: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot file %s: %w", path, err)
	}
	if snap.Version > SnapshotVersion {
		return nil, fmt.Errorf("snapshot version %d is newer than supported version %d", snap.Version, SnapshotVersion)
	}

	return Restore(st, &snap)
}

// Restore applies an already-decoded snapshot to the store.
func Restore(st *store.Store, snap *Snapshot) (*ImportResult, error) {
	result := &ImportResult{}

	if snap.Tasks != nil {
		if err := st.SaveTasks(snap.Tasks); err != nil {
			return nil, err
		}
		result.Tasks = len(snap.Tasks)
	}
	if snap.Settings != nil {
		if err := st.SaveSettings(*snap.Settings); err != nil {
			return nil, err
		}
		result.SettingsImported = true
	}
	if snap.MeditationSessions != nil {
		if err := st.SaveMeditationSessions(snap.MeditationSessions); err != nil {
			return nil, err
		}
		result.MeditationSessions = len(snap.MeditationSessions)
	}
	if snap.FocusSessions != nil {
		if err := st.SaveFocusSessions(snap.FocusSessions); err != nil {
			return nil, err
		}
		result.FocusSessions = len(snap.FocusSessions)
	}

	return result, nil
}

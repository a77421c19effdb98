package backup

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stillpointapp/stillpoint/internal/model"
	"github.com/stillpointapp/stillpoint/internal/store"
)

func setupTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"), log.New(os.Stderr, "[test] ", 0))
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func seedStore(t *testing.T, st *store.Store) {
	t.Helper()

	due := time.Date(2026, 9, 15, 17, 0, 0, 0, time.UTC)
	tasks := []model.Task{
		{ID: "1700000000000-001", RemoteID: "r-1", Title: "Review notes", Priority: 1, Deadline: &due, CreatedAt: time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)},
		{ID: "1700000000000-002", Title: "Evening walk", Priority: 3, Completed: true, CreatedAt: time.Date(2026, 8, 2, 9, 0, 0, 0, time.UTC)},
	}
	if err := st.SaveTasks(tasks); err != nil {
		t.Fatalf("SaveTasks failed: %v", err)
	}
	if err := st.SaveSettings(model.UserSettings{Mode: model.ModeCloudSync, Location: "Lisbon", Theme: "dark"}); err != nil {
		t.Fatalf("SaveSettings failed: %v", err)
	}
	if err := st.AppendMeditationSession(model.MeditationSession{DurationSeconds: 600, Date: time.Date(2026, 8, 3, 7, 0, 0, 0, time.UTC), Completed: true, CreatedAt: time.Date(2026, 8, 3, 7, 10, 0, 0, time.UTC)}); err != nil {
		t.Fatalf("AppendMeditationSession failed: %v", err)
	}
	if err := st.AppendFocusSession(model.FocusSession{DurationSeconds: 1500, Date: time.Date(2026, 8, 3, 10, 0, 0, 0, time.UTC), Completed: true, CreatedAt: time.Date(2026, 8, 3, 10, 25, 0, 0, time.UTC)}); err != nil {
		t.Fatalf("AppendFocusSession failed: %v", err)
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	st := setupTestStore(t)
	seedStore(t, st)

	path := filepath.Join(t.TempDir(), "snapshot.json")
	snap, err := Export(st, path)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if snap.Version != SnapshotVersion {
		t.Errorf("snapshot version = %d, want %d", snap.Version, SnapshotVersion)
	}

	// Export records the backup timestamp.
	last, err := st.LastBackup()
	if err != nil {
		t.Fatalf("LastBackup failed: %v", err)
	}
	if !last.Equal(snap.LastModified) {
		t.Errorf("last backup %v does not match snapshot %v", last, snap.LastModified)
	}

	// Wipe everything, then restore from the file.
	if err := st.ClearAll(); err != nil {
		t.Fatalf("ClearAll failed: %v", err)
	}
	result, err := Import(st, path)
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if result.Tasks != 2 || result.MeditationSessions != 1 || result.FocusSessions != 1 || !result.SettingsImported {
		t.Errorf("unexpected import result: %+v", result)
	}

	tasks, err := st.Tasks()
	if err != nil {
		t.Fatalf("Tasks failed: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("expected 2 tasks after import, got %d", len(tasks))
	}
	got := tasks[0]
	if got.ID != "1700000000000-001" || got.RemoteID != "r-1" || got.Title != "Review notes" {
		t.Errorf("task fields lost across round trip: %+v", got)
	}
	if got.Deadline == nil || !got.Deadline.Equal(time.Date(2026, 9, 15, 17, 0, 0, 0, time.UTC)) {
		t.Errorf("deadline not re-hydrated: %v", got.Deadline)
	}

	settings, err := st.Settings()
	if err != nil {
		t.Fatalf("Settings failed: %v", err)
	}
	if settings.Mode != model.ModeCloudSync || settings.Location != "Lisbon" || settings.Theme != "dark" {
		t.Errorf("settings lost across round trip: %+v", settings)
	}

	med, err := st.MeditationSessions()
	if err != nil {
		t.Fatalf("MeditationSessions failed: %v", err)
	}
	if len(med) != 1 || med[0].DurationSeconds != 600 {
		t.Errorf("meditation sessions lost across round trip: %+v", med)
	}
}

func TestImportOverwritesPerCollection(t *testing.T) {
	st := setupTestStore(t)
	seedStore(t, st)

	// A snapshot holding only tasks replaces tasks and leaves the rest alone.
	snap := Snapshot{
		Version:      SnapshotVersion,
		LastModified: time.Now(),
		Tasks:        []model.Task{{ID: "1700000000000-009", Title: "Only me", Priority: 2, CreatedAt: time.Now()}},
	}
	data, err := json.Marshal(snap)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	path := filepath.Join(t.TempDir(), "partial.json")
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	result, err := Import(st, path)
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if result.Tasks != 1 || result.SettingsImported {
		t.Errorf("unexpected import result: %+v", result)
	}

	tasks, err := st.Tasks()
	if err != nil {
		t.Fatalf("Tasks failed: %v", err)
	}
	if len(tasks) != 1 || tasks[0].Title != "Only me" {
		t.Errorf("tasks not overwritten: %+v", tasks)
	}

	settings, err := st.Settings()
	if err != nil {
		t.Fatalf("Settings failed: %v", err)
	}
	if settings.Location != "Lisbon" {
		t.Errorf("settings must be untouched by a tasks-only snapshot: %+v", settings)
	}
	med, err := st.MeditationSessions()
	if err != nil {
		t.Fatalf("MeditationSessions failed: %v", err)
	}
	if len(med) != 1 {
		t.Errorf("sessions must be untouched by a tasks-only snapshot: %d", len(med))
	}
}

func TestImportRejectsNewerVersion(t *testing.T) {
	st := setupTestStore(t)

	path := filepath.Join(t.TempDir(), "future.json")
	if err := os.WriteFile(path, []byte(`{"version": 99}`), 0600); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if _, err := Import(st, path); err == nil {
		t.Fatal("expected an error for a newer snapshot version")
	}
}

func TestImportRejectsMalformedFile(t *testing.T) {
	st := setupTestStore(t)

	path := filepath.Join(t.TempDir(), "broken.json")
	if err := os.WriteFile(path, []byte("{not json"), 0600); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if _, err := Import(st, path); err == nil {
		t.Fatal("expected an error for a malformed snapshot")
	}
}

func TestExportIsAtomic(t *testing.T) {
	st := setupTestStore(t)
	seedStore(t, st)

	dir := t.TempDir()
	path := filepath.Join(dir, "snapshot.json")
	if _, err := Export(st, path); err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".tmp") {
			t.Errorf("temp file left behind: %s", entry.Name())
		}
	}
}

func TestWatcherImportsDroppedFile(t *testing.T) {
	src := setupTestStore(t)
	seedStore(t, src)

	exportPath := filepath.Join(t.TempDir(), "handoff.json")
	if _, err := Export(src, exportPath); err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	data, err := os.ReadFile(exportPath)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}

	dst := setupTestStore(t)
	dropDir := filepath.Join(t.TempDir(), "drop")

	w, err := NewWatcher(dst, dropDir, &WatcherConfig{
		DebounceInterval: 20 * time.Millisecond,
		Logger:           log.New(os.Stderr, "[test] ", 0),
	})
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	// Give the watcher a moment to register, then drop the snapshot in.
	time.Sleep(50 * time.Millisecond)
	dropPath := filepath.Join(dropDir, "handoff.json")
	if err := os.WriteFile(dropPath, data, 0600); err != nil {
		t.Fatalf("drop write failed: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		tasks, err := dst.Tasks()
		if err != nil {
			t.Fatalf("Tasks failed: %v", err)
		}
		if len(tasks) == 2 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	tasks, err := dst.Tasks()
	if err != nil {
		t.Fatalf("Tasks failed: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("dropped snapshot was not imported, got %d tasks", len(tasks))
	}

	// The processed file gets the .imported suffix.
	waitDeadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(waitDeadline) {
		if _, err := os.Stat(dropPath + ".imported"); err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if _, err := os.Stat(dropPath + ".imported"); err != nil {
		t.Errorf("imported file was not renamed: %v", err)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
}

func TestWatcherPicksUpPreexistingFiles(t *testing.T) {
	src := setupTestStore(t)
	seedStore(t, src)

	dropDir := filepath.Join(t.TempDir(), "drop")
	if err := os.MkdirAll(dropDir, 0755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	if _, err := Export(src, filepath.Join(dropDir, "early.json")); err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	dst := setupTestStore(t)
	w, err := NewWatcher(dst, dropDir, &WatcherConfig{
		DebounceInterval: 20 * time.Millisecond,
		Logger:           log.New(os.Stderr, "[test] ", 0),
	})
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		tasks, err := dst.Tasks()
		if err != nil {
			t.Fatalf("Tasks failed: %v", err)
		}
		if len(tasks) == 2 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	tasks, err := dst.Tasks()
	if err != nil {
		t.Fatalf("Tasks failed: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("pre-existing snapshot was not imported, got %d tasks", len(tasks))
	}

	cancel()
	<-done
}

func TestIsSnapshotFile(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"snapshot.json", true},
		{"handoff-2026-08-30.json", true},
		{"snapshot.json.imported", false},
		{"notes.txt", false},
		{"snapshot.JSON", false},
	}
	for _, tt := range tests {
		if got := isSnapshotFile(tt.name); got != tt.want {
			t.Errorf("isSnapshotFile(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stillpointapp/stillpoint/internal/model"
	"github.com/stillpointapp/stillpoint/internal/orchestrator"
)

// fakeBackend is an in-memory stillpoint backend over httptest.
type fakeBackend struct {
	tasks    map[string]model.Task // keyed by remote id
	settings map[string]model.UserSettings
	sessions int
	nextID   int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		tasks:    make(map[string]model.Task),
		settings: make(map[string]model.UserSettings),
	}
}

func (b *fakeBackend) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	mux.HandleFunc("GET /users/{id}/tasks", func(w http.ResponseWriter, r *http.Request) {
		out := []model.Task{}
		for _, t := range b.tasks {
			out = append(out, t)
		}
		json.NewEncoder(w).Encode(out)
	})

	mux.HandleFunc("POST /users/{id}/tasks", func(w http.ResponseWriter, r *http.Request) {
		var task model.Task
		if err := json.NewDecoder(r.Body).Decode(&task); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		b.nextID++
		task.ID = fmt.Sprintf("r-%d", b.nextID)
		task.RemoteID = ""
		b.tasks[task.ID] = task
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(task)
	})

	mux.HandleFunc("PATCH /tasks/{id}", func(w http.ResponseWriter, r *http.Request) {
		task, ok := b.tasks[r.PathValue("id")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		var patch orchestrator.TaskPatch
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		patch.Apply(&task)
		b.tasks[task.ID] = task
		json.NewEncoder(w).Encode(task)
	})

	mux.HandleFunc("DELETE /tasks/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if _, ok := b.tasks[id]; !ok {
			http.NotFound(w, r)
			return
		}
		delete(b.tasks, id)
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("GET /users/{id}/settings", func(w http.ResponseWriter, r *http.Request) {
		settings, ok := b.settings[r.PathValue("id")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(settings)
	})

	mux.HandleFunc("PUT /users/{id}/settings", func(w http.ResponseWriter, r *http.Request) {
		var settings model.UserSettings
		if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		b.settings[r.PathValue("id")] = settings
		json.NewEncoder(w).Encode(settings)
	})

	mux.HandleFunc("POST /users/{id}/sessions", func(w http.ResponseWriter, r *http.Request) {
		b.sessions++
		w.WriteHeader(http.StatusCreated)
	})

	return mux
}

func setupClient(t *testing.T) (*Client, *fakeBackend) {
	t.Helper()
	backend := newFakeBackend()
	srv := httptest.NewServer(backend.handler())
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, srv.Client(), nil), backend
}

func TestTaskLifecycle(t *testing.T) {
	client, backend := setupClient(t)
	ctx := context.Background()

	created, err := client.CreateTask(ctx, "user-1", model.Task{
		ID: "1700000000000-001", Title: "Draft", Priority: 2, CreatedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
	if created.ID == "" || created.ID == "1700000000000-001" {
		t.Errorf("expected a backend-assigned id, got %q", created.ID)
	}

	tasks, err := client.GetTasks(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetTasks failed: %v", err)
	}
	if len(tasks) != 1 || tasks[0].Title != "Draft" {
		t.Errorf("unexpected task list: %+v", tasks)
	}

	title := "Final"
	done := true
	updated, err := client.UpdateTask(ctx, created.ID, orchestrator.TaskPatch{Title: &title, Completed: &done})
	if err != nil {
		t.Fatalf("UpdateTask failed: %v", err)
	}
	if updated.Title != "Final" || !updated.Completed {
		t.Errorf("patch not applied: %+v", updated)
	}

	if err := client.DeleteTask(ctx, created.ID); err != nil {
		t.Fatalf("DeleteTask failed: %v", err)
	}
	if len(backend.tasks) != 0 {
		t.Errorf("task not deleted on backend")
	}
}

func TestGetTasksEmpty(t *testing.T) {
	client, _ := setupClient(t)

	tasks, err := client.GetTasks(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("GetTasks failed: %v", err)
	}
	if tasks == nil || len(tasks) != 0 {
		t.Errorf("expected an empty non-nil slice, got %#v", tasks)
	}
}

func TestDeleteAbsentTaskIsNotAnError(t *testing.T) {
	client, _ := setupClient(t)

	if err := client.DeleteTask(context.Background(), "r-404"); err != nil {
		t.Errorf("deleting an absent task must be a no-op, got %v", err)
	}
}

func TestUpdateAbsentTaskIsNotFound(t *testing.T) {
	client, _ := setupClient(t)

	title := "x"
	_, err := client.UpdateTask(context.Background(), "r-404", orchestrator.TaskPatch{Title: &title})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSettingsAbsentMeansNil(t *testing.T) {
	client, _ := setupClient(t)
	ctx := context.Background()

	settings, err := client.GetUserSettings(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetUserSettings failed: %v", err)
	}
	if settings != nil {
		t.Errorf("expected nil settings for an unknown user, got %+v", settings)
	}

	stored, err := client.UpsertUserSettings(ctx, "user-1", model.UserSettings{Mode: model.ModeCloudSync, Theme: "dark"})
	if err != nil {
		t.Fatalf("UpsertUserSettings failed: %v", err)
	}
	if stored.Mode != model.ModeCloudSync {
		t.Errorf("unexpected stored settings: %+v", stored)
	}

	settings, err = client.GetUserSettings(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetUserSettings failed: %v", err)
	}
	if settings == nil || settings.Theme != "dark" {
		t.Errorf("settings round trip failed: %+v", settings)
	}
}

func TestCreateSession(t *testing.T) {
	client, backend := setupClient(t)

	err := client.CreateSession(context.Background(), "user-1", model.MeditationSession{
		DurationSeconds: 600, Date: time.Now(), Completed: true, CreatedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if backend.sessions != 1 {
		t.Errorf("session not recorded on backend")
	}
}

func TestConnectionProbe(t *testing.T) {
	client, _ := setupClient(t)

	ok, err := client.TestConnection(context.Background())
	if err != nil || !ok {
		t.Errorf("expected a healthy probe, got ok=%v err=%v", ok, err)
	}
}

func TestBackendFailureIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)
	client := NewClient(srv.URL, srv.Client(), nil)

	_, err := client.GetTasks(context.Background(), "user-1")
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable for a 500, got %v", err)
	}

	ok, err := client.TestConnection(context.Background())
	if ok || !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected a failed probe, got ok=%v err=%v", ok, err)
	}
}

func TestUnreachableBackendIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()
	client := NewClient(srv.URL, &http.Client{Timeout: time.Second}, nil)

	_, err := client.GetTasks(context.Background(), "user-1")
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable for a dead backend, got %v", err)
	}
}

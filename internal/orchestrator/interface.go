package orchestrator

import (
	"context"
	"time"

	"github.com/stillpointapp/stillpoint/internal/model"
)

// Collaborator is the remote replica contract the orchestrator consumes.
//
// All methods are network-bound and may fail with a generic error; the
// orchestrator does not depend on specific error codes. The remote is a
// mirror of the local store, never the source of truth.
//
// CreateTask may assign its own identifier to the stored twin; the returned
// task carries it. The orchestrator records it as the task's RemoteID and
// keeps the local ID canonical.
type Collaborator interface {
	// GetTasks returns all tasks the remote holds for the user.
	GetTasks(ctx context.Context, userID string) ([]model.Task, error)

	// CreateTask stores a new task remotely and returns the stored twin,
	// which may carry a remote-assigned ID.
	CreateTask(ctx context.Context, userID string, task model.Task) (model.Task, error)

	// UpdateTask applies a partial update to the remote twin identified by
	// its remote ID.
	UpdateTask(ctx context.Context, remoteID string, patch TaskPatch) (model.Task, error)

	// DeleteTask removes the remote twin. Deleting an absent task is not
	// an error.
	DeleteTask(ctx context.Context, remoteID string) error

	// GetUserSettings returns the user's remote settings, or nil when the
	// remote holds none.
	GetUserSettings(ctx context.Context, userID string) (*model.UserSettings, error)

	// UpsertUserSettings writes the user's settings remotely.
	UpsertUserSettings(ctx context.Context, userID string, settings model.UserSettings) (model.UserSettings, error)

	// CreateSession appends a meditation session to the remote history.
	CreateSession(ctx context.Context, userID string, session model.MeditationSession) error

	// SubscribeToTasks opens a filtered real-time change feed for the
	// user's tasks. onChange is invoked on an unspecified schedule until
	// the subscription is cancelled.
	SubscribeToTasks(ctx context.Context, userID string, onChange func(TaskChange)) (Subscription, error)

	// TestConnection performs one round-trip reachability probe.
	TestConnection(ctx context.Context) (bool, error)
}

// Subscription is a handle to an active real-time feed.
type Subscription interface {
	// Unsubscribe cancels the feed. Safe to call more than once.
	Unsubscribe()
}

// TaskChange is one event delivered by the real-time feed.
type TaskChange struct {
	// Type is "created", "updated", or "deleted".
	Type string `json:"type"`

	// Task is the remote state after the change. For deletions only the
	// ID is populated.
	Task model.Task `json:"task"`
}

// TaskPatch is a partial task update. Nil fields are left unchanged.
type TaskPatch struct {
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	Deadline    *time.Time `json:"deadline,omitempty"`
	Priority    *int       `json:"priority,omitempty"`
	Completed   *bool      `json:"completed,omitempty"`
}

// Apply copies the patch's set fields onto the task.
func (p TaskPatch) Apply(t *model.Task) {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Deadline != nil {
		t.Deadline = p.Deadline
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.Completed != nil {
		t.Completed = *p.Completed
	}
}

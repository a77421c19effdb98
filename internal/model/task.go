// Package model provides the data structures shared by the stillpoint
// storage and sync layers.
package model

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Task is a single to-do item. The local store is the authoritative source
// for tasks; the remote replica is an eventually-consistent mirror.
//
// ID is generated from a wall-clock timestamp and is unique within one
// device's store only. When a task has been pushed to the remote, RemoteID
// holds the identifier the remote assigned. The local ID is canonical and
// is never overwritten by the remote one.
type Task struct {
	ID       string `json:"id"`
	RemoteID string `json:"remote_id,omitempty"`

	Title       string `json:"title"`
	Description string `json:"description,omitempty"`

	Deadline *time.Time `json:"deadline,omitempty"`
	Priority int        `json:"priority"` // 1 (high) to 3 (low)

	Completed bool      `json:"completed"`
	CreatedAt time.Time `json:"created_at"`
}

// taskSeq disambiguates IDs generated within the same millisecond.
var taskSeq atomic.Int64

// NewTaskID generates a task identifier from the given wall-clock instant.
// IDs are unique per device, not globally; collision resistance across
// devices is explicitly not a goal.
func NewTaskID(now time.Time) string {
	seq := taskSeq.Add(1)
	return fmt.Sprintf("%d-%03d", now.UnixMilli(), seq%1000)
}

// Validate checks that the task has valid field values.
func (t *Task) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("id is required")
	}
	if t.Title == "" {
		return fmt.Errorf("title is required")
	}
	if len(t.Title) > 500 {
		return fmt.Errorf("title must be 500 characters or less (got %d)", len(t.Title))
	}
	if t.Priority < 1 || t.Priority > 3 {
		return fmt.Errorf("priority must be between 1 and 3 (got %d)", t.Priority)
	}
	if t.CreatedAt.IsZero() {
		return fmt.Errorf("created_at is required")
	}
	return nil
}

// SetDefaults applies default values for optional fields.
func (t *Task) SetDefaults() {
	if t.Priority == 0 {
		t.Priority = 2
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	if t.ID == "" {
		t.ID = NewTaskID(t.CreatedAt)
	}
}

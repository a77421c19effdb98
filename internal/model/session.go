package model

import "time"

// MaxSessions caps how many sessions each store keeps. Sessions are
// append-only; once the cap is reached the oldest entries are evicted first.
const MaxSessions = 100

// MeditationSession records one completed or abandoned meditation.
type MeditationSession struct {
	DurationSeconds int       `json:"duration_seconds"`
	Date            time.Time `json:"date"`
	Completed       bool      `json:"completed"`
	CreatedAt       time.Time `json:"created_at"`
}

// FocusSession records one focus timer run. Same retention rules as
// meditation sessions.
type FocusSession struct {
	DurationSeconds int       `json:"duration_seconds"`
	Date            time.Time `json:"date"`
	Completed       bool      `json:"completed"`
	CreatedAt       time.Time `json:"created_at"`
}

package model

import "fmt"

// SyncMode selects how task mutations are propagated.
type SyncMode string

const (
	// ModeLocalOnly keeps all data on the device; the remote is never called.
	ModeLocalOnly SyncMode = "local-only"

	// ModeCloudSync mirrors local writes to the remote replica on a
	// best-effort basis. The local store remains authoritative.
	ModeCloudSync SyncMode = "cloud-sync"
)

// Valid reports whether m is a known sync mode.
func (m SyncMode) Valid() bool {
	return m == ModeLocalOnly || m == ModeCloudSync
}

// UserSettings holds per-user preferences. Settings are written through both
// local and, when applicable, remote storage on every change.
type UserSettings struct {
	Mode     SyncMode `json:"mode"`
	Location string   `json:"location,omitempty"`
	Theme    string   `json:"theme,omitempty"`
}

// DefaultSettings returns the settings used before the user has saved any.
func DefaultSettings() UserSettings {
	return UserSettings{
		Mode:  ModeLocalOnly,
		Theme: "light",
	}
}

// Validate checks that the settings have valid field values.
func (s *UserSettings) Validate() error {
	if !s.Mode.Valid() {
		return fmt.Errorf("unknown sync mode %q", s.Mode)
	}
	return nil
}

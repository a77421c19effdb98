// Package store provides durable on-device key-value persistence for tasks,
// settings, and session history.
//
// Values are stored as JSON in a single SQLite table opened in embedded mode
// with WAL for concurrent reads. The store has no network dependency: all
// failures are local. Corrupt values are never silently dropped; callers get
// ErrCorrupt and decide whether to reset the key.
//
// Call MigrateFormat once at startup, before any other access, to repair
// values written by older schema versions that stored plain strings
// unescaped.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/stillpointapp/stillpoint/internal/model"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Store wraps the SQLite connection holding the namespaced key-value data.
type Store struct {
	conn   *sql.DB
	path   string
	logger *log.Logger
}

// Open creates or opens the store database at the specified path.
//
// The database is opened in embedded mode with WAL for concurrent reads.
// The caller MUST call Close() when done.
//
// If logger is nil, a default logger writing to stderr is used.
func Open(path string, logger *log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.New(os.Stderr, "[store] ", log.LstdFlags)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	connStr := fmt.Sprintf("file:%s", path)
	conn, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{
		conn:   conn,
		path:   path,
		logger: logger,
	}

	if _, err := s.conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := s.conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if err := s.initSchema(); err != nil {
		_ = s.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database connection after checkpointing the WAL.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}

	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		s.logger.Printf("Warning: failed to checkpoint WAL: %v", err)
	}

	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	s.conn = nil
	return nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// initSchema creates the key-value table. Idempotent.
func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	`
	if _, err := s.conn.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// SaveRaw writes a raw string value under a namespaced key.
func (s *Store) SaveRaw(key, value string) error {
	query := `
	INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET
		value = excluded.value,
		updated_at = excluded.updated_at
	`
	_, err := s.conn.Exec(query, namespace+key, value, time.Now().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("%w: key %s: %v", ErrWrite, key, err)
	}
	return nil
}

// LoadRaw reads the raw string value stored under a key.
// Returns ErrNotFound if the key is absent.
func (s *Store) LoadRaw(key string) (string, error) {
	var value string
	err := s.conn.QueryRow("SELECT value FROM kv WHERE key = ?", namespace+key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return "", fmt.Errorf("failed to load key %s: %w", key, err)
	}
	return value, nil
}

// Remove deletes the value stored under a key. Removing an absent key is a
// no-op.
func (s *Store) Remove(key string) error {
	if _, err := s.conn.Exec("DELETE FROM kv WHERE key = ?", namespace+key); err != nil {
		return fmt.Errorf("failed to remove key %s: %w", key, err)
	}
	return nil
}

// SaveValue serializes v to JSON and writes it under key. On serialization
// failure, ErrWrite is returned and no write is performed.
func (s *Store) SaveValue(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: failed to encode %s: %v", ErrWrite, key, err)
	}
	return s.SaveRaw(key, string(data))
}

// LoadValue reads the value under key and decodes it into dst.
// Returns ErrNotFound if the key is absent and ErrCorrupt if the stored
// value is not valid JSON for the expected type.
func (s *Store) LoadValue(key string, dst any) error {
	raw, err := s.LoadRaw(key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return fmt.Errorf("%w: key %s: %v", ErrCorrupt, key, err)
	}
	return nil
}

// loadString reads a string-typed key. If the stored value fails to decode
// as a JSON string, the raw value is returned as-is. This is the legacy
// compatibility path for values written unescaped by older versions.
func (s *Store) loadString(key string) (string, error) {
	raw, err := s.LoadRaw(key)
	if err != nil {
		return "", err
	}
	var v string
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw, nil
	}
	return v, nil
}

// MigrateFormat repairs values written by older schema versions.
//
// For every registered key, the stored value is checked for JSON validity;
// on failure the raw value is re-encoded as a JSON string literal and
// overwritten in place. Idempotent: once all keys decode cleanly, running
// it again is a no-op.
func (s *Store) MigrateFormat() error {
	for _, spec := range Registry {
		raw, err := s.LoadRaw(spec.Name)
		if err != nil {
			if isNotFound(err) {
				continue
			}
			return fmt.Errorf("failed to read %s during migration: %w", spec.Name, err)
		}

		if json.Valid([]byte(raw)) {
			continue
		}

		encoded, err := json.Marshal(raw)
		if err != nil {
			return fmt.Errorf("%w: failed to re-encode %s: %v", ErrWrite, spec.Name, err)
		}
		if err := s.SaveRaw(spec.Name, string(encoded)); err != nil {
			return err
		}
		s.logger.Printf("Migrated legacy value under %s", spec.Name)
	}
	return nil
}

// ClearAll deletes every namespaced key. This is an irreversible data wipe;
// callers are expected to obtain an explicit two-step confirmation before
// invoking it. The store itself does not enforce that.
func (s *Store) ClearAll() error {
	if _, err := s.conn.Exec("DELETE FROM kv WHERE key LIKE ?", namespace+"%"); err != nil {
		return fmt.Errorf("failed to clear store: %w", err)
	}
	s.logger.Printf("Cleared all data")
	return nil
}

// Summary reports store contents for user-facing storage transparency.
type Summary struct {
	Tasks          int
	CompletedTasks int
	Sessions       int
	ApproxBytes    int64
}

// DataSummary returns item counts and the approximate serialized size of
// all stored data.
func (s *Store) DataSummary() (Summary, error) {
	var sum Summary

	tasks, err := s.Tasks()
	if err != nil {
		return sum, err
	}
	sum.Tasks = len(tasks)
	for _, t := range tasks {
		if t.Completed {
			sum.CompletedTasks++
		}
	}

	med, err := s.MeditationSessions()
	if err != nil {
		return sum, err
	}
	focus, err := s.FocusSessions()
	if err != nil {
		return sum, err
	}
	sum.Sessions = len(med) + len(focus)

	err = s.conn.QueryRow(
		"SELECT COALESCE(SUM(LENGTH(value)), 0) FROM kv WHERE key LIKE ?",
		namespace+"%",
	).Scan(&sum.ApproxBytes)
	if err != nil {
		return sum, fmt.Errorf("failed to compute store size: %w", err)
	}

	return sum, nil
}

// Tasks returns all stored tasks. Date-typed fields are re-hydrated from
// their RFC 3339 representation on every load. An absent key yields an
// empty slice.
func (s *Store) Tasks() ([]model.Task, error) {
	var tasks []model.Task
	if err := s.LoadValue(KeyTasks, &tasks); err != nil {
		if isNotFound(err) {
			return []model.Task{}, nil
		}
		return nil, err
	}
	return tasks, nil
}

// SaveTasks replaces the stored task list.
func (s *Store) SaveTasks(tasks []model.Task) error {
	return s.SaveValue(KeyTasks, tasks)
}

// Settings returns the stored user settings, or defaults when none have
// been saved yet.
func (s *Store) Settings() (model.UserSettings, error) {
	var settings model.UserSettings
	if err := s.LoadValue(KeySettings, &settings); err != nil {
		if isNotFound(err) {
			return model.DefaultSettings(), nil
		}
		return model.UserSettings{}, err
	}
	return settings, nil
}

// SaveSettings replaces the stored user settings.
func (s *Store) SaveSettings(settings model.UserSettings) error {
	if err := settings.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	return s.SaveValue(KeySettings, settings)
}

// MeditationSessions returns the stored meditation history, oldest first.
func (s *Store) MeditationSessions() ([]model.MeditationSession, error) {
	var sessions []model.MeditationSession
	if err := s.LoadValue(KeyMeditationSessions, &sessions); err != nil {
		if isNotFound(err) {
			return []model.MeditationSession{}, nil
		}
		return nil, err
	}
	return sessions, nil
}

// AppendMeditationSession appends a session, evicting the oldest entries
// beyond model.MaxSessions.
func (s *Store) AppendMeditationSession(session model.MeditationSession) error {
	sessions, err := s.MeditationSessions()
	if err != nil {
		return err
	}
	sessions = append(sessions, session)
	if len(sessions) > model.MaxSessions {
		sessions = sessions[len(sessions)-model.MaxSessions:]
	}
	return s.SaveValue(KeyMeditationSessions, sessions)
}

// SaveMeditationSessions replaces the stored meditation history.
func (s *Store) SaveMeditationSessions(sessions []model.MeditationSession) error {
	return s.SaveValue(KeyMeditationSessions, sessions)
}

// FocusSessions returns the stored focus timer history, oldest first.
func (s *Store) FocusSessions() ([]model.FocusSession, error) {
	var sessions []model.FocusSession
	if err := s.LoadValue(KeyFocusSessions, &sessions); err != nil {
		if isNotFound(err) {
			return []model.FocusSession{}, nil
		}
		return nil, err
	}
	return sessions, nil
}

// AppendFocusSession appends a session with the same retention rules as
// meditation sessions.
func (s *Store) AppendFocusSession(session model.FocusSession) error {
	sessions, err := s.FocusSessions()
	if err != nil {
		return err
	}
	sessions = append(sessions, session)
	if len(sessions) > model.MaxSessions {
		sessions = sessions[len(sessions)-model.MaxSessions:]
	}
	return s.SaveValue(KeyFocusSessions, sessions)
}

// SaveFocusSessions replaces the stored focus history.
func (s *Store) SaveFocusSessions(sessions []model.FocusSession) error {
	return s.SaveValue(KeyFocusSessions, sessions)
}

// UserID returns the stored user identity, or "" when none is stored.
func (s *Store) UserID() (string, error) {
	id, err := s.loadString(KeyUserIdentity)
	if err != nil {
		if isNotFound(err) {
			return "", nil
		}
		return "", err
	}
	return id, nil
}

// SetUserID stores the user identity.
func (s *Store) SetUserID(id string) error {
	return s.SaveValue(KeyUserIdentity, id)
}

// AppLocked reports whether the app lock flag is set.
func (s *Store) AppLocked() (bool, error) {
	v, err := s.loadString(KeyAppLock)
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return v == "true", nil
}

// SetAppLocked stores the app lock flag.
func (s *Store) SetAppLocked(locked bool) error {
	v := "false"
	if locked {
		v = "true"
	}
	return s.SaveValue(KeyAppLock, v)
}

// LastBackup returns the instant of the most recent export, or the zero
// time when no backup has been recorded.
func (s *Store) LastBackup() (time.Time, error) {
	v, err := s.loadString(KeyLastBackup)
	if err != nil {
		if isNotFound(err) {
			return time.Time{}, nil
		}
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: key %s: %v", ErrCorrupt, KeyLastBackup, err)
	}
	return t, nil
}

// SetLastBackup records the instant of the most recent export.
func (s *Store) SetLastBackup(t time.Time) error {
	return s.SaveValue(KeyLastBackup, t.Format(time.RFC3339))
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

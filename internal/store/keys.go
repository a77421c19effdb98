package store

// namespace prefixes every key written by the store so a shared database
// file can be wiped without touching unrelated rows.
const namespace = "stillpoint:"

// Logical keys known to the store. Every key the application reads or
// writes must be registered here so the format migration pass is
// exhaustive rather than ad hoc.
const (
	KeyTasks              = "tasks"
	KeyUserIdentity       = "user-identity"
	KeySettings           = "settings"
	KeyFocusSessions      = "focus-sessions"
	KeyMeditationSessions = "meditation-sessions"
	KeyAppLock            = "app-lock-flag"
	KeyLastBackup         = "last-backup-timestamp"
	KeyPendingOps         = "pending-ops"
)

// KeyKind describes how a key's value is encoded.
type KeyKind int

const (
	// KindJSON values are JSON documents. A value that fails to decode is
	// surfaced as ErrCorrupt.
	KindJSON KeyKind = iota

	// KindString values were written as plain unescaped strings by older
	// schema versions. Loads fall back to the raw value when JSON decoding
	// fails, and the migration pass re-encodes them as JSON string
	// literals.
	KindString
)

// KeySpec declares one registered key.
type KeySpec struct {
	Name string
	Kind KeyKind
}

// Registry lists every key the store manages, in a fixed order so
// migration output is deterministic.
var Registry = []KeySpec{
	{KeyTasks, KindJSON},
	{KeyUserIdentity, KindString},
	{KeySettings, KindJSON},
	{KeyFocusSessions, KindJSON},
	{KeyMeditationSessions, KindJSON},
	{KeyAppLock, KindString},
	{KeyLastBackup, KindString},
	{KeyPendingOps, KindJSON},
}

package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS client (
	id TEXT PRIMARY KEY,
	secret TEXT NOT NULL,
	label TEXT NOT NULL,
	scopes TEXT NOT NULL, -- JSON array
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS operation (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	command_id TEXT NOT NULL,
	command TEXT NOT NULL,
	status TEXT NOT NULL,
	output TEXT,
	error TEXT,
	start_time DATETIME NOT NULL,
	end_time DATETIME,
	type TEXT NOT NULL,
	args TEXT NOT NULL -- JSON object
);

CREATE TABLE IF NOT EXISTS backup (
	id TEXT PRIMARY KEY,
	type TEXT NOT NULL,
	status TEXT NOT NULL,
	description TEXT,
	compression_enabled INTEGER NOT NULL DEFAULT 0,
	compression TEXT NOT NULL DEFAULT 'none',
	from_backup_id TEXT,
	since DATETIME,
	tables TEXT NOT NULL DEFAULT '[]', -- JSON array
	start_time DATETIME NOT NULL,
	end_time DATETIME,
	size_bytes INTEGER,
	checksum TEXT,
	artifact_key TEXT,
	error TEXT,
	operation_id INTEGER,
	FOREIGN KEY (from_backup_id) REFERENCES backup(id) ON DELETE SET NULL,
	FOREIGN KEY (operation_id) REFERENCES operation(id) ON DELETE SET NULL
);

CREATE TABLE IF NOT EXISTS restore (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	backup_id TEXT NOT NULL,
	restore_type TEXT NOT NULL,
	selected_tables TEXT NOT NULL DEFAULT '[]', -- JSON array
	target TEXT NOT NULL,
	pre_restore_backup_id TEXT,
	status TEXT NOT NULL,
	applied_tables TEXT NOT NULL DEFAULT '[]', -- JSON array
	error TEXT,
	start_time DATETIME NOT NULL,
	end_time DATETIME,
	operation_id INTEGER,
	FOREIGN KEY (backup_id) REFERENCES backup(id) ON DELETE CASCADE,
	FOREIGN KEY (operation_id) REFERENCES operation(id) ON DELETE SET NULL
);

CREATE INDEX IF NOT EXISTS idx_backup_start_time ON backup(start_time);
CREATE INDEX IF NOT EXISTS idx_backup_type_status ON backup(type, status);
CREATE INDEX IF NOT EXISTS idx_restore_backup_id ON restore(backup_id);
CREATE INDEX IF NOT EXISTS idx_operation_status ON operation(status);
CREATE INDEX IF NOT EXISTS idx_operation_type ON operation(type);
CREATE INDEX IF NOT EXISTS idx_operation_command_id ON operation(command_id);
`

// InternalTables are never captured by a snapshot or touched by a restore
var InternalTables = map[string]bool{
	"client":    true,
	"operation": true,
	"backup":    true,
	"restore":   true,
}

const DefaultBusyTimeout = 5 * time.Second

type Options struct {
	// BusyTimeout is how long a writer waits on a locked database
	BusyTimeout time.Duration
	// SkipSchema opens the database without creating the internal tables
	SkipSchema bool
}

type DB struct {
	*sqlx.DB
	path string
}

func New(dbPath string) (*DB, error) {
	return Open(dbPath, Options{})
}

func Open(dbPath string, opts Options) (*DB, error) {
	busyTimeout := opts.BusyTimeout
	if busyTimeout <= 0 {
		busyTimeout = DefaultBusyTimeout
	}

	// Connection pragmas go in the DSN so every pooled connection gets them
	db, err := sqlx.Connect("sqlite", dsn(dbPath, busyTimeout))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Every connection to :memory: is a separate database
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	// Enable WAL mode for better concurrency (allows concurrent reads/writes)
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if !opts.SkipSchema {
		if _, err := db.Exec(schema); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}

	return &DB{DB: db, path: dbPath}, nil
}

func dsn(dbPath string, busyTimeout time.Duration) string {
	sep := "?"
	if strings.Contains(dbPath, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%s_pragma=busy_timeout(%d)&_pragma=foreign_keys(1)&_time_format=sqlite", dbPath, sep, busyTimeout.Milliseconds())
}

func (db *DB) Path() string {
	return db.path
}

func (db *DB) Close() error {
	return db.DB.Close()
}

// NullString helper for optional string fields
func NullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: *s, Valid: true}
}

// NullInt64 helper for optional int64 fields
func NullInt64(i *int64) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{Valid: false}
	}
	return sql.NullInt64{Int64: *i, Valid: true}
}

// NullTime helper for optional time fields
func NullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{Valid: false}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}

func int64Ptr(ni sql.NullInt64) *int64 {
	if !ni.Valid {
		return nil
	}
	return &ni.Int64
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	return &nt.Time
}

func marshalStrings(values []string) (string, error) {
	if values == nil {
		values = []string{}
	}
	b, err := json.Marshal(values)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func unmarshalStrings(data string) ([]string, error) {
	var values []string
	if data == "" {
		return values, nil
	}
	if err := json.Unmarshal([]byte(data), &values); err != nil {
		return nil, err
	}
	return values, nil
}

// storedTimeFormats are the layouts modernc/sqlite writes and common manual inserts
var storedTimeFormats = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02",
}

// parseStoredTime parses TEXT time values returned by aggregates, which
// carry no declared column type
func parseStoredTime(value string) (time.Time, bool) {
	for _, format := range storedTimeFormats {
		if t, err := time.Parse(format, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

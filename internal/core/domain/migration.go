package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"
)

type MigrationStatus string

const (
	MigrationStatusApplied    MigrationStatus = "applied"
	MigrationStatusRolledBack MigrationStatus = "rolled_back"
	MigrationStatusFailed     MigrationStatus = "failed"
)

// Migration is a schema change definition loaded from a migration source
type Migration struct {
	Version  string
	Name     string
	Up       string
	Down     string
	Checksum string
}

func NewMigration(version, name, up, down string) *Migration {
	return &Migration{
		Version:  version,
		Name:     name,
		Up:       up,
		Down:     down,
		Checksum: MigrationChecksum(up, down),
	}
}

// MigrationChecksum hashes both steps so an edited down step also counts as drift
func MigrationChecksum(up, down string) string {
	sum := sha256.Sum256([]byte(up + "\n--down--\n" + down))
	return hex.EncodeToString(sum[:])
}

func (m *Migration) HasDown() bool {
	return m.Down != ""
}

// VersionNumber returns the numeric value used for ordering
func (m *Migration) VersionNumber() uint64 {
	n, _ := strconv.ParseUint(m.Version, 10, 64)
	return n
}

// MigrationRecord is a row of the schema_migrations ledger
type MigrationRecord struct {
	Version      string          `db:"version"`
	Name         string          `db:"name"`
	Checksum     string          `db:"checksum"`
	Status       MigrationStatus `db:"status"`
	AppliedAt    *time.Time      `db:"applied_at"`
	RolledBackAt *time.Time      `db:"rolled_back_at"`
	Error        *string         `db:"error"`
	ExecutionMs  int64           `db:"execution_ms"`
}

func (r *MigrationRecord) IsApplied() bool {
	return r.Status == MigrationStatusApplied
}

// MigrationState is the status of one known migration definition
type MigrationState struct {
	Version   string
	Name      string
	Applied   bool
	Status    *MigrationStatus
	AppliedAt *time.Time
	Drifted   bool
	Error     *string
}

// MigrationStatusReport lists every definition plus ledger rows with no definition
type MigrationStatusReport struct {
	Migrations []MigrationState
	Missing    []MigrationRecord
}

type MigrationStatistics struct {
	Total              int
	Applied            int
	Pending            int
	Failed             int
	RolledBack         int
	Drifted            int
	Missing            int
	LastAppliedVersion *string
	LastAppliedAt      *time.Time
}

package domain

import "time"

// SnapshotFormatVersion is bumped whenever the artifact layout changes
const SnapshotFormatVersion = 1

// TableSnapshot holds one table of a backup. Row values are the native
// driver values: int64, float64, string, []byte, bool, time.Time or nil.
type TableSnapshot struct {
	Name    string
	Schema  string   // CREATE TABLE statement, empty for data_only artifacts
	Indexes []string // CREATE INDEX and CREATE TRIGGER statements
	Columns []string
	Rows    [][]interface{}
}

// Snapshot is the decoded content of a backup artifact
type Snapshot struct {
	FormatVersion int
	BackupID      string
	Type          BackupType
	CreatedAt     time.Time
	FromBackupID  string
	Since         *time.Time
	Tables        []TableSnapshot
	// Skipped lists tables left out of an incremental snapshot because
	// they have no change column
	Skipped []string
}

func (s *Snapshot) Table(name string) *TableSnapshot {
	for i := range s.Tables {
		if s.Tables[i].Name == name {
			return &s.Tables[i]
		}
	}
	return nil
}

func (s *Snapshot) TableNames() []string {
	names := make([]string, len(s.Tables))
	for i, t := range s.Tables {
		names[i] = t.Name
	}
	return names
}

// SnapshotOptions selects what the data store captures
type SnapshotOptions struct {
	Type         BackupType
	Since        *time.Time
	ChangeColumn string
}

// RestorePlan is what the data store applies: the chain starts with the
// baseline snapshot, later links are upserted on top of it.
type RestorePlan struct {
	RestoreType RestoreType
	Tables      []string // only for selective restores
	Chain       []*Snapshot
}

type RestoreResult struct {
	Applied []string
	Skipped []string
}

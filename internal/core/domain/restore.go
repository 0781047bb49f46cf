package domain

import (
	"fmt"
	"regexp"
	"time"
)

type RestoreType string

const (
	RestoreTypeFull       RestoreType = "full"
	RestoreTypeSchemaOnly RestoreType = "schema_only"
	RestoreTypeDataOnly   RestoreType = "data_only"
	RestoreTypeSelective  RestoreType = "selective"
)

var restoreTypes = map[string]RestoreType{
	"full":        RestoreTypeFull,
	"schema_only": RestoreTypeSchemaOnly,
	"data_only":   RestoreTypeDataOnly,
	"selective":   RestoreTypeSelective,
}

func ParseRestoreType(s string) (RestoreType, error) {
	t, ok := restoreTypes[s]
	if !ok {
		return "", fmt.Errorf("unknown restore type: %s", s)
	}
	return t, nil
}

// compatibleRestores maps a backup type to the restore types it can feed
var compatibleRestores = map[BackupType][]RestoreType{
	BackupTypeFull:        {RestoreTypeFull, RestoreTypeSchemaOnly, RestoreTypeDataOnly, RestoreTypeSelective},
	BackupTypeIncremental: {RestoreTypeFull, RestoreTypeDataOnly, RestoreTypeSelective},
	BackupTypeSchemaOnly:  {RestoreTypeSchemaOnly},
	BackupTypeDataOnly:    {RestoreTypeDataOnly, RestoreTypeSelective},
}

// CanRestore reports whether a backup of type b supports restore type t
func (t RestoreType) CanRestore(b BackupType) bool {
	for _, rt := range compatibleRestores[b] {
		if rt == t {
			return true
		}
	}
	return false
}

// RestoresData reports whether this restore type writes rows
func (t RestoreType) RestoresData() bool {
	return t != RestoreTypeSchemaOnly
}

var (
	identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	targetPattern     = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)
)

// RestoreRequest describes a single restore; it is validated before any store access
type RestoreRequest struct {
	BackupID                  string
	RestoreType               RestoreType
	SelectedTables            []string
	ValidateBeforeRestore     bool
	CreateBackupBeforeRestore bool
	TargetDatabase            string
}

func (r *RestoreRequest) Validate() error {
	fields := map[string]string{}

	if r.BackupID == "" {
		fields["backupId"] = "backupId is required"
	}
	if _, ok := restoreTypes[string(r.RestoreType)]; !ok {
		fields["restoreType"] = fmt.Sprintf("restoreType must be one of full, schema_only, data_only, selective (got %q)", r.RestoreType)
	}
	if r.RestoreType == RestoreTypeSelective && len(r.SelectedTables) == 0 {
		fields["selectedTables"] = "selectedTables must not be empty for a selective restore"
	}
	for _, table := range r.SelectedTables {
		if !identifierPattern.MatchString(table) {
			fields["selectedTables"] = fmt.Sprintf("invalid table name: %q", table)
			break
		}
	}
	if r.TargetDatabase != "" && !targetPattern.MatchString(r.TargetDatabase) {
		fields["targetDatabase"] = "targetDatabase may only contain letters, digits, '_' and '-'"
	}

	if len(fields) > 0 {
		return NewValidationError("invalid restore request", fields)
	}
	return nil
}

type RestoreStatus string

const (
	RestoreStatusRequested RestoreStatus = "requested"
	RestoreStatusPreBackup RestoreStatus = "pre_backup"
	RestoreStatusValidated RestoreStatus = "validated"
	RestoreStatusApplying  RestoreStatus = "applying"
	RestoreStatusCompleted RestoreStatus = "completed"
	RestoreStatusFailed    RestoreStatus = "failed"
)

const RestoreTargetLive = "live"

// Restore is the audit trail entry of a restore request
type Restore struct {
	ID                 int64         `db:"id"`
	BackupID           string        `db:"backup_id"`
	RestoreType        RestoreType   `db:"restore_type"`
	SelectedTables     []string      `db:"selected_tables"`
	Target             string        `db:"target"`
	PreRestoreBackupID *string       `db:"pre_restore_backup_id"`
	Status             RestoreStatus `db:"status"`
	AppliedTables      []string      `db:"applied_tables"`
	Error              *string       `db:"error"`
	StartTime          time.Time     `db:"start_time"`
	EndTime            *time.Time    `db:"end_time"`
	OperationID        *int64        `db:"operation_id"`
}

func NewRestore(req *RestoreRequest) *Restore {
	target := RestoreTargetLive
	if req.TargetDatabase != "" {
		target = req.TargetDatabase
	}
	return &Restore{
		BackupID:       req.BackupID,
		RestoreType:    req.RestoreType,
		SelectedTables: req.SelectedTables,
		Target:         target,
		Status:         RestoreStatusRequested,
		StartTime:      time.Now().UTC(),
	}
}

func (r *Restore) Complete(applied []string) {
	now := time.Now().UTC()
	r.Status = RestoreStatusCompleted
	r.AppliedTables = applied
	r.EndTime = &now
}

func (r *Restore) Fail(applied []string, reason string) {
	now := time.Now().UTC()
	r.Status = RestoreStatusFailed
	r.AppliedTables = applied
	r.Error = &reason
	r.EndTime = &now
}

package dto

import "time"

// CreateRestoreRequest is the body of POST /backups/:id/restore
type CreateRestoreRequest struct {
	RestoreType               string   `json:"restoreType" binding:"required"`
	SelectedTables            []string `json:"selectedTables"`
	ValidateBeforeRestore     bool     `json:"validateBeforeRestore"`
	CreateBackupBeforeRestore bool     `json:"createBackupBeforeRestore"`
	TargetDatabase            string   `json:"targetDatabase"` // Empty restores into the live database
}

// RestoreResponse represents a restore
type RestoreResponse struct {
	ID                 int64      `json:"id"`
	BackupID           string     `json:"backupId"`
	RestoreType        string     `json:"restoreType"`
	SelectedTables     []string   `json:"selectedTables"`
	Target             string     `json:"target"`
	PreRestoreBackupID *string    `json:"preRestoreBackupId,omitempty"`
	Status             string     `json:"status"`
	AppliedTables      []string   `json:"appliedTables"`
	Error              *string    `json:"error,omitempty"`
	StartTime          time.Time  `json:"startTime"`
	EndTime            *time.Time `json:"endTime,omitempty"`
	OperationID        *int64     `json:"operationId,omitempty"`
}

// RestoreCreatedResponse is returned once a restore has completed
type RestoreCreatedResponse struct {
	BackupID string          `json:"backupId"`
	Message  string          `json:"message"`
	Restore  RestoreResponse `json:"restore"`
}

// RestoreListResponse represents a list of restores
type RestoreListResponse struct {
	Items      []RestoreResponse `json:"items"`
	Pagination PaginationInfo    `json:"pagination"`
}

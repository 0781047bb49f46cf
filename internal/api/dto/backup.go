package dto

import "time"

// CreateBackupRequest represents the backup creation request
type CreateBackupRequest struct {
	Type               string     `json:"type" binding:"required,oneof=full incremental schema_only data_only"`
	Description        string     `json:"description" binding:"max=500"`
	CompressionEnabled *bool      `json:"compressionEnabled"`
	Since              *time.Time `json:"since"` // Only used by incremental backups
}

// BackupResponse represents a backup
type BackupResponse struct {
	ID                 string     `json:"id"`
	Type               string     `json:"type"`
	Status             string     `json:"status"`
	Description        *string    `json:"description,omitempty"`
	CompressionEnabled bool       `json:"compressionEnabled"`
	Compression        string     `json:"compression"`
	FromBackupID       *string    `json:"fromBackupId,omitempty"`
	Since              *time.Time `json:"since,omitempty"`
	Tables             []string   `json:"tables"`
	StartTime          time.Time  `json:"startTime"`
	EndTime            *time.Time `json:"endTime,omitempty"`
	SizeBytes          *int64     `json:"sizeBytes,omitempty"`
	Checksum           *string    `json:"checksum,omitempty"`
	Error              *string    `json:"error,omitempty"`
	OperationID        *int64     `json:"operationId,omitempty"`
	Link               *string    `json:"link,omitempty"` // Operation status link
}

type BackupStatisticsResponse struct {
	Total             int            `json:"total"`
	ByStatus          map[string]int `json:"byStatus"`
	ByType            map[string]int `json:"byType"`
	TotalSizeBytes    int64          `json:"totalSizeBytes"`
	AverageSizeBytes  int64          `json:"averageSizeBytes"`
	SuccessRate       float64        `json:"successRate"`
	LastCompletedTime *time.Time     `json:"lastCompletedTime,omitempty"`
}

type BackupConfigResponse struct {
	RetentionDays              int    `json:"retentionDays"`
	MaxBackups                 int    `json:"maxBackups"`
	CompressionEnabled         bool   `json:"compressionEnabled"`
	CompressionAlgorithm       string `json:"compressionAlgorithm"`
	StorageBackend             string `json:"storageBackend"`
	ChangeColumn               string `json:"changeColumn"`
	IncrementalFallbackEnabled bool   `json:"incrementalFallbackEnabled"`
	IncrementalFallbackWindow  string `json:"incrementalFallbackWindow"`
}

// BackupListResponse is returned by GET /backups
type BackupListResponse struct {
	Backups    []BackupResponse         `json:"backups"`
	Statistics BackupStatisticsResponse `json:"statistics"`
	Config     BackupConfigResponse     `json:"config"`
}

// BackupDetailResponse wraps a single backup, optionally with its chain
type BackupDetailResponse struct {
	Backup BackupResponse   `json:"backup"`
	Chain  []BackupResponse `json:"chain,omitempty"`
}

package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type BackupType string

const (
	BackupTypeFull        BackupType = "full"
	BackupTypeIncremental BackupType = "incremental"
	BackupTypeSchemaOnly  BackupType = "schema_only"
	BackupTypeDataOnly    BackupType = "data_only"
)

var backupTypes = map[string]BackupType{
	"full":        BackupTypeFull,
	"incremental": BackupTypeIncremental,
	"schema_only": BackupTypeSchemaOnly,
	"data_only":   BackupTypeDataOnly,
}

// ParseBackupType rejects anything outside the known set
func ParseBackupType(s string) (BackupType, error) {
	t, ok := backupTypes[s]
	if !ok {
		return "", fmt.Errorf("unknown backup type: %s", s)
	}
	return t, nil
}

// HasSchema reports whether artifacts of this type carry table definitions
func (t BackupType) HasSchema() bool {
	return t != BackupTypeDataOnly
}

// HasData reports whether artifacts of this type carry rows
func (t BackupType) HasData() bool {
	return t != BackupTypeSchemaOnly
}

type BackupStatus string

const (
	BackupStatusPending   BackupStatus = "pending"
	BackupStatusRunning   BackupStatus = "running"
	BackupStatusCompleted BackupStatus = "completed"
	BackupStatusFailed    BackupStatus = "failed"
)

var backupStatuses = map[string]BackupStatus{
	"pending":   BackupStatusPending,
	"running":   BackupStatusRunning,
	"completed": BackupStatusCompleted,
	"failed":    BackupStatusFailed,
}

func ParseBackupStatus(s string) (BackupStatus, error) {
	st, ok := backupStatuses[s]
	if !ok {
		return "", fmt.Errorf("unknown backup status: %s", s)
	}
	return st, nil
}

type CompressionType string

const (
	CompressionNone CompressionType = "none"
	CompressionGzip CompressionType = "gzip"
	CompressionZstd CompressionType = "zstd"
	CompressionLZ4  CompressionType = "lz4"
)

type Backup struct {
	ID                 string          `db:"id"`
	Type               BackupType      `db:"type"`
	Status             BackupStatus    `db:"status"`
	Description        *string         `db:"description"`
	CompressionEnabled bool            `db:"compression_enabled"`
	Compression        CompressionType `db:"compression"`
	FromBackupID       *string         `db:"from_backup_id"` // Baseline for incremental backups
	Since              *time.Time      `db:"since"`
	Tables             []string        `db:"tables"`
	StartTime          time.Time       `db:"start_time"`
	EndTime            *time.Time      `db:"end_time"`
	SizeBytes          *int64          `db:"size_bytes"`
	Checksum           *string         `db:"checksum"`
	ArtifactKey        *string         `db:"artifact_key"`
	Error              *string         `db:"error"`
	OperationID        *int64          `db:"operation_id"`
}

// NewBackupID returns an id of the form 20060102-150405-<8 hex>
func NewBackupID(now time.Time) string {
	return fmt.Sprintf("%s-%s", now.UTC().Format("20060102-150405"), uuid.New().String()[:8])
}

func NewBackup(backupType BackupType, description string, compressionEnabled bool) *Backup {
	now := time.Now().UTC()
	b := &Backup{
		ID:                 NewBackupID(now),
		Type:               backupType,
		Status:             BackupStatusPending,
		CompressionEnabled: compressionEnabled,
		Compression:        CompressionNone,
		StartTime:          now,
	}
	if description != "" {
		b.Description = &description
	}
	return b
}

func (b *Backup) Start() {
	b.Status = BackupStatusRunning
}

func (b *Backup) Complete(endTime time.Time, size int64, checksum, artifactKey string) {
	b.Status = BackupStatusCompleted
	b.EndTime = &endTime
	b.SizeBytes = &size
	b.Checksum = &checksum
	b.ArtifactKey = &artifactKey
}

func (b *Backup) Fail(reason string) {
	now := time.Now().UTC()
	b.Status = BackupStatusFailed
	b.EndTime = &now
	b.Error = &reason
}

func (b *Backup) IsCompleted() bool {
	return b.Status == BackupStatusCompleted
}

// BackupStatistics aggregates the catalog
type BackupStatistics struct {
	Total             int
	ByStatus          map[BackupStatus]int
	ByType            map[BackupType]int
	TotalSizeBytes    int64
	AverageSizeBytes  int64
	SuccessRate       float64
	LastCompletedTime *time.Time
}

// BackupConfig is the read-only backup policy exposed to operators
type BackupConfig struct {
	RetentionDays              int
	MaxBackups                 int
	CompressionEnabled         bool
	CompressionAlgorithm       CompressionType
	StorageBackend             string
	ChangeColumn               string
	IncrementalFallbackEnabled bool
	IncrementalFallbackWindow  time.Duration
}

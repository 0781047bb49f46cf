package domain

import (
	"time"

	"github.com/google/uuid"
)

type OperationStatus string

const (
	OperationStatusRunning OperationStatus = "running"
	OperationStatusSuccess OperationStatus = "success"
	OperationStatusFailed  OperationStatus = "failed"
)

type OperationType string

const (
	OperationTypeBackup   OperationType = "backup"
	OperationTypeRestore  OperationType = "restore"
	OperationTypeMigrate  OperationType = "migrate"
	OperationTypeRollback OperationType = "rollback"
)

// Operation is an audit log entry for one admin action
type Operation struct {
	ID        int64                  `db:"id"`
	CommandID string                 `db:"command_id"` // UUID for API polling
	Command   string                 `db:"command"`
	Status    OperationStatus        `db:"status"`
	Output    *string                `db:"output"`
	Error     *string                `db:"error"`
	StartTime time.Time              `db:"start_time"`
	EndTime   *time.Time             `db:"end_time"`
	Type      OperationType          `db:"type"`
	Args      map[string]interface{} `db:"args"` // JSON-serializable args
}

func NewOperation(command string, operationType OperationType, args map[string]interface{}) *Operation {
	if args == nil {
		args = map[string]interface{}{}
	}
	return &Operation{
		CommandID: uuid.New().String(),
		Command:   command,
		Status:    OperationStatusRunning,
		StartTime: time.Now().UTC(),
		Type:      operationType,
		Args:      args,
	}
}

func (o *Operation) Succeed(output string) {
	now := time.Now().UTC()
	o.EndTime = &now
	o.Status = OperationStatusSuccess
	if output != "" {
		o.Output = &output
	}
}

func (o *Operation) Fail(errorOutput string) {
	now := time.Now().UTC()
	o.EndTime = &now
	o.Status = OperationStatusFailed
	if errorOutput != "" {
		o.Error = &errorOutput
	}
}

func (o *Operation) IsComplete() bool {
	return o.Status == OperationStatusSuccess || o.Status == OperationStatusFailed
}

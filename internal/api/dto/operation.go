package dto

import "time"

// OperationResponse represents an audit log entry
type OperationResponse struct {
	ID         int64                  `json:"id"`
	CommandID  string                 `json:"commandId"`
	Command    string                 `json:"command"`
	Status     string                 `json:"status"`
	Output     *string                `json:"output,omitempty"`
	Error      *string                `json:"error,omitempty"`
	StartTime  time.Time              `json:"startTime"`
	EndTime    *time.Time             `json:"endTime,omitempty"`
	Type       string                 `json:"type"`
	Args       map[string]interface{} `json:"args"`
	Link       string                 `json:"link"`
	ResourceID *string                `json:"resourceId,omitempty"`
}

// OperationListResponse represents a list of operations
type OperationListResponse struct {
	Items      []OperationResponse `json:"items"`
	Pagination PaginationInfo      `json:"pagination"`
}

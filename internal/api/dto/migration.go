package dto

import "time"

type MigrationResponse struct {
	Version   string     `json:"version"`
	Name      string     `json:"name"`
	Applied   bool       `json:"applied"`
	Status    *string    `json:"status,omitempty"`
	AppliedAt *time.Time `json:"appliedAt,omitempty"`
	Drifted   bool       `json:"drifted"`
	Error     *string    `json:"error,omitempty"`
}

// MissingMigrationResponse is a ledger row whose definition no longer exists
type MissingMigrationResponse struct {
	Version   string     `json:"version"`
	Name      string     `json:"name"`
	Status    string     `json:"status"`
	AppliedAt *time.Time `json:"appliedAt,omitempty"`
}

type MigrationStatusResponse struct {
	Migrations []MigrationResponse        `json:"migrations"`
	Missing    []MissingMigrationResponse `json:"missing"`
}

type MigrationStatisticsResponse struct {
	Total              int        `json:"total"`
	Applied            int        `json:"applied"`
	Pending            int        `json:"pending"`
	Failed             int        `json:"failed"`
	RolledBack         int        `json:"rolledBack"`
	Drifted            int        `json:"drifted"`
	Missing            int        `json:"missing"`
	LastAppliedVersion *string    `json:"lastAppliedVersion,omitempty"`
	LastAppliedAt      *time.Time `json:"lastAppliedAt,omitempty"`
}

// MigrationOverviewResponse is returned by GET /migrations
type MigrationOverviewResponse struct {
	Status     MigrationStatusResponse     `json:"status"`
	Statistics MigrationStatisticsResponse `json:"statistics"`
}

// MigrationRunResponse is returned by POST /migrations
type MigrationRunResponse struct {
	Status  MigrationStatusResponse `json:"status"`
	Applied []string                `json:"applied"`
}

type MigrationRollbackResponse struct {
	Version string `json:"version"`
}

package handler

import (
	"net/http"
	"testing"

	"github.com/martijn/vaultkeeper/internal/api/dto"
)

func TestCreateBackup(t *testing.T) {
	tests := []struct {
		name           string
		body           interface{}
		expectedStatus int
		expectedField  string // field reported in the error envelope
		checkFunc      func(t *testing.T, backup dto.BackupResponse)
	}{
		{
			name:           "full backup with default compression",
			body:           map[string]interface{}{"type": "full", "description": "nightly"},
			expectedStatus: http.StatusCreated,
			checkFunc: func(t *testing.T, backup dto.BackupResponse) {
				if backup.Status != "completed" {
					t.Errorf("expected completed, got %s", backup.Status)
				}
				if backup.Compression != "zstd" {
					t.Errorf("expected zstd compression, got %s", backup.Compression)
				}
				if backup.Description == nil || *backup.Description != "nightly" {
					t.Errorf("expected description nightly, got %v", backup.Description)
				}
				if backup.Link == nil {
					t.Error("expected an operation link")
				}
			},
		},
		{
			name:           "schema only backup without compression",
			body:           map[string]interface{}{"type": "schema_only", "compressionEnabled": false},
			expectedStatus: http.StatusCreated,
			checkFunc: func(t *testing.T, backup dto.BackupResponse) {
				if backup.CompressionEnabled || backup.Compression != "none" {
					t.Errorf("expected no compression, got %s", backup.Compression)
				}
			},
		},
		{
			name:           "unknown type",
			body:           map[string]interface{}{"type": "differential"},
			expectedStatus: http.StatusBadRequest,
			expectedField:  "type",
		},
		{
			name:           "missing type",
			body:           map[string]interface{}{},
			expectedStatus: http.StatusBadRequest,
			expectedField:  "type",
		},
		{
			name:           "malformed body",
			body:           `{"type":`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "incremental without a full baseline",
			body:           map[string]interface{}{"type": "incremental"},
			expectedStatus: http.StatusPreconditionFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupTestEnv(t)
			env.migrate(t)

			w := env.makeRequest(t, http.MethodPost, "/backups", tt.body)
			expectStatus(t, w, tt.expectedStatus)

			if tt.expectedStatus != http.StatusCreated {
				resp := parseEnvelope[any](t, w)
				if resp.Success {
					t.Fatal("expected success=false")
				}
				if tt.expectedField != "" {
					if _, ok := resp.Fields[tt.expectedField]; !ok {
						t.Errorf("expected field %s in %v", tt.expectedField, resp.Fields)
					}
				}
				return
			}

			resp := parseEnvelope[dto.BackupDetailResponse](t, w)
			if tt.checkFunc != nil {
				tt.checkFunc(t, resp.Data.Backup)
			}
		})
	}
}

func TestListBackups(t *testing.T) {
	env := setupTestEnv(t)
	env.migrate(t)

	full := env.fullBackup(t)
	expectStatus(t, env.makeRequest(t, http.MethodPost, "/backups", map[string]interface{}{"type": "incremental"}), http.StatusCreated)
	expectStatus(t, env.makeRequest(t, http.MethodPost, "/backups", map[string]interface{}{"type": "data_only"}), http.StatusCreated)

	tests := []struct {
		name           string
		queryString    string
		expectedStatus int
		expectedCount  int
		expectedField  string
	}{
		{name: "all backups", queryString: "", expectedStatus: http.StatusOK, expectedCount: 3},
		{name: "filter by type", queryString: "?type=full", expectedStatus: http.StatusOK, expectedCount: 1},
		{name: "filter by status", queryString: "?status=completed", expectedStatus: http.StatusOK, expectedCount: 3},
		{name: "filter by failed status", queryString: "?status=failed", expectedStatus: http.StatusOK, expectedCount: 0},
		{name: "limit", queryString: "?limit=2", expectedStatus: http.StatusOK, expectedCount: 2},
		{name: "unknown type returns 400", queryString: "?type=differential", expectedStatus: http.StatusBadRequest, expectedField: "type"},
		{name: "unknown status returns 400", queryString: "?status=done", expectedStatus: http.StatusBadRequest, expectedField: "status"},
		{name: "limit out of range returns 400", queryString: "?limit=1000", expectedStatus: http.StatusBadRequest, expectedField: "limit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.makeRequest(t, http.MethodGet, "/backups"+tt.queryString, nil)
			expectStatus(t, w, tt.expectedStatus)

			if tt.expectedStatus != http.StatusOK {
				resp := parseEnvelope[any](t, w)
				if _, ok := resp.Fields[tt.expectedField]; !ok {
					t.Errorf("expected field %s in %v", tt.expectedField, resp.Fields)
				}
				return
			}

			resp := parseEnvelope[dto.BackupListResponse](t, w)
			if len(resp.Data.Backups) != tt.expectedCount {
				t.Errorf("expected %d backups, got %d", tt.expectedCount, len(resp.Data.Backups))
			}
			if resp.Data.Statistics.Total != 3 {
				t.Errorf("expected statistics over 3 backups, got %d", resp.Data.Statistics.Total)
			}
			if resp.Data.Config.RetentionDays != 30 {
				t.Errorf("expected retention 30, got %d", resp.Data.Config.RetentionDays)
			}
		})
	}

	// The oldest backup is listed last
	w := env.makeRequest(t, http.MethodGet, "/backups", nil)
	resp := parseEnvelope[dto.BackupListResponse](t, w)
	if got := resp.Data.Backups[len(resp.Data.Backups)-1].ID; got != full.ID {
		t.Errorf("expected %s last, got %s", full.ID, got)
	}
}

func TestGetBackup(t *testing.T) {
	env := setupTestEnv(t)
	env.migrate(t)

	full := env.fullBackup(t)

	w := env.makeRequest(t, http.MethodPost, "/backups", map[string]interface{}{"type": "incremental"})
	expectStatus(t, w, http.StatusCreated)
	incremental := parseEnvelope[dto.BackupDetailResponse](t, w).Data.Backup

	w = env.makeRequest(t, http.MethodGet, "/backups/"+full.ID, nil)
	expectStatus(t, w, http.StatusOK)
	resp := parseEnvelope[dto.BackupDetailResponse](t, w)
	if resp.Data.Backup.ID != full.ID {
		t.Errorf("expected %s, got %s", full.ID, resp.Data.Backup.ID)
	}
	if len(resp.Data.Chain) != 0 {
		t.Errorf("full backups have no chain, got %d entries", len(resp.Data.Chain))
	}

	w = env.makeRequest(t, http.MethodGet, "/backups/"+incremental.ID, nil)
	expectStatus(t, w, http.StatusOK)
	resp = parseEnvelope[dto.BackupDetailResponse](t, w)
	if len(resp.Data.Chain) != 2 || resp.Data.Chain[0].ID != full.ID {
		t.Errorf("expected chain [%s %s], got %+v", full.ID, incremental.ID, resp.Data.Chain)
	}

	w = env.makeRequest(t, http.MethodGet, "/backups/20260101-000000-deadbeef", nil)
	expectStatus(t, w, http.StatusNotFound)
}

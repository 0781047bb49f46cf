package handler

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/martijn/vaultkeeper/internal/api/dto"
	"github.com/martijn/vaultkeeper/internal/core/repository"
)

func TestCreateRestore(t *testing.T) {
	tests := []struct {
		name           string
		backupID       string // empty uses the seeded full backup
		body           interface{}
		expectedStatus int
		expectedField  string
	}{
		{
			name:           "selective restore without tables",
			body:           map[string]interface{}{"restoreType": "selective", "selectedTables": []string{}},
			expectedStatus: http.StatusBadRequest,
			expectedField:  "selectedTables",
		},
		{
			name:           "unknown restore type",
			body:           map[string]interface{}{"restoreType": "everything"},
			expectedStatus: http.StatusBadRequest,
			expectedField:  "restoreType",
		},
		{
			name:           "missing restore type",
			body:           map[string]interface{}{},
			expectedStatus: http.StatusBadRequest,
			expectedField:  "restoreType",
		},
		{
			name:           "invalid target name",
			body:           map[string]interface{}{"restoreType": "full", "targetDatabase": "../etc"},
			expectedStatus: http.StatusBadRequest,
			expectedField:  "targetDatabase",
		},
		{
			name:           "unknown backup",
			backupID:       "20260101-000000-deadbeef",
			body:           map[string]interface{}{"restoreType": "full"},
			expectedStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupTestEnv(t)
			env.migrate(t)
			backupID := tt.backupID
			if backupID == "" {
				backupID = env.fullBackup(t).ID
			}

			w := env.makeRequest(t, http.MethodPost, "/backups/"+backupID+"/restore", tt.body)
			expectStatus(t, w, tt.expectedStatus)

			resp := parseEnvelope[any](t, w)
			if resp.Success {
				t.Fatal("expected success=false")
			}
			if tt.expectedField != "" {
				if _, ok := resp.Fields[tt.expectedField]; !ok {
					t.Errorf("expected field %s in %v", tt.expectedField, resp.Fields)
				}
			}

			// Rejected requests leave no audit entry behind
			count, err := env.restores.CountRestores(context.Background(), repository.RestoreFilter{})
			if err != nil {
				t.Fatalf("failed to count restores: %v", err)
			}
			if count != 0 {
				t.Errorf("expected no restore records, got %d", count)
			}
		})
	}
}

func TestCreateRestoreUnknownTable(t *testing.T) {
	env := setupTestEnv(t)
	env.migrate(t)
	backup := env.fullBackup(t)

	w := env.makeRequest(t, http.MethodPost, "/backups/"+backup.ID+"/restore", map[string]interface{}{
		"restoreType":    "selective",
		"selectedTables": []string{"invoices"},
	})
	expectStatus(t, w, http.StatusBadRequest)

	resp := parseEnvelope[any](t, w)
	if _, ok := resp.Fields["selectedTables"]; !ok {
		t.Errorf("expected field selectedTables in %v", resp.Fields)
	}

	// The table check needs the artifact, so the attempt is recorded as failed
	w = env.makeRequest(t, http.MethodGet, "/restores?query=status|failed", nil)
	list := parseEnvelope[dto.RestoreListResponse](t, w)
	if len(list.Data.Items) != 1 {
		t.Fatalf("expected 1 failed restore, got %d", len(list.Data.Items))
	}
	if list.Data.Items[0].Error == nil {
		t.Error("expected the failure reason to be recorded")
	}
}

func TestCreateRestoreEndToEnd(t *testing.T) {
	env := setupTestEnv(t)
	env.migrate(t)

	backup := env.fullBackup(t)

	if _, err := env.db.Exec(`DELETE FROM brands`); err != nil {
		t.Fatalf("failed to delete brands: %v", err)
	}

	w := env.makeRequest(t, http.MethodPost, "/backups/"+backup.ID+"/restore", map[string]interface{}{
		"restoreType":               "full",
		"validateBeforeRestore":     true,
		"createBackupBeforeRestore": true,
	})
	expectStatus(t, w, http.StatusOK)

	resp := parseEnvelope[dto.RestoreCreatedResponse](t, w)
	if resp.Data.BackupID != backup.ID {
		t.Errorf("expected backupId %s, got %s", backup.ID, resp.Data.BackupID)
	}
	if resp.Data.Message == "" {
		t.Error("expected a message")
	}
	restore := resp.Data.Restore
	if restore.Status != "completed" {
		t.Errorf("expected completed restore, got %s", restore.Status)
	}
	if restore.Target != "live" {
		t.Errorf("expected live target, got %s", restore.Target)
	}
	if restore.PreRestoreBackupID == nil {
		t.Fatal("expected a pre-restore backup")
	}

	var brands int
	if err := env.db.Get(&brands, `SELECT COUNT(*) FROM brands`); err != nil {
		t.Fatalf("failed to count brands: %v", err)
	}
	if brands != 2 {
		t.Errorf("expected 2 brands after restore, got %d", brands)
	}

	// The pre-restore backup is listed next to the original
	w = env.makeRequest(t, http.MethodGet, "/backups", nil)
	list := parseEnvelope[dto.BackupListResponse](t, w)
	if len(list.Data.Backups) != 2 {
		t.Errorf("expected 2 backups, got %d", len(list.Data.Backups))
	}

	w = env.makeRequest(t, http.MethodGet, fmt.Sprintf("/restores/%d", restore.ID), nil)
	expectStatus(t, w, http.StatusOK)
	got := parseEnvelope[dto.RestoreResponse](t, w)
	if got.Data.ID != restore.ID || got.Data.Status != "completed" {
		t.Errorf("unexpected restore: %+v", got.Data)
	}
}

func TestListRestores(t *testing.T) {
	env := setupTestEnv(t)
	env.migrate(t)

	backup := env.fullBackup(t)
	bodies := []map[string]interface{}{
		{"restoreType": "full"},
		{"restoreType": "data_only"},
		{"restoreType": "selective", "selectedTables": []string{"brands"}},
		{"restoreType": "full", "targetDatabase": "staging"},
		{"restoreType": "schema_only", "targetDatabase": "staging"},
	}
	for _, body := range bodies {
		expectStatus(t, env.makeRequest(t, http.MethodPost, "/backups/"+backup.ID+"/restore", body), http.StatusOK)
	}

	tests := []struct {
		name           string
		queryString    string
		expectedStatus int
		expectedCount  int // expected number of items in response
		expectedTotal  int // expected total in pagination
	}{
		{name: "basic listing returns all restores", expectedStatus: http.StatusOK, expectedCount: 5, expectedTotal: 5},
		{name: "filter by restore type", queryString: "?query=restore_type|full", expectedStatus: http.StatusOK, expectedCount: 2, expectedTotal: 2},
		{name: "filter by target", queryString: "?query=target|staging", expectedStatus: http.StatusOK, expectedCount: 2, expectedTotal: 2},
		{name: "filter by target ne", queryString: "?query=target|ne|staging", expectedStatus: http.StatusOK, expectedCount: 3, expectedTotal: 3},
		{name: "filter by status", queryString: "?query=status|completed", expectedStatus: http.StatusOK, expectedCount: 5, expectedTotal: 5},
		{name: "filter by backup id", queryString: "?query=backup_id|" + backup.ID, expectedStatus: http.StatusOK, expectedCount: 5, expectedTotal: 5},
		{name: "order by id ascending", queryString: "?order=id|asc", expectedStatus: http.StatusOK, expectedCount: 5, expectedTotal: 5},
		{name: "pagination page 1 with per_page 2", queryString: "?page=1&per_page=2&order=id|asc", expectedStatus: http.StatusOK, expectedCount: 2, expectedTotal: 5},
		{name: "pagination page 3 with per_page 2", queryString: "?page=3&per_page=2&order=id|asc", expectedStatus: http.StatusOK, expectedCount: 1, expectedTotal: 5},
		{name: "per_page 0 disables pagination", queryString: "?page=2&per_page=0", expectedStatus: http.StatusOK, expectedCount: 5, expectedTotal: 5},
		{name: "negative per_page returns 400", queryString: "?per_page=-1", expectedStatus: http.StatusBadRequest},
		{name: "invalid query field returns 400", queryString: "?query=invalid_field|value", expectedStatus: http.StatusBadRequest},
		{name: "invalid order field returns 400", queryString: "?order=invalid_field|desc", expectedStatus: http.StatusBadRequest},
		{name: "invalid operator returns 400", queryString: "?query=id|invalidop|value", expectedStatus: http.StatusBadRequest},
		{name: "invalid page returns 400", queryString: "?page=0", expectedStatus: http.StatusBadRequest},
		{name: "per_page too large returns 400", queryString: "?per_page=1000", expectedStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.makeRequest(t, http.MethodGet, "/restores"+tt.queryString, nil)
			expectStatus(t, w, tt.expectedStatus)

			if tt.expectedStatus != http.StatusOK {
				resp := parseEnvelope[any](t, w)
				if resp.Success || len(resp.Fields) == 0 {
					t.Errorf("expected field errors, got %+v", resp)
				}
				return
			}

			resp := parseEnvelope[dto.RestoreListResponse](t, w)
			if len(resp.Data.Items) != tt.expectedCount {
				t.Errorf("expected %d items, got %d", tt.expectedCount, len(resp.Data.Items))
			}
			if resp.Data.Pagination.Total != tt.expectedTotal {
				t.Errorf("expected total %d, got %d", tt.expectedTotal, resp.Data.Pagination.Total)
			}
		})
	}
}

func TestListRestoresPaginationMetadata(t *testing.T) {
	env := setupTestEnv(t)
	env.migrate(t)

	backup := env.fullBackup(t)
	for i := 0; i < 3; i++ {
		expectStatus(t, env.makeRequest(t, http.MethodPost, "/backups/"+backup.ID+"/restore",
			map[string]interface{}{"restoreType": "data_only"}), http.StatusOK)
	}

	w := env.makeRequest(t, http.MethodGet, "/restores?page=2&per_page=2", nil)
	expectStatus(t, w, http.StatusOK)

	resp := parseEnvelope[dto.RestoreListResponse](t, w)
	if resp.Data.Pagination.Page != 2 {
		t.Errorf("expected page 2, got %d", resp.Data.Pagination.Page)
	}
	if resp.Data.Pagination.PerPage != 2 {
		t.Errorf("expected perPage 2, got %d", resp.Data.Pagination.PerPage)
	}
	if resp.Data.Pagination.TotalPages != 2 {
		t.Errorf("expected totalPages 2, got %d", resp.Data.Pagination.TotalPages)
	}
}

func TestGetRestore(t *testing.T) {
	env := setupTestEnv(t)

	expectStatus(t, env.makeRequest(t, http.MethodGet, "/restores/abc", nil), http.StatusBadRequest)
	expectStatus(t, env.makeRequest(t, http.MethodGet, "/restores/999", nil), http.StatusNotFound)
}

package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/martijn/vaultkeeper/internal/api/middleware"
	"github.com/martijn/vaultkeeper/internal/core/domain"
	"github.com/martijn/vaultkeeper/internal/core/service"
	"github.com/martijn/vaultkeeper/internal/infrastructure/artifact"
	"github.com/martijn/vaultkeeper/internal/infrastructure/sqlite"
	"github.com/martijn/vaultkeeper/internal/metrics"
	"github.com/martijn/vaultkeeper/internal/migrations"
	"github.com/martijn/vaultkeeper/pkg/logger"
)

// testEnv holds all test dependencies
type testEnv struct {
	db     *sqlite.DB
	router *gin.Engine
	token  string

	auth       *service.AuthService
	operations *service.OperationService
	migrations *service.MigrationService
	backups    *service.BackupService
	restores   *service.RestoreService
}

// envelope mirrors dto.Response with a typed payload
type envelope[T any] struct {
	Success bool              `json:"success"`
	Data    T                 `json:"data"`
	Error   string            `json:"error"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields"`
}

// setupTestEnv creates a test environment backed by a temporary SQLite file
func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dir := t.TempDir()
	db, err := sqlite.New(filepath.Join(dir, "platform.db"))
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	artifacts, err := artifact.NewLocalStore(filepath.Join(dir, "backups"))
	if err != nil {
		t.Fatalf("failed to create artifact store: %v", err)
	}

	definitions, err := migrations.Embedded()
	if err != nil {
		t.Fatalf("failed to load migrations: %v", err)
	}

	log := logger.Discard()
	m := metrics.New()

	// Create repositories
	backupRepo := sqlite.NewBackupRepository(db)
	restoreRepo := sqlite.NewRestoreRepository(db)
	live := sqlite.NewDataStore(db, log)

	// Create services
	auth := service.NewAuthService(sqlite.NewClientRepository(db), "test-secret", "HS256")
	operations := service.NewOperationService(sqlite.NewOperationRepository(db), log)
	migrationService := service.NewMigrationService(sqlite.NewMigrationRepository(db), definitions, operations, m, log)
	backups := service.NewBackupService(backupRepo, live, artifacts, artifact.NewCompression(), operations, m, domain.BackupConfig{
		RetentionDays:             30,
		MaxBackups:                100,
		CompressionEnabled:        true,
		CompressionAlgorithm:      domain.CompressionZstd,
		StorageBackend:            artifacts.Backend(),
		ChangeColumn:              "updated_at",
		IncrementalFallbackWindow: 24 * time.Hour,
	}, log)
	restores := service.NewRestoreService(restoreRepo, backupRepo, backups, live,
		sqlite.ScratchTargets(filepath.Join(dir, "restores"), log), operations, m, log)

	// Setup gin router in test mode
	gin.SetMode(gin.TestMode)
	middleware.RegisterJSONFieldNames()
	router := gin.New()
	router.Use(middleware.ErrorHandlerMiddleware(log))

	authHandler := NewAuthHandler(auth)
	clientHandler := NewClientHandler(auth)
	migrationHandler := NewMigrationHandler(migrationService)
	backupHandler := NewBackupHandler(backups)
	restoreHandler := NewRestoreHandler(restores)
	operationHandler := NewOperationHandler(operations)

	router.POST("/auth/token", authHandler.Token)

	admin := router.Group("")
	admin.Use(middleware.AuthMiddleware(auth), middleware.RequireScope(domain.ScopeAdmin))
	admin.GET("/migrations", migrationHandler.GetMigrations)
	admin.POST("/migrations", migrationHandler.RunMigrations)
	admin.POST("/migrations/:version/rollback", migrationHandler.RollbackMigration)
	admin.POST("/backups", backupHandler.CreateBackup)
	admin.GET("/backups", backupHandler.ListBackups)
	admin.GET("/backups/:id", backupHandler.GetBackup)
	admin.POST("/backups/:id/restore", restoreHandler.CreateRestore)
	admin.GET("/restores", restoreHandler.ListRestores)
	admin.GET("/restores/:id", restoreHandler.GetRestore)
	admin.GET("/operations", operationHandler.ListOperations)
	admin.GET("/operations/:id", operationHandler.GetOperation)
	admin.GET("/status/:command_id", operationHandler.GetOperationByCommandID)
	admin.POST("/clients", clientHandler.CreateClient)
	admin.GET("/clients", clientHandler.ListClients)
	admin.DELETE("/clients/:id", clientHandler.DeleteClient)

	token, err := auth.IssueToken("tester", service.SubjectTypeCLI, []string{domain.ScopeAdmin})
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}

	return &testEnv{
		db:         db,
		router:     router,
		token:      token,
		auth:       auth,
		operations: operations,
		migrations: migrationService,
		backups:    backups,
		restores:   restores,
	}
}

// migrate applies the platform migrations and seeds two brands
func (env *testEnv) migrate(t *testing.T) {
	t.Helper()

	if _, err := env.migrations.RunPendingMigrations(context.Background()); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	_, err := env.db.Exec(`
		INSERT INTO brands (id, name, slug, updated_at) VALUES
			(1, 'Acme', 'acme', '2026-01-01 10:00:00'),
			(2, 'Globex', 'globex', '2026-01-02 10:00:00')
	`)
	if err != nil {
		t.Fatalf("failed to seed brands: %v", err)
	}
}

// fullBackup creates a completed full backup through the service
func (env *testEnv) fullBackup(t *testing.T) *domain.Backup {
	t.Helper()

	backup, err := env.backups.CreateFullBackup(context.Background(), "", nil)
	if err != nil {
		t.Fatalf("failed to create backup: %v", err)
	}
	return backup
}

// makeRequest performs a request authenticated with the admin token
func (env *testEnv) makeRequest(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	return env.makeRequestWithToken(t, method, path, env.token, body)
}

// makeRequestWithToken performs a request; an empty token sends no header
func (env *testEnv) makeRequestWithToken(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, path, reader)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w
}

// parseEnvelope parses the response body into an envelope with payload T
func parseEnvelope[T any](t *testing.T, w *httptest.ResponseRecorder) envelope[T] {
	t.Helper()

	var resp envelope[T]
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v\nBody: %s", err, w.Body.String())
	}
	return resp
}

// expectStatus fails the test when the status code differs
func expectStatus(t *testing.T, w *httptest.ResponseRecorder, expected int) {
	t.Helper()

	if w.Code != expected {
		t.Fatalf("expected status %d, got %d\nBody: %s", expected, w.Code, w.Body.String())
	}
}

// ptr is a helper to create a pointer to a value
func ptr[T any](v T) *T {
	return &v
}

package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/martijn/vaultkeeper/internal/api/handler"
	"github.com/martijn/vaultkeeper/internal/api/middleware"
	"github.com/martijn/vaultkeeper/internal/core/domain"
	"github.com/martijn/vaultkeeper/internal/core/service"
	"github.com/martijn/vaultkeeper/internal/metrics"
	"github.com/martijn/vaultkeeper/pkg/config"
	"github.com/sirupsen/logrus"
)

// Services are the dependencies the admin API routes to
type Services struct {
	Auth       *service.AuthService
	Operations *service.OperationService
	Migrations *service.MigrationService
	Backups    *service.BackupService
	Restores   *service.RestoreService
}

type Server struct {
	router *gin.Engine
	srv    *http.Server
	config *config.Config
	log    logrus.FieldLogger
}

// NewServer creates a new API server
func NewServer(cfg *config.Config, services Services, m *metrics.Metrics, log logrus.FieldLogger) *Server {
	if !cfg.IsDevMode() {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		router: NewRouter(cfg, services, m, log),
		config: cfg,
		log:    log,
	}
	s.srv = &http.Server{
		Addr:           fmt.Sprintf("%s:%d", cfg.APIHost, cfg.APIPort),
		Handler:        s.router,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   s.writeTimeout(),
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20, // 1 MB
	}
	return s
}

// NewRouter wires middleware and routes. Every admin route needs a token
// carrying the admin scope.
func NewRouter(cfg *config.Config, services Services, m *metrics.Metrics, log logrus.FieldLogger) *gin.Engine {
	middleware.RegisterJSONFieldNames()

	router := gin.New()

	// Global middleware
	router.Use(middleware.RequestLogger(log, m))
	router.Use(gin.Recovery())
	router.Use(middleware.ErrorHandlerMiddleware(log))
	router.Use(middleware.CORSMiddleware(cfg.CORSOrigins))
	router.Use(middleware.StoreTimeout(cfg.StoreTimeout))

	authHandler := handler.NewAuthHandler(services.Auth)
	clientHandler := handler.NewClientHandler(services.Auth)
	migrationHandler := handler.NewMigrationHandler(services.Migrations)
	backupHandler := handler.NewBackupHandler(services.Backups)
	restoreHandler := handler.NewRestoreHandler(services.Restores)
	operationHandler := handler.NewOperationHandler(services.Operations)

	// Public routes (no auth required)
	router.POST("/auth/token", authHandler.Token)
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().Format(time.RFC3339),
		})
	})
	router.GET("/metrics", gin.WrapH(m.Handler()))

	admin := router.Group("")
	admin.Use(middleware.AuthMiddleware(services.Auth), middleware.RequireScope(domain.ScopeAdmin))

	migrations := admin.Group("/migrations")
	{
		migrations.GET("", migrationHandler.GetMigrations)
		migrations.POST("", migrationHandler.RunMigrations)
		migrations.POST("/:version/rollback", migrationHandler.RollbackMigration)
	}

	backups := admin.Group("/backups")
	{
		backups.POST("", backupHandler.CreateBackup)
		backups.GET("", backupHandler.ListBackups)
		backups.GET("/:id", backupHandler.GetBackup)
		backups.POST("/:id/restore", restoreHandler.CreateRestore)
	}

	restores := admin.Group("/restores")
	{
		restores.GET("", restoreHandler.ListRestores)
		restores.GET("/:id", restoreHandler.GetRestore)
	}

	operations := admin.Group("/operations")
	{
		operations.GET("", operationHandler.ListOperations)
		operations.GET("/:id", operationHandler.GetOperation)
	}
	admin.GET("/status/:command_id", operationHandler.GetOperationByCommandID)

	clients := admin.Group("/clients")
	{
		clients.POST("", clientHandler.CreateClient)
		clients.GET("", clientHandler.ListClients)
		clients.DELETE("/:id", clientHandler.DeleteClient)
	}

	return router
}

// Start starts the HTTP server
// Start blocks until the listener fails or Shutdown is called
func (s *Server) Start() error {
	addr := s.srv.Addr

	if s.config.SSLCert != "" && s.config.SSLKey != "" {
		s.log.WithField("addr", addr).Info("Starting HTTPS server")
		return s.srv.ListenAndServeTLS(s.config.SSLCert, s.config.SSLKey)
	}

	s.log.WithField("addr", addr).Info("Starting HTTP server")
	return s.srv.ListenAndServe()
}

// writeTimeout leaves room for a backup or restore to use its whole store timeout
func (s *Server) writeTimeout() time.Duration {
	if s.config.StoreTimeout > 0 {
		return s.config.StoreTimeout + 15*time.Second
	}
	return 0
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

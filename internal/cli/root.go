package cli

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/martijn/vaultkeeper/internal/api"
	"github.com/martijn/vaultkeeper/internal/core/domain"
	"github.com/martijn/vaultkeeper/internal/core/service"
	"github.com/martijn/vaultkeeper/internal/infrastructure/artifact"
	"github.com/martijn/vaultkeeper/internal/infrastructure/sqlite"
	"github.com/martijn/vaultkeeper/internal/metrics"
	"github.com/martijn/vaultkeeper/internal/migrations"
	"github.com/martijn/vaultkeeper/pkg/config"
	"github.com/martijn/vaultkeeper/pkg/logger"
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	cfg     *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "vaultkeeper",
	Short: "Vaultkeeper - schema migrations, backups and restores for the platform database",
	Long: `Vaultkeeper manages the platform database.

It provides:
- Versioned schema migrations with a ledger and rollback
- Full, incremental, schema-only and data-only backups
- Full, schema-only, data-only and selective restores
- An admin REST API protected by OAuth2 client credentials`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for commands that don't need it
		if cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		return nil
	},
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is "+config.DefaultConfigPath+")")
}

// Services holds everything a command needs
type Services struct {
	DB      *sqlite.DB
	Log     *logger.Logger
	Metrics *metrics.Metrics
	api.Services
}

// Close closes all resources
func (s *Services) Close() {
	if s.DB != nil {
		s.DB.Close()
	}
	if s.Log != nil {
		s.Log.Close()
	}
}

// initServices wires the store, artifact storage and services from cfg
func initServices(ctx context.Context) (*Services, error) {
	log, err := logger.New(cfg.LogLevel, cfg.LogFormat, cfg.LogFile)
	if err != nil {
		return nil, err
	}

	db, err := sqlite.New(cfg.DBPath)
	if err != nil {
		log.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	services := &Services{DB: db, Log: log, Metrics: metrics.New()}

	artifacts, err := newArtifactStore(ctx, log)
	if err != nil {
		services.Close()
		return nil, err
	}

	definitions, err := loadMigrations()
	if err != nil {
		services.Close()
		return nil, err
	}

	// Initialize repositories
	clientRepo := sqlite.NewClientRepository(db)
	operationRepo := sqlite.NewOperationRepository(db)
	migrationRepo := sqlite.NewMigrationRepository(db)
	backupRepo := sqlite.NewBackupRepository(db)
	restoreRepo := sqlite.NewRestoreRepository(db)
	live := sqlite.NewDataStore(db, log)

	// Initialize services
	operations := service.NewOperationService(operationRepo, log)
	backups := service.NewBackupService(backupRepo, live, artifacts, artifact.NewCompression(), operations,
		services.Metrics, backupConfig(artifacts.Backend()), log)

	services.Services = api.Services{
		Auth:       service.NewAuthService(clientRepo, cfg.JWTSecretKey, cfg.JWTAlgorithm),
		Operations: operations,
		Migrations: service.NewMigrationService(migrationRepo, definitions, operations, services.Metrics, log),
		Backups:    backups,
		Restores: service.NewRestoreService(restoreRepo, backupRepo, backups, live,
			sqlite.ScratchTargets(filepath.Join(cfg.BackupDir, "restores"), log), operations, services.Metrics, log),
	}

	return services, nil
}

func newArtifactStore(ctx context.Context, log *logger.Logger) (artifact.Store, error) {
	if cfg.Storage.Backend == "s3" {
		s3 := cfg.Storage.S3
		return artifact.NewS3Store(ctx, artifact.S3Config{
			Bucket:          s3.Bucket,
			Region:          s3.Region,
			Prefix:          s3.Prefix,
			Endpoint:        s3.Endpoint,
			AccessKeyID:     s3.AccessKeyID,
			SecretAccessKey: s3.SecretAccessKey,
		}, log)
	}

	store, err := artifact.NewLocalStore(cfg.BackupDir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize artifact store: %w", err)
	}
	return store, nil
}

func loadMigrations() ([]*domain.Migration, error) {
	if cfg.Migrations.Dir != "" {
		return migrations.FromDir(cfg.Migrations.Dir)
	}
	return migrations.Embedded()
}

func backupConfig(backend string) domain.BackupConfig {
	b := cfg.Backup
	return domain.BackupConfig{
		RetentionDays:              b.RetentionDays,
		MaxBackups:                 b.MaxBackups,
		CompressionEnabled:         b.CompressionEnabled,
		CompressionAlgorithm:       domain.CompressionType(b.CompressionAlgorithm),
		StorageBackend:             backend,
		ChangeColumn:               b.ChangeColumn,
		IncrementalFallbackEnabled: b.IncrementalFallback.Enabled,
		IncrementalFallbackWindow:  b.IncrementalFallback.Window,
	}
}

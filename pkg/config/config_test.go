package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	backupDir := t.TempDir()
	path := writeConfig(t, "backup_dir: "+backupDir+"\njwt_secret_key: secret\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, backupDir, cfg.BackupDir)
	assert.Equal(t, DefaultDBPath, cfg.DBPath)
	assert.Equal(t, DefaultAPIHost, cfg.APIHost)
	assert.Equal(t, DefaultAPIPort, cfg.APIPort)
	assert.Equal(t, DefaultJWTAlgorithm, cfg.JWTAlgorithm)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.True(t, cfg.Backup.CompressionEnabled)
	assert.Equal(t, "zstd", cfg.Backup.CompressionAlgorithm)
	assert.Equal(t, DefaultRetentionDays, cfg.Backup.RetentionDays)
	assert.Equal(t, "updated_at", cfg.Backup.ChangeColumn)
	assert.False(t, cfg.Backup.IncrementalFallback.Enabled)
	assert.Equal(t, 24*time.Hour, cfg.Backup.IncrementalFallback.Window)
	assert.Equal(t, "local", cfg.Storage.Backend)
	assert.Equal(t, DefaultStoreTimeout, cfg.StoreTimeout)
	assert.Equal(t, path, cfg.ConfigPath)
}

func TestLoadReadsNestedKeys(t *testing.T) {
	backupDir := t.TempDir()
	path := writeConfig(t, `
backup_dir: `+backupDir+`
jwt_secret_key: secret
log_format: json
migrations:
  dir: /opt/migrations
backup:
  compression_algorithm: lz4
  max_backups: 7
  incremental_fallback:
    enabled: true
    window: 6h
storage:
  backend: s3
  s3:
    bucket: platform-backups
    region: eu-west-1
store:
  timeout: 5s
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "/opt/migrations", cfg.Migrations.Dir)
	assert.Equal(t, "lz4", cfg.Backup.CompressionAlgorithm)
	assert.Equal(t, 7, cfg.Backup.MaxBackups)
	assert.True(t, cfg.Backup.IncrementalFallback.Enabled)
	assert.Equal(t, 6*time.Hour, cfg.Backup.IncrementalFallback.Window)
	assert.Equal(t, "s3", cfg.Storage.Backend)
	assert.Equal(t, "platform-backups", cfg.Storage.S3.Bucket)
	assert.Equal(t, "eu-west-1", cfg.Storage.S3.Region)
	assert.Equal(t, 5*time.Second, cfg.StoreTimeout)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	backupDir := t.TempDir()
	path := writeConfig(t, "backup_dir: "+backupDir+"\njwt_secret_key: secret\n")

	t.Setenv("VAULTKEEPER_API_PORT", "9443")
	t.Setenv("VAULTKEEPER_BACKUP_RETENTION_DAYS", "5")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9443, cfg.APIPort)
	assert.Equal(t, 5, cfg.Backup.RetentionDays)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)
}

func validConfig(t *testing.T) Config {
	return Config{
		BackupDir:    t.TempDir(),
		JWTSecretKey: "secret",
		DBPath:       ":memory:",
		APIPort:      DefaultAPIPort,
		JWTAlgorithm: "HS256",
		LogFormat:    "text",
		Backup: BackupConfig{
			CompressionAlgorithm: "zstd",
			ChangeColumn:         "updated_at",
		},
		Storage: StorageConfig{Backend: "local"},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"missing backup dir", func(c *Config) { c.BackupDir = "" }, "backup_dir is required"},
		{"backup dir does not exist", func(c *Config) { c.BackupDir = "/nonexistent/vaultkeeper" }, "backup_dir does not exist"},
		{"missing secret", func(c *Config) { c.JWTSecretKey = "" }, "jwt_secret_key is required"},
		{"bad algorithm", func(c *Config) { c.JWTAlgorithm = "RS256" }, "jwt_algorithm"},
		{"bad port", func(c *Config) { c.APIPort = 70000 }, "api_port"},
		{"bad compression", func(c *Config) { c.Backup.CompressionAlgorithm = "brotli" }, "compression_algorithm"},
		{"negative retention", func(c *Config) { c.Backup.RetentionDays = -1 }, "retention_days"},
		{"fallback without window", func(c *Config) { c.Backup.IncrementalFallback.Enabled = true }, "window must be positive"},
		{"bad backend", func(c *Config) { c.Storage.Backend = "ftp" }, "storage.backend"},
		{"s3 without bucket", func(c *Config) { c.Storage.Backend = "s3" }, "storage.s3.bucket is required"},
		{"cert without key", func(c *Config) { c.SSLCert = "/tmp/cert.pem" }, "both ssl_cert and ssl_key"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestIsDevMode(t *testing.T) {
	cfg := validConfig(t)

	t.Setenv("VAULTKEEPER_DEV_MODE", "1")
	assert.True(t, cfg.IsDevMode())

	t.Setenv("VAULTKEEPER_DEV_MODE", "")
	assert.False(t, cfg.IsDevMode())
}

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	// Required fields
	BackupDir    string `mapstructure:"backup_dir"`
	JWTSecretKey string `mapstructure:"jwt_secret_key"`

	// Data store
	DBPath       string        `mapstructure:"db_path"`
	StoreTimeout time.Duration `mapstructure:"-"`

	// Optional API settings
	APIHost string `mapstructure:"api_host"`
	APIPort int    `mapstructure:"api_port"`

	// Optional SSL settings
	SSLCert string `mapstructure:"ssl_cert"`
	SSLKey  string `mapstructure:"ssl_key"`

	// Optional CORS settings
	CORSOrigins []string `mapstructure:"cors_origins"`

	// Optional logging settings
	LogFile   string `mapstructure:"log_file"`
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	// Optional JWT settings
	JWTAlgorithm string `mapstructure:"jwt_algorithm"`

	Migrations MigrationsConfig `mapstructure:"migrations"`
	Backup     BackupConfig     `mapstructure:"backup"`
	Storage    StorageConfig    `mapstructure:"storage"`

	ConfigPath string `mapstructure:"-"`
}

type MigrationsConfig struct {
	// Dir overrides the embedded migrations when set
	Dir string `mapstructure:"dir"`
}

type BackupConfig struct {
	CompressionEnabled   bool   `mapstructure:"compression_enabled"`
	CompressionAlgorithm string `mapstructure:"compression_algorithm"`
	RetentionDays        int    `mapstructure:"retention_days"`
	MaxBackups           int    `mapstructure:"max_backups"`
	ChangeColumn         string `mapstructure:"change_column"`

	IncrementalFallback IncrementalFallbackConfig `mapstructure:"incremental_fallback"`
}

// IncrementalFallbackConfig lets an incremental backup run without a full
// baseline by capturing the changes of a fixed window
type IncrementalFallbackConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Window  time.Duration `mapstructure:"window"`
}

type StorageConfig struct {
	Backend string   `mapstructure:"backend"` // "local" or "s3"
	S3      S3Config `mapstructure:"s3"`
}

type S3Config struct {
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	Prefix          string `mapstructure:"prefix"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
}

const (
	EnvPrefix             = "VAULTKEEPER"
	DefaultConfigPath     = "/etc/vaultkeeper/config.yml"
	DefaultDBPath         = "/var/lib/vaultkeeper/db.sqlite3"
	DefaultAPIHost        = "0.0.0.0"
	DefaultAPIPort        = 8335
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "text"
	DefaultJWTAlgorithm   = "HS256"
	DefaultCompression    = "zstd"
	DefaultRetentionDays  = 30
	DefaultMaxBackups     = 100
	DefaultChangeColumn   = "updated_at"
	DefaultFallbackWindow = 24 * time.Hour
	DefaultStorageBackend = "local"
	DefaultStoreTimeout   = 30 * time.Second
)

var (
	validAlgorithms      = []string{"HS256", "HS384", "HS512"}
	validCompressions    = []string{"gzip", "zstd", "lz4"}
	validLogFormats      = []string{"text", "json"}
	validStorageBackends = []string{"local", "s3"}
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("db_path", DefaultDBPath)
	v.SetDefault("api_host", DefaultAPIHost)
	v.SetDefault("api_port", DefaultAPIPort)
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("log_format", DefaultLogFormat)
	v.SetDefault("jwt_algorithm", DefaultJWTAlgorithm)
	v.SetDefault("cors_origins", []string{})
	v.SetDefault("migrations.dir", "")
	v.SetDefault("backup.compression_enabled", true)
	v.SetDefault("backup.compression_algorithm", DefaultCompression)
	v.SetDefault("backup.retention_days", DefaultRetentionDays)
	v.SetDefault("backup.max_backups", DefaultMaxBackups)
	v.SetDefault("backup.change_column", DefaultChangeColumn)
	v.SetDefault("backup.incremental_fallback.enabled", false)
	v.SetDefault("backup.incremental_fallback.window", DefaultFallbackWindow)
	v.SetDefault("storage.backend", DefaultStorageBackend)
	v.SetDefault("storage.s3.bucket", "")
	v.SetDefault("storage.s3.region", "")
	v.SetDefault("storage.s3.prefix", "")
	v.SetDefault("storage.s3.endpoint", "")
	v.SetDefault("storage.s3.access_key_id", "")
	v.SetDefault("storage.s3.secret_access_key", "")
	v.SetDefault("store.timeout", DefaultStoreTimeout)
}

// Load reads the YAML config file. Every key can be overridden with an
// environment variable such as VAULTKEEPER_BACKUP_RETENTION_DAYS.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = DefaultConfigPath
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.StoreTimeout = v.GetDuration("store.timeout")
	cfg.ConfigPath = configPath

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func oneOf(value string, allowed []string) bool {
	for _, a := range allowed {
		if value == a {
			return true
		}
	}
	return false
}

func (c *Config) Validate() error {
	if c.BackupDir == "" {
		return fmt.Errorf("backup_dir is required")
	}

	if c.JWTSecretKey == "" {
		return fmt.Errorf("jwt_secret_key is required")
	}

	if c.DBPath == "" {
		return fmt.Errorf("db_path is required")
	}

	// Validate backup directory exists
	if _, err := os.Stat(c.BackupDir); os.IsNotExist(err) {
		return fmt.Errorf("backup_dir does not exist: %s", c.BackupDir)
	}

	if !oneOf(c.JWTAlgorithm, validAlgorithms) {
		return fmt.Errorf("jwt_algorithm must be one of %s", strings.Join(validAlgorithms, ", "))
	}

	if !oneOf(c.LogFormat, validLogFormats) {
		return fmt.Errorf("log_format must be one of %s", strings.Join(validLogFormats, ", "))
	}

	if c.APIPort <= 0 || c.APIPort > 65535 {
		return fmt.Errorf("api_port must be between 1 and 65535")
	}

	if !oneOf(c.Backup.CompressionAlgorithm, validCompressions) {
		return fmt.Errorf("backup.compression_algorithm must be one of %s", strings.Join(validCompressions, ", "))
	}

	if c.Backup.RetentionDays < 0 {
		return fmt.Errorf("backup.retention_days must not be negative")
	}

	if c.Backup.MaxBackups < 0 {
		return fmt.Errorf("backup.max_backups must not be negative")
	}

	if c.Backup.ChangeColumn == "" {
		return fmt.Errorf("backup.change_column is required")
	}

	if c.Backup.IncrementalFallback.Enabled && c.Backup.IncrementalFallback.Window <= 0 {
		return fmt.Errorf("backup.incremental_fallback.window must be positive")
	}

	if !oneOf(c.Storage.Backend, validStorageBackends) {
		return fmt.Errorf("storage.backend must be one of %s", strings.Join(validStorageBackends, ", "))
	}

	if c.Storage.Backend == "s3" && c.Storage.S3.Bucket == "" {
		return fmt.Errorf("storage.s3.bucket is required when storage.backend is s3")
	}

	if c.StoreTimeout < 0 {
		return fmt.Errorf("store.timeout must not be negative")
	}

	// Validate SSL config if provided
	if c.SSLCert != "" || c.SSLKey != "" {
		if c.SSLCert == "" || c.SSLKey == "" {
			return fmt.Errorf("both ssl_cert and ssl_key must be provided")
		}
		if _, err := os.Stat(c.SSLCert); os.IsNotExist(err) {
			return fmt.Errorf("ssl_cert file does not exist: %s", c.SSLCert)
		}
		if _, err := os.Stat(c.SSLKey); os.IsNotExist(err) {
			return fmt.Errorf("ssl_key file does not exist: %s", c.SSLKey)
		}
	}

	return nil
}

func (c *Config) IsDevMode() bool {
	return os.Getenv(EnvPrefix+"_DEV_MODE") == "1"
}

package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Bulk      BulkConfig      `mapstructure:"bulk"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Directory DirectoryConfig `mapstructure:"directory"`
	Logger    LoggerConfig    `mapstructure:"logger"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsDir   string        `mapstructure:"migrations_dir"`
}

// EngineConfig holds workflow engine tuning
type EngineConfig struct {
	ConflictRetries int           `mapstructure:"conflict_retries"`
	RetryBackoff    time.Duration `mapstructure:"retry_backoff"`
}

// BulkConfig holds bulk operation limits
type BulkConfig struct {
	MaxItems    int           `mapstructure:"max_items"`
	Concurrency int           `mapstructure:"concurrency"`
	ItemTimeout time.Duration `mapstructure:"item_timeout"`
	JobTTL      time.Duration `mapstructure:"job_ttl"`
}

// NotifyConfig holds notification dispatcher configuration
type NotifyConfig struct {
	QueueCapacity int `mapstructure:"queue_capacity"`
}

// DirectoryConfig seeds the identity provider and institution tree
type DirectoryConfig struct {
	Users        []UserConfig        `mapstructure:"users"`
	Institutions []InstitutionConfig `mapstructure:"institutions"`
}

// UserConfig is one configured user
type UserConfig struct {
	ID            string `mapstructure:"id"`
	Role          string `mapstructure:"role"`
	InstitutionID int64  `mapstructure:"institution_id"`
}

// InstitutionConfig is one node of the institution tree
type InstitutionConfig struct {
	ID       int64  `mapstructure:"id"`
	Name     string `mapstructure:"name"`
	ParentID int64  `mapstructure:"parent_id"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()

	// Set defaults
	setDefaults()

	// Read config file
	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Override with environment variables
	bindEnvVars()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 30*time.Second)
	viper.SetDefault("server.write_timeout", 30*time.Second)

	// Database defaults
	viper.SetDefault("database.path", "data/approvals.db")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	viper.SetDefault("database.migrations_dir", "migrations")

	// Engine defaults
	viper.SetDefault("engine.conflict_retries", 3)
	viper.SetDefault("engine.retry_backoff", 50*time.Millisecond)

	// Bulk defaults
	viper.SetDefault("bulk.max_items", 500)
	viper.SetDefault("bulk.concurrency", 8)
	viper.SetDefault("bulk.item_timeout", 5*time.Second)
	viper.SetDefault("bulk.job_ttl", 30*time.Minute)

	// Notification defaults
	viper.SetDefault("notify.queue_capacity", 256)

	// Logger defaults
	viper.SetDefault("logger.level", "info")
	viper.SetDefault("logger.output_path", "stdout")
	viper.SetDefault("logger.format", "json")
}

// bindEnvVars binds environment variables to configuration
func bindEnvVars() {
	viper.BindEnv("server.port", "SERVER_PORT")
	viper.BindEnv("database.path", "DATABASE_PATH")
	viper.BindEnv("logger.level", "LOG_LEVEL")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Bulk.MaxItems < 1 {
		return fmt.Errorf("bulk.max_items must be at least 1")
	}
	if c.Bulk.Concurrency < 1 {
		return fmt.Errorf("bulk.concurrency must be at least 1")
	}
	if c.Engine.ConflictRetries < 0 {
		return fmt.Errorf("engine.conflict_retries must not be negative")
	}
	if len(c.Directory.Institutions) == 0 {
		return fmt.Errorf("directory.institutions must not be empty")
	}

	return nil
}

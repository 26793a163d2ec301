package config

import (
	"fmt"
	"log"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	App          AppConfig          `mapstructure:"app"`
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Cache        CacheConfig        `mapstructure:"cache"`
	Queue        QueueConfig        `mapstructure:"queue"`
	SignUp       SignUpConfig       `mapstructure:"signup"`
	Notification NotificationConfig `mapstructure:"notification"`
	Log          LogConfig          `mapstructure:"log"`
}

// AppConfig holds application-specific configuration
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host            string `mapstructure:"host"`
	Port            string `mapstructure:"port"`
	ReadTimeout     int    `mapstructure:"read_timeout"`
	WriteTimeout    int    `mapstructure:"write_timeout"`
	MaxHeaderBytes  int    `mapstructure:"max_header_bytes"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Driver          string `mapstructure:"driver"`
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Username        string `mapstructure:"username"`
	Password        string `mapstructure:"password"`
	Name            string `mapstructure:"name"`
	SSLMode         string `mapstructure:"ssl_mode"`
	Path            string `mapstructure:"path"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
	MigrationsDir   string `mapstructure:"migrations_dir"`
	LogLevel        string `mapstructure:"log_level"`
}

// CacheConfig holds cache configuration
type CacheConfig struct {
	Type     string `mapstructure:"type"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	UserTTL  int    `mapstructure:"user_ttl"`
	PoolSize int    `mapstructure:"pool_size"`
	// MasterName and SentinelAddrs switch the client to Sentinel failover.
	MasterName    string   `mapstructure:"master_name"`
	SentinelAddrs []string `mapstructure:"sentinel_addrs"`
}

// Addr returns host:port of the standalone Redis server.
func (c CacheConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// QueueConfig holds promotion queue configuration
type QueueConfig struct {
	Type              string `mapstructure:"type"`
	Workers           int    `mapstructure:"workers"`
	BufferSize        int    `mapstructure:"buffer_size"`
	MaxAttempts       int    `mapstructure:"max_attempts"`
	RetryDelayMs      int    `mapstructure:"retry_delay_ms"`
	PollIntervalMs    int    `mapstructure:"poll_interval_ms"`
	VisibilityTimeout int    `mapstructure:"visibility_timeout_s"`
	SweepInterval     int    `mapstructure:"sweep_interval_s"`
	KeyPrefix         string `mapstructure:"key_prefix"`
}

// SignUpConfig holds the optimistic retry policy
type SignUpConfig struct {
	MaxRetries    int `mapstructure:"max_retries"`
	BackoffBaseMs int `mapstructure:"backoff_base_ms"`
	BackoffMaxMs  int `mapstructure:"backoff_max_ms"`
}

// NotificationConfig selects where promotion notices go
type NotificationConfig struct {
	Type    string `mapstructure:"type"`
	ListKey string `mapstructure:"list_key"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level    string `mapstructure:"level"`
	Format   string `mapstructure:"format"`
	Output   string `mapstructure:"output"`
	FilePath string `mapstructure:"file_path"`
}

var config *Config

// Init initializes the configuration
func Init() {
	config = &Config{}

	// Set default values
	setDefaults()

	// Unmarshal configuration from viper
	if err := viper.Unmarshal(config); err != nil {
		log.Fatalf("Unable to decode config: %v", err)
	}
}

// Get returns the global configuration
func Get() *Config {
	if config == nil {
		Init()
	}
	return config
}

func (c QueueConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

func (c QueueConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelayMs) * time.Millisecond
}

func (c QueueConfig) Visibility() time.Duration {
	return time.Duration(c.VisibilityTimeout) * time.Second
}

func (c QueueConfig) Sweep() time.Duration {
	return time.Duration(c.SweepInterval) * time.Second
}

func (c SignUpConfig) BackoffBase() time.Duration {
	return time.Duration(c.BackoffBaseMs) * time.Millisecond
}

func (c SignUpConfig) BackoffMax() time.Duration {
	return time.Duration(c.BackoffMaxMs) * time.Millisecond
}

// setDefaults sets default configuration values
func setDefaults() {
	// App defaults
	viper.SetDefault("app.name", "signup-service")
	viper.SetDefault("app.version", "1.0.0")
	viper.SetDefault("app.environment", "development")

	// Server defaults
	viper.SetDefault("server.host", "localhost")
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.read_timeout", 15)
	viper.SetDefault("server.write_timeout", 15)
	viper.SetDefault("server.max_header_bytes", 1048576)
	viper.SetDefault("server.shutdown_timeout", 30)

	// Database defaults
	viper.SetDefault("database.driver", "postgres")
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.username", "postgres")
	viper.SetDefault("database.password", "")
	viper.SetDefault("database.name", "signup_service")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.path", "signup.db")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", 3600)
	viper.SetDefault("database.migrations_dir", "migrations")
	viper.SetDefault("database.log_level", "silent")

	// Cache defaults
	viper.SetDefault("cache.type", "none")
	viper.SetDefault("cache.host", "localhost")
	viper.SetDefault("cache.port", 6379)
	viper.SetDefault("cache.password", "")
	viper.SetDefault("cache.db", 0)
	viper.SetDefault("cache.user_ttl", 300)
	viper.SetDefault("cache.pool_size", 20)

	// Queue defaults
	viper.SetDefault("queue.type", "database")
	viper.SetDefault("queue.workers", 4)
	viper.SetDefault("queue.buffer_size", 1024)
	viper.SetDefault("queue.max_attempts", 10)
	viper.SetDefault("queue.retry_delay_ms", 500)
	viper.SetDefault("queue.poll_interval_ms", 250)
	viper.SetDefault("queue.visibility_timeout_s", 60)
	viper.SetDefault("queue.sweep_interval_s", 30)
	viper.SetDefault("queue.key_prefix", "signup")

	// Sign-up retry defaults
	viper.SetDefault("signup.max_retries", 20)
	viper.SetDefault("signup.backoff_base_ms", 2)
	viper.SetDefault("signup.backoff_max_ms", 50)

	// Notification defaults
	viper.SetDefault("notification.type", "log")
	viper.SetDefault("notification.list_key", "signup:mail:outbox")

	// Log defaults
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "json")
	viper.SetDefault("log.output", "stdout")
	viper.SetDefault("log.file_path", "logs/signup-service.log")
}

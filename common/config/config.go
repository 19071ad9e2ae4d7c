package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all service configuration
type Config struct {
	Service   ServiceConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Store     StoreConfig
	Registry  RegistryConfig
	Upload    UploadConfig
	Storage   StorageConfig
	Realtime  RealtimeConfig
	Session   SessionConfig
	Transfer  TransferConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Telemetry TelemetryConfig
}

// ServiceConfig holds service-specific settings
type ServiceConfig struct {
	Name        string
	Port        int
	Environment string
	LogLevel    string
	LogFormat   string
	PublicURL   string
}

// DatabaseConfig holds Postgres connection settings
type DatabaseConfig struct {
	Host        string
	Port        int
	Database    string
	User        string
	Password    string
	MaxConns    int
	MinConns    int
	MaxIdleTime time.Duration
	MaxLifetime time.Duration
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// StoreConfig selects the transfer/session persistence backend
type StoreConfig struct {
	Backend string // "postgres" or "memory"
}

// RegistryConfig configures the chunk registry
type RegistryConfig struct {
	Backend       string // "memory" or "badger"
	Path          string
	Retention     time.Duration
	SweepInterval time.Duration
}

// UploadConfig bounds what clients may send
type UploadConfig struct {
	MaxFileSize     int64
	MaxDirectSize   int64
	MaxChunkSize    int64
	FinalizeTimeout time.Duration
}

// StorageConfig selects where finished artifacts go
type StorageConfig struct {
	Backend       string // "local" or "s3"
	LocalRoot     string
	S3Bucket      string
	S3Region      string
	S3Prefix      string
	S3Endpoint    string
	PublicBaseURL string
}

// RealtimeConfig configures event fan-out and presence
type RealtimeConfig struct {
	Broker      string // "redis" or "memory"
	PresenceTTL time.Duration
	SendBuffer  int
}

// SessionConfig configures pairing sessions
type SessionConfig struct {
	TTL time.Duration
}

// TransferConfig configures transfer lifetimes and listing
type TransferConfig struct {
	EphemeralTTL time.Duration
	ArtifactTTL  time.Duration
	ListLimit    int
	MaxListLimit int
}

// AuthConfig configures identity extraction
type AuthConfig struct {
	JWTSecret       string
	AllowHeaderAuth bool
}

// RateLimitConfig configures the per-user limiter
type RateLimitConfig struct {
	Enabled       bool
	UserLimit     int64
	WindowSeconds int
}

// TelemetryConfig holds observability settings
type TelemetryConfig struct {
	EnablePprof bool
	PprofPort   int
}

// Load loads configuration from environment variables
func Load(serviceName string) (*Config, error) {
	port := getEnvInt("PORT", 8080)
	cfg := &Config{
		Service: ServiceConfig{
			Name:        serviceName,
			Port:        port,
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
			LogFormat:   getEnv("LOG_FORMAT", "text"),
			PublicURL:   strings.TrimRight(getEnv("PUBLIC_URL", fmt.Sprintf("http://localhost:%d", port)), "/"),
		},
		Database: DatabaseConfig{
			Host:        getEnv("POSTGRES_HOST", "localhost"),
			Port:        getEnvInt("POSTGRES_PORT", 5432),
			Database:    getEnv("POSTGRES_DB", "connected"),
			User:        getEnv("POSTGRES_USER", "connected"),
			Password:    getEnv("POSTGRES_PASSWORD", "connected"),
			MaxConns:    getEnvInt("POSTGRES_MAX_CONNS", 20),
			MinConns:    getEnvInt("POSTGRES_MIN_CONNS", 2),
			MaxIdleTime: getEnvDuration("POSTGRES_MAX_IDLE_TIME", 30*time.Minute),
			MaxLifetime: getEnvDuration("POSTGRES_MAX_LIFETIME", 1*time.Hour),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Store: StoreConfig{
			Backend: getEnv("STORE_BACKEND", "postgres"),
		},
		Registry: RegistryConfig{
			Backend:       getEnv("REGISTRY_BACKEND", "memory"),
			Path:          getEnv("REGISTRY_PATH", "./data/chunks"),
			Retention:     getEnvDuration("REGISTRY_RETENTION", time.Hour),
			SweepInterval: getEnvDuration("REGISTRY_SWEEP_INTERVAL", 10*time.Minute),
		},
		Upload: UploadConfig{
			MaxFileSize:     getEnvInt64("UPLOAD_MAX_FILE_SIZE", 100<<20),
			MaxDirectSize:   getEnvInt64("UPLOAD_MAX_DIRECT_SIZE", 5<<20),
			MaxChunkSize:    getEnvInt64("UPLOAD_MAX_CHUNK_SIZE", 1<<20),
			FinalizeTimeout: getEnvDuration("UPLOAD_FINALIZE_TIMEOUT", 60*time.Second),
		},
		Storage: StorageConfig{
			Backend:       getEnv("STORAGE_BACKEND", "local"),
			LocalRoot:     getEnv("STORAGE_LOCAL_ROOT", "./data/files"),
			S3Bucket:      getEnv("S3_BUCKET", ""),
			S3Region:      getEnv("S3_REGION", "us-east-1"),
			S3Prefix:      getEnv("S3_PREFIX", ""),
			S3Endpoint:    getEnv("S3_ENDPOINT", ""),
			PublicBaseURL: getEnv("STORAGE_PUBLIC_BASE_URL", ""),
		},
		Realtime: RealtimeConfig{
			Broker:      getEnv("BROKER_BACKEND", "redis"),
			PresenceTTL: getEnvDuration("PRESENCE_TTL", 30*time.Second),
			SendBuffer:  getEnvInt("REALTIME_SEND_BUFFER", 256),
		},
		Session: SessionConfig{
			TTL: getEnvDuration("SESSION_TTL", 24*time.Hour),
		},
		Transfer: TransferConfig{
			EphemeralTTL: getEnvDuration("TRANSFER_EPHEMERAL_TTL", 24*time.Hour),
			ArtifactTTL:  getEnvDuration("TRANSFER_ARTIFACT_TTL", 7*24*time.Hour),
			ListLimit:    getEnvInt("TRANSFER_LIST_LIMIT", 50),
			MaxListLimit: getEnvInt("TRANSFER_MAX_LIST_LIMIT", 200),
		},
		Auth: AuthConfig{
			JWTSecret:       getEnv("JWT_SECRET", ""),
			AllowHeaderAuth: getEnvBool("AUTH_ALLOW_HEADER", true),
		},
		RateLimit: RateLimitConfig{
			Enabled:       getEnvBool("RATE_LIMIT_ENABLED", true),
			UserLimit:     getEnvInt64("RATE_LIMIT_USER", 120),
			WindowSeconds: getEnvInt("RATE_LIMIT_WINDOW_SECONDS", 60),
		},
		Telemetry: TelemetryConfig{
			EnablePprof: getEnvBool("ENABLE_PPROF", false),
			PprofPort:   getEnvInt("PPROF_PORT", 6060),
		},
	}

	if base := cfg.Storage.PublicBaseURL; base == "" && cfg.Storage.Backend == "local" {
		cfg.Storage.PublicBaseURL = cfg.Service.PublicURL + "/files"
	}

	return cfg, cfg.Validate()
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.Service.Port < 1 || c.Service.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Service.Port)
	}

	switch c.Store.Backend {
	case "postgres":
		if c.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if c.Database.MaxConns < c.Database.MinConns {
			return fmt.Errorf("max_conns must be >= min_conns")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown store backend: %s", c.Store.Backend)
	}

	switch c.Registry.Backend {
	case "memory", "badger":
	default:
		return fmt.Errorf("unknown registry backend: %s", c.Registry.Backend)
	}

	switch c.Storage.Backend {
	case "local":
	case "s3":
		if c.Storage.S3Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required for the s3 storage backend")
		}
	default:
		return fmt.Errorf("unknown storage backend: %s", c.Storage.Backend)
	}

	switch c.Realtime.Broker {
	case "redis", "memory":
	default:
		return fmt.Errorf("unknown broker backend: %s", c.Realtime.Broker)
	}

	if c.Upload.MaxChunkSize <= 0 || c.Upload.MaxDirectSize <= 0 || c.Upload.MaxFileSize <= 0 {
		return fmt.Errorf("upload size limits must be positive")
	}

	if c.Session.TTL <= 0 {
		return fmt.Errorf("session ttl must be positive")
	}

	if c.Transfer.ListLimit <= 0 || c.Transfer.MaxListLimit < c.Transfer.ListLimit {
		return fmt.Errorf("transfer list limit must be positive and <= max")
	}

	return nil
}

// UsesRedis reports whether any component needs a Redis connection
func (c *Config) UsesRedis() bool {
	return c.Realtime.Broker == "redis"
}

// DatabaseURL returns the PostgreSQL connection string
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
	)
}

// RedisAddr returns host:port for the Redis server
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

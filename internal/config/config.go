package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Catalogue CatalogueConfig
	Cache     CacheConfig
	Artifacts ArtifactsConfig
	Pool      PoolConfig
	Logging   LoggingConfig
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// CatalogueConfig selects the catalogue backend
type CatalogueConfig struct {
	// Backend is "memory" or "postgres"
	Backend string
}

// CacheConfig holds tile cache settings
type CacheConfig struct {
	Capacity int
	// PersistTiles enables write-through persistence of rendered tiles
	// into the artifact store
	PersistTiles bool
}

// ArtifactsConfig holds artifact store settings
type ArtifactsConfig struct {
	// Driver is "fs", "memory" or "minio"
	Driver    string
	BaseDir   string
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// PoolConfig holds worker pool settings
type PoolConfig struct {
	Workers   int
	QueueSize int
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level string
}

// MissingEnvVarError indicates a required environment variable is unset
type MissingEnvVarError struct {
	Name string
}

func (e *MissingEnvVarError) Error() string {
	return fmt.Sprintf("required environment variable %s is not set", e.Name)
}

// LoadConfig reads configuration from the environment. A .env file in the
// working directory is loaded first when present.
func LoadConfig() (*Config, error) {
	// Missing .env is fine, the environment may be set directly
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:  getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvInt("DB_PORT", 5432),
			User:            getEnv("DB_USER", "videowall"),
			Password:        getEnv("DB_PASSWORD", ""),
			Database:        getEnv("DB_NAME", "videowall"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			ConnMaxIdleTime: getEnvDuration("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
		},
		Catalogue: CatalogueConfig{
			Backend: getEnv("CATALOGUE_BACKEND", "memory"),
		},
		Cache: CacheConfig{
			Capacity:     getEnvInt("TILE_CACHE_CAPACITY", 2048),
			PersistTiles: getEnvBool("TILE_CACHE_PERSIST", false),
		},
		Artifacts: ArtifactsConfig{
			Driver:    getEnv("ARTIFACTS_DRIVER", "fs"),
			BaseDir:   getEnv("ARTIFACTS_BASE_DIR", "./artifacts"),
			Endpoint:  getEnv("MINIO_ENDPOINT", ""),
			AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
			SecretKey: getEnv("MINIO_SECRET_KEY", ""),
			Bucket:    getEnv("MINIO_BUCKET", "videowall-artifacts"),
			UseSSL:    getEnvBool("MINIO_USE_SSL", false),
		},
		Pool: PoolConfig{
			Workers:   getEnvInt("POOL_WORKERS", 8),
			QueueSize: getEnvInt("POOL_QUEUE_SIZE", 256),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}
	return cfg, nil
}

// Validate checks configuration consistency
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	switch c.Catalogue.Backend {
	case "memory":
	case "postgres":
		if c.Database.Host == "" {
			return &MissingEnvVarError{Name: "DB_HOST"}
		}
		if c.Database.User == "" {
			return &MissingEnvVarError{Name: "DB_USER"}
		}
	default:
		return fmt.Errorf("unknown catalogue backend: %q", c.Catalogue.Backend)
	}
	switch c.Artifacts.Driver {
	case "fs", "memory":
	case "minio":
		if c.Artifacts.Endpoint == "" {
			return &MissingEnvVarError{Name: "MINIO_ENDPOINT"}
		}
		if c.Artifacts.AccessKey == "" {
			return &MissingEnvVarError{Name: "MINIO_ACCESS_KEY"}
		}
		if c.Artifacts.SecretKey == "" {
			return &MissingEnvVarError{Name: "MINIO_SECRET_KEY"}
		}
	default:
		return fmt.Errorf("unknown artifacts driver: %q", c.Artifacts.Driver)
	}
	if c.Cache.Capacity < 1 {
		return fmt.Errorf("tile cache capacity must be positive, got %d", c.Cache.Capacity)
	}
	if c.Pool.Workers < 1 {
		return fmt.Errorf("pool workers must be positive, got %d", c.Pool.Workers)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

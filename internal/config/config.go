// internal/config/config.go
package config

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	Pipeline PipelineConfig
	Storage  StorageConfig
	InFlight InFlightConfig
	Database DatabaseConfig
}

type ServerConfig struct {
	Address        string
	Port           string
	Mode           string
	LogFormat      string
	ReadTimeout    int
	WriteTimeout   int
	AllowedOrigins []string
}

// PipelineConfig holds the values the orchestrator is constructed with.
type PipelineConfig struct {
	Bucket    string
	Prefix    string
	LocalRoot string
	Delimiter string
	Workers   int
	KeepLocal bool
	Strict    bool
}

type StorageConfig struct {
	Provider string

	GCSCredentialsJSON string
	GCSCredentialsFile string

	S3Region    string
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioRegion    string
	MinioUseSSL    bool

	LocalDir string
}

type InFlightConfig struct {
	Backend       string
	TTLSeconds    int
	RedisURL      string
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int
}

// TTL returns the claim lifetime for in-flight keys.
func (c InFlightConfig) TTL() time.Duration {
	if c.TTLSeconds <= 0 {
		return time.Hour
	}
	return time.Duration(c.TTLSeconds) * time.Second
}

type DatabaseConfig struct {
	Enabled  bool
	Driver   string
	URL      string
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

var (
	once     sync.Once
	instance *Config
)

// Load reads configuration from the environment (and a .env file when
// present) once per process.
func Load() *Config {
	once.Do(func() {
		// Load .env file if it exists
		_ = godotenv.Load()

		SetDefaults(viper.GetViper())
		viper.AutomaticEnv()

		instance = FromViper(viper.GetViper())
	})

	return instance
}

// SetDefaults registers every key with its default value.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("SERVER_ADDRESS", "0.0.0.0")
	v.SetDefault("PORT", "8080")
	v.SetDefault("SERVER_MODE", "release")
	v.SetDefault("LOG_FORMAT", "console")
	v.SetDefault("SERVER_READ_TIMEOUT", 0)
	v.SetDefault("SERVER_WRITE_TIMEOUT", 0)
	v.SetDefault("SERVER_ALLOWED_ORIGINS", []string{"*"})

	v.SetDefault("BUCKET_NAME", "edd23232")
	v.SetDefault("SOURCE_PREFIX", "unprocessed")
	v.SetDefault("LOCAL_ROOT", "/r")
	v.SetDefault("CSV_DELIMITER", ",")
	v.SetDefault("PIPELINE_WORKERS", 1)
	v.SetDefault("KEEP_LOCAL_FILES", true)
	v.SetDefault("PIPELINE_STRICT", false)

	v.SetDefault("STORAGE_PROVIDER", "gcs")
	v.SetDefault("GCS_CREDENTIALS_JSON", "")
	v.SetDefault("GOOGLE_APPLICATION_CREDENTIALS", "")
	v.SetDefault("S3_REGION", "us-east-1")
	v.SetDefault("S3_ENDPOINT", "")
	v.SetDefault("S3_ACCESS_KEY", "")
	v.SetDefault("S3_SECRET_KEY", "")
	v.SetDefault("MINIO_ENDPOINT", "")
	v.SetDefault("MINIO_ACCESS_KEY", "")
	v.SetDefault("MINIO_SECRET_KEY", "")
	v.SetDefault("MINIO_REGION", "")
	v.SetDefault("MINIO_USE_SSL", true)
	v.SetDefault("LOCAL_STORE_DIR", "./data/bucket")

	v.SetDefault("INFLIGHT_BACKEND", "memory")
	v.SetDefault("INFLIGHT_TTL_SECONDS", 3600)
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("REDIS_HOST", "127.0.0.1")
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("RUN_HISTORY_ENABLED", false)
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("DB_DRIVER", "postgres")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "csvconverter")
	v.SetDefault("DB_SSLMODE", "disable")
}

// FromViper builds a Config from an already populated viper instance.
func FromViper(v *viper.Viper) *Config {
	return &Config{
		Server: ServerConfig{
			Address:        v.GetString("SERVER_ADDRESS"),
			Port:           v.GetString("PORT"),
			Mode:           v.GetString("SERVER_MODE"),
			LogFormat:      v.GetString("LOG_FORMAT"),
			ReadTimeout:    v.GetInt("SERVER_READ_TIMEOUT"),
			WriteTimeout:   v.GetInt("SERVER_WRITE_TIMEOUT"),
			AllowedOrigins: v.GetStringSlice("SERVER_ALLOWED_ORIGINS"),
		},
		Pipeline: PipelineConfig{
			Bucket:    v.GetString("BUCKET_NAME"),
			Prefix:    v.GetString("SOURCE_PREFIX"),
			LocalRoot: v.GetString("LOCAL_ROOT"),
			Delimiter: v.GetString("CSV_DELIMITER"),
			Workers:   v.GetInt("PIPELINE_WORKERS"),
			KeepLocal: v.GetBool("KEEP_LOCAL_FILES"),
			Strict:    v.GetBool("PIPELINE_STRICT"),
		},
		Storage: StorageConfig{
			Provider:           strings.ToLower(v.GetString("STORAGE_PROVIDER")),
			GCSCredentialsJSON: v.GetString("GCS_CREDENTIALS_JSON"),
			GCSCredentialsFile: v.GetString("GOOGLE_APPLICATION_CREDENTIALS"),
			S3Region:           v.GetString("S3_REGION"),
			S3Endpoint:         v.GetString("S3_ENDPOINT"),
			S3AccessKey:        v.GetString("S3_ACCESS_KEY"),
			S3SecretKey:        v.GetString("S3_SECRET_KEY"),
			MinioEndpoint:      v.GetString("MINIO_ENDPOINT"),
			MinioAccessKey:     v.GetString("MINIO_ACCESS_KEY"),
			MinioSecretKey:     v.GetString("MINIO_SECRET_KEY"),
			MinioRegion:        v.GetString("MINIO_REGION"),
			MinioUseSSL:        v.GetBool("MINIO_USE_SSL"),
			LocalDir:           v.GetString("LOCAL_STORE_DIR"),
		},
		InFlight: InFlightConfig{
			Backend:       strings.ToLower(v.GetString("INFLIGHT_BACKEND")),
			TTLSeconds:    v.GetInt("INFLIGHT_TTL_SECONDS"),
			RedisURL:      v.GetString("REDIS_URL"),
			RedisHost:     v.GetString("REDIS_HOST"),
			RedisPort:     v.GetString("REDIS_PORT"),
			RedisPassword: v.GetString("REDIS_PASSWORD"),
			RedisDB:       v.GetInt("REDIS_DB"),
		},
		Database: DatabaseConfig{
			Enabled:  v.GetBool("RUN_HISTORY_ENABLED"),
			Driver:   strings.ToLower(v.GetString("DB_DRIVER")),
			URL:      v.GetString("DATABASE_URL"),
			Host:     v.GetString("DB_HOST"),
			Port:     v.GetString("DB_PORT"),
			User:     v.GetString("DB_USER"),
			Password: v.GetString("DB_PASSWORD"),
			DBName:   v.GetString("DB_NAME"),
			SSLMode:  v.GetString("DB_SSLMODE"),
		},
	}
}

// Validate checks the values a run cannot start without.
func (c *Config) Validate() error {
	port, err := strconv.Atoi(c.Server.Port)
	if err != nil {
		return fmt.Errorf("invalid port %q: %w", c.Server.Port, err)
	}
	if port < 0 || port > 65535 {
		return fmt.Errorf("the port value (%d) is out of range", port)
	}
	if _, err := c.Pipeline.DelimiterRune(); err != nil {
		return err
	}
	if c.Pipeline.Bucket == "" {
		return fmt.Errorf("bucket name must be provided")
	}
	if c.Pipeline.LocalRoot == "" {
		return fmt.Errorf("local root must be provided")
	}
	switch c.Storage.Provider {
	case "gcs", "s3", "minio", "local":
	default:
		return fmt.Errorf("unknown storage provider %q", c.Storage.Provider)
	}
	switch c.InFlight.Backend {
	case "memory", "redis", "none":
	default:
		return fmt.Errorf("unknown in-flight backend %q", c.InFlight.Backend)
	}
	return nil
}

// DelimiterRune returns the configured CSV delimiter, which must be exactly
// one character.
func (p PipelineConfig) DelimiterRune() (rune, error) {
	if utf8.RuneCountInString(p.Delimiter) != 1 {
		return 0, fmt.Errorf("csv delimiter must be a single character, got %q", p.Delimiter)
	}
	r, _ := utf8.DecodeRuneInString(p.Delimiter)
	return r, nil
}

// DSN returns the postgres connection string, preferring DATABASE_URL.
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode)
}

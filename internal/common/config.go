package common

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	Database    DatabaseConfig
	Server      ServerConfig
	Recognition RecognitionConfig
	Pipeline    PipelineConfig
	Storage     StorageConfig
	Quota       QuotaConfig
}

// QuotaConfig holds the document allowance used by the in-memory gate.
// The Postgres gate reads the tenant's quota row instead.
type QuotaConfig struct {
	DefaultTotal int
}

// DatabaseConfig holds database-related configuration.
type DatabaseConfig struct {
	DSN              string // empty means embedded sqlite
	SQLitePath       string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Addr           string
	AllowedOrigins []string
}

// RecognitionConfig holds remote recognition service configuration.
type RecognitionConfig struct {
	BaseURL         string
	APIKey          string
	TenantID        string
	MaxRetries      int
	BaseDelay       time.Duration
	Timeout         time.Duration
	MaxPayloadBytes int
	RequestsPerSec  float64
}

// PipelineConfig holds orchestration tunables.
type PipelineConfig struct {
	Workers          int
	MaxDimension     int
	JPEGQuality      int
	RenderDPI        int
	MinTextLength    int
	Pdftotext        string
	Pdftoppm         string
	ImageConverter   string
	ArtifactCacheDir string
}

// StorageConfig holds object storage configuration.
type StorageConfig struct {
	Backend      string // "fs" | "s3"
	FSRoot       string
	AWSAccessKey string
	AWSSecretKey string
	AWSRegion    string
	Bucket       string
}

// LoadConfig loads configuration from the environment (and .env if present).
func LoadConfig() *Config {
	_ = godotenv.Load()

	return &Config{
		Database: DatabaseConfig{
			DSN:              getEnv("DB_URL", ""),
			SQLitePath:       getEnv("SQLITE_PATH", "./docpipe.db"),
			MaxConns:         getEnvAsInt32("DB_MAX_CONNS", 20),
			MinConns:         getEnvAsInt32("DB_MIN_CONNS", 5),
			MaxConnLifetime:  getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime:  getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:      getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 0),
		},
		Server: ServerConfig{
			Addr:           getEnv("HTTP_ADDR", ":8080"),
			AllowedOrigins: []string{getEnv("CORS_ORIGIN", "http://localhost:5173")},
		},
		Recognition: RecognitionConfig{
			BaseURL:         getEnv("RECOGNITION_URL", ""),
			APIKey:          getEnv("RECOGNITION_API_KEY", ""),
			TenantID:        getEnv("TENANT_ID", ""),
			MaxRetries:      getEnvAsInt("RECOGNITION_MAX_RETRIES", 3),
			BaseDelay:       getEnvAsDuration("RECOGNITION_BASE_DELAY", 2*time.Second),
			Timeout:         getEnvAsDuration("RECOGNITION_TIMEOUT", 45*time.Second),
			MaxPayloadBytes: getEnvAsInt("RECOGNITION_MAX_PAYLOAD_BYTES", 4<<20),
			RequestsPerSec:  getEnvAsFloat64("RECOGNITION_REQUESTS_PER_SEC", 4),
		},
		Pipeline: PipelineConfig{
			Workers:          getEnvAsInt("PIPELINE_WORKERS", 4),
			MaxDimension:     getEnvAsInt("IMAGE_MAX_DIMENSION", 2048),
			JPEGQuality:      getEnvAsInt("IMAGE_JPEG_QUALITY", 80),
			RenderDPI:        getEnvAsInt("PDF_RENDER_DPI", 150),
			MinTextLength:    getEnvAsInt("MIN_TEXT_LENGTH", 32),
			Pdftotext:        getEnv("PDFTOTEXT", "pdftotext"),
			Pdftoppm:         getEnv("PDFTOPPM", "pdftoppm"),
			ImageConverter:   getEnv("IMAGE_CONVERTER", "magick"),
			ArtifactCacheDir: getEnv("ARTIFACT_CACHE_DIR", "./tmp"),
		},
		Storage: StorageConfig{
			Backend:      getEnv("STORAGE_BACKEND", "fs"),
			FSRoot:       getEnv("STORAGE_FS_ROOT", "./uploads"),
			AWSAccessKey: getEnv("AWS_ACCESS_KEY", ""),
			AWSSecretKey: getEnv("AWS_SECRET_KEY", ""),
			AWSRegion:    getEnv("AWS_REGION", "us-east-1"),
			Bucket:       getEnv("BUCKET_NAME", ""),
		},
		Quota: QuotaConfig{
			DefaultTotal: getEnvAsInt("QUOTA_DEFAULT_TOTAL", 1000),
		},
	}
}

// Validate checks the loaded configuration.
func (c *Config) Validate() error {
	if c.Recognition.BaseURL == "" {
		return NewError(KindPreconditionFailed, "RECOGNITION_URL is required", nil)
	}
	if c.Server.Addr == "" {
		return NewError(KindPreconditionFailed, "HTTP_ADDR is required", nil)
	}
	if c.Storage.Backend == "s3" && c.Storage.Bucket == "" {
		return NewError(KindPreconditionFailed, "BUCKET_NAME is required for the s3 backend", nil)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

package common

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	OCR      OCRConfig
	Cache    CacheConfig
	Pipeline PipelineConfig
	Queue    QueueConfig
	Inbox    InboxConfig
	LogLevel string
}

// DatabaseConfig holds supplier directory configuration
type DatabaseConfig struct {
	Driver           string // postgres | sqlite
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	HTTPAddr       string
	GRPCAddr       string
	MaxUploadBytes int64
	MaxBatchFiles  int
}

// OCRConfig holds OCR-related configuration
type OCRConfig struct {
	Engine          string // azure | tesseract
	AzureEndpoint   string
	AzureKey        string
	Language        string
	TessdataDir     string
	DPI             int
	MaxPages        int
	Timeout         time.Duration
	PdftoppmPath    string
	PreferTextLayer bool
	MaxImageSide    int
}

// CacheConfig holds the OCR result cache configuration. Empty RedisAddr disables it.
type CacheConfig struct {
	RedisAddr string
	TTL       time.Duration
}

// PipelineConfig holds batch orchestration configuration
type PipelineConfig struct {
	Workers            int
	LanguageHint       string
	OwnINNs            []string
	CategoryTablesPath string
	DocumentTimeout    time.Duration
}

// QueueConfig holds async batch queue configuration
type QueueConfig struct {
	RedisURL    string
	Queue       string
	Concurrency int
}

// InboxConfig holds the watched inbox configuration
type InboxConfig struct {
	Dir      string
	OutDir   string
	Schedule string
	Debounce time.Duration
}

// LoadConfig loads configuration from environment variables, reading .env first when present.
func LoadConfig() *Config {
	_ = godotenv.Load()

	return &Config{
		Database: DatabaseConfig{
			Driver:           getEnv("DB_DRIVER", "postgres"),
			DSN:              getEnv("DB_URL", ""),
			MaxConns:         getEnvAsInt32("DB_MAX_CONNS", 10),
			MinConns:         getEnvAsInt32("DB_MIN_CONNS", 1),
			MaxConnLifetime:  getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime:  getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:      getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 0),
		},
		Server: ServerConfig{
			HTTPAddr:       getEnv("HTTP_ADDR", ":8000"),
			GRPCAddr:       getEnv("GRPC_ADDR", ":8081"),
			MaxUploadBytes: int64(getEnvAsInt("MAX_UPLOAD_MB", 32)) << 20,
			MaxBatchFiles:  getEnvAsInt("MAX_BATCH_FILES", 50),
		},
		OCR: OCRConfig{
			Engine:          getEnv("OCR_ENGINE", "tesseract"),
			AzureEndpoint:   getEnv("AZURE_VISION_ENDPOINT", ""),
			AzureKey:        getEnv("AZURE_VISION_KEY", ""),
			Language:        getEnv("OCR_LANGUAGE", "rus+eng"),
			TessdataDir:     getEnv("TESSDATA_PREFIX", ""),
			DPI:             getEnvAsInt("OCR_DPI", 200),
			MaxPages:        getEnvAsInt("OCR_MAX_PAGES", 10),
			Timeout:         getEnvAsDuration("OCR_TIMEOUT", 60*time.Second),
			PdftoppmPath:    getEnv("PDFTOPPM_PATH", "pdftoppm"),
			PreferTextLayer: getEnvAsBool("OCR_PREFER_TEXT_LAYER", false),
			MaxImageSide:    getEnvAsInt("OCR_MAX_IMAGE_SIDE", 4200),
		},
		Cache: CacheConfig{
			RedisAddr: getEnv("OCR_CACHE_REDIS_ADDR", ""),
			TTL:       getEnvAsDuration("OCR_CACHE_TTL", 24*time.Hour),
		},
		Pipeline: PipelineConfig{
			Workers:            getEnvAsInt("PIPELINE_WORKERS", 4),
			LanguageHint:       getEnv("PIPELINE_LANGUAGE", "ru"),
			OwnINNs:            getEnvAsList("PIPELINE_OWN_INNS"),
			CategoryTablesPath: getEnv("PIPELINE_CATEGORY_TABLES", ""),
			DocumentTimeout:    getEnvAsDuration("PIPELINE_DOCUMENT_TIMEOUT", 3*time.Minute),
		},
		Queue: QueueConfig{
			RedisURL:    getEnv("QUEUE_REDIS_URL", "redis://localhost:6379/0"),
			Queue:       getEnv("QUEUE_NAME", "invoices"),
			Concurrency: getEnvAsInt("QUEUE_CONCURRENCY", 2),
		},
		Inbox: InboxConfig{
			Dir:      getEnv("INBOX_DIR", ""),
			OutDir:   getEnv("INBOX_OUT_DIR", "./out"),
			Schedule: getEnv("INBOX_SCHEDULE", "*/10 * * * *"),
			Debounce: getEnvAsDuration("INBOX_DEBOUNCE", 2*time.Second),
		},
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

// Helper functions for environment variable parsing
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

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
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

func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks the settings every binary depends on.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return NewAppError("CONFIG_ERROR", "DB_DRIVER must be postgres or sqlite", ErrInvalidInput)
	}
	switch c.OCR.Engine {
	case "tesseract":
	case "azure":
		if c.OCR.AzureEndpoint == "" || c.OCR.AzureKey == "" {
			return NewAppError("CONFIG_ERROR", "AZURE_VISION_ENDPOINT and AZURE_VISION_KEY are required for the azure engine", ErrInvalidInput)
		}
	default:
		return NewAppError("CONFIG_ERROR", "OCR_ENGINE must be azure or tesseract", ErrInvalidInput)
	}
	if c.OCR.DPI <= 0 {
		return NewAppError("CONFIG_ERROR", "OCR_DPI must be positive", ErrInvalidInput)
	}
	if c.Pipeline.Workers <= 0 {
		return NewAppError("CONFIG_ERROR", "PIPELINE_WORKERS must be positive", ErrInvalidInput)
	}
	if c.Server.HTTPAddr == "" {
		return NewAppError("CONFIG_ERROR", "HTTP_ADDR is required", ErrInvalidInput)
	}
	return nil
}

// ValidateDatabase is called by binaries that need the supplier directory.
func (c *Config) ValidateDatabase() error {
	if c.Database.DSN == "" {
		return NewAppError("CONFIG_ERROR", "DB_URL is required", ErrInvalidInput)
	}
	return nil
}

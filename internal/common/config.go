package common

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	DataDir  string
	Database DatabaseConfig
	Server   ServerConfig
	PDF      PDFConfig
	LLM      LLMConfig
	Taxonomy TaxonomyConfig
	Queue    QueueConfig
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	DialTimeout     time.Duration
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Addr            string
	ShutdownTimeout time.Duration
	MaxUploadBytes  int64
}

// PDFConfig holds the external tool configuration for the page splitter
type PDFConfig struct {
	Pdftotext     string
	Pdftoppm      string
	Tesseract     string
	TesseractLang string
	DPI           int
}

// LLMConfig holds LLM-related configuration. An empty APIKey is not an
// error: extraction degrades to the mock extractor and taxonomy fallback
// to Unmatched.
type LLMConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	Timeout     time.Duration
}

// TaxonomyConfig holds the taxonomy template configuration
type TaxonomyConfig struct {
	TemplatePath  string
	ShortlistSize int
}

// QueueConfig holds the background task queue configuration
type QueueConfig struct {
	Workers int
	Size    int
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	dataDir := getEnv("DATA_DIR", "./data")
	return &Config{
		DataDir: dataDir,
		Database: DatabaseConfig{
			DSN:             getEnv("DB_URL", ""),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			DialTimeout:     getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
		},
		Server: ServerConfig{
			Addr:            getEnv("HTTP_ADDR", ":8080"),
			ShutdownTimeout: getEnvAsDuration("HTTP_SHUTDOWN_TIMEOUT", 10*time.Second),
			MaxUploadBytes:  int64(getEnvAsInt("HTTP_MAX_UPLOAD_MB", 64)) << 20,
		},
		PDF: PDFConfig{
			Pdftotext:     getEnv("PDFTOTEXT", "pdftotext"),
			Pdftoppm:      getEnv("PDFTOPPM", "pdftoppm"),
			Tesseract:     getEnv("TESSERACT", "tesseract"),
			TesseractLang: getEnv("TESSERACT_LANG", "fao+dan+eng"),
			DPI:           getEnvAsInt("PDF_RENDER_DPI", 144),
		},
		LLM: LLMConfig{
			APIKey:      getEnv("OPENAI_API_KEY", ""),
			BaseURL:     getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			Model:       getEnv("OPENAI_MODEL_VISION", "gpt-4o-mini"),
			Temperature: getEnvAsFloat32("OPENAI_TEMPERATURE", 0.0),
			Timeout:     getEnvAsDuration("OPENAI_TIMEOUT", 45*time.Second),
		},
		Taxonomy: TaxonomyConfig{
			TemplatePath:  getEnv("TAXONOMY_PATH", filepath.Join(dataDir, "taxonomy.csv")),
			ShortlistSize: getEnvAsInt("TAXONOMY_SHORTLIST", 8),
		},
		Queue: QueueConfig{
			Workers: getEnvAsInt("QUEUE_WORKERS", 4),
			Size:    getEnvAsInt("QUEUE_SIZE", 256),
		},
	}
}

// JobsDir is where per-job directories (source PDF + rendered pages) live.
func (c *Config) JobsDir() string {
	return filepath.Join(c.DataDir, "jobs")
}

// DefaultSQLiteDSN is used when DB_URL is unset.
func (c *Config) DefaultSQLiteDSN() string {
	return "file:" + filepath.Join(c.DataDir, "app.db") +
		"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	if c.Taxonomy.TemplatePath == "" {
		return NewAppError("CONFIG_ERROR", "TAXONOMY_PATH is required", ErrConfiguration)
	}
	if c.Server.Addr == "" {
		return NewAppError("CONFIG_ERROR", "HTTP_ADDR is required", ErrConfiguration)
	}
	if c.PDF.DPI <= 0 {
		return NewAppError("CONFIG_ERROR", "PDF_RENDER_DPI must be positive", ErrConfiguration)
	}
	return nil
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

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
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

package common

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Store    StoreConfig
	OCR      OCRConfig
	Vision   VisionConfig
	Pipeline PipelineConfig
	Server   ServerConfig
}

// StoreConfig selects and configures the object store backend.
type StoreConfig struct {
	Backend string // "fs" | "sqlite" | "postgres"
	Root    string // fs root directory
	DSN     string // sqlite file path or postgres DSN
}

// OCRConfig holds rasterization and OCR settings.
type OCRConfig struct {
	Pdftoppm  string // binary name or absolute path; if empty -> "pdftoppm"
	Tesseract string // binary name or absolute path; if empty -> "tesseract"

	Lang        string // default "eng"
	DPI         int    // rasterization DPI, default 150
	PSM         int    // page segmentation mode, 6 is good for uniform blocks
	OEM         int    // 1 = LSTM
	MaxWidth    int    // downscale rendered pages wider than this, default 1600
	TessdataDir string
	Timeout     time.Duration // per-page OCR subprocess budget
}

// VisionConfig holds the captioning endpoint settings.
type VisionConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	MaxTokens   int           // output-token cap per caption call
	Timeout     time.Duration // request-level timeout
	PageTimeout time.Duration // page-level budget (extract + composite + call)
}

// PipelineConfig holds concurrency and budget knobs.
type PipelineConfig struct {
	Workers         int           // analysis fan-out, default 4
	ExtractTimeout  time.Duration // per-page media extraction budget
	VisionPageRatio float64       // caller budget = ceil(ratio * pages), see cmd
	ReportXLSX      bool
}

// ServerConfig holds daemon settings.
type ServerConfig struct {
	GRPCAddr   string
	WatchRoots []string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Backend: getEnv("STORE_BACKEND", "fs"),
			Root:    getEnv("STORE_ROOT", "./data"),
			DSN:     getEnv("STORE_DSN", ""),
		},
		OCR: OCRConfig{
			Pdftoppm:    getEnv("PDFTOPPM_BIN", "pdftoppm"),
			Tesseract:   getEnv("TESSERACT_BIN", "tesseract"),
			Lang:        getEnv("TESSERACT_LANG", "eng"),
			DPI:         getEnvAsInt("OCR_DPI", 150),
			PSM:         getEnvAsInt("TESSERACT_PSM", 6),
			OEM:         getEnvAsInt("TESSERACT_OEM", 1),
			MaxWidth:    getEnvAsInt("OCR_MAX_WIDTH", 1600),
			TessdataDir: getEnv("TESSDATA_PREFIX", ""),
			Timeout:     getEnvAsDuration("OCR_TIMEOUT", 45*time.Second),
		},
		Vision: VisionConfig{
			BaseURL:     getEnv("VISION_BASE_URL", "https://api.openai.com/v1"),
			APIKey:      getEnv("VISION_API_KEY", ""),
			Model:       getEnv("VISION_MODEL", "gpt-4o-mini"),
			MaxTokens:   getEnvAsInt("VISION_MAX_TOKENS", 400),
			Timeout:     getEnvAsDuration("VISION_TIMEOUT", 30*time.Second),
			PageTimeout: getEnvAsDuration("VISION_PAGE_TIMEOUT", 60*time.Second),
		},
		Pipeline: PipelineConfig{
			Workers:         getEnvAsInt("PIPELINE_WORKERS", 4),
			ExtractTimeout:  getEnvAsDuration("EXTRACT_TIMEOUT", 20*time.Second),
			VisionPageRatio: getEnvAsFloat64("VISION_PAGE_RATIO", 0.2),
			ReportXLSX:      getEnv("REPORT_XLSX", "") != "",
		},
		Server: ServerConfig{
			GRPCAddr:   getEnv("GRPC_ADDR", ":8080"),
			WatchRoots: splitNonEmpty(getEnv("WATCH_ROOTS", "")),
		},
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

func splitNonEmpty(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if part := s[start:i]; part != "" {
				out = append(out, part)
			}
			start = i + 1
		}
	}
	return out
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case "fs":
		if c.Store.Root == "" {
			return NewAppError("CONFIG_ERROR", "STORE_ROOT is required for fs backend", ErrInvalidInput)
		}
	case "sqlite", "postgres":
		if c.Store.DSN == "" {
			return NewAppError("CONFIG_ERROR", "STORE_DSN is required for "+c.Store.Backend+" backend", ErrInvalidInput)
		}
	default:
		return NewAppError("CONFIG_ERROR", "unknown STORE_BACKEND: "+c.Store.Backend, ErrInvalidInput)
	}
	if c.Pipeline.Workers <= 0 {
		return NewAppError("CONFIG_ERROR", "PIPELINE_WORKERS must be positive", ErrInvalidInput)
	}
	return nil
}

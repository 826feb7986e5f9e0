package common

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Pipeline PipelineConfig
	Labeler  LabelerConfig
	Extract  ExtractConfig
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Driver           string // "postgres" | "sqlite"
	DSN              string
	SQLitePath       string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	GRPCAddr string
}

// PipelineConfig holds thresholds and retry policy for pipeline runs.
// The tolerances and penalties default to the values the validation
// contract documents; they are deliberately configurable rather than
// hard-coded business rules.
type PipelineConfig struct {
	StageAttemptBudget int // fallback alternates per stage, excluding the primary

	BalanceSheetTolerance float64 // fraction of total assets
	IncomeStmtTolerance   float64 // fraction of revenue
	CrossStmtTolerance    float64 // fraction of income-statement net income
	TaxonomyFloor         float64 // min fuzzy-match confidence before AmbiguousMatch

	BalanceSheetPenalty float64
	IncomeStmtPenalty   float64
	CashFlowPenalty     float64
	CrossStmtPenalty    float64

	AutoApproveScore float64 // quality_score >= this: auto-approve
	ReviewScore      float64 // quality_score >= this (and < AutoApprove): flag
	LowConfPenalty   float64 // per-field penalty below the accept threshold

	AcceptConfidence   float64 // field routing: Accepted
	SoftReviewFloor    float64 // field routing: ReviewRequired (soft)
	HardReviewFloor    float64 // field routing: ReviewRequired (hard)
	WorkerCount        int
	RunTimeout         time.Duration
	QueueSize          int
}

// LabelerConfig holds language-understanding collaborator configuration.
// The provider is an explicit value threaded into the client constructor,
// never ambient global state.
type LabelerConfig struct {
	Provider    string
	BaseURL     string
	Model       string
	APIKey      string
	Temperature float32
	Timeout     time.Duration
}

// ExtractConfig holds text/table extraction configuration
type ExtractConfig struct {
	OCRCommand       string
	TableCommand     string
	DocumentRoot     string
	ArtifactCacheDir string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:           getEnv("DB_DRIVER", "sqlite"),
			DSN:              getEnv("DB_URL", ""),
			SQLitePath:       getEnv("DB_SQLITE_PATH", "./finspread.db"),
			MaxConns:         getEnvAsInt32("DB_MAX_CONNS", 20),
			MinConns:         getEnvAsInt32("DB_MIN_CONNS", 5),
			MaxConnLifetime:  getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime:  getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:      getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 0),
		},
		Server: ServerConfig{
			GRPCAddr: getEnv("GRPC_ADDR", ":8080"),
		},
		Pipeline: PipelineConfig{
			StageAttemptBudget:    getEnvAsInt("STAGE_ATTEMPT_BUDGET", 2),
			BalanceSheetTolerance: getEnvAsFloat64("BS_TOLERANCE", 0.01),
			IncomeStmtTolerance:   getEnvAsFloat64("IS_TOLERANCE", 0.01),
			CrossStmtTolerance:    getEnvAsFloat64("CROSS_TOLERANCE", 0.005),
			TaxonomyFloor:         getEnvAsFloat64("TAXONOMY_FLOOR", 0.8),
			BalanceSheetPenalty:   getEnvAsFloat64("BS_PENALTY", 30),
			IncomeStmtPenalty:     getEnvAsFloat64("IS_PENALTY", 20),
			CashFlowPenalty:       getEnvAsFloat64("CF_PENALTY", 20),
			CrossStmtPenalty:      getEnvAsFloat64("CROSS_PENALTY", 15),
			AutoApproveScore:      getEnvAsFloat64("AUTO_APPROVE_SCORE", 90),
			ReviewScore:           getEnvAsFloat64("REVIEW_SCORE", 70),
			LowConfPenalty:        getEnvAsFloat64("LOW_CONF_PENALTY", 1),
			AcceptConfidence:      getEnvAsFloat64("ACCEPT_CONFIDENCE", 0.95),
			SoftReviewFloor:       getEnvAsFloat64("SOFT_REVIEW_FLOOR", 0.80),
			HardReviewFloor:       getEnvAsFloat64("HARD_REVIEW_FLOOR", 0.50),
			WorkerCount:           getEnvAsInt("PIPELINE_WORKERS", 4),
			RunTimeout:            getEnvAsDuration("PIPELINE_RUN_TIMEOUT", 5*time.Minute),
			QueueSize:             getEnvAsInt("PIPELINE_QUEUE_SIZE", 256),
		},
		Labeler: LabelerConfig{
			Provider:    getEnv("LABELER_PROVIDER", "openai"),
			BaseURL:     getEnv("LABELER_BASE_URL", "https://api.openai.com/v1"),
			Model:       getEnv("LABELER_MODEL", "gpt-4o-mini"),
			APIKey:      getEnv("LABELER_API_KEY", ""),
			Temperature: getEnvAsFloat32("LABELER_TEMPERATURE", 0.0),
			Timeout:     getEnvAsDuration("LABELER_TIMEOUT", 45*time.Second),
		},
		Extract: ExtractConfig{
			OCRCommand:       getEnv("OCR_COMMAND", "tesseract"),
			TableCommand:     getEnv("TABLE_COMMAND", ""),
			DocumentRoot:     getEnv("DOCUMENT_ROOT", "./documents"),
			ArtifactCacheDir: getEnv("ARTIFACT_CACHE_DIR", "./tmp"),
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

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
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

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres":
		if c.Database.DSN == "" {
			return NewAppError("CONFIG_ERROR", "DB_URL is required for the postgres driver", ErrInvalidInput)
		}
	case "sqlite":
		if c.Database.SQLitePath == "" {
			return NewAppError("CONFIG_ERROR", "DB_SQLITE_PATH is required for the sqlite driver", ErrInvalidInput)
		}
	default:
		return NewAppError("CONFIG_ERROR", "DB_DRIVER must be postgres or sqlite", ErrInvalidInput)
	}
	if c.Labeler.APIKey == "" {
		return NewAppError("CONFIG_ERROR", "LABELER_API_KEY is required", ErrInvalidInput)
	}
	if c.Server.GRPCAddr == "" {
		return NewAppError("CONFIG_ERROR", "GRPC_ADDR is required", ErrInvalidInput)
	}
	if c.Pipeline.StageAttemptBudget < 0 {
		return NewAppError("CONFIG_ERROR", "STAGE_ATTEMPT_BUDGET must be >= 0", ErrInvalidInput)
	}
	return nil
}

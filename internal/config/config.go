// Package config loads pipeline configuration from environment
// variables with sensible defaults.
//
// Environment Variables:
//
// Workspace layout:
//   - MANIFEST_PATH: TOML manifest of containers and entry spans (required)
//   - CONTAINER_DIR: directory holding original container images (default: ./containers)
//   - EXTRACTED_DIR: directory for extracted batch CSVs (default: ./extracted)
//   - TRANSLATIONS_DIR: directory translators drop edited CSVs into (default: ./translations)
//   - REPORTS_DIR: directory for overflow reports (default: ./reports)
//   - OUTPUT_DIR: directory patched images are written to (default: ./output)
//   - DB_PATH: SQLite database path (default: ./repacker.db)
//
// Pipeline behavior:
//   - WORKERS: parallel container workers (default: 4)
//   - BATCH_SIZE: records per extracted CSV shard (default: 50)
//   - OVERFLOW_ROUNDS: resubmission rounds before giving up (default: 3)
//   - CRON_EXPR: serve-mode revalidation schedule (default: "*/10 * * * *")
//   - LOG_LEVEL: debug|info|warn|error|fatal (default: info)
package config

import (
	"fmt"
	"os"
	"strconv"
)

type Config struct {
	Paths    PathsConfig    `json:"paths"`
	Pipeline PipelineConfig `json:"pipeline"`
}

// PathsConfig holds the workspace directory layout.
type PathsConfig struct {
	ManifestPath    string `json:"manifest_path"`
	ContainerDir    string `json:"container_dir"`
	ExtractedDir    string `json:"extracted_dir"`
	TranslationsDir string `json:"translations_dir"`
	ReportsDir      string `json:"reports_dir"`
	OutputDir       string `json:"output_dir"`
	DBPath          string `json:"db_path"`
}

// PipelineConfig holds tunables for the processing stages.
type PipelineConfig struct {
	Workers        int    `json:"workers"`
	BatchSize      int    `json:"batch_size"`
	OverflowRounds int    `json:"overflow_rounds"`
	CronExpr       string `json:"cron_expr"`
	LogLevel       string `json:"log_level"`
}

// Option is a function type for configuring Config
type Option func(*Config)

// NewFromEnv creates a new Config instance with values from environment variables and options
func NewFromEnv(opts ...Option) (*Config, error) {
	config := &Config{
		Paths: PathsConfig{
			ManifestPath:    getEnvString("MANIFEST_PATH", ""),
			ContainerDir:    getEnvString("CONTAINER_DIR", "./containers"),
			ExtractedDir:    getEnvString("EXTRACTED_DIR", "./extracted"),
			TranslationsDir: getEnvString("TRANSLATIONS_DIR", "./translations"),
			ReportsDir:      getEnvString("REPORTS_DIR", "./reports"),
			OutputDir:       getEnvString("OUTPUT_DIR", "./output"),
			DBPath:          getEnvString("DB_PATH", "./repacker.db"),
		},
		Pipeline: PipelineConfig{
			Workers:        getEnvInt("WORKERS", 4),
			BatchSize:      getEnvInt("BATCH_SIZE", 50),
			OverflowRounds: getEnvInt("OVERFLOW_ROUNDS", 3),
			CronExpr:       getEnvString("CRON_EXPR", "*/10 * * * *"),
			LogLevel:       getEnvString("LOG_LEVEL", "info"),
		},
	}

	// Apply custom options
	for _, opt := range opts {
		opt(config)
	}

	// Validate required configuration
	if err := config.validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// validate checks if all required configuration is properly set
func (c *Config) validate() error {
	if c.Paths.ManifestPath == "" {
		return fmt.Errorf("MANIFEST_PATH is required")
	}
	if c.Pipeline.Workers <= 0 {
		return fmt.Errorf("WORKERS must be positive")
	}
	if c.Pipeline.BatchSize <= 0 {
		return fmt.Errorf("BATCH_SIZE must be positive")
	}
	return nil
}

// getEnvString gets a string value from environment variables with default
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer value from environment variables with default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir  string // Base directory for databases and snapshots (always absolute)
	LogLevel string
	Port     int
	DevMode  bool

	// CycleInterval is the default interval between agent cycle triggers.
	// Individual agents may override it via their config.
	CycleInterval time.Duration

	// ObservationTimeout bounds each call into the observation source.
	// A timed-out category yields an empty low-significance observation.
	ObservationTimeout time.Duration

	// ExecutionTimeout bounds each order submission to the execution adapter.
	ExecutionTimeout time.Duration

	Learning LearningConfig
	Backup   BackupConfig
}

// LearningConfig holds the outcome-evaluation knobs.
//
// The settle window and the outcome multipliers are carried over from the
// original tuning and have no documented derivation. They are configurable
// pending a proper review rather than baked in as constants.
type LearningConfig struct {
	// SettleWindow is how long after execution a decision must age before
	// its final outcome is classified.
	SettleWindow time.Duration

	// SuccessMultiplier: realized value >= base case * this => success.
	SuccessMultiplier float64

	// FailureMultiplier: realized value > worst case * this => partial failure
	// (less negative than a doubled worst case).
	FailureMultiplier float64

	// PatternReplayConfidence is the minimum recorded confidence a learned
	// pattern needs before the analyzer replays it as an opportunity.
	PatternReplayConfidence float64

	// PatternExtractConfidence is the minimum mean confidence of successful
	// decisions that reinforces the high-confidence-entry pattern.
	PatternExtractConfidence float64
}

// BackupConfig holds S3-compatible snapshot backup settings.
// Backups are disabled unless a bucket and credentials are set.
type BackupConfig struct {
	Enabled         bool
	Endpoint        string // S3-compatible endpoint (e.g. R2)
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	Region          string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("HELMSMAN_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "./data"
	}

	absDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory: %w", err)
	}
	if err := os.MkdirAll(absDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	port, err := strconv.Atoi(getEnv("HELMSMAN_PORT", "8090"))
	if err != nil {
		return nil, fmt.Errorf("invalid HELMSMAN_PORT: %w", err)
	}

	cfg := &Config{
		DataDir:            absDir,
		LogLevel:           getEnv("HELMSMAN_LOG_LEVEL", "info"),
		Port:               port,
		DevMode:            getEnv("HELMSMAN_DEV_MODE", "false") == "true",
		CycleInterval:      getDurationEnv("HELMSMAN_CYCLE_INTERVAL", time.Minute),
		ObservationTimeout: getDurationEnv("HELMSMAN_OBSERVATION_TIMEOUT", 5*time.Second),
		ExecutionTimeout:   getDurationEnv("HELMSMAN_EXECUTION_TIMEOUT", 30*time.Second),
		Learning: LearningConfig{
			SettleWindow:             getDurationEnv("HELMSMAN_SETTLE_WINDOW", 7*24*time.Hour),
			SuccessMultiplier:        getFloatEnv("HELMSMAN_SUCCESS_MULTIPLIER", 1.5),
			FailureMultiplier:        getFloatEnv("HELMSMAN_FAILURE_MULTIPLIER", 2.0),
			PatternReplayConfidence:  getFloatEnv("HELMSMAN_PATTERN_REPLAY_CONFIDENCE", 60),
			PatternExtractConfidence: getFloatEnv("HELMSMAN_PATTERN_EXTRACT_CONFIDENCE", 70),
		},
		Backup: BackupConfig{
			Endpoint:        getEnv("HELMSMAN_BACKUP_ENDPOINT", ""),
			Bucket:          getEnv("HELMSMAN_BACKUP_BUCKET", ""),
			AccessKeyID:     getEnv("HELMSMAN_BACKUP_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("HELMSMAN_BACKUP_SECRET_ACCESS_KEY", ""),
			Region:          getEnv("HELMSMAN_BACKUP_REGION", "auto"),
		},
	}

	cfg.Backup.Enabled = cfg.Backup.Bucket != "" && cfg.Backup.AccessKeyID != ""

	return cfg, nil
}

// DefaultLearning returns the learning knobs with their default values.
// Used by tests and by callers that construct agents without a full Config.
func DefaultLearning() LearningConfig {
	return LearningConfig{
		SettleWindow:             7 * 24 * time.Hour,
		SuccessMultiplier:        1.5,
		FailureMultiplier:        2.0,
		PatternReplayConfidence:  60,
		PatternExtractConfidence: 70,
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func getFloatEnv(key string, fallback float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

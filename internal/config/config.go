// Package config provides configuration management for protocold.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/rescuelabs/protocold/pkg/models"
)

// Defaults applied when the settings file is absent or partial.
const (
	DefaultListenAddr      = ":8377"
	DefaultMaxConns        = 4
	DefaultFreeDailyLimit  = 10
	DefaultRetrievalLimit  = 10
	DefaultThreshold       = 0.35
	DefaultDedupWindowSecs = 5
	DefaultMaxBatchSize    = 100
	DefaultHistoryLimit    = 200
	DefaultNearMissJaccard = 0.6
	DefaultGatewayTimeout  = 60
	DefaultModelFree       = "answer-lite"
	DefaultModelPro        = "answer-standard"
	DefaultModelEnterprise = "answer-standard"
)

// Config holds all protocold settings.
type Config struct {
	ListenAddr      string `yaml:"listen_addr"`
	MaxConns        int    `yaml:"max_conns"`
	Debug           bool   `yaml:"debug"`
	DefaultTimezone string `yaml:"default_timezone"`

	// Quota
	FreeDailyLimit int64  `yaml:"free_daily_limit"`
	RedisAddr      string `yaml:"redis_addr"` // empty = counters in SQLite

	// Retrieval
	RetrievalLimit      int     `yaml:"retrieval_limit"`
	SimilarityThreshold float64 `yaml:"similarity_threshold"`

	// History sync
	SyncDedupWindowSeconds int     `yaml:"sync_dedup_window_seconds"`
	SyncMaxBatchSize       int     `yaml:"sync_max_batch_size"`
	SyncHistoryLimit       int     `yaml:"sync_history_limit"`
	NearMissThreshold      float64 `yaml:"near_miss_threshold"`

	// Generation gateway
	GatewayURL            string `yaml:"gateway_url"`
	GatewayAPIKey         string `yaml:"gateway_api_key"`
	GatewayTimeoutSeconds int    `yaml:"gateway_timeout_seconds"`
	ModelFree             string `yaml:"model_free"`
	ModelPro              string `yaml:"model_pro"`
	ModelEnterprise       string `yaml:"model_enterprise"`
}

// Default returns the configuration defaults.
func Default() *Config {
	return &Config{
		ListenAddr:             DefaultListenAddr,
		MaxConns:               DefaultMaxConns,
		FreeDailyLimit:         DefaultFreeDailyLimit,
		RetrievalLimit:         DefaultRetrievalLimit,
		SimilarityThreshold:    DefaultThreshold,
		SyncDedupWindowSeconds: DefaultDedupWindowSecs,
		SyncMaxBatchSize:       DefaultMaxBatchSize,
		SyncHistoryLimit:       DefaultHistoryLimit,
		NearMissThreshold:      DefaultNearMissJaccard,
		GatewayTimeoutSeconds:  DefaultGatewayTimeout,
		ModelFree:              DefaultModelFree,
		ModelPro:               DefaultModelPro,
		ModelEnterprise:        DefaultModelEnterprise,
	}
}

// DataDir returns the data directory, honoring PROTOCOLD_DATA_DIR.
func DataDir() string {
	if dir := os.Getenv("PROTOCOLD_DATA_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".protocold"
	}
	return filepath.Join(home, ".protocold")
}

// DBPath returns the SQLite database path.
func DBPath() string {
	return filepath.Join(DataDir(), "protocold.db")
}

// SettingsPath returns the settings file path.
func SettingsPath() string {
	return filepath.Join(DataDir(), "settings.yaml")
}

// EnsureDataDir creates the data directory if missing.
func EnsureDataDir() error {
	return os.MkdirAll(DataDir(), 0o755)
}

// EnsureSettings writes a default settings file if none exists.
func EnsureSettings() error {
	path := SettingsPath()
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	data, err := yaml.Marshal(Default())
	if err != nil {
		return fmt.Errorf("marshal default settings: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// EnsureAll creates the data directory and settings file.
func EnsureAll() error {
	if err := EnsureDataDir(); err != nil {
		return fmt.Errorf("ensure data dir: %w", err)
	}
	return EnsureSettings()
}

// Load reads the settings file over the defaults. Unknown keys are
// ignored; missing keys keep their default values.
func Load() (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(SettingsPath())
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read settings: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse settings: %w", err)
	}
	cfg.applyBounds()
	return cfg, nil
}

// applyBounds restores defaults for out-of-range values.
func (c *Config) applyBounds() {
	if c.ListenAddr == "" {
		c.ListenAddr = DefaultListenAddr
	}
	if c.MaxConns <= 0 {
		c.MaxConns = DefaultMaxConns
	}
	if c.FreeDailyLimit <= 0 {
		c.FreeDailyLimit = DefaultFreeDailyLimit
	}
	if c.RetrievalLimit <= 0 {
		c.RetrievalLimit = DefaultRetrievalLimit
	}
	if c.SimilarityThreshold <= 0 || c.SimilarityThreshold >= 1 {
		c.SimilarityThreshold = DefaultThreshold
	}
	if c.SyncDedupWindowSeconds <= 0 {
		c.SyncDedupWindowSeconds = DefaultDedupWindowSecs
	}
	if c.SyncMaxBatchSize <= 0 {
		c.SyncMaxBatchSize = DefaultMaxBatchSize
	}
	if c.SyncHistoryLimit <= 0 {
		c.SyncHistoryLimit = DefaultHistoryLimit
	}
	if c.NearMissThreshold <= 0 || c.NearMissThreshold >= 1 {
		c.NearMissThreshold = DefaultNearMissJaccard
	}
	if c.GatewayTimeoutSeconds <= 0 {
		c.GatewayTimeoutSeconds = DefaultGatewayTimeout
	}
}

// Models returns the tier-to-model routing map.
func (c *Config) Models() map[models.Tier]string {
	return map[models.Tier]string{
		models.TierFree:       c.ModelFree,
		models.TierPro:        c.ModelPro,
		models.TierEnterprise: c.ModelEnterprise,
	}
}

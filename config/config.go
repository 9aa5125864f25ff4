// Package config loads the YAML configuration surface for the router and
// memory manager.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config contains runtime configuration for the routing/memory core.
type Config struct {
	DBPath   string `yaml:"db_path"`
	LogLevel string `yaml:"log_level"`

	// Router tuning.
	DirectConfidenceThreshold float64 `yaml:"direct_confidence_threshold"`
	TieBreakEpsilon           float64 `yaml:"tie_break_epsilon"`
	RouterTopK                int     `yaml:"router_top_k"`
	LearnFromFallback         bool    `yaml:"learn_from_fallback"`

	// Fallback classifier.
	ClassifierModel          string `yaml:"classifier_model"`
	ClassifierMaxTokens      int    `yaml:"classifier_max_tokens"`
	ClassifierTimeoutSeconds int    `yaml:"classifier_timeout_seconds"`

	// Memory tiers.
	SessionWindowSize          int `yaml:"session_window_size"`
	SessionIdleTimeoutMinutes  int `yaml:"session_idle_timeout_minutes"`
	LongTermRetrievalTopM      int `yaml:"long_term_retrieval_top_m"`
	LongTermMaxEntriesPerOwner int `yaml:"long_term_max_entries_per_owner"`
	ExpiryCheckIntervalSeconds int `yaml:"expiry_check_interval_seconds"`

	// Session store backend: "inmem" or "redis".
	SessionBackend string `yaml:"session_backend"`
	RedisURL       string `yaml:"redis_url"`

	// Embedding cache size, in cached texts. 0 disables the cache.
	EmbeddingCacheSize int `yaml:"embedding_cache_size"`
}

// Default returns a Config populated with safe defaults.
func Default() Config {
	return Config{
		DBPath:   filepath.Join(userHomeDir(), ".agentforge", "agentforge.db"),
		LogLevel: "info",

		DirectConfidenceThreshold: 0.80,
		TieBreakEpsilon:           0.02,
		RouterTopK:                5,
		LearnFromFallback:         false,

		ClassifierModel:          "claude-3-5-haiku-latest",
		ClassifierMaxTokens:      32,
		ClassifierTimeoutSeconds: 10,

		SessionWindowSize:          20,
		SessionIdleTimeoutMinutes:  30,
		LongTermRetrievalTopM:      5,
		LongTermMaxEntriesPerOwner: 0,
		ExpiryCheckIntervalSeconds: 60,

		SessionBackend: "inmem",

		EmbeddingCacheSize: 4096,
	}
}

// Load loads config from disk; if path does not exist, default config is
// returned.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config yaml: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// Validate checks configuration sanity.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return errors.New("db_path must not be empty")
	}
	if c.DirectConfidenceThreshold <= 0 || c.DirectConfidenceThreshold > 1 {
		return errors.New("direct_confidence_threshold must be in (0, 1]")
	}
	if c.TieBreakEpsilon < 0 {
		return errors.New("tie_break_epsilon must be >= 0")
	}
	if c.RouterTopK <= 0 {
		return errors.New("router_top_k must be > 0")
	}
	if c.ClassifierMaxTokens <= 0 {
		return errors.New("classifier_max_tokens must be > 0")
	}
	if c.ClassifierTimeoutSeconds <= 0 {
		return errors.New("classifier_timeout_seconds must be > 0")
	}
	if c.SessionWindowSize <= 0 {
		return errors.New("session_window_size must be > 0")
	}
	if c.SessionIdleTimeoutMinutes <= 0 {
		return errors.New("session_idle_timeout_minutes must be > 0")
	}
	if c.LongTermRetrievalTopM <= 0 {
		return errors.New("long_term_retrieval_top_m must be > 0")
	}
	if c.LongTermMaxEntriesPerOwner < 0 {
		return errors.New("long_term_max_entries_per_owner must be >= 0")
	}
	if c.ExpiryCheckIntervalSeconds <= 0 {
		return errors.New("expiry_check_interval_seconds must be > 0")
	}
	switch c.SessionBackend {
	case "inmem", "redis":
	default:
		return fmt.Errorf("session_backend must be inmem or redis, got %q", c.SessionBackend)
	}
	if c.SessionBackend == "redis" && c.RedisURL == "" {
		return errors.New("redis_url must be set when session_backend is redis")
	}
	if c.EmbeddingCacheSize < 0 {
		return errors.New("embedding_cache_size must be >= 0")
	}
	return nil
}

// SessionIdleTimeout returns the idle timeout as a duration.
func (c *Config) SessionIdleTimeout() time.Duration {
	return time.Duration(c.SessionIdleTimeoutMinutes) * time.Minute
}

// ClassifierTimeout returns the classifier call budget as a duration.
func (c *Config) ClassifierTimeout() time.Duration {
	return time.Duration(c.ClassifierTimeoutSeconds) * time.Second
}

// ExpiryCheckInterval returns the expiry sweep interval as a duration.
func (c *Config) ExpiryCheckInterval() time.Duration {
	return time.Duration(c.ExpiryCheckIntervalSeconds) * time.Second
}

// EnsurePaths creates parent directories for config-managed paths.
func (c *Config) EnsurePaths() error {
	c.DBPath = ExpandPath(c.DBPath)
	parent := filepath.Dir(c.DBPath)
	if parent == "." {
		return nil
	}
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return fmt.Errorf("create db parent dir: %w", err)
	}
	return nil
}

// ExpandPath expands "~/" to the current user's home directory.
func ExpandPath(p string) string {
	if p == "" {
		return p
	}
	if p == "~" {
		return userHomeDir()
	}
	if strings.HasPrefix(p, "~/") {
		return filepath.Join(userHomeDir(), p[2:])
	}
	return p
}

func userHomeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}

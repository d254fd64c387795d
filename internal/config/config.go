// Package config loads the service configuration from a yaml file and
// validates the matching parameters before any recognition work begins.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/example/bookcover/internal/match"
	"github.com/example/bookcover/internal/recognize"
)

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr                string `yaml:"addr"`
	ShutdownTimeoutSecs int    `yaml:"shutdown_timeout_secs"`
}

// MatchingConfig holds the tunable recognition parameters.
type MatchingConfig struct {
	// Ratio is the ratio-test threshold, in (0,1).
	Ratio float64 `yaml:"ratio"`

	// Threshold is the acceptance threshold for the best score, in [0,1].
	Threshold float64 `yaml:"threshold"`

	// Workers bounds concurrent catalog-entry evaluations; 0 or 1 scans
	// sequentially.
	Workers int `yaml:"workers"`
}

// RemoteExtractorConfig contains connection details for an out-of-process
// extraction service.
type RemoteExtractorConfig struct {
	BaseURL     string `yaml:"base_url"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	MaxRetries  int    `yaml:"max_retries"`
}

// ExtractorConfig selects and configures the feature extractor.
type ExtractorConfig struct {
	Type        string                 `yaml:"type"`
	ScaleSize   int                    `yaml:"scale_size"`
	MaxFeatures int                    `yaml:"max_features"`
	Remote      *RemoteExtractorConfig `yaml:"remote,omitempty"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Server      ServerConfig    `yaml:"server"`
	Matching    MatchingConfig  `yaml:"matching"`
	Extractor   ExtractorConfig `yaml:"extractor"`
	DatabaseDSN string          `yaml:"database_dsn"`
	RedisAddr   string          `yaml:"redis_addr"`
}

// Load reads a config from the specified path. If the file does not exist,
// defaults are returned. The result is always validated.
func Load(path string) (*AppConfig, error) {
	cfg := defaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	applyConfigDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects parameter values the matching engine would refuse at call
// time, so misconfiguration surfaces at startup.
func (c *AppConfig) Validate() error {
	if c.Matching.Ratio <= 0 || c.Matching.Ratio >= 1 {
		return fmt.Errorf("config: matching.ratio %v: %w", c.Matching.Ratio, match.ErrInvalidRatio)
	}
	if c.Matching.Threshold < 0 || c.Matching.Threshold > 1 {
		return fmt.Errorf("config: matching.threshold %v: %w", c.Matching.Threshold, recognize.ErrInvalidThreshold)
	}
	if c.Matching.Workers < 0 {
		return fmt.Errorf("config: matching.workers must not be negative")
	}
	switch c.Extractor.Type {
	case "brief":
	case "remote":
		if c.Extractor.Remote == nil || c.Extractor.Remote.BaseURL == "" {
			return fmt.Errorf("config: extractor.remote.base_url is required for the remote extractor")
		}
	default:
		return fmt.Errorf("config: unknown extractor type %q", c.Extractor.Type)
	}
	return nil
}

func defaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Addr:                ":8080",
			ShutdownTimeoutSecs: 15,
		},
		Matching: MatchingConfig{
			Ratio:     match.DefaultRatio,
			Threshold: recognize.DefaultThreshold,
		},
		Extractor: ExtractorConfig{Type: "brief"},
	}
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.ShutdownTimeoutSecs == 0 {
		cfg.Server.ShutdownTimeoutSecs = 15
	}
	if cfg.Matching.Ratio == 0 {
		cfg.Matching.Ratio = match.DefaultRatio
	}
	if cfg.Matching.Threshold == 0 {
		cfg.Matching.Threshold = recognize.DefaultThreshold
	}
	if cfg.Extractor.Type == "" {
		cfg.Extractor.Type = "brief"
	}
	if cfg.Extractor.Type == "remote" && cfg.Extractor.Remote != nil {
		if cfg.Extractor.Remote.TimeoutSecs == 0 {
			cfg.Extractor.Remote.TimeoutSecs = 30
		}
		if cfg.Extractor.Remote.MaxRetries == 0 {
			cfg.Extractor.Remote.MaxRetries = 3
		}
	}
}

// Package config loads the gateway configuration from YAML.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/chofesh/model-gateway/internal/catalog"
)

// Config is the full gateway configuration.
type Config struct {
	Server    ServerConfig              `yaml:"server"`
	Logging   LoggingConfig             `yaml:"logging"`
	Redis     RedisConfig               `yaml:"redis"`
	Credits   CreditsConfig             `yaml:"credits"`
	Providers map[string]ProviderConfig `yaml:"providers"`
	Models    []ModelConfig             `yaml:"models"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// RedisConfig points at the credit store. An empty addr selects the
// in-memory store, which only makes sense for a single-node dev run.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// CreditsConfig controls the ledger.
type CreditsConfig struct {
	DailyAllotment int64  `yaml:"daily_allotment"`
	RefreshCron    string `yaml:"refresh_cron"`
}

// ProviderConfig is the per-family credential block. Keys in the providers
// map are catalog family names.
type ProviderConfig struct {
	APIKey         string            `yaml:"api_key"`
	BaseURL        string            `yaml:"base_url"`
	TimeoutSeconds int               `yaml:"timeout_seconds"`
	Headers        map[string]string `yaml:"headers"`
}

// GetTimeout returns the call timeout for this provider.
func (p ProviderConfig) GetTimeout() time.Duration {
	if p.TimeoutSeconds <= 0 {
		return 120 * time.Second
	}
	return time.Duration(p.TimeoutSeconds) * time.Second
}

// ModelConfig is one catalog entry as written by operators.
type ModelConfig struct {
	ID         string   `yaml:"id"`
	Family     string   `yaml:"family"`
	Modalities []string `yaml:"modalities"`
	Tier       string   `yaml:"tier"`
	CreditCost int64    `yaml:"credit_cost"`
	Priority   int      `yaml:"priority"`
	MaxRetries int      `yaml:"max_retries"`
}

// Descriptor converts the entry to a catalog descriptor.
func (m ModelConfig) Descriptor() catalog.Descriptor {
	modalities := make([]catalog.Modality, 0, len(m.Modalities))
	for _, mod := range m.Modalities {
		modalities = append(modalities, catalog.Modality(mod))
	}
	return catalog.Descriptor{
		ID:         m.ID,
		Family:     catalog.Family(m.Family),
		Modalities: modalities,
		Tier:       catalog.PolicyTier(m.Tier),
		CreditCost: m.CreditCost,
		Priority:   m.Priority,
		MaxRetries: m.MaxRetries,
	}
}

// Load reads, env-expands and validates the config file. ${VAR} references
// let credentials live in the environment while the file stays in source
// control.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "localhost"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8790
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Credits.DailyAllotment == 0 {
		c.Credits.DailyAllotment = 30
	}
	if c.Credits.RefreshCron == "" {
		c.Credits.RefreshCron = "0 0 * * *"
	}
}

// Validate checks the parts a bad config would otherwise only reveal at
// request time.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Credits.DailyAllotment < 0 {
		return fmt.Errorf("daily allotment cannot be negative")
	}
	if len(c.Models) == 0 {
		return fmt.Errorf("at least one model must be configured")
	}
	for name := range c.Providers {
		switch catalog.Family(name) {
		case catalog.FamilyOpenAI, catalog.FamilyAnthropic, catalog.FamilyKimi, catalog.FamilyVenice:
		default:
			return fmt.Errorf("unknown provider family %q", name)
		}
	}
	for _, m := range c.Models {
		if _, ok := c.Providers[m.Family]; !ok {
			return fmt.Errorf("model %s references unconfigured family %q", m.ID, m.Family)
		}
	}
	return nil
}

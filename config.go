package imgguard

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultDownloadTimeout bounds image downloads for byte-based providers.
const DefaultDownloadTimeout = 10 * time.Second

// Config is the top-level moderation configuration.
type Config struct {
	// Providers are tried in this order when a request names none.
	Providers       []ProviderConfig `yaml:"providers"`
	DownloadTimeout time.Duration    `yaml:"download_timeout"`
}

// ProviderConfig configures a single provider.
type ProviderConfig struct {
	Name         string `yaml:"name"`
	Auth         Auth   `yaml:"auth"`
	Region       string `yaml:"region"`
	BaseURL      string `yaml:"base_url"`
	DailyLimit   *int64 `yaml:"daily_limit"`
	MonthlyLimit int64  `yaml:"monthly_limit"`
}

// Limits returns the quota limits of the provider.
func (p ProviderConfig) Limits() QuotaLimits {
	return QuotaLimits{Daily: p.DailyLimit, Monthly: p.MonthlyLimit}
}

// LoadConfig reads and parses a YAML config file.
// Environment variables in the format ${VAR} are expanded before parsing.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("imgguard: read config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig parses YAML config data, expanding ${VAR} references.
func ParseConfig(data []byte) (Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, fmt.Errorf("imgguard: parse config: %w", err)
	}
	if cfg.DownloadTimeout == 0 {
		cfg.DownloadTimeout = DefaultDownloadTimeout
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the config for required fields and consistency.
func (c Config) Validate() error {
	if len(c.Providers) == 0 {
		return fmt.Errorf("imgguard: config: at least one provider is required")
	}

	names := make(map[string]bool, len(c.Providers))
	for i, p := range c.Providers {
		if p.Name == "" {
			return fmt.Errorf("imgguard: config: providers[%d]: name is required", i)
		}
		if names[p.Name] {
			return fmt.Errorf("imgguard: config: duplicate provider %q", p.Name)
		}
		names[p.Name] = true

		if p.MonthlyLimit < 0 {
			return fmt.Errorf("imgguard: config: providers[%d] (%s): monthly_limit must not be negative", i, p.Name)
		}
		if p.DailyLimit != nil && *p.DailyLimit < 0 {
			return fmt.Errorf("imgguard: config: providers[%d] (%s): daily_limit must not be negative", i, p.Name)
		}
	}

	if c.DownloadTimeout < 0 {
		return fmt.Errorf("imgguard: config: download_timeout must not be negative")
	}
	return nil
}

// Provider returns the config of the named provider.
func (c Config) Provider(name string) (ProviderConfig, bool) {
	for _, p := range c.Providers {
		if p.Name == name {
			return p, true
		}
	}
	return ProviderConfig{}, false
}

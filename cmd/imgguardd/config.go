package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ineyio/imgguard"
	"github.com/ineyio/imgguard/internal/server"
)

// daemonConfig is the on-disk configuration of imgguardd.
type daemonConfig struct {
	imgguard.Config `yaml:",inline"`

	Ledger ledgerConfig  `yaml:"ledger"`
	Server server.Config `yaml:"server"`
	Log    logConfig     `yaml:"log"`
}

type ledgerConfig struct {
	Backend  string `yaml:"backend"` // memory, redis, postgres, mongo, sqlite
	DSN      string `yaml:"dsn"`     // postgres connection string or mongo URI
	Addr     string `yaml:"addr"`    // redis address
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Database string `yaml:"database"` // mongo database
	Path     string `yaml:"path"`     // sqlite file
	Prefix   string `yaml:"prefix"`   // redis key prefix or postgres table prefix
}

type logConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

func loadDaemonConfig(path string) (daemonConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return daemonConfig{}, fmt.Errorf("read config: %w", err)
	}

	var cfg daemonConfig
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return daemonConfig{}, fmt.Errorf("parse config: %w", err)
	}

	if cfg.DownloadTimeout == 0 {
		cfg.DownloadTimeout = imgguard.DefaultDownloadTimeout
	}
	if cfg.Ledger.Backend == "" {
		cfg.Ledger.Backend = "memory"
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}

	if err := cfg.Config.Validate(); err != nil {
		return daemonConfig{}, err
	}
	if len(cfg.Server.APIKeys) == 0 {
		return daemonConfig{}, fmt.Errorf("config: server.api_keys must not be empty")
	}
	return cfg, nil
}

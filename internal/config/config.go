// Package config handles configuration loading for the GeneRank server.
package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the server configuration.
type Config struct {
	Server   ServerConfig    `yaml:"server"`
	Datasets []DatasetConfig `yaml:"datasets"`
	Rank     RankConfig      `yaml:"rank"`
	Cache    CacheConfig     `yaml:"cache"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port        int      `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// DatasetConfig describes one expression matrix directory in 10x MTX
// layout (matrix.mtx, features.tsv, barcodes.tsv, optional obs.tsv).
type DatasetConfig struct {
	ID      string `yaml:"id"`
	Path    string `yaml:"path"`
	RawPath string `yaml:"raw_path"`
}

// RankConfig contains gene ranking job settings.
type RankConfig struct {
	DefaultNGenes int    `yaml:"default_n_genes"`
	MaxConcurrent int    `yaml:"max_concurrent"`
	StorePath     string `yaml:"store_path"`
	RetentionDays int    `yaml:"retention_days"`
}

// CacheConfig contains caching settings.
type CacheConfig struct {
	ResultSizeMB     int `yaml:"result_size_mb"`
	ResultTTLMinutes int `yaml:"result_ttl_minutes"`
	SummaryEntries   int `yaml:"summary_entries"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		// Return default config if file doesn't exist
		return DefaultConfig(), nil
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Apply defaults for missing values
	applyDefaults(&cfg)

	return &cfg, nil
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        8080,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Rank: RankConfig{
			DefaultNGenes: 100,
			MaxConcurrent: 2,
			StorePath:     "./data/rank_jobs.db",
			RetentionDays: 7,
		},
		Cache: CacheConfig{
			ResultSizeMB:     256,
			ResultTTLMinutes: 30,
			SummaryEntries:   1024,
		},
	}
}

func applyDefaults(cfg *Config) {
	defaults := DefaultConfig()

	if cfg.Server.Port == 0 {
		cfg.Server.Port = defaults.Server.Port
	}
	if len(cfg.Server.CORSOrigins) == 0 {
		cfg.Server.CORSOrigins = defaults.Server.CORSOrigins
	}
	if cfg.Rank.DefaultNGenes == 0 {
		cfg.Rank.DefaultNGenes = defaults.Rank.DefaultNGenes
	}
	if cfg.Rank.MaxConcurrent == 0 {
		cfg.Rank.MaxConcurrent = defaults.Rank.MaxConcurrent
	}
	if cfg.Rank.StorePath == "" {
		cfg.Rank.StorePath = defaults.Rank.StorePath
	}
	if cfg.Rank.RetentionDays == 0 {
		cfg.Rank.RetentionDays = defaults.Rank.RetentionDays
	}
	if cfg.Cache.ResultSizeMB == 0 {
		cfg.Cache.ResultSizeMB = defaults.Cache.ResultSizeMB
	}
	if cfg.Cache.ResultTTLMinutes == 0 {
		cfg.Cache.ResultTTLMinutes = defaults.Cache.ResultTTLMinutes
	}
	if cfg.Cache.SummaryEntries == 0 {
		cfg.Cache.SummaryEntries = defaults.Cache.SummaryEntries
	}
}

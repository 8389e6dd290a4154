package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_FullConfig(t *testing.T) {
	content := `
server:
  port: 9000
  cors_origins:
    - "http://example.com"
datasets:
  - id: pbmc
    path: "/data/pbmc/filtered"
    raw_path: "/data/pbmc/raw"
  - id: liver
    path: "/data/liver/filtered"
rank:
  default_n_genes: 50
  max_concurrent: 4
  store_path: "/var/lib/generank/jobs.db"
cache:
  result_size_mb: 128
`
	cfg := loadFromString(t, content)

	if cfg.Server.Port != 9000 {
		t.Errorf("expected port 9000, got %d", cfg.Server.Port)
	}
	if len(cfg.Server.CORSOrigins) != 1 || cfg.Server.CORSOrigins[0] != "http://example.com" {
		t.Errorf("unexpected cors origins: %v", cfg.Server.CORSOrigins)
	}

	if len(cfg.Datasets) != 2 {
		t.Fatalf("expected 2 datasets, got %d", len(cfg.Datasets))
	}
	if cfg.Datasets[0].ID != "pbmc" || cfg.Datasets[0].RawPath != "/data/pbmc/raw" {
		t.Errorf("unexpected first dataset: %+v", cfg.Datasets[0])
	}
	if cfg.Datasets[1].ID != "liver" || cfg.Datasets[1].RawPath != "" {
		t.Errorf("unexpected second dataset: %+v", cfg.Datasets[1])
	}

	if cfg.Rank.DefaultNGenes != 50 {
		t.Errorf("expected n_genes 50, got %d", cfg.Rank.DefaultNGenes)
	}
	if cfg.Rank.MaxConcurrent != 4 {
		t.Errorf("expected max_concurrent 4, got %d", cfg.Rank.MaxConcurrent)
	}
	if cfg.Rank.StorePath != "/var/lib/generank/jobs.db" {
		t.Errorf("unexpected store_path: %s", cfg.Rank.StorePath)
	}
	if cfg.Cache.ResultSizeMB != 128 {
		t.Errorf("expected result_size_mb 128, got %d", cfg.Cache.ResultSizeMB)
	}
}

func TestLoad_DefaultsApplied(t *testing.T) {
	content := `
datasets:
  - id: test
    path: "/test/filtered"
`
	cfg := loadFromString(t, content)

	if cfg.Server.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Rank.DefaultNGenes != 100 {
		t.Errorf("expected default n_genes 100, got %d", cfg.Rank.DefaultNGenes)
	}
	if cfg.Rank.MaxConcurrent != 2 {
		t.Errorf("expected default max_concurrent 2, got %d", cfg.Rank.MaxConcurrent)
	}
	if cfg.Rank.RetentionDays != 7 {
		t.Errorf("expected default retention 7, got %d", cfg.Rank.RetentionDays)
	}
	if cfg.Cache.ResultSizeMB != 256 {
		t.Errorf("expected default result_size_mb 256, got %d", cfg.Cache.ResultSizeMB)
	}
	if cfg.Cache.SummaryEntries != 1024 {
		t.Errorf("expected default summary_entries 1024, got %d", cfg.Cache.SummaryEntries)
	}
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("expected default port, got %d", cfg.Server.Port)
	}
	if len(cfg.Datasets) != 0 {
		t.Errorf("expected no datasets, got %d", len(cfg.Datasets))
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("server: [not a map"), 0644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for invalid yaml")
	}
}

func loadFromString(t *testing.T, content string) *Config {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

// Package main is the entry point for the GeneRank server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/generank/server/internal/api"
	"github.com/generank/server/internal/cache"
	"github.com/generank/server/internal/config"
	"github.com/generank/server/internal/data/mtx"
	"github.com/generank/server/internal/service"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "config/server.yaml", "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.Printf("Starting GeneRank server on port %d", cfg.Server.Port)

	// Initialize components
	ctx := context.Background()

	// Initialize cache manager (shared across all datasets)
	cacheManager, err := cache.NewManager(cache.Config{
		ResultCacheSizeMB: cfg.Cache.ResultSizeMB,
		ResultTTL:         time.Duration(cfg.Cache.ResultTTLMinutes) * time.Minute,
		SummaryCacheSize:  cfg.Cache.SummaryEntries,
	})
	if err != nil {
		log.Fatalf("Failed to initialize cache: %v", err)
	}
	defer cacheManager.Close()

	// Initialize dataset registry
	registry := api.NewDatasetRegistry()

	log.Printf("Initializing %d dataset(s)", len(cfg.Datasets))

	for _, dc := range cfg.Datasets {
		bundle, err := mtx.Load(dc.Path)
		if err != nil {
			log.Fatalf("Failed to load dataset %q: %v", dc.ID, err)
		}
		nObs, nGenes := bundle.Matrix.Dims()
		log.Printf("  [%s] Loaded from: %s", dc.ID, dc.Path)
		log.Printf("    Observations: %d, Genes: %d, Obs columns: %d", nObs, nGenes, len(bundle.Obs))

		ds := &service.Dataset{
			ID:     dc.ID,
			Genes:  bundle.Genes,
			Matrix: bundle.Matrix,
			Obs:    bundle.Obs,
		}

		if dc.RawPath != "" {
			raw, err := mtx.Load(dc.RawPath)
			if err != nil {
				log.Printf("  [%s] Raw layer not loaded: %v", dc.ID, err)
			} else {
				ds.Raw = raw.Matrix
				ds.RawGenes = raw.Genes
				_, rawGenes := raw.Matrix.Dims()
				log.Printf("  [%s] Raw layer: %d genes", dc.ID, rawGenes)
			}
		}

		registry.Register(ds)
	}

	// Initialize job manager for ranking jobs (SQLite persistence)
	jobManager, err := api.NewJobManager(api.JobManagerConfig{
		MaxConcurrent: cfg.Rank.MaxConcurrent,
		SQLitePath:    cfg.Rank.StorePath,
		RetentionDays: cfg.Rank.RetentionDays,
		CleanupPeriod: 1 * time.Hour,
	})
	if err != nil {
		log.Fatalf("Failed to initialize job manager: %v", err)
	}
	log.Printf("Rank job manager: max_concurrent=%d, retention_days=%d, sqlite=%s",
		cfg.Rank.MaxConcurrent, cfg.Rank.RetentionDays, cfg.Rank.StorePath)

	// Wire up ranking service as job executor
	rankService := service.NewRankService(registry)
	jobManager.Executor = rankService.ExecuteRankJob

	jobManager.Start()
	defer jobManager.Stop()

	// Set up HTTP router
	router := api.NewRouter(api.RouterConfig{
		Registry:      registry,
		CORSOrigins:   cfg.Server.CORSOrigins,
		JobManager:    jobManager,
		RankService:   rankService,
		Cache:         cacheManager,
		DefaultNGenes: cfg.Rank.DefaultNGenes,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server listening on http://localhost:%d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}

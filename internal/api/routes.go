// Package api provides HTTP handlers for the GeneRank server.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/generank/server/internal/cache"
	"github.com/generank/server/internal/rank"
	"github.com/generank/server/internal/rankstore"
	"github.com/generank/server/internal/service"
)

// RouterConfig contains router configuration.
type RouterConfig struct {
	Registry    *DatasetRegistry
	CORSOrigins []string
	JobManager  *JobManager
	RankService *service.RankService
	Cache       *cache.Manager

	// DefaultNGenes is applied to submitted jobs that leave n_genes unset.
	DefaultNGenes int
}

// NewRouter creates a new HTTP router.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Global datasets endpoint (not dataset-scoped)
	r.Get("/api/datasets", datasetsHandler(cfg.Registry))

	// Global gene_lookup endpoint (resolves gene -> matching datasets)
	r.Get("/api/gene_lookup", geneLookupHandler(cfg.Registry))

	// Dataset-scoped routes: /d/{dataset}/...
	r.Route("/d/{dataset}", func(r chi.Router) {
		r.Use(datasetMiddleware(cfg.Registry))

		r.Route("/api", func(r chi.Router) {
			r.Get("/genes", datasetGenesHandler)
			r.Get("/genes/{gene}/summary", geneSummaryHandler(cfg.RankService, cfg.Cache))
			r.Get("/obs/columns", datasetObsColumnsHandler)
			r.Get("/obs/{column}/values", datasetObsValuesHandler)

			// Ranking job endpoints
			r.Route("/rank/jobs", func(r chi.Router) {
				r.Get("/", rankJobListHandler(cfg.JobManager))
				r.Post("/", rankJobSubmitHandler(cfg.JobManager, cfg.DefaultNGenes))
				r.Get("/{job_id}", rankJobStatusHandler(cfg.JobManager))
				r.Get("/{job_id}/result", rankJobResultHandler(cfg.JobManager, cfg.Cache))
				r.Delete("/{job_id}", rankJobCancelHandler(cfg.JobManager))
			})
		})
	})

	return r
}

// Context key for dataset
type ctxKey string

const datasetKey ctxKey = "dataset"

// datasetMiddleware resolves the dataset from URL and injects it into context.
func datasetMiddleware(registry *DatasetRegistry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			datasetID := chi.URLParam(r, "dataset")
			ds := registry.Get(datasetID)
			if ds == nil {
				http.Error(w, "dataset not found: "+datasetID, http.StatusNotFound)
				return
			}
			ctx := context.WithValue(r.Context(), datasetKey, ds)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func getDataset(r *http.Request) *service.Dataset {
	if ds, ok := r.Context().Value(datasetKey).(*service.Dataset); ok {
		return ds
	}
	return nil
}

// datasetsHandler returns the list of available datasets.
func datasetsHandler(registry *DatasetRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := map[string]interface{}{
			"datasets": registry.Datasets(),
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response)
	}
}

// geneLookupHandler resolves a gene name to the list of datasets containing it.
func geneLookupHandler(registry *DatasetRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		gene := strings.TrimSpace(r.URL.Query().Get("gene"))
		if gene == "" {
			http.Error(w, "missing required query param: gene", http.StatusBadRequest)
			return
		}

		var matchingDatasets []string
		for _, dsID := range registry.DatasetIDs() {
			ds := registry.Get(dsID)
			if ds == nil {
				continue
			}
			for _, g := range ds.Genes {
				if g == gene {
					matchingDatasets = append(matchingDatasets, dsID)
					break
				}
			}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"gene":     gene,
			"datasets": matchingDatasets,
		})
	}
}

func datasetGenesHandler(w http.ResponseWriter, r *http.Request) {
	ds := getDataset(r)
	if ds == nil {
		http.Error(w, "dataset not available", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"genes": ds.Genes,
		"total": len(ds.Genes),
	})
}

func geneSummaryHandler(svc *service.RankService, cm *cache.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ds := getDataset(r)
		if ds == nil {
			http.Error(w, "dataset not available", http.StatusInternalServerError)
			return
		}

		gene := chi.URLParam(r, "gene")
		useRaw := r.URL.Query().Get("use_raw") == "true"

		key := cache.SummaryKey(ds.ID, gene, useRaw)
		if cm != nil {
			if data, ok := cm.GetSummary(key); ok {
				w.Header().Set("Content-Type", "application/json")
				w.Write(data)
				return
			}
		}

		summary, err := svc.SummarizeGene(ds.ID, gene, useRaw)
		if err != nil {
			status := http.StatusInternalServerError
			if strings.Contains(err.Error(), "not found") || strings.Contains(err.Error(), "not available") {
				status = http.StatusNotFound
			}
			http.Error(w, err.Error(), status)
			return
		}

		data, err := json.Marshal(summary)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if cm != nil {
			cm.SetSummary(key, data)
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	}
}

func datasetObsColumnsHandler(w http.ResponseWriter, r *http.Request) {
	ds := getDataset(r)
	if ds == nil {
		http.Error(w, "dataset not available", http.StatusInternalServerError)
		return
	}

	columns := make([]string, 0, len(ds.Obs))
	for col := range ds.Obs {
		columns = append(columns, col)
	}
	sort.Strings(columns)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"columns": columns,
	})
}

func datasetObsValuesHandler(w http.ResponseWriter, r *http.Request) {
	ds := getDataset(r)
	if ds == nil {
		http.Error(w, "dataset not available", http.StatusInternalServerError)
		return
	}

	column := chi.URLParam(r, "column")
	labels, err := ds.Labels(column)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"column": column,
		"values": labels.Categories,
	})
}

// Ranking job handlers

type rankJobSubmitRequest struct {
	Groupby   string              `json:"groupby"`
	UseRaw    bool                `json:"use_raw"`
	Groups    []string            `json:"groups"`
	Reference string              `json:"reference"`
	NGenes    int                 `json:"n_genes"`
	RankbyAbs bool                `json:"rankby_abs"`
	Method    string              `json:"method"`
	LogReg    *rank.LogRegOptions `json:"logreg"`
}

func rankJobSubmitHandler(jm *JobManager, defaultNGenes int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if jm == nil {
			http.Error(w, "job manager not configured", http.StatusNotImplemented)
			return
		}

		ds := getDataset(r)
		if ds == nil {
			http.Error(w, "dataset not available", http.StatusInternalServerError)
			return
		}

		var req rankJobSubmitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
			return
		}

		// The obs column must exist on this dataset; the manager cannot
		// check that, so it stays here. Everything else is validated by
		// Submit.
		if req.Groupby != "" {
			if _, ok := ds.Obs[req.Groupby]; !ok {
				http.Error(w, "unknown obs column: "+req.Groupby, http.StatusBadRequest)
				return
			}
		}
		if req.NGenes == 0 {
			req.NGenes = defaultNGenes
		}

		params := rankstore.JobParams{
			DatasetID: ds.ID,
			Groupby:   req.Groupby,
			UseRaw:    req.UseRaw,
			Groups:    req.Groups,
			Reference: req.Reference,
			NGenes:    req.NGenes,
			RankbyAbs: req.RankbyAbs,
			Method:    req.Method,
		}
		if req.LogReg != nil {
			params.LogReg = *req.LogReg
		}

		job, err := jm.Submit(params)
		if err != nil {
			if errors.Is(err, ErrInvalidParams) {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			http.Error(w, "failed to submit job: "+err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"job_id": job.ID,
			"status": job.Status,
		})
	}
}

func rankJobListHandler(jm *JobManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if jm == nil {
			http.Error(w, "job manager not configured", http.StatusNotImplemented)
			return
		}

		datasetID := chi.URLParam(r, "dataset")
		jobs, err := jm.Store().ListJobsByDataset(datasetID)
		if err != nil {
			http.Error(w, "failed to list jobs: "+err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"jobs":  jobs,
			"total": len(jobs),
		})
	}
}

func rankJobStatusHandler(jm *JobManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if jm == nil {
			http.Error(w, "job manager not configured", http.StatusNotImplemented)
			return
		}

		jobID := chi.URLParam(r, "job_id")
		job := jm.GetForDataset(jobID, chi.URLParam(r, "dataset"))
		if job == nil {
			http.Error(w, "job not found", http.StatusNotFound)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"job_id":      job.ID,
			"status":      job.Status,
			"created_at":  job.CreatedAt,
			"started_at":  job.StartedAt,
			"finished_at": job.FinishedAt,
			"progress":    job.Progress,
			"error":       job.Error,
		})
	}
}

func rankJobResultHandler(jm *JobManager, cm *cache.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if jm == nil {
			http.Error(w, "job manager not configured", http.StatusNotImplemented)
			return
		}

		jobID := chi.URLParam(r, "job_id")
		datasetID := chi.URLParam(r, "dataset")
		job := jm.GetForDataset(jobID, datasetID)
		if job == nil {
			http.Error(w, "job not found", http.StatusNotFound)
			return
		}

		if job.Status != rankstore.JobStatusCompleted {
			http.Error(w, "job not completed (status: "+string(job.Status)+")", http.StatusBadRequest)
			return
		}

		// Parse pagination params
		group := strings.TrimSpace(r.URL.Query().Get("group"))
		offset := 0
		limit := 100
		if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
			if v, err := strconv.Atoi(offsetStr); err == nil && v >= 0 {
				offset = v
			}
		}
		if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
			if v, err := strconv.Atoi(limitStr); err == nil && v > 0 {
				limit = v
				if limit > 1000 {
					limit = 1000
				}
			}
		}

		key := cache.ResultKey(datasetID, map[string]interface{}{
			"job":    jobID,
			"group":  group,
			"offset": offset,
			"limit":  limit,
		})
		if cm != nil {
			if data, ok := cm.GetResult(key); ok {
				w.Header().Set("Content-Type", "application/json")
				w.Write(data)
				return
			}
		}

		// Query results from SQLite
		items, total, err := jm.Store().QueryResults(jobID, group, offset, limit)
		if err != nil {
			http.Error(w, "failed to query results: "+err.Error(), http.StatusInternalServerError)
			return
		}
		groups, err := jm.Store().ResultGroups(jobID)
		if err != nil {
			http.Error(w, "failed to query groups: "+err.Error(), http.StatusInternalServerError)
			return
		}

		data, err := json.Marshal(map[string]interface{}{
			"params":    job.Params,
			"has_stats": job.HasStats,
			"groups":    groups,
			"total":     total,
			"offset":    offset,
			"limit":     limit,
			"items":     items,
		})
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if cm != nil {
			cm.SetResult(key, data)
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	}
}

func rankJobCancelHandler(jm *JobManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if jm == nil {
			http.Error(w, "job manager not configured", http.StatusNotImplemented)
			return
		}

		jobID := chi.URLParam(r, "job_id")
		if jm.GetForDataset(jobID, chi.URLParam(r, "dataset")) == nil {
			http.Error(w, "job not found", http.StatusNotFound)
			return
		}

		jm.Cancel(jobID)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"job_id":    jobID,
			"cancelled": true,
		})
	}
}

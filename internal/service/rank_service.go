// Package service provides business logic for the gene ranking server.
package service

import (
	"context"
	"fmt"

	"github.com/montanaflynn/stats"

	"github.com/generank/server/internal/matrix"
	"github.com/generank/server/internal/rank"
	"github.com/generank/server/internal/rankstore"
)

// Dataset holds one loaded expression dataset. Matrix is the working
// layer; Raw is the optional unnormalized layer selected by use_raw.
type Dataset struct {
	ID       string
	Genes    []string
	RawGenes []string
	Matrix   matrix.Matrix
	Raw      matrix.Matrix
	Obs      map[string][]string
}

// Labels builds the categorical labels for one obs column.
func (d *Dataset) Labels(groupby string) (rank.Labels, error) {
	values, ok := d.Obs[groupby]
	if !ok {
		return rank.Labels{}, fmt.Errorf("obs column not found: %s", groupby)
	}
	return rank.NewLabels(values), nil
}

// Layer returns the matrix and gene names selected by useRaw.
func (d *Dataset) Layer(useRaw bool) (matrix.Matrix, []string, error) {
	if !useRaw {
		return d.Matrix, d.Genes, nil
	}
	if d.Raw == nil {
		return nil, nil, fmt.Errorf("raw layer not available for dataset: %s", d.ID)
	}
	genes := d.RawGenes
	if genes == nil {
		genes = d.Genes
	}
	return d.Raw, genes, nil
}

// RankService runs gene ranking jobs against registered datasets.
type RankService struct {
	registry interface {
		Get(datasetID string) *Dataset
	}
}

// NewRankService creates a new ranking service.
func NewRankService(registry interface {
	Get(datasetID string) *Dataset
}) *RankService {
	return &RankService{registry: registry}
}

// ExecuteRankJob runs the ranking for a job (called by JobManager worker).
func (s *RankService) ExecuteRankJob(ctx context.Context, store *rankstore.Store, jobID string) error {
	job, err := store.GetJob(jobID)
	if err != nil {
		return fmt.Errorf("failed to get job: %w", err)
	}
	if job == nil {
		return fmt.Errorf("job not found: %s", jobID)
	}

	ds := s.registry.Get(job.Params.DatasetID)
	if ds == nil {
		return fmt.Errorf("dataset not found: %s", job.Params.DatasetID)
	}

	// Phase 1: resolve labels and layer
	store.UpdateJobProgress(jobID, "loading_obs", 0, 100)

	labels, err := ds.Labels(job.Params.Groupby)
	if err != nil {
		return fmt.Errorf("failed to load obs groupby: %w", err)
	}
	m, genes, err := ds.Layer(job.Params.UseRaw)
	if err != nil {
		return err
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}

	// Phase 2: rank
	store.UpdateJobProgress(jobID, "scoring", 0, len(genes))

	cfg := rank.Config{
		Groupby:   job.Params.Groupby,
		UseRaw:    job.Params.UseRaw,
		Groups:    job.Params.Groups,
		Reference: job.Params.Reference,
		NGenes:    job.Params.NGenes,
		RankByAbs: job.Params.RankbyAbs,
		Method:    rank.Method(job.Params.Method),
		LogReg:    job.Params.LogReg,
	}
	result, err := rank.RankGenesGroups(m, genes, labels, cfg)
	if err != nil {
		return fmt.Errorf("ranking failed: %w", err)
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}

	// Phase 3: persist
	store.UpdateJobProgress(jobID, "saving_results", 0, len(result.Groups))

	if err := store.SetJobHasStats(jobID, result.HasStats); err != nil {
		return fmt.Errorf("failed to record has_stats: %w", err)
	}

	var items []*rankstore.GeneResult
	for _, grp := range result.Groups {
		for i, g := range grp.Genes {
			items = append(items, &rankstore.GeneResult{
				Group:   grp.Group,
				Rank:    i,
				Gene:    g.Name,
				Score:   g.Score,
				Log2FC:  g.LogFoldChange,
				Pval:    g.Pval,
				PvalAdj: g.PvalAdj,
			})
		}
	}
	if err := store.InsertResults(jobID, items); err != nil {
		return fmt.Errorf("failed to save results: %w", err)
	}

	return nil
}

// GeneSummary contains descriptive statistics for one gene across all
// observations.
type GeneSummary struct {
	Gene    string  `json:"gene"`
	N       int     `json:"n"`
	Mean    float64 `json:"mean"`
	Median  float64 `json:"median"`
	StdDev  float64 `json:"std_dev"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	PctExpr float64 `json:"pct_expressed"`
	Q1      float64 `json:"q1"`
	Q3      float64 `json:"q3"`
}

// SummarizeGene computes descriptive statistics for one gene.
func (s *RankService) SummarizeGene(datasetID, gene string, useRaw bool) (*GeneSummary, error) {
	ds := s.registry.Get(datasetID)
	if ds == nil {
		return nil, fmt.Errorf("dataset not found: %s", datasetID)
	}
	m, genes, err := ds.Layer(useRaw)
	if err != nil {
		return nil, err
	}

	gi := -1
	for i, g := range genes {
		if g == gene {
			gi = i
			break
		}
	}
	if gi < 0 {
		return nil, fmt.Errorf("gene not found: %s", gene)
	}

	nObs, nGenes := m.Dims()
	col := make([]float64, nObs)
	row := make([]float64, nGenes)
	nnz := 0
	for i := 0; i < nObs; i++ {
		row = m.Row(i, row)
		col[i] = row[gi]
		if col[i] != 0 {
			nnz++
		}
	}

	data := stats.Float64Data(col)
	mean, err := stats.Mean(data)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize gene: %w", err)
	}
	median, _ := stats.Median(data)
	sd, _ := stats.StandardDeviationSample(data)
	min, _ := stats.Min(data)
	max, _ := stats.Max(data)
	quartiles, _ := stats.Quartile(data)

	return &GeneSummary{
		Gene:    gene,
		N:       nObs,
		Mean:    mean,
		Median:  median,
		StdDev:  sd,
		Min:     min,
		Max:     max,
		PctExpr: float64(nnz) / float64(nObs),
		Q1:      quartiles.Q1,
		Q3:      quartiles.Q3,
	}, nil
}

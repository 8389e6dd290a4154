// Package rank scores genes by how strongly their expression differs
// between groups of observations, producing a ranked top-N gene table per
// group. It implements four interchangeable test methods: Welch's t-test,
// a variance-overestimated t-test, the Wilcoxon rank-sum test, and
// logistic-regression coefficient ranking.
package rank

import (
	"fmt"
	"math"

	"github.com/generank/server/internal/matrix"
)

// Method selects the scoring strategy.
type Method string

const (
	MethodTTest             Method = "t-test"
	MethodTTestOverestimVar Method = "t-test_overestim_var"
	MethodWilcoxon          Method = "wilcoxon"
	MethodLogReg            Method = "logreg"
)

// Sentinels for Config.Groups and Config.Reference.
const (
	AllGroups = "all"
	RefRest   = "rest"
)

// DefaultNGenes is the table length used when Config.NGenes is zero.
const DefaultNGenes = 100

// Config holds the settings for one ranking call.
type Config struct {
	// Groupby names the label source; recorded in Params only.
	Groupby string
	// UseRaw records whether the caller selected the raw matrix.
	UseRaw bool
	// Groups is the ordered set of group ids to rank, or the "all"
	// sentinel (also implied by an empty slice).
	Groups []string
	// Reference is the comparison baseline: "rest" (or empty) for the
	// complement of each group, or a concrete group id.
	Reference string
	// NGenes bounds the number of genes returned per group.
	NGenes int
	// RankByAbs ranks by absolute score; reported scores keep their sign.
	RankByAbs bool
	// Method selects the scoring strategy.
	Method Method
	// LogReg holds logreg-specific parameters; ignored by other methods.
	LogReg LogRegOptions
}

// Params is the provenance record attached to a Result.
type Params struct {
	Groupby   string `json:"groupby"`
	Reference string `json:"reference"`
	Method    Method `json:"method"`
	UseRaw    bool   `json:"use_raw"`
}

// GeneRecord is one ranked gene within a group column. LogFoldChange,
// Pval and PvalAdj are only meaningful when Result.HasStats is true.
type GeneRecord struct {
	Name          string
	Score         float64
	LogFoldChange float64
	Pval          float64
	PvalAdj       float64
}

// GroupRanking is the ordered gene table for one group.
type GroupRanking struct {
	Group string
	Genes []GeneRecord
}

// Result maps group ids to their ranked gene tables. Built once per call
// and immutable afterwards.
type Result struct {
	Groups   []GroupRanking
	HasStats bool
	Params   Params

	index map[string]int
}

// Group returns the ranking for a group id, or nil.
func (r *Result) Group(id string) *GroupRanking {
	if i, ok := r.index[id]; ok {
		return &r.Groups[i]
	}
	return nil
}

// GroupIDs returns the output group order.
func (r *Result) GroupIDs() []string {
	ids := make([]string, len(r.Groups))
	for i, g := range r.Groups {
		ids[i] = g.Group
	}
	return ids
}

// groupColumn is a scorer's full-length output for one group. The stats
// vectors are nil for methods that do not produce them.
type groupColumn struct {
	group    string
	scores   []float64
	logFC    []float64
	pvals    []float64
	pvalsAdj []float64
}

// scorer is the per-method strategy. Implementations produce one column
// per output group, in output order.
type scorer interface {
	hasStats() bool
	score(rc *runContext) ([]groupColumn, error)
}

// RankGenesGroups ranks genes for characterizing groups. The matrix holds
// observations in rows and genes in columns; geneNames must have one entry
// per column; labels must have one code per row.
func RankGenesGroups(m matrix.Matrix, geneNames []string, labels Labels, cfg Config) (*Result, error) {
	_, nGenes := m.Dims()
	if len(geneNames) != nGenes {
		return nil, fmt.Errorf("have %d gene names for %d matrix columns", len(geneNames), nGenes)
	}

	var sc scorer
	switch cfg.Method {
	case MethodTTest:
		sc = tTestScorer{}
	case MethodTTestOverestimVar:
		sc = tTestScorer{overestimVar: true}
	case MethodWilcoxon:
		sc = wilcoxonScorer{}
	case MethodLogReg:
		sc = logRegScorer{opts: cfg.LogReg}
	default:
		return nil, fmt.Errorf("%w: %q (must be one of %q, %q, %q, %q)",
			ErrUnsupportedMethod, cfg.Method,
			MethodTTest, MethodTTestOverestimVar, MethodWilcoxon, MethodLogReg)
	}

	rc, err := resolveGroups(m, labels, cfg)
	if err != nil {
		return nil, err
	}

	cols, err := sc.score(rc)
	if err != nil {
		return nil, err
	}

	nTop := cfg.NGenes
	if nTop <= 0 {
		nTop = DefaultNGenes
	}
	if nTop > nGenes {
		nTop = nGenes
	}

	return assemble(cols, geneNames, nTop, cfg.RankByAbs, sc.hasStats(), Params{
		Groupby:   cfg.Groupby,
		Reference: referenceParam(cfg),
		Method:    cfg.Method,
		UseRaw:    cfg.UseRaw,
	}), nil
}

// assemble reduces each full-gene column to its top genes and packs the
// per-group tables into a Result.
func assemble(cols []groupColumn, geneNames []string, nTop int, rankByAbs, hasStats bool, params Params) *Result {
	res := &Result{
		Groups:   make([]GroupRanking, len(cols)),
		HasStats: hasStats,
		Params:   params,
		index:    make(map[string]int, len(cols)),
	}

	for ci, col := range cols {
		crit := col.scores
		if rankByAbs {
			crit = make([]float64, len(col.scores))
			for i, s := range col.scores {
				crit[i] = math.Abs(s)
			}
		}

		top := topK(crit, nTop)
		genes := make([]GeneRecord, len(top))
		for i, g := range top {
			rec := GeneRecord{Name: geneNames[g], Score: col.scores[g]}
			if hasStats {
				rec.LogFoldChange = col.logFC[g]
				rec.Pval = col.pvals[g]
				rec.PvalAdj = col.pvalsAdj[g]
			}
			genes[i] = rec
		}

		res.Groups[ci] = GroupRanking{Group: col.group, Genes: genes}
		res.index[col.group] = ci
	}
	return res
}

func referenceParam(cfg Config) string {
	if cfg.Reference == "" {
		return RefRest
	}
	return cfg.Reference
}

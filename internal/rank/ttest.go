package rank

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// foldChangeEps substitutes zero reference means in fold-change ratios.
const foldChangeEps = 1e-9

// tTestScorer implements the t-test and t-test_overestim_var methods.
//
// With overestimVar set, the comparison sample size is deliberately taken
// to be the tested group's size. This overestimates the variance term of
// the comparison set for small groups and makes the statistic more
// conservative; it is a documented behavior of the method, not a bug.
type tTestScorer struct {
	overestimVar bool
}

func (tTestScorer) hasStats() bool { return true }

func (s tTestScorer) score(rc *runContext) ([]groupColumn, error) {
	nGenes := rc.nGenes

	// Per-group moments over all working groups.
	means := make([][]float64, len(rc.groups))
	vars := make([][]float64, len(rc.groups))
	for i, mask := range rc.masks {
		means[i], vars[i] = rc.m.MaskedMoments(mask)
	}

	cols := make([]groupColumn, 0, len(rc.output))
	for i, group := range rc.groups {
		if i == rc.iref {
			continue
		}
		maskRest := rc.restMask(i)
		meanRest, varRest := rc.m.MaskedMoments(maskRest)

		nGroup := rc.ns[i]
		nRest := countMask(maskRest)
		// An empty comparison set has no usable moments; its column is
		// all zero scores with p = 1 regardless of method.
		emptyRest := nRest == 0
		if s.overestimVar {
			nRest = nGroup
		}

		col := groupColumn{
			group:    group,
			scores:   make([]float64, nGenes),
			logFC:    make([]float64, nGenes),
			pvals:    make([]float64, nGenes),
			pvalsAdj: make([]float64, nGenes),
		}
		for g := 0; g < nGenes; g++ {
			score, pval := 0.0, 1.0
			if !emptyRest {
				score, pval = welchT(means[i][g], vars[i][g], nGroup, meanRest[g], varRest[g], nRest)
			}
			col.scores[g] = score
			col.pvals[g] = pval
			col.pvalsAdj[g] = pval * float64(nGenes)
			col.logFC[g] = log2FoldChange(means[i][g], meanRest[g])
		}
		cols = append(cols, col)
	}
	return cols, nil
}

// welchT returns Welch's t statistic and its two-tailed p-value for two
// samples summarized by mean, variance and size. A zero or undefined
// standard-error denominator yields a zero score, and degenerate degrees
// of freedom yield p = 1; neither case produces NaN or an error.
func welchT(meanG, varG float64, nG int, meanR, varR float64, nR int) (score, pval float64) {
	seG := varG / float64(nG)
	seR := varR / float64(nR)

	// den is NaN when either sample is empty (0/0 standard error).
	if den := math.Sqrt(seG + seR); den != 0 && !math.IsNaN(den) {
		score = (meanG - meanR) / den
	}

	// Welch-Satterthwaite approximation.
	dof := 0.0
	if dofDen := seG*seG/float64(nG-1) + seR*seR/float64(nR-1); dofDen != 0 && !math.IsNaN(dofDen) {
		dof = (seG + seR) * (seG + seR) / dofDen
	}
	if dof <= 0 || math.IsNaN(dof) || math.IsInf(dof, 0) {
		return score, 1
	}

	t := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: dof}
	return score, 2 * t.Survival(math.Abs(score))
}

// log2FoldChange reports the group/reference mean expression ratio as
// log2(|(meanG+eps)/meanR|), substituting eps for a zero reference mean.
func log2FoldChange(meanG, meanR float64) float64 {
	if meanR == 0 {
		meanR = foldChangeEps
	}
	return math.Log2(math.Abs((meanG + foldChangeEps) / meanR))
}

package rank

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat/distuv"
)

// wilcoxonScorer implements the wilcoxon method: an independent two-sample
// rank-sum test per gene between the group and its comparison set, using
// midranks for ties and the large-sample normal approximation for the
// z score and two-tailed p-value.
type wilcoxonScorer struct{}

func (wilcoxonScorer) hasStats() bool { return true }

func (wilcoxonScorer) score(rc *runContext) ([]groupColumn, error) {
	nGenes := rc.nGenes

	cols := make([]groupColumn, 0, len(rc.output))
	for i, group := range rc.groups {
		if i == rc.iref {
			continue
		}
		maskRest := rc.restMask(i)
		meanGroup, _ := rc.m.MaskedMoments(rc.masks[i])
		meanRest, _ := rc.m.MaskedMoments(maskRest)

		// Densify the two submatrices for this group only; both are
		// released when the iteration ends.
		xg := rc.m.MaskedDense(rc.masks[i])
		xr := rc.m.MaskedDense(maskRest)
		ng, _ := xg.Dims()
		nr, _ := xr.Dims()

		col := groupColumn{
			group:    group,
			scores:   make([]float64, nGenes),
			logFC:    make([]float64, nGenes),
			pvals:    make([]float64, nGenes),
			pvalsAdj: make([]float64, nGenes),
		}

		colG := make([]float64, ng)
		colR := make([]float64, nr)
		entries := make([]rankEntry, ng+nr)
		for g := 0; g < nGenes; g++ {
			z := rankSumZ(xg.Col(g, colG), xr.Col(g, colR), entries)
			if math.IsNaN(z) {
				z = 0
			}
			col.scores[g] = z
			pval := 2 * distuv.UnitNormal.Survival(math.Abs(z))
			col.pvals[g] = pval
			col.pvalsAdj[g] = pval * float64(nGenes)
			col.logFC[g] = log2FoldChange(meanGroup[g], meanRest[g])
		}
		cols = append(cols, col)
	}
	return cols, nil
}

type rankEntry struct {
	val   float64
	first bool // belongs to the first sample
}

// rankSumZ computes the Wilcoxon rank-sum z statistic between samples x
// and y. Tied values receive their midrank. buf must have length
// len(x)+len(y) and is reused across calls. Returns NaN when either sample
// is empty.
func rankSumZ(x, y []float64, buf []rankEntry) float64 {
	n1, n2 := len(x), len(y)
	if n1 == 0 || n2 == 0 {
		return math.NaN()
	}
	n := n1 + n2

	entries := buf[:n]
	for i, v := range x {
		entries[i] = rankEntry{val: v, first: true}
	}
	for i, v := range y {
		entries[n1+i] = rankEntry{val: v}
	}
	sort.Slice(entries, func(a, b int) bool { return entries[a].val < entries[b].val })

	// Sum the midranks of the first sample.
	s := 0.0
	i := 0
	for i < n {
		j := i
		for j < n && entries[j].val == entries[i].val {
			j++
		}
		midrank := float64(i+j+1) / 2
		for k := i; k < j; k++ {
			if entries[k].first {
				s += midrank
			}
		}
		i = j
	}

	expected := float64(n1) * float64(n+1) / 2
	sd := math.Sqrt(float64(n1) * float64(n2) * float64(n+1) / 12)
	if sd == 0 {
		return math.NaN()
	}
	return (s - expected) / sd
}

package rank

import (
	"math"
	"sort"
)

// topK returns the indices of the k largest values in crit, ordered by
// descending value. The selection runs in expected linear time via
// quickselect; only the selected k are fully ordered. Equal values are
// broken by ascending index so output is deterministic, and NaN sorts
// below every number.
func topK(crit []float64, k int) []int {
	n := len(crit)
	if k > n {
		k = n
	}
	if k <= 0 {
		return nil
	}

	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}

	better := func(a, b int) bool {
		va, vb := crit[a], crit[b]
		if math.IsNaN(va) {
			va = math.Inf(-1)
		}
		if math.IsNaN(vb) {
			vb = math.Inf(-1)
		}
		if va != vb {
			return va > vb
		}
		return a < b
	}

	if k < n {
		selectTop(idx, k, better)
	}
	top := idx[:k]
	sort.Slice(top, func(a, b int) bool { return better(top[a], top[b]) })
	return top
}

// selectTop partitions idx so that its first k elements are the k best
// under the better ordering, in unspecified order.
func selectTop(idx []int, k int, better func(a, b int) bool) {
	lo, hi := 0, len(idx)-1
	for lo < hi {
		p := partitionTop(idx, lo, hi, better)
		switch {
		case p == k:
			return
		case p < k:
			lo = p + 1
		default:
			hi = p - 1
		}
	}
}

// partitionTop partitions idx[lo:hi+1] around a median-of-three pivot,
// placing better elements first, and returns the pivot's final position.
func partitionTop(idx []int, lo, hi int, better func(a, b int) bool) int {
	mid := lo + (hi-lo)/2
	if better(idx[mid], idx[lo]) {
		idx[lo], idx[mid] = idx[mid], idx[lo]
	}
	if better(idx[hi], idx[lo]) {
		idx[lo], idx[hi] = idx[hi], idx[lo]
	}
	if better(idx[mid], idx[hi]) {
		idx[mid], idx[hi] = idx[hi], idx[mid]
	}
	// idx[hi] now holds the median of the three.
	pivot := idx[hi]
	i := lo
	for j := lo; j < hi; j++ {
		if better(idx[j], pivot) {
			idx[i], idx[j] = idx[j], idx[i]
			i++
		}
	}
	idx[i], idx[hi] = idx[hi], idx[i]
	return i
}

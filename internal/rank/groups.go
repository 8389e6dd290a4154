package rank

import (
	"fmt"

	"github.com/generank/server/internal/matrix"
)

// runContext carries the resolved group structure for one ranking call.
// Masks and counts are computed fresh per call and never shared.
type runContext struct {
	m      matrix.Matrix
	nGenes int

	groups []string // working order, including an appended concrete reference
	masks  [][]bool // one mask per working group, len = observations
	ns     []int    // observations per working group
	iref   int      // index of the reference group in groups, -1 for "rest"
	output []string // final output column order
}

// resolveGroups expands the "all" sentinel, validates the reference,
// builds membership masks, and determines the output column set.
//
// A concrete reference that is not among the requested groups is appended
// to the working set (it is needed as the comparison baseline) but removed
// from the output columns. For logistic regression the first working group
// acts as the reference, and with exactly two groups only the second
// group's column is emitted.
func resolveGroups(m matrix.Matrix, labels Labels, cfg Config) (*runContext, error) {
	nObs, nGenes := m.Dims()
	if labels.Len() != nObs {
		return nil, fmt.Errorf("labels cover %d observations, matrix has %d", labels.Len(), nObs)
	}

	working := cfg.Groups
	if len(working) == 0 || (len(working) == 1 && working[0] == AllGroups) {
		working = append([]string(nil), labels.Categories...)
	} else {
		working = append([]string(nil), working...)
		for _, g := range working {
			if labels.categoryIndex(g) < 0 {
				return nil, fmt.Errorf("unknown group %q (categories: %v)", g, labels.Categories)
			}
		}
	}

	ref := cfg.Reference
	restRef := ref == "" || ref == RefRest
	if !restRef {
		if labels.categoryIndex(ref) < 0 {
			return nil, fmt.Errorf("%w: %q must be one of %v", ErrInvalidReference, ref, labels.Categories)
		}
		if !containsString(working, ref) {
			working = append(working, ref)
		}
	}

	masks := make([][]bool, len(working))
	ns := make([]int, len(working))
	for i, g := range working {
		code := labels.categoryIndex(g)
		mask := make([]bool, nObs)
		n := 0
		for obs, c := range labels.Codes {
			if c == code {
				mask[obs] = true
				n++
			}
		}
		masks[i] = mask
		ns[i] = n
	}

	iref := -1
	if !restRef {
		for i, g := range working {
			if g == ref {
				iref = i
				break
			}
		}
	}

	var output []string
	switch {
	case cfg.Method == MethodLogReg && len(working) == 2:
		// Binary fit emits one column for the non-reference (second) group.
		output = []string{working[1]}
	case cfg.Method != MethodLogReg && iref >= 0:
		for _, g := range working {
			if g != ref {
				output = append(output, g)
			}
		}
	default:
		output = working
	}

	return &runContext{
		m:      m,
		nGenes: nGenes,
		groups: working,
		masks:  masks,
		ns:     ns,
		iref:   iref,
		output: output,
	}, nil
}

// restMask returns the comparison mask for working group i: the complement
// of the group when the reference is "rest", otherwise the reference mask.
func (rc *runContext) restMask(i int) []bool {
	if rc.iref >= 0 {
		return rc.masks[rc.iref]
	}
	mask := rc.masks[i]
	rest := make([]bool, len(mask))
	for obs, in := range mask {
		rest[obs] = !in
	}
	return rest
}

func containsString(s []string, v string) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

func countMask(mask []bool) int {
	n := 0
	for _, m := range mask {
		if m {
			n++
		}
	}
	return n
}

package rank

import "sort"

// Labels assigns each observation a categorical value drawn from a fixed,
// ordered set of category names. Codes index into Categories.
type Labels struct {
	Categories []string
	Codes      []int
}

// NewLabels builds labels from raw per-observation values. Categories are
// the sorted unique values.
func NewLabels(values []string) Labels {
	seen := make(map[string]bool, len(values))
	var cats []string
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			cats = append(cats, v)
		}
	}
	sort.Strings(cats)

	index := make(map[string]int, len(cats))
	for i, c := range cats {
		index[c] = i
	}

	codes := make([]int, len(values))
	for i, v := range values {
		codes[i] = index[v]
	}
	return Labels{Categories: cats, Codes: codes}
}

// Len returns the number of observations.
func (l Labels) Len() int { return len(l.Codes) }

// categoryIndex returns the position of a category name, or -1.
func (l Labels) categoryIndex(name string) int {
	for i, c := range l.Categories {
		if c == name {
			return i
		}
	}
	return -1
}

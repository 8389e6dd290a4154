package rank

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/optimize"

	"github.com/generank/server/internal/matrix"
)

// LogRegOptions are the strategy-specific parameters for the logreg
// method.
type LogRegOptions struct {
	// Penalty is "l2" (default) or "none".
	Penalty string `json:"penalty,omitempty"`
	// C is the inverse regularization strength; default 1.0.
	C float64 `json:"c,omitempty"`
	// MaxIter caps the optimizer iterations; default 100.
	MaxIter int `json:"max_iter,omitempty"`
	// Tol is the gradient convergence threshold; default 1e-6.
	Tol float64 `json:"tol,omitempty"`
}

func (o LogRegOptions) withDefaults() (LogRegOptions, error) {
	if o.Penalty == "" {
		o.Penalty = "l2"
	}
	if o.Penalty != "l2" && o.Penalty != "none" {
		return o, fmt.Errorf("unsupported logreg penalty %q (use \"l2\" or \"none\")", o.Penalty)
	}
	if o.C <= 0 {
		o.C = 1.0
	}
	if o.MaxIter <= 0 {
		o.MaxIter = 100
	}
	if o.Tol <= 0 {
		o.Tol = 1e-6
	}
	return o, nil
}

// logRegScorer ranks genes by their fitted logistic regression
// coefficients. Unlike the pairwise methods it fits group membership over
// the union of all selected groups: a single binary model when exactly two
// groups are selected (one shared coefficient vector, one output column),
// one-vs-rest models otherwise (one coefficient vector per group). It
// produces no fold-change or p-values.
type logRegScorer struct {
	opts LogRegOptions
}

func (logRegScorer) hasStats() bool { return false }

func (s logRegScorer) score(rc *runContext) ([]groupColumn, error) {
	if len(rc.groups) < 2 {
		return nil, fmt.Errorf("%w: %d group(s) selected", ErrSingleGroup, len(rc.groups))
	}
	opts, err := s.opts.withDefaults()
	if err != nil {
		return nil, err
	}

	// Restrict to observations belonging to any selected group.
	nObs := len(rc.masks[0])
	var rows []int
	var member []int // working-group position per kept row
	for obs := 0; obs < nObs; obs++ {
		for gi, mask := range rc.masks {
			if mask[obs] {
				rows = append(rows, obs)
				member = append(member, gi)
				break
			}
		}
	}

	data := make([]float64, len(rows)*rc.nGenes)
	for r, obs := range rows {
		rc.m.Row(obs, data[r*rc.nGenes:(r+1)*rc.nGenes])
	}
	x := matrix.NewDense(len(rows), rc.nGenes, data)

	if len(rc.groups) == 2 {
		// Binary fit: the second group is the positive class and names
		// the single output column.
		y := make([]float64, len(rows))
		for r, gi := range member {
			if gi == 1 {
				y[r] = 1
			} else {
				y[r] = -1
			}
		}
		coef, err := fitLogistic(x, y, opts)
		if err != nil {
			return nil, err
		}
		return []groupColumn{{group: rc.output[0], scores: coef}}, nil
	}

	// One-vs-rest fit per group.
	cols := make([]groupColumn, 0, len(rc.groups))
	y := make([]float64, len(rows))
	for gi, group := range rc.groups {
		for r, m := range member {
			if m == gi {
				y[r] = 1
			} else {
				y[r] = -1
			}
		}
		coef, err := fitLogistic(x, y, opts)
		if err != nil {
			return nil, fmt.Errorf("fitting group %q: %w", group, err)
		}
		cols = append(cols, groupColumn{group: group, scores: coef})
	}
	return cols, nil
}

// fitLogistic fits a binary logistic regression with intercept by L-BFGS,
// minimizing the log-loss plus an optional L2 penalty of 1/(2C)*|w|^2 on
// the gene coefficients. Targets in y must be +1/-1. The returned slice
// holds the gene coefficients; the intercept is dropped.
func fitLogistic(x *matrix.Dense, y []float64, opts LogRegOptions) ([]float64, error) {
	nRows, nGenes := x.Dims()
	dim := nGenes + 1 // intercept last

	lambda := 0.0
	if opts.Penalty == "l2" {
		lambda = 1 / opts.C
	}

	row := make([]float64, nGenes)
	problem := optimize.Problem{
		Func: func(w []float64) float64 {
			loss := 0.0
			for i := 0; i < nRows; i++ {
				z := w[nGenes] // intercept
				for j, v := range x.Row(i, row) {
					z += w[j] * v
				}
				loss += logLoss(y[i] * z)
			}
			for j := 0; j < nGenes; j++ {
				loss += 0.5 * lambda * w[j] * w[j]
			}
			return loss
		},
		Grad: func(grad, w []float64) {
			for j := range grad {
				grad[j] = 0
			}
			for i := 0; i < nRows; i++ {
				z := w[nGenes]
				r := x.Row(i, row)
				for j, v := range r {
					z += w[j] * v
				}
				// d/dz log(1+exp(-y*z)) = -y * sigmoid(-y*z)
				g := -y[i] / (1 + math.Exp(y[i]*z))
				for j, v := range r {
					grad[j] += g * v
				}
				grad[nGenes] += g
			}
			for j := 0; j < nGenes; j++ {
				grad[j] += lambda * w[j]
			}
		},
	}

	settings := &optimize.Settings{
		GradientThreshold: opts.Tol,
		MajorIterations:   opts.MaxIter,
	}
	result, err := optimize.Minimize(problem, make([]float64, dim), settings, &optimize.LBFGS{})
	if err != nil {
		return nil, fmt.Errorf("logistic regression did not converge: %w", err)
	}

	coef := make([]float64, nGenes)
	copy(coef, result.X[:nGenes])
	return coef, nil
}

// logLoss computes log(1+exp(-m)) without overflow for large |m|.
func logLoss(m float64) float64 {
	if m > 0 {
		return math.Log1p(math.Exp(-m))
	}
	return -m + math.Log1p(math.Exp(m))
}

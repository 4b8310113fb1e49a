package mml

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/optimize"

	"github.com/psychometry/irtreport/internal/dataset"
	apperrors "github.com/psychometry/irtreport/internal/errors"
	"github.com/psychometry/irtreport/internal/irt"
)

const probFloor = 1e-10

// Estimator fits the graded-response model by marginal maximum
// likelihood: EM over a fixed quadrature grid under a standard normal
// latent-trait prior. The E-step accumulates expected category counts
// per node; the M-step maximizes each item's expected complete-data
// log-likelihood over an unconstrained reparameterization, so threshold
// ordering holds by construction. Start values come from observed
// cumulative proportions, making the whole run deterministic.
type Estimator struct {
	MaxIter    int
	Tol        float64
	QuadPoints int
	QuadLo     float64
	QuadHi     float64

	// Progress, when set, observes each EM cycle.
	Progress func(iteration int, logLik, maxChange float64)
}

// New returns an estimator with the default budget: 500 EM cycles,
// 1e-4 parameter tolerance, 61 nodes on [-6, 6].
func New() *Estimator {
	return &Estimator{
		MaxIter:    500,
		Tol:        1e-4,
		QuadPoints: 61,
		QuadLo:     -6,
		QuadHi:     6,
	}
}

// Fit implements irt.Estimator.
func (e *Estimator) Fit(ctx context.Context, matrix *dataset.ResponseMatrix, opts irt.Options) (*irt.Model, error) {
	if opts.Dimensions != 1 {
		return nil, apperrors.NewConfigurationError(
			fmt.Sprintf("mml estimator supports 1 latent dimension, got %d", opts.Dimensions), nil)
	}
	if opts.ItemType != irt.ItemTypeGraded {
		return nil, apperrors.NewConfigurationError(
			fmt.Sprintf("mml estimator supports item type %q, got %q", irt.ItemTypeGraded, opts.ItemType), nil)
	}
	if err := dataset.ScreenForEstimation(matrix); err != nil {
		return nil, err
	}

	nItems := matrix.NItems()
	nCats := matrix.Categories()
	nRows := matrix.NRows()

	rows := make([][]int, nRows)
	for i := 0; i < nRows; i++ {
		rows[i] = matrix.Row(i)
	}

	quad := irt.NewQuadrature(e.QuadPoints, e.QuadLo, e.QuadHi)
	nQuad := len(quad.Nodes)

	slopes, thresholds := startValues(matrix)

	var (
		logLik    float64
		lastDelta = math.Inf(1)
		converged bool
		iter      int
	)

	// probs[i][q][k-1] = P(X_i = k | theta_q) under current parameters.
	probs := make([][][]float64, nItems)
	// expected[i][q][k-1] = expected count of category k at node q.
	expected := make([][][]float64, nItems)
	for i := 0; i < nItems; i++ {
		probs[i] = make([][]float64, nQuad)
		expected[i] = make([][]float64, nQuad)
		for q := 0; q < nQuad; q++ {
			probs[i][q] = make([]float64, nCats)
			expected[i][q] = make([]float64, nCats)
		}
	}

	posterior := make([]float64, nQuad)

	for iter = 1; iter <= e.MaxIter; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, apperrors.NewConvergenceTimeout(
				"estimation cancelled before convergence", iter-1, err)
		}

		// E-step
		for i := 0; i < nItems; i++ {
			for q := 0; q < nQuad; q++ {
				categoryProbs(slopes[i], thresholds[i], quad.Nodes[q], probs[i][q])
				for k := range expected[i][q] {
					expected[i][q][k] = 0
				}
			}
		}

		logLik = 0
		for _, row := range rows {
			total := 0.0
			for q := 0; q < nQuad; q++ {
				like := quad.Weights[q]
				for i, x := range row {
					if x == dataset.Missing {
						continue
					}
					like *= probs[i][q][x-1]
				}
				posterior[q] = like
				total += like
			}
			if total <= 0 {
				total = probFloor
			}
			logLik += math.Log(total)
			for q := 0; q < nQuad; q++ {
				w := posterior[q] / total
				for i, x := range row {
					if x == dataset.Missing {
						continue
					}
					expected[i][q][x-1] += w
				}
			}
		}

		// M-step
		maxChange := 0.0
		for i := 0; i < nItems; i++ {
			a, b := maximizeItem(slopes[i], thresholds[i], quad.Nodes, expected[i])
			maxChange = math.Max(maxChange, math.Abs(a-slopes[i]))
			for k := range b {
				maxChange = math.Max(maxChange, math.Abs(b[k]-thresholds[i][k]))
			}
			slopes[i] = a
			thresholds[i] = b
		}

		lastDelta = maxChange
		if e.Progress != nil {
			e.Progress(iter, logLik, maxChange)
		}
		if maxChange < e.Tol {
			converged = true
			break
		}
	}

	if !converged {
		return nil, apperrors.NewConvergenceError(
			fmt.Sprintf("EM did not converge within %d cycles", e.MaxIter),
			e.MaxIter, lastDelta)
	}

	items := make([]irt.ItemParams, nItems)
	names := matrix.ItemNames()
	for i := 0; i < nItems; i++ {
		items[i] = irt.ItemParams{
			Name:       names[i],
			Slope:      slopes[i],
			Thresholds: append([]float64(nil), thresholds[i]...),
		}
	}

	model := &irt.Model{
		Items:      items,
		Categories: nCats,
		Nodes:      quad.Nodes,
		Weights:    quad.Weights,
		Converged:  true,
		Iterations: iter,
		LogLik:     logLik,
		NObs:       nRows,
	}

	if opts.ComputeSE {
		if err := ctx.Err(); err != nil {
			return nil, apperrors.NewConvergenceTimeout(
				"estimation cancelled before standard errors", iter, err)
		}
		attachStandardErrors(model, rows)
	}

	return model, nil
}

// startValues seeds slope 1.0 per item and thresholds at the logits of
// the observed cumulative proportions, nudged apart if ties collapse
// them.
func startValues(matrix *dataset.ResponseMatrix) (slopes []float64, thresholds [][]float64) {
	nItems := matrix.NItems()
	nCats := matrix.Categories()
	counts := matrix.ObservedCategoryCounts()

	slopes = make([]float64, nItems)
	thresholds = make([][]float64, nItems)
	for i := 0; i < nItems; i++ {
		slopes[i] = 1.0
		total := 0
		for _, c := range counts[i] {
			total += c
		}
		b := make([]float64, nCats-1)
		cum := 0
		for k := 0; k < nCats-1; k++ {
			cum += counts[i][k]
			// proportion responding above boundary k
			p := float64(total-cum) / float64(total)
			p = math.Min(math.Max(p, 1e-3), 1-1e-3)
			b[k] = -math.Log(p / (1 - p))
		}
		for k := 1; k < len(b); k++ {
			if b[k] <= b[k-1] {
				b[k] = b[k-1] + 1e-3
			}
		}
		thresholds[i] = b
	}
	return slopes, thresholds
}

// categoryProbs fills dst with P(X = k | theta) for one item.
func categoryProbs(slope float64, thresholds []float64, theta float64, dst []float64) {
	upper := 1.0
	for k := 0; k < len(dst); k++ {
		lower := 0.0
		if k < len(thresholds) {
			lower = sigmoid(slope * (theta - thresholds[k]))
		}
		p := upper - lower
		if p < probFloor {
			p = probFloor
		}
		dst[k] = p
		upper = lower
	}
}

// maximizeItem maximizes one item's expected complete-data
// log-likelihood. Parameters are optimized as (log slope, first
// threshold, log threshold gaps), which keeps the slope positive and
// the thresholds ordered without constraints.
func maximizeItem(slope float64, thresholds []float64, nodes []float64, expected [][]float64) (float64, []float64) {
	nCats := len(expected[0])
	z0 := pack(slope, thresholds)

	buf := make([]float64, nCats)
	objective := func(z []float64) float64 {
		a, b := unpack(z, nCats)
		if math.IsInf(a, 0) || math.IsNaN(a) {
			return math.Inf(1)
		}
		neg := 0.0
		for q, theta := range nodes {
			categoryProbs(a, b, theta, buf)
			for k := 0; k < nCats; k++ {
				r := expected[q][k]
				if r > 0 {
					neg -= r * math.Log(buf[k])
				}
			}
		}
		return neg
	}

	problem := optimize.Problem{Func: objective}
	result, err := optimize.Minimize(problem, z0, nil, &optimize.NelderMead{})
	if err != nil || result == nil || objective(result.X) > objective(z0) {
		return slope, thresholds
	}
	return unpack(result.X, nCats)
}

func pack(slope float64, thresholds []float64) []float64 {
	z := make([]float64, len(thresholds)+1)
	z[0] = math.Log(slope)
	z[1] = thresholds[0]
	for k := 1; k < len(thresholds); k++ {
		gap := thresholds[k] - thresholds[k-1]
		if gap < 1e-6 {
			gap = 1e-6
		}
		z[k+1] = math.Log(gap)
	}
	return z
}

func unpack(z []float64, nCats int) (float64, []float64) {
	a := math.Exp(z[0])
	b := make([]float64, nCats-1)
	b[0] = z[1]
	for k := 1; k < nCats-1; k++ {
		b[k] = b[k-1] + math.Exp(z[k+1])
	}
	return a, b
}

func sigmoid(x float64) float64 { return 1 / (1 + math.Exp(-x)) }

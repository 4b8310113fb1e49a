package irt

import "gonum.org/v1/gonum/stat/distuv"

// Quadrature is a fixed grid of latent-trait nodes with normalized
// standard-normal prior weights. The estimator fits on it and the
// fitted model carries it forward for scoring and fit assessment.
type Quadrature struct {
	Nodes   []float64
	Weights []float64
}

// NewQuadrature builds n equally spaced nodes on [lo, hi] weighted by
// the standard normal density, normalized to sum to 1.
func NewQuadrature(n int, lo, hi float64) Quadrature {
	if n < 2 {
		n = 2
	}
	prior := distuv.Normal{Mu: 0, Sigma: 1}
	nodes := make([]float64, n)
	weights := make([]float64, n)
	step := (hi - lo) / float64(n-1)
	total := 0.0
	for q := 0; q < n; q++ {
		nodes[q] = lo + float64(q)*step
		weights[q] = prior.Prob(nodes[q])
		total += weights[q]
	}
	for q := range weights {
		weights[q] /= total
	}
	return Quadrature{Nodes: nodes, Weights: weights}
}

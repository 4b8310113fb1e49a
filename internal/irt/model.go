package irt

import "math"

// ItemParams holds one item's graded-response parameters: a single
// discrimination slope and (categories-1) ordered threshold locations,
// plus asymptotic standard errors when the fit computed them.
type ItemParams struct {
	Name         string    `json:"name"`
	Slope        float64   `json:"slope"`
	Thresholds   []float64 `json:"thresholds"`
	SlopeSE      float64   `json:"slope_se,omitempty"`
	ThresholdSEs []float64 `json:"threshold_ses,omitempty"`
}

// Model is the immutable result of fitting a unidimensional
// graded-response model. It carries the quadrature grid and normal
// prior weights used at fit time so every downstream statistic is keyed
// to the same latent-trait discretization.
type Model struct {
	Items      []ItemParams `json:"items"`
	Categories int          `json:"categories"`
	Nodes      []float64    `json:"nodes"`
	Weights    []float64    `json:"weights"`
	Converged  bool         `json:"converged"`
	Iterations int          `json:"iterations"`
	LogLik     float64      `json:"log_likelihood"`
	NObs       int          `json:"n_obs"`
}

// NItems returns the number of items in the model.
func (m *Model) NItems() int { return len(m.Items) }

// CumProb returns P(X >= k+1 | theta) for boundary k in 1..m-1, the
// graded-response cumulative response function. Boundaries 0 and m are
// the constants 1 and 0.
func (m *Model) CumProb(item, k int, theta float64) float64 {
	if k <= 0 {
		return 1
	}
	if k >= m.Categories {
		return 0
	}
	p := m.Items[item]
	return sigmoid(p.Slope * (theta - p.Thresholds[k-1]))
}

// CategoryProbs returns P(X = k | theta) for categories 1..m as a slice
// indexed k-1. The probabilities sum to 1 for any theta.
func (m *Model) CategoryProbs(item int, theta float64) []float64 {
	probs := make([]float64, m.Categories)
	upper := 1.0
	for k := 1; k <= m.Categories; k++ {
		lower := m.CumProb(item, k, theta)
		probs[k-1] = upper - lower
		upper = lower
	}
	return probs
}

// ItemInformation returns the Fisher information one item contributes
// at theta under the graded-response model.
func (m *Model) ItemInformation(item int, theta float64) float64 {
	p := m.Items[item]
	info := 0.0
	prevCum := 1.0
	prevDeriv := 0.0 // p*(1-p*) vanishes at the constant boundaries
	for k := 1; k <= m.Categories; k++ {
		cum := m.CumProb(item, k, theta)
		deriv := cum * (1 - cum)
		prob := prevCum - cum
		if prob > 1e-12 {
			d := prevDeriv - deriv
			info += d * d / prob
		}
		prevCum = cum
		prevDeriv = deriv
	}
	return p.Slope * p.Slope * info
}

// TestInformation returns the scale information at theta: the sum of
// item informations.
func (m *Model) TestInformation(theta float64) float64 {
	total := 0.0
	for i := range m.Items {
		total += m.ItemInformation(i, theta)
	}
	return total
}

// ExpectedItemScore returns E[X | theta] for one item on the original
// 1..m category metric.
func (m *Model) ExpectedItemScore(item int, theta float64) float64 {
	probs := m.CategoryProbs(item, theta)
	e := 0.0
	for k, p := range probs {
		e += float64(k+1) * p
	}
	return e
}

// ExpectedSumScore returns the model-implied expected summed score at
// theta, bounded by [NItems, NItems*Categories].
func (m *Model) ExpectedSumScore(theta float64) float64 {
	total := 0.0
	for i := range m.Items {
		total += m.ExpectedItemScore(i, theta)
	}
	return total
}

// MinSumScore returns the lowest possible summed score.
func (m *Model) MinSumScore() float64 { return float64(m.NItems()) }

// MaxSumScore returns the highest possible summed score.
func (m *Model) MaxSumScore() float64 { return float64(m.NItems() * m.Categories) }

func sigmoid(x float64) float64 { return 1 / (1 + math.Exp(-x)) }

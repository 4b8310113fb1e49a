package scoring

import "github.com/psychometry/irtreport/internal/irt"

// ScaleTransform maps a theta value to the model-implied expected
// summed score on the original item-sum metric. The curve is evaluated
// once on a dense grid; At interpolates linearly and clamps outside the
// grid, so the mapping is monotone non-decreasing and bounded by the
// scale's minimum and maximum possible sums.
type ScaleTransform struct {
	thetas []float64
	scores []float64
}

// NewScaleTransform evaluates the scale characteristic curve for the
// model on n grid points over [lo, hi].
func NewScaleTransform(model *irt.Model, lo, hi float64, n int) *ScaleTransform {
	if n < 2 {
		n = 2
	}
	thetas := make([]float64, n)
	scores := make([]float64, n)
	step := (hi - lo) / float64(n-1)
	for i := 0; i < n; i++ {
		thetas[i] = lo + float64(i)*step
		scores[i] = model.ExpectedSumScore(thetas[i])
	}
	return &ScaleTransform{thetas: thetas, scores: scores}
}

// At returns the expected summed score for theta.
func (t *ScaleTransform) At(theta float64) float64 {
	n := len(t.thetas)
	if theta <= t.thetas[0] {
		return t.scores[0]
	}
	if theta >= t.thetas[n-1] {
		return t.scores[n-1]
	}

	step := t.thetas[1] - t.thetas[0]
	i := int((theta - t.thetas[0]) / step)
	if i >= n-1 {
		i = n - 2
	}
	frac := (theta - t.thetas[i]) / step
	return t.scores[i] + frac*(t.scores[i+1]-t.scores[i])
}

// Grid returns copies of the evaluated theta and score grids, for
// plotting the scale characteristic curve without re-evaluating it.
func (t *ScaleTransform) Grid() (thetas, scores []float64) {
	return append([]float64(nil), t.thetas...), append([]float64(nil), t.scores...)
}

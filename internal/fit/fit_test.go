package fit

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psychometry/irtreport/internal/dataset"
	apperrors "github.com/psychometry/irtreport/internal/errors"
	"github.com/psychometry/irtreport/internal/irt"
)

func fittedModel() *irt.Model {
	quad := irt.NewQuadrature(41, -6, 6)
	return &irt.Model{
		Items: []irt.ItemParams{
			{Name: "q1", Slope: 1.6, Thresholds: []float64{-1.2, 0.1, 1.3}},
			{Name: "q2", Slope: 1.1, Thresholds: []float64{-0.9, 0.3, 1.5}},
			{Name: "q3", Slope: 2.0, Thresholds: []float64{-0.6, 0.0, 0.8}},
			{Name: "q4", Slope: 0.9, Thresholds: []float64{-1.5, -0.2, 1.0}},
		},
		Categories: 4,
		Nodes:      quad.Nodes,
		Weights:    quad.Weights,
		Converged:  true,
		NObs:       600,
	}
}

// sampleFrom draws responses from the model's own response functions,
// so the fitted model is the true model for this data.
func sampleFrom(model *irt.Model, n int, seed int64) *dataset.ResponseMatrix {
	rng := rand.New(rand.NewSource(seed))
	names := make([]string, model.NItems())
	for i, item := range model.Items {
		names[i] = item.Name
	}

	rows := make([][]int, n)
	for r := 0; r < n; r++ {
		theta := rng.NormFloat64()
		row := make([]int, model.NItems())
		for i := range row {
			probs := model.CategoryProbs(i, theta)
			u := rng.Float64()
			cum := 0.0
			cat := model.Categories
			for k, p := range probs {
				cum += p
				if u < cum {
					cat = k + 1
					break
				}
			}
			row[i] = cat
		}
		rows[r] = row
	}
	return dataset.NewResponseMatrix(names, rows, model.Categories)
}

func TestAssessOnWellFittingData(t *testing.T) {
	model := fittedModel()
	matrix := sampleFrom(model, 600, 99)

	stats, err := Assess(model, matrix)
	require.NoError(t, err)
	require.NotNil(t, stats)

	g := stats.Global
	assert.False(t, math.IsNaN(g.M2))
	assert.GreaterOrEqual(t, g.M2, 0.0)
	assert.GreaterOrEqual(t, g.DF, 1)
	assert.GreaterOrEqual(t, g.PValue, 0.0)
	assert.LessOrEqual(t, g.PValue, 1.0)

	// The true model generated the data, so fit should be comfortable.
	assert.Less(t, g.RMSEA, 0.10)
	assert.Less(t, g.SRMSR, 0.10)
	assert.Greater(t, g.CFI, 0.8)
	assert.LessOrEqual(t, g.CFI, 1.0)

	// CI brackets are ordered and non-negative.
	assert.GreaterOrEqual(t, g.RMSEALo, 0.0)
	assert.GreaterOrEqual(t, g.RMSEAHi, g.RMSEALo)

	require.Len(t, stats.Items, model.NItems())
	for _, item := range stats.Items {
		assert.False(t, math.IsNaN(item.SX2), "item %s", item.Name)
		assert.GreaterOrEqual(t, item.SX2, 0.0)
		assert.GreaterOrEqual(t, item.DF, 1)
		assert.GreaterOrEqual(t, item.RMSEA, 0.0)
		assert.False(t, math.IsInf(item.RMSEA, 0))
		assert.GreaterOrEqual(t, item.PValue, 0.0)
		assert.LessOrEqual(t, item.PValue, 1.0)
	}
}

func TestAssessIsIdempotent(t *testing.T) {
	model := fittedModel()
	matrix := sampleFrom(model, 300, 5)

	first, err := Assess(model, matrix)
	require.NoError(t, err)
	second, err := Assess(model, matrix)
	require.NoError(t, err)

	assert.Equal(t, first.Global, second.Global)
	assert.Equal(t, first.Items, second.Items)
}

func TestAssessRefusesNonConvergedModel(t *testing.T) {
	model := fittedModel()
	model.Converged = false
	matrix := sampleFrom(fittedModel(), 50, 1)

	_, err := Assess(model, matrix)
	require.Error(t, err)
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryInternal))
}

func TestAssessRefusesShapeMismatch(t *testing.T) {
	model := fittedModel()
	matrix := dataset.NewResponseMatrix([]string{"a", "b"}, [][]int{{1, 2}, {2, 3}}, 4)

	_, err := Assess(model, matrix)
	require.Error(t, err)
}

func TestAssessHandlesMissingResponses(t *testing.T) {
	model := fittedModel()
	matrix := sampleFrom(model, 400, 11)

	// Punch holes in the data; bivariate margins go pairwise-complete
	// and S-X2 drops incomplete rows.
	rows := make([][]int, matrix.NRows())
	for r := 0; r < matrix.NRows(); r++ {
		rows[r] = matrix.Row(r)
		if r%7 == 0 {
			rows[r][r%model.NItems()] = dataset.Missing
		}
	}
	holed := dataset.NewResponseMatrix(matrix.ItemNames(), rows, model.Categories)

	stats, err := Assess(model, holed)
	require.NoError(t, err)
	assert.False(t, math.IsNaN(stats.Global.M2))
	for _, item := range stats.Items {
		assert.False(t, math.IsNaN(item.SX2))
	}
}

func TestNoncentralChiSquaredCDF(t *testing.T) {
	t.Run("zero noncentrality matches central", func(t *testing.T) {
		for _, x := range []float64{0.5, 3, 10, 40} {
			central := noncentralChiSquaredCDF(x, 8, 0)
			assert.InDelta(t, central, noncentralChiSquaredCDF(x, 8, 1e-15), 1e-9)
		}
	})

	t.Run("decreasing in lambda", func(t *testing.T) {
		prev := 1.1
		for _, lambda := range []float64{0, 1, 5, 20, 80} {
			v := noncentralChiSquaredCDF(15, 10, lambda)
			assert.Less(t, v, prev)
			assert.GreaterOrEqual(t, v, 0.0)
			prev = v
		}
	})

	t.Run("solver round trip", func(t *testing.T) {
		lambda := solveNoncentrality(30, 10, 0.5)
		assert.InDelta(t, 0.5, noncentralChiSquaredCDF(30, 10, lambda), 1e-5)
	})
}

func TestRmseaInterval(t *testing.T) {
	t.Run("good fit pins lower bound at zero", func(t *testing.T) {
		// Statistic below its df: central CDF is small, both bounds low.
		lo, hi := rmseaInterval(5, 10, 500)
		assert.Equal(t, 0.0, lo)
		assert.GreaterOrEqual(t, hi, lo)
	})

	t.Run("poor fit produces positive interval", func(t *testing.T) {
		lo, hi := rmseaInterval(400, 100, 500)
		assert.Greater(t, lo, 0.0)
		assert.Greater(t, hi, lo)
	})
}

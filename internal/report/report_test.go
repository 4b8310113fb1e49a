package report

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/psychometry/irtreport/internal/errors"
	"github.com/psychometry/irtreport/internal/fit"
	"github.com/psychometry/irtreport/internal/irt"
	"github.com/psychometry/irtreport/internal/scoring"
)

func reportModel() *irt.Model {
	quad := irt.NewQuadrature(41, -6, 6)
	return &irt.Model{
		Items: []irt.ItemParams{
			{Name: "q1", Slope: 1.8, Thresholds: []float64{-1.0, 0.2, 1.4}, SlopeSE: 0.1, ThresholdSEs: []float64{0.08, 0.07, 0.09}},
			{Name: "q2", Slope: 1.2, Thresholds: []float64{-0.8, 0.4, 1.6}, SlopeSE: 0.09, ThresholdSEs: []float64{0.07, 0.06, 0.1}},
			{Name: "q3", Slope: 2.4, Thresholds: []float64{-0.5, 0.1, 0.9}, SlopeSE: 0.14, ThresholdSEs: []float64{0.06, 0.05, 0.07}},
		},
		Categories: 4,
		Nodes:      quad.Nodes,
		Weights:    quad.Weights,
		Converged:  true,
		Iterations: 37,
		LogLik:     -4211.5,
		NObs:       500,
	}
}

func TestParameterViewsAreConsistent(t *testing.T) {
	model := reportModel()
	irtTab := IRTParameters(model)
	factorTab := FactorParameters(model)

	require.Len(t, irtTab, model.NItems())
	require.Len(t, factorTab, model.NItems())

	// The two views describe the same model: recomputing the loading
	// from the reported slope reproduces the factor table.
	for i := range irtTab {
		assert.Equal(t, irtTab[i].Name, factorTab[i].Name)
		assert.InDelta(t, LoadingFromSlope(irtTab[i].Slope), factorTab[i].Loading, 1e-12)
		assert.InDelta(t, factorTab[i].Loading*factorTab[i].Loading, factorTab[i].Communality, 1e-12)
	}
}

func TestParameterTablesCopyModelSlices(t *testing.T) {
	model := reportModel()
	tab := IRTParameters(model)
	tab[0].Thresholds[0] = 99

	assert.Equal(t, -1.0, model.Items[0].Thresholds[0])
}

func TestLoadingFromSlope(t *testing.T) {
	t.Run("monotone and bounded", func(t *testing.T) {
		prev := -1.0
		for _, a := range []float64{0.1, 0.5, 1, 1.702, 3, 10} {
			l := LoadingFromSlope(a)
			assert.Greater(t, l, prev)
			assert.Greater(t, l, 0.0)
			assert.Less(t, l, 1.0)
			prev = l
		}
	})

	t.Run("unit normal-metric slope gives loading 1/sqrt(2)", func(t *testing.T) {
		assert.InDelta(t, 1/math.Sqrt2, LoadingFromSlope(1.702), 1e-12)
	})
}

func TestReliability(t *testing.T) {
	model := reportModel()

	marginal := MarginalReliability(model)
	assert.Greater(t, marginal, 0.0)
	assert.Less(t, marginal, 1.0)

	// Conditional reliability peaks where information does and never
	// leaves (0, 1).
	for _, theta := range []float64{-3, -1, 0, 1, 3} {
		r := ConditionalReliability(model, theta)
		assert.Greater(t, r, 0.0)
		assert.Less(t, r, 1.0)
	}
	assert.Greater(t, ConditionalReliability(model, 0), ConditionalReliability(model, -3))
}

func TestSummarizeScores(t *testing.T) {
	scores := []scoring.ScoreEstimate{
		{Theta: -1, SE: 0.4},
		{Theta: 0, SE: 0.3},
		{Theta: 1, SE: 0.5},
	}
	s := SummarizeScores(scores)
	assert.InDelta(t, 0.0, s.Mean, 1e-12)
	assert.InDelta(t, -1.0, s.Min, 1e-12)
	assert.InDelta(t, 1.0, s.Max, 1e-12)
	assert.InDelta(t, 0.4, s.MeanSE, 1e-12)
	assert.InDelta(t, math.Sqrt(2.0/3.0), s.SD, 1e-12)

	assert.Equal(t, ScoreSummary{}, SummarizeScores(nil))
}

func renderData(model *irt.Model) Data {
	return Data{
		ScaleName:   "Wellbeing Scale",
		RunID:       "test-run",
		GeneratedAt: "2026-01-02T03:04:05Z",
		DatasetPath: "data/responses.csv",
		NRows:       model.NObs,
		NItems:      model.NItems(),
		Categories:  model.Categories,
		ThetaMin:    -3,
		ThetaMax:    3,
		Iterations:  model.Iterations,
		LogLik:      model.LogLik,
		Global: fit.GlobalFit{
			M2: 123.4, DF: 60, PValue: 0.02,
			RMSEA: 0.046, RMSEALo: 0.03, RMSEAHi: 0.061,
			SRMSR: 0.031, CFI: 0.981,
		},
		ItemFits: []fit.ItemFit{
			{Name: "q1", SX2: 10.2, DF: 8, PValue: 0.25, RMSEA: 0.02},
			{Name: "q2", SX2: 7.7, DF: 8, PValue: 0.46, RMSEA: 0.0},
			{Name: "q3", SX2: 14.9, DF: 9, PValue: 0.09, RMSEA: 0.03},
		},
		IRT:                 IRTParameters(model),
		Factor:              FactorParameters(model),
		MarginalReliability: MarginalReliability(model),
		Scores:              ScoreSummary{Mean: 0.01, SD: 0.92, Min: -2.4, Max: 2.2, MeanSE: 0.39},
		Figures:             []string{"trace_curves.png", "test_information.png"},
	}
}

func TestRenderReport(t *testing.T) {
	model := reportModel()
	r := NewRenderer()

	body, err := r.Render(renderData(model))
	require.NoError(t, err)

	for _, want := range []string{
		"Wellbeing Scale",
		"test-run",
		"q1", "q2", "q3",
		"RMSEA 90% CI",
		"trace_curves.png",
		"Marginal reliability",
	} {
		assert.Contains(t, body, want)
	}
	assert.NotContains(t, body, "{{")
	assert.NotContains(t, body, "{%")
}

func TestRenderIsDeterministic(t *testing.T) {
	model := reportModel()
	r := NewRenderer()
	data := renderData(model)

	first, err := r.Render(data)
	require.NoError(t, err)
	second, err := r.Render(data)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestWriteReportAndScores(t *testing.T) {
	dir := t.TempDir()
	model := reportModel()
	r := NewRenderer()

	path, err := r.WriteReport(dir, renderData(model))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "report.md"), path)
	body, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(body), "Wellbeing Scale")

	scorePath, err := WriteScores(dir, []scoring.ScoreEstimate{
		{Theta: 0.5, SE: 0.4},
		{Theta: -0.2, SE: 0.35},
	})
	require.NoError(t, err)
	csv, err := os.ReadFile(scorePath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(csv)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "respondent,theta,se", lines[0])
}

func TestWriteScoresFailureIsReportStage(t *testing.T) {
	// A regular file where the output directory should be makes the
	// write fail; the error must attribute itself to the report stage
	// that produces the scores artifact.
	dir := t.TempDir()
	blocked := filepath.Join(dir, "out")
	require.NoError(t, os.WriteFile(blocked, []byte("x"), 0o644))

	_, err := WriteScores(blocked, []scoring.ScoreEstimate{{Theta: 0, SE: 0.4}})
	require.Error(t, err)

	var perr *apperrors.PipelineError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, apperrors.StageReport, perr.Stage)
}

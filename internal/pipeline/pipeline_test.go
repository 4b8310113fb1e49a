package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psychometry/irtreport/internal/config"
	apperrors "github.com/psychometry/irtreport/internal/errors"
	"github.com/psychometry/irtreport/internal/telemetry"
)

// writeSyntheticDataset samples graded responses from a known model and
// writes them as CSV, returning the file path.
func writeSyntheticDataset(t *testing.T, dir string, n int, seed int64) string {
	t.Helper()

	slopes := []float64{1.5, 1.1, 2.0, 0.9}
	thresholds := [][]float64{
		{-1.0, 0.5},
		{-0.7, 0.8},
		{-0.4, 0.4},
		{-1.2, 0.2},
	}
	sigmoid := func(x float64) float64 { return 1 / (1 + math.Exp(-x)) }

	rng := rand.New(rand.NewSource(seed))
	path := filepath.Join(dir, "responses.csv")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	fmt.Fprintln(f, "q1,q2,q3,q4")
	for r := 0; r < n; r++ {
		theta := rng.NormFloat64()
		for i := range slopes {
			u := rng.Float64()
			cat := len(thresholds[i]) + 1
			cum := 0.0
			prev := 1.0
			for k := 0; k <= len(thresholds[i]); k++ {
				next := 0.0
				if k < len(thresholds[i]) {
					next = sigmoid(slopes[i] * (theta - thresholds[i][k]))
				}
				cum += prev - next
				prev = next
				if u < cum {
					cat = k + 1
					break
				}
			}
			if i > 0 {
				fmt.Fprint(f, ",")
			}
			fmt.Fprint(f, cat)
		}
		fmt.Fprintln(f)
	}
	return path
}

func testConfig(t *testing.T, datasetPath string) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.DatasetPath = datasetPath
	cfg.ItemCount = 4
	cfg.ScaleName = "Synthetic Scale"
	cfg.OutputDir = t.TempDir()
	cfg.FitTimeout = config.Duration(2 * time.Minute)
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestRunProducesAllArtifacts(t *testing.T) {
	if testing.Short() {
		t.Skip("full pipeline run")
	}

	dir := t.TempDir()
	path := writeSyntheticDataset(t, dir, 400, 7)
	cfg := testConfig(t, path)
	log := telemetry.NewLogger(slog.LevelWarn)

	result, err := Run(context.Background(), cfg, log)
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.NotEmpty(t, result.RunID)
	assert.True(t, result.Model.Converged)
	assert.Len(t, result.Model.Items, 4)
	assert.Len(t, result.Scores, 400)
	assert.NotNil(t, result.Stats)
	assert.NotNil(t, result.Transform)

	for _, p := range []string{result.ModelPath, result.ReportPath, result.ScoresPath} {
		_, err := os.Stat(p)
		assert.NoError(t, err, p)
	}
	for _, fig := range result.Figures {
		_, err := os.Stat(filepath.Join(cfg.OutputDir, fig))
		assert.NoError(t, err, fig)
	}

	body, err := os.ReadFile(result.ReportPath)
	require.NoError(t, err)
	assert.Contains(t, string(body), "Synthetic Scale")
	assert.Contains(t, string(body), result.RunID)
}

func TestRunIsReproducible(t *testing.T) {
	if testing.Short() {
		t.Skip("full pipeline run")
	}

	dir := t.TempDir()
	path := writeSyntheticDataset(t, dir, 300, 11)
	log := telemetry.NewLogger(slog.LevelWarn)

	first, err := Run(context.Background(), testConfig(t, path), log)
	require.NoError(t, err)
	second, err := Run(context.Background(), testConfig(t, path), log)
	require.NoError(t, err)

	// Same data, same configuration: identical parameters, fit, and
	// scores; only the run ID differs.
	assert.Equal(t, first.Model.Items, second.Model.Items)
	assert.Equal(t, first.Stats.Global, second.Stats.Global)
	assert.Equal(t, first.Scores, second.Scores)
	assert.NotEqual(t, first.RunID, second.RunID)
}

func TestRunFailsOnMissingDataset(t *testing.T) {
	cfg := testConfig(t, filepath.Join(t.TempDir(), "nope.csv"))
	log := telemetry.NewLogger(slog.LevelWarn)

	_, err := Run(context.Background(), cfg, log)
	require.Error(t, err)
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryDataFormat))
}

func TestRunHonorsCancellation(t *testing.T) {
	dir := t.TempDir()
	path := writeSyntheticDataset(t, dir, 200, 3)
	cfg := testConfig(t, path)
	log := telemetry.NewLogger(slog.LevelWarn)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Run(ctx, cfg, log)
	require.Error(t, err)
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryConvergenceTimeout))
}

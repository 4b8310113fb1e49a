// Package pipeline sequences a full report run: load and screen the
// dataset, fit the graded-response model, assess fit, score
// respondents, render figures, and write the report. The run halts on
// the first stage failure and every artifact of a completed run is a
// pure function of the dataset and configuration.
package pipeline

import (
	"context"
	"time"

	"github.com/psychometry/irtreport/internal/config"
	"github.com/psychometry/irtreport/internal/dataset"
	apperrors "github.com/psychometry/irtreport/internal/errors"
	"github.com/psychometry/irtreport/internal/fit"
	"github.com/psychometry/irtreport/internal/irt"
	"github.com/psychometry/irtreport/internal/irt/mml"
	"github.com/psychometry/irtreport/internal/plot"
	"github.com/psychometry/irtreport/internal/report"
	"github.com/psychometry/irtreport/internal/scoring"
	"github.com/psychometry/irtreport/internal/telemetry"
)

const modelName = "model"

// Result collects everything a completed run produced.
type Result struct {
	RunID string

	Model     *irt.Model
	Stats     *fit.Statistics
	Scores    []scoring.ScoreEstimate
	Transform *scoring.ScaleTransform

	ModelPath  string
	ReportPath string
	ScoresPath string
	Figures    []string
}

// Run executes the whole pipeline under cfg.
func Run(ctx context.Context, cfg config.Config, log *telemetry.Logger) (*Result, error) {
	runID := report.NewRunID()
	log.Info("Run Started", "run_id", runID, "dataset", cfg.DatasetPath)

	// Load
	start := time.Now()
	matrix, err := dataset.Load(cfg.DatasetPath, loadOptions(cfg))
	if err != nil {
		return nil, err
	}
	log.LoadLogger(cfg.DatasetPath, matrix.NRows(), matrix.NItems(), matrix.Categories(), time.Since(start))
	log.Debug("Dataset Preview", "items", matrix.ItemNames(), "rows", matrix.Preview(5))

	// Screen
	start = time.Now()
	if err := dataset.ScreenForEstimation(matrix); err != nil {
		return nil, err
	}
	log.StageLogger("screen", time.Since(start))

	// Fit
	start = time.Now()
	fitCtx, cancel := context.WithTimeout(ctx, cfg.FitTimeout.AsDuration())
	defer cancel()

	est := mml.New()
	est.Progress = log.FitProgressLogger
	model, err := est.Fit(fitCtx, matrix, irt.Options{
		Dimensions: cfg.Dimensions,
		ItemType:   cfg.ItemType,
		ComputeSE:  true,
	})
	if err != nil {
		return nil, apperrors.ToPipelineError(apperrors.StageFit, err)
	}
	log.FitLogger(model.Iterations, model.LogLik, model.Converged, time.Since(start))

	store := irt.NewModelStore(cfg.OutputDir)
	if err := store.Save(modelName, model); err != nil {
		return nil, apperrors.NewInternalError(apperrors.StageFit,
			"cannot persist fitted model", err)
	}
	log.ArtifactLogger("model", store.Path(modelName))

	// Assess
	start = time.Now()
	stats, err := fit.Assess(model, matrix)
	if err != nil {
		return nil, err
	}
	log.StageLogger("assess", time.Since(start))

	// Score
	start = time.Now()
	workers := cfg.EffectiveWorkers()
	scores, err := scoring.ScoreAll(ctx, model, matrix, workers)
	if err != nil {
		return nil, err
	}
	log.ScoreLogger(len(scores), workers, time.Since(start))

	transform := scoring.NewScaleTransform(model, cfg.ThetaMin, cfg.ThetaMax, 121)

	// Figures
	start = time.Now()
	figures, err := plot.RenderAll(cfg.OutputDir, model, plot.Options{
		ThetaMin: cfg.ThetaMin,
		ThetaMax: cfg.ThetaMax,
	})
	if err != nil {
		return nil, err
	}
	log.StageLogger("plot", time.Since(start))

	// Report
	start = time.Now()
	renderer := report.NewRenderer()
	reportPath, err := renderer.WriteReport(cfg.OutputDir, report.Data{
		ScaleName:           cfg.ScaleName,
		RunID:               runID,
		DatasetPath:         cfg.DatasetPath,
		NRows:               matrix.NRows(),
		NItems:              matrix.NItems(),
		Categories:          matrix.Categories(),
		ThetaMin:            cfg.ThetaMin,
		ThetaMax:            cfg.ThetaMax,
		Iterations:          model.Iterations,
		LogLik:              model.LogLik,
		Global:              stats.Global,
		ItemFits:            stats.Items,
		IRT:                 report.IRTParameters(model),
		Factor:              report.FactorParameters(model),
		MarginalReliability: report.MarginalReliability(model),
		Scores:              report.SummarizeScores(scores),
		Figures:             figures,
	})
	if err != nil {
		return nil, err
	}
	log.ArtifactLogger("report", reportPath)

	scoresPath, err := report.WriteScores(cfg.OutputDir, scores)
	if err != nil {
		return nil, err
	}
	log.ArtifactLogger("scores", scoresPath)
	log.StageLogger("report", time.Since(start))

	return &Result{
		RunID:      runID,
		Model:      model,
		Stats:      stats,
		Scores:     scores,
		Transform:  transform,
		ModelPath:  store.Path(modelName),
		ReportPath: reportPath,
		ScoresPath: scoresPath,
		Figures:    figures,
	}, nil
}

func loadOptions(cfg config.Config) dataset.Options {
	opts := dataset.Options{
		Items:          cfg.ItemColumns,
		FirstN:         cfg.ItemCount,
		Categories:     cfg.Categories,
		MissingMarkers: cfg.MissingMarkers,
	}
	if cfg.Delimiter != "" {
		opts.Delimiter = []rune(cfg.Delimiter)[0]
	}
	return opts
}

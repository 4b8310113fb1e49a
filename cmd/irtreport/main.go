package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/psychometry/irtreport/internal/config"
	apperrors "github.com/psychometry/irtreport/internal/errors"
	"github.com/psychometry/irtreport/internal/pipeline"
	"github.com/psychometry/irtreport/internal/telemetry"
)

func main() {
	configPath := flag.String("config", os.Getenv("IRTREPORT_CONFIG"), "path to YAML configuration file")
	datasetPath := flag.String("dataset", "", "dataset path (overrides configuration)")
	outputDir := flag.String("output", "", "output directory (overrides configuration)")
	verbose := flag.Bool("verbose", false, "enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := telemetry.NewLogger(level)
	slog.SetDefault(logger.Logger)

	cfg, err := config.Build(*configPath)
	if err != nil {
		logger.Error("Invalid configuration", "error", err)
		os.Exit(2)
	}
	if *datasetPath != "" {
		cfg.DatasetPath = *datasetPath
	}
	if *outputDir != "" {
		cfg.OutputDir = *outputDir
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid configuration", "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result, err := pipeline.Run(ctx, cfg, logger)
	if err != nil {
		var perr *apperrors.PipelineError
		if errors.As(err, &perr) {
			apperrors.LogError(logger.Logger, perr)
		} else {
			logger.Error("Run Failed", "error", err)
		}
		os.Exit(1)
	}

	logger.Info("Run Completed",
		"run_id", result.RunID,
		"report", result.ReportPath,
		"model", result.ModelPath,
		"scores", result.ScoresPath,
		"figures", len(result.Figures),
	)
}

package telemetry

import (
	"log/slog"
	"os"
	"time"
)

// Logger provides structured logging for the report pipeline
type Logger struct {
	*slog.Logger
}

// NewLogger creates a JSON logger writing to stdout
func NewLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.Attr{
					Key:   "timestamp",
					Value: slog.StringValue(a.Value.Time().Format(time.RFC3339)),
				}
			}
			return a
		},
	})

	return &Logger{
		Logger: slog.New(handler),
	}
}

// StageLogger logs completion of a pipeline stage
func (l *Logger) StageLogger(stage string, duration time.Duration) {
	l.Info("Stage Completed",
		"stage", stage,
		"duration_ms", duration.Milliseconds(),
	)
}

// LoadLogger logs dataset loading details
func (l *Logger) LoadLogger(path string, rows, items, categories int, duration time.Duration) {
	l.Info("Dataset Loaded",
		"path", path,
		"rows", rows,
		"items", items,
		"categories", categories,
		"duration_ms", duration.Milliseconds(),
	)
}

// FitLogger logs estimation run details
func (l *Logger) FitLogger(iterations int, logLik float64, converged bool, duration time.Duration) {
	l.Info("Model Fitted",
		"iterations", iterations,
		"log_likelihood", logLik,
		"converged", converged,
		"duration_ms", duration.Milliseconds(),
	)
}

// FitProgressLogger logs an EM cycle at debug level
func (l *Logger) FitProgressLogger(iteration int, logLik, maxChange float64) {
	l.Debug("EM Cycle",
		"iteration", iteration,
		"log_likelihood", logLik,
		"max_change", maxChange,
	)
}

// ScoreLogger logs respondent scoring details
func (l *Logger) ScoreLogger(respondents, workers int, duration time.Duration) {
	l.Info("Respondents Scored",
		"respondents", respondents,
		"workers", workers,
		"duration_ms", duration.Milliseconds(),
	)
}

// ArtifactLogger logs a written report or figure artifact
func (l *Logger) ArtifactLogger(kind, path string) {
	l.Info("Artifact Written",
		"kind", kind,
		"path", path,
	)
}

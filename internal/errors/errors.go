package errors

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
)

// ErrorCategory defines the type of error for proper handling
type ErrorCategory string

const (
	CategoryDataFormat         ErrorCategory = "data_format"
	CategoryInsufficientData   ErrorCategory = "insufficient_data"
	CategoryConvergence        ErrorCategory = "convergence"
	CategoryConvergenceTimeout ErrorCategory = "convergence_timeout"
	CategoryConfiguration      ErrorCategory = "configuration"
	CategoryInternal           ErrorCategory = "internal"
)

// Stage identifies the pipeline stage that raised an error. Stage names
// are stable strings used in log output and failure messages.
type Stage string

const (
	StageLoad   Stage = "load"
	StageScreen Stage = "screen"
	StageFit    Stage = "fit"
	StageAssess Stage = "assess"
	StageReport Stage = "report"
	StageScore  Stage = "score"
	StagePlot   Stage = "plot"
	StageConfig Stage = "config"
)

// PipelineError wraps an errbuilder error with the stage and category
// context the orchestrator needs to halt and report cleanly.
type PipelineError struct {
	*errbuilder.ErrBuilder
	Category  ErrorCategory `json:"category"`
	Stage     Stage         `json:"stage"`
	Timestamp time.Time     `json:"timestamp"`
}

// Error implements the error interface with a stage-tagged message.
func (e *PipelineError) Error() string {
	codeStr := "UNKNOWN_ERROR"
	switch e.ErrBuilder.ErrCode() {
	case errbuilder.CodeInvalidArgument:
		codeStr = "DATA_FORMAT_ERROR"
	case errbuilder.CodeFailedPrecondition:
		if e.Category == CategoryInsufficientData {
			codeStr = "INSUFFICIENT_DATA"
		} else {
			codeStr = "CONFIGURATION_ERROR"
		}
	case errbuilder.CodeAborted:
		codeStr = "CONVERGENCE_ERROR"
	case errbuilder.CodeDeadlineExceeded:
		codeStr = "CONVERGENCE_TIMEOUT"
	case errbuilder.CodeInternal:
		codeStr = "INTERNAL_ERROR"
	}

	return fmt.Sprintf("[%s] %s: %s", e.Stage, codeStr, e.ErrBuilder.Msg)
}

// Unwrap returns the underlying cause
func (e *PipelineError) Unwrap() error {
	return e.ErrBuilder.Unwrap()
}

// NewPipelineError creates a PipelineError from errbuilder with stage context
func NewPipelineError(builder *errbuilder.ErrBuilder, category ErrorCategory, stage Stage) *PipelineError {
	return &PipelineError{
		ErrBuilder: builder,
		Category:   category,
		Stage:      stage,
		Timestamp:  time.Now(),
	}
}

// NewDataFormatError reports malformed or out-of-domain input. Fatal:
// the pipeline aborts before any fitting.
func NewDataFormatError(stage Stage, message string, details map[string]any) *PipelineError {
	builder := errbuilder.New().
		WithCode(errbuilder.CodeInvalidArgument).
		WithMsg(message)

	if len(details) > 0 {
		builder = builder.WithDetails(errbuilder.NewErrDetails(toErrorMap(details)))
	}

	return NewPipelineError(builder, CategoryDataFormat, stage)
}

// NewInsufficientDataError reports data that makes estimation ill-posed,
// such as an item category that is never observed.
func NewInsufficientDataError(stage Stage, message string, details map[string]any) *PipelineError {
	builder := errbuilder.New().
		WithCode(errbuilder.CodeFailedPrecondition).
		WithMsg(message)

	if len(details) > 0 {
		builder = builder.WithDetails(errbuilder.NewErrDetails(toErrorMap(details)))
	}

	return NewPipelineError(builder, CategoryInsufficientData, stage)
}

// NewConvergenceError reports an estimation run that did not stabilize
// within its iteration budget. Partial diagnostics travel in the details
// map so the caller can decide whether a re-fit is worth attempting.
func NewConvergenceError(message string, iterations int, lastDelta float64) *PipelineError {
	errorMap := errbuilder.ErrorMap{}
	errorMap.Set("iterations", fmt.Errorf("%d", iterations))
	errorMap.Set("last_max_change", fmt.Errorf("%g", lastDelta))

	builder := errbuilder.New().
		WithCode(errbuilder.CodeAborted).
		WithMsg(message).
		WithDetails(errbuilder.NewErrDetails(errorMap))

	return NewPipelineError(builder, CategoryConvergence, StageFit)
}

// NewConvergenceTimeout reports a fit cancelled or timed out mid-run.
func NewConvergenceTimeout(message string, iterations int, cause error) *PipelineError {
	errorMap := errbuilder.ErrorMap{}
	errorMap.Set("iterations", fmt.Errorf("%d", iterations))

	builder := errbuilder.New().
		WithCode(errbuilder.CodeDeadlineExceeded).
		WithMsg(message).
		WithDetails(errbuilder.NewErrDetails(errorMap))

	if cause != nil {
		builder = builder.WithCause(cause)
	}

	return NewPipelineError(builder, CategoryConvergenceTimeout, StageFit)
}

// NewConfigurationError reports an unusable run configuration.
func NewConfigurationError(message string, cause error) *PipelineError {
	builder := errbuilder.New().
		WithCode(errbuilder.CodeFailedPrecondition).
		WithMsg(message)

	if cause != nil {
		builder = builder.WithCause(cause)
	}

	return NewPipelineError(builder, CategoryConfiguration, StageConfig)
}

// NewInternalError reports an unexpected failure inside a stage.
func NewInternalError(stage Stage, message string, cause error) *PipelineError {
	builder := errbuilder.New().
		WithCode(errbuilder.CodeInternal).
		WithMsg(message)

	if cause != nil {
		builder = builder.WithCause(cause)
	}

	return NewPipelineError(builder, CategoryInternal, stage)
}

// ToPipelineError converts any error to a PipelineError attributed to
// the given stage. Context expiry maps to the timeout category so a
// cancelled fit surfaces as CONVERGENCE_TIMEOUT, not a generic failure.
func ToPipelineError(stage Stage, err error) *PipelineError {
	if err == nil {
		return nil
	}

	var pipeErr *PipelineError
	if errors.As(err, &pipeErr) {
		return pipeErr
	}

	if ebErr, ok := err.(*errbuilder.ErrBuilder); ok {
		return NewPipelineError(ebErr, CategoryInternal, stage)
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		timeout := NewConvergenceTimeout("operation cancelled before completion", 0, err)
		timeout.Stage = stage
		return timeout
	}

	return NewInternalError(stage, "an unexpected error occurred", err)
}

// IsCategory reports whether err is a PipelineError of the given category.
func IsCategory(err error, category ErrorCategory) bool {
	var pipeErr *PipelineError
	if !errors.As(err, &pipeErr) {
		return false
	}
	return pipeErr.Category == category
}

// LogError logs a pipeline error with level chosen by category.
func LogError(logger *slog.Logger, err *PipelineError) {
	if err == nil {
		return
	}

	logEntry := logger.With(
		"error_category", err.Category,
		"error_code", err.ErrBuilder.ErrCode(),
		"stage", err.Stage,
	)

	switch err.Category {
	case CategoryDataFormat, CategoryInsufficientData, CategoryConfiguration:
		logEntry.Error(err.ErrBuilder.Msg)
	case CategoryConvergence, CategoryConvergenceTimeout:
		if cause := err.ErrBuilder.Unwrap(); cause != nil {
			logEntry.Error(err.ErrBuilder.Msg, "cause", cause)
		} else {
			logEntry.Error(err.ErrBuilder.Msg)
		}
	default:
		if cause := err.ErrBuilder.Unwrap(); cause != nil {
			logEntry.Error(err.ErrBuilder.Msg, "cause", cause)
		} else {
			logEntry.Error(err.ErrBuilder.Msg)
		}
	}
}

// WrapError wraps an error with additional context
func WrapError(err error, message string, args ...interface{}) error {
	if err == nil {
		return nil
	}

	contextMsg := fmt.Sprintf(message, args...)
	return fmt.Errorf("%s: %w", contextMsg, err)
}

func toErrorMap(details map[string]any) errbuilder.ErrorMap {
	errorMap := errbuilder.ErrorMap{}
	for key, value := range details {
		errorMap.Set(key, fmt.Errorf("%v", value))
	}
	return errorMap
}

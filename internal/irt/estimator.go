package irt

import (
	"context"

	"github.com/psychometry/irtreport/internal/dataset"
)

// ItemTypeGraded is the only item type this pipeline fits.
const ItemTypeGraded = "graded"

// Options configures a fit request.
type Options struct {
	// Dimensions of the latent trait; only 1 is supported.
	Dimensions int
	// ItemType names the response model; only ItemTypeGraded is supported.
	ItemType string
	// ComputeSE requests asymptotic standard errors.
	ComputeSE bool
}

// Estimator is the estimation capability boundary. Downstream
// components depend on the Model alone, so alternative backends
// (different optimizers, Bayesian estimators) can be substituted here
// without touching them.
type Estimator interface {
	Fit(ctx context.Context, matrix *dataset.ResponseMatrix, opts Options) (*Model, error)
}

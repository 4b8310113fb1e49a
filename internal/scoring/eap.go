package scoring

import (
	"context"
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/psychometry/irtreport/internal/dataset"
	apperrors "github.com/psychometry/irtreport/internal/errors"
	"github.com/psychometry/irtreport/internal/irt"
)

// ScoreEstimate is one respondent's expected-a-posteriori latent-trait
// estimate: posterior mean and posterior standard deviation.
type ScoreEstimate struct {
	Theta float64 `json:"theta"`
	SE    float64 `json:"se"`
}

// EAP scores one response row against the fitted model: the likelihood
// over the model's quadrature grid, weighted by the standard normal
// prior, gives the posterior mean and standard deviation. Missing items
// are omitted from the likelihood product without renormalizing the
// prior; an all-missing row therefore scores at the prior itself.
func EAP(model *irt.Model, row []int) ScoreEstimate {
	nQuad := len(model.Nodes)
	posterior := make([]float64, nQuad)

	total := 0.0
	for q := 0; q < nQuad; q++ {
		like := model.Weights[q]
		for i, x := range row {
			if x == dataset.Missing {
				continue
			}
			like *= model.CategoryProbs(i, model.Nodes[q])[x-1]
		}
		posterior[q] = like
		total += like
	}

	mean := 0.0
	for q := 0; q < nQuad; q++ {
		mean += model.Nodes[q] * posterior[q] / total
	}
	variance := 0.0
	for q := 0; q < nQuad; q++ {
		d := model.Nodes[q] - mean
		variance += d * d * posterior[q] / total
	}

	return ScoreEstimate{Theta: mean, SE: math.Sqrt(variance)}
}

// ScoreAll scores every respondent on a bounded worker pool. Each
// respondent is independent given the model, so workers share nothing;
// results land by respondent index regardless of completion order.
func ScoreAll(ctx context.Context, model *irt.Model, matrix *dataset.ResponseMatrix, workers int) ([]ScoreEstimate, error) {
	if !model.Converged {
		return nil, apperrors.NewInternalError(apperrors.StageScore,
			"refusing to score on a non-converged model", nil)
	}
	if workers < 1 {
		workers = 1
	}

	estimates := make([]ScoreEstimate, matrix.NRows())

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := 0; i < matrix.NRows(); i++ {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			estimates[i] = EAP(model, matrix.Row(i))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, apperrors.ToPipelineError(apperrors.StageScore, err)
	}
	return estimates, nil
}

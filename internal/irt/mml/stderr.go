package mml

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/psychometry/irtreport/internal/dataset"
	"github.com/psychometry/irtreport/internal/irt"
)

// attachStandardErrors estimates asymptotic standard errors from the
// empirical cross-product of case-wise score vectors: gradients of each
// respondent's marginal log-likelihood by central differences, summed
// into an observed information matrix and inverted. If the information
// matrix is singular the standard errors are reported as NaN rather
// than failing the fit.
func attachStandardErrors(model *irt.Model, rows [][]int) {
	nItems := model.NItems()
	perItem := 1 + model.Categories - 1
	nParams := nItems * perItem

	params := make([]float64, 0, nParams)
	for _, item := range model.Items {
		params = append(params, item.Slope)
		params = append(params, item.Thresholds...)
	}

	scores := mat.NewDense(len(rows), nParams, nil)
	work := append([]float64(nil), params...)
	for n, row := range rows {
		for j := 0; j < nParams; j++ {
			h := 1e-4 * math.Max(1, math.Abs(params[j]))

			work[j] = params[j] + h
			up := caseLogLik(model, work, row)
			work[j] = params[j] - h
			down := caseLogLik(model, work, row)
			work[j] = params[j]

			scores.Set(n, j, (up-down)/(2*h))
		}
	}

	var info mat.Dense
	info.Mul(scores.T(), scores)

	var cov mat.Dense
	if err := cov.Inverse(&info); err != nil {
		markUnavailable(model)
		return
	}

	for i := range model.Items {
		base := i * perItem
		model.Items[i].SlopeSE = seAt(&cov, base)
		ses := make([]float64, len(model.Items[i].Thresholds))
		for k := range ses {
			ses[k] = seAt(&cov, base+1+k)
		}
		model.Items[i].ThresholdSEs = ses
	}
}

// caseLogLik computes one respondent's marginal log-likelihood under a
// flat parameter vector laid out as (a, b_1..b_{m-1}) per item.
func caseLogLik(model *irt.Model, params []float64, row []int) float64 {
	perItem := model.Categories
	total := 0.0
	buf := make([]float64, model.Categories)
	for q := range model.Nodes {
		theta := model.Nodes[q]
		like := model.Weights[q]
		for i, x := range row {
			if x == dataset.Missing {
				continue
			}
			base := i * perItem
			categoryProbs(params[base], params[base+1:base+perItem], theta, buf)
			like *= buf[x-1]
		}
		total += like
	}
	if total <= 0 {
		total = probFloor
	}
	return math.Log(total)
}

func seAt(cov *mat.Dense, j int) float64 {
	v := cov.At(j, j)
	if v <= 0 || math.IsNaN(v) {
		return math.NaN()
	}
	return math.Sqrt(v)
}

func markUnavailable(model *irt.Model) {
	for i := range model.Items {
		model.Items[i].SlopeSE = math.NaN()
		ses := make([]float64, len(model.Items[i].Thresholds))
		for k := range ses {
			ses[k] = math.NaN()
		}
		model.Items[i].ThresholdSEs = ses
	}
}

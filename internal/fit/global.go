package fit

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/psychometry/irtreport/internal/dataset"
	apperrors "github.com/psychometry/irtreport/internal/errors"
	"github.com/psychometry/irtreport/internal/irt"
)

// Assess computes the global and per-item fit statistics for a
// converged model against the data it was fitted to. Statistics are
// keyed to the model's own quadrature grid so the comparison matches
// what the estimator optimized.
func Assess(model *irt.Model, matrix *dataset.ResponseMatrix) (*Statistics, error) {
	if !model.Converged {
		return nil, apperrors.NewInternalError(apperrors.StageAssess,
			"refusing to assess fit on a non-converged model", nil)
	}
	if model.NItems() != matrix.NItems() || model.Categories != matrix.Categories() {
		return nil, apperrors.NewInternalError(apperrors.StageAssess,
			"model and matrix shapes disagree", nil)
	}

	global := globalFit(model, matrix)
	items := itemFit(model, matrix)

	return &Statistics{Global: global, Items: items}, nil
}

// globalFit computes an M2-family statistic over first- and
// second-order margins: univariate category proportions plus full
// bivariate cross-tabulations, observed versus model-implied, with
// RMSEA (and its 90% CI), SRMSR over correlation residuals, and CFI
// against the independence baseline.
func globalFit(model *irt.Model, matrix *dataset.ResponseMatrix) GlobalFit {
	nItems := model.NItems()
	nCats := model.Categories
	nQuad := len(model.Nodes)

	// probs[i][q][k] under the fitted parameters.
	probs := make([][][]float64, nItems)
	for i := 0; i < nItems; i++ {
		probs[i] = make([][]float64, nQuad)
		for q := 0; q < nQuad; q++ {
			probs[i][q] = model.CategoryProbs(i, model.Nodes[q])
		}
	}

	// Model-implied univariate margins.
	expUni := make([][]float64, nItems)
	for i := 0; i < nItems; i++ {
		expUni[i] = make([]float64, nCats)
		for q := 0; q < nQuad; q++ {
			for k := 0; k < nCats; k++ {
				expUni[i][k] += model.Weights[q] * probs[i][q][k]
			}
		}
	}

	obsUni := matrix.ItemProportions()
	itemN := make([]int, nItems)
	for r := 0; r < matrix.NRows(); r++ {
		row := matrix.Row(r)
		for i, x := range row {
			if x != dataset.Missing {
				itemN[i]++
			}
		}
	}

	chi2 := 0.0
	for i := 0; i < nItems; i++ {
		for k := 0; k < nCats; k++ {
			e := expUni[i][k]
			if e > 1e-12 {
				d := obsUni[i][k] - e
				chi2 += float64(itemN[i]) * d * d / e
			}
		}
	}

	// Bivariate margins and the independence baseline.
	chi2Base := 0.0
	srmsrSum, srmsrPairs := 0.0, 0
	for i := 0; i < nItems; i++ {
		for j := i + 1; j < nItems; j++ {
			obsJoint, pairN := observedJoint(matrix, i, j, nCats)
			if pairN == 0 {
				continue
			}

			for k := 0; k < nCats; k++ {
				for l := 0; l < nCats; l++ {
					e := 0.0
					for q := 0; q < nQuad; q++ {
						e += model.Weights[q] * probs[i][q][k] * probs[j][q][l]
					}
					if e > 1e-12 {
						d := obsJoint[k][l] - e
						chi2 += float64(pairN) * d * d / e
					}

					eBase := obsUni[i][k] * obsUni[j][l]
					if eBase > 1e-12 {
						d := obsJoint[k][l] - eBase
						chi2Base += float64(pairN) * d * d / eBase
					}
				}
			}

			rObs := observedCorrelation(obsJoint, nCats)
			rModel := modelCorrelation(model, probs, i, j)
			resid := rObs - rModel
			srmsrSum += resid * resid
			srmsrPairs++
		}
	}

	nPairs := nItems * (nItems - 1) / 2
	margins := nItems*(nCats-1) + nPairs*(nCats-1)*(nCats-1)
	nParams := nItems * nCats // one slope plus m-1 thresholds per item
	df := margins - nParams
	if df < 1 {
		df = 1
	}
	dfBase := margins - nItems*(nCats-1)
	if dfBase < 1 {
		dfBase = 1
	}

	n := matrix.NRows()
	rmsea := rmseaFromChi2(chi2, float64(df), n)
	lo, hi := rmseaInterval(chi2, float64(df), n)

	cfi := 1.0
	excess := math.Max(chi2-float64(df), 0)
	baseExcess := math.Max(chi2Base-float64(dfBase), 0)
	if denom := math.Max(excess, baseExcess); denom > 0 {
		cfi = 1 - excess/denom
	}

	srmsr := 0.0
	if srmsrPairs > 0 {
		srmsr = math.Sqrt(srmsrSum / float64(srmsrPairs))
	}

	return GlobalFit{
		M2:      chi2,
		DF:      df,
		PValue:  1 - distuv.ChiSquared{K: float64(df)}.CDF(chi2),
		RMSEA:   rmsea,
		RMSEALo: lo,
		RMSEAHi: hi,
		SRMSR:   srmsr,
		CFI:     cfi,
	}
}

// observedJoint returns the joint category proportions of an item pair
// over pairwise-complete rows, and the pair's case count.
func observedJoint(matrix *dataset.ResponseMatrix, i, j, nCats int) ([][]float64, int) {
	joint := make([][]float64, nCats)
	for k := range joint {
		joint[k] = make([]float64, nCats)
	}
	n := 0
	for r := 0; r < matrix.NRows(); r++ {
		row := matrix.Row(r)
		if row[i] == dataset.Missing || row[j] == dataset.Missing {
			continue
		}
		joint[row[i]-1][row[j]-1]++
		n++
	}
	if n > 0 {
		for k := range joint {
			for l := range joint[k] {
				joint[k][l] /= float64(n)
			}
		}
	}
	return joint, n
}

// observedCorrelation computes the Pearson correlation of the category
// values implied by a joint proportion table.
func observedCorrelation(joint [][]float64, nCats int) float64 {
	var meanI, meanJ float64
	for k := 0; k < nCats; k++ {
		for l := 0; l < nCats; l++ {
			meanI += float64(k+1) * joint[k][l]
			meanJ += float64(l+1) * joint[k][l]
		}
	}
	var varI, varJ, cov float64
	for k := 0; k < nCats; k++ {
		for l := 0; l < nCats; l++ {
			di := float64(k+1) - meanI
			dj := float64(l+1) - meanJ
			varI += di * di * joint[k][l]
			varJ += dj * dj * joint[k][l]
			cov += di * dj * joint[k][l]
		}
	}
	if varI <= 0 || varJ <= 0 {
		return 0
	}
	return cov / math.Sqrt(varI*varJ)
}

// modelCorrelation computes the model-implied Pearson correlation of an
// item pair by integrating conditional moments over the prior.
func modelCorrelation(model *irt.Model, probs [][][]float64, i, j int) float64 {
	nCats := model.Categories
	var meanI, meanJ, sqI, sqJ, cross float64
	for q := range model.Nodes {
		var ei, ej, ei2, ej2 float64
		for k := 0; k < nCats; k++ {
			v := float64(k + 1)
			ei += v * probs[i][q][k]
			ej += v * probs[j][q][k]
			ei2 += v * v * probs[i][q][k]
			ej2 += v * v * probs[j][q][k]
		}
		w := model.Weights[q]
		meanI += w * ei
		meanJ += w * ej
		sqI += w * ei2
		sqJ += w * ej2
		cross += w * ei * ej
	}
	varI := sqI - meanI*meanI
	varJ := sqJ - meanJ*meanJ
	if varI <= 0 || varJ <= 0 {
		return 0
	}
	return (cross - meanI*meanJ) / math.Sqrt(varI*varJ)
}

func rmseaFromChi2(chi2, df float64, n int) float64 {
	if df <= 0 || n < 2 {
		return 0
	}
	return math.Sqrt(math.Max(0, (chi2-df)/(df*float64(n-1))))
}

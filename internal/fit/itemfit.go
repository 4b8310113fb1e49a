package fit

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/psychometry/irtreport/internal/dataset"
	"github.com/psychometry/irtreport/internal/irt"
)

// itemFit computes the S-X2 statistic per item: observed category
// frequencies within summed-score groups against model-implied
// frequencies obtained from the Lord-Wingersky rest-score recursion,
// with adjacent score groups collapsed until every expected cell count
// reaches 1.
func itemFit(model *irt.Model, matrix *dataset.ResponseMatrix) []ItemFit {
	nItems := model.NItems()
	nCats := model.Categories
	nQuad := len(model.Nodes)

	// Complete rows only; summed scores shift to 0..nItems*(nCats-1).
	var rows [][]int
	for r := 0; r < matrix.NRows(); r++ {
		row := matrix.Row(r)
		complete := true
		for _, x := range row {
			if x == dataset.Missing {
				complete = false
				break
			}
		}
		if complete {
			rows = append(rows, row)
		}
	}

	results := make([]ItemFit, nItems)
	names := make([]string, nItems)
	for i, item := range model.Items {
		names[i] = item.Name
	}

	if len(rows) == 0 {
		for i := range results {
			results[i] = ItemFit{Name: names[i], SX2: math.NaN(), RMSEA: math.NaN()}
		}
		return results
	}

	probs := make([][][]float64, nItems)
	for i := 0; i < nItems; i++ {
		probs[i] = make([][]float64, nQuad)
		for q := 0; q < nQuad; q++ {
			probs[i][q] = model.CategoryProbs(i, model.Nodes[q])
		}
	}

	maxShifted := nItems * (nCats - 1)

	for i := 0; i < nItems; i++ {
		// Observed counts per (shifted score, category).
		observed := make([][]float64, maxShifted+1)
		for s := range observed {
			observed[s] = make([]float64, nCats)
		}
		groupN := make([]float64, maxShifted+1)
		for _, row := range rows {
			s := 0
			for _, x := range row {
				s += x - 1
			}
			observed[s][row[i]-1]++
			groupN[s]++
		}

		// Expected joint distribution P(X_i = k, S = s) and P(S = s).
		joint := make([][]float64, maxShifted+1)
		for s := range joint {
			joint[s] = make([]float64, nCats)
		}
		scoreProb := make([]float64, maxShifted+1)
		for q := 0; q < nQuad; q++ {
			rest := restScoreDistribution(probs, i, q, nItems, nCats)
			w := model.Weights[q]
			for k := 0; k < nCats; k++ {
				pk := probs[i][q][k]
				for sRest, pr := range rest {
					joint[sRest+k][k] += w * pk * pr
				}
			}
			full := convolve(rest, probs[i][q])
			for s, p := range full {
				scoreProb[s] += w * p
			}
		}

		// Expected conditional proportions scaled to group sizes.
		expected := make([][]float64, maxShifted+1)
		for s := range expected {
			expected[s] = make([]float64, nCats)
			if scoreProb[s] <= 1e-12 {
				continue
			}
			for k := 0; k < nCats; k++ {
				expected[s][k] = groupN[s] * joint[s][k] / scoreProb[s]
			}
		}

		sx2, cells := collapseAndSum(observed, expected, groupN)
		df := cells - nCats // cells counted as (m-1) per group; item has m parameters
		if df < 1 {
			df = 1
		}

		results[i] = ItemFit{
			Name:   names[i],
			SX2:    sx2,
			DF:     df,
			PValue: 1 - distuv.ChiSquared{K: float64(df)}.CDF(sx2),
			RMSEA:  rmseaFromChi2(sx2, float64(df), len(rows)),
		}
	}

	return results
}

// restScoreDistribution returns the distribution of the shifted summed
// score over all items except item i, conditional on node q, by direct
// convolution of the per-item category distributions.
func restScoreDistribution(probs [][][]float64, i, q, nItems, nCats int) []float64 {
	dist := []float64{1}
	for j := 0; j < nItems; j++ {
		if j == i {
			continue
		}
		dist = convolve(dist, probs[j][q])
	}
	return dist
}

// convolve adds one item's shifted score distribution to an existing
// summed-score distribution.
func convolve(dist, itemProbs []float64) []float64 {
	out := make([]float64, len(dist)+len(itemProbs)-1)
	for s, p := range dist {
		if p == 0 {
			continue
		}
		for k, pk := range itemProbs {
			out[s+k] += p * pk
		}
	}
	return out
}

// collapseAndSum merges adjacent score groups until every expected
// category count in a group reaches 1, then accumulates the chi-squared
// sum. Returns the statistic and the number of (m-1)-sized cell blocks
// retained.
func collapseAndSum(observed, expected [][]float64, groupN []float64) (float64, int) {
	nCats := len(observed[0])

	type group struct {
		obs []float64
		exp []float64
		n   float64
	}

	var groups []group
	var current *group
	for s := range observed {
		if groupN[s] == 0 && current == nil {
			continue
		}
		if current == nil {
			current = &group{obs: make([]float64, nCats), exp: make([]float64, nCats)}
		}
		for k := 0; k < nCats; k++ {
			current.obs[k] += observed[s][k]
			current.exp[k] += expected[s][k]
		}
		current.n += groupN[s]
		if minPositive(current.exp) >= 1 {
			groups = append(groups, *current)
			current = nil
		}
	}
	// Fold any unfinished remainder into the last closed group.
	if current != nil && current.n > 0 {
		if len(groups) > 0 {
			last := &groups[len(groups)-1]
			for k := 0; k < nCats; k++ {
				last.obs[k] += current.obs[k]
				last.exp[k] += current.exp[k]
			}
			last.n += current.n
		} else {
			groups = append(groups, *current)
		}
	}

	sum := 0.0
	for _, g := range groups {
		for k := 0; k < nCats; k++ {
			if g.exp[k] > 0 {
				d := g.obs[k] - g.exp[k]
				sum += d * d / g.exp[k]
			}
		}
	}
	return sum, len(groups) * (nCats - 1)
}

func minPositive(xs []float64) float64 {
	min := math.Inf(1)
	for _, x := range xs {
		if x > 0 && x < min {
			min = x
		}
	}
	if math.IsInf(min, 1) {
		return 0
	}
	return min
}

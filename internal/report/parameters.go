package report

import (
	"math"

	"github.com/psychometry/irtreport/internal/irt"
)

// scalingD is the logistic-to-normal-ogive scaling constant linking the
// IRT slope metric to the factor-analytic loading metric under a
// unit-variance normal latent trait.
const scalingD = 1.702

// IRTItem is one row of the IRT parameterization table.
type IRTItem struct {
	Name         string    `json:"name"`
	Slope        float64   `json:"slope"`
	SlopeSE      float64   `json:"slope_se"`
	Thresholds   []float64 `json:"thresholds"`
	ThresholdSEs []float64 `json:"threshold_ses"`
}

// FactorItem is one row of the factor-analytic parameterization table.
type FactorItem struct {
	Name        string  `json:"name"`
	Loading     float64 `json:"loading"`
	Communality float64 `json:"communality"`
}

// IRTParameters projects the model into its slope/threshold view. Pure:
// repeated calls on the same model return identical tables.
func IRTParameters(model *irt.Model) []IRTItem {
	items := make([]IRTItem, model.NItems())
	for i, p := range model.Items {
		items[i] = IRTItem{
			Name:         p.Name,
			Slope:        p.Slope,
			SlopeSE:      p.SlopeSE,
			Thresholds:   append([]float64(nil), p.Thresholds...),
			ThresholdSEs: append([]float64(nil), p.ThresholdSEs...),
		}
	}
	return items
}

// FactorParameters projects the model into its loading/communality
// view using LoadingFromSlope, so the two views stay consistent for the
// same model by construction.
func FactorParameters(model *irt.Model) []FactorItem {
	items := make([]FactorItem, model.NItems())
	for i, p := range model.Items {
		loading := LoadingFromSlope(p.Slope)
		items[i] = FactorItem{
			Name:        p.Name,
			Loading:     loading,
			Communality: loading * loading,
		}
	}
	return items
}

// LoadingFromSlope converts a logistic-metric discrimination slope into
// a standardized factor loading: lambda = a* / sqrt(a*^2 + 1) with
// a* = a / 1.702. Monotone in the slope; the communality is its square.
func LoadingFromSlope(slope float64) float64 {
	aStar := slope / scalingD
	return aStar / math.Sqrt(aStar*aStar+1)
}

// ConditionalReliability returns the conditional reliability at theta
// under the unit-variance prior: information against information plus
// one unit of prior precision.
func ConditionalReliability(model *irt.Model, theta float64) float64 {
	info := model.TestInformation(theta)
	return info / (info + 1)
}

// MarginalReliability integrates conditional reliability over the
// latent-trait prior on the model's own quadrature grid.
func MarginalReliability(model *irt.Model) float64 {
	total := 0.0
	for q := range model.Nodes {
		total += model.Weights[q] * ConditionalReliability(model, model.Nodes[q])
	}
	return total
}

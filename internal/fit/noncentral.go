package fit

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// noncentralChiSquaredCDF evaluates the noncentral chi-squared CDF via
// the Poisson mixture of central chi-squared distributions, truncated
// once the accumulated mixture weight is negligible.
func noncentralChiSquaredCDF(x, df, lambda float64) float64 {
	if x <= 0 {
		return 0
	}
	if lambda <= 0 {
		return distuv.ChiSquared{K: df}.CDF(x)
	}

	half := lambda / 2
	weight := math.Exp(-half)
	sumWeight := weight
	cdf := weight * distuv.ChiSquared{K: df}.CDF(x)

	for j := 1; j < 5000; j++ {
		weight *= half / float64(j)
		sumWeight += weight
		cdf += weight * distuv.ChiSquared{K: df + 2*float64(j)}.CDF(x)
		if 1-sumWeight < 1e-12 {
			break
		}
	}
	return cdf
}

// rmseaInterval inverts the noncentral chi-squared CDF in the
// noncentrality parameter to produce a 90% confidence interval for
// RMSEA, the standard construction for M2-family statistics.
func rmseaInterval(stat, df float64, n int) (lo, hi float64) {
	if df <= 0 || n < 2 {
		return 0, 0
	}
	scale := df * float64(n-1)

	// Lower bound: lambda with CDF(stat) = .95; zero when the central
	// distribution already sits below .95.
	if noncentralChiSquaredCDF(stat, df, 0) <= 0.95 {
		lo = 0
	} else {
		lo = math.Sqrt(solveNoncentrality(stat, df, 0.95) / scale)
	}

	// Upper bound: lambda with CDF(stat) = .05.
	if noncentralChiSquaredCDF(stat, df, 0) <= 0.05 {
		hi = 0
	} else {
		hi = math.Sqrt(solveNoncentrality(stat, df, 0.05) / scale)
	}
	return lo, hi
}

// solveNoncentrality finds lambda with F(stat; df, lambda) = target by
// bisection. F is decreasing in lambda.
func solveNoncentrality(stat, df, target float64) float64 {
	low, high := 0.0, math.Max(4*stat, 1.0)
	for noncentralChiSquaredCDF(stat, df, high) > target {
		high *= 2
		if high > 1e8 {
			break
		}
	}
	for i := 0; i < 200; i++ {
		mid := (low + high) / 2
		if noncentralChiSquaredCDF(stat, df, mid) > target {
			low = mid
		} else {
			high = mid
		}
		if high-low < 1e-8 {
			break
		}
	}
	return (low + high) / 2
}

// Package abcstat collects the numerical helpers shared by the algorithm
// drivers: weighted covariance, percentiles, effective sample size, and the
// scalar root-finding used by SABC's threshold schedule and SMC-ABC's
// bisection-solved epsilon.
package abcstat

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// WeightedCovariance computes the D x D weighted empirical covariance of
// rows (N x D) under weights, via gonum's stat package.
func WeightedCovariance(rows [][]float64, weights []float64) *mat.SymDense {
	n := len(rows)
	if n == 0 {
		return mat.NewSymDense(0, nil)
	}
	d := len(rows[0])
	data := mat.NewDense(n, d, nil)
	for i, row := range rows {
		data.SetRow(i, row)
	}
	cov := mat.NewSymDense(d, nil)
	stat.CovarianceMatrix(cov, data, weights)
	return cov
}

// RidgeInflate adds eps * trace(cov) * I to cov, the SABC covariance
// floor (§4.5.4) that keeps the kernel non-singular when particles
// collapse onto a lower-dimensional subspace.
func RidgeInflate(cov *mat.SymDense, eps float64) *mat.SymDense {
	n := cov.Symmetric()
	trace := mat.Trace(cov)
	out := mat.NewSymDense(n, nil)
	out.CopySym(cov)
	for i := 0; i < n; i++ {
		out.SetSym(i, i, out.At(i, i)+eps*trace)
	}
	return out
}

// Percentile returns the p-quantile (p in [0,1]) of distances, sorted
// in-place on a private copy.
func Percentile(distances []float64, p float64) float64 {
	sorted := append([]float64(nil), distances...)
	sort.Float64s(sorted)
	return stat.Quantile(p, stat.Empirical, sorted, nil)
}

// WeightedPercentile is Percentile with explicit, possibly non-uniform
// weights, required to sort weights alongside the data (gonum's Quantile
// assumes the data is already sorted ascending).
func WeightedPercentile(distances, weights []float64, p float64) float64 {
	x := append([]float64(nil), distances...)
	w := append([]float64(nil), weights...)
	stat.SortWeighted(x, w)
	return stat.Quantile(p, stat.Empirical, x, w)
}

// ESS is the effective sample size 1 / sum(w^2).
func ESS(weights []float64) float64 {
	sumSq := 0.0
	for _, w := range weights {
		sumSq += w * w
	}
	if sumSq == 0 {
		return 0
	}
	return 1 / sumSq
}

// Normalize rescales weights to sum to 1, returning an error-flagging bool
// when the total is non-positive (DegenerateWeights, §7).
func Normalize(weights []float64) (out []float64, ok bool) {
	total := 0.0
	for _, w := range weights {
		total += w
	}
	if total <= 0 {
		return weights, false
	}
	out = make([]float64, len(weights))
	for i, w := range weights {
		out[i] = w / total
	}
	return out, true
}

// Bisect finds a root of f in [lo, hi] assuming f(lo) and f(hi) have
// opposite signs, to within tol. No example repository in the corpus
// carries a dedicated scalar root-finder, so this is implemented directly
// against math (documented in the grounding ledger).
func Bisect(f func(float64) float64, lo, hi, tol float64) float64 {
	flo := f(lo)
	for i := 0; i < 200; i++ {
		mid := (lo + hi) / 2
		fmid := f(mid)
		if math.Abs(fmid) < tol || (hi-lo)/2 < tol {
			return mid
		}
		if math.Signbit(fmid) == math.Signbit(flo) {
			lo, flo = mid, fmid
		} else {
			hi = mid
		}
	}
	return (lo + hi) / 2
}

// SolveSABCEpsilon solves eps^2 + v*eps^1.5 = target^2 for eps in (0, hi],
// the threshold recurrence in §4.5.4.
func SolveSABCEpsilon(v, target, hi float64) float64 {
	f := func(eps float64) float64 {
		return eps*eps + v*math.Pow(eps, 1.5) - target*target
	}
	return Bisect(f, 1e-12, hi, 1e-10)
}

// AdaptiveR computes RSMC-ABC's per-step MCMC chain length R =
// ceil(log(constant) / log(1 - pAccept)), clipped to at least 1 (§4.5.6).
func AdaptiveR(pAccept, constant float64) int {
	if pAccept <= 0 || pAccept >= 1 {
		return 1
	}
	r := int(math.Ceil(math.Log(constant) / math.Log(1-pAccept)))
	if r < 1 {
		r = 1
	}
	return r
}

// SmoothedDistance is SABC's s(d) map (§4.5.4): d scaled below min(D),
// else the fraction of D strictly less than d.
func SmoothedDistance(d float64, all []float64) float64 {
	min := all[0]
	for _, x := range all {
		if x < min {
			min = x
		}
	}
	if d < min {
		return d / min * 1 / float64(len(all))
	}
	count := 0
	for _, x := range all {
		if x < d {
			count++
		}
	}
	return float64(count) / float64(len(all))
}

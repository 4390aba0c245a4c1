// Package models provides small scalar probabilistic models used by the
// graph, kernel, and algorithm test suites: a fixed hyperparameter, a
// uniform prior, and a Normal root model whose mean is read from a parent
// node's current value. They are deliberately minimal — real callers supply
// their own graph.Node implementations.
package models

import (
	"math"
	"math/rand"

	"github.com/abcforge/abcsim/pkg/graph"
)

// Hyperparameter is a fixed, never-sampled scalar. It occupies a graph slot
// (so it can be referenced as a parent) but is skipped by mapping.
type Hyperparameter struct {
	id    graph.NodeID
	value float64
}

func NewHyperparameter(id graph.NodeID, value float64) *Hyperparameter {
	return &Hyperparameter{id: id, value: value}
}

func (h *Hyperparameter) ID() graph.NodeID           { return h.id }
func (h *Hyperparameter) Dimension() int             { return 1 }
func (h *Hyperparameter) Kind() graph.Kind           { return graph.KindHyper }
func (h *Hyperparameter) Parents() []graph.ParentRef { return nil }

func (h *Hyperparameter) SampleParameters(_ *rand.Rand) bool   { return true }
func (h *Hyperparameter) SetParameters(v []float64) bool       { h.value = v[0]; return true }
func (h *Hyperparameter) GetParameters() []float64              { return []float64{h.value} }
func (h *Hyperparameter) PDF(_ []float64) float64               { return 1 }
func (h *Hyperparameter) SampleFromDistribution(_ int, _ *rand.Rand) (bool, [][]float64) {
	return false, nil
}

// Uniform is a scalar uniform prior on [Low, High].
type Uniform struct {
	id           graph.NodeID
	Low, High    float64
	currentValue float64
}

func NewUniform(id graph.NodeID, low, high float64) *Uniform {
	return &Uniform{id: id, Low: low, High: high, currentValue: (low + high) / 2}
}

func (u *Uniform) ID() graph.NodeID           { return u.id }
func (u *Uniform) Dimension() int             { return 1 }
func (u *Uniform) Kind() graph.Kind           { return graph.KindFree }
func (u *Uniform) Parents() []graph.ParentRef { return nil }

func (u *Uniform) SampleParameters(rng *rand.Rand) bool {
	u.currentValue = u.Low + rng.Float64()*(u.High-u.Low)
	return true
}

func (u *Uniform) SetParameters(v []float64) bool {
	if v[0] < u.Low || v[0] > u.High {
		return false
	}
	u.currentValue = v[0]
	return true
}

func (u *Uniform) GetParameters() []float64 { return []float64{u.currentValue} }

func (u *Uniform) PDF(value []float64) float64 {
	if value[0] < u.Low || value[0] > u.High {
		return 0
	}
	return 1 / (u.High - u.Low)
}

func (u *Uniform) SampleFromDistribution(_ int, _ *rand.Rand) (bool, [][]float64) {
	return false, nil
}

// Normal is a scalar root data-generating model: X ~ N(mean, stddev) where
// mean and stddev are read from parent nodes' current values at simulation
// time (index 0 and 1 of Parents respectively).
type Normal struct {
	id         graph.NodeID
	mean, std  graph.Node
	currentVal float64
}

// NewNormal builds a Normal root whose mean and stddev come from the given
// parent nodes (typically a free Uniform and a fixed Hyperparameter).
func NewNormal(id graph.NodeID, mean, std graph.Node) *Normal {
	return &Normal{id: id, mean: mean, std: std}
}

func (n *Normal) ID() graph.NodeID { return n.id }
func (n *Normal) Dimension() int   { return 1 }
func (n *Normal) Kind() graph.Kind { return graph.KindRootData }

func (n *Normal) Parents() []graph.ParentRef {
	return []graph.ParentRef{{ID: n.mean.ID(), OutputIndex: 0}, {ID: n.std.ID(), OutputIndex: 0}}
}

func (n *Normal) SampleParameters(_ *rand.Rand) bool { return true }
func (n *Normal) SetParameters(v []float64) bool     { n.currentVal = v[0]; return true }
func (n *Normal) GetParameters() []float64           { return []float64{n.currentVal} }
func (n *Normal) PDF(_ []float64) float64            { return 1 }

// SampleFromDistribution draws n i.i.d. observations. ok is false when the
// parent-supplied stddev is non-positive (I4: never evaluate outside the
// distribution's support).
func (n *Normal) SampleFromDistribution(count int, rng *rand.Rand) (bool, [][]float64) {
	mu := n.mean.GetParameters()[0]
	sigma := n.std.GetParameters()[0]
	if sigma <= 0 || math.IsNaN(sigma) {
		return false, nil
	}
	data := make([][]float64, count)
	for i := range data {
		data[i] = []float64{mu + sigma*rng.NormFloat64()}
	}
	return true, data
}

// EuclideanDistance is a fixture worker.Distance comparing the column-wise
// means of observed and simulated datasets.
type EuclideanDistance struct {
	Max float64
}

func (d EuclideanDistance) Distance(observed, simulated [][]float64) float64 {
	if len(observed) == 0 || len(simulated) == 0 {
		return d.DistMax()
	}
	dims := len(observed[0])
	obsMean := columnMeans(observed, dims)
	simMean := columnMeans(simulated, dims)
	sum := 0.0
	for k := 0; k < dims; k++ {
		diff := obsMean[k] - simMean[k]
		sum += diff * diff
	}
	return math.Sqrt(sum)
}

func (d EuclideanDistance) DistMax() float64 {
	if d.Max > 0 {
		return d.Max
	}
	return math.MaxFloat64
}

// GaussianLikelihood is a fixture worker.Likelihood: a Gaussian kernel
// density on the column-wise mean difference between observed and
// simulated datasets, bandwidth Sigma.
type GaussianLikelihood struct {
	Sigma float64
}

func (l GaussianLikelihood) Likelihood(observed, simulated [][]float64) float64 {
	if len(observed) == 0 || len(simulated) == 0 {
		return 0
	}
	dims := len(observed[0])
	obsMean := columnMeans(observed, dims)
	simMean := columnMeans(simulated, dims)
	sumSq := 0.0
	for k := 0; k < dims; k++ {
		diff := obsMean[k] - simMean[k]
		sumSq += diff * diff
	}
	sigma := l.Sigma
	if sigma <= 0 {
		sigma = 1
	}
	return math.Exp(-sumSq / (2 * sigma * sigma))
}

func columnMeans(rows [][]float64, dims int) []float64 {
	out := make([]float64, dims)
	for _, row := range rows {
		for k := 0; k < dims; k++ {
			out[k] += row[k]
		}
	}
	for k := range out {
		out[k] /= float64(len(rows))
	}
	return out
}

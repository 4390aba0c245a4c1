// Package population implements the Accepted-Population Store (C2): the
// thin holder of broadcast slots a driver refreshes once per generation and
// every worker reads immutably for the rest of that generation.
package population

import "github.com/abcforge/abcsim/pkg/graph"

// Store holds up to five broadcast slots. UpdateBroadcast only replaces the
// slots passed as non-nil, leaving the others at their previous value —
// the "set field if not None" pattern from the design notes, expressed as
// a functional-options-free struct-of-pointers rather than mutable field
// assignment scattered through driver code.
type Store struct {
	AcceptedParameters [][]float64   // N x D, one row per accepted particle
	AcceptedWeights    []float64     // length N
	AcceptedCovMats    [][][]float64 // one D_k x D_k matrix per sub-kernel
	Observations       [][]float64
	KernelParameters   [][][]float64 // one N x D_k slice per sub-kernel
}

// Update is the set of fields a generation boundary may refresh. Nil fields
// leave the corresponding Store slot untouched.
type Update struct {
	AcceptedParameters [][]float64
	AcceptedWeights    []float64
	AcceptedCovMats    [][][]float64
	Observations       [][]float64
	KernelParameters   [][][]float64
}

// New builds an empty store seeded with the observations, which never
// change across generations.
func New(observations [][]float64) *Store {
	return &Store{Observations: observations}
}

// UpdateBroadcast replaces only the non-nil slots of u.
func (s *Store) UpdateBroadcast(u Update) {
	if u.AcceptedParameters != nil {
		s.AcceptedParameters = u.AcceptedParameters
	}
	if u.AcceptedWeights != nil {
		s.AcceptedWeights = u.AcceptedWeights
	}
	if u.AcceptedCovMats != nil {
		s.AcceptedCovMats = u.AcceptedCovMats
	}
	if u.Observations != nil {
		s.Observations = u.Observations
	}
	if u.KernelParameters != nil {
		s.KernelParameters = u.KernelParameters
	}
}

// N reports the number of accepted particles currently broadcast.
func (s *Store) N() int { return len(s.AcceptedParameters) }

// GetAcceptedParametersBDSValues returns, per particle, the concatenation
// of each mapped node's current slice in canonical mapping order. It
// materializes the per-sub-kernel input table once per generation instead
// of once per worker, by reading each node's GetParameters directly rather
// than round-tripping through a fresh graph.Graph per particle.
func GetAcceptedParametersBDSValues(g *graph.Graph, rows [][]float64) [][]float64 {
	out := make([][]float64, len(rows))
	for i, row := range rows {
		ok, _ := g.SetParameters(row)
		if !ok {
			out[i] = append([]float64(nil), row...)
			continue
		}
		out[i] = g.GetParameters()
	}
	return out
}

// SMCStore extends Store with the per-particle simulated data a SMC-ABC
// run needs to re-evaluate acceptance counts against a shrinking epsilon
// without resimulating (§4.5.8, SPEC_FULL E3 item 7).
type SMCStore struct {
	Store
	// SimulatedData[i] holds every simulated dataset produced for
	// particle i since it was last accepted or resampled.
	SimulatedData [][][]float64
}

// NewSMCStore builds an empty SMC-specific store.
func NewSMCStore(observations [][]float64) *SMCStore {
	return &SMCStore{Store: *New(observations)}
}

// CountBelow returns, for particle i, how many of its simulated datasets
// have distance below eps according to dist.
func (s *SMCStore) CountBelow(i int, eps float64, dist func(sim []float64) float64) int {
	count := 0
	for _, sim := range s.SimulatedData[i] {
		if dist(sim) < eps {
			count++
		}
	}
	return count
}

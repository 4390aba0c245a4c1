package population_test

import (
	"testing"

	"github.com/abcforge/abcsim/pkg/population"
)

func TestUpdateBroadcast_OnlyReplacesNonNilSlots(t *testing.T) {
	s := population.New([][]float64{{1.0}})
	s.UpdateBroadcast(population.Update{
		AcceptedParameters: [][]float64{{0.1}, {0.2}},
		AcceptedWeights:    []float64{0.5, 0.5},
	})
	if s.N() != 2 {
		t.Fatalf("expected N=2, got %d", s.N())
	}
	if len(s.Observations) != 1 || s.Observations[0][0] != 1.0 {
		t.Errorf("expected untouched observations, got %v", s.Observations)
	}

	s.UpdateBroadcast(population.Update{AcceptedWeights: []float64{0.3, 0.7}})
	if len(s.AcceptedParameters) != 2 {
		t.Errorf("expected AcceptedParameters untouched by a weights-only update, got %v", s.AcceptedParameters)
	}
	if s.AcceptedWeights[0] != 0.3 {
		t.Errorf("expected weights replaced, got %v", s.AcceptedWeights)
	}
}

func TestSMCStore_CountBelow(t *testing.T) {
	s := population.NewSMCStore([][]float64{{0}})
	s.SimulatedData = [][][]float64{
		{{0.1}, {0.5}, {2.0}},
	}
	dist := func(sim []float64) float64 { return sim[0] }
	if got := s.CountBelow(0, 1.0, dist); got != 2 {
		t.Errorf("expected 2 simulations below 1.0, got %d", got)
	}
}

package algorithms_test

import (
	"math"
	"testing"

	"github.com/abcforge/abcsim/internal/models"
	"github.com/abcforge/abcsim/pkg/algorithms"
	"github.com/abcforge/abcsim/pkg/backend"
	"github.com/abcforge/abcsim/pkg/graph"
	"github.com/abcforge/abcsim/pkg/kernel"
)

// buildDeps wires the scalar Normal(mu, 1), mu ~ Uniform(-10, 10) model used
// throughout the package's tests, the same scenario graph_test.go builds.
func buildDeps(t *testing.T, concurrency int) (algorithms.Deps, [][]float64) {
	t.Helper()
	mu := models.NewUniform(1, -10, 10)
	sigma := models.NewHyperparameter(2, 1.0)
	normal := models.NewNormal(3, mu, sigma)

	g, err := graph.New([]graph.Node{mu, sigma, normal}, []graph.NodeID{3})
	if err != nil {
		t.Fatal(err)
	}
	mapping := g.Mapping()
	dims := map[graph.NodeID]int{1: 1}

	k, err := kernel.NewDefaultKernel(mapping, dims, func(id graph.NodeID) graph.Node {
		n, _ := g.Node(id)
		return n
	})
	if err != nil {
		t.Fatal(err)
	}

	observations := [][]float64{{2.0}, {2.1}, {1.9}, {2.05}}
	deps := algorithms.Deps{
		Graph:    g,
		Kernel:   k,
		Backend:  backend.NewLocal(concurrency),
		Distance: models.EuclideanDistance{},
		Dims:     dims,
	}
	return deps, observations
}

func meanOf(rows [][]float64) float64 {
	sum := 0.0
	for _, r := range rows {
		sum += r[0]
	}
	return sum / float64(len(rows))
}

// TestRejection_PosteriorMeanNearObservedMean checks Rejection ABC recovers
// a mu near the observed mean (~2.0) under a loose enough epsilon.
func TestRejection_PosteriorMeanNearObservedMean(t *testing.T) {
	deps, observations := buildDeps(t, 4)
	cfg := algorithms.Config{
		N: 200, Steps: 1, EpsilonInit: []float64{1.0},
		NSamplesPerParam: 5, Epochs: 5000, FullOutput: 0, Seed: 7, CovFactor: 1,
	}
	j, err := algorithms.Rejection(cfg, deps, observations)
	if err != nil {
		t.Fatal(err)
	}
	if j.Status != "completed" {
		t.Fatalf("expected completed, got %s", j.Status)
	}
	final := j.Entries[len(j.Entries)-1]
	mean := meanOf(final.Parameters)
	if math.Abs(mean-2.0) > 1.0 {
		t.Errorf("posterior mean %.3f too far from observed mean 2.0", mean)
	}
}

// TestPMCABC_FinalGenerationConcentratesNearObservedMean checks PMC-ABC's
// final generation mean is no farther from the observed mean than its first
// generation's was, within a tolerance of 1.0, demonstrating the sequential
// refinement loop runs.
func TestPMCABC_FinalGenerationConcentratesNearObservedMean(t *testing.T) {
	deps, observations := buildDeps(t, 4)
	cfg := algorithms.PMCABCConfig{
		Config: algorithms.Config{
			N: 150, Steps: 3, EpsilonInit: []float64{3.0},
			NSamplesPerParam: 5, Epochs: 5000, FullOutput: 1, Seed: 11, CovFactor: 1,
		},
		EpsilonPercentile: 50,
	}
	j, err := algorithms.PMCABC(cfg, deps, observations)
	if err != nil {
		t.Fatal(err)
	}
	if j.Status != "completed" {
		t.Fatalf("expected completed, got %s", j.Status)
	}
	if len(j.Entries) != 3 {
		t.Fatalf("full_output=1 should keep every generation, got %d entries", len(j.Entries))
	}
	firstMean := meanOf(j.Entries[0].Parameters)
	lastMean := meanOf(j.Entries[len(j.Entries)-1].Parameters)
	if math.Abs(lastMean-2.0) > math.Abs(firstMean-2.0)+1.0 {
		t.Errorf("final generation mean %.3f did not improve on first generation mean %.3f", lastMean, firstMean)
	}
}

// TestSABC_RunsToCompletionOrCutoff exercises SABC's annealing loop
// far enough to hit the ar-cutoff or step budget without erroring.
func TestSABC_RunsToCompletionOrCutoff(t *testing.T) {
	deps, observations := buildDeps(t, 4)
	cfg := algorithms.SABCConfig{
		Config: algorithms.Config{
			N: 80, Steps: 4, EpsilonInit: []float64{2.0},
			NSamplesPerParam: 3, Epochs: 2000, FullOutput: 0, Seed: 3, CovFactor: 1,
		},
		Beta: 1.0, Delta: 0.2, V: 0.3, ArCutoff: 0.0, Resample: 10,
	}
	j, err := algorithms.SABC(cfg, deps, observations)
	if err != nil {
		t.Fatal(err)
	}
	if j.Status != "completed" && j.Status != "ar-cutoff-reached" {
		t.Fatalf("unexpected status %s", j.Status)
	}
	if len(j.Entries) == 0 {
		t.Fatal("expected at least one recorded generation")
	}
}

// TestABCsubsim_SurvivorSpreadDoesNotIncrease checks subset simulation's
// surviving population does not spread out from the first recorded step to
// the last, the visible effect of a tighter distance bound (the anneal
// parameter itself is not recorded in the journal).
func TestABCsubsim_SurvivorSpreadDoesNotIncrease(t *testing.T) {
	deps, observations := buildDeps(t, 4)
	cfg := algorithms.ABCsubsimConfig{
		Config: algorithms.Config{
			N: 50, Steps: 3, EpsilonInit: []float64{5.0},
			NSamplesPerParam: 3, Epochs: 2000, FullOutput: 1, Seed: 5, CovFactor: 1,
		},
		ChainLength: 5, ApChangeCutoff: 0.0,
	}
	j, err := algorithms.ABCsubsim(cfg, deps, observations)
	if err != nil {
		t.Fatal(err)
	}
	if len(j.Entries) < 2 {
		t.Skip("not enough generations recorded to compare anneal trend")
	}
	firstSpread := spreadOf(j.Entries[0].Parameters)
	lastSpread := spreadOf(j.Entries[len(j.Entries)-1].Parameters)
	if lastSpread > firstSpread+1e-9 {
		t.Errorf("expected surviving population spread to tighten, got %.4f -> %.4f", firstSpread, lastSpread)
	}
}

func spreadOf(rows [][]float64) float64 {
	min, max := rows[0][0], rows[0][0]
	for _, r := range rows {
		if r[0] < min {
			min = r[0]
		}
		if r[0] > max {
			max = r[0]
		}
	}
	return max - min
}

// TestPMC_WeightsStayNormalizedAcrossSteps checks PMC's reweighted
// population sums to 1 at every recorded generation.
func TestPMC_WeightsStayNormalizedAcrossSteps(t *testing.T) {
	deps, observations := buildDeps(t, 4)
	cfg := algorithms.PMCConfig{
		Config: algorithms.Config{
			N: 60, Steps: 3, EpsilonInit: []float64{1.0}, NSamplesPerParam: 5, Epochs: 3000,
			FullOutput: 1, Seed: 13, CovFactor: 1,
		},
	}
	j, err := algorithms.PMC(cfg, deps, models.GaussianLikelihood{Sigma: 0.5}, observations)
	if err != nil {
		t.Fatal(err)
	}
	if j.Status != "completed" {
		t.Fatalf("expected completed, got %s", j.Status)
	}
	for i, entry := range j.Entries {
		sum := 0.0
		for _, w := range entry.Weights {
			sum += w
		}
		if math.Abs(sum-1) > 1e-6 {
			t.Errorf("generation %d: expected weights to sum to 1, got %.6f", i, sum)
		}
	}
}

// TestRSMCABC_SpreadDoesNotWiden checks replenishment ABC's population
// spread does not grow by more than 1.0 from the first recorded step to the
// last (the distance threshold itself is not recorded in the journal).
func TestRSMCABC_SpreadDoesNotWiden(t *testing.T) {
	deps, observations := buildDeps(t, 4)
	cfg := algorithms.RSMCABCConfig{
		Config: algorithms.Config{
			N: 60, Steps: 3, EpsilonInit: []float64{5.0}, NSamplesPerParam: 3, Epochs: 2000,
			FullOutput: 1, Seed: 17, CovFactor: 1,
		},
		Alpha: 0.3, RConstant: 0.01, EpsilonFinal: 0.0,
	}
	j, err := algorithms.RSMCABC(cfg, deps, observations)
	if err != nil {
		t.Fatal(err)
	}
	if len(j.Entries) < 2 {
		t.Skip("not enough generations recorded to compare spread trend")
	}
	firstSpread := spreadOf(j.Entries[0].Parameters)
	lastSpread := spreadOf(j.Entries[len(j.Entries)-1].Parameters)
	if lastSpread > firstSpread+1.0 {
		t.Errorf("expected surviving population spread to tighten or hold, got %.4f -> %.4f", firstSpread, lastSpread)
	}
}

// TestAPMCABC_FinalGenerationConcentratesNearObservedMean checks the mean of
// Lenormand's adaptive PMC-ABC's final alpha-quantile population lies within
// 1.5 of the observed mean.
func TestAPMCABC_FinalGenerationConcentratesNearObservedMean(t *testing.T) {
	deps, observations := buildDeps(t, 4)
	cfg := algorithms.APMCABCConfig{
		Config: algorithms.Config{
			N: 100, Steps: 3, EpsilonInit: []float64{5.0}, NSamplesPerParam: 5, Epochs: 3000,
			FullOutput: 1, Seed: 19, CovFactor: 1,
		},
		Alpha: 0.5, AcceptanceCutoff: 0.0,
	}
	j, err := algorithms.APMCABC(cfg, deps, observations)
	if err != nil {
		t.Fatal(err)
	}
	if j.Status != "completed" && j.Status != "acceptance-cutoff-reached" {
		t.Fatalf("unexpected status %s", j.Status)
	}
	final := j.Entries[len(j.Entries)-1]
	mean := meanOf(final.Parameters)
	if math.Abs(mean-2.0) > 1.5 {
		t.Errorf("posterior mean %.3f too far from observed mean 2.0", mean)
	}
}

// TestSMCABC_SpreadDoesNotWiden checks Del Moral's SMC-ABC particle spread
// does not grow by more than 1.0 from the first recorded generation to the
// last (the bisection-solved epsilon itself is not recorded in the journal).
func TestSMCABC_SpreadDoesNotWiden(t *testing.T) {
	deps, observations := buildDeps(t, 4)
	cfg := algorithms.SMCABCConfig{
		Config: algorithms.Config{
			N: 60, Steps: 3, EpsilonInit: []float64{5.0}, NSamplesPerParam: 5,
			Epochs: 2000, FullOutput: 1, Seed: 23, CovFactor: 1,
		},
		EssAlpha: 0.9, ResampleFrac: 0.5, EpsilonFinal: 0.0,
	}
	j, err := algorithms.SMCABC(cfg, deps, observations)
	if err != nil {
		t.Fatal(err)
	}
	if j.Status != "completed" && j.Status != "epsilon-final-reached" {
		t.Fatalf("unexpected status %s", j.Status)
	}
	if len(j.Entries) < 2 {
		t.Skip("not enough generations recorded to compare spread trend")
	}
	firstSpread := spreadOf(j.Entries[0].Parameters)
	lastSpread := spreadOf(j.Entries[len(j.Entries)-1].Parameters)
	if lastSpread > firstSpread+1.0 {
		t.Errorf("expected particle spread to tighten or hold, got %.4f -> %.4f", firstSpread, lastSpread)
	}
}

// TestJournal_FullOutputPolicy checks the 0/1 full_output semantics
// end-to-end through a real driver rather than only the journal package's
// own unit tests.
func TestJournal_FullOutputPolicy(t *testing.T) {
	for _, tc := range []struct {
		fullOutput int
		wantLen    int
	}{
		{0, 1},
		{1, 2},
	} {
		deps, observations := buildDeps(t, 2)
		cfg := algorithms.PMCABCConfig{
			Config: algorithms.Config{
				N: 40, Steps: 2, EpsilonInit: []float64{3.0},
				NSamplesPerParam: 3, Epochs: 2000, FullOutput: tc.fullOutput, Seed: 1, CovFactor: 1,
			},
			EpsilonPercentile: 50,
		}
		j, err := algorithms.PMCABC(cfg, deps, observations)
		if err != nil {
			t.Fatal(err)
		}
		if len(j.Entries) != tc.wantLen {
			t.Errorf("full_output=%d: expected %d entries, got %d", tc.fullOutput, tc.wantLen, len(j.Entries))
		}
	}
}

// TestRejection_DeterministicGivenSameSeed checks two runs with identical
// configuration and seed produce bitwise-identical final populations (§5
// determinism).
func TestRejection_DeterministicGivenSameSeed(t *testing.T) {
	cfg := algorithms.Config{
		N: 30, Steps: 1, EpsilonInit: []float64{1.5},
		NSamplesPerParam: 3, Epochs: 3000, FullOutput: 0, Seed: 99, CovFactor: 1,
	}

	deps1, obs1 := buildDeps(t, 1)
	j1, err := algorithms.Rejection(cfg, deps1, obs1)
	if err != nil {
		t.Fatal(err)
	}
	deps2, obs2 := buildDeps(t, 1)
	j2, err := algorithms.Rejection(cfg, deps2, obs2)
	if err != nil {
		t.Fatal(err)
	}

	p1 := j1.Entries[len(j1.Entries)-1].Parameters
	p2 := j2.Entries[len(j2.Entries)-1].Parameters
	if len(p1) != len(p2) {
		t.Fatalf("population size mismatch: %d vs %d", len(p1), len(p2))
	}
	for i := range p1 {
		if p1[i][0] != p2[i][0] {
			t.Errorf("particle %d differs between runs: %v vs %v", i, p1[i], p2[i])
		}
	}
}

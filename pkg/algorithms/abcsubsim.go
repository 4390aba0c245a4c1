package algorithms

import (
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/abcforge/abcsim/pkg/graph"
	"github.com/abcforge/abcsim/pkg/journal"
	"github.com/abcforge/abcsim/pkg/population"
	"github.com/abcforge/abcsim/pkg/worker"
)

// ABCsubsimConfig is subset-simulation ABC's hyperparameters (§4.5.5).
type ABCsubsimConfig struct {
	Config
	ChainLength    int
	ApChangeCutoff float64
}

// subsimParticle is a (parameter-vector, distance) pair, the unit
// subset-simulation sorts and partitions on.
type subsimParticle struct {
	theta []float64
	dist  float64
}

// ABCsubsim runs subset simulation. Step 0 draws N particles from the
// prior and partitions at the 1/chain_length quantile; every later step
// extends each surviving particle into a Markov chain bounded by the
// current anneal parameter, adapting the proposal covariance by powers of
// two to target an acceptance rate in [0.3, 0.5] (§4.5.5,
// SPEC_FULL E3 item 4).
func ABCsubsim(cfg ABCsubsimConfig, deps Deps, observations [][]float64) (*journal.Journal, error) {
	mapping := deps.Graph.Mapping()
	if err := cfg.Validate(cfg.Steps, deps.Graph.Dimension()); err != nil {
		return nil, err
	}
	j, err := newJournal(cfg.FullOutput, map[string]any{"algorithm": "abcsubsim", "n": cfg.N, "steps": cfg.Steps})
	if err != nil {
		return nil, err
	}

	store := population.New(observations)
	ctx := newContext(deps, store, mapping, cfg.NSamplesPerParam, cfg.Epochs)

	initResults := deps.Backend.Collect(deps.Backend.Map(func(seed int64) worker.Result {
		return worker.Run(seed, true, ctx)
	}, deps.Backend.Parallelize(seeds(cfg.Seed, 0, cfg.N))))

	pop := make([]subsimParticle, cfg.N)
	for i, r := range initResults {
		pop[i] = subsimParticle{r.Theta, r.Distance}
	}
	sort.Slice(pop, func(a, b int) bool { return pop[a].dist < pop[b].dist })

	cutIndex := cfg.N / cfg.ChainLength
	if cutIndex < 1 {
		cutIndex = 1
	}
	anneal := averageOfBoundary(pop, cutIndex)
	survivors := pop[:cutIndex]

	j.Record(journal.Entry{Parameters: extractThetas(survivors), Weights: uniformWeights(len(survivors))}, cfg.Steps == 1)

	for step := 1; step < cfg.Steps; step++ {
		rawCovs := deps.Kernel.CalculateCov(mapping, deps.Dims, extractThetas(survivors), uniformWeights(len(survivors)))

		bestRate := -1.0
		bestScale := 1.0
		for t := -2; t <= 2; t++ {
			scale := math.Pow(2, -2*float64(t))
			rate := adaptiveTrialAcceptanceRate(deps, mapping, ctx, survivors, scaleCovs(rawCovs, scale), anneal, cfg.Seed+int64(step)*97)
			if rate >= 0.3 && rate <= 0.5 {
				bestScale = scale
				bestRate = rate
				break
			}
			if bestRate < 0 || math.Abs(rate-0.4) < math.Abs(bestRate-0.4) {
				bestRate, bestScale = rate, scale
			}
		}
		covs := scaleCovs(rawCovs, bestScale)
		for i, cov := range covs {
			deps.Kernel.SubKernels()[i].SetCovariance(cov)
		}

		var next []subsimParticle
		for s, seed := range survivors {
			next = append(next, extendChain(deps, mapping, ctx, seed, anneal, cfg.ChainLength, cfg.Seed+int64(step)*104729+int64(s))...)
		}
		pop = next
		sort.Slice(pop, func(a, b int) bool { return pop[a].dist < pop[b].dist })

		prevAnneal := anneal
		anneal = averageOfBoundary(pop, cutIndex)
		survivors = pop[:cutIndex]

		isFinal := step == cfg.Steps-1
		j.Record(journal.Entry{Parameters: extractThetas(survivors), Weights: uniformWeights(len(survivors))}, isFinal)

		if prevAnneal != 0 && math.Abs(prevAnneal-anneal)/math.Abs(prevAnneal) < cfg.ApChangeCutoff {
			j.Finalize("anneal-converged")
			return j, nil
		}
	}

	j.Finalize("completed")
	return j, nil
}

// averageOfBoundary is the mean of the two distances either side of the
// cut: the worst survivor and the best discarded particle. When nothing is
// discarded it is the worst survivor's distance.
func averageOfBoundary(pop []subsimParticle, cutIndex int) float64 {
	if cutIndex >= len(pop) {
		return pop[len(pop)-1].dist
	}
	return (pop[cutIndex-1].dist + pop[cutIndex].dist) / 2
}

func extractThetas(pop []subsimParticle) [][]float64 {
	out := make([][]float64, len(pop))
	for i, p := range pop {
		out[i] = p.theta
	}
	return out
}

func uniformWeights(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 1.0 / float64(n)
	}
	return out
}

// extendChain runs a chain_length-step Metropolis walk from seed, rejecting
// any proposal whose distance is not below anneal.
func extendChain(deps Deps, mapping []graph.MappingEntry, ctx *worker.Context, seed subsimParticle, anneal float64, chainLength int, rngSeed int64) []subsimParticle {
	out := make([]subsimParticle, 0, chainLength)
	current := seed
	rng := rand.New(rand.NewSource(rngSeed))
	for c := 0; c < chainLength; c++ {
		proposals := deps.Kernel.Update(mapping, deps.Dims, [][]float64{current.theta}, 0, rng)
		candidate := deps.Graph.GetCorrectOrdering(proposals)
		priorNew := deps.Graph.PDFOfPrior(candidate)
		if priorNew > 0 {
			priorOld := deps.Graph.PDFOfPrior(current.theta)
			kFwd := deps.Kernel.PDF(mapping, deps.Dims, [][]float64{current.theta}, 0, candidate)
			kBwd := deps.Kernel.PDF(mapping, deps.Dims, [][]float64{candidate}, 0, current.theta)
			accept := 1.0
			if priorOld > 0 && kFwd > 0 {
				accept = math.Min(1, priorNew/priorOld*kBwd/kFwd)
			}
			if ok, data := worker.SimulateCandidate(ctx, rng, candidate); ok {
				dist := deps.Distance.Distance(ctx.Store.Observations, data)
				if dist < anneal && rng.Float64() < accept {
					current = subsimParticle{candidate, dist}
				}
			}
		}
		out = append(out, current)
	}
	return out
}

// scaleCovs scales every sub-kernel's covariance matrix by the same factor,
// preserving each matrix's own per-sub-kernel dimension.
func scaleCovs(covs []mat.Symmetric, factor float64) []mat.Symmetric {
	out := make([]mat.Symmetric, len(covs))
	for i, c := range covs {
		out[i] = scaleSym(c, factor)
	}
	return out
}

// adaptiveTrialAcceptanceRate estimates the true MCMC acceptance rate a
// given covariance scale would produce: one real trial move per survivor,
// perturbing, rejecting outside the prior's support, simulating, and
// accepting only when the simulated distance clears anneal and a
// Metropolis draw accepts the prior/kernel ratio. Same move as
// extendChain's body, run once and discarded instead of kept.
func adaptiveTrialAcceptanceRate(deps Deps, mapping []graph.MappingEntry, ctx *worker.Context, survivors []subsimParticle, covs []mat.Symmetric, anneal float64, rngSeed int64) float64 {
	for i, cov := range covs {
		deps.Kernel.SubKernels()[i].SetCovariance(cov)
	}
	rng := rand.New(rand.NewSource(rngSeed))
	accepted := 0
	for _, p := range survivors {
		proposals := deps.Kernel.Update(mapping, deps.Dims, [][]float64{p.theta}, 0, rng)
		candidate := deps.Graph.GetCorrectOrdering(proposals)
		priorNew := deps.Graph.PDFOfPrior(candidate)
		if priorNew == 0 {
			continue
		}
		priorOld := deps.Graph.PDFOfPrior(p.theta)
		kFwd := deps.Kernel.PDF(mapping, deps.Dims, [][]float64{p.theta}, 0, candidate)
		kBwd := deps.Kernel.PDF(mapping, deps.Dims, [][]float64{candidate}, 0, p.theta)
		accept := 1.0
		if priorOld > 0 && kFwd > 0 {
			accept = math.Min(1, priorNew/priorOld*kBwd/kFwd)
		}
		ok, data := worker.SimulateCandidate(ctx, rng, candidate)
		if !ok {
			continue
		}
		dist := deps.Distance.Distance(ctx.Store.Observations, data)
		if dist < anneal && rng.Float64() < accept {
			accepted++
		}
	}
	return float64(accepted) / float64(len(survivors))
}

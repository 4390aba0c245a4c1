package algorithms

import (
	"math"
	"math/rand"
	"sort"

	"github.com/abcforge/abcsim/pkg/abcstat"
	"github.com/abcforge/abcsim/pkg/journal"
	"github.com/abcforge/abcsim/pkg/population"
	"github.com/abcforge/abcsim/pkg/worker"
)

// RSMCABCConfig is the Drovandi-Pettitt replenishment ABC hyperparameters
// (§4.5.6).
type RSMCABCConfig struct {
	Config
	Alpha        float64
	RConstant    float64
	EpsilonFinal float64
}

// RSMCABC runs replenishment SMC-ABC: each step drops the worst alpha*N
// particles, replenishes them with R MCMC moves from resampled survivors,
// and adapts R from the observed acceptance rate (§4.5.6).
func RSMCABC(cfg RSMCABCConfig, deps Deps, observations [][]float64) (*journal.Journal, error) {
	mapping := deps.Graph.Mapping()
	if err := cfg.Validate(cfg.Steps, deps.Graph.Dimension()); err != nil {
		return nil, err
	}
	j, err := newJournal(cfg.FullOutput, map[string]any{"algorithm": "rsmc-abc", "n": cfg.N})
	if err != nil {
		return nil, err
	}

	store := population.New(observations)
	ctx := newContext(deps, store, mapping, cfg.NSamplesPerParam, cfg.Epochs)

	initResults := deps.Backend.Collect(deps.Backend.Map(func(seed int64) worker.Result {
		return worker.Run(seed, true, ctx)
	}, deps.Backend.Parallelize(seeds(cfg.Seed, 0, cfg.N))))

	pop := make([]subsimParticle, cfg.N)
	for i, res := range initResults {
		pop[i] = subsimParticle{res.Theta, res.Distance}
	}
	sort.Slice(pop, func(a, b int) bool { return pop[a].dist < pop[b].dist })
	eps := pop[len(pop)-1].dist
	r := 1

	dropCount := int(math.Ceil(cfg.Alpha * float64(cfg.N)))
	if dropCount < 1 {
		dropCount = 1
	}
	keepCount := cfg.N - dropCount
	if keepCount < 1 {
		keepCount = 1
	}

	for step := 0; step < cfg.Steps; step++ {
		survivors := pop[:keepCount]
		rawCovs := deps.Kernel.CalculateCov(mapping, deps.Dims, extractThetas(survivors), uniformWeights(len(survivors)))

		rng := rand.New(rand.NewSource(cfg.Seed + int64(step)*65537))
		replenished := make([]subsimParticle, 0, dropCount)
		accepted, total := 0, 0
		for d := 0; d < dropCount; d++ {
			base := survivors[rng.Intn(len(survivors))]
			current := base
			for m := 0; m < r; m++ {
				proposals := deps.Kernel.Update(mapping, deps.Dims, [][]float64{current.theta}, 0, rng)
				candidate := deps.Graph.GetCorrectOrdering(proposals)
				priorNew := deps.Graph.PDFOfPrior(candidate)
				total++
				if priorNew == 0 {
					continue
				}
				priorOld := deps.Graph.PDFOfPrior(current.theta)
				kFwd := deps.Kernel.PDF(mapping, deps.Dims, [][]float64{current.theta}, 0, candidate)
				kBwd := deps.Kernel.PDF(mapping, deps.Dims, [][]float64{candidate}, 0, current.theta)
				ratio := 1.0
				if priorOld > 0 && kFwd > 0 {
					ratio = math.Min(1, priorNew/priorOld*kBwd/kFwd)
				}
				if ok, data := worker.SimulateCandidate(ctx, rng, candidate); ok {
					dist := deps.Distance.Distance(observations, data)
					if dist < eps && rng.Float64() < ratio {
						current = subsimParticle{candidate, dist}
						accepted++
					}
				}
			}
			replenished = append(replenished, current)
		}

		pop = append(append([]subsimParticle{}, survivors...), replenished...)
		sort.Slice(pop, func(a, b int) bool { return pop[a].dist < pop[b].dist })
		eps = survivors[len(survivors)-1].dist

		pAccept := 0.0
		if total > 0 {
			pAccept = float64(accepted) / float64(total)
		}
		r = abcstat.AdaptiveR(pAccept, cfg.RConstant)

		for i, rawCov := range rawCovs {
			deps.Kernel.SubKernels()[i].SetCovariance(scaleSym(rawCov, cfg.CovFactor))
		}

		isFinal := step == cfg.Steps-1 || eps < cfg.EpsilonFinal
		j.Record(journal.Entry{Parameters: extractThetas(pop), Weights: uniformWeights(len(pop))}, isFinal)
		if eps < cfg.EpsilonFinal {
			j.Finalize("epsilon-final-reached")
			return j, nil
		}
	}

	j.Finalize("completed")
	return j, nil
}

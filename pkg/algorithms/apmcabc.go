package algorithms

import (
	"math"
	"math/rand"
	"sort"

	"github.com/abcforge/abcsim/pkg/abcerrors"
	"github.com/abcforge/abcsim/pkg/abcstat"
	"github.com/abcforge/abcsim/pkg/journal"
	"github.com/abcforge/abcsim/pkg/population"
	"github.com/abcforge/abcsim/pkg/worker"
)

// APMCABCConfig is the Lenormand adaptive-PMC-ABC hyperparameters (§4.5.7).
type APMCABCConfig struct {
	Config
	Alpha            float64
	AcceptanceCutoff float64
}

// apmcParticle pairs a parameter vector with its distance and weight.
type apmcParticle struct {
	theta  []float64
	dist   float64
	weight float64
}

// APMCABC runs Lenormand's adaptive population Monte Carlo ABC. Each step
// replenishes (1-alpha)*N particles by weighted resampling plus a single
// perturbation, re-sorts the full population by distance, and keeps the
// lowest alpha*N as the new epsilon-population; the perturbation covariance
// is recomputed over the FULL population, not just the alpha-survivors
// (§4.5.7, SPEC_FULL E3 item 6).
func APMCABC(cfg APMCABCConfig, deps Deps, observations [][]float64) (*journal.Journal, error) {
	mapping := deps.Graph.Mapping()
	if err := cfg.Validate(cfg.Steps, deps.Graph.Dimension()); err != nil {
		return nil, err
	}
	j, err := newJournal(cfg.FullOutput, map[string]any{"algorithm": "apmc-abc", "n": cfg.N})
	if err != nil {
		return nil, err
	}

	store := population.New(observations)
	ctx := newContext(deps, store, mapping, cfg.NSamplesPerParam, cfg.Epochs)

	initResults := deps.Backend.Collect(deps.Backend.Map(func(seed int64) worker.Result {
		return worker.Run(seed, true, ctx)
	}, deps.Backend.Parallelize(seeds(cfg.Seed, 0, cfg.N))))

	pop := make([]apmcParticle, cfg.N)
	for i, r := range initResults {
		pop[i] = apmcParticle{theta: r.Theta, dist: r.Distance, weight: 1.0 / float64(cfg.N)}
	}
	sort.Slice(pop, func(a, b int) bool { return pop[a].dist < pop[b].dist })

	alphaCount := int(math.Ceil(cfg.Alpha * float64(cfg.N)))
	if alphaCount < 1 {
		alphaCount = 1
	}
	eps := pop[alphaCount-1].dist
	// fullPop is the last full N-particle population (survivors plus their
	// replenishment), kept across iterations so the next step's kernel
	// covariance is computed over all of it rather than just the
	// alpha-quantile survivors (§4.5.7, SPEC_FULL E3 item 6). The first
	// iteration's full population is simply the initial prior draw.
	fullPop := append([]apmcParticle(nil), pop...)
	survivors := pop[:alphaCount]
	j.Record(journal.Entry{Parameters: extractAPMCThetas(survivors), Weights: extractAPMCWeights(survivors)}, cfg.Steps == 1)

	prevEps := eps
	for step := 1; step < cfg.Steps; step++ {
		fullThetas := extractAPMCThetas(fullPop)
		fullWeights := extractAPMCWeights(fullPop)
		rawCovs := deps.Kernel.CalculateCov(mapping, deps.Dims, fullThetas, fullWeights)
		for i, rawCov := range rawCovs {
			deps.Kernel.SubKernels()[i].SetCovariance(scaleSym(rawCov, cfg.CovFactor))
		}

		thetas := extractAPMCThetas(survivors)
		weights := extractAPMCWeights(survivors)
		store.UpdateBroadcast(population.Update{AcceptedParameters: thetas, AcceptedWeights: weights})
		replenishCount := cfg.N - len(survivors)
		if replenishCount < 0 {
			replenishCount = 0
		}

		replenished := make([]apmcParticle, replenishCount)
		rngSeeds := seeds(cfg.Seed, step, replenishCount)
		tasks := deps.Backend.Map(func(seed int64) worker.Result {
			rng := rand.New(rand.NewSource(seed))
			parentIdx := worker.ChooseParent(weights, rng)
			proposals := deps.Kernel.Update(mapping, deps.Dims, thetas, parentIdx, rng)
			candidate := deps.Graph.GetCorrectOrdering(proposals)
			ok, data := worker.SimulateCandidate(ctx, rng, candidate)
			if !ok {
				return worker.Result{
					Theta:            thetas[parentIdx],
					Distance:         deps.Distance.DistMax(),
					SimulationFailed: true,
					ParentIndex:      parentIdx,
					Err:              abcerrors.New(abcerrors.SimulationFailure, "sample_from_distribution reported failure"),
				}
			}
			return worker.Result{Theta: candidate, Distance: deps.Distance.Distance(observations, data), ParentIndex: parentIdx}
		}, deps.Backend.Parallelize(rngSeeds))
		results := deps.Backend.Collect(tasks)

		for i, r := range results {
			priorNew := deps.Graph.PDFOfPrior(r.Theta)
			denom := 0.0
			for k := range thetas {
				denom += weights[k] * deps.Kernel.PDF(mapping, deps.Dims, thetas, k, r.Theta)
			}
			w := 0.0
			if denom > 0 {
				w = priorNew / denom
			}
			replenished[i] = apmcParticle{theta: r.Theta, dist: r.Distance, weight: w}
		}

		below := 0
		for _, p := range replenished {
			if p.dist < prevEps {
				below++
			}
		}
		acceptanceProb := 0.0
		if len(replenished) > 0 {
			acceptanceProb = float64(below) / float64(len(replenished))
		}

		full := append(append([]apmcParticle{}, survivors...), replenished...)
		normalizeAPMCWeights(full)
		sort.Slice(full, func(a, b int) bool { return full[a].dist < full[b].dist })
		fullPop = full

		alphaCount = int(math.Ceil(cfg.Alpha * float64(len(full))))
		if alphaCount < 1 {
			alphaCount = 1
		}
		survivors = full[:alphaCount]
		prevEps = eps
		eps = survivors[len(survivors)-1].dist

		isFinal := step == cfg.Steps-1
		j.Record(journal.Entry{Parameters: extractAPMCThetas(survivors), Weights: extractAPMCWeights(survivors)}, isFinal)
		if acceptanceProb < cfg.AcceptanceCutoff {
			j.Finalize("acceptance-cutoff-reached")
			return j, nil
		}
	}

	j.Finalize("completed")
	return j, nil
}

func extractAPMCThetas(pop []apmcParticle) [][]float64 {
	out := make([][]float64, len(pop))
	for i, p := range pop {
		out[i] = p.theta
	}
	return out
}

func extractAPMCWeights(pop []apmcParticle) []float64 {
	out := make([]float64, len(pop))
	for i, p := range pop {
		out[i] = p.weight
	}
	return out
}

func normalizeAPMCWeights(pop []apmcParticle) {
	raw := extractAPMCWeights(pop)
	normalized, ok := abcstat.Normalize(raw)
	if !ok {
		for i := range pop {
			pop[i].weight = 1.0 / float64(len(pop))
		}
		return
	}
	for i := range pop {
		pop[i].weight = normalized[i]
	}
}

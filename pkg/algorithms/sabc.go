package algorithms

import (
	"math"
	"math/rand"

	"github.com/abcforge/abcsim/pkg/abcstat"
	"github.com/abcforge/abcsim/pkg/journal"
	"github.com/abcforge/abcsim/pkg/population"
	"github.com/abcforge/abcsim/pkg/worker"
)

// SABCConfig is Simulated-Annealing ABC's hyperparameters (§4.5.4).
type SABCConfig struct {
	Config
	Beta     float64
	Delta    float64
	V        float64
	ArCutoff float64
	Resample int
}

type sabcParticleResult struct {
	theta    []float64
	distance float64
	accepted bool
}

// SABC runs Simulated-Annealing ABC. It maintains a full N-particle state
// across steps, smoothing distances into an annealing schedule, perturbing
// every particle once per step with a Metropolis-style acceptance rule,
// and periodically resampling the whole population (§4.5.4,
// SPEC_FULL E3 item 3).
func SABC(cfg SABCConfig, deps Deps, observations [][]float64) (*journal.Journal, error) {
	mapping := deps.Graph.Mapping()
	if err := cfg.Validate(cfg.Steps, deps.Graph.Dimension()); err != nil {
		return nil, err
	}
	j, err := newJournal(cfg.FullOutput, map[string]any{"algorithm": "sabc", "n": cfg.N, "steps": cfg.Steps})
	if err != nil {
		return nil, err
	}

	store := population.New(observations)
	eps := cfg.EpsilonAt(0)

	// Step 0: sample every particle from the prior.
	ctx0 := newContext(deps, store, mapping, cfg.NSamplesPerParam, cfg.Epochs)
	init := deps.Backend.Collect(deps.Backend.Map(func(seed int64) worker.Result {
		return worker.Run(seed, true, ctx0)
	}, deps.Backend.Parallelize(seeds(cfg.Seed, 0, cfg.N))))

	params := make([][]float64, cfg.N)
	distances := make([]float64, cfg.N)
	weights := make([]float64, cfg.N)
	for i, r := range init {
		params[i] = r.Theta
		distances[i] = r.Distance
		weights[i] = 1.0 / float64(cfg.N)
	}
	j.Record(journal.Entry{Parameters: params, Weights: weights}, cfg.Steps == 1)
	acceptSinceResample := 0

	for step := 1; step < cfg.Steps; step++ {
		s := make([]float64, cfg.N)
		for i, d := range distances {
			s[i] = abcstat.SmoothedDistance(d, distances)
		}
		u := mean(s)
		eps = abcstat.SolveSABCEpsilon(cfg.V, u, eps)

		rawCovs := deps.Kernel.CalculateCov(mapping, deps.Dims, params, weights)
		for i, rawCov := range rawCovs {
			cov := abcstat.RidgeInflate(scaleSym(rawCov, cfg.Beta), 1e-4)
			deps.Kernel.SubKernels()[i].SetCovariance(cov)
		}

		store.UpdateBroadcast(population.Update{AcceptedParameters: params, AcceptedWeights: weights})
		ctx := newContext(deps, store, mapping, cfg.NSamplesPerParam, cfg.Epochs)
		sSnapshot, epsStep := s, eps

		task := func(seedBase int64) func(i int) sabcParticleResult {
			return func(i int) sabcParticleResult {
				rng := rand.New(rand.NewSource(seedBase + int64(i)))
				parentIdx := worker.ChooseParent(weights, rng)
				proposals := deps.Kernel.Update(mapping, deps.Dims, params, parentIdx, rng)
				candidate := deps.Graph.GetCorrectOrdering(proposals)
				priorNew := deps.Graph.PDFOfPrior(candidate)
				if priorNew == 0 {
					return sabcParticleResult{theta: params[i], distance: distances[i]}
				}
				ok, data := worker.SimulateCandidate(ctx, rng, candidate)
				if !ok {
					return sabcParticleResult{theta: params[i], distance: distances[i]}
				}
				distNew := deps.Distance.Distance(observations, data)
				sNew := abcstat.SmoothedDistance(distNew, distances)
				priorOld := deps.Graph.PDFOfPrior(params[i])
				ratio := 1.0
				if priorOld > 0 {
					ratio = priorNew / priorOld * math.Exp((sSnapshot[i]-sNew)/epsStep)
				}
				if rng.Float64() < math.Min(1, ratio) {
					return sabcParticleResult{theta: candidate, distance: distNew, accepted: true}
				}
				return sabcParticleResult{theta: params[i], distance: distances[i]}
			}
		}(cfg.Seed*7919 + int64(step)*104729)

		accepted := 0
		newParams := make([][]float64, cfg.N)
		newDistances := make([]float64, cfg.N)
		for i := 0; i < cfg.N; i++ {
			r := task(i)
			newParams[i], newDistances[i] = r.theta, r.distance
			if r.accepted {
				accepted++
			}
		}
		params, distances = newParams, newDistances
		acceptSinceResample += accepted
		acceptanceRate := float64(accepted) / float64(cfg.N)

		if acceptSinceResample >= cfg.Resample {
			resampleWeights := make([]float64, cfg.N)
			for i, sv := range s {
				resampleWeights[i] = math.Exp(-sv * cfg.Delta / u)
			}
			normalized, ok := abcstat.Normalize(resampleWeights)
			if ok {
				rng := rand.New(rand.NewSource(cfg.Seed + int64(step)))
				resampled := make([][]float64, cfg.N)
				resampledDist := make([]float64, cfg.N)
				for i := 0; i < cfg.N; i++ {
					idx := worker.ChooseParent(normalized, rng)
					resampled[i] = params[idx]
					resampledDist[i] = distances[idx]
				}
				params, distances = resampled, resampledDist
				eps *= 1 - cfg.Delta
			}
			acceptSinceResample = 0
		}

		for i := range weights {
			weights[i] = 1.0 / float64(cfg.N)
		}

		isFinal := step == cfg.Steps-1
		j.Record(journal.Entry{Parameters: params, Weights: weights}, isFinal)
		if acceptanceRate < cfg.ArCutoff {
			j.Finalize("ar-cutoff-reached")
			return j, nil
		}
	}

	j.Finalize("completed")
	return j, nil
}

func mean(xs []float64) float64 {
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}


package algorithms

import (
	"github.com/abcforge/abcsim/pkg/abcerrors"
	"github.com/abcforge/abcsim/pkg/abcstat"
	"github.com/abcforge/abcsim/pkg/journal"
	"github.com/abcforge/abcsim/pkg/population"
	"github.com/abcforge/abcsim/pkg/worker"
)

// PMCABCConfig adds PMC-ABC's hyperparameters to the shared Config.
type PMCABCConfig struct {
	Config
	// EpsilonPercentile in (0, 100] is the percentile of the step's
	// accepted distances used for the next threshold (§4.5.2).
	EpsilonPercentile float64
}

// PMCABC runs Population Monte Carlo ABC (§4.5.2). Generation 0 is a
// rejection pass at epsilon[0]; every later generation resamples by
// weight, perturbs, re-accepts at epsilon[step], and reweights by the
// importance ratio prior/kernel-mixture.
func PMCABC(cfg PMCABCConfig, deps Deps, observations [][]float64) (*journal.Journal, error) {
	mapping := deps.Graph.Mapping()
	if err := cfg.Validate(cfg.Steps, deps.Graph.Dimension()); err != nil {
		return nil, err
	}
	j, err := newJournal(cfg.FullOutput, map[string]any{"algorithm": "pmc-abc", "n": cfg.N, "steps": cfg.Steps})
	if err != nil {
		return nil, err
	}

	store := population.New(observations)
	var params [][]float64
	var weights []float64
	var distances []float64

	userSuppliedSchedule := len(cfg.EpsilonInit) == cfg.Steps

	for step := 0; step < cfg.Steps; step++ {
		eps := cfg.EpsilonAt(step)
		ctx := newContext(deps, store, mapping, cfg.NSamplesPerParam, cfg.Epochs)
		fromPrior := step == 0

		task := func(seed int64) worker.Result {
			attempt := int64(0)
			for {
				res := worker.Run(seed+attempt*999983, fromPrior, ctx)
				if !res.SimulationFailed && res.Distance <= eps {
					return res
				}
				attempt++
			}
		}

		input := deps.Backend.Parallelize(seeds(cfg.Seed, step, cfg.N))
		results := deps.Backend.Collect(deps.Backend.Map(task, input))

		newParams := make([][]float64, cfg.N)
		distances = make([]float64, cfg.N)
		for i, r := range results {
			newParams[i] = r.Theta
			distances[i] = r.Distance
		}

		newWeights := make([]float64, cfg.N)
		if fromPrior {
			for i := range newWeights {
				newWeights[i] = 1.0 / float64(cfg.N)
			}
		} else {
			for jIdx, theta := range newParams {
				prior := deps.Graph.PDFOfPrior(theta)
				denom := 0.0
				for i := range params {
					denom += weights[i] * deps.Kernel.PDF(mapping, deps.Dims, params, i, theta)
				}
				if denom == 0 {
					newWeights[jIdx] = 0
				} else {
					newWeights[jIdx] = prior / denom
				}
			}
			normalized, ok := abcstat.Normalize(newWeights)
			if !ok {
				j.FinalizeErr(abcerrors.New(abcerrors.DegenerateWeights, "reweighted particle weights summed to zero"))
				return j, nil
			}
			newWeights = normalized
		}

		params, weights = newParams, newWeights
		isFinal := step == cfg.Steps-1
		j.Record(journal.Entry{Parameters: params, Weights: weights}, isFinal)

		if isFinal {
			break
		}

		// Recompute covariance for the next generation's kernel: weighted
		// empirical covariance scaled by covFactor (§4.5.2).
		rawCov := deps.Kernel.CalculateCov(mapping, deps.Dims, params, weights)
		for i, cov := range rawCov {
			deps.Kernel.SubKernels()[i].SetCovariance(scaleSym(cov, cfg.CovFactor))
		}

		// Threshold recurrence (SPEC_FULL E3 item 2): pure percentile
		// unless the caller supplied a per-step schedule, in which case
		// the next threshold is the max of the user value and the
		// percentile.
		pct := abcstat.Percentile(distances, cfg.EpsilonPercentile/100)
		nextEps := pct
		if userSuppliedSchedule && step+1 < len(cfg.EpsilonInit) {
			if cfg.EpsilonInit[step+1] > nextEps {
				nextEps = cfg.EpsilonInit[step+1]
			}
		}
		if !userSuppliedSchedule {
			cfg.EpsilonInit = []float64{nextEps}
		} else {
			cfg.EpsilonInit[step+1] = nextEps
		}

		store.UpdateBroadcast(population.Update{AcceptedParameters: params, AcceptedWeights: weights})
	}

	j.Finalize("completed")
	return j, nil
}

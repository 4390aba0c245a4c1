package algorithms

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/abcforge/abcsim/pkg/abcerrors"
	"github.com/abcforge/abcsim/pkg/abcstat"
	"github.com/abcforge/abcsim/pkg/journal"
	"github.com/abcforge/abcsim/pkg/population"
	"github.com/abcforge/abcsim/pkg/worker"
)

// PMCConfig is PMC's hyperparameters; PMC never rejects on distance, so it
// reuses Config's Steps/N/CovFactor and never thresholds on EpsilonInit,
// though Validate still requires its length to be 1 or Steps.
type PMCConfig struct {
	Config
}

// noRejectDistance is a worker.Distance stub for PMC: PMC never rejects by
// distance, it reweights by approximate likelihood instead, so the scalar
// this returns is discarded by the driver.
type noRejectDistance struct{}

func (noRejectDistance) Distance(_, _ [][]float64) float64 { return 0 }
func (noRejectDistance) DistMax() float64                  { return math.MaxFloat64 }

// PMC runs Population Monte Carlo with an approximate likelihood in place
// of distance-thresholding (§4.5.3).
func PMC(cfg PMCConfig, deps Deps, likelihood worker.Likelihood, observations [][]float64) (*journal.Journal, error) {
	mapping := deps.Graph.Mapping()
	if err := cfg.Validate(cfg.Steps, deps.Graph.Dimension()); err != nil {
		return nil, err
	}
	deps.Distance = noRejectDistance{}

	j, err := newJournal(cfg.FullOutput, map[string]any{"algorithm": "pmc", "n": cfg.N, "steps": cfg.Steps})
	if err != nil {
		return nil, err
	}

	store := population.New(observations)
	var params [][]float64
	var weights []float64

	for step := 0; step < cfg.Steps; step++ {
		ctx := newContext(deps, store, mapping, cfg.NSamplesPerParam, cfg.Epochs)
		fromPrior := step == 0

		task := func(seed int64) worker.Result { return worker.Run(seed, fromPrior, ctx) }
		input := deps.Backend.Parallelize(seeds(cfg.Seed, step, cfg.N))
		results := deps.Backend.Collect(deps.Backend.Map(task, input))

		newParams := make([][]float64, cfg.N)
		newWeights := make([]float64, cfg.N)
		likelihoods := make([]float64, cfg.N)
		for i, r := range results {
			newParams[i] = r.Theta
			ll := likelihood.Likelihood(observations, r.SimulatedData)
			likelihoods[i] = ll
			if fromPrior {
				newWeights[i] = ll
				continue
			}
			prior := deps.Graph.PDFOfPrior(r.Theta)
			denom := 0.0
			for k := range params {
				denom += weights[k] * deps.Kernel.PDF(mapping, deps.Dims, params, k, r.Theta)
			}
			if denom == 0 {
				newWeights[i] = 0
			} else {
				newWeights[i] = ll * prior / denom
			}
		}

		normalized, ok := abcstat.Normalize(newWeights)
		if !ok {
			j.FinalizeErr(abcerrors.New(abcerrors.DegenerateWeights, "reweighted particle weights summed to zero"))
			return j, nil
		}
		params, weights = newParams, normalized

		isFinal := step == cfg.Steps-1
		j.Record(journal.Entry{Parameters: params, Weights: weights, OptValues: likelihoods}, isFinal)
		if isFinal {
			break
		}

		rawCovs := deps.Kernel.CalculateCov(mapping, deps.Dims, params, weights)
		for i, full := range rawCovs {
			deps.Kernel.SubKernels()[i].SetCovariance(diagonalCov(full, cfg.CovFactor))
		}
		store.UpdateBroadcast(population.Update{AcceptedParameters: params, AcceptedWeights: weights})
	}

	j.Finalize("completed")
	return j, nil
}

// diagonalCov zeroes a covariance matrix's off-diagonal entries and scales
// the diagonal by factor, the "diagonal scaling" rule in §4.5.3.
func diagonalCov(full mat.Symmetric, factor float64) *mat.SymDense {
	n := full.Symmetric()
	out := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		out.SetSym(i, i, full.At(i, i)*factor)
	}
	return out
}

package algorithms

import (
	"github.com/abcforge/abcsim/pkg/journal"
	"github.com/abcforge/abcsim/pkg/population"
	"github.com/abcforge/abcsim/pkg/worker"
)

// Rejection runs plain Rejection ABC (§4.5.1): generation 0 only, every
// worker repeatedly draws from the prior and simulates until its distance
// is at most epsilon. Weights are uniform.
func Rejection(cfg Config, deps Deps, observations [][]float64) (*journal.Journal, error) {
	mapping := deps.Graph.Mapping()
	if err := cfg.Validate(1, deps.Graph.Dimension()); err != nil {
		return nil, err
	}
	store := population.New(observations)
	ctx := newContext(deps, store, mapping, cfg.NSamplesPerParam, cfg.Epochs)
	eps := cfg.EpsilonAt(0)

	task := func(seed int64) worker.Result {
		attempt := int64(0)
		for {
			res := worker.Run(seed+attempt*999983, true, ctx)
			if !res.SimulationFailed && res.Distance <= eps {
				return res
			}
			attempt++
		}
	}

	input := deps.Backend.Parallelize(seeds(cfg.Seed, 0, cfg.N))
	results := deps.Backend.Collect(deps.Backend.Map(task, input))

	params := make([][]float64, cfg.N)
	weights := make([]float64, cfg.N)
	for i, r := range results {
		params[i] = r.Theta
		weights[i] = 1.0 / float64(cfg.N)
	}

	j, err := newJournal(cfg.FullOutput, map[string]any{"algorithm": "rejection", "epsilon": eps, "n": cfg.N})
	if err != nil {
		return nil, err
	}
	j.Record(journal.Entry{Parameters: params, Weights: weights}, true)
	j.Finalize("completed")
	return j, nil
}

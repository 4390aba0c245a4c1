package algorithms

import (
	"math/rand"

	"github.com/abcforge/abcsim/pkg/abcerrors"
	"github.com/abcforge/abcsim/pkg/abcstat"
	"github.com/abcforge/abcsim/pkg/journal"
	"github.com/abcforge/abcsim/pkg/population"
	"github.com/abcforge/abcsim/pkg/worker"
)

// SMCABCConfig is Del Moral's SMC-ABC hyperparameters (§4.5.8). N samples
// per param is reused here as R, the number of simulated replicates kept
// per particle for the bisection-solved reweighting scheme.
type SMCABCConfig struct {
	Config
	EssAlpha     float64
	ResampleFrac float64
	EpsilonFinal float64
}

// SMCABC runs SMC-ABC. Every particle carries R simulated replicates
// (SPEC_FULL E3 item 7); each step solves a new epsilon via bisection so
// the reweighted effective sample size falls to ess_alpha times its
// current value, reweights using CountBelow instead of resimulating,
// resamples when ESS collapses, and finally MCMC-moves every particle
// with an acceptance ratio blending the replicate counts, prior, and
// kernel densities (§4.5.8).
func SMCABC(cfg SMCABCConfig, deps Deps, observations [][]float64) (*journal.Journal, error) {
	mapping := deps.Graph.Mapping()
	if err := cfg.Validate(cfg.Steps, deps.Graph.Dimension()); err != nil {
		return nil, err
	}
	j, err := newJournal(cfg.FullOutput, map[string]any{"algorithm": "smc-abc", "n": cfg.N})
	if err != nil {
		return nil, err
	}

	r := cfg.NSamplesPerParam
	if r < 1 {
		r = 1
	}

	store := population.NewSMCStore(observations)
	ctx := newContext(deps, &store.Store, mapping, 1, cfg.Epochs)

	thetas := make([][]float64, cfg.N)
	weights := make([]float64, cfg.N)
	store.SimulatedData = make([][][]float64, cfg.N)

	for i := 0; i < cfg.N; i++ {
		rng := rand.New(rand.NewSource(cfg.Seed + int64(i)))
		ctx.Graph.SampleFromPrior(rng)
		theta := ctx.Graph.GetParameters()
		thetas[i] = theta
		weights[i] = 1.0 / float64(cfg.N)
		store.SimulatedData[i] = replicateRows(ctx, rng, theta, r)
	}

	eps := cfg.EpsilonAt(0)
	rowDist := func(sim []float64) float64 {
		return deps.Distance.Distance(observations, [][]float64{sim})
	}
	countAt := func(i int, threshold float64) int {
		return store.CountBelow(i, threshold, rowDist)
	}

	j.Record(journal.Entry{Parameters: thetas, Weights: weights}, cfg.Steps == 1)

	for step := 1; step < cfg.Steps; step++ {
		currentESS := abcstat.ESS(weights)
		targetESS := cfg.EssAlpha * currentESS

		prevCounts := make([]int, cfg.N)
		for i := range prevCounts {
			prevCounts[i] = countAt(i, eps)
		}

		essAt := func(candidate float64) float64 {
			w := make([]float64, cfg.N)
			for i := range w {
				c := countAt(i, candidate)
				if prevCounts[i] == 0 {
					w[i] = 0
					continue
				}
				w[i] = weights[i] * float64(c) / float64(prevCounts[i])
			}
			norm, ok := abcstat.Normalize(w)
			if !ok {
				return 0
			}
			return abcstat.ESS(norm)
		}
		epsNew := abcstat.Bisect(func(candidate float64) float64 {
			return essAt(candidate) - targetESS
		}, cfg.EpsilonFinal, eps, 1e-6)

		newWeights := make([]float64, cfg.N)
		for i := range newWeights {
			c := countAt(i, epsNew)
			if prevCounts[i] == 0 {
				newWeights[i] = 0
				continue
			}
			newWeights[i] = weights[i] * float64(c) / float64(prevCounts[i])
		}
		normalized, ok := abcstat.Normalize(newWeights)
		if ok {
			weights = normalized
		} else {
			j.FinalizeErr(abcerrors.New(abcerrors.DegenerateWeights, "reweighted particle weights summed to zero"))
			return j, nil
		}

		if abcstat.ESS(weights) < cfg.ResampleFrac*float64(cfg.N) {
			rng := rand.New(rand.NewSource(cfg.Seed + int64(step)*31))
			newThetas := make([][]float64, cfg.N)
			newSim := make([][][]float64, cfg.N)
			for i := 0; i < cfg.N; i++ {
				idx := worker.ChooseParent(weights, rng)
				newThetas[i] = thetas[idx]
				newSim[i] = store.SimulatedData[idx]
				weights[i] = 1.0 / float64(cfg.N)
			}
			thetas = newThetas
			store.SimulatedData = newSim
		}

		rawCovs := deps.Kernel.CalculateCov(mapping, deps.Dims, thetas, weights)
		for i, rawCov := range rawCovs {
			deps.Kernel.SubKernels()[i].SetCovariance(scaleSym(rawCov, cfg.CovFactor))
		}
		store.UpdateBroadcast(population.Update{AcceptedParameters: thetas, AcceptedWeights: weights})

		moved := make([][]float64, cfg.N)
		movedSim := make([][][]float64, cfg.N)
		rng := rand.New(rand.NewSource(cfg.Seed + int64(step)*104729))
		for i := 0; i < cfg.N; i++ {
			proposals := deps.Kernel.Update(mapping, deps.Dims, thetas, i, rng)
			candidate := deps.Graph.GetCorrectOrdering(proposals)
			priorNew := deps.Graph.PDFOfPrior(candidate)
			if priorNew == 0 {
				moved[i], movedSim[i] = thetas[i], store.SimulatedData[i]
				continue
			}
			candidateRows := replicateRows(ctx, rng, candidate, r)
			candidateCount := countRowsBelow(candidateRows, observations, deps.Distance, epsNew)
			currentCount := countAt(i, epsNew)
			priorOld := deps.Graph.PDFOfPrior(thetas[i])
			kFwd := deps.Kernel.PDF(mapping, deps.Dims, thetas, i, candidate)
			kBwd := deps.Kernel.PDF(mapping, deps.Dims, [][]float64{candidate}, 0, thetas[i])
			accept := 0.0
			if priorOld > 0 && kFwd > 0 && currentCount > 0 {
				accept = priorNew / priorOld * kBwd / kFwd * float64(candidateCount) / float64(currentCount)
			}
			if accept > 1 {
				accept = 1
			}
			if rng.Float64() < accept {
				moved[i], movedSim[i] = candidate, candidateRows
			} else {
				moved[i], movedSim[i] = thetas[i], store.SimulatedData[i]
			}
		}
		thetas = moved
		store.SimulatedData = movedSim
		eps = epsNew

		isFinal := step == cfg.Steps-1 || eps <= cfg.EpsilonFinal
		j.Record(journal.Entry{Parameters: thetas, Weights: weights}, isFinal)
		if eps <= cfg.EpsilonFinal {
			j.Finalize("epsilon-final-reached")
			return j, nil
		}
	}

	j.Finalize("completed")
	return j, nil
}

// replicateRows draws r independent single-row simulations of theta, used
// as the replicate set SMC-ABC's reweighting counts against a shrinking
// epsilon without resimulating on every bisection step.
func replicateRows(ctx *worker.Context, rng *rand.Rand, theta []float64, r int) [][]float64 {
	out := make([][]float64, 0, r)
	for k := 0; k < r; k++ {
		if ok, data := worker.SimulateCandidate(ctx, rng, theta); ok && len(data) > 0 {
			out = append(out, data[0])
		}
	}
	return out
}

func countRowsBelow(rows [][]float64, observations [][]float64, distance worker.Distance, eps float64) int {
	count := 0
	for _, row := range rows {
		if distance.Distance(observations, [][]float64{row}) < eps {
			count++
		}
	}
	return count
}

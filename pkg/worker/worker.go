// Package worker implements the Worker Task (C4): the stateless per-particle
// closure the backend maps over a seed array. Each call reseeds its own RNG,
// chooses a parent particle, proposes via the kernel, simulates, and scores
// against observations — never touching the shared store.
package worker

import (
	"math/rand"
	"sync"

	"github.com/abcforge/abcsim/pkg/abcerrors"
	"github.com/abcforge/abcsim/pkg/graph"
	"github.com/abcforge/abcsim/pkg/kernel"
	"github.com/abcforge/abcsim/pkg/population"
)

// Distance is the caller-supplied distance protocol (§6): out of scope for
// this module, specified only via interface.
type Distance interface {
	Distance(observed, simulated [][]float64) float64
	DistMax() float64
}

// Likelihood is the caller-supplied approximate-likelihood protocol, used
// by the PMC driver in place of Distance.
type Likelihood interface {
	Likelihood(observed, simulated [][]float64) float64
}

// Context is the immutable, broadcast view a worker reads. It is built once
// per generation by the driver and never mutated once handed to workers.
//
// §5's shared-resource policy calls for the graph object to be duplicated
// per worker (serialized for distributed backends, cloned for threaded
// ones); the model-node protocol has no Clone operation, so a single Graph
// is instead shared across concurrently running workers and GraphMu
// serializes access to it. This trades some of the backend's parallelism
// for correctness without requiring every caller-supplied Node to grow a
// cloning method.
type Context struct {
	Graph            *graph.Graph
	GraphMu          *sync.Mutex
	Kernel           *kernel.Composite
	Store            *population.Store
	Mapping          []graph.MappingEntry
	Dims             map[graph.NodeID]int
	Distance         Distance
	NSamplesPerParam int
	Epochs           int
}

func (ctx *Context) lock() {
	if ctx.GraphMu != nil {
		ctx.GraphMu.Lock()
	}
}

func (ctx *Context) unlock() {
	if ctx.GraphMu != nil {
		ctx.GraphMu.Unlock()
	}
}

// Result is the tuple a worker returns. Drivers read the subset of fields
// relevant to their algorithm (§4.5: some need AllDistances/Index, others
// need SimulatedData instead of Distance).
type Result struct {
	Theta             []float64
	Distance          float64
	SimulatedData     [][]float64
	ParentIndex       int
	ProposalExhausted bool
	SimulationFailed  bool
	// Err names which error kind ProposalExhausted/SimulationFailed
	// corresponds to (§7 sentinel promotion), for callers that want the
	// typed reason rather than just the flag.
	Err *abcerrors.Error
}

// Run executes one worker task. fromPrior selects generation 0's behavior
// (draw unconditionally from the prior); otherwise the parent particle's
// index is drawn by weighted resampling before perturbation — see
// ChooseParent.
func Run(seed int64, fromPrior bool, ctx *Context) Result {
	rng := rand.New(rand.NewSource(seed))

	var theta []float64
	var parentIndex int
	var exhausted bool
	var lastRejection *abcerrors.Error

	ctx.lock()
	if fromPrior {
		ctx.Graph.SampleFromPrior(rng)
		theta = ctx.Graph.GetParameters()
	} else {
		parentIndex = ChooseParent(ctx.Store.AcceptedWeights, rng)
		theta, exhausted, lastRejection = propose(ctx, parentIndex, rng)
	}
	ok, data := simulateRoots(ctx.Graph, theta, ctx.NSamplesPerParam, rng)
	ctx.unlock()

	res := Result{Theta: theta, ParentIndex: parentIndex, ProposalExhausted: exhausted}
	if exhausted {
		if lastRejection != nil {
			res.Err = abcerrors.Wrap(abcerrors.ProposalExhausted, "perturbation retries exhausted, kept parent", lastRejection)
		} else {
			res.Err = abcerrors.New(abcerrors.ProposalExhausted, "perturbation retries exhausted, kept parent")
		}
	}
	if !ok {
		res.SimulationFailed = true
		res.Err = abcerrors.New(abcerrors.SimulationFailure, "sample_from_distribution reported failure")
		res.Distance = ctx.Distance.DistMax()
		return res
	}
	res.SimulatedData = data
	res.Distance = ctx.Distance.Distance(ctx.Store.Observations, data)
	return res
}

// propose perturbs the parent particle via the kernel, retrying until the
// prior support accepts the candidate or the epoch budget is exhausted
// (ProposalExhausted, §7). On exhaustion the unperturbed parent is kept.
func propose(ctx *Context, parentIndex int, rng *rand.Rand) (theta []float64, exhausted bool, lastRejection *abcerrors.Error) {
	for attempt := 0; attempt < ctx.Epochs; attempt++ {
		proposals := ctx.Kernel.Update(ctx.Mapping, ctx.Dims, ctx.Store.AcceptedParameters, parentIndex, rng)
		candidate := ctx.Graph.GetCorrectOrdering(proposals)
		if ctx.Graph.PDFOfPrior(candidate) == 0 {
			continue
		}
		if ok, _ := ctx.Graph.SetParameters(candidate); ok {
			return candidate, false, nil
		}
		// A node's set_parameters rejected a proposal the prior otherwise
		// accepted; retried silently, same as a prior-support miss.
		lastRejection = abcerrors.New(abcerrors.ModelRejection, "a node rejected a proposed value")
	}
	parent := ctx.Store.AcceptedParameters[parentIndex]
	ctx.Graph.SetParameters(parent)
	return parent, true, lastRejection
}

// simulateRoots draws NSamplesPerParam observations from every root model,
// concatenating each root's per-sample output column-wise. It first installs
// theta on the graph with SetParameters and reports failure if a node
// rejects it.
func simulateRoots(g *graph.Graph, theta []float64, n int, rng *rand.Rand) (bool, [][]float64) {
	if ok, _ := g.SetParameters(theta); !ok {
		return false, nil
	}
	samples := make([][]float64, n)
	for i := range samples {
		samples[i] = []float64{}
	}
	for _, rid := range g.Roots() {
		node, ok := g.Node(rid)
		if !ok {
			return false, nil
		}
		simOK, data := node.SampleFromDistribution(n, rng)
		if !simOK {
			return false, nil
		}
		for i := 0; i < n; i++ {
			samples[i] = append(samples[i], data[i]...)
		}
	}
	return true, samples
}

// SimulateCandidate installs candidate on ctx.Graph and draws
// NSamplesPerParam observations from its root models, serialized behind
// ctx's graph mutex. It is the direct-simulation primitive the
// full-population drivers (SABC, ABCsubsim, RSMC-ABC, APMC-ABC, SMC-ABC)
// use instead of the prior-draw/resample flow in Run.
func SimulateCandidate(ctx *Context, rng *rand.Rand, candidate []float64) (bool, [][]float64) {
	ctx.lock()
	defer ctx.unlock()
	return simulateRoots(ctx.Graph, candidate, ctx.NSamplesPerParam, rng)
}

// ChooseParent draws an index in [0, len(weights)) with probability
// proportional to weights, via inverse-CDF sampling. An empty or
// all-zero weight vector falls back to a uniform draw.
func ChooseParent(weights []float64, rng *rand.Rand) int {
	n := len(weights)
	if n == 0 {
		return 0
	}
	total := 0.0
	for _, w := range weights {
		total += w
	}
	if total <= 0 {
		return rng.Intn(n)
	}
	target := rng.Float64() * total
	cum := 0.0
	for i, w := range weights {
		cum += w
		if target <= cum {
			return i
		}
	}
	return n - 1
}

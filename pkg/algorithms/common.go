// Package algorithms implements the Algorithm Drivers (C5): the eight
// sequential likelihood-free inference variants built on the shared
// initialize → broadcast → map → collect → update → record → check
// termination loop skeleton (§4.5).
package algorithms

import (
	"sync"

	"gonum.org/v1/gonum/mat"

	"github.com/abcforge/abcsim/pkg/abcerrors"
	"github.com/abcforge/abcsim/pkg/backend"
	"github.com/abcforge/abcsim/pkg/graph"
	"github.com/abcforge/abcsim/pkg/journal"
	"github.com/abcforge/abcsim/pkg/kernel"
	"github.com/abcforge/abcsim/pkg/population"
	"github.com/abcforge/abcsim/pkg/worker"
)

// scaleSym returns factor * m as a new dense symmetric matrix.
func scaleSym(m mat.Symmetric, factor float64) *mat.SymDense {
	n := m.Symmetric()
	out := mat.NewSymDense(n, nil)
	out.CopySym(m)
	out.ScaleSym(factor, out)
	return out
}

// Config carries the hyperparameters common to every driver; concrete
// drivers embed it and add their own fields.
type Config struct {
	N                int
	Steps            int
	EpsilonInit      []float64
	NSamplesPerParam int
	Epochs           int
	FullOutput       int
	Seed             int64
	CovFactor        float64
}

// Validate checks the InvalidConfiguration conditions raised before
// generation 0 (§7): len(epsilon_init) not in {1, steps}, N <= 0, D == 0.
func (c Config) Validate(steps, dimension int) error {
	if c.N <= 0 {
		return abcerrors.New(abcerrors.InvalidConfiguration, "algorithms: N must be positive")
	}
	if dimension == 0 {
		return abcerrors.New(abcerrors.InvalidConfiguration, "algorithms: model has zero free dimension")
	}
	if len(c.EpsilonInit) != 1 && len(c.EpsilonInit) != steps {
		return abcerrors.New(abcerrors.InvalidConfiguration, "algorithms: len(epsilon_init) must be 1 or steps")
	}
	if c.Epochs <= 0 {
		return abcerrors.New(abcerrors.InvalidConfiguration, "algorithms: epochs must be positive")
	}
	return nil
}

// EpsilonAt returns the configured epsilon for step t, broadcasting a
// single value across all steps when EpsilonInit has length 1.
func (c Config) EpsilonAt(t int) float64 {
	if len(c.EpsilonInit) == 1 {
		return c.EpsilonInit[0]
	}
	return c.EpsilonInit[t]
}

// Deps bundles the shared collaborators every driver needs: the graph
// runtime, a kernel, a backend, and the distance protocol. Kernel must be
// non-nil: the drivers do not build a default kernel themselves, so a
// caller without its own kernel passes the one kernel.NewDefaultKernel
// returns. Deps is built once by the caller and reused across the whole run.
type Deps struct {
	Graph    *graph.Graph
	Kernel   *kernel.Composite
	Backend  backend.Backend
	Distance worker.Distance
	Dims     map[graph.NodeID]int
	// graphMu serializes graph access across concurrently running workers
	// (see worker.Context's doc comment). Lazily created so callers never
	// need to construct it themselves.
	graphMu *sync.Mutex
}

func (d *Deps) mutex() *sync.Mutex {
	if d.graphMu == nil {
		d.graphMu = &sync.Mutex{}
	}
	return d.graphMu
}

// seeds builds a deterministic per-particle seed array for step t, derived
// from the top-level seed so two runs with the same top-level seed produce
// identical sequences (§5 determinism, P5).
func seeds(topLevel int64, step, n int) []int64 {
	out := make([]int64, n)
	for i := range out {
		out[i] = topLevel*1_000_003 + int64(step)*10_007 + int64(i)
	}
	return out
}

// newContext assembles a worker.Context for the given step's accepted
// population.
func newContext(d Deps, store *population.Store, mapping []graph.MappingEntry, nSamples, epochs int) *worker.Context {
	return &worker.Context{
		Graph:            d.Graph,
		GraphMu:          d.mutex(),
		Kernel:           d.Kernel,
		Store:            store,
		Mapping:          mapping,
		Dims:             d.Dims,
		Distance:         d.Distance,
		NSamplesPerParam: nSamples,
		Epochs:           epochs,
	}
}

// newJournal is a tiny shared helper: build a Journal or panic-free error
// for a driver's sample() entry point.
func newJournal(fullOutput int, config map[string]any) (*journal.Journal, error) {
	return journal.New(fullOutput, config)
}

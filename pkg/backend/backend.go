// Package backend implements the Backend Interface (C6): broadcast,
// parallelize, map, collect. The only implementation shipped is Local, a
// single-process worker pool; thread-pool and distributed (MPI-style)
// backends are out of scope (§1) and are represented only by the Backend
// interface they would also satisfy.
package backend

import (
	"sync"

	"github.com/JekaMas/workerpool"

	"github.com/abcforge/abcsim/pkg/worker"
)

// Handle is a broadcast value readable by every worker without re-shipping
// it per task — dropping the handle releases the slot for the next
// generation (§9 "Broadcast handles").
type Handle struct {
	value *worker.Context
}

// Value reads the broadcast context.
func (h *Handle) Value() *worker.Context { return h.value }

// Backend is the four-operation abstraction every driver depends on. fn
// passed to Map is conceptually serialized once per worker, not once per
// element, matching the contract in §4.6; the Local implementation below
// achieves this by sharing the same closure across all pool workers.
type Backend interface {
	Broadcast(ctx *worker.Context) *Handle
	Parallelize(seeds []int64) []int64
	Map(fn func(seed int64) worker.Result, seeds []int64) []worker.Result
	Collect(results []worker.Result) []worker.Result
}

// Local runs the map phase on a bounded goroutine pool.
type Local struct {
	concurrency int
}

// NewLocal builds a Local backend with the given worker count. A
// non-positive count means "one worker per call to Map", useful in tests
// that want strictly sequential, allocation-light execution.
func NewLocal(concurrency int) *Local {
	return &Local{concurrency: concurrency}
}

func (l *Local) Broadcast(ctx *worker.Context) *Handle {
	return &Handle{value: ctx}
}

// Parallelize distributes a seed array across the backend; for Local this
// is the identity — the pool partitions work at Map time instead.
func (l *Local) Parallelize(seeds []int64) []int64 { return seeds }

// Map runs fn over every seed, preserving input order in the output slice
// regardless of completion order (§5 ordering requirement).
func (l *Local) Map(fn func(seed int64) worker.Result, seeds []int64) []worker.Result {
	results := make([]worker.Result, len(seeds))
	workers := l.concurrency
	if workers <= 0 {
		workers = 1
	}
	pool := workerpool.New(workers)
	var wg sync.WaitGroup
	wg.Add(len(seeds))
	for i, seed := range seeds {
		i, seed := i, seed
		pool.Submit(func() {
			defer wg.Done()
			results[i] = fn(seed)
		})
	}
	wg.Wait()
	pool.StopWait()
	return results
}

// Collect is the suspension point the driver blocks on until every worker
// has returned; for Local the results are already materialized by Map.
func (l *Local) Collect(results []worker.Result) []worker.Result { return results }

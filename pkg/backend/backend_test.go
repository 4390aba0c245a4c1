package backend_test

import (
	"testing"

	"github.com/abcforge/abcsim/pkg/backend"
	"github.com/abcforge/abcsim/pkg/worker"
)

func TestLocal_MapPreservesOrder(t *testing.T) {
	b := backend.NewLocal(4)
	seeds := b.Parallelize([]int64{10, 20, 30, 40, 50})
	results := b.Collect(b.Map(func(seed int64) worker.Result {
		return worker.Result{Distance: float64(seed)}
	}, seeds))

	want := []float64{10, 20, 30, 40, 50}
	for i, r := range results {
		if r.Distance != want[i] {
			t.Errorf("index %d: expected %v, got %v", i, want[i], r.Distance)
		}
	}
}

func TestLocal_BroadcastRoundTrip(t *testing.T) {
	b := backend.NewLocal(1)
	ctx := &worker.Context{NSamplesPerParam: 3}
	h := b.Broadcast(ctx)
	if h.Value().NSamplesPerParam != 3 {
		t.Errorf("expected broadcast context round trip, got %+v", h.Value())
	}
}

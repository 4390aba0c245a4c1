package abcstat_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/abcforge/abcsim/pkg/abcstat"
)

func TestPercentile_Median(t *testing.T) {
	got := abcstat.Percentile([]float64{4, 1, 3, 2}, 0.5)
	if got < 2 || got > 3 {
		t.Errorf("expected median around 2-3, got %v", got)
	}
}

func TestESS_UniformWeights(t *testing.T) {
	w := []float64{0.25, 0.25, 0.25, 0.25}
	require.InDelta(t, 4.0, abcstat.ESS(w), 1e-9)
}

func TestNormalize_DegenerateWeights(t *testing.T) {
	_, ok := abcstat.Normalize([]float64{0, 0, 0})
	if ok {
		t.Fatal("expected Normalize to report degenerate weights")
	}
}

func TestNormalize_SumsToOne(t *testing.T) {
	out, ok := abcstat.Normalize([]float64{1, 1, 2})
	if !ok {
		t.Fatal("unexpected degenerate weights")
	}
	sum := 0.0
	for _, w := range out {
		sum += w
	}
	require.InDelta(t, 1.0, sum, 1e-9)
}

func TestBisect_FindsRoot(t *testing.T) {
	f := func(x float64) float64 { return x*x - 2 }
	root := abcstat.Bisect(f, 0, 2, 1e-9)
	require.InDelta(t, math.Sqrt2, root, 1e-4)
}

func TestSolveSABCEpsilon_Monotone(t *testing.T) {
	e1 := abcstat.SolveSABCEpsilon(0.3, 1.0, 10)
	e2 := abcstat.SolveSABCEpsilon(0.3, 0.5, 10)
	if e2 >= e1 {
		t.Errorf("expected smaller target to produce smaller epsilon: e1=%v e2=%v", e1, e2)
	}
}

func TestAdaptiveR_ClippedToOne(t *testing.T) {
	if got := abcstat.AdaptiveR(0, 0.01); got != 1 {
		t.Errorf("expected clip to 1 for pAccept=0, got %d", got)
	}
	if got := abcstat.AdaptiveR(0.9, 0.01); got < 1 {
		t.Errorf("expected R >= 1, got %d", got)
	}
}

func TestSmoothedDistance_BelowMin(t *testing.T) {
	all := []float64{1, 2, 3}
	want := 0.5 / 1 * (1.0 / 3.0)
	require.InDelta(t, want, abcstat.SmoothedDistance(0.5, all), 1e-12)
}

func TestSmoothedDistance_AboveMin(t *testing.T) {
	all := []float64{1, 2, 3}
	require.InDelta(t, 2.0/3.0, abcstat.SmoothedDistance(2.5, all), 1e-12)
}

package worker_test

import (
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/abcforge/abcsim/internal/models"
	"github.com/abcforge/abcsim/pkg/graph"
	"github.com/abcforge/abcsim/pkg/kernel"
	"github.com/abcforge/abcsim/pkg/population"
	"github.com/abcforge/abcsim/pkg/worker"
)

func identitySym(n int) *mat.SymDense {
	data := make([]float64, n*n)
	for i := 0; i < n; i++ {
		data[i*n+i] = 1
	}
	return mat.NewSymDense(n, data)
}

func randSource(seed int64) *rand.Rand { return rand.New(rand.NewSource(seed)) }

type euclidean struct{}

func (euclidean) Distance(observed, simulated [][]float64) float64 {
	obsMean := mean(observed)
	simMean := mean(simulated)
	return math.Abs(obsMean - simMean)
}
func (euclidean) DistMax() float64 { return math.MaxFloat64 }

func mean(rows [][]float64) float64 {
	sum := 0.0
	for _, r := range rows {
		sum += r[0]
	}
	return sum / float64(len(rows))
}

func buildContext(t *testing.T) (*worker.Context, *graph.Graph) {
	t.Helper()
	mu := models.NewUniform(1, -10, 10)
	sigma := models.NewHyperparameter(2, 1.0)
	normal := models.NewNormal(3, mu, sigma)
	g, err := graph.New([]graph.Node{mu, sigma, normal}, []graph.NodeID{3})
	if err != nil {
		t.Fatal(err)
	}
	mapping := g.Mapping()
	dims := map[graph.NodeID]int{1: 1}

	sk := kernel.NewMultivariateNormal([]graph.NodeID{1}, []int{1})
	sk.SetCovariance(identitySym(1))
	comp, err := kernel.NewComposite([]kernel.SubKernel{sk})
	if err != nil {
		t.Fatal(err)
	}

	store := population.New([][]float64{{0.0}})
	store.UpdateBroadcast(population.Update{
		AcceptedParameters: [][]float64{{1.0}, {2.0}},
		AcceptedWeights:    []float64{0.5, 0.5},
	})

	return &worker.Context{
		Graph:            g,
		Kernel:           comp,
		Store:            store,
		Mapping:          mapping,
		Dims:             dims,
		Distance:         euclidean{},
		NSamplesPerParam: 10,
		Epochs:           10,
	}, g
}

func TestRun_FromPrior(t *testing.T) {
	ctx, _ := buildContext(t)
	res := worker.Run(1, true, ctx)
	if len(res.Theta) != 1 {
		t.Fatalf("expected a scalar theta, got %v", res.Theta)
	}
	if res.Theta[0] < -10 || res.Theta[0] > 10 {
		t.Errorf("theta outside prior support: %v", res.Theta)
	}
	if res.SimulationFailed {
		t.Errorf("unexpected simulation failure")
	}
}

func TestRun_Perturbation(t *testing.T) {
	ctx, _ := buildContext(t)
	res := worker.Run(2, false, ctx)
	if res.SimulationFailed {
		t.Fatalf("unexpected simulation failure")
	}
	if res.ProposalExhausted {
		t.Fatalf("did not expect proposal exhaustion with a wide prior")
	}
}

func TestChooseParent_UniformFallbackOnZeroWeights(t *testing.T) {
	idx := worker.ChooseParent([]float64{0, 0, 0}, randSource(5))
	if idx < 0 || idx >= 3 {
		t.Fatalf("expected an in-range index, got %d", idx)
	}
}

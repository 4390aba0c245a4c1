package kernel_test

import (
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/abcforge/abcsim/internal/models"
	"github.com/abcforge/abcsim/pkg/graph"
	"github.com/abcforge/abcsim/pkg/kernel"
)

func buildGraphAndMapping(t *testing.T) (*graph.Graph, []graph.MappingEntry, map[graph.NodeID]int) {
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
	return g, mapping, dims
}

func TestNewComposite_RejectsOverlappingNodes(t *testing.T) {
	a := kernel.NewMultivariateNormal([]graph.NodeID{1}, []int{1})
	b := kernel.NewMultivariateNormal([]graph.NodeID{1}, []int{1})
	if _, err := kernel.NewComposite([]kernel.SubKernel{a, b}); err == nil {
		t.Fatal("expected disjointness error")
	}
}

func TestMultivariateNormal_PerturbAndPDF(t *testing.T) {
	sk := kernel.NewMultivariateNormal([]graph.NodeID{1}, []int{1})
	cov := identitySym(1)
	sk.SetCovariance(cov)

	rng := rand.New(rand.NewSource(7))
	out := sk.Perturb(rng, []float64{0})
	if len(out) != 1 {
		t.Fatalf("expected length-1 proposal, got %v", out)
	}
	if p := sk.PDF([]float64{0}, []float64{0}); p <= 0 {
		t.Errorf("expected positive density at the mean, got %v", p)
	}
}

func TestComposite_UpdateRoundTripsThroughMapping(t *testing.T) {
	_, mapping, dims := buildGraphAndMapping(t)
	sk := kernel.NewMultivariateNormal([]graph.NodeID{1}, []int{1})
	sk.SetCovariance(identitySym(1))
	comp, err := kernel.NewComposite([]kernel.SubKernel{sk})
	if err != nil {
		t.Fatal(err)
	}
	rng := rand.New(rand.NewSource(3))
	accepted := [][]float64{{2.0}}
	proposals := comp.Update(mapping, dims, accepted, 0, rng)
	if len(proposals) != 1 || proposals[0].Node != 1 {
		t.Fatalf("expected one proposal for node 1, got %v", proposals)
	}
}

func TestRandomWalk_PDFSymmetricAndBounded(t *testing.T) {
	sk := kernel.NewRandomWalk([]graph.NodeID{1}, []int{1})
	if p := sk.PDF([]float64{0}, []float64{1}); p != 1.0/3.0 {
		t.Errorf("expected 1/3 for a single step, got %v", p)
	}
	if p := sk.PDF([]float64{0}, []float64{5}); p != 0 {
		t.Errorf("expected 0 density for an impossible jump, got %v", p)
	}
}

// identitySym is a tiny test helper building an n x n identity covariance.
func identitySym(n int) *mat.SymDense {
	data := make([]float64, n*n)
	for i := 0; i < n; i++ {
		data[i*n+i] = 1
	}
	return mat.NewSymDense(n, data)
}

package graph_test

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/abcforge/abcsim/internal/models"
	"github.com/abcforge/abcsim/pkg/abcerrors"
	"github.com/abcforge/abcsim/pkg/graph"
)

// buildScalarNormal wires Normal(mu, 1) with mu ~ Uniform(-10, 10), the
// scenario used across the end-to-end tests (S1 in the design notes).
func buildScalarNormal() (*graph.Graph, *models.Uniform, *models.Normal) {
	mu := models.NewUniform(1, -10, 10)
	sigma := models.NewHyperparameter(2, 1.0)
	normal := models.NewNormal(3, mu, sigma)

	g, err := graph.New([]graph.Node{mu, sigma, normal}, []graph.NodeID{3})
	if err != nil {
		panic(err)
	}
	return g, mu, normal
}

func TestNew_UnknownRoot(t *testing.T) {
	mu := models.NewUniform(1, -10, 10)
	_, err := graph.New([]graph.Node{mu}, []graph.NodeID{99})
	if !abcerrors.Is(err, abcerrors.InvalidConfiguration) {
		t.Fatalf("expected InvalidConfiguration, got %v", err)
	}
}

// cyclicNode is a minimal fixture whose Parents() reports itself, to drive
// the acyclicity check independent of models.Normal's fixed shape.
type cyclicNode struct{ id graph.NodeID }

func (c *cyclicNode) ID() graph.NodeID           { return c.id }
func (c *cyclicNode) Dimension() int             { return 1 }
func (c *cyclicNode) Kind() graph.Kind           { return graph.KindFree }
func (c *cyclicNode) Parents() []graph.ParentRef { return []graph.ParentRef{{ID: c.id}} }
func (c *cyclicNode) SampleParameters(_ *rand.Rand) bool { return true }
func (c *cyclicNode) SetParameters(_ []float64) bool     { return true }
func (c *cyclicNode) GetParameters() []float64           { return []float64{0} }
func (c *cyclicNode) PDF(_ []float64) float64            { return 1 }
func (c *cyclicNode) SampleFromDistribution(_ int, _ *rand.Rand) (bool, [][]float64) {
	return false, nil
}

func TestNew_Cyclic(t *testing.T) {
	n := &cyclicNode{id: 1}
	_, err := graph.New([]graph.Node{n}, []graph.NodeID{1})
	var ae *abcerrors.Error
	if !errors.As(err, &ae) || ae.Kind != abcerrors.InvalidConfiguration {
		t.Fatalf("expected InvalidConfiguration cycle error, got %v", err)
	}
}

func TestMapping_ExcludesRootsAndHyperparameters(t *testing.T) {
	g, _, _ := buildScalarNormal()
	mapping := g.Mapping()
	if len(mapping) != 1 {
		t.Fatalf("expected exactly one mapped node (mu), got %d: %v", len(mapping), mapping)
	}
	if mapping[0].Node != 1 {
		t.Errorf("expected mapped node to be mu (id=1), got %d", mapping[0].Node)
	}
	if g.Dimension() != 1 {
		t.Errorf("expected dimension 1, got %d", g.Dimension())
	}
}

func TestSampleFromPrior_StaysWithinSupport(t *testing.T) {
	g, mu, _ := buildScalarNormal()
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 100; i++ {
		g.SampleFromPrior(rng)
		v := mu.GetParameters()[0]
		if v < -10 || v > 10 {
			t.Fatalf("sampled mu=%v outside prior support", v)
		}
	}
}

// TestParameters_RoundTrip exercises property P2: GetParameters after
// SetParameters(v) returns v for any v within support.
func TestParameters_RoundTrip(t *testing.T) {
	g, _, _ := buildScalarNormal()
	want := []float64{3.5}
	ok, lastIndex := g.SetParameters(want)
	if !ok {
		t.Fatalf("SetParameters rejected an in-support value")
	}
	if lastIndex != 1 {
		t.Errorf("expected lastIndex 1, got %d", lastIndex)
	}
	got := g.GetParameters()
	if len(got) != 1 || got[0] != want[0] {
		t.Errorf("round trip mismatch: want %v, got %v", want, got)
	}
}

func TestSetParameters_RejectsOutOfSupport(t *testing.T) {
	g, _, _ := buildScalarNormal()
	ok, lastIndex := g.SetParameters([]float64{50})
	if ok {
		t.Fatalf("expected rejection of out-of-support value")
	}
	if lastIndex != 0 {
		t.Errorf("expected rejection at index 0, got %d", lastIndex)
	}
}

// TestPDFOfPrior_ZeroOutsideSupport exercises property P6.
func TestPDFOfPrior_ZeroOutsideSupport(t *testing.T) {
	g, _, _ := buildScalarNormal()
	if p := g.PDFOfPrior([]float64{0}); p <= 0 {
		t.Errorf("expected positive density inside support, got %v", p)
	}
	if p := g.PDFOfPrior([]float64{20}); p != 0 {
		t.Errorf("expected zero density outside support, got %v", p)
	}
}

func TestGetCorrectOrdering(t *testing.T) {
	g, _, _ := buildScalarNormal()
	out := g.GetCorrectOrdering([]graph.NodeValue{{Node: 1, Values: []float64{4.2}}})
	if len(out) != 1 || out[0] != 4.2 {
		t.Errorf("expected [4.2], got %v", out)
	}
}

func TestSimulate_FailsOnNonPositiveStddev(t *testing.T) {
	mu := models.NewUniform(1, -10, 10)
	badSigma := models.NewHyperparameter(2, -1.0)
	normal := models.NewNormal(3, mu, badSigma)
	g, err := graph.New([]graph.Node{mu, badSigma, normal}, []graph.NodeID{3})
	if err != nil {
		t.Fatal(err)
	}
	g.SetParameters([]float64{0})
	root, _ := g.Node(3)
	ok, data := root.SampleFromDistribution(5, rand.New(rand.NewSource(1)))
	if ok || data != nil {
		t.Fatalf("expected simulation failure for non-positive stddev")
	}
}

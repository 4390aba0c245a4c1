package main

import (
	"github.com/abcforge/abcsim/internal/models"
	"github.com/abcforge/abcsim/pkg/algorithms"
	"github.com/abcforge/abcsim/pkg/backend"
	"github.com/abcforge/abcsim/pkg/graph"
	"github.com/abcforge/abcsim/pkg/kernel"
)

// buildDemoDeps wires the scalar Normal(mu, 1), mu ~ Uniform(-10, 10) model
// used throughout the test suite into a runnable Deps value. abcsim ships
// no general model-definition format (§1 Non-goals exclude a modeling
// DSL/loader), so the CLI demonstrates the eight drivers against this one
// fixture model; embedding abcsim as a library is how a real model gets
// wired in.
func buildDemoDeps(concurrency int) (algorithms.Deps, [][]float64, error) {
	mu := models.NewUniform(1, -10, 10)
	sigma := models.NewHyperparameter(2, 1.0)
	normal := models.NewNormal(3, mu, sigma)

	g, err := graph.New([]graph.Node{mu, sigma, normal}, []graph.NodeID{3})
	if err != nil {
		return algorithms.Deps{}, nil, err
	}

	mapping := g.Mapping()
	dims := make(map[graph.NodeID]int, len(mapping))
	for _, m := range mapping {
		dims[m.Node] = 1
	}

	k, err := kernel.NewDefaultKernel(mapping, dims, func(id graph.NodeID) graph.Node {
		n, _ := g.Node(id)
		return n
	})
	if err != nil {
		return algorithms.Deps{}, nil, err
	}

	observations := [][]float64{{2.0}, {2.1}, {1.9}, {2.05}}

	deps := algorithms.Deps{
		Graph:    g,
		Kernel:   k,
		Backend:  backend.NewLocal(concurrency),
		Distance: models.EuclideanDistance{},
		Dims:     dims,
	}
	return deps, observations, nil
}

// Package graph implements the probabilistic-graph runtime: DFS traversal,
// parameter layout mapping, prior sampling and prior density evaluation
// over a DAG of model nodes. Concrete node types (Normal, Uniform,
// Hyperparameter, user models) are external collaborators; this package
// only depends on the Node protocol below.
//
// The visited-flag discipline required by the sampling walk (I1: every
// reachable node's visited flag is false on entry and exit of any public
// operation) is implemented with a traversal-local set rather than mutable
// state on the node itself — see graph.go. This removes the hidden mutable
// state that would otherwise force single-threaded graph operations.
package graph

import "math/rand"

// NodeID identifies a node within a Graph's arena. IDs are assigned by the
// caller (e.g. the order in which nodes are constructed) and must be
// unique within a single Graph.
type NodeID int

// Kind tags a node with its role in the DAG, read during mapping instead
// of a runtime type check against a concrete Hyperparameter type.
type Kind int

const (
	// KindFree is an ordinary free parameter: included in the mapping,
	// sampled from the prior, perturbed by kernels.
	KindFree Kind = iota
	// KindHyper is a fixed hyperparameter: not a free parameter, skipped
	// by the mapping and by Get/SetParameters.
	KindHyper
	// KindRootData is a data-generating root model (appears in the
	// driver's model list). Its own parameters are set entirely by its
	// parents; it is never itself assigned a mapping slot.
	KindRootData
)

// Discrete is an optional capability a Node may implement to mark its
// sample space as discrete rather than continuous. Nodes that don't
// implement it are treated as continuous (the common case).
type Discrete interface {
	IsDiscrete() bool
}

// ParentRef is one entry of a node's ordered parent list: the parent's ID
// plus which of the parent's outputs feeds this node.
type ParentRef struct {
	ID          NodeID
	OutputIndex int
}

// Node is the model node protocol (§6 EXTERNAL INTERFACES). Implementations
// are supplied by the caller; this package never constructs one.
type Node interface {
	ID() NodeID
	Dimension() int
	Kind() Kind
	Parents() []ParentRef

	// SampleParameters draws a new current_value consistent with the
	// parents' current values. Returns false iff the parents' values make
	// this node's distribution invalid (e.g. a negative variance).
	SampleParameters(rng *rand.Rand) bool

	// SetParameters accepts or rejects a proposed value for this node.
	SetParameters(values []float64) bool

	// GetParameters returns the node's current value.
	GetParameters() []float64

	// PDF evaluates this node's prior density at value, conditioned on
	// the parents' current values.
	PDF(value []float64) float64

	// SampleFromDistribution draws n data points from the node treated as
	// a data-generating root. ok is false on simulation failure.
	SampleFromDistribution(n int, rng *rand.Rand) (ok bool, data [][]float64)
}

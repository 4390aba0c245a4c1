package graph

import (
	"fmt"

	"github.com/abcforge/abcsim/pkg/abcerrors"
)

// errUnknownNode is returned when a root or parent reference points at a
// NodeID never registered in the graph's arena.
func errUnknownNode(id NodeID) error {
	return abcerrors.New(abcerrors.InvalidConfiguration, fmt.Sprintf("graph: unknown node id %d in parent reference", id))
}

// errCyclic is returned by New when the node set contains a cycle,
// violating invariant I5 (the DAG must be acyclic and finite).
func errCyclic() error {
	return abcerrors.New(abcerrors.InvalidConfiguration, "graph: cycle detected among nodes")
}

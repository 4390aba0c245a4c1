package graph

import "math/rand"

// MappingEntry is one (node, start_index) pair of the canonical flat
// parameter layout. Entries are produced in DFS leaves-first order: a
// node's parents are fully assigned their slots before the node itself.
type MappingEntry struct {
	Node  NodeID
	Start int
}

// NodeValue pairs a node with a proposed value for that node, the shape a
// perturbation kernel hands back from Update — arbitrary sub-kernel order,
// not yet reordered into the mapping's canonical order.
type NodeValue struct {
	Node   NodeID
	Values []float64
}

// Graph is the runtime over a DAG of Nodes rooted at a list of root
// models. It is built once by the caller and never mutated structurally
// afterward; only each Node's own current_value changes between samples.
type Graph struct {
	nodes   map[NodeID]Node
	roots   []NodeID
	mapping []MappingEntry // memoized by Mapping(); nil until first use
	dim     int
}

// New builds a Graph over the given arena of nodes, rooted at roots (the
// driver's data-generating root models — a subset of nodes). It returns an
// error if a parent reference points outside the arena or if the node set
// is cyclic (I5).
func New(nodes []Node, roots []NodeID) (*Graph, error) {
	g := &Graph{nodes: make(map[NodeID]Node, len(nodes)), roots: roots}
	for _, n := range nodes {
		g.nodes[n.ID()] = n
	}
	for _, r := range roots {
		if _, ok := g.nodes[r]; !ok {
			return nil, errUnknownNode(r)
		}
	}
	if err := g.checkAcyclic(); err != nil {
		return nil, err
	}
	return g, nil
}

// checkAcyclic walks every node with a recursion-stack set; revisiting a
// node already on the stack means a cycle.
func (g *Graph) checkAcyclic() error {
	onStack := make(map[NodeID]bool)
	done := make(map[NodeID]bool)
	var visit func(id NodeID) error
	visit = func(id NodeID) error {
		if done[id] {
			return nil
		}
		if onStack[id] {
			return errCyclic()
		}
		onStack[id] = true
		node, ok := g.nodes[id]
		if !ok {
			return errUnknownNode(id)
		}
		for _, p := range node.Parents() {
			if err := visit(p.ID); err != nil {
				return err
			}
		}
		onStack[id] = false
		done[id] = true
		return nil
	}
	for id := range g.nodes {
		if err := visit(id); err != nil {
			return err
		}
	}
	return nil
}

// SampleFromPrior repeatedly attempts a full DFS sampling of the graph
// until one attempt succeeds. There is no bound on attempts: callers rely
// on the prior's support being non-degenerate.
func (g *Graph) SampleFromPrior(rng *rand.Rand) {
	for {
		if g.sampleAttempt(g.roots, true, make(map[NodeID]bool), rng) {
			return
		}
	}
}

// sampleAttempt performs one DFS sampling pass. Parents are sampled before
// their children; a node already visited this attempt (a diamond parent
// shared by two children) is not resampled. Returns false as soon as any
// node rejects its parents' values, leaving the partial mutation in place
// — the caller discards the attempt and retries from scratch.
func (g *Graph) sampleAttempt(ids []NodeID, isRoot bool, visited map[NodeID]bool, rng *rand.Rand) bool {
	for _, id := range ids {
		node := g.nodes[id]
		for _, p := range node.Parents() {
			if !visited[p.ID] {
				visited[p.ID] = true
				if !g.sampleAttempt([]NodeID{p.ID}, false, visited, rng) {
					return false
				}
			}
		}
		if !isRoot {
			if !node.SampleParameters(rng) {
				return false
			}
		}
	}
	return true
}

// Mapping returns the canonical (node, start_index) list, computing it on
// first use and caching the result — the DAG's shape never changes after
// construction, so the mapping is stable for the graph's lifetime.
func (g *Graph) Mapping() []MappingEntry {
	if g.mapping == nil {
		g.mapping, g.dim = g.computeMapping()
	}
	return g.mapping
}

// Dimension returns D, the total flat-parameter length implied by the
// mapping (§3 invariant I3/I4 reference D).
func (g *Graph) Dimension() int {
	g.Mapping()
	return g.dim
}

// computeMapping performs a single leaves-first DFS from the roots,
// recording each non-root, non-hyperparameter node's slot the first time
// it is fully explored (i.e. after all of its own parents have already
// been assigned slots). A node reachable as a parent of more than one
// child is recorded exactly once.
func (g *Graph) computeMapping() ([]MappingEntry, int) {
	visited := make(map[NodeID]bool)
	var mapping []MappingEntry
	index := 0

	var visit func(id NodeID, isRoot bool)
	visit = func(id NodeID, isRoot bool) {
		node := g.nodes[id]
		for _, p := range node.Parents() {
			if !visited[p.ID] {
				visited[p.ID] = true
				visit(p.ID, false)
			}
		}
		if !isRoot && node.Kind() != KindHyper {
			mapping = append(mapping, MappingEntry{Node: id, Start: index})
			index += node.Dimension()
		}
	}
	for _, r := range g.roots {
		visit(r, true)
	}
	return mapping, index
}

// GetParameters collects GetParameters() from every non-root,
// non-hyperparameter node in mapping order, returning a flat vector of
// length Dimension().
func (g *Graph) GetParameters() []float64 {
	mapping := g.Mapping()
	out := make([]float64, 0, g.dim)
	for _, entry := range mapping {
		out = append(out, g.nodes[entry.Node].GetParameters()...)
	}
	return out
}

// SetParameters consumes values in mapping order, calling each node's
// SetParameters on its slice. It fails (returns ok=false) at the first
// node that rejects its slice, reporting the index last consumed; the
// partial mutation made before the failure is left in place, so the
// caller must not commit this particle.
func (g *Graph) SetParameters(values []float64) (ok bool, lastIndex int) {
	idx := 0
	for _, entry := range g.Mapping() {
		node := g.nodes[entry.Node]
		d := node.Dimension()
		if !node.SetParameters(values[idx : idx+d]) {
			return false, idx
		}
		idx += d
	}
	return true, idx
}

// PDFOfPrior returns the product of every mapped node's prior density,
// short-circuiting to 0 as soon as any factor is 0 ("outside support").
func (g *Graph) PDFOfPrior(values []float64) float64 {
	result := 1.0
	idx := 0
	for _, entry := range g.Mapping() {
		node := g.nodes[entry.Node]
		d := node.Dimension()
		p := node.PDF(values[idx : idx+d])
		idx += d
		if p == 0 {
			return 0
		}
		result *= p
	}
	return result
}

// GetCorrectOrdering reorders an arbitrary (node, values) ordering —
// typically produced by a composite kernel whose sub-kernels enumerate
// nodes in their own order — into the mapping's canonical DFS order, so
// the result can be consumed directly by SetParameters.
func (g *Graph) GetCorrectOrdering(proposals []NodeValue) []float64 {
	byNode := make(map[NodeID][]float64, len(proposals))
	for _, p := range proposals {
		byNode[p.Node] = p.Values
	}
	out := make([]float64, 0, g.Dimension())
	for _, entry := range g.Mapping() {
		out = append(out, byNode[entry.Node]...)
	}
	return out
}

// Roots returns the driver's root (data-generating) models, in the order
// supplied to New.
func (g *Graph) Roots() []NodeID {
	return g.roots
}

// Node looks up a registered node by ID.
func (g *Graph) Node(id NodeID) (Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

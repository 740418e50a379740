package engine

import (
	"fmt"
	"sort"

	"github.com/alexisbeaulieu97/diva/internal/pipeline"
	"github.com/alexisbeaulieu97/diva/internal/processor"
	divaerrors "github.com/alexisbeaulieu97/diva/pkg/errors"
)

// Node represents a processor vertex in the execution DAG.
type Node struct {
	ID         string
	Index      int
	Processor  processor.Processor
	DependsOn  []*Node
	Dependents []*Node
}

// Graph encapsulates the DAG structure, its execution order and levels.
type Graph struct {
	Nodes map[string]*Node
	// Order is a topological order; ties go to the node authored first.
	Order []string
	// Levels group nodes by longest distance from a source. Nodes of one
	// level never depend on each other.
	Levels [][]string
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{Nodes: make(map[string]*Node)}
}

// AddNode inserts a processor as a vertex in the graph. Insertion order is
// the authored order used to break ties.
func (g *Graph) AddNode(id string, proc processor.Processor) (*Node, error) {
	if proc == nil {
		return nil, divaerrors.NewExecutionError(0, id, fmt.Errorf("processor cannot be nil"))
	}
	if g.Nodes == nil {
		g.Nodes = make(map[string]*Node)
	}
	if _, exists := g.Nodes[id]; exists {
		return nil, divaerrors.NewValidationError("nodes", fmt.Sprintf("duplicate node id %q", id), nil)
	}

	node := &Node{ID: id, Index: len(g.Nodes), Processor: proc}
	g.Nodes[id] = node
	return node, nil
}

// AddEdge records that to reads from from. Parallel connections between the
// same pair collapse into one dependency.
func (g *Graph) AddEdge(from, to string) error {
	source, ok := g.Nodes[from]
	if !ok {
		return divaerrors.NewValidationError("edges", fmt.Sprintf("unknown node %q", from), nil)
	}
	target, ok := g.Nodes[to]
	if !ok {
		return divaerrors.NewValidationError("edges", fmt.Sprintf("unknown node %q", to), nil)
	}
	for _, dep := range target.DependsOn {
		if dep == source {
			return nil
		}
	}

	source.Dependents = append(source.Dependents, target)
	target.DependsOn = append(target.DependsOn, source)
	return nil
}

// TopologicalSort computes Order and Levels using Kahn's algorithm.
func (g *Graph) TopologicalSort() error {
	indegree := make(map[string]int, len(g.Nodes))
	for id, node := range g.Nodes {
		indegree[id] = len(node.DependsOn)
	}

	var ready []*Node
	for _, node := range g.Nodes {
		if indegree[node.ID] == 0 {
			ready = append(ready, node)
		}
	}

	depth := make(map[string]int, len(g.Nodes))
	order := make([]string, 0, len(g.Nodes))
	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool { return ready[i].Index < ready[j].Index })
		node := ready[0]
		ready = ready[1:]
		order = append(order, node.ID)

		for _, dependent := range node.Dependents {
			depth[dependent.ID] = max(depth[dependent.ID], depth[node.ID]+1)
			indegree[dependent.ID]--
			if indegree[dependent.ID] == 0 {
				ready = append(ready, dependent)
			}
		}
	}

	if len(order) != len(g.Nodes) {
		return divaerrors.NewCycleError(pipeline.DetectCycle(g.authored(), g.dependencies()))
	}

	var levels [][]string
	for _, id := range order {
		d := depth[id]
		for len(levels) <= d {
			levels = append(levels, nil)
		}
		levels[d] = append(levels[d], id)
	}

	g.Order = order
	g.Levels = levels
	return nil
}

// Upstream returns the ids the node reads from.
func (g *Graph) Upstream(id string) []string {
	node, ok := g.Nodes[id]
	if !ok {
		return nil
	}
	ids := make([]string, len(node.DependsOn))
	for i, dep := range node.DependsOn {
		ids[i] = dep.ID
	}
	return ids
}

// Descendants returns every node transitively reading from id, in Order.
func (g *Graph) Descendants(id string) []string {
	reached := make(map[string]bool)
	var walk func(*Node)
	walk = func(n *Node) {
		for _, dep := range n.Dependents {
			if !reached[dep.ID] {
				reached[dep.ID] = true
				walk(dep)
			}
		}
	}
	if node, ok := g.Nodes[id]; ok {
		walk(node)
	}
	var out []string
	for _, nid := range g.Order {
		if reached[nid] {
			out = append(out, nid)
		}
	}
	return out
}

func (g *Graph) authored() []string {
	ids := make([]string, len(g.Nodes))
	for id, node := range g.Nodes {
		ids[node.Index] = id
	}
	return ids
}

func (g *Graph) dependencies() map[string][]string {
	deps := make(map[string][]string, len(g.Nodes))
	for id := range g.Nodes {
		deps[id] = g.Upstream(id)
	}
	return deps
}

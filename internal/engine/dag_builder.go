package engine

import (
	"fmt"

	"github.com/alexisbeaulieu97/diva/internal/pipeline"
	divaerrors "github.com/alexisbeaulieu97/diva/pkg/errors"
)

// BuildDAG constructs the execution graph of an opened pipeline.
func BuildDAG(p *pipeline.Pipeline) (*Graph, error) {
	if p == nil {
		return nil, divaerrors.NewExecutionError(0, "", fmt.Errorf("pipeline is nil"))
	}

	graph := NewGraph()
	for _, n := range p.Nodes() {
		if _, err := graph.AddNode(n.ID, n.Processor); err != nil {
			return nil, err
		}
	}
	for _, e := range p.Edges() {
		if err := graph.AddEdge(e.From.Node, e.To.Node); err != nil {
			return nil, err
		}
	}

	if err := graph.TopologicalSort(); err != nil {
		return nil, err
	}
	return graph, nil
}

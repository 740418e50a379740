package engine

import (
	"fmt"
	"strings"

	"github.com/alexisbeaulieu97/diva/internal/processor"
)

// ExecutionPlan contains the ordered execution levels of a page pipeline.
type ExecutionPlan struct {
	Pipeline string
	Levels   []ExecutionLevel
}

// ExecutionLevel represents a set of processors that can run in parallel.
type ExecutionLevel struct {
	Processors []PlannedProcessor
}

// PlannedProcessor is a processor with the state it had when planned.
type PlannedProcessor struct {
	ID      string
	Service string
	State   processor.State
}

// Pending reports whether the processor still has work to do.
func (p PlannedProcessor) Pending() bool {
	return p.State != processor.StateReady
}

// GeneratePlan converts a DAG into an execution plan grouped by level.
func GeneratePlan(name string, graph *Graph) (*ExecutionPlan, error) {
	if graph == nil {
		return nil, fmt.Errorf("graph cannot be nil")
	}

	levels := make([]ExecutionLevel, 0, len(graph.Levels))
	for _, ids := range graph.Levels {
		level := ExecutionLevel{Processors: make([]PlannedProcessor, 0, len(ids))}
		for _, id := range ids {
			proc := graph.Nodes[id].Processor
			level.Processors = append(level.Processors, PlannedProcessor{
				ID:      id,
				Service: proc.Name(),
				State:   processor.StateOf(proc),
			})
		}
		levels = append(levels, level)
	}

	return &ExecutionPlan{Pipeline: name, Levels: levels}, nil
}

// Pending returns the number of processors that are not READY.
func (p *ExecutionPlan) Pending() int {
	n := 0
	for _, level := range p.Levels {
		for _, proc := range level.Processors {
			if proc.Pending() {
				n++
			}
		}
	}
	return n
}

// String renders a human readable summary of the plan.
func (p *ExecutionPlan) String() string {
	if p == nil {
		return ""
	}

	var b strings.Builder
	for i, level := range p.Levels {
		entries := make([]string, len(level.Processors))
		for j, proc := range level.Processors {
			entries[j] = fmt.Sprintf("%s (%s, %s)", proc.ID, proc.Service, proc.State)
		}
		fmt.Fprintf(&b, "Level %d (%d processors): %s\n", i, len(level.Processors), strings.Join(entries, ", "))
	}
	return b.String()
}

// Package pipeline turns pipeline definitions into wired processor graphs.
package pipeline

import (
	"fmt"
	"strings"

	"github.com/alexisbeaulieu97/diva/internal/processor"
	divaerrors "github.com/alexisbeaulieu97/diva/pkg/errors"
)

// Definition is the authored form of a pipeline. Node order is significant:
// it breaks ties in execution order.
type Definition struct {
	ID     int        `yaml:"id" validate:"gte=1"`
	Name   string     `yaml:"name" validate:"required"`
	Nodes  []NodeDef  `yaml:"nodes" validate:"required,min=1,dive"`
	Edges  []EdgeDef  `yaml:"edges,omitempty" validate:"dive"`
	Stages []StageDef `yaml:"stages,omitempty" validate:"dive"`
}

// NodeDef declares one processor of the pipeline.
type NodeDef struct {
	ID      string         `yaml:"id" validate:"required,node_id"`
	Service string         `yaml:"service" validate:"required"`
	Version string         `yaml:"version,omitempty"`
	Params  map[string]any `yaml:"params,omitempty"`
	// Inputs and Outputs describe the node's ports for when its service is
	// not registered.
	Inputs  []processor.PortSpec `yaml:"inputs,omitempty"`
	Outputs []processor.PortSpec `yaml:"outputs,omitempty"`
}

// EdgeDef connects an output ("node.port") to an input.
type EdgeDef struct {
	From string `yaml:"from" validate:"required,port_ref"`
	To   string `yaml:"to" validate:"required,port_ref"`
}

// StageDef groups nodes for display; a stage's state is the roll-up of its
// processors' states.
type StageDef struct {
	Name  string   `yaml:"name" validate:"required"`
	Nodes []string `yaml:"nodes" validate:"required,min=1"`
}

// PortRef is a parsed "node.port" reference.
type PortRef struct {
	Node string
	Port string
}

func (r PortRef) String() string { return r.Node + "." + r.Port }

// ParsePortRef splits "node.port".
func ParsePortRef(ref string) (PortRef, error) {
	node, port, ok := strings.Cut(ref, ".")
	if !ok || node == "" || port == "" || strings.Contains(port, ".") {
		return PortRef{}, fmt.Errorf("invalid port reference %q (expected node.port)", ref)
	}
	return PortRef{Node: node, Port: port}, nil
}

// Dependencies returns, per node, the nodes it reads from, in edge order.
func (d *Definition) Dependencies() map[string][]string {
	deps := make(map[string][]string, len(d.Nodes))
	for _, n := range d.Nodes {
		deps[n.ID] = nil
	}
	for _, e := range d.Edges {
		from, errFrom := ParsePortRef(e.From)
		to, errTo := ParsePortRef(e.To)
		if errFrom != nil || errTo != nil {
			continue
		}
		deps[to.Node] = append(deps[to.Node], from.Node)
	}
	return deps
}

// Validate checks node ids, edge references and acyclicity.
func (d *Definition) Validate() error {
	if d == nil {
		return divaerrors.NewValidationError("pipeline", "definition is nil", nil)
	}
	seen := make(map[string]bool, len(d.Nodes))
	for i, n := range d.Nodes {
		field := fmt.Sprintf("pipelines[%d].nodes[%d]", d.ID, i)
		if n.ID == "" {
			return divaerrors.NewValidationError(field+".id", "is required", nil)
		}
		if seen[n.ID] {
			return divaerrors.NewValidationError(field+".id", fmt.Sprintf("duplicate node id %q", n.ID), nil)
		}
		seen[n.ID] = true
	}
	for i, e := range d.Edges {
		field := fmt.Sprintf("pipelines[%d].edges[%d]", d.ID, i)
		for _, ref := range []string{e.From, e.To} {
			parsed, err := ParsePortRef(ref)
			if err != nil {
				return divaerrors.NewValidationError(field, err.Error(), err)
			}
			if !seen[parsed.Node] {
				return divaerrors.NewValidationError(field, fmt.Sprintf("references unknown node %q", parsed.Node), nil)
			}
		}
	}
	for i, s := range d.Stages {
		for _, id := range s.Nodes {
			if !seen[id] {
				return divaerrors.NewValidationError(fmt.Sprintf("pipelines[%d].stages[%d]", d.ID, i), fmt.Sprintf("references unknown node %q", id), nil)
			}
		}
	}
	if cycle := DetectCycle(d.nodeIDs(), d.Dependencies()); cycle != nil {
		return divaerrors.NewCycleError(cycle)
	}
	return nil
}

func (d *Definition) nodeIDs() []string {
	ids := make([]string, len(d.Nodes))
	for i, n := range d.Nodes {
		ids[i] = n.ID
	}
	return ids
}

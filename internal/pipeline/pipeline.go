package pipeline

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/alexisbeaulieu97/diva/internal/logger"
	"github.com/alexisbeaulieu97/diva/internal/plugin"
	"github.com/alexisbeaulieu97/diva/internal/ports"
	"github.com/alexisbeaulieu97/diva/internal/processor"
	divaerrors "github.com/alexisbeaulieu97/diva/pkg/errors"
)

// Resolver finds the service for a node.
type Resolver interface {
	Resolve(name, constraint string) (plugin.Service, error)
}

// ContextFunc returns the persistence context of a node. Returning nil, or
// passing a nil ContextFunc, opens the node passively.
type ContextFunc func(nodeID string) *processor.Context

// Options configures Open.
type Options struct {
	Resolver Resolver
	Context  ContextFunc
	// Overrides holds per node parameter values applied after the
	// definition's own values.
	Overrides map[string]map[string]any
	Log       ports.Logger
}

// Node is a processor instance with its pipeline-local id.
type Node struct {
	ID        string
	Processor processor.Processor
}

// Edge is a realised connection.
type Edge struct {
	From PortRef
	To   PortRef
}

// Pipeline is an opened pipeline: a wired graph of processor instances.
type Pipeline struct {
	def      *Definition
	nodes    []Node
	index    map[string]int
	edges    []Edge
	runnable bool
	log      ports.Logger
}

// Open instantiates every node of def, applies parameters, connects the
// edges and initialises the processors. Nodes whose service cannot be
// resolved become UNAVAILABLE placeholders; nodes with invalid parameters are
// marked ERROR. Structural problems (unknown nodes, cycles, rejected
// connections) fail the whole pipeline.
func Open(ctx context.Context, def *Definition, opts Options) (*Pipeline, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}
	log := opts.Log
	if log == nil {
		log = logger.Nop()
	}

	p := &Pipeline{
		def:   def,
		index: make(map[string]int, len(def.Nodes)),
		log:   log,
	}
	contexts := make([]*processor.Context, len(def.Nodes))
	configErrs := make([]error, len(def.Nodes))

	for i, nd := range def.Nodes {
		if opts.Context != nil {
			contexts[i] = opts.Context(nd.ID)
		}
		if contexts[i] != nil {
			p.runnable = true
		}

		proc, err := instantiate(opts.Resolver, nd, contexts[i])
		if err != nil {
			log.Warn(ctx, "processor service unavailable", "pipeline", def.Name, "node", nd.ID, "service", nd.Service, "error", err)
			proc = processor.NewUnavailable(nd.Service, nd.Inputs, nd.Outputs)
		}

		configErrs[i] = applyParams(proc, nd.Params, opts.Overrides[nd.ID])
		p.index[nd.ID] = len(p.nodes)
		p.nodes = append(p.nodes, Node{ID: nd.ID, Processor: proc})
	}

	for i, ed := range def.Edges {
		if err := p.connect(ed); err != nil {
			p.Close()
			return nil, divaerrors.NewValidationError(fmt.Sprintf("pipelines[%d].edges[%d]", def.ID, i), err.Error(), err)
		}
	}

	for i, n := range p.nodes {
		if err := n.Processor.Init(ctx, contexts[i]); err != nil {
			log.Error(ctx, "processor initialisation failed", "node", n.ID, "processor", n.Processor.Name(), "error", err)
			n.Processor.SetError(err)
			continue
		}
		if configErrs[i] != nil {
			log.Warn(ctx, "invalid processor configuration", "node", n.ID, "processor", n.Processor.Name(), "error", configErrs[i])
			n.Processor.SetError(configErrs[i])
		}
	}
	return p, nil
}

func instantiate(r Resolver, nd NodeDef, pc *processor.Context) (processor.Processor, error) {
	if r == nil {
		return nil, divaerrors.NewServiceError(nd.Service, fmt.Errorf("no service resolver"))
	}
	svc, err := r.Resolve(nd.Service, nd.Version)
	if err != nil {
		return nil, err
	}
	proc, err := svc.NewInstance(pc)
	if err != nil {
		return nil, divaerrors.NewServiceError(nd.Service, err)
	}
	if proc == nil {
		return nil, divaerrors.NewServiceError(nd.Service, fmt.Errorf("service returned no processor"))
	}
	return proc, nil
}

func applyParams(proc processor.Processor, values ...map[string]any) error {
	for _, v := range values {
		if len(v) == 0 {
			continue
		}
		if err := proc.Parameters().Apply(v); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) connect(ed EdgeDef) error {
	from, err := ParsePortRef(ed.From)
	if err != nil {
		return err
	}
	to, err := ParsePortRef(ed.To)
	if err != nil {
		return err
	}
	src := p.nodes[p.index[from.Node]].Processor
	dst := p.nodes[p.index[to.Node]].Processor

	out := src.Output(from.Port)
	in := dst.Input(to.Port)

	// Placeholders learn undeclared ports from their connections.
	if u, ok := src.(*processor.Unavailable); ok && out == nil && in != nil {
		out = u.AddOutput(from.Port, in.Type())
	}
	if u, ok := dst.(*processor.Unavailable); ok && in == nil && out != nil {
		in = u.AddInput(to.Port, out.Type(), true)
	}

	if out == nil {
		return fmt.Errorf("processor %s has no output %q", from.Node, from.Port)
	}
	if in == nil {
		return fmt.Errorf("processor %s has no input %q", to.Node, to.Port)
	}
	if err := out.ConnectTo(in); err != nil {
		return err
	}
	p.edges = append(p.edges, Edge{From: from, To: to})
	return nil
}

// Definition returns the definition the pipeline was opened from.
func (p *Pipeline) Definition() *Definition { return p.def }

// Name returns the pipeline name.
func (p *Pipeline) Name() string { return p.def.Name }

// Runnable reports whether at least one node is bound to a persistence context.
func (p *Pipeline) Runnable() bool { return p.runnable }

// Nodes returns the nodes in authored order.
func (p *Pipeline) Nodes() []Node { return slices.Clone(p.nodes) }

// Edges returns the realised connections in authored order.
func (p *Pipeline) Edges() []Edge { return slices.Clone(p.edges) }

// Node returns the node with id.
func (p *Pipeline) Node(id string) (Node, bool) {
	i, ok := p.index[id]
	if !ok {
		return Node{}, false
	}
	return p.nodes[i], true
}

// Upstream returns the distinct nodes feeding id, in edge order.
func (p *Pipeline) Upstream(id string) []string {
	var out []string
	for _, e := range p.edges {
		if e.To.Node == id && !slices.Contains(out, e.From.Node) {
			out = append(out, e.From.Node)
		}
	}
	return out
}

// Downstream returns the distinct nodes fed by id, in edge order.
func (p *Pipeline) Downstream(id string) []string {
	var out []string
	for _, e := range p.edges {
		if e.From.Node == id && !slices.Contains(out, e.To.Node) {
			out = append(out, e.To.Node)
		}
	}
	return out
}

// Descendants returns every node transitively fed by id, in authored order.
func (p *Pipeline) Descendants(id string) []string {
	reached := map[string]bool{}
	queue := []string{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range p.Downstream(cur) {
			if !reached[next] {
				reached[next] = true
				queue = append(queue, next)
			}
		}
	}
	var out []string
	for _, n := range p.nodes {
		if reached[n.ID] {
			out = append(out, n.ID)
		}
	}
	return out
}

// State rolls up the state of every processor.
func (p *Pipeline) State() processor.State {
	states := make([]processor.State, len(p.nodes))
	for i, n := range p.nodes {
		states[i] = processor.StateOf(n.Processor)
	}
	return processor.Rollup(states...)
}

// StageStates rolls up each declared stage.
func (p *Pipeline) StageStates() map[string]processor.State {
	out := make(map[string]processor.State, len(p.def.Stages))
	for _, s := range p.def.Stages {
		var states []processor.State
		for _, id := range s.Nodes {
			if n, ok := p.Node(id); ok {
				states = append(states, processor.StateOf(n.Processor))
			}
		}
		out[s.Name] = processor.Rollup(states...)
	}
	return out
}

// Rebind points every node at the context returned by fn. Port state and
// payloads are left as they are.
func (p *Pipeline) Rebind(fn ContextFunc) {
	for _, n := range p.nodes {
		var pc *processor.Context
		if fn != nil {
			pc = fn(n.ID)
		}
		n.Processor.Rebind(pc)
	}
}

// Reset resets every resettable processor. It keeps going after errors and
// returns them joined.
func (p *Pipeline) Reset(ctx context.Context) error {
	var errs []error
	for _, n := range p.nodes {
		if !n.Processor.Capabilities().Has(processor.CanReset) {
			continue
		}
		if err := n.Processor.Reset(ctx); err != nil {
			errs = append(errs, fmt.Errorf("reset %s: %w", n.ID, err))
		}
	}
	return errors.Join(errs...)
}

// Close disconnects every port. The pipeline must not be used afterwards.
func (p *Pipeline) Close() {
	for _, n := range p.nodes {
		for _, port := range n.Processor.Inputs() {
			port.DisconnectAll()
		}
		for _, port := range n.Processor.Outputs() {
			port.DisconnectAll()
		}
	}
}

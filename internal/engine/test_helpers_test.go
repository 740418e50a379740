package engine

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/diva/internal/pipeline"
	"github.com/alexisbeaulieu97/diva/internal/pool"
	"github.com/alexisbeaulieu97/diva/internal/processor"
	"github.com/alexisbeaulieu97/diva/internal/store"
)

// testPage is a Page backed by an in-memory store.
type testPage struct {
	id        int
	def       *pipeline.Definition
	resolver  pipeline.Resolver
	store     *store.Memory
	overrides map[string]map[string]any
	lock      sync.Mutex
}

func newTestPage(id int, def *pipeline.Definition, resolver pipeline.Resolver) *testPage {
	return &testPage{id: id, def: def, resolver: resolver, store: store.NewMemory()}
}

func (p *testPage) ID() int       { return p.id }
func (p *testPage) Name() string  { return "page-" + p.def.Name }
func (p *testPage) TryLock() bool { return p.lock.TryLock() }
func (p *testPage) Unlock()       { p.lock.Unlock() }

func (p *testPage) OpenPipeline(ctx context.Context) (*pipeline.Pipeline, error) {
	return pipeline.Open(ctx, p.def, pipeline.Options{
		Resolver:  p.resolver,
		Overrides: p.overrides,
		Context: func(id string) *processor.Context {
			return &processor.Context{PageID: p.id, ProcessorID: id, Store: store.Namespace(p.store, id)}
		},
	})
}

func newPool(t *testing.T, workers int) *pool.WorkerPool {
	t.Helper()
	wp := pool.NewWorkerPool("test", workers, 16)
	t.Cleanup(wp.Close)
	return wp
}

func newBenchPool(b *testing.B) *pool.WorkerPool {
	b.Helper()
	wp := pool.NewWorkerPool("bench", 4, 64)
	b.Cleanup(wp.Close)
	return wp
}

func openGraph(t *testing.T, page *testPage) (*pipeline.Pipeline, *Graph) {
	t.Helper()
	p, err := page.OpenPipeline(context.Background())
	require.NoError(t, err)
	t.Cleanup(p.Close)
	graph, err := BuildDAG(p)
	require.NoError(t, err)
	return p, graph
}

func runPage(t *testing.T, ctx context.Context, page *testPage, wp *pool.WorkerPool) *PageResult {
	t.Helper()
	p, graph := openGraph(t, page)
	result, err := Execute(&ExecutionContext{Context: ctx, PageID: page.id, Pipeline: p.Name(), Pool: wp}, graph)
	require.NoError(t, err)
	return result
}

// diamondDef: a and b feed x, x feeds y.
func diamondDef() *pipeline.Definition {
	return &pipeline.Definition{
		ID:   1,
		Name: "diamond",
		Nodes: []pipeline.NodeDef{
			{ID: "a", Service: "constant", Params: map[string]any{"value": 1}},
			{ID: "b", Service: "constant", Params: map[string]any{"value": 2}},
			{ID: "x", Service: "sum"},
			{ID: "y", Service: "scale", Params: map[string]any{"factor": 10}},
		},
		Edges: []pipeline.EdgeDef{
			{From: "a.out", To: "x.a"},
			{From: "b.out", To: "x.b"},
			{From: "x.out", To: "y.in"},
		},
	}
}

func outcomes(r *PageResult) map[string]Outcome {
	out := make(map[string]Outcome, len(r.Processors))
	for _, p := range r.Processors {
		out[p.NodeID] = p.Outcome
	}
	return out
}

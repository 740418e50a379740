package project

import (
	"context"
	"fmt"
	"maps"
	"path/filepath"
	"sync"

	"github.com/alexisbeaulieu97/diva/internal/config"
	"github.com/alexisbeaulieu97/diva/internal/pipeline"
	"github.com/alexisbeaulieu97/diva/internal/ports"
	"github.com/alexisbeaulieu97/diva/internal/processor"
	"github.com/alexisbeaulieu97/diva/internal/store"
)

// Page is a project page: an image, the pipeline assigned to it and the
// persisted state of that pipeline.
type Page struct {
	id    int
	name  string
	file  string
	image string

	// processing is held for the whole run of the page's pipeline.
	processing sync.Mutex

	mu sync.RWMutex
	// assigned is the pipeline id as written in the project file, 0 for
	// the project default.
	assigned int
	def      *pipeline.Definition
	params   map[string]map[string]any
	store    store.Store

	resolver pipeline.Resolver
	log      ports.Logger
}

// ID returns the page id.
func (p *Page) ID() int { return p.id }

// Name returns the display name: the page name, or the image file name.
func (p *Page) Name() string {
	if p.name != "" {
		return p.name
	}
	return filepath.Base(p.file)
}

// Image returns the absolute path of the page image.
func (p *Page) Image() string { return p.image }

// PipelineID returns the id of the pipeline the page runs.
func (p *Page) PipelineID() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.def == nil {
		return 0
	}
	return p.def.ID
}

// Store returns the page's persistence store.
func (p *Page) Store() store.Store {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.store
}

// Params returns a copy of the page's parameter overrides.
func (p *Page) Params() map[string]map[string]any {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]map[string]any, len(p.params))
	for node, values := range p.params {
		out[node] = maps.Clone(values)
	}
	return out
}

// TryLock acquires exclusive processing rights without blocking.
func (p *Page) TryLock() bool { return p.processing.TryLock() }

// Unlock releases processing rights.
func (p *Page) Unlock() { p.processing.Unlock() }

// OpenPipeline opens the page pipeline bound to the page store. The caller
// closes it.
func (p *Page) OpenPipeline(ctx context.Context) (*pipeline.Pipeline, error) {
	return p.open(ctx, modeRunnable)
}

// OpenReadOnly opens the page pipeline with its persisted outputs restored
// but without write access to the page store. Stale state is left in place,
// so it is safe while another goroutine processes the page.
func (p *Page) OpenReadOnly(ctx context.Context) (*pipeline.Pipeline, error) {
	return p.open(ctx, modeReadOnly)
}

// OpenPassive opens the page pipeline without a persistence context, for
// inspecting the graph and parameters.
func (p *Page) OpenPassive(ctx context.Context) (*pipeline.Pipeline, error) {
	return p.open(ctx, modePassive)
}

type openMode int

const (
	modePassive openMode = iota
	modeRunnable
	modeReadOnly
)

func (p *Page) open(ctx context.Context, mode openMode) (*pipeline.Pipeline, error) {
	p.mu.RLock()
	def, params := p.def, p.params
	p.mu.RUnlock()
	if def == nil {
		return nil, fmt.Errorf("page %d has no pipeline", p.id)
	}

	opts := pipeline.Options{
		Resolver:  p.resolver,
		Overrides: params,
		Log:       p.log,
	}
	if mode != modePassive {
		opts.Context = p.contexts(mode == modeReadOnly)
	}
	return pipeline.Open(ctx, def, opts)
}

// contexts returns the ContextFunc binding nodes to the current store.
func (p *Page) contexts(readOnly bool) pipeline.ContextFunc {
	s := p.Store()
	return func(nodeID string) *processor.Context {
		return &processor.Context{
			PageID:      p.id,
			ProcessorID: nodeID,
			Image:       p.image,
			Store:       store.Namespace(s, nodeID),
			ReadOnly:    readOnly,
			Log:         p.log.With("page_id", p.id, "processor", nodeID),
		}
	}
}

// State opens the page pipeline and returns the roll-up of its processors'
// states together with the state of every declared stage.
func (p *Page) State(ctx context.Context) (processor.State, map[string]processor.State, error) {
	pl, err := p.OpenReadOnly(ctx)
	if err != nil {
		return processor.StateError, nil, err
	}
	defer pl.Close()
	return pl.State(), pl.StageStates(), nil
}

// Reset deletes the persisted state of every processor of the page. Keys
// left behind by processors that are no longer part of the pipeline are
// deleted as well.
func (p *Page) Reset(ctx context.Context) error {
	pl, err := p.OpenPipeline(ctx)
	if err == nil {
		err = pl.Reset(ctx)
		pl.Close()
	}
	if clearErr := store.Clear(ctx, p.Store()); clearErr != nil && err == nil {
		err = clearErr
	}
	return err
}

func (p *Page) config() config.Page {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return config.Page{ID: p.id, Name: p.name, Image: p.file, Pipeline: p.assigned, Params: p.params}
}

func (p *Page) assign(assigned int, def *pipeline.Definition) {
	p.mu.Lock()
	p.assigned = assigned
	p.def = def
	p.mu.Unlock()
}

func (p *Page) bind(s store.Store) {
	p.mu.Lock()
	p.store = s
	p.mu.Unlock()
}

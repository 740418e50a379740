// Package project holds the project model: its pages, the pipelines they are
// assigned to and the page selection.
package project

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/alexisbeaulieu97/diva/internal/config"
	"github.com/alexisbeaulieu97/diva/internal/logger"
	"github.com/alexisbeaulieu97/diva/internal/pipeline"
	"github.com/alexisbeaulieu97/diva/internal/ports"
	"github.com/alexisbeaulieu97/diva/internal/store"
	divaerrors "github.com/alexisbeaulieu97/diva/pkg/errors"
)

// DataDirName is the default directory, relative to the project file, that
// holds persisted processor state.
const DataDirName = ".diva"

// NoPage is the selected page id when no page is selected.
const NoPage = -1

// Options wires a project's collaborators. Resolver is required.
type Options struct {
	Resolver pipeline.Resolver
	// Store holds the persisted state of every page. When nil a file store
	// rooted at DataDir is opened.
	Store   store.Store
	DataDir string
	Events  ports.EventPublisher
	Logger  ports.Logger
}

// Project is an opened project file.
type Project struct {
	path string
	root string
	opts Options
	log  ports.Logger

	mu       sync.RWMutex
	cfg      *config.Project
	pages    []*Page
	store    store.Store
	selected int
	// open is the pipeline of the selected page.
	open *pipeline.Pipeline
}

// Load parses the project file at path and opens its pages.
func Load(path string, opts Options) (*Project, error) {
	cfg, err := config.ParseProject(path)
	if err != nil {
		return nil, err
	}
	return New(path, cfg, opts)
}

// New builds a project from an already parsed document. path is where Save
// writes it.
func New(path string, cfg *config.Project, opts Options) (*Project, error) {
	if opts.Resolver == nil {
		return nil, fmt.Errorf("project: resolver is nil")
	}
	if err := config.ValidateProject(cfg); err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve project path: %w", err)
	}
	p := &Project{
		path:     abs,
		root:     filepath.Dir(abs),
		opts:     opts,
		log:      opts.Logger.With("component", "project"),
		cfg:      cfg,
		selected: NoPage,
	}

	p.store = opts.Store
	if p.store == nil {
		dir := opts.DataDir
		if dir == "" {
			dir = filepath.Join(p.root, DataDirName)
		}
		fs, err := store.NewFile(dir)
		if err != nil {
			return nil, fmt.Errorf("open project store: %w", err)
		}
		p.store = fs
	}

	for _, pc := range cfg.Pages {
		page, err := p.newPage(pc)
		if err != nil {
			return nil, err
		}
		p.pages = append(p.pages, page)
	}
	return p, nil
}

func (p *Project) newPage(pc config.Page) (*Page, error) {
	def, ok := p.cfg.Pipeline(p.cfg.PipelineFor(pc))
	if !ok {
		return nil, divaerrors.NewValidationError(fmt.Sprintf("pages[%d].pipeline", pc.ID), "references unknown pipeline", nil)
	}
	image := pc.Image
	if !filepath.IsAbs(image) {
		image = filepath.Join(p.root, image)
	}
	return &Page{
		id:       pc.ID,
		name:     pc.Name,
		file:     pc.Image,
		image:    image,
		assigned: pc.Pipeline,
		def:      def,
		params:   pc.Params,
		store:    pageStore(p.store, pc.ID),
		resolver: p.opts.Resolver,
		log:      p.opts.Logger,
	}, nil
}

func pageStore(root store.Store, id int) store.Store {
	return store.Namespace(root, fmt.Sprintf("pages/%d", id))
}

// Name returns the project name.
func (p *Project) Name() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cfg.Name
}

// Path returns the absolute path of the project file.
func (p *Project) Path() string { return p.path }

// Root returns the project directory.
func (p *Project) Root() string { return p.root }

// Pipelines returns the pipeline definitions.
func (p *Project) Pipelines() []pipeline.Definition {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return slices.Clone(p.cfg.Pipelines)
}

// Pages returns the pages in project order.
func (p *Project) Pages() []*Page {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return slices.Clone(p.pages)
}

// Page returns the page with the given id.
func (p *Project) Page(id int) (*Page, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.pageLocked(id)
}

func (p *Project) pageLocked(id int) (*Page, bool) {
	for _, page := range p.pages {
		if page.id == id {
			return page, true
		}
	}
	return nil, false
}

// PagesFor returns the pages running the given pipeline.
func (p *Project) PagesFor(pipelineID int) []*Page {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []*Page
	for _, page := range p.pages {
		if page.PipelineID() == pipelineID {
			out = append(out, page)
		}
	}
	return out
}

// PipelineUsage returns the number of pages running the given pipeline.
func (p *Project) PipelineUsage(pipelineID int) int {
	return len(p.PagesFor(pipelineID))
}

// AddPage adds a page for the given image, assigned to the default pipeline.
func (p *Project) AddPage(image, name string) (*Page, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := 1
	for _, page := range p.pages {
		id = max(id, page.id+1)
	}
	pc := config.Page{ID: id, Name: name, Image: image}
	page, err := p.newPage(pc)
	if err != nil {
		return nil, err
	}
	p.pages = append(p.pages, page)
	p.cfg.Pages = append(p.cfg.Pages, pc)
	p.log.Info(context.Background(), "page added", "page_id", id, "image", image)
	return page, nil
}

// AssignPipeline switches a page to another pipeline (0 selects the project
// default) and deletes the state persisted for the old one.
func (p *Project) AssignPipeline(ctx context.Context, pageID, pipelineID int) error {
	p.mu.Lock()
	page, ok := p.pageLocked(pageID)
	if !ok {
		p.mu.Unlock()
		return fmt.Errorf("unknown page %d", pageID)
	}
	effective := pipelineID
	if effective == 0 {
		effective = p.cfg.PipelineFor(config.Page{})
	}
	def, ok := p.cfg.Pipeline(effective)
	if !ok {
		p.mu.Unlock()
		return divaerrors.NewValidationError("pipeline", fmt.Sprintf("references unknown pipeline %d", pipelineID), nil)
	}
	if !page.TryLock() {
		p.mu.Unlock()
		return divaerrors.ErrPageBusy
	}
	defer page.Unlock()

	page.assign(pipelineID, def)
	reopen := pageID == p.selected
	p.mu.Unlock()

	if err := store.Clear(ctx, page.Store()); err != nil {
		return fmt.Errorf("clear page %d: %w", pageID, err)
	}
	if reopen {
		return p.ReloadSelected(ctx)
	}
	return nil
}

// SelectedPage returns the selected page.
func (p *Project) SelectedPage() (*Page, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.selected == NoPage {
		return nil, false
	}
	return p.pageLocked(p.selected)
}

// SelectedPipeline returns the opened pipeline of the selected page, or nil.
func (p *Project) SelectedPipeline() *pipeline.Pipeline {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.open
}

// SelectPage opens the page with the given id and closes the previously
// selected one. It reports whether the selection changed; selecting the
// current page or a negative id is a no-op.
func (p *Project) SelectPage(ctx context.Context, id int) (bool, error) {
	p.mu.Lock()
	if id < 0 || id == p.selected {
		p.mu.Unlock()
		return false, nil
	}
	page, ok := p.pageLocked(id)
	if !ok {
		p.mu.Unlock()
		return false, fmt.Errorf("unknown page %d", id)
	}
	opened, err := page.OpenReadOnly(ctx)
	if err != nil {
		p.mu.Unlock()
		return false, fmt.Errorf("open page %d: %w", id, err)
	}
	p.closeSelectedLocked()
	p.selected = id
	p.open = opened
	p.cfg.SelectedPage = id
	p.mu.Unlock()

	p.log.Debug(ctx, "page selected", "page_id", id)
	p.publish(ctx, ports.EventPageSelected, ports.FieldPageID, id)
	return true, nil
}

// ClosePage deselects the selected page.
func (p *Project) ClosePage(ctx context.Context) {
	p.mu.Lock()
	if p.selected == NoPage {
		p.mu.Unlock()
		return
	}
	p.closeSelectedLocked()
	p.mu.Unlock()
	p.publish(ctx, ports.EventPageSelected, ports.FieldPageID, NoPage)
}

func (p *Project) closeSelectedLocked() {
	if p.open != nil {
		p.open.Close()
		p.open = nil
	}
	p.selected = NoPage
	p.cfg.SelectedPage = NoPage
}

// ReloadSelected reopens the selected page pipeline so it reflects the
// persisted state, as after processing or resetting the page.
func (p *Project) ReloadSelected(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	page, ok := p.pageLocked(p.selected)
	if !ok {
		return nil
	}
	opened, err := page.OpenReadOnly(ctx)
	if err != nil {
		return fmt.Errorf("reopen page %d: %w", page.id, err)
	}
	if p.open != nil {
		p.open.Close()
	}
	p.open = opened
	return nil
}

// DeletePages removes pages from the project and deletes their persisted
// state. With a non-nil confirmer the user is asked first; anything but yes
// leaves the project untouched and returns false. Pages being processed are
// skipped and reported with ErrPageBusy.
func (p *Project) DeletePages(ctx context.Context, ids []int, confirm ports.Confirmer) (bool, error) {
	p.mu.RLock()
	var selection []*Page
	for _, id := range ids {
		if page, ok := p.pageLocked(id); ok {
			selection = append(selection, page)
		}
	}
	p.mu.RUnlock()
	if len(selection) == 0 {
		return false, nil
	}

	if confirm != nil {
		names := make([]string, len(selection))
		for i, page := range selection {
			names[i] = page.Name()
		}
		msg := fmt.Sprintf("Delete %s?", strings.Join(names, ", "))
		if answer := confirm.Confirm(msg); answer != ports.AnswerYes {
			p.log.Debug(ctx, "page deletion declined", "answer", answer.String())
			return false, nil
		}
	}

	var errs []error
	for _, page := range selection {
		if !page.TryLock() {
			errs = append(errs, fmt.Errorf("delete page %d: %w", page.id, divaerrors.ErrPageBusy))
			continue
		}
		p.deletePage(ctx, page)
		page.Unlock()
	}
	return true, errors.Join(errs...)
}

func (p *Project) deletePage(ctx context.Context, page *Page) {
	p.log.Info(ctx, "deleting page", "page_id", page.id, "page", page.Name())

	p.mu.Lock()
	wasSelected := page.id == p.selected
	if wasSelected {
		p.closeSelectedLocked()
	}
	p.pages = slices.DeleteFunc(p.pages, func(x *Page) bool { return x == page })
	p.cfg.Pages = slices.DeleteFunc(p.cfg.Pages, func(x config.Page) bool { return x.ID == page.id })
	p.mu.Unlock()

	if wasSelected {
		p.publish(ctx, ports.EventPageSelected, ports.FieldPageID, NoPage)
	}
	if err := store.Clear(ctx, page.Store()); err != nil {
		p.log.Warn(ctx, "failed to clear page state", "page_id", page.id, "error", err)
	}
	p.publish(ctx, ports.EventPageRemoved, ports.FieldPageID, page.id)
}

// Rebind points every page at a new root store, as after the project data
// was moved. The selected page's pipeline keeps its processors and port
// state; only their persistence handles change.
func (p *Project) Rebind(s store.Store) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.store = s
	for _, page := range p.pages {
		page.bind(pageStore(s, page.id))
	}
	if p.open != nil {
		if page, ok := p.pageLocked(p.selected); ok {
			p.open.Rebind(page.contexts(true))
		}
	}
}

// Store returns the root store holding every page's state.
func (p *Project) Store() store.Store {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.store
}

// Save writes the project file.
func (p *Project) Save() error {
	p.mu.RLock()
	cfg := *p.cfg
	cfg.Pages = make([]config.Page, len(p.pages))
	for i, page := range p.pages {
		cfg.Pages[i] = page.config()
	}
	p.mu.RUnlock()

	if err := config.WriteProject(p.path, &cfg); err != nil {
		return err
	}
	p.log.Debug(context.Background(), "project saved", "path", p.path)
	return nil
}

// Close deselects the selected page.
func (p *Project) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeSelectedLocked()
}

func (p *Project) publish(ctx context.Context, eventType string, kv ...interface{}) {
	if p.opts.Events == nil {
		return
	}
	if err := p.opts.Events.Publish(ctx, ports.NewEvent(eventType, kv...)); err != nil {
		p.log.Warn(ctx, "event publish failed", "event", eventType, "error", err)
	}
}

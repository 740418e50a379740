// Package app coordinates long running project operations. Every operation
// runs as a background task that reports through the host ports.
package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/alexisbeaulieu97/diva/internal/datatype"
	"github.com/alexisbeaulieu97/diva/internal/engine"
	"github.com/alexisbeaulieu97/diva/internal/logger"
	"github.com/alexisbeaulieu97/diva/internal/pool"
	"github.com/alexisbeaulieu97/diva/internal/ports"
	"github.com/alexisbeaulieu97/diva/internal/project"
	"github.com/alexisbeaulieu97/diva/internal/task"
	divaerrors "github.com/alexisbeaulieu97/diva/pkg/errors"
)

const (
	processingTitle = "Processing pipelines..."
	resettingTitle  = "Resetting pipelines..."
)

// Options wires the service. Project and Pool are required; Previews is
// only needed for Preview.
type Options struct {
	Project  *project.Project
	Pool     *pool.WorkerPool
	Previews *pool.DiscardingPool
	Host     ports.Host
	Logger   ports.Logger
	Tracer   ports.Tracer
	Metrics  ports.MetricsCollector
}

// Service processes and resets project pages.
type Service struct {
	opts Options
	log  ports.Logger
}

// NewService constructs an application service.
func NewService(opts Options) (*Service, error) {
	if opts.Project == nil {
		return nil, errors.New("app: project is nil")
	}
	if opts.Pool == nil {
		return nil, errors.New("app: worker pool is nil")
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	return &Service{opts: opts, log: opts.Logger}, nil
}

// Project returns the served project.
func (s *Service) Project() *project.Project { return s.opts.Project }

// ProcessPage processes the page with the given id, or every page when id
// is negative.
func (s *Service) ProcessPage(ctx context.Context, id int, execLog engine.ExecutionLogger) (*task.Task[*engine.BatchResult], error) {
	pages, err := s.pages(id)
	if err != nil {
		return nil, err
	}
	return s.ProcessPages(ctx, pages, execLog), nil
}

// ProcessPages starts a task running the pipelines of pages in order. The
// task fails when any page failed; its value is the batch result either way.
func (s *Service) ProcessPages(ctx context.Context, pages []*project.Page, execLog engine.ExecutionLogger) *task.Task[*engine.BatchResult] {
	release := s.engageBusy()

	t := task.New(processingTitle, func(ctx context.Context, t *task.Task[*engine.BatchResult]) (*engine.BatchResult, error) {
		t.UpdateMessage(processingTitle)
		t.UpdateProgress(0, 0)

		controller := engine.NewController(engine.ControllerOptions{
			Pool:    s.opts.Pool,
			Logger:  s.log,
			Status:  taskStatus[*engine.BatchResult]{t},
			Busy:    s.opts.Host.Busy,
			Events:  s.opts.Host.Events,
			Tracer:  s.opts.Tracer,
			Metrics: s.opts.Metrics,
		})
		batch, err := controller.Process(ctx, enginePages(pages), execLog)
		if err != nil {
			return batch, err
		}
		if err := s.opts.Project.ReloadSelected(ctx); err != nil {
			s.log.Warn(ctx, "failed to reload selected page", "error", err)
		}
		return batch, batch.Err()
	}, s.opts.Host, s.log, task.Hooks[*engine.BatchResult]{
		Finished: s.finished(processingTitle, release),
	})
	return t.Start(ctx)
}

// ResetPage resets the page with the given id, or every page when id is
// negative.
func (s *Service) ResetPage(ctx context.Context, id int) (*task.Task[int], error) {
	pages, err := s.pages(id)
	if err != nil {
		return nil, err
	}
	return s.ResetPages(ctx, pages), nil
}

// ResetPages starts a task deleting the persisted state of pages. Pages
// being processed are skipped and reported. The task value is the number of
// pages reset.
func (s *Service) ResetPages(ctx context.Context, pages []*project.Page) *task.Task[int] {
	release := s.engageBusy()

	t := task.New(resettingTitle, func(ctx context.Context, t *task.Task[int]) (int, error) {
		var errs []error
		reset := 0
		for i, page := range pages {
			if err := ctx.Err(); err != nil {
				return reset, err
			}
			t.UpdateMessage(fmt.Sprintf("Resetting %s...", page.Name()))
			if i == len(pages)-1 {
				t.UpdateProgress(0, 0)
			} else {
				t.UpdateProgress(float64(i+1), float64(len(pages)))
			}

			if !page.TryLock() {
				errs = append(errs, divaerrors.NewExecutionError(page.ID(), "", divaerrors.ErrPageBusy))
				continue
			}
			err := page.Reset(ctx)
			page.Unlock()
			if err != nil {
				s.log.Error(ctx, "page reset failed", "page_id", page.ID(), "error", err)
				errs = append(errs, divaerrors.NewExecutionError(page.ID(), "", err))
				continue
			}
			s.log.Info(ctx, "page reset", "page_id", page.ID())
			reset++
		}
		if err := s.opts.Project.ReloadSelected(ctx); err != nil {
			errs = append(errs, err)
		}
		return reset, errors.Join(errs...)
	}, s.opts.Host, s.log, task.Hooks[int]{
		Finished: s.finished(resettingTitle, release),
	})
	return t.Start(ctx)
}

// PreviewRequest names a persisted port to render.
type PreviewRequest struct {
	PageID  int
	Node    string
	Port    string
	MaxSize int
}

// Preview is a rendered port payload.
type Preview struct {
	PageID int
	Node   string
	Port   string
	Image  image.Image
	PNG    []byte
}

// Preview renders a port of a page on the preview pool. Only the latest
// request runs: an older request still waiting is discarded, its future
// completing with pool.ErrDiscarded and deliver never called. deliver runs
// on the UI thread.
func (s *Service) Preview(ctx context.Context, req PreviewRequest, deliver func(*Preview, error)) (*pool.Future, error) {
	if s.opts.Previews == nil {
		return nil, errors.New("app: preview pool is nil")
	}
	page, ok := s.opts.Project.Page(req.PageID)
	if !ok {
		return nil, fmt.Errorf("unknown page %d", req.PageID)
	}

	return s.opts.Previews.Submit(ctx, func(ctx context.Context) error {
		preview, err := s.render(ctx, page, req)
		if deliver != nil {
			s.runLater(func() { deliver(preview, err) })
		}
		return err
	})
}

func (s *Service) render(ctx context.Context, page *project.Page, req PreviewRequest) (*Preview, error) {
	pl, err := page.OpenReadOnly(ctx)
	if err != nil {
		return nil, err
	}
	defer pl.Close()

	node, ok := pl.Node(req.Node)
	if !ok {
		return nil, fmt.Errorf("page %d has no processor %q", req.PageID, req.Node)
	}
	port := node.Processor.Output(req.Port)
	if port == nil {
		return nil, fmt.Errorf("processor %q has no output %q", req.Node, req.Port)
	}
	payload, ok := port.Value()
	if !ok {
		return nil, fmt.Errorf("output %s.%s is %s", req.Node, req.Port, port.State())
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img, err := datatype.Render(payload)
	if err != nil {
		return nil, err
	}
	img = datatype.Scale(img, req.MaxSize)

	var buf bytes.Buffer
	if err := datatype.EncodeImage(&buf, img); err != nil {
		return nil, fmt.Errorf("encode preview: %w", err)
	}
	return &Preview{PageID: req.PageID, Node: req.Node, Port: req.Port, Image: img, PNG: buf.Bytes()}, nil
}

func (s *Service) pages(id int) ([]*project.Page, error) {
	if id < 0 {
		return s.opts.Project.Pages(), nil
	}
	page, ok := s.opts.Project.Page(id)
	if !ok {
		return nil, fmt.Errorf("unknown page %d", id)
	}
	return []*project.Page{page}, nil
}

func (s *Service) engageBusy() func() {
	if s.opts.Host.Busy == nil {
		return func() {}
	}
	return s.opts.Host.Busy.Engage()
}

func (s *Service) finished(title string, release func()) func(task.Result) {
	return func(task.Result) {
		if s.opts.Host.Status != nil {
			s.opts.Host.Status.Status(title, title+" done.", 1)
		}
		release()
	}
}

func (s *Service) runLater(fn func()) {
	if s.opts.Host.UI == nil {
		fn()
		return
	}
	s.opts.Host.UI.RunLater(fn)
}

func enginePages(pages []*project.Page) []engine.Page {
	out := make([]engine.Page, len(pages))
	for i, p := range pages {
		out[i] = p
	}
	return out
}

// taskStatus forwards controller status updates to a task.
type taskStatus[T any] struct {
	t *task.Task[T]
}

func (s taskStatus[T]) Status(title, message string, progress float64) {
	s.t.UpdateTitle(title)
	s.t.UpdateMessage(message)
	if progress < 0 {
		s.t.UpdateProgress(0, 0)
		return
	}
	s.t.UpdateProgress(progress, 1)
}

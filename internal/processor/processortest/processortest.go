// Package processortest provides small processor services for exercising the
// pipeline builder and the executor in tests.
package processortest

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/alexisbeaulieu97/diva/internal/datatype"
	"github.com/alexisbeaulieu97/diva/internal/plugin"
	"github.com/alexisbeaulieu97/diva/internal/processor"
)

// ErrBoom is returned by the fail service.
var ErrBoom = errors.New("boom")

// Recorder tracks which processors ran, keyed by processor id.
type Recorder struct {
	mu       sync.Mutex
	started  []string
	finished []string
	log      []string
}

func (r *Recorder) start(id string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.started = append(r.started, id)
	r.log = append(r.log, "start:"+id)
	r.mu.Unlock()
}

func (r *Recorder) finish(id string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.finished = append(r.finished, id)
	r.log = append(r.log, "finish:"+id)
	r.mu.Unlock()
}

// Started returns processor ids in the order their Process began.
func (r *Recorder) Started() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.started)
}

// Finished returns processor ids in the order their Process returned nil.
func (r *Recorder) Finished() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.finished)
}

// Log returns "start:<id>" and "finish:<id>" entries in the order they
// happened.
func (r *Recorder) Log() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.log)
}

// Runs returns how often id started.
func (r *Recorder) Runs(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.started {
		if s == id {
			n++
		}
	}
	return n
}

func idOf(b *processor.Base) string {
	if pc := b.Context(); pc != nil && pc.ProcessorID != "" {
		return pc.ProcessorID
	}
	return b.Name()
}

func meta(name string, caps processor.Capability) plugin.Metadata {
	return plugin.Metadata{Name: name, Version: "1.0.0", Capabilities: caps}
}

// Constant emits a 2x2 matrix filled with its "value" parameter.
type Constant struct {
	*processor.Base
	rec *Recorder
}

// ConstantService returns the "constant" service.
func ConstantService(rec *Recorder) plugin.Service {
	caps := processor.CanProcess | processor.CanEdit | processor.CanReset
	return plugin.Func{Meta: meta("constant", caps), New: func(*processor.Context) (processor.Processor, error) {
		c := &Constant{Base: processor.NewBase("constant", caps), rec: rec}
		c.Parameters().AddFloat("value", "Value", 1, -1000, 1000)
		c.AddOutput("out", datatype.Matrix)
		return c, nil
	}}
}

func (c *Constant) Process(ctx context.Context) error {
	id := idOf(c.Base)
	c.rec.start(id)
	m := datatype.NewMatrix(2, 2)
	v := c.Parameters().FloatInRange(ctx, c.Logger(), "value")
	for i := range m.Data {
		m.Data[i] = v
	}
	if err := c.Checkpoint(ctx); err != nil {
		return err
	}
	if err := c.Persist(ctx, "out", m); err != nil {
		return err
	}
	if err := c.Commit(ctx); err != nil {
		return err
	}
	c.rec.finish(id)
	return nil
}

// Sum adds its two required matrix inputs.
type Sum struct {
	*processor.Base
	rec *Recorder
}

// SumService returns the "sum" service.
func SumService(rec *Recorder) plugin.Service {
	caps := processor.CanProcess | processor.CanReset
	return plugin.Func{Meta: meta("sum", caps), New: func(*processor.Context) (processor.Processor, error) {
		s := &Sum{Base: processor.NewBase("sum", caps), rec: rec}
		s.AddInput("a", datatype.Matrix, true)
		s.AddInput("b", datatype.Matrix, true)
		s.AddOutput("out", datatype.Matrix)
		return s, nil
	}}
}

func (s *Sum) Process(ctx context.Context) error {
	id := idOf(s.Base)
	s.rec.start(id)
	a, okA := s.Input("a").Value()
	b, okB := s.Input("b").Value()
	if !okA || !okB {
		return fmt.Errorf("%s: inputs not ready", id)
	}
	if err := s.Checkpoint(ctx); err != nil {
		return err
	}
	ma, mb := a.(*datatype.FloatMatrix), b.(*datatype.FloatMatrix)
	out := datatype.NewMatrix(ma.Width, ma.Height)
	for i := range out.Data {
		out.Data[i] = ma.Data[i] + mb.Data[i]
	}
	if err := s.Checkpoint(ctx); err != nil {
		return err
	}
	if err := s.Persist(ctx, "out", out); err != nil {
		return err
	}
	if err := s.Commit(ctx); err != nil {
		return err
	}
	s.rec.finish(id)
	return nil
}

// Scale multiplies its optional input by "factor"; without an input it scales
// a matrix of ones.
type Scale struct {
	*processor.Base
	rec *Recorder
}

// ScaleService returns the "scale" service.
func ScaleService(rec *Recorder) plugin.Service {
	caps := processor.CanProcess | processor.CanEdit | processor.CanReset
	return plugin.Func{Meta: meta("scale", caps), New: func(*processor.Context) (processor.Processor, error) {
		s := &Scale{Base: processor.NewBase("scale", caps), rec: rec}
		s.Parameters().AddFloat("factor", "Factor", 2, 0, 100)
		s.AddInput("in", datatype.Matrix, false)
		s.AddOutput("out", datatype.Matrix)
		return s, nil
	}}
}

func (s *Scale) Process(ctx context.Context) error {
	id := idOf(s.Base)
	s.rec.start(id)
	src := datatype.NewMatrix(2, 2)
	for i := range src.Data {
		src.Data[i] = 1
	}
	if v, ok := s.Input("in").Value(); ok {
		src = v.(*datatype.FloatMatrix)
	}
	f := s.Parameters().FloatInRange(ctx, s.Logger(), "factor")
	out := datatype.NewMatrix(src.Width, src.Height)
	for i := range out.Data {
		out.Data[i] = src.Data[i] * f
	}
	if err := s.Checkpoint(ctx); err != nil {
		return err
	}
	if err := s.Persist(ctx, "out", out); err != nil {
		return err
	}
	if err := s.Commit(ctx); err != nil {
		return err
	}
	s.rec.finish(id)
	return nil
}

// Fail always fails with ErrBoom, or panics when its "panic" parameter is set.
type Fail struct {
	*processor.Base
	rec *Recorder
}

// FailService returns the "fail" service.
func FailService(rec *Recorder) plugin.Service {
	caps := processor.CanProcess | processor.CanReset
	return plugin.Func{Meta: meta("fail", caps), New: func(*processor.Context) (processor.Processor, error) {
		f := &Fail{Base: processor.NewBase("fail", caps), rec: rec}
		f.Parameters().AddBool("panic", "Panic", false)
		f.AddInput("in", datatype.Matrix, false)
		f.AddOutput("out", datatype.Matrix)
		return f, nil
	}}
}

func (f *Fail) Process(context.Context) error {
	f.rec.start(idOf(f.Base))
	if f.Parameters().Bool("panic") {
		panic("fail processor panicked")
	}
	return ErrBoom
}

// Block writes a partial output, announces itself on Started and then waits
// for Release or for ctx to be cancelled.
type Block struct {
	*processor.Base
	rec     *Recorder
	started chan<- string
	release <-chan struct{}
}

// BlockService returns the "block" service. Every instance sends its id on
// started once it has written partial state.
func BlockService(rec *Recorder, started chan<- string, release <-chan struct{}) plugin.Service {
	caps := processor.CanProcess | processor.CanReset
	return plugin.Func{Meta: meta("block", caps), New: func(*processor.Context) (processor.Processor, error) {
		b := &Block{Base: processor.NewBase("block", caps), rec: rec, started: started, release: release}
		b.AddInput("in", datatype.Matrix, false)
		b.AddOutput("out", datatype.Matrix)
		return b, nil
	}}
}

func (b *Block) Process(ctx context.Context) error {
	id := idOf(b.Base)
	b.rec.start(id)
	if pc := b.Context(); pc != nil && pc.Store != nil {
		if err := pc.Store.Write(ctx, b.StorageKey("out"), []byte("partial")); err != nil {
			return err
		}
	}
	if b.started != nil {
		b.started <- id
	}
	select {
	case <-ctx.Done():
	case <-b.release:
	}
	if err := b.Checkpoint(ctx); err != nil {
		return err
	}
	m := datatype.NewMatrix(1, 1)
	if err := b.Persist(ctx, "out", m); err != nil {
		return err
	}
	if err := b.Commit(ctx); err != nil {
		return err
	}
	b.rec.finish(id)
	return nil
}

// Registry returns a registry holding constant, sum, scale and fail plus any
// extra services.
func Registry(rec *Recorder, extra ...plugin.Service) *plugin.Registry {
	r := plugin.NewRegistry(nil)
	r.MustRegister(ConstantService(rec), SumService(rec), ScaleService(rec), FailService(rec))
	r.MustRegister(extra...)
	return r
}

package processor

import (
	"context"
	"fmt"

	"github.com/alexisbeaulieu97/diva/internal/datatype"
)

type source struct {
	*Base
	value float64
	runs  int
}

func newSource(value float64) *source {
	s := &source{Base: NewBase("source", CanProcess|CanReset), value: value}
	s.Parameters().AddFloat("gain", "Gain", 1, 0, 10)
	s.AddOutput("out", datatype.Matrix)
	return s
}

func (s *source) Process(ctx context.Context) error {
	s.runs++
	m := datatype.NewMatrix(2, 2)
	for i := range m.Data {
		m.Data[i] = s.value * s.Parameters().Float("gain")
	}
	if err := s.Checkpoint(ctx); err != nil {
		return err
	}
	if err := s.Persist(ctx, "out", m); err != nil {
		return err
	}
	return s.Commit(ctx)
}

type combiner struct {
	*Base
}

func newCombiner() *combiner {
	c := &combiner{Base: NewBase("combiner", CanProcess|CanReset)}
	c.AddInput("a", datatype.Matrix, true)
	c.AddInput("b", datatype.Matrix, true)
	c.AddOutput("out", datatype.Matrix)
	return c
}

func (c *combiner) Process(ctx context.Context) error {
	a, okA := c.Input("a").Value()
	b, okB := c.Input("b").Value()
	if !okA || !okB {
		return fmt.Errorf("inputs not ready")
	}
	ma, mb := a.(*datatype.FloatMatrix), b.(*datatype.FloatMatrix)
	out := datatype.NewMatrix(ma.Width, ma.Height)
	for i := range out.Data {
		out.Data[i] = ma.Data[i] + mb.Data[i]
	}
	if err := c.Checkpoint(ctx); err != nil {
		return err
	}
	if err := c.Persist(ctx, "out", out); err != nil {
		return err
	}
	return c.Commit(ctx)
}

type imageSink struct {
	*Base
}

func newImageSink() *imageSink {
	s := &imageSink{Base: NewBase("sink", CanProcess)}
	s.AddInput("in", datatype.Image, true)
	return s
}

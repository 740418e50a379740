package magnitudeplugin

import (
	"context"
	"fmt"
	"math"

	"github.com/alexisbeaulieu97/diva/internal/datatype"
	"github.com/alexisbeaulieu97/diva/internal/plugin"
	"github.com/alexisbeaulieu97/diva/internal/processor"
)

// Name is the service name of the gradient magnitude processor.
const Name = "magnitude"

const capabilities = processor.CanProcess | processor.CanEdit | processor.CanReset

type magnitude struct {
	*processor.Base
}

// New creates the magnitude service combining two gradients into
// sqrt(dx*dx + dy*dy).
func New() plugin.Service {
	return plugin.Func{
		Meta: plugin.Metadata{
			Name:         Name,
			Version:      "1.0.0",
			Description:  "Combines X and Y gradients into their magnitude.",
			Capabilities: capabilities,
			Inputs: []processor.PortSpec{
				{Key: "dx", Type: datatype.Matrix, Required: true},
				{Key: "dy", Type: datatype.Matrix, Required: true},
			},
			Outputs: []processor.PortSpec{{Key: "magnitude", Type: datatype.Matrix}},
		},
		New: func(*processor.Context) (processor.Processor, error) {
			m := &magnitude{Base: processor.NewBase(Name, capabilities)}
			m.Parameters().AddBool("normalize", "Normalize to [0, 1]", false)
			m.AddInput("dx", datatype.Matrix, true)
			m.AddInput("dy", datatype.Matrix, true)
			m.AddOutput("magnitude", datatype.Matrix)
			return m, nil
		},
	}
}

func (m *magnitude) Process(ctx context.Context) error {
	dx, err := m.matrix("dx")
	if err != nil {
		return err
	}
	if err := m.Checkpoint(ctx); err != nil {
		return err
	}
	dy, err := m.matrix("dy")
	if err != nil {
		return err
	}
	if err := m.Checkpoint(ctx); err != nil {
		return err
	}
	if !dx.SameSize(dy) {
		return fmt.Errorf("%s: gradient sizes differ (%dx%d and %dx%d)", Name, dx.Width, dx.Height, dy.Width, dy.Height)
	}

	out := datatype.NewMatrix(dx.Width, dx.Height)
	for i := range out.Data {
		out.Data[i] = math.Hypot(dx.Data[i], dy.Data[i])
	}
	if m.Parameters().Bool("normalize") {
		if _, hi := out.Bounds(); hi > 0 {
			for i := range out.Data {
				out.Data[i] /= hi
			}
		}
	}
	if err := m.Checkpoint(ctx); err != nil {
		return err
	}

	if err := m.Persist(ctx, "magnitude", out); err != nil {
		return err
	}
	return m.Commit(ctx)
}

func (m *magnitude) matrix(key string) (*datatype.FloatMatrix, error) {
	v, ok := m.Input(key).Value()
	if !ok {
		return nil, fmt.Errorf("%s: input %s not ready", Name, key)
	}
	mat, ok := v.(*datatype.FloatMatrix)
	if !ok {
		return nil, fmt.Errorf("%s: input %s payload is %T", Name, key, v)
	}
	return mat, nil
}

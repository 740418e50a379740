// Package sobelplugin computes horizontal and vertical image gradients with
// the Sobel operator, optionally after a Gaussian blur.
package sobelplugin

import (
	"context"
	"fmt"
	"image"
	"math"

	"github.com/alexisbeaulieu97/diva/internal/datatype"
	"github.com/alexisbeaulieu97/diva/internal/plugin"
	"github.com/alexisbeaulieu97/diva/internal/processor"
)

// Name is the service name of the Sobel filter.
const Name = "sobel"

const capabilities = processor.CanProcess | processor.CanEdit | processor.CanReset

// Parameter defaults.
const (
	DefaultBand  = 1
	DefaultSigma = 1.0
)

type sobel struct {
	*processor.Base
}

// New creates the Sobel service. Instances read either an image ("image") or
// a float matrix ("matrix"); when both are connected the image wins. Outputs
// are the gradients "dx" and "dy", persisted as dx.bmat and dy.bmat.
func New() plugin.Service {
	return plugin.Func{
		Meta: plugin.Metadata{
			Name:         Name,
			Version:      "1.0.0",
			Description:  "Computes the X and Y image gradients, optionally after Gaussian blurring.",
			Capabilities: capabilities,
			Inputs: []processor.PortSpec{
				{Key: "image", Type: datatype.Image},
				{Key: "matrix", Type: datatype.Matrix},
			},
			Outputs: []processor.PortSpec{
				{Key: "dx", Type: datatype.Matrix},
				{Key: "dy", Type: datatype.Matrix},
			},
		},
		New: func(*processor.Context) (processor.Processor, error) {
			s := &sobel{Base: processor.NewBase(Name, capabilities)}
			s.Parameters().AddInt("band", "Band", DefaultBand, 1, 4)
			s.Parameters().AddBool("blur", "Gaussian blur", false)
			s.Parameters().AddFloat("sigma", "Sigma", DefaultSigma, 0.1, 50)
			s.AddInput("image", datatype.Image, false)
			s.AddInput("matrix", datatype.Matrix, false)
			s.AddOutput("dx", datatype.Matrix)
			s.AddOutput("dy", datatype.Matrix)
			return s, nil
		},
	}
}

// IsConnected requires one of the two inputs.
func (s *sobel) IsConnected() bool {
	return s.Input("image").IsConnected() || s.Input("matrix").IsConnected()
}

func (s *sobel) Process(ctx context.Context) error {
	src, err := s.source(ctx)
	if err != nil {
		return err
	}
	if err := s.Checkpoint(ctx); err != nil {
		return err
	}

	if s.Parameters().Bool("blur") {
		sigma := s.Parameters().FloatInRange(ctx, s.Logger(), "sigma")
		src = Blur(src, sigma)
		if err := s.Checkpoint(ctx); err != nil {
			return err
		}
	}

	dx := Gradient(src, true)
	if err := s.Checkpoint(ctx); err != nil {
		return err
	}
	dy := Gradient(src, false)
	if err := s.Checkpoint(ctx); err != nil {
		return err
	}

	if err := s.Persist(ctx, "dx", dx); err != nil {
		return err
	}
	if err := s.Persist(ctx, "dy", dy); err != nil {
		return err
	}
	if err := s.Checkpoint(ctx); err != nil {
		return err
	}
	return s.Commit(ctx)
}

// source returns the selected band of the enabled input as a matrix.
func (s *sobel) source(ctx context.Context) (*datatype.FloatMatrix, error) {
	band := s.Parameters().IntInRange(ctx, s.Logger(), "band")

	if s.Input("image").IsConnected() {
		v, ok := s.Input("image").Value()
		if !ok {
			return nil, fmt.Errorf("%s: input image not ready", Name)
		}
		img, ok := v.(image.Image)
		if !ok {
			return nil, fmt.Errorf("%s: input payload is %T", Name, v)
		}
		if n := datatype.Bands(img); band > n {
			s.Logger().Warn(ctx, "invalid band, selecting first band", "band", band, "bands", n)
			band = 1
		}
		return datatype.Band(img, band-1)
	}

	v, ok := s.Input("matrix").Value()
	if !ok {
		return nil, fmt.Errorf("%s: input matrix not ready", Name)
	}
	m, ok := v.(*datatype.FloatMatrix)
	if !ok {
		return nil, fmt.Errorf("%s: input payload is %T", Name, v)
	}
	if band > 1 {
		s.Logger().Warn(ctx, "invalid band, selecting first band", "band", band, "bands", 1)
	}
	return m, nil
}

// Gradient convolves m with the 3x3 Sobel kernel, horizontally when
// horizontal is set. Samples outside m repeat the nearest edge sample.
func Gradient(m *datatype.FloatMatrix, horizontal bool) *datatype.FloatMatrix {
	out := datatype.NewMatrix(m.Width, m.Height)
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			var g float64
			if horizontal {
				g = m.At(x+1, y-1) + 2*m.At(x+1, y) + m.At(x+1, y+1) -
					m.At(x-1, y-1) - 2*m.At(x-1, y) - m.At(x-1, y+1)
			} else {
				g = m.At(x-1, y+1) + 2*m.At(x, y+1) + m.At(x+1, y+1) -
					m.At(x-1, y-1) - 2*m.At(x, y-1) - m.At(x+1, y-1)
			}
			out.Set(x, y, g)
		}
	}
	return out
}

// Blur applies a separable Gaussian of standard deviation sigma.
func Blur(m *datatype.FloatMatrix, sigma float64) *datatype.FloatMatrix {
	radius := int(math.Ceil(3 * sigma))
	kernel := make([]float64, 2*radius+1)
	var sum float64
	for i := range kernel {
		d := float64(i - radius)
		kernel[i] = math.Exp(-d * d / (2 * sigma * sigma))
		sum += kernel[i]
	}
	for i := range kernel {
		kernel[i] /= sum
	}

	tmp := datatype.NewMatrix(m.Width, m.Height)
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			var v float64
			for i, k := range kernel {
				v += k * m.At(x+i-radius, y)
			}
			tmp.Set(x, y, v)
		}
	}
	out := datatype.NewMatrix(m.Width, m.Height)
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			var v float64
			for i, k := range kernel {
				v += k * tmp.At(x, y+i-radius)
			}
			out.Set(x, y, v)
		}
	}
	return out
}

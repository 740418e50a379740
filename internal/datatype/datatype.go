// Package datatype defines the payload types carried between processor ports
// and their persisted encodings.
package datatype

import (
	"fmt"
	"image"
	"math"
)

// Type tags a port's payload. Two ports may only be connected when their tags
// are identical.
type Type string

const (
	// Image carries an image.Image.
	Image Type = "image"
	// Matrix carries a *Matrix of float64 samples.
	Matrix Type = "float-matrix"
)

// FloatMatrix is a dense row-major matrix of float64 samples.
type FloatMatrix struct {
	Width  int
	Height int
	Data   []float64
}

// NewMatrix allocates a zeroed matrix.
func NewMatrix(width, height int) *FloatMatrix {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	return &FloatMatrix{Width: width, Height: height, Data: make([]float64, width*height)}
}

// At returns the sample at (x, y). Coordinates are clamped to the matrix edge.
func (m *FloatMatrix) At(x, y int) float64 {
	x = clamp(x, 0, m.Width-1)
	y = clamp(y, 0, m.Height-1)
	return m.Data[y*m.Width+x]
}

// Set stores v at (x, y).
func (m *FloatMatrix) Set(x, y int, v float64) {
	m.Data[y*m.Width+x] = v
}

// SameSize reports whether both matrices share dimensions.
func (m *FloatMatrix) SameSize(o *FloatMatrix) bool {
	return o != nil && m.Width == o.Width && m.Height == o.Height
}

// Bounds returns the minimum and maximum sample.
func (m *FloatMatrix) Bounds() (lo, hi float64) {
	if len(m.Data) == 0 {
		return 0, 0
	}
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, v := range m.Data {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return lo, hi
}

// ToImage maps the matrix linearly onto 8-bit grey levels.
func (m *FloatMatrix) ToImage() *image.Gray {
	img := image.NewGray(image.Rect(0, 0, m.Width, m.Height))
	lo, hi := m.Bounds()
	span := hi - lo
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			var v float64
			if span > 0 {
				v = (m.At(x, y) - lo) / span * 255
			}
			img.Pix[y*img.Stride+x] = uint8(math.Round(v))
		}
	}
	return img
}

// Bands returns the number of sample bands of img: 1 for grey images, 3 for
// opaque colour and 4 when an alpha channel is present.
func Bands(img image.Image) int {
	switch img.(type) {
	case *image.Gray, *image.Gray16:
		return 1
	case *image.RGBA, *image.NRGBA, *image.RGBA64, *image.NRGBA64:
		return 4
	default:
		return 3
	}
}

// Band extracts band index b (0-based: red, green, blue, alpha) from img as a
// matrix of samples scaled to [0, 1].
func Band(img image.Image, b int) (*FloatMatrix, error) {
	if img == nil {
		return nil, fmt.Errorf("datatype: nil image")
	}
	if b < 0 || b >= Bands(img) {
		return nil, fmt.Errorf("datatype: band %d out of range [0,%d)", b, Bands(img))
	}
	bounds := img.Bounds()
	m := NewMatrix(bounds.Dx(), bounds.Dy())
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, bl, a := img.At(x, y).RGBA()
			var v uint32
			switch b {
			case 0:
				v = r
			case 1:
				v = g
			case 2:
				v = bl
			default:
				v = a
			}
			m.Set(x-bounds.Min.X, y-bounds.Min.Y, float64(v)/0xffff)
		}
	}
	return m, nil
}

// Luminance converts img to a single band matrix using ITU-R BT.601 weights.
func Luminance(img image.Image) *FloatMatrix {
	bounds := img.Bounds()
	m := NewMatrix(bounds.Dx(), bounds.Dy())
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			v := 0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)
			m.Set(x-bounds.Min.X, y-bounds.Min.Y, v/0xffff)
		}
	}
	return m
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

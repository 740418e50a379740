package datatype

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"
)

func TestMatrixCodecPreservesSamples(t *testing.T) {
	t.Parallel()

	m := NewMatrix(3, 2)
	for i := range m.Data {
		m.Data[i] = float64(i) * 0.5
	}

	data, err := MarshalMatrix(m)
	require.NoError(t, err)

	decoded, err := UnmarshalMatrix(data)
	require.NoError(t, err)
	assert.Equal(t, m, decoded)
}

func TestDecodeMatrixRejectsGarbage(t *testing.T) {
	t.Parallel()

	_, err := UnmarshalMatrix([]byte("not a matrix at all"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCorrupt))
}

func TestBandsAndBandExtraction(t *testing.T) {
	t.Parallel()

	img := image.NewRGBA(image.Rect(0, 0, 2, 1))
	img.Set(0, 0, color.RGBA{R: 255, G: 0, B: 0, A: 255})
	img.Set(1, 0, color.RGBA{R: 0, G: 255, B: 0, A: 255})

	assert.Equal(t, 4, Bands(img))
	assert.Equal(t, 1, Bands(image.NewGray(image.Rect(0, 0, 1, 1))))

	red, err := Band(img, 0)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, red.At(0, 0), 1e-9)
	assert.InDelta(t, 0.0, red.At(1, 0), 1e-9)

	_, err = Band(img, 4)
	require.Error(t, err)
}

func TestDecodeImageAcceptsBMP(t *testing.T) {
	t.Parallel()

	src := image.NewGray(image.Rect(0, 0, 4, 4))
	var buf bytes.Buffer
	require.NoError(t, bmp.Encode(&buf, src))

	img, format, err := DecodeImage(&buf)
	require.NoError(t, err)
	assert.Equal(t, "bmp", format)
	assert.Equal(t, 4, img.Bounds().Dx())
}

func TestScaleKeepsAspectRatio(t *testing.T) {
	t.Parallel()

	img := image.NewGray(image.Rect(0, 0, 200, 100))
	scaled := Scale(img, 50)
	assert.Equal(t, 50, scaled.Bounds().Dx())
	assert.Equal(t, 25, scaled.Bounds().Dy())

	assert.Same(t, img, Scale(img, 500))
}

func TestMatrixToImageNormalises(t *testing.T) {
	t.Parallel()

	m := NewMatrix(2, 1)
	m.Set(0, 0, -1)
	m.Set(1, 0, 3)
	img := m.ToImage()
	assert.Equal(t, uint8(0), img.GrayAt(0, 0).Y)
	assert.Equal(t, uint8(255), img.GrayAt(1, 0).Y)
}

func TestMarshalRejectsWrongPayload(t *testing.T) {
	t.Parallel()

	_, err := Marshal(Matrix, image.NewGray(image.Rect(0, 0, 1, 1)))
	require.Error(t, err)

	data, err := Marshal(Image, image.NewGray(image.Rect(0, 0, 1, 1)))
	require.NoError(t, err)
	payload, err := Unmarshal(Image, data)
	require.NoError(t, err)
	_, ok := payload.(image.Image)
	assert.True(t, ok)
}

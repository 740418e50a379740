package grayscaleplugin

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/diva/internal/datatype"
	"github.com/alexisbeaulieu97/diva/internal/logger"
	"github.com/alexisbeaulieu97/diva/internal/processor"
	"github.com/alexisbeaulieu97/diva/internal/store"
)

func run(t *testing.T, channel string, img image.Image) (*datatype.FloatMatrix, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	log, err := logger.New(logger.Options{Level: "debug", Writer: buf})
	require.NoError(t, err)

	pc := &processor.Context{PageID: 1, ProcessorID: "gray", Store: store.NewMemory(), Log: log}
	proc, err := New().NewInstance(pc)
	require.NoError(t, err)
	require.NoError(t, proc.Parameters().Set("channel", channel))
	require.NoError(t, proc.Init(context.Background(), pc))

	src := processor.NewBase("page", 0)
	out := src.AddOutput("image", datatype.Image)
	require.NoError(t, out.ConnectTo(proc.Input("image")))
	require.NoError(t, out.SetOutput(img))

	require.NoError(t, proc.Process(context.Background()))
	v, ok := proc.Output("gray").Value()
	require.True(t, ok)
	return v.(*datatype.FloatMatrix), buf.String()
}

func TestGrayscaleExtractsChannel(t *testing.T) {
	t.Parallel()

	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	img.Set(0, 0, color.RGBA{R: 255, G: 0, B: 0, A: 255})

	red, _ := run(t, ChannelRed, img)
	assert.InDelta(t, 1.0, red.At(0, 0), 1e-9)

	green, _ := run(t, ChannelGreen, img)
	assert.InDelta(t, 0.0, green.At(0, 0), 1e-9)

	lum, _ := run(t, ChannelLuminance, img)
	assert.InDelta(t, 0.299, lum.At(0, 0), 1e-6)
}

func TestGrayscaleFallsBackToLuminanceForGreyImages(t *testing.T) {
	t.Parallel()

	img := image.NewGray(image.Rect(0, 0, 1, 1))
	img.SetGray(0, 0, color.Gray{Y: 255})

	m, logs := run(t, ChannelBlue, img)
	assert.InDelta(t, 1.0, m.At(0, 0), 1e-6)
	assert.Contains(t, logs, "image has no such channel")
}

func TestGrayscaleRejectsUnknownChannel(t *testing.T) {
	t.Parallel()

	proc, err := New().NewInstance(nil)
	require.NoError(t, err)
	require.Error(t, proc.Parameters().Set("channel", "infrared"))
}

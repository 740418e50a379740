package grayscaleplugin

import (
	"context"
	"fmt"
	"image"

	"github.com/alexisbeaulieu97/diva/internal/datatype"
	"github.com/alexisbeaulieu97/diva/internal/plugin"
	"github.com/alexisbeaulieu97/diva/internal/processor"
)

// Name is the service name of the grayscale converter.
const Name = "grayscale"

const capabilities = processor.CanProcess | processor.CanEdit | processor.CanReset

// Channels accepted by the "channel" parameter.
const (
	ChannelLuminance = "luminance"
	ChannelRed       = "red"
	ChannelGreen     = "green"
	ChannelBlue      = "blue"
)

var bands = map[string]int{ChannelRed: 0, ChannelGreen: 1, ChannelBlue: 2}

type grayscale struct {
	*processor.Base
}

// New creates the grayscale service: an image in, a single band float matrix
// out.
func New() plugin.Service {
	return plugin.Func{
		Meta: plugin.Metadata{
			Name:         Name,
			Version:      "1.0.0",
			Description:  "Converts an image to a single band float matrix.",
			Capabilities: capabilities,
			Inputs:       []processor.PortSpec{{Key: "image", Type: datatype.Image, Required: true}},
			Outputs:      []processor.PortSpec{{Key: "gray", Type: datatype.Matrix}},
		},
		New: func(*processor.Context) (processor.Processor, error) {
			g := &grayscale{Base: processor.NewBase(Name, capabilities)}
			g.Parameters().AddChoice("channel", "Channel", ChannelLuminance,
				ChannelLuminance, ChannelRed, ChannelGreen, ChannelBlue)
			g.AddInput("image", datatype.Image, true)
			g.AddOutput("gray", datatype.Matrix)
			return g, nil
		},
	}
}

func (g *grayscale) Process(ctx context.Context) error {
	v, ok := g.Input("image").Value()
	if !ok {
		return fmt.Errorf("%s: input image not ready", Name)
	}
	img, ok := v.(image.Image)
	if !ok {
		return fmt.Errorf("%s: input payload is %T", Name, v)
	}
	if err := g.Checkpoint(ctx); err != nil {
		return err
	}

	gray, err := g.convert(ctx, img)
	if err != nil {
		return err
	}
	if err := g.Checkpoint(ctx); err != nil {
		return err
	}
	if err := g.Persist(ctx, "gray", gray); err != nil {
		return err
	}
	return g.Commit(ctx)
}

func (g *grayscale) convert(ctx context.Context, img image.Image) (*datatype.FloatMatrix, error) {
	channel := g.Parameters().Text("channel")
	band, isBand := bands[channel]
	if !isBand {
		return datatype.Luminance(img), nil
	}
	if band >= datatype.Bands(img) {
		g.Logger().Warn(ctx, "image has no such channel, using luminance",
			"channel", channel, "bands", datatype.Bands(img))
		return datatype.Luminance(img), nil
	}
	return datatype.Band(img, band)
}

package pageplugin

import (
	"context"
	"fmt"
	"os"

	"github.com/alexisbeaulieu97/diva/internal/datatype"
	"github.com/alexisbeaulieu97/diva/internal/plugin"
	"github.com/alexisbeaulieu97/diva/internal/processor"
)

// Name is the service name of the page source.
const Name = "page"

const capabilities = processor.CanProcess | processor.CanReset

type pageProcessor struct {
	*processor.Base
}

// New creates the page source service. Its instances decode the page image
// named by the processor context and publish it on the "image" output.
func New() plugin.Service {
	return plugin.Func{
		Meta: plugin.Metadata{
			Name:         Name,
			Version:      "1.0.0",
			Description:  "Loads the page image.",
			Capabilities: capabilities,
			Outputs:      []processor.PortSpec{{Key: "image", Type: datatype.Image}},
		},
		New: func(*processor.Context) (processor.Processor, error) {
			p := &pageProcessor{Base: processor.NewBase(Name, capabilities)}
			p.AddOutput("image", datatype.Image)
			return p, nil
		},
	}
}

func (p *pageProcessor) Process(ctx context.Context) error {
	pc := p.Context()
	if pc == nil || pc.Image == "" {
		return fmt.Errorf("page %d has no image", pageID(pc))
	}

	f, err := os.Open(pc.Image)
	if err != nil {
		return fmt.Errorf("open page image: %w", err)
	}
	defer f.Close()

	img, format, err := datatype.DecodeImage(f)
	if err != nil {
		return fmt.Errorf("decode page image %s: %w", pc.Image, err)
	}
	if err := p.Checkpoint(ctx); err != nil {
		return err
	}
	p.Logger().Debug(ctx, "page image loaded", "path", pc.Image, "format", format,
		"width", img.Bounds().Dx(), "height", img.Bounds().Dy())

	if err := p.Persist(ctx, "image", img); err != nil {
		return err
	}
	return p.Commit(ctx)
}

func pageID(pc *processor.Context) int {
	if pc == nil {
		return 0
	}
	return pc.PageID
}

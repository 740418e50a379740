// Package plugins registers the built-in processor services.
package plugins

import (
	"github.com/alexisbeaulieu97/diva/internal/plugin"
	grayscaleplugin "github.com/alexisbeaulieu97/diva/internal/plugins/grayscale"
	magnitudeplugin "github.com/alexisbeaulieu97/diva/internal/plugins/magnitude"
	pageplugin "github.com/alexisbeaulieu97/diva/internal/plugins/page"
	sobelplugin "github.com/alexisbeaulieu97/diva/internal/plugins/sobel"
)

// Services returns the built-in services.
func Services() []plugin.Service {
	return []plugin.Service{
		pageplugin.New(),
		grayscaleplugin.New(),
		sobelplugin.New(),
		magnitudeplugin.New(),
	}
}

// Register adds every built-in service to r.
func Register(r *plugin.Registry) error {
	for _, svc := range Services() {
		if err := r.Register(svc); err != nil {
			return err
		}
	}
	return nil
}

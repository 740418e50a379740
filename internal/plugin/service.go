// Package plugin holds the processor service contract and the registry the
// pipeline builder resolves services from.
package plugin

import "github.com/alexisbeaulieu97/diva/internal/processor"

// Service is a non-initialised processor factory. NewInstance with a nil
// context yields a passive, editor-only processor; with a context it yields a
// runnable processor bound to that persistence context.
type Service interface {
	Metadata() Metadata
	NewInstance(pc *processor.Context) (processor.Processor, error)
}

// Func adapts a metadata value and a constructor into a Service.
type Func struct {
	Meta Metadata
	New  func(pc *processor.Context) (processor.Processor, error)
}

func (f Func) Metadata() Metadata { return f.Meta }

func (f Func) NewInstance(pc *processor.Context) (processor.Processor, error) {
	return f.New(pc)
}

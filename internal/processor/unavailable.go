package processor

import (
	"context"
	"fmt"

	"github.com/alexisbeaulieu97/diva/internal/datatype"
)

// Unavailable stands in for a processor whose service is not registered. It
// keeps the declared ports so the pipeline stays wired, and is always
// UNAVAILABLE.
type Unavailable struct {
	*Base
}

// NewUnavailable creates a placeholder for service with the given ports.
func NewUnavailable(service string, inputs, outputs []PortSpec) *Unavailable {
	u := &Unavailable{Base: NewBase(service, 0)}
	for _, spec := range inputs {
		u.AddInput(spec.Key, spec.Type, spec.Required)
	}
	for _, spec := range outputs {
		dtype := spec.Type
		if dtype == "" {
			dtype = datatype.Image
		}
		u.AddOutput(spec.Key, dtype)
	}
	return u
}

func (u *Unavailable) IsAvailable() bool { return false }

// Init keeps the placeholder passive; persisted outputs of the missing
// service stay untouched.
func (u *Unavailable) Init(_ context.Context, pc *Context) error {
	u.Rebind(pc)
	return nil
}

func (u *Unavailable) Process(context.Context) error {
	return fmt.Errorf("processor service %q is not available", u.Name())
}

func (u *Unavailable) Reset(context.Context) error {
	return nil
}

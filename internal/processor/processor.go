// Package processor defines the processor contract, its typed ports and the
// state machine derived from them.
package processor

import (
	"context"

	"github.com/alexisbeaulieu97/diva/internal/datatype"
	"github.com/alexisbeaulieu97/diva/internal/logger"
	"github.com/alexisbeaulieu97/diva/internal/ports"
	"github.com/alexisbeaulieu97/diva/internal/store"
)

// Processor is a unit of configurable image-processing work. Implementations
// embed *Base, which supplies every method except Process.
//
// The hooks IsError, IsAvailable, IsConnected, IsWaitingOnInputParams and
// IsReadyOutputParams feed StateOf; overriding them changes the derived state.
type Processor interface {
	Name() string
	Capabilities() Capability
	Parameters() *Parameters
	Inputs() []*Port
	Outputs() []*Port
	Input(key string) *Port
	Output(key string) *Port

	IsError() bool
	IsAvailable() bool
	IsConnected() bool
	IsWaitingOnInputParams() bool
	IsReadyOutputParams() bool

	Err() error
	SetError(err error)

	// Init applies configuration. Runnable instances restore persisted
	// outputs whose parameter fingerprint still matches.
	Init(ctx context.Context, pc *Context) error
	// Rebind swaps the persistence handle without touching port state.
	Rebind(pc *Context)
	// Process computes and persists the outputs. It must observe ctx at its
	// checkpoints and, when cancelled, reset itself and return ctx.Err().
	Process(ctx context.Context) error
	// Reset discards persisted outputs, clears output ports and any error.
	// Resetting twice is a no-op.
	Reset(ctx context.Context) error

	Subscribe(buffer int) (<-chan Event, func())
}

// Context binds a runnable processor to its page and persistence store. A nil
// *Context denotes a passive, editor-only instance.
type Context struct {
	PageID      int
	ProcessorID string
	// Image is the path of the page image, read by source processors.
	Image string
	Store store.Store
	// ReadOnly instances restore persisted outputs but never write or
	// delete them.
	ReadOnly bool
	Log      ports.Logger
}

// Logger returns pc.Log, or a discarding logger.
func (pc *Context) Logger() ports.Logger {
	if pc == nil || pc.Log == nil {
		return logger.Nop()
	}
	return pc.Log
}

// PortSpec declares a port by key and type.
type PortSpec struct {
	Key      string        `yaml:"key"`
	Type     datatype.Type `yaml:"type"`
	Required bool          `yaml:"required,omitempty"`
}

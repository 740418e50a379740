package processor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/alexisbeaulieu97/diva/internal/datatype"
	"github.com/alexisbeaulieu97/diva/internal/ports"
	"github.com/alexisbeaulieu97/diva/internal/store"
	divaerrors "github.com/alexisbeaulieu97/diva/pkg/errors"
)

// FingerprintKey is the store key holding the parameter fingerprint of the
// last committed run. It is written last, so its presence marks a complete run.
const FingerprintKey = "params.sha256"

// Event reports a port state change of a processor.
type Event struct {
	Processor string
	Port      string
	Direction Direction
	State     PortState
}

// Base implements the Processor plumbing shared by all processors.
type Base struct {
	name   string
	caps   Capability
	params *Parameters

	inputs     []*Port
	outputs    []*Port
	storageKey map[string]string

	mu  sync.RWMutex
	pc  *Context
	err error

	subMu   sync.Mutex
	subs    map[int]chan Event
	nextSub int
	dropped atomic.Int64
}

// NewBase creates the shared part of a processor of service name with caps.
func NewBase(name string, caps Capability) *Base {
	return &Base{
		name:       name,
		caps:       caps,
		params:     NewParameters(),
		storageKey: make(map[string]string),
		subs:       make(map[int]chan Event),
	}
}

func (b *Base) Name() string             { return b.name }
func (b *Base) Capabilities() Capability { return b.caps }
func (b *Base) Parameters() *Parameters  { return b.params }
func (b *Base) Inputs() []*Port          { return b.inputs }
func (b *Base) Outputs() []*Port         { return b.outputs }

// Input returns the input port under key, or nil.
func (b *Base) Input(key string) *Port {
	for _, p := range b.inputs {
		if p.key == key {
			return p
		}
	}
	return nil
}

// Output returns the output port under key, or nil.
func (b *Base) Output(key string) *Port {
	for _, p := range b.outputs {
		if p.key == key {
			return p
		}
	}
	return nil
}

// AddInput declares an input port.
func (b *Base) AddInput(key string, dtype datatype.Type, required bool) *Port {
	p := newPort(b, key, Input, dtype, required)
	b.inputs = append(b.inputs, p)
	return p
}

// AddOutput declares an output port persisted under key plus a type specific
// extension ("dx" becomes "dx.bmat").
func (b *Base) AddOutput(key string, dtype datatype.Type) *Port {
	p := newPort(b, key, Output, dtype, false)
	b.outputs = append(b.outputs, p)
	b.storageKey[key] = key + extension(dtype)
	return p
}

// StorageKey returns the store key of an output port.
func (b *Base) StorageKey(output string) string {
	return b.storageKey[output]
}

func extension(dtype datatype.Type) string {
	switch dtype {
	case datatype.Matrix:
		return ".bmat"
	case datatype.Image:
		return ".png"
	default:
		return ".bin"
	}
}

func (b *Base) IsAvailable() bool            { return true }
func (b *Base) IsWaitingOnInputParams() bool { return false }
func (b *Base) IsReadyOutputParams() bool    { return true }

// IsError reports whether the processor was marked ERROR.
func (b *Base) IsError() bool {
	return b.Err() != nil
}

// IsConnected reports whether every required input is connected.
func (b *Base) IsConnected() bool {
	for _, in := range b.inputs {
		if in.required && !in.IsConnected() {
			return false
		}
	}
	return true
}

func (b *Base) Err() error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.err
}

// SetError marks the processor ERROR until the next Reset. A nil err clears it.
func (b *Base) SetError(err error) {
	b.mu.Lock()
	b.err = err
	b.mu.Unlock()
}

// Context returns the bound persistence context, nil for passive instances.
func (b *Base) Context() *Context {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.pc
}

// Runnable reports whether the instance is bound to a persistence context.
func (b *Base) Runnable() bool {
	return b.Context() != nil
}

// Logger returns the logger of the bound context.
func (b *Base) Logger() ports.Logger {
	return b.Context().Logger()
}

func (b *Base) store() store.Store {
	pc := b.Context()
	if pc == nil {
		return nil
	}
	return pc.Store
}

// writable returns the store unless the instance is read-only.
func (b *Base) writable() store.Store {
	pc := b.Context()
	if pc == nil || pc.ReadOnly {
		return nil
	}
	return pc.Store
}

// Init binds pc and, for runnable instances, restores persisted outputs.
func (b *Base) Init(ctx context.Context, pc *Context) error {
	b.Rebind(pc)
	if pc == nil || pc.Store == nil {
		return nil
	}
	_, err := b.Restore(ctx)
	return err
}

// Rebind swaps the persistence handle.
func (b *Base) Rebind(pc *Context) {
	b.mu.Lock()
	b.pc = pc
	b.mu.Unlock()
}

// Process is not supported by the base.
func (b *Base) Process(context.Context) error {
	return divaerrors.ErrNotSupported
}

// Reset deletes every persisted key of the processor, clears the outputs and
// the error.
func (b *Base) Reset(ctx context.Context) error {
	b.SetError(nil)
	for _, out := range b.outputs {
		out.ResetOutput()
	}
	s := b.writable()
	if s == nil {
		return nil
	}
	if err := s.Delete(ctx, FingerprintKey); err != nil {
		return err
	}
	return store.Clear(ctx, s)
}

// Persist encodes payload, writes it under the output's store key and sets
// the output READY.
func (b *Base) Persist(ctx context.Context, output string, payload any) error {
	out := b.Output(output)
	if out == nil {
		return fmt.Errorf("%s: unknown output %q", b.name, output)
	}
	if s := b.writable(); s != nil {
		data, err := datatype.Marshal(out.dtype, payload)
		if err != nil {
			return err
		}
		if err := s.Write(ctx, b.storageKey[output], data); err != nil {
			return err
		}
	}
	return out.SetOutput(payload)
}

// Commit records the parameter fingerprint. Call it after every output was
// persisted.
func (b *Base) Commit(ctx context.Context) error {
	s := b.writable()
	if s == nil {
		return nil
	}
	return s.Write(ctx, FingerprintKey, []byte(b.params.Fingerprint()))
}

// Restore sets every output from the store when the committed fingerprint
// matches the current parameters. It reports whether outputs were restored.
// Mismatched or corrupt state is discarded, unless the instance is read-only
// in which case it is only left unrestored.
func (b *Base) Restore(ctx context.Context) (bool, error) {
	s := b.store()
	if s == nil || len(b.outputs) == 0 {
		return false, nil
	}
	stored, err := s.Read(ctx, FingerprintKey)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if string(stored) != b.params.Fingerprint() {
		b.Logger().Debug(ctx, "parameters changed since last run, discarding outputs", "processor", b.name)
		return false, b.discard(ctx)
	}

	payloads := make([]any, len(b.outputs))
	for i, out := range b.outputs {
		data, err := s.Read(ctx, b.storageKey[out.key])
		if err != nil {
			b.Logger().Warn(ctx, "persisted output missing, discarding state", "processor", b.name, "output", out.key, "error", err)
			return false, b.discard(ctx)
		}
		payload, err := datatype.Unmarshal(out.dtype, data)
		if err != nil {
			b.Logger().Warn(ctx, "persisted output unreadable, discarding state", "processor", b.name, "output", out.key, "error", err)
			return false, b.discard(ctx)
		}
		payloads[i] = payload
	}
	for i, out := range b.outputs {
		if err := out.SetOutput(payloads[i]); err != nil {
			return false, err
		}
	}
	return true, nil
}

func (b *Base) discard(ctx context.Context) error {
	if b.writable() == nil {
		return nil
	}
	return b.Reset(ctx)
}

// Checkpoint returns ctx.Err() after resetting the processor when ctx is done.
func (b *Base) Checkpoint(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		if rerr := b.Reset(context.WithoutCancel(ctx)); rerr != nil {
			return errors.Join(err, rerr)
		}
		return err
	}
	return nil
}

// Subscribe returns a channel receiving port state changes. Events are
// dropped, and counted, when the buffer is full. Call the returned function to
// unsubscribe.
func (b *Base) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Event, buffer)
	b.subMu.Lock()
	id := b.nextSub
	b.nextSub++
	b.subs[id] = ch
	b.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.subMu.Lock()
			delete(b.subs, id)
			b.subMu.Unlock()
			close(ch)
		})
	}
}

// Dropped returns the number of events lost to full subscriber buffers.
func (b *Base) Dropped() int64 {
	return b.dropped.Load()
}

func (b *Base) portChanged(p *Port, state PortState) {
	b.subMu.Lock()
	defer b.subMu.Unlock()
	if len(b.subs) == 0 {
		return
	}
	ev := Event{Processor: b.name, Port: p.key, Direction: p.dir, State: state}
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.dropped.Add(1)
		}
	}
}

package processor

import (
	"slices"
	"sync"

	"github.com/alexisbeaulieu97/diva/internal/datatype"
	divaerrors "github.com/alexisbeaulieu97/diva/pkg/errors"
)

// Direction distinguishes input ports from output ports.
type Direction int

const (
	Input Direction = iota
	Output
)

func (d Direction) String() string {
	if d == Output {
		return "output"
	}
	return "input"
}

// PortState is the readiness of a single port.
type PortState int

const (
	PortUnconnected PortState = iota
	PortWaiting
	PortReady
)

func (s PortState) String() string {
	switch s {
	case PortWaiting:
		return "WAITING"
	case PortReady:
		return "READY"
	default:
		return "UNCONNECTED"
	}
}

// Port is a typed connection point of a processor.
//
// An input holds at most one upstream output and derives its state and
// payload from it, so every input fanned out from one output flips to READY
// in the same instant the output does. Outputs hold the payload.
//
// Lock order is always output before input.
type Port struct {
	key      string
	dir      Direction
	dtype    datatype.Type
	required bool
	owner    *Base

	mu         sync.Mutex
	upstream   *Port
	downstream []*Port
	payload    any
	ready      bool
}

func newPort(owner *Base, key string, dir Direction, dtype datatype.Type, required bool) *Port {
	return &Port{key: key, dir: dir, dtype: dtype, required: required, owner: owner}
}

// Key returns the port key, unique per direction within its processor.
func (p *Port) Key() string { return p.key }

// Direction returns whether p is an input or an output.
func (p *Port) Direction() Direction { return p.dir }

// Type returns the payload type tag.
func (p *Port) Type() datatype.Type { return p.dtype }

// Required reports whether an input must be connected for its processor to run.
func (p *Port) Required() bool { return p.required }

// Owner returns the processor base the port belongs to.
func (p *Port) Owner() *Base { return p.owner }

// String renders "service.key" for logs and errors.
func (p *Port) String() string {
	if p.owner == nil {
		return p.key
	}
	return p.owner.Name() + "." + p.key
}

// State returns the current readiness of the port.
func (p *Port) State() PortState {
	if p.dir == Input {
		p.mu.Lock()
		up := p.upstream
		p.mu.Unlock()
		if up == nil {
			return PortUnconnected
		}
		if up.State() == PortReady {
			return PortReady
		}
		return PortWaiting
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case p.ready:
		return PortReady
	case len(p.downstream) > 0:
		return PortWaiting
	default:
		return PortUnconnected
	}
}

// IsConnected reports whether the port has at least one connection.
func (p *Port) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dir == Input {
		return p.upstream != nil
	}
	return len(p.downstream) > 0
}

// Value returns the payload. Inputs read through to their upstream output.
func (p *Port) Value() (any, bool) {
	if p.dir == Input {
		p.mu.Lock()
		up := p.upstream
		p.mu.Unlock()
		if up == nil {
			return nil, false
		}
		return up.Value()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.ready {
		return nil, false
	}
	return p.payload, true
}

// Upstream returns the output feeding an input, or nil.
func (p *Port) Upstream() *Port {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.upstream
}

// Connections returns the connected ports in connection order.
func (p *Port) Connections() []*Port {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dir == Input {
		if p.upstream == nil {
			return nil
		}
		return []*Port{p.upstream}
	}
	return slices.Clone(p.downstream)
}

// ConnectTo joins p and other. Exactly one of them must be an output and the
// type tags must match; an input accepts a single connection. On error
// neither port changes.
func (p *Port) ConnectTo(other *Port) error {
	if other == nil || other == p || p.dir == other.dir {
		return divaerrors.NewPortError(p.String(), portName(other), divaerrors.ErrPortDirection)
	}
	out, in := p, other
	if p.dir == Input {
		out, in = other, p
	}
	if out.dtype != in.dtype {
		return divaerrors.NewPortError(out.String(), in.String(), divaerrors.ErrTypeMismatch)
	}

	out.mu.Lock()
	in.mu.Lock()
	switch {
	case in.upstream == out:
		in.mu.Unlock()
		out.mu.Unlock()
		return nil
	case in.upstream != nil:
		in.mu.Unlock()
		out.mu.Unlock()
		return divaerrors.NewPortError(out.String(), in.String(), divaerrors.ErrCapacityExceeded)
	}
	in.upstream = out
	out.downstream = append(out.downstream, in)
	in.mu.Unlock()
	out.mu.Unlock()

	out.notify()
	in.notify()
	return nil
}

// Disconnect removes the connection between p and other, if any.
func (p *Port) Disconnect(other *Port) {
	if other == nil || p.dir == other.dir {
		return
	}
	out, in := p, other
	if p.dir == Input {
		out, in = other, p
	}

	out.mu.Lock()
	in.mu.Lock()
	if in.upstream != out {
		in.mu.Unlock()
		out.mu.Unlock()
		return
	}
	in.upstream = nil
	out.downstream = slices.DeleteFunc(out.downstream, func(c *Port) bool { return c == in })
	in.mu.Unlock()
	out.mu.Unlock()

	out.notify()
	in.notify()
}

// DisconnectAll removes every connection of p. An output keeps its payload.
func (p *Port) DisconnectAll() {
	for _, other := range p.Connections() {
		p.Disconnect(other)
	}
}

// SetOutput stores the payload of an output and marks it READY. The owner and
// every connected input's owner are notified.
func (p *Port) SetOutput(v any) error {
	if p.dir != Output {
		return divaerrors.NewPortError(p.String(), "", divaerrors.ErrPortDirection)
	}
	p.mu.Lock()
	p.payload = v
	p.ready = true
	p.mu.Unlock()
	p.notifyAll()
	return nil
}

// ResetOutput clears the payload of an output.
func (p *Port) ResetOutput() {
	if p.dir != Output {
		return
	}
	p.mu.Lock()
	changed := p.ready
	p.payload = nil
	p.ready = false
	p.mu.Unlock()
	if changed {
		p.notifyAll()
	}
}

func (p *Port) notifyAll() {
	p.notify()
	for _, in := range p.Connections() {
		in.notify()
	}
}

func (p *Port) notify() {
	if p.owner != nil {
		p.owner.portChanged(p, p.State())
	}
}

func portName(p *Port) string {
	if p == nil {
		return "<nil>"
	}
	return p.String()
}

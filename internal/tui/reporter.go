package tui

import (
	"sync"
	"sync/atomic"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/alexisbeaulieu97/diva/internal/engine"
	"github.com/alexisbeaulieu97/diva/internal/infrastructure/host"
	"github.com/alexisbeaulieu97/diva/internal/ports"
)

// Sender delivers messages to a running program. *tea.Program implements it.
type Sender interface {
	Send(msg tea.Msg)
}

// Reporter adapts a bubbletea program to the host ports and to the engine's
// execution logger. Messages are forwarded in call order from one goroutine,
// so callbacks running inside the program may report without blocking it.
type Reporter struct {
	send     Sender
	loop     *host.Loop
	detached atomic.Bool

	mu sync.Mutex
	// sent holds callbacks handed to the program that may not have run yet.
	sent []runMsg
}

var (
	_ engine.ExecutionLogger = (*Reporter)(nil)
	_ ports.StatusReporter   = (*Reporter)(nil)
	_ ports.ErrorReporter    = (*Reporter)(nil)
	_ ports.UIThread         = (*Reporter)(nil)
)

// NewReporter forwards to send until Close.
func NewReporter(send Sender) *Reporter {
	return &Reporter{send: send, loop: host.NewLoop()}
}

func (r *Reporter) forward(msg tea.Msg) {
	if r.detached.Load() {
		return
	}
	r.loop.RunLater(func() {
		if !r.detached.Load() {
			r.send.Send(msg)
		}
	})
}

// RunLater runs fn inside the program's update loop. Once the reporter is
// detached fn runs on the reporter goroutine instead. A callback the program
// dropped while quitting runs on Detach, so every fn runs exactly once.
func (r *Reporter) RunLater(fn func()) {
	r.loop.RunLater(func() {
		if r.detached.Load() {
			fn()
			return
		}
		msg := runMsg{fn: fn, claimed: &atomic.Bool{}}
		r.track(msg)
		r.send.Send(msg)
	})
}

func (r *Reporter) track(msg runMsg) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pending := r.sent[:0]
	for _, m := range r.sent {
		if !m.claimed.Load() {
			pending = append(pending, m)
		}
	}
	r.sent = append(pending, msg)
}

// runUnclaimed runs the callbacks the program never executed.
func (r *Reporter) runUnclaimed() {
	r.mu.Lock()
	sent := r.sent
	r.sent = nil
	r.mu.Unlock()
	for _, m := range sent {
		m.run()
	}
}

// Status implements ports.StatusReporter.
func (r *Reporter) Status(title, message string, progress float64) {
	r.forward(StatusMsg{Title: title, Message: message, Progress: progress})
}

// ShowError implements ports.ErrorReporter.
func (r *Reporter) ShowError(err error) {
	r.forward(ErrorMsg{Err: err})
}

func (r *Reporter) PageStarted(pageID int, pipeline string) {
	r.forward(PageStartedMsg{PageID: pageID, Pipeline: pipeline})
}

func (r *Reporter) ProcessorStarted(pageID int, nodeID, service string) {
	r.forward(ProcessorStartedMsg{PageID: pageID, NodeID: nodeID, Service: service})
}

func (r *Reporter) ProcessorFinished(pageID int, result engine.ProcessorResult) {
	r.forward(ProcessorFinishedMsg{PageID: pageID, Result: result})
}

func (r *Reporter) PageFinished(result *engine.PageResult) {
	r.forward(PageFinishedMsg{Result: result})
}

// Done ends the program with the batch outcome.
func (r *Reporter) Done(batch *engine.BatchResult, err error) {
	r.forward(DoneMsg{Batch: batch, Err: err})
}

// Detach stops forwarding to the program, typically after it exited.
// Pending RunLater callbacks still run, including those the program
// received too late to execute.
func (r *Reporter) Detach() {
	if r.detached.Swap(true) {
		return
	}
	r.loop.RunLater(r.runUnclaimed)
}

// Close detaches and drains pending callbacks.
func (r *Reporter) Close() {
	r.Detach()
	r.loop.Close()
}

package engine

import (
	"slices"
	"sync"
	"time"
)

// ExecutionLogger observes a controller run. Calls for one page arrive in
// order; processor calls of independent branches may be concurrent.
type ExecutionLogger interface {
	PageStarted(pageID int, pipeline string)
	ProcessorStarted(pageID int, nodeID, service string)
	ProcessorFinished(pageID int, result ProcessorResult)
	PageFinished(result *PageResult)
}

type nopExecLog struct{}

func (nopExecLog) PageStarted(int, string)                {}
func (nopExecLog) ProcessorStarted(int, string, string)   {}
func (nopExecLog) ProcessorFinished(int, ProcessorResult) {}
func (nopExecLog) PageFinished(*PageResult)               {}

// TimingEntry is one timed unit of a run. NodeID is empty for page entries.
type TimingEntry struct {
	PageID   int
	NodeID   string
	Service  string
	Outcome  Outcome
	Duration time.Duration
}

// TimingLogger records how long every page and processor took.
type TimingLogger struct {
	mu      sync.Mutex
	entries []TimingEntry
}

// NewTimingLogger returns an empty timing logger.
func NewTimingLogger() *TimingLogger {
	return &TimingLogger{}
}

func (l *TimingLogger) PageStarted(int, string) {}

func (l *TimingLogger) ProcessorStarted(int, string, string) {}

func (l *TimingLogger) ProcessorFinished(pageID int, r ProcessorResult) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, TimingEntry{
		PageID:   pageID,
		NodeID:   r.NodeID,
		Service:  r.Service,
		Outcome:  r.Outcome,
		Duration: r.Duration,
	})
}

func (l *TimingLogger) PageFinished(r *PageResult) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, TimingEntry{
		PageID:   r.PageID,
		Service:  r.Pipeline,
		Outcome:  r.Outcome,
		Duration: r.Duration,
	})
}

// Entries returns the recorded entries in completion order.
func (l *TimingLogger) Entries() []TimingEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.entries)
}

// Total sums the page durations.
func (l *TimingLogger) Total() time.Duration {
	var total time.Duration
	for _, e := range l.Entries() {
		if e.NodeID == "" {
			total += e.Duration
		}
	}
	return total
}

package engine

import (
	"errors"
	"time"

	"github.com/alexisbeaulieu97/diva/internal/processor"
)

// Outcome is the result of running a processor, a page or a batch.
type Outcome string

// Skipped processors had READY outputs already; blocked ones sit downstream
// of a failure.
const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeFailed    Outcome = "failed"
	OutcomeBlocked   Outcome = "blocked"
	OutcomeCancelled Outcome = "cancelled"
)

func (o Outcome) String() string { return string(o) }

// ok reports whether dependents may consume the outputs.
func (o Outcome) ok() bool {
	return o == OutcomeSucceeded || o == OutcomeSkipped
}

// ProcessorResult captures the outcome of one processor on one page.
type ProcessorResult struct {
	NodeID    string
	Service   string
	Outcome   Outcome
	State     processor.State
	Err       error
	Duration  time.Duration
	Timestamp time.Time
}

// PageResult aggregates the processor results of one page in execution order.
type PageResult struct {
	PageID     int
	Pipeline   string
	Outcome    Outcome
	Processors []ProcessorResult
	Duration   time.Duration
	Err        error
}

// Count returns the number of processors with outcome o.
func (r *PageResult) Count(o Outcome) int {
	n := 0
	for _, p := range r.Processors {
		if p.Outcome == o {
			n++
		}
	}
	return n
}

// Processor returns the result of node id.
func (r *PageResult) Processor(id string) (ProcessorResult, bool) {
	for _, p := range r.Processors {
		if p.NodeID == id {
			return p, true
		}
	}
	return ProcessorResult{}, false
}

func (r *PageResult) settle() {
	var errs []error
	r.Outcome = OutcomeSucceeded
	for _, p := range r.Processors {
		switch p.Outcome {
		case OutcomeCancelled:
			r.Outcome = OutcomeCancelled
		case OutcomeFailed:
			errs = append(errs, p.Err)
			if r.Outcome != OutcomeCancelled {
				r.Outcome = OutcomeFailed
			}
		}
	}
	if r.Err == nil {
		r.Err = errors.Join(errs...)
	}
}

// BatchResult aggregates page results of one controller run.
type BatchResult struct {
	RunID    string
	Pages    []*PageResult
	Outcome  Outcome
	Duration time.Duration
}

// Page returns the result of page id.
func (b *BatchResult) Page(id int) (*PageResult, bool) {
	for _, p := range b.Pages {
		if p.PageID == id {
			return p, true
		}
	}
	return nil, false
}

// Count returns the number of pages with outcome o.
func (b *BatchResult) Count(o Outcome) int {
	n := 0
	for _, p := range b.Pages {
		if p.Outcome == o {
			n++
		}
	}
	return n
}

// Err joins the errors of every failed page.
func (b *BatchResult) Err() error {
	var errs []error
	for _, p := range b.Pages {
		if p.Outcome == OutcomeFailed && p.Err != nil {
			errs = append(errs, p.Err)
		}
	}
	return errors.Join(errs...)
}

func (b *BatchResult) settle() {
	b.Outcome = OutcomeSucceeded
	for _, p := range b.Pages {
		switch p.Outcome {
		case OutcomeCancelled:
			b.Outcome = OutcomeCancelled
		case OutcomeFailed:
			if b.Outcome != OutcomeCancelled {
				b.Outcome = OutcomeFailed
			}
		}
	}
}

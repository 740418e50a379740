package components

import (
	"fmt"
	"strings"
	"time"
)

// OutcomeCount is the number of pages that ended with one outcome.
type OutcomeCount struct {
	Label string
	Count int
}

// SummaryData aggregates counts for rendering summaries.
type SummaryData struct {
	Total     int
	Completed int
	Finished  bool
	Cancelled bool
	Outcomes  []OutcomeCount
	Duration  time.Duration
	Errors    []string
}

// Summary renders a textual batch summary.
type Summary struct {
	data SummaryData
}

// NewSummary creates a new Summary component.
func NewSummary(data SummaryData) Summary {
	return Summary{data: data}
}

// View renders the summary.
func (s Summary) View() string {
	var lines []string
	if s.data.Total > 0 {
		lines = append(lines, fmt.Sprintf("Pages: %d/%d processed", s.data.Completed, s.data.Total))
	}

	var counts []string
	for _, o := range s.data.Outcomes {
		if o.Count > 0 {
			counts = append(counts, fmt.Sprintf("%s %d", o.Label, o.Count))
		}
	}
	if len(counts) > 0 {
		lines = append(lines, strings.Join(counts, ", "))
	}

	switch {
	case s.data.Cancelled:
		lines = append(lines, "Processing cancelled")
	case s.data.Finished && len(s.data.Errors) > 0:
		lines = append(lines, "Processing finished with errors")
	case s.data.Finished:
		lines = append(lines, "Processing finished successfully")
	}
	if s.data.Finished && s.data.Duration > 0 {
		lines = append(lines, fmt.Sprintf("Elapsed: %s", s.data.Duration.Truncate(time.Millisecond)))
	}

	if len(s.data.Errors) > 0 {
		lines = append(lines, "Errors:")
		for _, msg := range s.data.Errors {
			lines = append(lines, "  ✗ "+msg)
		}
	}

	return strings.Join(lines, "\n")
}

package tui

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/diva/internal/engine"
)

func TestViewRendersBasicLayout(t *testing.T) {
	m := NewModel("Ledger scans", []PageInfo{{ID: 1, Name: "one.png"}, {ID: 2, Name: "two.png"}}, nil)
	m, _ = update(t, m, PageStartedMsg{PageID: 1, Pipeline: "edges"})
	m, _ = update(t, m, ProcessorStartedMsg{PageID: 1, NodeID: "sobel"})
	m, _ = update(t, m, StatusMsg{Message: "Processing one.png", Progress: 0.25})

	view := m.View()
	require.Contains(t, view, "DIVA • Ledger scans")
	require.Contains(t, view, "0/2 pages")
	require.Contains(t, view, "one.png")
	require.Contains(t, view, "[edges]")
	require.Contains(t, view, "▸ sobel")
	require.Contains(t, view, "two.png")
	require.Contains(t, view, "Processing one.png  25%")
	require.Contains(t, view, "Pages: 0/2 processed")
}

func TestViewShowsSummaryWhenFinished(t *testing.T) {
	m := NewModel("", []PageInfo{{ID: 1, Name: "one.png"}, {ID: 2, Name: "two.png"}}, nil)
	m, _ = update(t, m, PageFinishedMsg{Result: &engine.PageResult{PageID: 1, Outcome: engine.OutcomeSucceeded, Duration: 120 * time.Millisecond}})
	m, _ = update(t, m, PageFinishedMsg{Result: &engine.PageResult{PageID: 2, Outcome: engine.OutcomeFailed, Err: errors.New("boom")}})
	m, _ = update(t, m, DoneMsg{Batch: &engine.BatchResult{Duration: 2 * time.Second}, Err: errors.New("boom")})

	view := m.View()
	require.Contains(t, view, "DIVA • Processing")
	require.Contains(t, view, "2/2 pages")
	require.Contains(t, view, "Succeeded, 0 processors (120ms)")
	require.Contains(t, view, "two.png")
	require.Contains(t, view, ": boom")
	require.Contains(t, view, "Succeeded 1, Failed 1")
	require.Contains(t, view, "Processing finished with errors")
	require.Contains(t, view, "Elapsed: 2s")
}

func TestViewShowsCancelling(t *testing.T) {
	m := NewModel("", []PageInfo{{ID: 1}}, func() {})
	m, _ = update(t, m, StatusMsg{Message: "Processing", Progress: -1})
	require.Contains(t, m.View(), "Processing")

	m = m.withInterrupt(t)
	view := m.View()
	require.Contains(t, view, "Cancelling...")
	require.NotContains(t, view, "Processing cancelled")
}

func (m Model) withInterrupt(t *testing.T) Model {
	t.Helper()
	updated, _ := m.interrupt()
	return updated.(Model)
}

func TestOutcomeLabel(t *testing.T) {
	t.Parallel()

	require.Equal(t, "Pending", OutcomeLabel(""))
	require.Equal(t, "Succeeded", OutcomeLabel(engine.OutcomeSucceeded))
	require.Equal(t, "Cancelled", OutcomeLabel(engine.OutcomeCancelled))
}

func TestOutcomeIcon(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		outcome  string
		running  bool
		expected string
	}{
		{"running shows hourglass", "", true, "⏳"},
		{"succeeded shows checkmark", "succeeded", false, "✓"},
		{"failed shows cross", "failed", false, "✗"},
		{"cancelled shows circle-slash", "cancelled", false, "⊘"},
		{"skipped shows circle-slash", "skipped", false, "⊘"},
		{"blocked shows circled cross", "blocked", false, "⊗"},
		{"pending shows ellipsis", "", false, "…"},
		{"unknown shows ellipsis", "unknown", false, "…"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Contains(t, OutcomeIcon(tt.outcome, tt.running), tt.expected)
		})
	}
}

package components

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewSummary(t *testing.T) {
	t.Parallel()

	data := SummaryData{Total: 10, Completed: 5}
	require.Equal(t, data, NewSummary(data).data)
}

func TestSummaryView(t *testing.T) {
	t.Parallel()

	t.Run("renders empty summary", func(t *testing.T) {
		t.Parallel()
		require.Empty(t, NewSummary(SummaryData{}).View())
	})

	t.Run("renders progress while running", func(t *testing.T) {
		t.Parallel()
		view := NewSummary(SummaryData{Total: 4, Completed: 1}).View()
		require.Contains(t, view, "Pages: 1/4 processed")
		require.NotContains(t, view, "finished")
	})

	t.Run("lists non zero outcome counts", func(t *testing.T) {
		t.Parallel()
		view := NewSummary(SummaryData{
			Total:     3,
			Completed: 3,
			Outcomes:  []OutcomeCount{{"Succeeded", 2}, {"Failed", 0}, {"Cancelled", 1}},
		}).View()
		require.Contains(t, view, "Succeeded 2, Cancelled 1")
		require.NotContains(t, view, "Failed")
	})

	t.Run("renders success with elapsed time", func(t *testing.T) {
		t.Parallel()
		view := NewSummary(SummaryData{Total: 1, Completed: 1, Finished: true, Duration: 1500 * time.Millisecond}).View()
		require.Contains(t, view, "Processing finished successfully")
		require.Contains(t, view, "Elapsed: 1.5s")
	})

	t.Run("renders errors", func(t *testing.T) {
		t.Parallel()
		view := NewSummary(SummaryData{Total: 1, Completed: 1, Finished: true, Errors: []string{"page 1: boom"}}).View()
		require.Contains(t, view, "Processing finished with errors")
		require.Contains(t, view, "✗ page 1: boom")
	})

	t.Run("cancellation wins", func(t *testing.T) {
		t.Parallel()
		view := NewSummary(SummaryData{Total: 2, Completed: 1, Finished: true, Cancelled: true, Errors: []string{"x"}}).View()
		require.Contains(t, view, "Processing cancelled")
		require.NotContains(t, view, "finished")
	})
}

package tui

import (
	"context"
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/diva/internal/engine"
)

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	updated, cmd := m.Update(msg)
	return updated.(Model), cmd
}

func TestUpdateTracksPageLifecycle(t *testing.T) {
	m := NewModel("", []PageInfo{{ID: 1, Name: "one"}}, nil)

	m, _ = update(t, m, PageStartedMsg{PageID: 1, Pipeline: "diamond"})
	require.True(t, m.pages[1].Running)
	require.Equal(t, "diamond", m.pages[1].Pipeline)

	m, _ = update(t, m, ProcessorStartedMsg{PageID: 1, NodeID: "a", Service: "constant"})
	m, _ = update(t, m, ProcessorStartedMsg{PageID: 1, NodeID: "b", Service: "constant"})
	require.Equal(t, []string{"a", "b"}, m.pages[1].Current)

	m, _ = update(t, m, ProcessorFinishedMsg{PageID: 1, Result: engine.ProcessorResult{NodeID: "a", Outcome: engine.OutcomeSucceeded}})
	require.Equal(t, []string{"b"}, m.pages[1].Current)
	require.Equal(t, 1, m.pages[1].Done)

	m, _ = update(t, m, PageFinishedMsg{Result: &engine.PageResult{PageID: 1, Outcome: engine.OutcomeSucceeded, Duration: time.Second}})
	require.False(t, m.pages[1].Running)
	require.Empty(t, m.pages[1].Current)
	require.Equal(t, "succeeded", m.pages[1].Outcome)
	require.Equal(t, 1, m.CompletedPages())

	m, _ = update(t, m, PageFinishedMsg{Result: &engine.PageResult{PageID: 1, Outcome: engine.OutcomeSucceeded}})
	require.Equal(t, 1, m.CompletedPages())

	m, _ = update(t, m, PageFinishedMsg{})
	require.Equal(t, 1, m.CompletedPages())
}

func TestUpdateKeepsFirstFailure(t *testing.T) {
	m := NewModel("", []PageInfo{{ID: 1}}, nil)
	boom := errors.New("boom")

	m, _ = update(t, m, ProcessorFinishedMsg{PageID: 1, Result: engine.ProcessorResult{NodeID: "x", Outcome: engine.OutcomeFailed, Err: boom}})
	m, _ = update(t, m, ProcessorFinishedMsg{PageID: 1, Result: engine.ProcessorResult{NodeID: "y", Outcome: engine.OutcomeFailed, Err: boom}})
	m, _ = update(t, m, PageFinishedMsg{Result: &engine.PageResult{PageID: 1, Outcome: engine.OutcomeFailed, Err: boom}})
	require.Equal(t, "x: boom", m.pages[1].Message)
	require.Equal(t, "failed", m.pages[1].Outcome)
}

func TestUpdateHandlesStatusAndErrors(t *testing.T) {
	m := NewModel("", nil, nil)

	m, _ = update(t, m, StatusMsg{Title: "t", Message: "Processing page 1 of 2", Progress: 0.5})
	require.Equal(t, "Processing page 1 of 2", m.status.Message)

	m, _ = update(t, m, ErrorMsg{Err: errors.New("bad")})
	m, _ = update(t, m, ErrorMsg{Err: context.Canceled})
	m, _ = update(t, m, ErrorMsg{})
	require.Equal(t, []string{"bad"}, m.Errors())
}

func TestUpdateDoneQuits(t *testing.T) {
	batch := &engine.BatchResult{Outcome: engine.OutcomeFailed}

	m := NewModel("", nil, nil)
	m, cmd := update(t, m, DoneMsg{Batch: batch, Err: errors.New("page 1 failed")})
	require.NotNil(t, cmd)
	require.IsType(t, tea.QuitMsg{}, cmd())
	require.True(t, m.IsFinished())
	require.Same(t, batch, m.Batch())
	require.Equal(t, []string{"page 1 failed"}, m.Errors())

	m = NewModel("", nil, nil)
	m, _ = update(t, m, ErrorMsg{Err: errors.New("shown")})
	m, _ = update(t, m, DoneMsg{Err: errors.New("page 1 failed")})
	require.Equal(t, []string{"shown"}, m.Errors())

	m = NewModel("", nil, nil)
	m, _ = update(t, m, DoneMsg{Err: context.Canceled})
	require.True(t, m.Cancelled())
	require.Empty(t, m.Errors())
}

func TestUpdateRunsCallbacks(t *testing.T) {
	m := NewModel("", nil, nil)
	ran := false
	m, cmd := update(t, m, runMsg{fn: func() { ran = true }})
	require.Nil(t, cmd)
	require.True(t, ran)

	_, cmd = update(t, m, runMsg{})
	require.Nil(t, cmd)
}

func TestUpdateInterruptCancelsOnce(t *testing.T) {
	calls := 0
	m := NewModel("", nil, func() { calls++ })

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyCtrlC})
	require.Nil(t, cmd)
	require.True(t, m.Cancelled())
	require.False(t, m.IsFinished())
	require.Equal(t, 1, calls)

	_, cmd = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	require.NotNil(t, cmd)
	require.IsType(t, tea.QuitMsg{}, cmd())
	require.Equal(t, 1, calls)
}

func TestUpdateIgnoresOtherKeysAndTracksWidth(t *testing.T) {
	m := NewModel("", nil, nil)
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'x'}})
	require.Nil(t, cmd)
	require.False(t, m.Cancelled())

	m, _ = update(t, m, tea.WindowSizeMsg{Width: 100, Height: 40})
	require.Equal(t, 100, m.width)
}

func TestUpdateStopsSpinnerWhenFinished(t *testing.T) {
	m := NewModel("", nil, nil)
	m.finished = true
	_, cmd := update(t, m, m.spinner.Tick())
	require.Nil(t, cmd)
}

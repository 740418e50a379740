package tui

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/alexisbeaulieu97/diva/internal/engine"
)

// Update handles Bubbletea messages and updates model state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case spinner.TickMsg:
		if m.finished {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case PageStartedMsg:
		entry := m.ensurePage(msg.PageID)
		entry.Running = true
		entry.Pipeline = msg.Pipeline
		entry.Outcome = ""
		m.pages[msg.PageID] = entry
		return m, nil
	case ProcessorStartedMsg:
		entry := m.ensurePage(msg.PageID)
		entry.Current = append(slices.Clone(entry.Current), msg.NodeID)
		m.pages[msg.PageID] = entry
		return m, nil
	case ProcessorFinishedMsg:
		entry := m.ensurePage(msg.PageID)
		entry.Current = slices.DeleteFunc(slices.Clone(entry.Current), func(id string) bool {
			return id == msg.Result.NodeID
		})
		entry.Done++
		if msg.Result.Outcome == engine.OutcomeFailed && entry.Message == "" && msg.Result.Err != nil {
			entry.Message = fmt.Sprintf("%s: %v", msg.Result.NodeID, msg.Result.Err)
		}
		m.pages[msg.PageID] = entry
		return m, nil
	case PageFinishedMsg:
		if msg.Result == nil {
			return m, nil
		}
		entry := m.ensurePage(msg.Result.PageID)
		if entry.Outcome == "" {
			m.completed++
		}
		entry.Running = false
		entry.Current = nil
		entry.Outcome = string(msg.Result.Outcome)
		entry.Duration = msg.Result.Duration
		if msg.Result.Outcome == engine.OutcomeFailed && entry.Message == "" && msg.Result.Err != nil {
			entry.Message = msg.Result.Err.Error()
		}
		m.pages[msg.Result.PageID] = entry
		return m, nil
	case StatusMsg:
		m.status = msg
		return m, nil
	case ErrorMsg:
		if msg.Err != nil && !errors.Is(msg.Err, context.Canceled) {
			m.errors = append(m.errors, msg.Err.Error())
		}
		return m, nil
	case DoneMsg:
		m.finished = true
		m.batch = msg.Batch
		switch {
		case errors.Is(msg.Err, context.Canceled):
			m.cancelled = true
		case msg.Err != nil && len(m.errors) == 0:
			m.errors = append(m.errors, msg.Err.Error())
		}
		return m, tea.Quit
	case runMsg:
		msg.run()
		return m, nil
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			return m.interrupt()
		}
	}

	return m, nil
}

// interrupt cancels a running batch. A second interrupt, or one after the
// run ended, quits without waiting.
func (m Model) interrupt() (tea.Model, tea.Cmd) {
	if m.finished || m.cancelled {
		return m, tea.Quit
	}
	m.cancelled = true
	if m.cancel != nil {
		m.cancel()
	}
	return m, nil
}

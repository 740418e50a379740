// Package tui renders a batch run in the terminal. The bubbletea program
// doubles as the UI thread of the host ports through Reporter.
package tui

import (
	"sync/atomic"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/alexisbeaulieu97/diva/internal/engine"
	"github.com/alexisbeaulieu97/diva/internal/tui/components"
)

// PageStartedMsg indicates the controller started a page.
type PageStartedMsg struct {
	PageID   int
	Pipeline string
}

// ProcessorStartedMsg indicates a processor of a page started executing.
type ProcessorStartedMsg struct {
	PageID  int
	NodeID  string
	Service string
}

// ProcessorFinishedMsg reports that a processor of a page finished.
type ProcessorFinishedMsg struct {
	PageID int
	Result engine.ProcessorResult
}

// PageFinishedMsg reports that a page finished, whatever its outcome.
type PageFinishedMsg struct {
	Result *engine.PageResult
}

// StatusMsg mirrors a host status update. A negative progress means
// indeterminate.
type StatusMsg struct {
	Title    string
	Message  string
	Progress float64
}

// ErrorMsg carries an error reported to the user.
type ErrorMsg struct {
	Err error
}

// DoneMsg ends the run. Err is the task error, context.Canceled when the
// batch was cancelled.
type DoneMsg struct {
	Batch *engine.BatchResult
	Err   error
}

// runMsg executes fn on the program goroutine. A message that carries a
// claim runs fn only if nobody claimed it first.
type runMsg struct {
	fn      func()
	claimed *atomic.Bool
}

func (m runMsg) run() {
	if m.fn == nil {
		return
	}
	if m.claimed != nil && !m.claimed.CompareAndSwap(false, true) {
		return
	}
	m.fn()
}

// PageInfo names a page of the batch before it starts.
type PageInfo struct {
	ID   int
	Name string
}

// Model contains the Bubbletea state for DIVA's batch view.
type Model struct {
	title     string
	pages     map[int]components.PageEntry
	order     []int
	status    StatusMsg
	errors    []string
	batch     *engine.BatchResult
	spinner   spinner.Model
	cancel    func()
	total     int
	completed int
	width     int
	finished  bool
	cancelled bool
}

// NewModel constructs the view for a batch over pages. cancel is invoked
// once when the user interrupts the run.
func NewModel(title string, pages []PageInfo, cancel func()) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = spinnerStyle

	m := Model{
		title:   title,
		pages:   make(map[int]components.PageEntry, len(pages)),
		order:   make([]int, 0, len(pages)),
		status:  StatusMsg{Progress: -1},
		spinner: s,
		cancel:  cancel,
	}
	for _, p := range pages {
		if _, exists := m.pages[p.ID]; exists {
			continue
		}
		m.pages[p.ID] = components.PageEntry{ID: p.ID, Name: p.Name}
		m.order = append(m.order, p.ID)
		m.total++
	}
	return m
}

// Init starts the spinner.
func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// TotalPages returns the number of pages in the batch.
func (m Model) TotalPages() int {
	return m.total
}

// CompletedPages returns the number of finished pages.
func (m Model) CompletedPages() int {
	return m.completed
}

// IsFinished reports whether the run has ended.
func (m Model) IsFinished() bool {
	return m.finished
}

// Cancelled reports whether the run was interrupted.
func (m Model) Cancelled() bool {
	return m.cancelled
}

// Batch returns the final batch result once the run ended.
func (m Model) Batch() *engine.BatchResult {
	return m.batch
}

// Errors returns the error messages shown to the user.
func (m Model) Errors() []string {
	return append([]string(nil), m.errors...)
}

func (m *Model) ensurePage(id int) components.PageEntry {
	entry, exists := m.pages[id]
	if !exists {
		entry = components.PageEntry{ID: id}
		m.pages[id] = entry
		m.order = append(m.order, id)
		m.total++
	}
	return entry
}

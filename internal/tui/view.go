package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/alexisbeaulieu97/diva/internal/engine"
	"github.com/alexisbeaulieu97/diva/internal/tui/components"
)

var summaryOutcomes = []engine.Outcome{engine.OutcomeSucceeded, engine.OutcomeFailed, engine.OutcomeCancelled}

// View renders the current state of the model.
func (m Model) View() string {
	var sections []string

	title := titleStyle.Render(fmt.Sprintf("DIVA • %s", m.displayTitle()))
	sections = append(sections, title)

	bar := components.NewProgress(m.total, "pages")
	if m.width > 20 {
		bar = bar.WithWidth(min(m.width-20, 60))
	}
	sections = append(sections, sectionStyle.Render("Progress"), bar.View(m.completed))
	if line := m.statusLine(); line != "" {
		sections = append(sections, line)
	}

	entries := components.NewPageList(m.order, m.pages).Entries()
	if len(entries) > 0 {
		sections = append(sections, sectionStyle.Render("Pages"))
		sections = append(sections, renderPageEntries(entries))
	}

	summary := components.NewSummary(m.summaryData()).View()
	if strings.TrimSpace(summary) != "" {
		sections = append(sections, sectionStyle.Render("Summary"), summaryStyle.Render(summary))
	}

	return lipgloss.JoinVertical(lipgloss.Left, sections...) + "\n"
}

func (m Model) statusLine() string {
	if m.finished {
		return ""
	}
	msg := strings.TrimSpace(m.status.Message)
	if m.cancelled {
		msg = "Cancelling..."
	}
	if msg == "" {
		return ""
	}
	if m.status.Progress >= 0 && m.status.Progress < 1 && !m.cancelled {
		msg = fmt.Sprintf("%s %3.0f%%", msg, m.status.Progress*100)
	}
	return m.spinner.View() + " " + msg
}

func renderPageEntries(entries []components.PageEntry) string {
	var lines []string
	for _, entry := range entries {
		line := fmt.Sprintf(" %s %s", OutcomeIcon(entry.Outcome, entry.Running), entry.Name)
		if entry.Pipeline != "" {
			line += mutedStyle.Render(fmt.Sprintf(" [%s]", entry.Pipeline))
		}
		if len(entry.Current) > 0 {
			line += " ▸ " + strings.Join(entry.Current, ", ")
		}
		if entry.Outcome != "" {
			line += fmt.Sprintf(" %s, %d processors", OutcomeLabel(engine.Outcome(entry.Outcome)), entry.Done)
		}
		if entry.Duration > 0 {
			line += fmt.Sprintf(" (%s)", entry.Duration.Truncate(10*time.Millisecond))
		}
		if strings.TrimSpace(entry.Message) != "" {
			line += ": " + entry.Message
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func (m Model) summaryData() components.SummaryData {
	data := components.SummaryData{
		Total:     m.total,
		Completed: m.completed,
		Finished:  m.finished,
		Cancelled: m.cancelled && m.finished,
		Errors:    m.errors,
	}
	if m.batch != nil {
		data.Duration = m.batch.Duration
	}
	for _, o := range summaryOutcomes {
		n := 0
		for _, entry := range m.pages {
			if entry.Outcome == string(o) {
				n++
			}
		}
		data.Outcomes = append(data.Outcomes, components.OutcomeCount{Label: OutcomeLabel(o), Count: n})
	}
	return data
}

func (m Model) displayTitle() string {
	if strings.TrimSpace(m.title) != "" {
		return m.title
	}
	return "Processing"
}

// OutcomeLabel returns the title cased label of an outcome, "Pending" for
// none.
func OutcomeLabel(o engine.Outcome) string {
	if o == "" {
		return "Pending"
	}
	return cases.Title(language.English).String(string(o))
}

// OutcomeIcon returns the glyph representing a page or processor outcome.
func OutcomeIcon(outcome string, running bool) string {
	if running && outcome == "" {
		return runningStyle.Render("⏳")
	}
	switch engine.Outcome(outcome) {
	case engine.OutcomeSucceeded:
		return successStyle.Render("✓")
	case engine.OutcomeFailed:
		return failureStyle.Render("✗")
	case engine.OutcomeSkipped, engine.OutcomeCancelled:
		return skippedStyle.Render("⊘")
	case engine.OutcomeBlocked:
		return pendingStyle.Render("⊗")
	default:
		return pendingStyle.Render("…")
	}
}

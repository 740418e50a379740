package components

import (
	"fmt"
	"math"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
)

// Progress renders batch completion as a count and a bar.
type Progress struct {
	bar   progress.Model
	total int
	unit  string
}

// NewProgress creates a progress component counting total units.
func NewProgress(total int, unit string) Progress {
	bar := progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage())
	bar.Width = 30
	return Progress{bar: bar, total: total, unit: unit}
}

// WithWidth returns a copy whose bar is width cells wide.
func (p Progress) WithWidth(width int) Progress {
	if width > 0 {
		p.bar.Width = width
	}
	return p
}

// View renders the bar for the provided completion count.
func (p Progress) View(completed int) string {
	ratio := 0.0
	if p.total > 0 {
		ratio = math.Min(1.0, float64(completed)/float64(p.total))
	}
	text := fmt.Sprintf("%d/%d", completed, p.total)
	if p.unit != "" {
		text += " " + p.unit
	}
	label := lipgloss.NewStyle().Bold(true).Render(text)
	return lipgloss.JoinHorizontal(lipgloss.Left, p.bar.ViewAs(ratio), " ", label)
}

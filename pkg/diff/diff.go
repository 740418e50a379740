// Package diff renders line oriented differences between two texts, such as
// a recorded state manifest and the current one.
package diff

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

const (
	maxDiffLines    = 10000
	truncateMessage = "... (diff truncated, exceeds 10,000 lines) ..."
)

// Stats counts changed lines.
type Stats struct {
	Added   int
	Removed int
}

// Changed reports whether any line differs.
func (s Stats) Changed() bool { return s.Added > 0 || s.Removed > 0 }

func (s Stats) String() string {
	return fmt.Sprintf("+%d -%d", s.Added, s.Removed)
}

// lineDiffs diffs whole lines: every line is mapped to one rune before
// diffing, so changes never split a line.
func lineDiffs(expected, actual string) []diffmatchpatch.Diff {
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToRunes(expected, actual)
	diffs := dmp.DiffMainRunes(a, b, false)
	return dmp.DiffCharsToLines(diffs, lines)
}

func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(text, "\n"), "\n")
}

// Compare returns the number of added and removed lines.
func Compare(expected, actual []byte) Stats {
	var s Stats
	if bytes.Equal(expected, actual) {
		return s
	}
	for _, d := range lineDiffs(string(expected), string(actual)) {
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			s.Added += len(splitLines(d.Text))
		case diffmatchpatch.DiffDelete:
			s.Removed += len(splitLines(d.Text))
		}
	}
	return s
}

// GenerateUnifiedDiff renders a unified style diff of expected and actual with
// a single hunk covering both texts. It returns "" when they are identical and
// truncates output beyond 10,000 lines.
func GenerateUnifiedDiff(expected, actual []byte, expectedLabel, actualLabel string) string {
	if bytes.Equal(expected, actual) {
		return ""
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "--- %s\n", expectedLabel)
	fmt.Fprintf(&buf, "+++ %s\n", actualLabel)
	fmt.Fprintf(&buf, "@@ -1,%d +1,%d @@\n", len(splitLines(string(expected))), len(splitLines(string(actual))))

	for _, d := range lineDiffs(string(expected), string(actual)) {
		prefix := " "
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			prefix = "-"
		case diffmatchpatch.DiffInsert:
			prefix = "+"
		}
		for _, line := range splitLines(d.Text) {
			buf.WriteString(prefix)
			buf.WriteString(line)
			buf.WriteString("\n")
		}
	}

	result := buf.String()
	lines := strings.Split(result, "\n")
	if len(lines) > maxDiffLines {
		truncated := strings.Join(lines[:maxDiffLines], "\n")
		return truncated + "\n" + truncateMessage + "\n"
	}
	return result
}

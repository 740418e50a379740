package components

import "time"

// PageEntry is the display state of one page of a batch.
type PageEntry struct {
	ID       int
	Name     string
	Pipeline string
	// Outcome is empty until the page finished.
	Outcome  string
	Running  bool
	Current  []string
	Done     int
	Duration time.Duration
	Message  string
}

// PageList holds page entries in batch order.
type PageList struct {
	entries []PageEntry
}

// NewPageList constructs a page list component.
func NewPageList(order []int, pages map[int]PageEntry) PageList {
	entries := make([]PageEntry, 0, len(order))
	for _, id := range order {
		entries = append(entries, pages[id])
	}
	return PageList{entries: entries}
}

// Entries returns the ordered page entries.
func (l PageList) Entries() []PageEntry {
	clone := make([]PageEntry, len(l.entries))
	copy(clone, l.entries)
	return clone
}

package processor

import "strings"

// Capability is the set of optional operations a processor supports. The
// executor queries it instead of inspecting concrete types.
type Capability uint8

const (
	// CanProcess marks processors whose Process computes outputs.
	CanProcess Capability = 1 << iota
	// CanEdit marks processors with user editable parameters.
	CanEdit
	// CanReset marks processors whose persisted outputs can be discarded.
	CanReset
)

// Has reports whether every flag in want is set.
func (c Capability) Has(want Capability) bool {
	return c&want == want
}

func (c Capability) String() string {
	var names []string
	if c.Has(CanProcess) {
		names = append(names, "process")
	}
	if c.Has(CanEdit) {
		names = append(names, "edit")
	}
	if c.Has(CanReset) {
		names = append(names, "reset")
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}

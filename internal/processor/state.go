package processor

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// State is the derived state of a processor. The numeric value is the weight
// used to roll several states up into one.
type State int

const (
	StateReady       State = 1
	StateProcessing  State = 2
	StateWaiting     State = 4
	StateUnconnected State = 8
	StateUnavailable State = 16
	StateError       State = 32
)

var stateNames = map[State]string{
	StateReady:       "READY",
	StateProcessing:  "PROCESSING",
	StateWaiting:     "WAITING",
	StateUnconnected: "UNCONNECTED",
	StateUnavailable: "UNAVAILABLE",
	StateError:       "ERROR",
}

// Weight returns the roll-up weight of s.
func (s State) Weight() int { return int(s) }

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return stateNames[StateUnavailable]
}

// Label returns the title cased name used in status output ("Unconnected").
func (s State) Label() string {
	return cases.Title(language.English).String(strings.ToLower(s.String()))
}

// StateForWeight maps a weight back to its state. Unknown weights are UNAVAILABLE.
func StateForWeight(weight int) State {
	if _, ok := stateNames[State(weight)]; ok {
		return State(weight)
	}
	return StateUnavailable
}

// Rollup returns the heaviest of states, which is the implied state of a
// stage. No states roll up to UNAVAILABLE.
func Rollup(states ...State) State {
	weight := 0
	for _, s := range states {
		weight = max(weight, s.Weight())
	}
	return StateForWeight(weight)
}

// StateOf derives the state of p from its hooks and ports. The first match
// wins: ERROR, UNAVAILABLE, UNCONNECTED, WAITING, READY, then PROCESSING.
func StateOf(p Processor) State {
	switch {
	case p.IsError():
		return StateError
	case !p.IsAvailable():
		return StateUnavailable
	case !p.IsConnected():
		return StateUnconnected
	case IsWaiting(p):
		return StateWaiting
	case IsReady(p):
		return StateReady
	default:
		return StateProcessing
	}
}

// IsWaiting reports whether p still waits on input parameters or on an
// upstream output. A READY processor never waits.
func IsWaiting(p Processor) bool {
	if IsReady(p) {
		return false
	}
	if p.IsWaitingOnInputParams() {
		return true
	}
	for _, in := range p.Inputs() {
		if in.IsConnected() && in.State() != PortReady {
			return true
		}
	}
	return false
}

// IsReady reports whether the outputs of p are complete: every connected
// output is READY, or every output when none is connected.
func IsReady(p Processor) bool {
	if !p.IsReadyOutputParams() {
		return false
	}
	outputs := p.Outputs()
	connected := 0
	for _, out := range outputs {
		if !out.IsConnected() {
			continue
		}
		connected++
		if out.State() != PortReady {
			return false
		}
	}
	if connected > 0 {
		return true
	}
	for _, out := range outputs {
		if out.State() != PortReady {
			return false
		}
	}
	return true
}

package ports

// StatusReporter accepts progress updates for the host status bar. A negative
// progress means indeterminate.
type StatusReporter interface {
	Status(title, message string, progress float64)
}

// ErrorReporter surfaces failures to the user.
type ErrorReporter interface {
	ShowError(err error)
}

// Answer is the result of a yes/no/cancel confirmation.
type Answer int

const (
	AnswerCancel Answer = iota
	AnswerYes
	AnswerNo
)

func (a Answer) String() string {
	switch a {
	case AnswerYes:
		return "yes"
	case AnswerNo:
		return "no"
	default:
		return "cancel"
	}
}

// Confirmer asks the user a blocking yes/no/cancel question.
type Confirmer interface {
	Confirm(message string) Answer
}

// UIThread runs callbacks on the host's single UI goroutine, in submission order.
type UIThread interface {
	RunLater(fn func())
}

// BusyIndicator shows that long running work is in progress. Engage returns
// the function that releases it; releasing twice is harmless.
type BusyIndicator interface {
	Engage() (release func())
}

// Host bundles the collaborators the application layer signals through.
type Host struct {
	Status  StatusReporter
	Errors  ErrorReporter
	Confirm Confirmer
	UI      UIThread
	Busy    BusyIndicator
	Events  EventPublisher
}

package ports

import "context"

const (
	// EventPageSelected is emitted when the selected page changes. A page id of
	// -1 means no page is selected.
	EventPageSelected = "page.selected"
	// EventPageRemoved is emitted once per deleted page.
	EventPageRemoved = "page.removed"
	// EventProcessingStarted is emitted before a page or processor runs.
	EventProcessingStarted = "processing.started"
	// EventProcessingFinished is emitted after a page or processor run ends,
	// whatever its outcome.
	EventProcessingFinished = "processing.finished"
	// EventProcessorStateChanged is emitted when the executor observes a
	// processor state transition.
	EventProcessorStateChanged = "processor.state_changed"
	// EventTaskStarted is emitted when a background task starts.
	EventTaskStarted = "task.started"
)

// Payload keys shared by engine events.
const (
	FieldPageID  = "page_id"
	FieldObject  = "object"
	FieldKind    = "kind"
	FieldState   = "state"
	FieldOutcome = "outcome"
	FieldTitle   = "title"
)

// DomainEvent represents a significant occurrence within the engine. Events
// carry structured payloads that subscribers use for logging or view updates.
type DomainEvent interface {
	EventType() string
	Payload() interface{}
}

// Event is the default DomainEvent implementation with a map payload.
type Event struct {
	Type string
	Data map[string]interface{}
}

// NewEvent builds an Event from alternating key/value pairs.
func NewEvent(eventType string, kv ...interface{}) Event {
	data := make(map[string]interface{}, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		data[key] = kv[i+1]
	}
	return Event{Type: eventType, Data: data}
}

// EventType implements DomainEvent.
func (e Event) EventType() string { return e.Type }

// Payload implements DomainEvent.
func (e Event) Payload() interface{} { return e.Data }

// EventPublisher distributes events to interested subscribers. Dispatch is
// synchronous: Publish blocks until all handlers run. Implementations must be
// thread-safe.
type EventPublisher interface {
	Publish(ctx context.Context, event DomainEvent) error
	Subscribe(eventType string, handler EventHandler) (Subscription, error)
}

// EventHandler processes an event of a specific type. Failures should be
// returned so publishers can log diagnostics and keep delivering.
type EventHandler func(context.Context, DomainEvent) error

// Subscription represents a registered handler.
type Subscription interface {
	Unsubscribe()
}

package evolve

// EventKind says what happened to a stage.
type EventKind string

const (
	EventStarted   EventKind = "started"
	EventCompleted EventKind = "completed"
	EventSkipped   EventKind = "skipped"
	EventFailed    EventKind = "failed"
)

// Event reports stage progress to a Listener.
type Event struct {
	Kind  EventKind
	Stage Stage
	// Detail is a short human-readable note, e.g. the branch name.
	Detail string
	Err    error
}

// Listener receives stage events synchronously, in cycle order.
type Listener func(Event)

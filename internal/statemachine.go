package internal

// Phase is where a session is in its lifecycle
type Phase int

const (
	PhaseUninitialized Phase = iota
	PhaseInitializing
	PhaseReady
	PhaseResetting
)

func (p Phase) String() string {
	switch p {
	case PhaseUninitialized:
		return "uninitialized"
	case PhaseInitializing:
		return "initializing"
	case PhaseReady:
		return "ready"
	case PhaseResetting:
		return "resetting"
	default:
		return "unknown"
	}
}

// Event drives lifecycle transitions
type Event int

const (
	EventSessionOpened Event = iota
	EventInitialized
	EventCommandCompleted
	EventResetRequested
	EventResetCompleted
)

func (e Event) String() string {
	switch e {
	case EventSessionOpened:
		return "sessionOpened"
	case EventInitialized:
		return "initialized"
	case EventCommandCompleted:
		return "commandCompleted"
	case EventResetRequested:
		return "resetRequested"
	case EventResetCompleted:
		return "resetCompleted"
	default:
		return "unknown"
	}
}

// transitions lists every accepted (phase, event) pair. Sessions have no
// terminal phase; a ready session may be reopened or reset any number of
// times.
var transitions = map[Phase]map[Event]Phase{
	PhaseUninitialized: {
		EventSessionOpened:  PhaseInitializing,
		EventResetRequested: PhaseResetting,
	},
	PhaseInitializing: {
		EventInitialized:    PhaseReady,
		EventResetRequested: PhaseResetting,
	},
	PhaseReady: {
		EventSessionOpened:    PhaseInitializing,
		EventCommandCompleted: PhaseReady,
		EventResetRequested:   PhaseResetting,
	},
	PhaseResetting: {
		EventResetRequested: PhaseResetting,
		EventResetCompleted: PhaseReady,
	},
}

// Transition returns the phase reached from p on e
func Transition(p Phase, e Event) (Phase, error) {
	next, ok := transitions[p][e]
	if !ok {
		return p, &TransitionError{From: p, Event: e}
	}
	return next, nil
}

package doorbell

import "time"

// DebounceWindow is the fixed quiescence period after a handled press.
// Edges observed inside it belong to the same physical press.
const DebounceWindow = 4 * time.Second

// State is the event loop state
type State int

const (
	// StateWaitingForEdge blocks on the input line
	StateWaitingForEdge State = iota
	// StateDebouncing filters bounce and sits out the quiescence window
	StateDebouncing
	// StatePublishing waits for the broker to acknowledge the notification
	StatePublishing
	// StateTerminated is final; the loop has stopped
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateWaitingForEdge:
		return "waiting_for_edge"
	case StateDebouncing:
		return "debouncing"
	case StatePublishing:
		return "publishing"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Press is one delivered doorbell notification
type Press struct {
	Sequence int64
	Time     time.Time
	Topic    string
	Pin      int
}

// Status is a point-in-time view of the agent for health reporting
type Status struct {
	State     State
	Presses   int64
	LastPress time.Time
	Connected bool
}

// Package gpio turns a single GPIO input line into a stream of edge events.
// The real implementation uses the Linux GPIO character device through go-gpiocdev.
package gpio

import (
	"context"
	"time"
)

// NoTimeout makes NextEvent wait until an edge, an error or context cancellation
const NoTimeout time.Duration = -1

// EdgeKind classifies the outcome of a single wait on the input line
type EdgeKind int

const (
	// EdgeNone means the wait ended without an edge (timeout or cancellation)
	EdgeNone EdgeKind = iota
	// EdgeRising is a low to high transition
	EdgeRising
	// EdgeFalling is a high to low transition
	EdgeFalling
	// EdgeError means the line reported a problem; Event.Err carries it
	EdgeError
)

func (k EdgeKind) String() string {
	switch k {
	case EdgeNone:
		return "none"
	case EdgeRising:
		return "rising_edge"
	case EdgeFalling:
		return "falling_edge"
	case EdgeError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is one observation from the input line
type Event struct {
	Kind EdgeKind
	Time time.Time
	Err  error
}

// Monitor waits for edges on an armed input line
type Monitor interface {
	// NextEvent blocks until an edge arrives, the timeout elapses or an error occurs.
	// A negative timeout waits indefinitely.
	NextEvent(ctx context.Context, timeout time.Duration) Event

	// Close releases the line
	Close() error
}

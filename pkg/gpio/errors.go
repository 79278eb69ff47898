package gpio

import "errors"

var (
	// ErrArmFailed indicates the line could not be requested or configured.
	ErrArmFailed = errors.New("gpio: failed to arm input line")

	// ErrOverflow indicates edges arrived faster than they were consumed and some were dropped.
	ErrOverflow = errors.New("gpio: edge event buffer overflow")

	// ErrClosed indicates the line has been released.
	ErrClosed = errors.New("gpio: line closed")
)

package gpio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

const (
	// consumer labels the line in the kernel (visible with gpioinfo)
	consumer = "doorbell-agent"

	// eventBufferSize is how many edges may wait between two NextEvent calls
	eventBufferSize = 16
)

// Line is an input line armed for rising-edge events with the pull-up bias enabled.
// The idle level is high; releasing the button produces the rising edge.
type Line struct {
	pin    int
	chip   *gpiocdev.Chip
	line   *gpiocdev.Line
	logger *slog.Logger

	events    chan Event
	dropped   atomic.Uint64
	closed    chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// Arm opens the chip and requests the pin as a pulled-up input reporting rising edges
func Arm(chipName string, pin int, logger *slog.Logger) (*Line, error) {
	logger.Info("Setting up GPIO", "chip", chipName, "pin", pin)

	chip, err := gpiocdev.NewChip(chipName, gpiocdev.WithConsumer(consumer))
	if err != nil {
		return nil, fmt.Errorf("%w: open chip %s: %w", ErrArmFailed, chipName, err)
	}

	l := newLine(pin, logger)

	line, err := chip.RequestLine(pin,
		gpiocdev.AsInput,
		gpiocdev.WithPullUp,
		gpiocdev.WithRisingEdge,
		gpiocdev.WithEventHandler(l.handle),
	)
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("%w: request pin %d on %s: %w", ErrArmFailed, pin, chipName, err)
	}

	l.chip = chip
	l.line = line

	logger.Info("GPIO armed for rising edges", "chip", chipName, "pin", pin)
	return l, nil
}

func newLine(pin int, logger *slog.Logger) *Line {
	return &Line{
		pin:    pin,
		logger: logger,
		events: make(chan Event, eventBufferSize),
		closed: make(chan struct{}),
	}
}

// handle runs on the go-gpiocdev watcher goroutine and must not block
func (l *Line) handle(evt gpiocdev.LineEvent) {
	kind := EdgeNone
	switch evt.Type {
	case gpiocdev.LineEventRisingEdge:
		kind = EdgeRising
	case gpiocdev.LineEventFallingEdge:
		kind = EdgeFalling
	}
	l.push(Event{Kind: kind, Time: time.Now()})
}

func (l *Line) push(ev Event) {
	select {
	case <-l.closed:
		return
	default:
	}

	select {
	case l.events <- ev:
	default:
		l.dropped.Add(1)
	}
}

// NextEvent blocks until an edge arrives, the timeout elapses, the line fails or ctx is done.
// Dropped edges are reported once as an EdgeError before any further edge is returned.
func (l *Line) NextEvent(ctx context.Context, timeout time.Duration) Event {
	if n := l.dropped.Swap(0); n > 0 {
		return Event{
			Kind: EdgeError,
			Time: time.Now(),
			Err:  fmt.Errorf("%w: %d edges dropped on pin %d", ErrOverflow, n, l.pin),
		}
	}

	var timeoutC <-chan time.Time
	if timeout >= 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutC = timer.C
	}

	select {
	case ev := <-l.events:
		return ev
	case <-l.closed:
		return Event{Kind: EdgeError, Time: time.Now(), Err: ErrClosed}
	case <-timeoutC:
		return Event{Kind: EdgeNone, Time: time.Now()}
	case <-ctx.Done():
		return Event{Kind: EdgeNone, Time: time.Now()}
	}
}

// Close releases the line and the chip. Safe to call more than once.
func (l *Line) Close() error {
	l.closeOnce.Do(func() {
		close(l.closed)

		var errs []error
		if l.line != nil {
			if err := l.line.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close line %d: %w", l.pin, err))
			}
		}
		if l.chip != nil {
			if err := l.chip.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close chip: %w", err))
			}
		}
		l.closeErr = errors.Join(errs...)
		l.logger.Info("GPIO released", "pin", l.pin)
	})
	return l.closeErr
}

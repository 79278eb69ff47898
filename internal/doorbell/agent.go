package doorbell

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/saaga0h/doorbell-agent/pkg/config"
	"github.com/saaga0h/doorbell-agent/pkg/gpio"
	"github.com/saaga0h/doorbell-agent/pkg/mqtt"
)

// historyTimeout bounds a single history write
const historyTimeout = 2 * time.Second

// PressRecorder keeps a record of delivered presses
type PressRecorder interface {
	RecordPress(ctx context.Context, press Press) error
	Close() error
}

// Agent runs the doorbell event loop: wait for an edge, publish, sit out the quiescence window
type Agent struct {
	session mqtt.Client
	pin     gpio.Monitor
	history PressRecorder
	topic   string
	message []byte
	pinID   int
	logger  *slog.Logger

	// sleep blocks for the quiescence window; replaced in tests
	sleep func(ctx context.Context, d time.Duration)

	// quietUntil is only touched by the loop goroutine
	quietUntil time.Time

	mu        sync.RWMutex
	state     State
	presses   int64
	lastPress time.Time

	stopOnce sync.Once
}

// NewAgent creates a new doorbell agent. history may be nil.
func NewAgent(session mqtt.Client, pin gpio.Monitor, history PressRecorder, cfg *config.Config, logger *slog.Logger) *Agent {
	return &Agent{
		session: session,
		pin:     pin,
		history: history,
		topic:   cfg.MQTTTopic,
		message: []byte(cfg.MQTTMessage),
		pinID:   cfg.GPIOPort,
		logger:  logger,
		sleep:   sleepContext,
		state:   StateWaitingForEdge,
	}
}

// Run drives the event loop until a publish fails, the input line closes or ctx is cancelled.
// Cancellation returns nil; a failed publish returns an error wrapping ErrPublishFailed.
func (a *Agent) Run(ctx context.Context) error {
	a.logger.Info("Listening for doorbell presses",
		"pin", a.pinID,
		"topic", a.topic,
		"debounce", DebounceWindow)

	for {
		if ctx.Err() != nil {
			a.setState(StateTerminated)
			a.logger.Info("Doorbell agent stopping")
			return nil
		}

		a.setState(StateWaitingForEdge)
		ev := a.pin.NextEvent(ctx, gpio.NoTimeout)

		if err := a.handleEvent(ctx, ev); err != nil {
			a.setState(StateTerminated)
			return err
		}
	}
}

func (a *Agent) handleEvent(ctx context.Context, ev gpio.Event) error {
	switch ev.Kind {
	case gpio.EdgeNone:
		return nil

	case gpio.EdgeError:
		if errors.Is(ev.Err, gpio.ErrClosed) {
			if ctx.Err() != nil {
				return nil
			}
			a.logger.Error("GPIO line closed unexpectedly", "pin", a.pinID)
			return fmt.Errorf("%w: %w", ErrInputClosed, ev.Err)
		}
		a.logger.Error("GPIO polling error", "pin", a.pinID, "error", ev.Err)
		return nil

	case gpio.EdgeRising:
		return a.handleRisingEdge(ctx, ev)

	default:
		a.logger.Info("Trigger disabled", "trigger", ev.Kind.String(), "pin", a.pinID)
		return nil
	}
}

func (a *Agent) handleRisingEdge(ctx context.Context, ev gpio.Event) error {
	a.setState(StateDebouncing)

	// Edges queued while the loop slept belong to the press already handled
	if ev.Time.Before(a.quietUntil) {
		a.logger.Debug("Edge inside quiescence window ignored",
			"edge_time", ev.Time,
			"quiet_until", a.quietUntil)
		return nil
	}

	pressedAt := ev.Time

	a.setState(StatePublishing)
	if err := a.session.Publish(a.topic, mqtt.QoSAtLeastOnce, false, a.message); err != nil {
		a.logger.Error("Error sending message", "topic", a.topic, "error", err)
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	seq := a.recordDelivered(pressedAt)
	a.logger.Info("Doorbell pressed",
		"pressed_at", pressedAt.Format(time.RFC3339),
		"topic", a.topic,
		"sequence", seq)

	a.recordHistory(ctx, Press{
		Sequence: seq,
		Time:     pressedAt,
		Topic:    a.topic,
		Pin:      a.pinID,
	})

	a.setState(StateDebouncing)
	a.quietUntil = pressedAt.Add(DebounceWindow)
	a.sleep(ctx, DebounceWindow)

	return nil
}

func (a *Agent) recordHistory(ctx context.Context, press Press) {
	if a.history == nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, historyTimeout)
	defer cancel()

	if err := a.history.RecordPress(ctx, press); err != nil {
		a.logger.Warn("Failed to record press history", "sequence", press.Sequence, "error", err)
	}
}

// Stop releases the broker session, the input line and the history store.
// The session is disconnected exactly once however often Stop is called.
func (a *Agent) Stop() error {
	var err error
	a.stopOnce.Do(func() {
		a.logger.Info("Stopping doorbell agent")

		a.session.Disconnect()

		if closeErr := a.pin.Close(); closeErr != nil {
			a.logger.Error("Error releasing GPIO", "error", closeErr)
			err = closeErr
		}

		if a.history != nil {
			if closeErr := a.history.Close(); closeErr != nil {
				a.logger.Error("Error closing press history", "error", closeErr)
				err = errors.Join(err, closeErr)
			}
		}

		a.logger.Info("Doorbell agent stopped")
	})
	return err
}

// Status returns a snapshot of the loop for health reporting
func (a *Agent) Status() Status {
	a.mu.RLock()
	defer a.mu.RUnlock()

	return Status{
		State:     a.state,
		Presses:   a.presses,
		LastPress: a.lastPress,
		Connected: a.session.IsConnected(),
	}
}

func (a *Agent) setState(s State) {
	a.mu.Lock()
	a.state = s
	a.mu.Unlock()
}

func (a *Agent) recordDelivered(at time.Time) int64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.presses++
	a.lastPress = at
	return a.presses
}

// sleepContext sleeps for d or until ctx is done
func sleepContext(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

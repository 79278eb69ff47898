package doorbell

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/saaga0h/doorbell-agent/pkg/config"
	"github.com/saaga0h/doorbell-agent/pkg/gpio"
	"github.com/saaga0h/doorbell-agent/pkg/mqtt"
)

// Dependencies are the collaborators Setup wires into an Agent
type Dependencies struct {
	Session mqtt.Client
	ArmPin  func() (gpio.Monitor, error)
	History PressRecorder // optional
}

// Setup connects the broker session and then arms the input pin.
// The pin is never touched when the connect fails. On any failure everything
// acquired so far is released and the error wraps ErrConnect or ErrArm.
func Setup(ctx context.Context, cfg *config.Config, deps Dependencies, logger *slog.Logger) (*Agent, error) {
	if err := deps.Session.Connect(ctx); err != nil {
		logger.Error("Unable to connect to MQTT broker", "broker", cfg.RedactedMQTTURL(), "error", err)
		closeHistory(deps.History, logger)
		return nil, fmt.Errorf("%w: %w", ErrConnect, err)
	}

	pin, err := deps.ArmPin()
	if err != nil {
		logger.Error("Unable to set up GPIO", "pin", cfg.GPIOPort, "error", err)
		deps.Session.Disconnect()
		closeHistory(deps.History, logger)
		return nil, fmt.Errorf("%w: %w", ErrArm, err)
	}

	return NewAgent(deps.Session, pin, deps.History, cfg, logger), nil
}

func closeHistory(history PressRecorder, logger *slog.Logger) {
	if history == nil {
		return
	}
	if err := history.Close(); err != nil {
		logger.Warn("Error closing press history", "error", err)
	}
}

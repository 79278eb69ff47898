package main

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saaga0h/doorbell-agent/internal/doorbell"
	"github.com/saaga0h/doorbell-agent/pkg/config"
	"github.com/saaga0h/doorbell-agent/pkg/mqtt"
)

func closedPort(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func TestRun_UnreachableBroker(t *testing.T) {
	var stdout, stderr bytes.Buffer

	code := run([]string{
		"--mqtt-url", "tcp://" + closedPort(t),
		"--mqtt-username", "doorbell",
		"--mqtt-password", "secret",
		"--mqtt-topic", "home/doorbell",
		"--mqtt-message", "ring",
		"--gpio-chip", "gpiochip-does-not-exist",
		"--gpio-port", "17",
	}, &stdout, &stderr)

	assert.Equal(t, exitFailure, code)
	assert.Contains(t, stdout.String(), "Unable to connect to MQTT broker")
	assert.NotContains(t, stdout.String(), "Setting up GPIO", "the pin is never armed")
	assert.NotContains(t, stdout.String(), "Doorbell pressed")
}

func TestRun_InvalidConfig(t *testing.T) {
	var stdout, stderr bytes.Buffer

	code := run([]string{"--mqtt-url", "ssl://broker:8883"}, &stdout, &stderr)

	assert.Equal(t, exitFailure, code)
	assert.Contains(t, stderr.String(), "Configuration error")
}

func TestRun_UnknownFlag(t *testing.T) {
	var stdout, stderr bytes.Buffer

	code := run([]string{"--bogus"}, &stdout, &stderr)

	assert.Equal(t, exitFailure, code)
}

func TestExitCode(t *testing.T) {
	publishErr := fmt.Errorf("%w: %w", doorbell.ErrPublishFailed, mqtt.ErrPublishFailed)

	tests := []struct {
		name    string
		err     error
		nonZero bool
		want    int
	}{
		{name: "clean shutdown", err: nil, want: exitOK},
		{name: "publish failure ends run normally", err: publishErr, want: exitOK},
		{name: "publish failure opted into non-zero", err: publishErr, nonZero: true, want: exitDeliveryFailure},
		{name: "input closed", err: doorbell.ErrInputClosed, want: exitFailure},
		{name: "unexpected", err: errors.New("boom"), want: exitFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.NewConfig()
			cfg.ExitNonZeroOnPublishFailure = tt.nonZero
			assert.Equal(t, tt.want, exitCode(tt.err, cfg))
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLogLevel("debug"))
	assert.Equal(t, slog.LevelWarn, parseLogLevel("warn"))
	assert.Equal(t, slog.LevelError, parseLogLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLogLevel("info"))
	assert.Equal(t, slog.LevelInfo, parseLogLevel("other"))
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/saaga0h/doorbell-agent/internal/doorbell"
	"github.com/saaga0h/doorbell-agent/pkg/config"
	"github.com/saaga0h/doorbell-agent/pkg/gpio"
	"github.com/saaga0h/doorbell-agent/pkg/health"
	"github.com/saaga0h/doorbell-agent/pkg/mqtt"
	"github.com/saaga0h/doorbell-agent/pkg/redis"
)

// Process exit codes
const (
	exitOK              = 0
	exitFailure         = 1
	exitDeliveryFailure = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	// Load configuration with hierarchy: defaults → file → env → flags
	cfg, err := config.Load(args)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintf(stderr, "Configuration error: %v\n", err)
		return exitFailure
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "Configuration error: %v\n", err)
		return exitFailure
	}

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	logger.Info("Starting doorbell agent",
		"service_name", cfg.ServiceName,
		"config_file", cfg.ConfigFile,
		"mqtt_broker", cfg.RedactedMQTTURL(),
		"mqtt_topic", cfg.MQTTTopic,
		"gpio_chip", cfg.GPIOChip,
		"gpio_pin", cfg.GPIOPort,
		"log_level", cfg.LogLevel)

	if cfg.MQTTTLSInsecure {
		logger.Warn("Broker certificate verification is disabled", "hint", "set mqtt_tls_insecure=false to verify")
	}

	// Set up context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	// Initialize MQTT client
	mqttClient, err := mqtt.NewClient(cfg, logger)
	if err != nil {
		logger.Error("Error creating the MQTT client", "error", err)
		return exitFailure
	}

	// Connect the broker, then arm the pin
	agent, err := doorbell.Setup(ctx, cfg, doorbell.Dependencies{
		Session: mqttClient,
		ArmPin: func() (gpio.Monitor, error) {
			line, err := gpio.Arm(cfg.GPIOChip, cfg.GPIOPort, logger)
			if err != nil {
				return nil, err
			}
			return line, nil
		},
		History: newHistory(ctx, cfg, logger),
	}, logger)
	if err != nil {
		logger.Error("Startup failed", "error", err)
		return exitFailure
	}

	// Start health check server
	var httpServer *http.Server
	if cfg.HealthPort > 0 {
		checker := health.NewChecker(mqttClient, agentStatus(agent), cfg.HistoryEnabled(), logger)
		httpServer = startHealthServer(cfg.HealthPort, checker, logger)
	}

	// Start agent in a goroutine
	agentDone := make(chan error, 1)
	go func() {
		agentDone <- agent.Run(ctx)
	}()

	// Wait for shutdown signal or the loop to end on its own
	var runErr error
	select {
	case sig := <-sigChan:
		logger.Info("Shutdown signal received", "signal", sig.String())
		cancel()
		runErr = <-agentDone
	case runErr = <-agentDone:
	}

	// Graceful shutdown
	logger.Info("Initiating graceful shutdown")

	if err := agent.Stop(); err != nil {
		logger.Error("Error stopping agent", "error", err)
	}

	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("Error shutting down health server", "error", err)
		}
	}

	code := exitCode(runErr, cfg)
	logger.Info("Doorbell agent shutdown complete", "exit_code", code)
	return code
}

// exitCode maps the end of the event loop to a process status.
// A failed publish is a normal end of run unless configured otherwise.
func exitCode(runErr error, cfg *config.Config) int {
	switch {
	case runErr == nil:
		return exitOK
	case errors.Is(runErr, doorbell.ErrPublishFailed):
		if cfg.ExitNonZeroOnPublishFailure {
			return exitDeliveryFailure
		}
		return exitOK
	default:
		return exitFailure
	}
}

// newHistory returns the Redis press history, or nil when it is disabled or unreachable
func newHistory(ctx context.Context, cfg *config.Config, logger *slog.Logger) doorbell.PressRecorder {
	if !cfg.HistoryEnabled() {
		return nil
	}

	redisClient := redis.NewClient(cfg, logger)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if err := redisClient.Ping(pingCtx); err != nil {
		logger.Warn("Press history disabled, Redis unreachable", "address", cfg.RedisAddress(), "error", err)
		redisClient.Close()
		return nil
	}

	return doorbell.NewHistory(redisClient, cfg, logger)
}

func agentStatus(agent *doorbell.Agent) health.StatusFunc {
	return func() health.AgentStatus {
		s := agent.Status()
		return health.AgentStatus{
			State:      s.State.String(),
			Presses:    s.Presses,
			LastPress:  s.LastPress,
			Terminated: s.State == doorbell.StateTerminated,
		}
	}
}

func startHealthServer(port int, checker *health.Checker, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", checker.HandlerFunc())
	mux.HandleFunc("/health/detailed", checker.DetailedHandlerFunc())

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("Starting health check server", "port", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Health server error", "error", err)
		}
	}()

	return server
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

package health

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/saaga0h/doorbell-agent/pkg/mqtt"
)

// AgentStatus is the slice of agent state the health endpoint reports
type AgentStatus struct {
	State      string
	Presses    int64
	LastPress  time.Time
	Terminated bool
}

// StatusFunc returns the current agent status
type StatusFunc func() AgentStatus

// Checker provides health check functionality for the agent
type Checker struct {
	mqtt           mqtt.Client
	status         StatusFunc
	historyEnabled bool
	logger         *slog.Logger
}

// NewChecker creates a new health checker with the given dependencies
func NewChecker(mqttClient mqtt.Client, status StatusFunc, historyEnabled bool, logger *slog.Logger) *Checker {
	return &Checker{
		mqtt:           mqttClient,
		status:         status,
		historyEnabled: historyEnabled,
		logger:         logger,
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp string    `json:"timestamp"`
	Services  *Services `json:"services,omitempty"`
	Agent     *Agent    `json:"agent,omitempty"`
}

// Services represents the status of external dependencies
type Services struct {
	MQTT    string `json:"mqtt"`
	History string `json:"history"`
}

// Agent represents the event loop status
type Agent struct {
	State     string `json:"state"`
	Presses   int64  `json:"presses"`
	LastPress string `json:"last_press,omitempty"`
}

// HandlerFunc returns an HTTP handler function for health checks
// Returns 200 if process is alive without checking dependencies
func (h *Checker) HandlerFunc() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := HealthResponse{
			Status:    "ok",
			Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		}

		h.write(w, http.StatusOK, response)
	}
}

// DetailedHandlerFunc returns a handler that reports the broker session and the event loop
func (h *Checker) DetailedHandlerFunc() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		services := &Services{
			MQTT:    "disconnected",
			History: "disabled",
		}

		if h.mqtt != nil && h.mqtt.IsConnected() {
			services.MQTT = "connected"
		}
		if h.historyEnabled {
			services.History = "enabled"
		}

		status := "healthy"
		statusCode := http.StatusOK

		var agent *Agent
		if h.status != nil {
			s := h.status()
			agent = &Agent{
				State:   s.State,
				Presses: s.Presses,
			}
			if !s.LastPress.IsZero() {
				agent.LastPress = s.LastPress.UTC().Format(time.RFC3339)
			}
			if s.Terminated {
				status = "stopped"
				statusCode = http.StatusServiceUnavailable
			}
		}

		if services.MQTT == "disconnected" && statusCode == http.StatusOK {
			status = "degraded"
			statusCode = http.StatusServiceUnavailable
		}

		response := HealthResponse{
			Status:    status,
			Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
			Services:  services,
			Agent:     agent,
		}

		h.write(w, statusCode, response)
	}
}

func (h *Checker) write(w http.ResponseWriter, statusCode int, response HealthResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error("Failed to encode health response", "error", err)
	}
}

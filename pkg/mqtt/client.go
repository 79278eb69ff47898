package mqtt

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/saaga0h/doorbell-agent/pkg/config"
)

const (
	// defaultConnectTimeout bounds the connect handshake
	defaultConnectTimeout = 10 * time.Second

	// defaultKeepAlive is the keepalive interval for the connection
	defaultKeepAlive = 60 * time.Second

	// disconnectQuiesce is the grace period in milliseconds for in-flight work on disconnect
	disconnectQuiesce = 250

	// tlsMinVersion is the minimum TLS version for secure connections
	tlsMinVersion = tls.VersionTLS12
)

// mqttClient implements the Client interface using the Paho MQTT client
type mqttClient struct {
	client       pahomqtt.Client
	url          string
	logger       *slog.Logger
	disconnected atomic.Bool
}

// NewClient creates a new MQTT client bound to the configured broker URL.
// The session never reconnects on its own: a lost connection surfaces as a failed publish.
func NewClient(cfg *config.Config, logger *slog.Logger) (Client, error) {
	tlsConfig, err := buildTLSConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create MQTT client: %w", err)
	}

	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(cfg.MQTTURL)
	opts.SetClientID(clientID(cfg))
	opts.SetUsername(cfg.MQTTUser)
	opts.SetPassword(cfg.MQTTPassword)
	opts.SetTLSConfig(tlsConfig)

	// Connection settings
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)
	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetKeepAlive(defaultKeepAlive)

	url := cfg.RedactedMQTTURL()

	opts.OnConnect = func(c pahomqtt.Client) {
		logger.Info("Connected to MQTT broker", "broker", url)
	}

	opts.OnConnectionLost = func(c pahomqtt.Client, err error) {
		logger.Warn("MQTT connection lost", "error", err)
	}

	return &mqttClient{
		client: pahomqtt.NewClient(opts),
		url:    url,
		logger: logger,
	}, nil
}

// Connect establishes a connection to the MQTT broker
func (m *mqttClient) Connect(ctx context.Context) error {
	m.logger.Info("Connecting to MQTT broker", "broker", m.url)

	token := m.client.Connect()

	select {
	case <-token.Done():
		if token.Error() != nil {
			return fmt.Errorf("%w: %s: %w", ErrConnectionFailed, m.url, token.Error())
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %s: %w", ErrConnectionFailed, m.url, ctx.Err())
	}
}

// Disconnect closes the connection to the MQTT broker. Calls after the first are no-ops.
func (m *mqttClient) Disconnect() {
	if m.disconnected.Swap(true) {
		return
	}
	if !m.client.IsConnected() {
		m.logger.Debug("MQTT client already disconnected")
		return
	}
	m.logger.Info("Disconnecting from MQTT broker")
	m.client.Disconnect(disconnectQuiesce)
}

// Publish publishes a message to a topic and blocks until the broker acknowledges it
func (m *mqttClient) Publish(topic string, qos byte, retained bool, payload []byte) error {
	token := m.client.Publish(topic, qos, retained, payload)
	token.Wait()

	if token.Error() != nil {
		return fmt.Errorf("%w: topic %s: %w", ErrPublishFailed, topic, token.Error())
	}

	m.logger.Debug("Published message", "topic", topic, "qos", qos, "size", len(payload))
	return nil
}

// IsConnected returns whether the client is currently connected
func (m *mqttClient) IsConnected() bool {
	return m.client.IsConnected()
}

// buildTLSConfig returns the TLS settings for ssl/tls/mqtts/wss brokers.
// With MQTTTLSInsecure the broker certificate is not verified at all.
func buildTLSConfig(cfg *config.Config) (*tls.Config, error) {
	tlsConfig := &tls.Config{
		MinVersion: tlsMinVersion,
	}

	if cfg.MQTTTLSInsecure {
		tlsConfig.InsecureSkipVerify = true //nolint:gosec // trusted local broker, opt out with mqtt_tls_insecure=false
		return tlsConfig, nil
	}

	if cfg.MQTTCAFile != "" {
		pem, err := os.ReadFile(cfg.MQTTCAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA file %s: %w", cfg.MQTTCAFile, err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in CA file %s", cfg.MQTTCAFile)
		}
		tlsConfig.RootCAs = pool
	}

	return tlsConfig, nil
}

// clientID returns the configured client ID or generates one from the service name
func clientID(cfg *config.Config) string {
	if cfg.MQTTClientID != "" {
		return cfg.MQTTClientID
	}
	return fmt.Sprintf("%s-%s", cfg.ServiceName, uuid.NewString()[:8])
}

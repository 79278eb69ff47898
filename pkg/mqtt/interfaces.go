package mqtt

import "context"

// Client represents a publish-only MQTT session for testing and abstraction
type Client interface {
	// Connect performs the connect handshake and waits for it to complete or fail
	Connect(ctx context.Context) error

	// Disconnect closes the connection to the MQTT broker
	Disconnect()

	// Publish publishes a message to a topic and waits for the broker acknowledgement
	Publish(topic string, qos byte, retained bool, payload []byte) error

	// IsConnected returns whether the client is currently connected
	IsConnected() bool
}

package mqtt

import "errors"

// Domain errors for MQTT operations.
var (
	// ErrConnectionFailed indicates the connect handshake did not complete.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrPublishFailed indicates the broker did not acknowledge a publish.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrNotConnected indicates an operation was attempted without a live session.
	ErrNotConnected = errors.New("mqtt: not connected")
)

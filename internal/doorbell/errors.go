package doorbell

import "errors"

var (
	// ErrConnect is returned by Setup when the broker session cannot be established.
	ErrConnect = errors.New("doorbell: broker connect failed")

	// ErrArm is returned by Setup when the input pin cannot be armed.
	ErrArm = errors.New("doorbell: gpio setup failed")

	// ErrPublishFailed ends the event loop: a press could not be delivered.
	ErrPublishFailed = errors.New("doorbell: publish failed")

	// ErrInputClosed ends the event loop: the input line went away while running.
	ErrInputClosed = errors.New("doorbell: input line closed")
)

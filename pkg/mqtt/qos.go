package mqtt

// QoS levels used by the agent
const (
	// QoSAtLeastOnce makes the broker acknowledge every publish (PUBACK)
	QoSAtLeastOnce byte = 1
)

package kafka

// Topic definitions for Kafka event streaming
const (
	// Correlation events: status transitions and divergence signals,
	// keyed by pair so consumers see per-pair ordering
	TopicCorrelationEvents = "correlation.events"

	// System events: calculation and monitor lifecycle
	TopicSystemEvents = "system.events"
)

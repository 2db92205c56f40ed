package domain

import (
	"context"
)

// EventBus moves case events between components. Implementations live in
// internal/bus: an in-process channel bus and a NATS bus.
type EventBus interface {
	Publish(ctx context.Context, topic string, payload []byte) error

	// Subscribe delivers every message published on topic to handler until
	// the returned subscription is removed or ctx is cancelled.
	Subscribe(ctx context.Context, topic string, handler MessageHandler) (Subscription, error)

	// Request publishes payload and blocks until a subscriber replies.
	Request(ctx context.Context, topic string, payload []byte) ([]byte, error)

	Ping(ctx context.Context) error
	Close() error
}

// MessageHandler handles one delivered message. A returned error is logged
// by the bus; the message is not redelivered.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message is a published payload plus its envelope.
type Message struct {
	ID        string            `json:"id"`
	Topic     string            `json:"topic"`
	Payload   []byte            `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
	Timestamp int64             `json:"timestamp"` // unix nanoseconds
}

type Subscription interface {
	Unsubscribe() error
	Topic() string
}

// EventBusConfig selects and tunes the event bus.
type EventBusConfig struct {
	Type string `koanf:"type" json:"type" validate:"oneof=channel nats"`

	// ChannelBufferSize is the per-subscription inbox of the channel bus.
	ChannelBufferSize int `koanf:"channel_buffer_size" json:"channelBufferSize"`

	NATSUrl           string `koanf:"nats_url" json:"natsUrl"`
	NATSToken         string `koanf:"nats_token" json:"-"`
	NATSMaxReconnects int    `koanf:"nats_max_reconnects" json:"natsMaxReconnects"`
	NATSReconnectWait int    `koanf:"nats_reconnect_wait" json:"natsReconnectWait"` // seconds
}

// Standard topic names for the case pipeline.
const (
	TopicCaseSubmitted         = "kestrel.case.submitted"
	TopicDecision              = "kestrel.decision"
	TopicEscalationRecommended = "kestrel.case.escalation_recommended"
	TopicPolicySaved           = "kestrel.policy.saved"
	TopicCaseEscalated         = "kestrel.case.escalated"
	TopicCaseDismissed         = "kestrel.case.dismissed"
	TopicCaseEvaluate          = "kestrel.case.evaluate"
)

// CaseSubmitted is the payload of TopicCaseSubmitted and TopicCaseEvaluate.
type CaseSubmitted struct {
	CaseID  string `json:"caseId"`
	TraceID string `json:"traceId,omitempty"`
}

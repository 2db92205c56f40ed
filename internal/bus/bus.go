// Package bus carries case events between the API, the worker and outside
// consumers. ChannelBus serves a single process; NATSBus spans a cluster.
package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// MetaReplyTo is the message metadata key carrying the reply topic of a request.
const MetaReplyTo = "reply_to"

// DefaultRequestTimeout bounds Request when the context has no earlier deadline.
const DefaultRequestTimeout = 30 * time.Second

var (
	ErrClosed  = errors.New("bus: closed")
	ErrNoTopic = errors.New("bus: topic is required")
	ErrNoReply = errors.New("bus: message does not expect a reply")
)

// New builds the bus named by cfg.Type. A nil logger uses slog.Default.
func New(cfg domain.EventBusConfig, logger *slog.Logger) (domain.EventBus, error) {
	switch cfg.Type {
	case "channel", "":
		return NewChannelBus(cfg.ChannelBufferSize, logger), nil
	case "nats":
		return NewNATSBus(cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported event bus type: %s", cfg.Type)
	}
}

// Reply answers a message received through Request.
func Reply(ctx context.Context, b domain.EventBus, msg *domain.Message, payload []byte) error {
	replyTo := msg.Metadata[MetaReplyTo]
	if replyTo == "" {
		return fmt.Errorf("message %s: %w", msg.ID, ErrNoReply)
	}
	return b.Publish(ctx, replyTo, payload)
}

func newMessage(topic string, payload []byte, metadata map[string]string) *domain.Message {
	if metadata == nil {
		metadata = make(map[string]string)
	}
	return &domain.Message{
		ID:        uuid.NewString(),
		Topic:     topic,
		Payload:   payload,
		Metadata:  metadata,
		Timestamp: time.Now().UnixNano(),
	}
}

func orDefault(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}

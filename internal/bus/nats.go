package bus

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// Message identity and metadata travel as NATS headers; the payload is sent
// as the raw message body so non-Go consumers can read it directly.
const (
	headerID         = "Kestrel-Message-Id"
	headerTimestamp  = "Kestrel-Timestamp"
	headerMetaPrefix = "Kestrel-Meta-"
)

// NATSBus is an EventBus backed by a NATS connection. Topics map to subjects.
type NATSBus struct {
	conn   *nats.Conn
	logger *slog.Logger
}

type natsSub struct {
	topic string
	sub   *nats.Subscription
}

// NewNATSBus connects to cfg.NATSUrl, retrying up to NATSMaxReconnects times.
func NewNATSBus(cfg domain.EventBusConfig, logger *slog.Logger) (*NATSBus, error) {
	logger = orDefault(logger).With("bus", "nats")

	url := cfg.NATSUrl
	if url == "" {
		url = nats.DefaultURL
	}
	attempts := cfg.NATSMaxReconnects
	if attempts <= 0 {
		attempts = 10
	}
	wait := time.Duration(cfg.NATSReconnectWait) * time.Second
	if wait <= 0 {
		wait = 5 * time.Second
	}

	opts := []nats.Option{
		nats.Name("kestrel"),
		nats.MaxReconnects(attempts),
		nats.ReconnectWait(wait),
		nats.ReconnectBufSize(8 << 20),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn("disconnected", "error", err, "closed", nc.IsClosed())
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			var subject string
			if sub != nil {
				subject = sub.Subject
			}
			logger.Error("async error", "subject", subject, "error", err)
		}),
	}
	if cfg.NATSToken != "" {
		opts = append(opts, nats.Token(cfg.NATSToken))
	}

	var (
		conn *nats.Conn
		err  error
	)
	for attempt := 1; attempt <= attempts; attempt++ {
		if conn, err = nats.Connect(url, opts...); err == nil {
			break
		}
		logger.Warn("connect failed", "attempt", attempt, "of", attempts, "error", err)
		if attempt < attempts {
			time.Sleep(wait)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}

	logger.Info("connected", "url", conn.ConnectedUrl(), "server_id", conn.ConnectedServerId())
	return &NATSBus{conn: conn, logger: logger}, nil
}

func toNATS(msg *domain.Message) *nats.Msg {
	m := nats.NewMsg(msg.Topic)
	m.Data = msg.Payload
	m.Header.Set(headerID, msg.ID)
	m.Header.Set(headerTimestamp, strconv.FormatInt(msg.Timestamp, 10))
	for k, v := range msg.Metadata {
		m.Header.Set(headerMetaPrefix+k, v)
	}
	return m
}

func fromNATS(m *nats.Msg) *domain.Message {
	msg := &domain.Message{
		ID:       m.Header.Get(headerID),
		Topic:    m.Subject,
		Payload:  m.Data,
		Metadata: make(map[string]string),
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	msg.Timestamp, _ = strconv.ParseInt(m.Header.Get(headerTimestamp), 10, 64)

	prefix := strings.ToLower(headerMetaPrefix)
	for k, vs := range m.Header {
		lk := strings.ToLower(k)
		if strings.HasPrefix(lk, prefix) && len(vs) > 0 {
			msg.Metadata[strings.TrimPrefix(lk, prefix)] = vs[0]
		}
	}
	if m.Reply != "" {
		msg.Metadata[MetaReplyTo] = m.Reply
	}
	return msg
}

func (b *NATSBus) Publish(ctx context.Context, topic string, payload []byte) error {
	if topic == "" {
		return ErrNoTopic
	}
	if b.conn.IsClosed() {
		return ErrClosed
	}
	return b.conn.PublishMsg(toNATS(newMessage(topic, payload, nil)))
}

// Subscribe handles topic until the subscription is removed. Messages that
// arrive after ctx is cancelled are ignored.
func (b *NATSBus) Subscribe(ctx context.Context, topic string, handler domain.MessageHandler) (domain.Subscription, error) {
	if topic == "" {
		return nil, ErrNoTopic
	}
	sub, err := b.conn.Subscribe(topic, func(m *nats.Msg) {
		if ctx.Err() != nil {
			return
		}
		msg := fromNATS(m)
		if err := handler(ctx, msg); err != nil {
			b.logger.Error("message handler failed",
				"subject", m.Subject,
				"message_id", msg.ID,
				"error", err,
			)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}
	return &natsSub{topic: topic, sub: sub}, nil
}

// Request uses NATS request-reply; the responder answers with Reply.
func (b *NATSBus) Request(ctx context.Context, topic string, payload []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultRequestTimeout)
	defer cancel()

	reply, err := b.conn.RequestMsgWithContext(ctx, toNATS(newMessage(topic, payload, nil)))
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", topic, err)
	}
	return reply.Data, nil
}

func (b *NATSBus) Ping(ctx context.Context) error {
	if !b.conn.IsConnected() {
		return fmt.Errorf("nats: not connected (%s)", b.conn.Status())
	}
	return b.conn.FlushWithContext(ctx)
}

// Close drains pending messages before closing the connection.
func (b *NATSBus) Close() error {
	if b.conn.IsClosed() {
		return nil
	}
	if err := b.conn.Drain(); err != nil {
		b.conn.Close()
		return fmt.Errorf("failed to drain NATS connection: %w", err)
	}
	return nil
}

func (s *natsSub) Unsubscribe() error {
	return s.sub.Unsubscribe()
}

func (s *natsSub) Topic() string {
	return s.topic
}

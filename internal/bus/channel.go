package bus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// ChannelBus is an in-process EventBus. Each subscription owns a buffered
// inbox drained by its own goroutine, so a slow handler only delays its own
// topic. Publish never blocks: a message for a full inbox is dropped.
type ChannelBus struct {
	logger  *slog.Logger
	inbox   int
	nextID  atomic.Uint64
	dropped atomic.Uint64

	mu     sync.RWMutex
	topics map[string]map[uint64]*channelSub
	closed bool
}

type channelSub struct {
	id     uint64
	topic  string
	bus    *ChannelBus
	inbox  chan *domain.Message
	cancel context.CancelFunc
	once   sync.Once
}

// NewChannelBus creates a bus whose subscriptions buffer up to inbox messages.
func NewChannelBus(inbox int, logger *slog.Logger) *ChannelBus {
	if inbox <= 0 {
		inbox = 1000
	}
	return &ChannelBus{
		logger: orDefault(logger),
		inbox:  inbox,
		topics: make(map[string]map[uint64]*channelSub),
	}
}

// Publish fans payload out to every subscriber of topic.
func (b *ChannelBus) Publish(ctx context.Context, topic string, payload []byte) error {
	return b.deliver(newMessage(topic, payload, nil))
}

func (b *ChannelBus) deliver(msg *domain.Message) error {
	if msg.Topic == "" {
		return ErrNoTopic
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}

	for _, sub := range b.topics[msg.Topic] {
		select {
		case sub.inbox <- msg:
		default:
			b.dropped.Add(1)
			b.logger.Warn("subscriber inbox full, message dropped",
				"topic", msg.Topic,
				"message_id", msg.ID,
				"subscription", sub.id,
			)
		}
	}
	return nil
}

// Subscribe starts delivering topic to handler until the subscription is
// removed, ctx is cancelled or the bus is closed.
func (b *ChannelBus) Subscribe(ctx context.Context, topic string, handler domain.MessageHandler) (domain.Subscription, error) {
	if topic == "" {
		return nil, ErrNoTopic
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &channelSub{
		id:     b.nextID.Add(1),
		topic:  topic,
		bus:    b,
		inbox:  make(chan *domain.Message, b.inbox),
		cancel: cancel,
	}
	if b.topics[topic] == nil {
		b.topics[topic] = make(map[uint64]*channelSub)
	}
	b.topics[topic][sub.id] = sub

	go sub.run(subCtx, handler)
	return sub, nil
}

func (s *channelSub) run(ctx context.Context, handler domain.MessageHandler) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-s.inbox:
			if err := handler(ctx, msg); err != nil {
				s.bus.logger.Error("message handler failed",
					"topic", msg.Topic,
					"message_id", msg.ID,
					"error", err,
				)
			}
		}
	}
}

// Request publishes payload with a private reply topic and waits for the
// first answer sent through Reply.
func (b *ChannelBus) Request(ctx context.Context, topic string, payload []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultRequestTimeout)
	defer cancel()

	replies := make(chan []byte, 1)
	replyTo := topic + ".reply." + uuid.NewString()
	sub, err := b.Subscribe(ctx, replyTo, func(_ context.Context, msg *domain.Message) error {
		select {
		case replies <- msg.Payload:
		default:
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	defer sub.Unsubscribe()

	if err := b.deliver(newMessage(topic, payload, map[string]string{MetaReplyTo: replyTo})); err != nil {
		return nil, err
	}

	select {
	case reply := <-replies:
		return reply, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("request %s: %w", topic, ctx.Err())
	}
}

// Dropped reports how many messages were discarded because an inbox was full.
func (b *ChannelBus) Dropped() uint64 {
	return b.dropped.Load()
}

func (b *ChannelBus) Ping(ctx context.Context) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	return nil
}

// Close stops every subscription. Closing twice is a no-op.
func (b *ChannelBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for _, subs := range b.topics {
		for _, sub := range subs {
			sub.cancel()
		}
	}
	clear(b.topics)
	return nil
}

func (s *channelSub) Unsubscribe() error {
	s.once.Do(func() {
		s.cancel()
		b := s.bus
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.topics[s.topic], s.id)
		if len(b.topics[s.topic]) == 0 {
			delete(b.topics, s.topic)
		}
	})
	return nil
}

func (s *channelSub) Topic() string {
	return s.topic
}

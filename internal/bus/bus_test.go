package bus

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/opensource-finance/kestrel/internal/domain"
)

func waitFor(t *testing.T, wg *sync.WaitGroup) {
	t.Helper()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestChannelBus(t *testing.T) {
	bus := NewChannelBus(100, nil)
	defer bus.Close()

	ctx := context.Background()

	t.Run("PublishAndSubscribe", func(t *testing.T) {
		var receivedMsg *domain.Message

		var wg sync.WaitGroup
		wg.Add(1)

		_, err := bus.Subscribe(ctx, domain.TopicCaseSubmitted, func(ctx context.Context, msg *domain.Message) error {
			receivedMsg = msg
			wg.Done()
			return nil
		})
		if err != nil {
			t.Fatalf("subscribe failed: %v", err)
		}

		err = bus.Publish(ctx, domain.TopicCaseSubmitted, []byte(`{"caseId":"ALRT-1"}`))
		if err != nil {
			t.Fatalf("publish failed: %v", err)
		}

		waitFor(t, &wg)

		if string(receivedMsg.Payload) != `{"caseId":"ALRT-1"}` {
			t.Errorf("unexpected payload '%s'", string(receivedMsg.Payload))
		}
		if receivedMsg.Topic != domain.TopicCaseSubmitted {
			t.Errorf("expected topic '%s', got '%s'", domain.TopicCaseSubmitted, receivedMsg.Topic)
		}
		if receivedMsg.ID == "" {
			t.Error("expected message ID")
		}
	})

	t.Run("TopicIsolation", func(t *testing.T) {
		var other atomic.Int32

		_, err := bus.Subscribe(ctx, "topic.b", func(ctx context.Context, msg *domain.Message) error {
			other.Add(1)
			return nil
		})
		if err != nil {
			t.Fatalf("subscribe failed: %v", err)
		}

		var wg sync.WaitGroup
		wg.Add(1)
		_, _ = bus.Subscribe(ctx, "topic.a", func(ctx context.Context, msg *domain.Message) error {
			wg.Done()
			return nil
		})

		_ = bus.Publish(ctx, "topic.a", []byte("x"))
		waitFor(t, &wg)

		if other.Load() != 0 {
			t.Errorf("expected no delivery on topic.b, got %d", other.Load())
		}
	})

	t.Run("RequiresTopic", func(t *testing.T) {
		if err := bus.Publish(ctx, "", []byte("x")); !errors.Is(err, ErrNoTopic) {
			t.Errorf("expected ErrNoTopic, got %v", err)
		}
	})

	t.Run("Unsubscribe", func(t *testing.T) {
		var count atomic.Int32

		sub, err := bus.Subscribe(ctx, "unsub.topic", func(ctx context.Context, msg *domain.Message) error {
			count.Add(1)
			return nil
		})
		if err != nil {
			t.Fatalf("subscribe failed: %v", err)
		}

		if err := sub.Unsubscribe(); err != nil {
			t.Fatalf("unsubscribe failed: %v", err)
		}

		_ = bus.Publish(ctx, "unsub.topic", []byte("ignored"))
		time.Sleep(50 * time.Millisecond)

		if count.Load() != 0 {
			t.Errorf("expected 0 messages after unsubscribe, got %d", count.Load())
		}

		bus.mu.RLock()
		_, ok := bus.topics["unsub.topic"]
		bus.mu.RUnlock()
		if ok {
			t.Error("expected subscription to be removed")
		}
	})

	t.Run("MultipleSubscribers", func(t *testing.T) {
		var wg sync.WaitGroup
		wg.Add(3)

		for i := 0; i < 3; i++ {
			_, err := bus.Subscribe(ctx, "fanout.topic", func(ctx context.Context, msg *domain.Message) error {
				wg.Done()
				return nil
			})
			if err != nil {
				t.Fatalf("subscribe failed: %v", err)
			}
		}

		_ = bus.Publish(ctx, "fanout.topic", []byte("broadcast"))
		waitFor(t, &wg)
	})

	t.Run("RequestReply", func(t *testing.T) {
		_, err := bus.Subscribe(ctx, "echo", func(ctx context.Context, msg *domain.Message) error {
			return Reply(ctx, bus, msg, append([]byte("re: "), msg.Payload...))
		})
		if err != nil {
			t.Fatalf("subscribe failed: %v", err)
		}

		reqCtx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()

		reply, err := bus.Request(reqCtx, "echo", []byte("ping"))
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		if string(reply) != "re: ping" {
			t.Errorf("expected 're: ping', got '%s'", reply)
		}
	})

	t.Run("ReplyWithoutRequest", func(t *testing.T) {
		msg := &domain.Message{ID: "m-1", Metadata: map[string]string{}}
		if err := Reply(ctx, bus, msg, []byte("x")); !errors.Is(err, ErrNoReply) {
			t.Errorf("expected ErrNoReply, got %v", err)
		}
	})

	t.Run("Ping", func(t *testing.T) {
		if err := bus.Ping(ctx); err != nil {
			t.Errorf("ping failed: %v", err)
		}
	})

	t.Run("SubscriptionTopic", func(t *testing.T) {
		sub, err := bus.Subscribe(ctx, domain.TopicDecision, func(ctx context.Context, msg *domain.Message) error {
			return nil
		})
		if err != nil {
			t.Fatalf("subscribe failed: %v", err)
		}

		if sub.Topic() != domain.TopicDecision {
			t.Errorf("expected topic '%s', got '%s'", domain.TopicDecision, sub.Topic())
		}
	})
}

func TestChannelBusClose(t *testing.T) {
	bus := NewChannelBus(10, nil)
	ctx := context.Background()

	_, _ = bus.Subscribe(ctx, "topic", func(ctx context.Context, msg *domain.Message) error {
		return nil
	})

	if err := bus.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	if err := bus.Publish(ctx, "topic", []byte("x")); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if _, err := bus.Subscribe(ctx, "topic", nil); err == nil {
		t.Error("expected error subscribing to closed bus")
	}
	if err := bus.Ping(ctx); err == nil {
		t.Error("expected ping to fail on closed bus")
	}

	// Second close is a no-op
	if err := bus.Close(); err != nil {
		t.Errorf("second close failed: %v", err)
	}
}

func TestNewBus(t *testing.T) {
	t.Run("ChannelType", func(t *testing.T) {
		cfg := domain.EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 50,
		}

		b, err := New(cfg, nil)
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		defer b.Close()

		if _, ok := b.(*ChannelBus); !ok {
			t.Error("expected ChannelBus for channel type")
		}
	})

	t.Run("UnsupportedType", func(t *testing.T) {
		_, err := New(domain.EventBusConfig{Type: "kafka"}, nil)
		if err == nil {
			t.Error("expected error for unsupported type")
		}
	})
}

func TestChannelBusDropsWhenInboxFull(t *testing.T) {
	bus := NewChannelBus(1, nil)
	defer bus.Close()

	ctx := context.Background()
	release := make(chan struct{})
	defer close(release)

	_, err := bus.Subscribe(ctx, "slow.topic", func(ctx context.Context, msg *domain.Message) error {
		<-release
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	// One message can be in the handler and one in the inbox; the rest drop.
	for i := 0; i < 3; i++ {
		if err := bus.Publish(ctx, "slow.topic", []byte("x")); err != nil {
			t.Fatalf("publish failed: %v", err)
		}
	}
	if bus.Dropped() == 0 {
		t.Error("expected at least one dropped message")
	}
}

func TestNATSHeaders(t *testing.T) {
	msg := newMessage("kestrel.decision", []byte(`{"caseId":"ALRT-1"}`), map[string]string{"trace_id": "t-1"})

	m := toNATS(msg)
	m.Reply = "_INBOX.abc"
	got := fromNATS(m)

	if got.ID != msg.ID {
		t.Errorf("expected id %s, got %s", msg.ID, got.ID)
	}
	if got.Timestamp != msg.Timestamp {
		t.Errorf("expected timestamp %d, got %d", msg.Timestamp, got.Timestamp)
	}
	if string(got.Payload) != `{"caseId":"ALRT-1"}` {
		t.Errorf("payload should travel unwrapped, got %s", got.Payload)
	}
	if got.Metadata["trace_id"] != "t-1" {
		t.Errorf("expected trace_id metadata, got %v", got.Metadata)
	}
	if got.Metadata[MetaReplyTo] != "_INBOX.abc" {
		t.Errorf("expected reply subject in metadata, got %v", got.Metadata)
	}

	t.Run("ForeignPublisher", func(t *testing.T) {
		got := fromNATS(&nats.Msg{Subject: "kestrel.case.submitted", Data: []byte("{}")})
		if got.ID == "" {
			t.Error("expected a generated id")
		}
		if got.Topic != "kestrel.case.submitted" {
			t.Errorf("unexpected topic %s", got.Topic)
		}
	})
}

func TestChannelBusHighLoad(t *testing.T) {
	bus := NewChannelBus(1000, nil)
	defer bus.Close()

	ctx := context.Background()
	const messages = 500

	var wg sync.WaitGroup
	wg.Add(messages)

	_, err := bus.Subscribe(ctx, "load.topic", func(ctx context.Context, msg *domain.Message) error {
		wg.Done()
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	for i := 0; i < messages; i++ {
		if err := bus.Publish(ctx, "load.topic", []byte("x")); err != nil {
			t.Fatalf("publish failed: %v", err)
		}
	}

	waitFor(t, &wg)
}

// TestNATSBus runs against a live server when KESTREL_TEST_NATS_URL is set.
func TestNATSBus(t *testing.T) {
	url := os.Getenv("KESTREL_TEST_NATS_URL")
	if url == "" {
		t.Skip("KESTREL_TEST_NATS_URL not set")
	}

	bus, err := NewNATSBus(domain.EventBusConfig{NATSUrl: url, NATSMaxReconnects: 1, NATSReconnectWait: 1}, nil)
	if err != nil {
		t.Fatalf("NewNATSBus failed: %v", err)
	}
	defer bus.Close()

	ctx := context.Background()

	t.Run("PublishAndSubscribe", func(t *testing.T) {
		var wg sync.WaitGroup
		wg.Add(1)

		var payload []byte
		sub, err := bus.Subscribe(ctx, "kestrel.test.events", func(ctx context.Context, msg *domain.Message) error {
			payload = msg.Payload
			wg.Done()
			return nil
		})
		if err != nil {
			t.Fatalf("subscribe failed: %v", err)
		}
		defer sub.Unsubscribe()

		if err := bus.Publish(ctx, "kestrel.test.events", []byte("hello")); err != nil {
			t.Fatalf("publish failed: %v", err)
		}
		waitFor(t, &wg)

		if string(payload) != "hello" {
			t.Errorf("expected 'hello', got '%s'", payload)
		}
	})

	t.Run("RequestReply", func(t *testing.T) {
		sub, err := bus.Subscribe(ctx, "kestrel.test.echo", func(ctx context.Context, msg *domain.Message) error {
			return Reply(ctx, bus, msg, msg.Payload)
		})
		if err != nil {
			t.Fatalf("subscribe failed: %v", err)
		}
		defer sub.Unsubscribe()

		reqCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()

		reply, err := bus.Request(reqCtx, "kestrel.test.echo", []byte("ping"))
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		if string(reply) != "ping" {
			t.Errorf("expected 'ping', got '%s'", reply)
		}
	})
}

package pubsub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBroker_Subscribe(t *testing.T) {
	broker := NewBroker[string]()
	defer broker.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := broker.Subscribe(ctx)
	require.Equal(t, 1, broker.Publish(NotificationEvent, "Game settings have been updated"))

	select {
	case event := <-ch:
		require.Equal(t, "Game settings have been updated", event.Payload)
		require.Equal(t, NotificationEvent, event.Type)
		require.False(t, event.Timestamp.IsZero())
	case <-time.After(100 * time.Millisecond):
		require.Fail(t, "timeout waiting for event")
	}
}

func TestBroker_MultipleSubscribers(t *testing.T) {
	broker := NewBroker[int]()
	defer broker.Close()

	ctx := context.Background()
	chans := []<-chan Event[int]{broker.Subscribe(ctx), broker.Subscribe(ctx), broker.Subscribe(ctx)}
	require.Equal(t, 3, broker.SubscriberCount())

	require.Equal(t, 3, broker.Publish(StateChangedEvent, 42))
	for i, ch := range chans {
		select {
		case event := <-ch:
			require.Equal(t, 42, event.Payload, "subscriber %d", i)
		case <-time.After(100 * time.Millisecond):
			require.Fail(t, "timeout waiting for event", "subscriber %d", i)
		}
	}
}

func TestBroker_ContextCancellation(t *testing.T) {
	broker := NewBroker[string]()
	defer broker.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch := broker.Subscribe(ctx)
	require.Equal(t, 1, broker.SubscriberCount())

	cancel()
	require.Eventually(t, func() bool { return broker.SubscriberCount() == 0 }, time.Second, 5*time.Millisecond)

	_, ok := <-ch
	require.False(t, ok, "channel should be closed")
}

func TestBroker_NonBlockingCountsDrops(t *testing.T) {
	broker := NewBrokerWithBuffer[int](1)
	defer broker.Close()

	ch := broker.Subscribe(context.Background())
	broker.Publish(DriftEvent, 1)

	done := make(chan struct{})
	go func() {
		broker.Publish(DriftEvent, 2)
		broker.Publish(DriftEvent, 3)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(100 * time.Millisecond):
		require.Fail(t, "Publish blocked")
	}

	event := <-ch
	require.Equal(t, 1, event.Payload)
	require.Equal(t, uint64(2), broker.Dropped())
}

func TestBroker_Close(t *testing.T) {
	broker := NewBroker[string]()
	ctx := context.Background()
	ch1 := broker.Subscribe(ctx)
	ch2 := broker.Subscribe(ctx)

	broker.Close()
	broker.Close()

	_, ok1 := <-ch1
	_, ok2 := <-ch2
	require.False(t, ok1)
	require.False(t, ok2)
	require.Equal(t, 0, broker.SubscriberCount())

	ch3 := broker.Subscribe(ctx)
	_, ok3 := <-ch3
	require.False(t, ok3, "subscribe after close returns a closed channel")
	require.Zero(t, broker.Publish(NotificationEvent, "late"))
}

func TestBroker_SubscribeToTypes(t *testing.T) {
	broker := NewBroker[string]()
	defer broker.Close()

	ctx := context.Background()
	drift := broker.Subscribe(ctx, DriftEvent)
	all := broker.Subscribe(ctx)

	require.Equal(t, 1, broker.Publish(NotificationEvent, "updated"))
	require.Equal(t, 2, broker.Publish(DriftEvent, "/g/cfg.ini"))

	event := <-drift
	require.Equal(t, "/g/cfg.ini", event.Payload)
	select {
	case e := <-drift:
		t.Fatalf("unexpected %s event", e.Type)
	default:
	}

	require.Equal(t, "updated", (<-all).Payload)
	require.Equal(t, "/g/cfg.ini", (<-all).Payload)
	require.Zero(t, broker.Dropped())
}

func TestListen(t *testing.T) {
	broker := NewBroker[string]()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := broker.Subscribe(ctx)
	broker.Publish(NotificationEvent, "one")
	broker.Publish(NotificationEvent, "two")
	broker.Close()

	var got []string
	Listen(ctx, ch, func(e Event[string]) { got = append(got, e.Payload) })
	require.Equal(t, []string{"one", "two"}, got)
}

package api

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcher_DeliversToOwnUserOnly(t *testing.T) {
	d := NewDispatcher()
	ctx := context.Background()

	mine, cancelMine := d.Subscribe(ctx, "u1")
	defer cancelMine()
	theirs, cancelTheirs := d.Subscribe(ctx, "u2")
	defer cancelTheirs()

	d.Publish("u1", ChangeEvent{Event: eventChanged, EntityType: "notes"})

	select {
	case ev := <-mine:
		assert.Equal(t, eventChanged, ev.Event)
		assert.Equal(t, "notes", ev.EntityType)
	case <-time.After(time.Second):
		t.Fatal("subscriber never received the event")
	}

	select {
	case ev := <-theirs:
		t.Fatalf("foreign subscriber received %+v", ev)
	default:
	}
}

func TestDispatcher_CancelStopsDelivery(t *testing.T) {
	d := NewDispatcher()

	ch, cancel := d.Subscribe(context.Background(), "u1")
	cancel()

	d.Publish("u1", ChangeEvent{Event: eventChanged})
	select {
	case ev, ok := <-ch:
		if ok {
			t.Fatalf("cancelled subscriber received %+v", ev)
		}
	default:
	}
}

func TestDispatcher_ContextEndDropsSubscription(t *testing.T) {
	d := NewDispatcher()
	ctx, cancel := context.WithCancel(context.Background())

	_, _ = d.Subscribe(ctx, "u1")
	cancel()

	require.Eventually(t, func() bool {
		d.mu.RLock()
		defer d.mu.RUnlock()
		return len(d.subscribers) == 0
	}, time.Second, 5*time.Millisecond)
}

func TestDispatcher_SlowSubscriberNeverBlocksPublish(t *testing.T) {
	d := NewDispatcher()

	_, cancel := d.Subscribe(context.Background(), "u1")
	defer cancel()

	// overflow the buffer; every publish must return immediately
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			d.Publish("u1", ChangeEvent{Event: eventChanged})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}

func TestDispatcher_AnonymousSubscribeIsInert(t *testing.T) {
	d := NewDispatcher()

	ch, cancel := d.Subscribe(context.Background(), "")
	defer cancel()

	// closed immediately
	_, ok := <-ch
	assert.False(t, ok)
}

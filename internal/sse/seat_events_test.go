package sse

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-seating/internal/models"
)

func event(layoutID string, uids ...string) models.SeatStatusChangeEvent {
	return models.NewSeatStatusChangeEvent(layoutID, "S1", uids, models.SeatStatusHeld, time.Now())
}

func TestSubscribersReceiveOnlyTheirLayout(t *testing.T) {
	e := NewSeatEventEmitter()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l1 := e.Subscribe(ctx, "layout-1")
	l2 := e.Subscribe(ctx, "layout-2")
	assert.Equal(t, 1, e.ClientCount("layout-1"))

	require.NoError(t, e.PublishSeatStatus(ctx, event("layout-1", "A1")))

	select {
	case got := <-l1:
		assert.Equal(t, []string{"A1"}, got.SeatUIDs)
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}
	select {
	case got := <-l2:
		t.Fatalf("unexpected event %v", got)
	default:
	}
}

func TestSlowClientDoesNotBlock(t *testing.T) {
	e := NewSeatEventEmitter()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := e.Subscribe(ctx, "layout-1")
	for i := 0; i < clientBuffer*2; i++ {
		require.NoError(t, e.PublishSeatStatus(ctx, event("layout-1", fmt.Sprintf("A%d", i))))
	}
	assert.Len(t, ch, clientBuffer)
}

func TestUnsubscribeOnCancel(t *testing.T) {
	e := NewSeatEventEmitter()
	ctx, cancel := context.WithCancel(context.Background())

	ch := e.Subscribe(ctx, "layout-1")
	cancel()

	assert.Eventually(t, func() bool { return e.ClientCount("layout-1") == 0 }, time.Second, 5*time.Millisecond)
	_, open := <-ch
	assert.False(t, open)

	// publishing to a layout with no clients is fine
	assert.NoError(t, e.PublishSeatStatus(context.Background(), event("layout-1", "A1")))
}

func TestConcurrentPublishAndUnsubscribe(t *testing.T) {
	e := NewSeatEventEmitter()
	done := make(chan struct{})

	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			_ = e.PublishSeatStatus(context.Background(), event("layout-1", "A1"))
		}
	}()
	for i := 0; i < 50; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		e.Subscribe(ctx, "layout-1")
		cancel()
	}
	<-done
	assert.Eventually(t, func() bool { return e.ClientCount("layout-1") == 0 }, time.Second, 5*time.Millisecond)
}

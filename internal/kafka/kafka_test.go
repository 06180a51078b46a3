package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-seating/internal/logger"
	"ms-seating/internal/models"
)

type fakeWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestPublishSeatStatus(t *testing.T) {
	writer := &fakeWriter{}
	p := &Producer{Writer: writer, logger: logger.Discard()}

	event := models.NewSeatStatusChangeEvent("layout-1", "S1", []string{"A1", "A2"}, models.SeatStatusHeld,
		time.Date(2025, 3, 1, 18, 0, 0, 0, time.UTC))
	require.NoError(t, p.PublishSeatStatus(context.Background(), event))

	require.Len(t, writer.messages, 1)
	msg := writer.messages[0]
	assert.Equal(t, "layout-1", string(msg.Key))

	var decoded models.SeatStatusChangeEvent
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, event, decoded)

	require.NoError(t, p.Close())
	assert.True(t, writer.closed)
}

func TestPublishSeatStatusError(t *testing.T) {
	p := &Producer{Writer: &fakeWriter{err: errors.New("leader not available")}}
	err := p.PublishSeatStatus(context.Background(), models.SeatStatusChangeEvent{LayoutID: "layout-1"})
	assert.Error(t, err)
}

// fakeReader serves queued messages, then blocks until the context ends.
type fakeReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []int64
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.queue) > 0 {
		msg := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func (r *fakeReader) commits() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

func layoutMessage(t *testing.T, offset int64, layoutID string) kafka.Message {
	t.Helper()
	body, err := json.Marshal(models.LayoutPublishedEvent{
		Layout: models.SeatingLayout{LayoutID: layoutID, EventID: "event-1"},
		Seats:  []models.Seat{{SeatUID: "A1", PriceTierID: "gold"}},
	})
	require.NoError(t, err)
	return kafka.Message{Topic: TopicLayoutPublished, Offset: offset, Value: body}
}

func TestConsumerHandsLayoutsToHandler(t *testing.T) {
	reader := &fakeReader{queue: []kafka.Message{
		layoutMessage(t, 1, "layout-1"),
		{Topic: TopicLayoutPublished, Offset: 2, Value: []byte("{not json")},
		layoutMessage(t, 3, "layout-bad"),
		layoutMessage(t, 4, "layout-2"),
	}}
	c := &Consumer{reader: reader, logger: logger.Discard()}

	var mu sync.Mutex
	var seen []string
	handler := func(_ context.Context, ev models.LayoutPublishedEvent) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, ev.Layout.LayoutID)
		if ev.Layout.LayoutID == "layout-bad" {
			return errors.New("unknown tier")
		}
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx, handler) }()

	assert.Eventually(t, func() bool { return len(reader.commits()) == 4 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, []string{"layout-1", "layout-bad", "layout-2"}, seen)
	assert.Equal(t, []int64{1, 2, 3, 4}, reader.commits())
	assert.NoError(t, c.Close())
}

type brokenReader struct{ fakeReader }

func (*brokenReader) FetchMessage(context.Context) (kafka.Message, error) {
	return kafka.Message{}, errors.New("group coordinator not available")
}

func TestConsumerStopsOnReadError(t *testing.T) {
	c := &Consumer{reader: &brokenReader{}, logger: logger.Discard()}
	err := c.Start(context.Background(), func(context.Context, models.LayoutPublishedEvent) error { return nil })
	assert.Error(t, err)
}

func TestEnsureTopicsExistRequiresBrokers(t *testing.T) {
	assert.Error(t, EnsureTopicsExist(context.Background(), nil, []string{TopicSeatStatus}, logger.Discard()))
	_, err := ListTopics(context.Background(), nil)
	assert.Error(t, err)
}

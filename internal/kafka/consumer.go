package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/segmentio/kafka-go"

	"ms-seating/internal/logger"
	"ms-seating/internal/models"
)

// MessageReader is the part of *kafka.Reader the consumer needs.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// LayoutHandler receives every decoded layout publication.
type LayoutHandler func(ctx context.Context, event models.LayoutPublishedEvent) error

type Consumer struct {
	reader MessageReader
	logger *logger.Logger
}

// NewConsumer creates a new Kafka consumer for the given topic and group
func NewConsumer(brokers []string, topic, groupID string, log *logger.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})
	return &Consumer{reader: reader, logger: log}
}

// Start consumes layout publications until ctx is cancelled. Every message
// is committed after one handling attempt; undecodable messages and handler
// failures are logged and skipped.
func (c *Consumer) Start(ctx context.Context, handler LayoutHandler) error {
	c.logger.LogKafka("CONSUME", TopicLayoutPublished, "Consumer started")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				c.logger.LogKafka("CONSUME", TopicLayoutPublished, "Consumer stopped")
				return nil
			}
			c.logger.Error("KAFKA", fmt.Sprintf("Error reading message: %v", err))
			return fmt.Errorf("fetch message: %w", err)
		}

		var event models.LayoutPublishedEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			c.logger.Warn("KAFKA", fmt.Sprintf("Dropping undecodable message at offset %d: %v", msg.Offset, err))
			c.commit(ctx, msg)
			continue
		}

		c.logger.LogKafka("CONSUME", msg.Topic, fmt.Sprintf("Layout %s published for event %s (%d seats)",
			event.Layout.LayoutID, event.Layout.EventID, len(event.Seats)))
		if err := handler(ctx, event); err != nil {
			c.logger.Error("KAFKA", fmt.Sprintf("Failed to apply layout %s: %v", event.Layout.LayoutID, err))
		}
		c.commit(ctx, msg)
	}
}

func (c *Consumer) commit(ctx context.Context, msg kafka.Message) {
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		c.logger.Warn("KAFKA", fmt.Sprintf("Failed to commit offset %d: %v", msg.Offset, err))
	}
}

// Close gracefully shuts down the Kafka reader
func (c *Consumer) Close() error {
	return c.reader.Close()
}

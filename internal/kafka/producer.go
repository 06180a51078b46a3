package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"ms-seating/internal/logger"
	"ms-seating/internal/models"
)

const (
	TopicSeatStatus      = "ticketly.seats.status"
	TopicLayoutPublished = "ticketly.layouts.published"
)

// MessageWriter is the part of *kafka.Writer the producer needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Producer struct {
	Writer MessageWriter
	logger *logger.Logger
}

func NewProducer(brokers []string, topic string, log *logger.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
	return &Producer{Writer: writer, logger: log}
}

// PublishSeatStatus streams a seat status change to Kafka. Messages are keyed
// by layout id so all changes of one layout stay in order on one partition.
func (p *Producer) PublishSeatStatus(ctx context.Context, event models.SeatStatusChangeEvent) error {
	msgBytes, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal seat status event: %w", err)
	}

	p.logger.LogKafka("PUBLISH", TopicSeatStatus, fmt.Sprintf("%s %d seats in %s", event.Status, len(event.SeatUIDs), event.LayoutID))

	return p.Writer.WriteMessages(ctx,
		kafka.Message{
			Key:   []byte(event.LayoutID),
			Value: msgBytes,
		},
	)
}

func (p *Producer) Close() error {
	return p.Writer.Close()
}

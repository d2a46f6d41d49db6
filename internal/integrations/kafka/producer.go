// Package kafka mirrors analytics events onto a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"supportbot/internal/domain"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes analytics events keyed by conversation id so one
// conversation's events land on one partition in order.
type Producer struct {
	writer messageWriter
	topic  string
	logger *zap.Logger
}

func NewProducer(brokers []string, topic string, logger *zap.Logger) *Producer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 50 * time.Millisecond,
			RequiredAcks: kafka.RequireOne,
		},
		topic:  topic,
		logger: logger,
	}
}

func (p *Producer) Publish(ctx context.Context, e domain.AnalyticsEvent) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal analytics event: %w", err)
	}
	key := e.ConversationID
	if key == "" {
		key = e.Type
	}
	msg := kafka.Message{
		Key:   []byte(key),
		Value: data,
		Time:  e.CreatedAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(e.Type)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write to kafka topic %s: %w", p.topic, err)
	}
	p.logger.Debug("kafka event sent", zap.String("topic", p.topic), zap.String("event_type", e.Type), zap.String("key", key))
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

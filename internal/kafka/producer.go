package kafka

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// messageWriter is the subset of *kafka.Writer the producer needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes classification events and finished rows to Kafka
type Producer struct {
	eventsWriter  messageWriter
	resultsWriter messageWriter
	log           *zap.Logger
}

// NewProducer creates a new Kafka producer
func NewProducer(brokers []string, eventsTopic, resultsTopic string, log *zap.Logger) *Producer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Producer{
		eventsWriter: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    eventsTopic,
			Balancer: &kafka.Hash{},
		},
		resultsWriter: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    resultsTopic,
			Balancer: &kafka.LeastBytes{},
		},
		log: log.Named("kafka"),
	}
}

// SendEvent sends a progress event keyed by upload, keeping one upload's
// events on a single partition.
func (p *Producer) SendEvent(ctx context.Context, key string, event any) error {
	return p.send(ctx, p.eventsWriter, "event", key, event)
}

// SendResult sends a classified row to the results topic
func (p *Producer) SendResult(ctx context.Context, key string, row any) error {
	return p.send(ctx, p.resultsWriter, "result", key, row)
}

func (p *Producer) send(ctx context.Context, w messageWriter, kind, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: data,
	}

	if err := w.WriteMessages(ctx, msg); err != nil {
		return err
	}

	p.log.Debug("sent to kafka", zap.String("kind", kind), zap.String("key", key))
	return nil
}

// Close closes the Kafka writers
func (p *Producer) Close() error {
	if err := p.eventsWriter.Close(); err != nil {
		return err
	}
	return p.resultsWriter.Close()
}

// Package kafka publishes committed events to a Kafka topic for external
// read-model builders. The publisher is a Projection, so it resumes from its
// cursor after a restart and delivers every committed event at least once;
// messages are keyed by stream id so per-stream order survives partitioning.
package kafka

import (
	"context"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/flowsource/eventflow"
)

type Publisher struct {
	name   string
	writer *kafkago.Writer
}

func NewPublisher(brokers []string, topic string) *Publisher {
	return &Publisher{
		name: "kafka_publisher/" + topic,
		writer: &kafkago.Writer{
			Addr:         kafkago.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafkago.Hash{},
			RequiredAcks: kafkago.RequireAll,
		},
	}
}

var _ eventflow.Projection = (*Publisher)(nil)

func (p *Publisher) Name() string {
	return p.name
}

func (p *Publisher) Handle(ctx context.Context, e *eventflow.Event) error {
	value, err := eventflow.Marshal(e)
	if err != nil {
		return err
	}

	return p.writer.WriteMessages(ctx, kafkago.Message{
		Key:   []byte(e.StreamID),
		Value: value,
		Time:  e.CreatedAt,
		Headers: []kafkago.Header{
			{Key: "event_id", Value: []byte(e.ID)},
			{Key: "event_type", Value: []byte(e.Type)},
			{Key: "correlation_id", Value: []byte(e.CorrelationID)},
			{Key: "trace_id", Value: []byte(e.TraceID)},
		},
	})
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

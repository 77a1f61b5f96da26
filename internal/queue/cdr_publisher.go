package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// CDRPublisher writes relayed records to a topic, keyed by call id so every
// record of one call lands on the same partition.
type CDRPublisher struct {
	writer messageWriter
}

// NewCDRPublisher constructs a publisher for the given topic.
func NewCDRPublisher(k *Kafka, topic string) *CDRPublisher {
	return &CDRPublisher{writer: k.NewWriter(topic)}
}

// Name identifies the sink in logs.
func (p *CDRPublisher) Name() string { return "kafka" }

// Deliver emits payload as one message.
func (p *CDRPublisher) Deliver(ctx context.Context, payload []byte) error {
	var ids struct {
		CallID string `json:"CallId"`
	}
	if err := json.Unmarshal(payload, &ids); err != nil {
		return fmt.Errorf("cdr publisher: read call id: %w", err)
	}

	record := kafka.Message{
		Value: payload,
		Time:  time.Now().UTC(),
	}
	if ids.CallID != "" {
		record.Key = []byte(ids.CallID)
	}
	if err := p.writer.WriteMessages(ctx, record); err != nil {
		return fmt.Errorf("cdr publisher: write message: %w", err)
	}
	return nil
}

// Close closes the publisher.
func (p *CDRPublisher) Close() error {
	return p.writer.Close()
}

package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"

	"github.com/venuelink/rolodex/pkg/metrics"
	"github.com/venuelink/rolodex/pkg/tracing"
)

// Producer handles Kafka event emission
type Producer struct {
	writer *kafka.Writer
	logger ectologger.Logger
	topic  string
}

// ProducerConfig holds Kafka producer configuration
type ProducerConfig struct {
	Brokers      []string
	Topic        string
	BatchSize    int
	BatchTimeout time.Duration
	RequiredAcks int
	Compression  string
}

// NewProducer creates a new Kafka producer
func NewProducer(cfg ProducerConfig, logger ectologger.Logger) *Producer {
	compression := kafka.Snappy
	switch cfg.Compression {
	case "gzip":
		compression = kafka.Gzip
	case "lz4":
		compression = kafka.Lz4
	case "zstd":
		compression = kafka.Zstd
	case "none":
		compression = 0
	}

	requiredAcks := kafka.RequiredAcks(cfg.RequiredAcks)

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.LeastBytes{},
		BatchSize:              cfg.BatchSize,
		BatchTimeout:           cfg.BatchTimeout,
		RequiredAcks:           requiredAcks,
		Compression:            compression,
		AllowAutoTopicCreation: true,
	}

	return &Producer{
		writer: writer,
		logger: logger,
		topic:  cfg.Topic,
	}
}

// Close closes the producer
func (p *Producer) Close() error {
	return p.writer.Close()
}

// ContactEvent represents an event about a structure or person
type ContactEvent struct {
	EventType      string          `json:"event_type"` // detected, merged, imported
	OrganizationID string          `json:"organization_id"`
	EntityID       string          `json:"entity_id"`
	EntityKind     string          `json:"entity_kind"` // structure, person
	Data           json.RawMessage `json:"data,omitempty"`
	SourceEntities []string        `json:"source_entities,omitempty"`
	Timestamp      time.Time       `json:"timestamp"`
}

// LiaisonEvent represents an event about a structure/person association
type LiaisonEvent struct {
	EventType      string          `json:"event_type"` // created, updated, dissociated, reactivated, relocated
	OrganizationID string          `json:"organization_id"`
	LiaisonID      string          `json:"liaison_id"`
	StructureID    string          `json:"structure_id"`
	PersonID       string          `json:"person_id"`
	Data           json.RawMessage `json:"data,omitempty"`
	Timestamp      time.Time       `json:"timestamp"`
}

// PublishContactEvent publishes a contact event to Kafka
func (p *Producer) PublishContactEvent(ctx context.Context, event *ContactEvent) error {
	ctx, span := tracing.StartSpan(ctx, "kafka.Producer.PublishContactEvent")
	defer span.End()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Topic: p.topic,
		Key:   []byte(event.EntityID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "organization_id", Value: []byte(event.OrganizationID)},
			{Key: "entity_kind", Value: []byte(event.EntityKind)},
		},
	}

	start := time.Now()
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		metrics.RecordKafkaPublish(p.topic, "error", time.Since(start).Seconds())
		p.logger.WithContext(ctx).WithError(err).Error("Failed to publish contact event")
		return err
	}
	metrics.RecordKafkaPublish(p.topic, "success", time.Since(start).Seconds())

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"event_type":  event.EventType,
		"entity_id":   event.EntityID,
		"entity_kind": event.EntityKind,
	}).Debug("Published contact event")

	return nil
}

// PublishLiaisonEvent publishes a liaison event to Kafka
func (p *Producer) PublishLiaisonEvent(ctx context.Context, event *LiaisonEvent) error {
	ctx, span := tracing.StartSpan(ctx, "kafka.Producer.PublishLiaisonEvent")
	defer span.End()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Topic: p.topic,
		Key:   []byte(event.LiaisonID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "organization_id", Value: []byte(event.OrganizationID)},
		},
	}

	start := time.Now()
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		metrics.RecordKafkaPublish(p.topic, "error", time.Since(start).Seconds())
		p.logger.WithContext(ctx).WithError(err).Error("Failed to publish liaison event")
		return err
	}
	metrics.RecordKafkaPublish(p.topic, "success", time.Since(start).Seconds())

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"event_type": event.EventType,
		"liaison_id": event.LiaisonID,
	}).Debug("Published liaison event")

	return nil
}

// PublishContactEvents publishes multiple contact events in a batch
func (p *Producer) PublishContactEvents(ctx context.Context, events []*ContactEvent) error {
	ctx, span := tracing.StartSpan(ctx, "kafka.Producer.PublishContactEvents")
	defer span.End()

	if len(events) == 0 {
		return nil
	}

	messages := make([]kafka.Message, len(events))
	for i, event := range events {
		if event.Timestamp.IsZero() {
			event.Timestamp = time.Now().UTC()
		}

		data, err := json.Marshal(event)
		if err != nil {
			return err
		}

		messages[i] = kafka.Message{
			Topic: p.topic,
			Key:   []byte(event.EntityID),
			Value: data,
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte(event.EventType)},
				{Key: "organization_id", Value: []byte(event.OrganizationID)},
				{Key: "entity_kind", Value: []byte(event.EntityKind)},
				{Key: "schema_version", Value: []byte("1.0")},
			},
		}
	}

	start := time.Now()
	if err := p.writer.WriteMessages(ctx, messages...); err != nil {
		metrics.RecordKafkaPublish(p.topic, "error", time.Since(start).Seconds())
		p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"batch_size": len(events),
		}).Error("Failed to publish contact events batch")
		return err
	}
	metrics.RecordKafkaPublish(p.topic, "success", time.Since(start).Seconds())

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"batch_size": len(events),
	}).Debug("Published contact events batch")

	return nil
}

// Package events publishes service events to Kafka. When Kafka is
// disabled the publisher runs in log-only mode so the rest of the
// service never has to care.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"warm-transfer-service/internal/observability/metrics"
)

// Publisher publishes assignment, transfer-stage and transcript events
// to separate Kafka topics.
type Publisher struct {
	writerAssignment *kafka.Writer
	writerTransfer   *kafka.Writer
	writerTranscript *kafka.Writer
	principal        string
	topicAssignment  string
	topicTransfer    string
	topicTranscript  string
	enabled          bool
	metrics          *metrics.Metrics
}

// Config holds Kafka publisher configuration.
type Config struct {
	Brokers         []string
	TopicAssignment string
	TopicTransfer   string
	TopicTranscript string
	Principal       string
	Enabled         bool
}

// New creates a new Kafka event publisher.
func New(cfg *Config) *Publisher {
	m := metrics.DefaultMetrics

	if cfg == nil {
		log.Info().Msg("Kafka disabled (nil config), using log-only mode")
		return &Publisher{enabled: false, metrics: m}
	}

	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		log.Info().Msg("Kafka disabled, using log-only mode")
		return &Publisher{
			principal:       cfg.Principal,
			topicAssignment: cfg.TopicAssignment,
			topicTransfer:   cfg.TopicTransfer,
			topicTranscript: cfg.TopicTranscript,
			enabled:         false,
			metrics:         m,
		}
	}

	// Custom dialer with longer timeouts for DNS resolution in Kubernetes
	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}
	transport := &kafka.Transport{Dial: dialer.DialFunc}

	newWriter := func(topic string) *kafka.Writer {
		return &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			BatchTimeout: 10 * time.Millisecond,
			WriteTimeout: 10 * time.Second,
			RequiredAcks: kafka.RequireOne,
			Transport:    transport,
		}
	}

	log.Info().
		Strs("brokers", cfg.Brokers).
		Str("topicAssignment", cfg.TopicAssignment).
		Str("topicTransfer", cfg.TopicTransfer).
		Str("topicTranscript", cfg.TopicTranscript).
		Str("principal", cfg.Principal).
		Msg("Kafka publisher initialized")

	return &Publisher{
		writerAssignment: newWriter(cfg.TopicAssignment),
		writerTransfer:   newWriter(cfg.TopicTransfer),
		writerTranscript: newWriter(cfg.TopicTranscript),
		principal:        cfg.Principal,
		topicAssignment:  cfg.TopicAssignment,
		topicTransfer:    cfg.TopicTransfer,
		topicTranscript:  cfg.TopicTranscript,
		enabled:          true,
		metrics:          m,
	}
}

// PublishAssignment publishes a matcher assignment event.
func (p *Publisher) PublishAssignment(ctx context.Context, key string, event any) error {
	return p.publish(ctx, p.writerAssignment, p.topicAssignment, key, event)
}

// PublishTransferStage publishes a transfer state-transition event.
func (p *Publisher) PublishTransferStage(ctx context.Context, key string, event any) error {
	return p.publish(ctx, p.writerTransfer, p.topicTransfer, key, event)
}

// PublishTranscript publishes a final transcript segment event.
func (p *Publisher) PublishTranscript(ctx context.Context, key string, event any) error {
	return p.publish(ctx, p.writerTranscript, p.topicTranscript, key, event)
}

// publish is the internal method that writes to a specific Kafka writer.
func (p *Publisher) publish(ctx context.Context, writer *kafka.Writer, topic, key string, event any) error {
	start := time.Now()

	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("Failed to marshal event")
		return err
	}

	log.Debug().
		Str("principal", p.principal).
		Str("topic", topic).
		Str("key", key).
		RawJSON("payload", payload).
		Msg("Publishing event")

	// If Kafka is disabled, just log
	if !p.enabled || writer == nil {
		p.metrics.RecordKafkaPublish(topic, nil, time.Since(start).Seconds())
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(topic)},
			{Key: "principal", Value: []byte(p.principal)},
		},
	}

	if err := writer.WriteMessages(ctx, msg); err != nil {
		log.Error().
			Err(err).
			Str("topic", topic).
			Str("key", key).
			Msg("Failed to write to Kafka")
		p.metrics.RecordKafkaPublish(topic, err, time.Since(start).Seconds())
		return err
	}

	p.metrics.RecordKafkaPublish(topic, nil, time.Since(start).Seconds())
	return nil
}

// Close closes all Kafka writers.
func (p *Publisher) Close() error {
	var err error
	for _, w := range []*kafka.Writer{p.writerAssignment, p.writerTransfer, p.writerTranscript} {
		if w == nil {
			continue
		}
		if e := w.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing Kafka writer")
			err = e
		}
	}
	return err
}

package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/temcen/pirex-admin/internal/config"
	"github.com/temcen/pirex-admin/pkg/models"
)

const (
	defaultMaxRetries = 3
	defaultBaseDelay  = time.Second
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Stats() kafka.ReaderStats
	Close() error
}

// TraceHandler persists one decision trace.
type TraceHandler func(ctx context.Context, trace *models.DecisionTrace) error

// MessageBus publishes explain events and consumes decision traces written
// by the ranking backend.
type MessageBus struct {
	events      messageWriter
	traces      messageReader
	dlqWriter   messageWriter
	eventsTopic string
	tracesTopic string
	maxRetries  int
	baseDelay   time.Duration
	logger      *logrus.Logger
}

func NewMessageBus(cfg *config.Config, logger *logrus.Logger) (*MessageBus, error) {
	topics := cfg.Kafka.Topics
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, errors.New("no kafka brokers configured")
	}
	if topics.ExplainEvents == "" || topics.DecisionTraces == "" || topics.DecisionTracesDLQ == "" {
		return nil, errors.New("kafka topics must be configured")
	}

	// Explain events are fire-and-forget; failures surface through Completion.
	events := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Kafka.Brokers...),
		Topic:        topics.ExplainEvents,
		Balancer:     &kafka.Hash{}, // Key by namespace
		RequiredAcks: kafka.RequireOne,
		Async:        true,
		BatchTimeout: 10 * time.Millisecond,
		BatchSize:    100,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				logger.WithError(err).WithField("count", len(messages)).Warn("Failed to deliver explain events")
			}
		},
	}

	traces := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Kafka.Brokers,
		Topic:          topics.DecisionTraces,
		GroupID:        cfg.Kafka.ConsumerGroup,
		MinBytes:       10e3, // 10KB
		MaxBytes:       10e6, // 10MB
		CommitInterval: time.Second,
		StartOffset:    kafka.LastOffset,
	})

	dlqWriter := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Kafka.Brokers...),
		Topic:        topics.DecisionTracesDLQ,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}

	return &MessageBus{
		events:      events,
		traces:      traces,
		dlqWriter:   dlqWriter,
		eventsTopic: topics.ExplainEvents,
		tracesTopic: topics.DecisionTraces,
		maxRetries:  defaultMaxRetries,
		baseDelay:   defaultBaseDelay,
		logger:      logger,
	}, nil
}

// PublishExplainEvent enqueues an explain event. It does not wait for the
// broker.
func (mb *MessageBus) PublishExplainEvent(ctx context.Context, event models.ExplainEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal explain event: %w", err)
	}

	message := kafka.Message{
		Key:   []byte(event.Namespace),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(event.EventID)},
			{Key: "request_id", Value: []byte(event.RequestID)},
			{Key: "timestamp", Value: []byte(event.Timestamp.Format(time.RFC3339))},
		},
	}

	if err := mb.events.WriteMessages(ctx, message); err != nil {
		return fmt.Errorf("failed to write explain event: %w", err)
	}

	mb.logger.WithFields(logrus.Fields{
		"event_id":  event.EventID,
		"namespace": event.Namespace,
		"topic":     mb.eventsTopic,
	}).Debug("Explain event queued")

	return nil
}

// ConsumeDecisionTraces reads traces until ctx is cancelled. Messages that
// cannot be decoded or that still fail after retries go to the DLQ.
func (mb *MessageBus) ConsumeDecisionTraces(ctx context.Context, handler TraceHandler) error {
	for {
		message, err := mb.traces.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			mb.logger.WithError(err).Error("Failed to read decision trace from Kafka")
			if err := sleepContext(ctx, mb.baseDelay); err != nil {
				return err
			}
			continue
		}

		var trace models.DecisionTrace
		if err := json.Unmarshal(message.Value, &trace); err != nil {
			mb.logger.WithError(err).WithField("offset", message.Offset).Error("Failed to unmarshal decision trace")
			mb.deadLetter(ctx, message, err)
			continue
		}

		if err := mb.processWithRetry(ctx, &trace, handler); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			mb.logger.WithError(err).WithField("decision_id", trace.DecisionID).Error("Failed to process decision trace after retries")
			mb.deadLetter(ctx, message, err)
		}
	}
}

func (mb *MessageBus) processWithRetry(ctx context.Context, trace *models.DecisionTrace, handler TraceHandler) error {
	for attempt := 0; attempt <= mb.maxRetries; attempt++ {
		if attempt > 0 {
			// Exponential backoff
			delay := mb.baseDelay * time.Duration(1<<uint(attempt-1))
			mb.logger.WithFields(logrus.Fields{
				"decision_id": trace.DecisionID,
				"attempt":     attempt,
				"delay":       delay,
			}).Info("Retrying decision trace")

			if err := sleepContext(ctx, delay); err != nil {
				return err
			}
		}

		err := handler(ctx, trace)
		if err == nil {
			mb.logger.WithFields(logrus.Fields{
				"decision_id": trace.DecisionID,
				"attempt":     attempt,
			}).Debug("Decision trace stored")
			return nil
		}

		mb.logger.WithError(err).WithFields(logrus.Fields{
			"decision_id": trace.DecisionID,
			"attempt":     attempt,
		}).Warn("Decision trace processing failed")

		if attempt == mb.maxRetries {
			return fmt.Errorf("max retries exceeded: %w", err)
		}
	}

	return fmt.Errorf("unexpected retry loop exit")
}

func (mb *MessageBus) deadLetter(ctx context.Context, message kafka.Message, cause error) {
	if err := mb.sendToDLQ(ctx, message, cause); err != nil {
		mb.logger.WithError(err).Error("Failed to send decision trace to DLQ")
	}
}

func (mb *MessageBus) sendToDLQ(ctx context.Context, message kafka.Message, originalError error) error {
	dlqMessage := map[string]interface{}{
		"original_message": json.RawMessage(validJSON(message.Value)),
		"error":            originalError.Error(),
		"dlq_timestamp":    time.Now(),
	}

	dlqBytes, err := json.Marshal(dlqMessage)
	if err != nil {
		return fmt.Errorf("failed to marshal DLQ message: %w", err)
	}

	kafkaMessage := kafka.Message{
		Key:   message.Key,
		Value: dlqBytes,
		Headers: []kafka.Header{
			{Key: "original_topic", Value: []byte(mb.tracesTopic)},
			{Key: "original_offset", Value: []byte(fmt.Sprint(message.Offset))},
			{Key: "error", Value: []byte(originalError.Error())},
		},
	}

	if err := mb.dlqWriter.WriteMessages(ctx, kafkaMessage); err != nil {
		return fmt.Errorf("failed to write message to DLQ: %w", err)
	}

	mb.logger.WithFields(logrus.Fields{
		"offset": message.Offset,
		"error":  originalError.Error(),
	}).Warn("Decision trace sent to DLQ")

	return nil
}

// validJSON returns payload when it is valid JSON, otherwise the payload
// quoted as a JSON string.
func validJSON(payload []byte) []byte {
	if json.Valid(payload) {
		return payload
	}
	quoted, _ := json.Marshal(string(payload))
	return quoted
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (mb *MessageBus) Close() error {
	var errs []error

	if err := mb.events.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close events writer: %w", err))
	}

	if err := mb.traces.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close trace reader: %w", err))
	}

	if err := mb.dlqWriter.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close DLQ writer: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors closing message bus: %v", errs)
	}

	return nil
}

// GetMetrics returns consumer stats for the health endpoint.
func (mb *MessageBus) GetMetrics() map[string]interface{} {
	stats := mb.traces.Stats()
	return map[string]interface{}{
		"consumer_lag":    stats.Lag,
		"consumer_offset": stats.Offset,
		"messages_read":   stats.Messages,
		"bytes_read":      stats.Bytes,
		"rebalances":      stats.Rebalances,
		"timeouts":        stats.Timeouts,
		"errors":          stats.Errors,
	}
}

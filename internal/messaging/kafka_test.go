package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/temcen/pirex-admin/internal/config"
	"github.com/temcen/pirex-admin/pkg/models"
)

type fakeWriter struct {
	mu       sync.Mutex
	messages []kafka.Message
	err      error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func (w *fakeWriter) written() []kafka.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]kafka.Message(nil), w.messages...)
}

// fakeReader serves queued messages, then blocks until the context ends.
type fakeReader struct {
	messages []kafka.Message
}

func (r *fakeReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.messages) > 0 {
		m := r.messages[0]
		r.messages = r.messages[1:]
		return m, nil
	}
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) Stats() kafka.ReaderStats { return kafka.ReaderStats{Messages: 7} }
func (r *fakeReader) Close() error             { return nil }

func testBus(reader *fakeReader) (*MessageBus, *fakeWriter, *fakeWriter) {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	events, dlq := &fakeWriter{}, &fakeWriter{}
	return &MessageBus{
		events:      events,
		traces:      reader,
		dlqWriter:   dlq,
		eventsTopic: "explain-events",
		tracesTopic: "decision-traces",
		maxRetries:  2,
		baseDelay:   time.Millisecond,
		logger:      logger,
	}, events, dlq
}

func traceMessage(t *testing.T, trace models.DecisionTrace) kafka.Message {
	t.Helper()
	value, err := json.Marshal(trace)
	require.NoError(t, err)
	return kafka.Message{Key: []byte(trace.Namespace), Value: value}
}

func TestPublishExplainEvent(t *testing.T) {
	bus, events, _ := testBus(&fakeReader{})

	event := models.ExplainEvent{
		EventID:   uuid.NewString(),
		RequestID: "req-1",
		Namespace: "default",
		ItemIDs:   []string{"a", "b"},
		Timestamp: time.Now(),
	}
	require.NoError(t, bus.PublishExplainEvent(context.Background(), event))

	written := events.written()
	require.Len(t, written, 1)
	assert.Equal(t, []byte("default"), written[0].Key)

	var decoded models.ExplainEvent
	require.NoError(t, json.Unmarshal(written[0].Value, &decoded))
	assert.Equal(t, event.EventID, decoded.EventID)
	assert.Equal(t, event.ItemIDs, decoded.ItemIDs)
}

func TestPublishExplainEvent_WriterError(t *testing.T) {
	bus, events, _ := testBus(&fakeReader{})
	events.err = errors.New("broker down")

	err := bus.PublishExplainEvent(context.Background(), models.ExplainEvent{EventID: "e"})
	assert.ErrorContains(t, err, "broker down")
}

func TestConsumeDecisionTraces(t *testing.T) {
	good := models.DecisionTrace{DecisionID: uuid.New(), Namespace: "default", RequestID: "req-1"}
	failing := models.DecisionTrace{DecisionID: uuid.New(), Namespace: "default", RequestID: "req-2"}

	reader := &fakeReader{messages: []kafka.Message{
		traceMessage(t, good),
		{Key: []byte("default"), Value: []byte("{not json")},
		traceMessage(t, failing),
	}}
	bus, _, dlq := testBus(reader)

	var mu sync.Mutex
	stored := []uuid.UUID{}
	calls := map[uuid.UUID]int{}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- bus.ConsumeDecisionTraces(ctx, func(_ context.Context, trace *models.DecisionTrace) error {
			mu.Lock()
			defer mu.Unlock()
			calls[trace.DecisionID]++
			if trace.DecisionID == failing.DecisionID {
				return errors.New("insert failed")
			}
			stored = append(stored, trace.DecisionID)
			return nil
		})
	}()

	require.Eventually(t, func() bool { return len(dlq.written()) == 2 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	mu.Lock()
	assert.Equal(t, []uuid.UUID{good.DecisionID}, stored)
	assert.Equal(t, 3, calls[failing.DecisionID]) // first try plus two retries
	mu.Unlock()

	dead := dlq.written()
	var envelope map[string]any
	require.NoError(t, json.Unmarshal(dead[0].Value, &envelope))
	assert.Equal(t, "{not json", envelope["original_message"])

	require.NoError(t, json.Unmarshal(dead[1].Value, &envelope))
	assert.Contains(t, envelope["error"], "insert failed")
	original, ok := envelope["original_message"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, failing.DecisionID.String(), original["decision_id"])
}

func TestGetMetrics(t *testing.T) {
	bus, _, _ := testBus(&fakeReader{})
	assert.Equal(t, int64(7), bus.GetMetrics()["messages_read"])
}

func TestNewMessageBus_RequiresTopics(t *testing.T) {
	logger := logrus.New()

	cfg := &config.Config{}
	cfg.Kafka.Brokers = []string{"localhost:9092"}
	_, err := NewMessageBus(cfg, logger)
	assert.Error(t, err)

	cfg.Kafka.Topics.ExplainEvents = "explain-events"
	cfg.Kafka.Topics.DecisionTraces = "decision-traces"
	cfg.Kafka.Topics.DecisionTracesDLQ = "decision-traces-dlq"
	cfg.Kafka.ConsumerGroup = "pirex-admin"
	bus, err := NewMessageBus(cfg, logger)
	require.NoError(t, err)
	assert.Equal(t, "explain-events", bus.eventsTopic)
	assert.Equal(t, "decision-traces", bus.tracesTopic)
}

package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (m *mockWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if m.err != nil {
		return m.err
	}
	m.msgs = append(m.msgs, msgs...)
	return nil
}

func (m *mockWriter) Close() error {
	m.closed = true
	return nil
}

func TestKafkaPublisher_Publish(t *testing.T) {
	t.Parallel()
	w := &mockWriter{}
	p := &KafkaPublisher{writer: w, topic: "paycart.settlements"}

	at := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	err := p.Publish(context.Background(), Event{
		Type:              EventCheckoutCompleted,
		AttemptID:         "a1",
		UserID:            "u1",
		BlockchainOrderID: "42",
		OccurredAt:        at,
	})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "a1", string(msg.Key))
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, EventCheckoutCompleted, string(msg.Headers[0].Value))

	var got Event
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	assert.Equal(t, "42", got.BlockchainOrderID)
	assert.True(t, got.OccurredAt.Equal(at))

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestKafkaPublisher_StampsTime(t *testing.T) {
	t.Parallel()
	w := &mockWriter{}
	p := &KafkaPublisher{writer: w, topic: "t"}

	require.NoError(t, p.Publish(context.Background(), Event{Type: EventReconciliationRequired, AttemptID: "a1"}))

	var got Event
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &got))
	assert.False(t, got.OccurredAt.IsZero())
}

func TestKafkaPublisher_WriteError(t *testing.T) {
	t.Parallel()
	boom := errors.New("broker unavailable")
	p := &KafkaPublisher{writer: &mockWriter{err: boom}, topic: "t"}

	err := p.Publish(context.Background(), Event{Type: EventCheckoutCompleted, AttemptID: "a1"})
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "checkout.completed")
}

func TestNew(t *testing.T) {
	t.Parallel()

	assert.IsType(t, NopPublisher{}, New("t", nil))
	require.NoError(t, NopPublisher{}.Publish(context.Background(), Event{}))
	require.NoError(t, NopPublisher{}.Close())

	p := New("paycart.settlements", []string{"localhost:9092"})
	kp, ok := p.(*KafkaPublisher)
	require.True(t, ok)
	w, ok := kp.writer.(*kafka.Writer)
	require.True(t, ok)
	assert.Equal(t, "paycart.settlements", w.Topic)
}

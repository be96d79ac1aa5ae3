package stream

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/verity/id"
	"github.com/xraph/verity/producer"
	"github.com/xraph/verity/result"
	"github.com/xraph/verity/types"
)

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	fails  int
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fails > 0 {
		w.fails--
		return errors.New("leader not available")
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func decode(t *testing.T, m kafka.Message) Envelope {
	t.Helper()
	var env Envelope
	require.NoError(t, json.Unmarshal(m.Value, &env))
	return env
}

func TestPublishResultOmitsPayload(t *testing.T) {
	w := &fakeWriter{}
	p := New(w)
	r := &result.Result{
		EventID:     id.NewEventID(),
		ProducerID:  id.NewProducerID(),
		Payload:     []byte(`{"secret":true}`),
		Fingerprint: "3yZe7d",
		Status:      result.StatusFinalized,
	}

	require.NoError(t, p.OnResultFinalized(context.Background(), r))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, r.EventID.String(), string(msg.Key))
	assert.Equal(t, "type", msg.Headers[0].Key)
	assert.Equal(t, TypeResultFinalized, string(msg.Headers[0].Value))

	env := decode(t, msg)
	assert.Equal(t, TypeResultFinalized, env.Type)
	assert.NotContains(t, string(env.Data), "secret")
	assert.Contains(t, string(env.Data), "3yZe7d")
}

func TestPublishRetriesThenSucceeds(t *testing.T) {
	w := &fakeWriter{fails: 2}
	p := New(w, WithMaxAttempts(3), WithBackoff(time.Millisecond))

	pr := &producer.Producer{ID: id.NewProducerID(), Owner: "acme", Stake: types.USD(100000)}
	require.NoError(t, p.OnProducerRegistered(context.Background(), pr))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, pr.ID.String(), string(w.msgs[0].Key))
}

func TestPublishFailureIsSwallowed(t *testing.T) {
	w := &fakeWriter{fails: 10}
	p := New(w, WithMaxAttempts(2), WithBackoff(time.Millisecond))

	pr := &producer.Producer{ID: id.NewProducerID(), Stake: types.USD(50000)}
	err := p.OnStakeSlashed(context.Background(), pr, types.USD(50000), "wrong score")
	assert.NoError(t, err)
	assert.Empty(t, w.msgs)
	assert.Equal(t, 8, w.fails)
}

func TestShutdownClosesWriter(t *testing.T) {
	w := &fakeWriter{}
	require.NoError(t, New(w).OnShutdown(context.Background()))
	assert.True(t, w.closed)
}

func TestNewKafkaWriterValidates(t *testing.T) {
	_, err := NewKafkaWriter(KafkaConfig{Topic: "verity"})
	assert.Error(t, err)
	_, err = NewKafkaWriter(KafkaConfig{Brokers: []string{"localhost:9092"}})
	assert.Error(t, err)

	w, err := NewKafkaWriter(KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "verity"})
	require.NoError(t, err)
	assert.Equal(t, "verity", w.Topic)
	assert.Equal(t, 10*time.Second, w.WriteTimeout)
}

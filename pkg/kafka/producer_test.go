package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/bazaar-backend/pkg/config"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox"
)

type fakeWriter struct {
	topic  string
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func newTestProducer(t *testing.T, prefix string) (*Producer, map[string]*fakeWriter) {
	t.Helper()
	p, err := NewProducer(config.KafkaConfig{Brokers: []string{" localhost:9092 ", ""}, TopicPrefix: prefix}, nil)
	require.NoError(t, err)
	writers := map[string]*fakeWriter{}
	p.newWriter = func(topic string) writer {
		w := &fakeWriter{topic: topic}
		writers[topic] = w
		return w
	}
	return p, writers
}

func TestNewProducerRequiresBrokers(t *testing.T) {
	_, err := NewProducer(config.KafkaConfig{Brokers: []string{" "}}, nil)
	assert.Error(t, err)
}

func TestPublishWritesKeyHeadersAndPrefix(t *testing.T) {
	p, writers := newTestProducer(t, "prod.")
	assert.Equal(t, []string{"localhost:9092"}, p.brokers)

	err := p.Publish(context.Background(), outbox.Message{
		Topic:      "orders",
		Key:        "order-1",
		Data:       []byte(`{"ok":true}`),
		Attributes: map[string]string{"event_type": "order_created", "aggregate_id": "order-1"},
	})
	require.NoError(t, err)

	w := writers["prod.orders"]
	require.NotNil(t, w)
	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, "order-1", string(msg.Key))
	assert.JSONEq(t, `{"ok":true}`, string(msg.Value))
	carrier := headerCarrier{msg: &msg}
	assert.Equal(t, "order_created", carrier.Get("event_type"))
	assert.Equal(t, "order-1", carrier.Get("aggregate_id"))
}

func TestPublishReusesWriterAndCloses(t *testing.T) {
	p, writers := newTestProducer(t, "")
	for i := 0; i < 3; i++ {
		require.NoError(t, p.Publish(context.Background(), outbox.Message{Topic: "returns", Data: []byte("{}")}))
	}
	assert.Len(t, writers, 1)
	assert.Len(t, writers["returns"].msgs, 3)

	require.NoError(t, p.Close())
	assert.True(t, writers["returns"].closed)
}

func TestPublishSurfacesWriterError(t *testing.T) {
	p, _ := newTestProducer(t, "")
	p.newWriter = func(string) writer { return &fakeWriter{err: errors.New("leader not available")} }
	err := p.Publish(context.Background(), outbox.Message{Topic: "orders", Data: []byte("{}")})
	assert.ErrorContains(t, err, "leader not available")

	assert.Error(t, p.Publish(context.Background(), outbox.Message{Topic: " "}))
}

func TestHeaderCarrierSetOverwrites(t *testing.T) {
	msg := kafka.Message{}
	c := headerCarrier{msg: &msg}
	c.Set("traceparent", "a")
	c.Set("traceparent", "b")
	assert.Equal(t, []string{"traceparent"}, c.Keys())
	assert.Equal(t, "b", c.Get("traceparent"))
	assert.Equal(t, "", c.Get("missing"))
}

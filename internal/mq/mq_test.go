package mq

import (
	"context"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vidhub/apiserver/config"
)

type recordingBackend struct {
	published []string
	closed    bool
}

func (b *recordingBackend) Publish(_ context.Context, channel string, data []byte, _ map[string]string) (string, error) {
	b.published = append(b.published, channel+":"+string(data))
	return "id-1", nil
}

func (b *recordingBackend) Subscribe(ctx context.Context, channel string, handler Handler) error {
	return handler(ctx, Message{ID: "m1", Data: []byte(channel)})
}

func (b *recordingBackend) Close() error {
	b.closed = true
	return nil
}

func TestMQ_DelegatesToBackend(t *testing.T) {
	backend := &recordingBackend{}
	q := New(backend)

	id, err := q.Publish(context.Background(), "auth-events", []byte("hello"), nil)
	require.NoError(t, err)
	assert.Equal(t, "id-1", id)
	assert.Equal(t, []string{"auth-events:hello"}, backend.published)

	var got Message
	err = q.Subscribe(context.Background(), "auth-events", func(_ context.Context, msg Message) error {
		got = msg
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "auth-events", string(got.Data))

	require.NoError(t, q.Close())
	assert.True(t, backend.closed)
}

func TestOpen_NoBackend(t *testing.T) {
	q, err := Open(context.Background(), config.MQConfig{})
	require.NoError(t, err)
	assert.Nil(t, q)

	_, err = Open(context.Background(), config.MQConfig{Backend: "kafka"})
	assert.Error(t, err)
}

func TestHeadersToAttributes(t *testing.T) {
	assert.Nil(t, headersToAttributes(nil))
	attrs := headersToAttributes(amqp.Table{"a": "x", "b": []byte("y"), "c": int32(3)})
	assert.Equal(t, map[string]string{"a": "x", "b": "y", "c": "3"}, attrs)
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "application/octet-stream", contentType(nil))
	assert.Equal(t, "application/json", contentType(map[string]string{AttrContentType: "application/json"}))
}

func TestSubscriptionName(t *testing.T) {
	assert.Equal(t, "auth-events-sub", (&PubSubClient{subscriptionSuffix: "-sub"}).subscriptionName("auth-events"))
	assert.Equal(t, "auth-events", (&PubSubClient{}).subscriptionName("auth-events"))
}

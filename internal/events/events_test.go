package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vidhub/apiserver/internal/mq"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type fakeSender struct {
	channel string
	data    []byte
	attrs   map[string]string
	ctxErr  error
	err     error
}

func (f *fakeSender) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	f.channel = channel
	f.data = data
	f.attrs = attrs
	f.ctxErr = ctx.Err()
	return "msg-1", f.err
}

func TestMQPublisher_Publish(t *testing.T) {
	sender := &fakeSender{}
	p := NewMQPublisher(sender, "auth-events", nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p.Publish(ctx, Event{Type: TypeUserRegistered, UserID: "u-1"})

	assert.Equal(t, "auth-events", sender.channel)
	assert.Equal(t, "application/json", sender.attrs[mq.AttrContentType])
	assert.Equal(t, TypeUserRegistered, sender.attrs["event_type"])
	assert.NoError(t, sender.ctxErr)

	event, err := Decode(mq.Message{Data: sender.data})
	require.NoError(t, err)
	assert.Equal(t, "u-1", event.UserID)
	assert.WithinDuration(t, time.Now(), event.At, time.Minute)
}

func TestMQPublisher_LogsFailures(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	sender := &fakeSender{err: errors.New("broker down")}
	p := NewMQPublisher(sender, "auth-events", zap.New(core))

	p.Publish(context.Background(), Event{Type: TypeUserLoggedOut, UserID: "u-2"})

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "publish auth event", logs.All()[0].Message)
}

func TestNop(t *testing.T) {
	var p Publisher = Nop{}
	p.Publish(context.Background(), Event{Type: TypeUserLoggedIn})
}

type fakeSubscriber struct {
	messages []mq.Message
	results  []error
}

func (f *fakeSubscriber) Subscribe(ctx context.Context, _ string, handler mq.Handler) error {
	for _, msg := range f.messages {
		f.results = append(f.results, handler(ctx, msg))
	}
	return nil
}

func TestConsume(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	sub := &fakeSubscriber{messages: []mq.Message{
		{ID: "1", Data: []byte(`{"type":"user.logged_in","user_id":"u-1","at":"2026-01-02T03:04:05Z"}`)},
		{ID: "2", Data: []byte(`not json`)},
		{ID: "3", Data: []byte(`{"type":"token.refreshed","user_id":"u-1"}`)},
	}}

	var got []Event
	handlerErr := errors.New("retry later")
	err := Consume(context.Background(), sub, "auth-events", zap.New(core), func(_ context.Context, e Event) error {
		got = append(got, e)
		if e.Type == TypeTokenRefreshed {
			return handlerErr
		}
		return nil
	})
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, TypeUserLoggedIn, got[0].Type)
	assert.Equal(t, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), got[0].At)
	assert.Equal(t, []error{nil, nil, handlerErr}, sub.results)
	assert.Equal(t, 1, logs.FilterMessage("drop undecodable auth event").Len())
}

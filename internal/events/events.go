// Package events publishes auth lifecycle notifications. Delivery is best
// effort: failures are logged and never reach the caller.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/vidhub/apiserver/internal/mq"
	"go.uber.org/zap"
)

const (
	TypeUserRegistered = "user.registered"
	TypeUserLoggedIn   = "user.logged_in"
	TypeUserLoggedOut  = "user.logged_out"
	TypeTokenRefreshed = "token.refreshed"
)

const publishTimeout = 5 * time.Second

// Event is the JSON payload published for each auth transition.
type Event struct {
	Type   string    `json:"type"`
	UserID string    `json:"user_id"`
	At     time.Time `json:"at"`
}

// Publisher emits auth events.
type Publisher interface {
	Publish(ctx context.Context, event Event)
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) {}

// Sender is the subset of mq.MQ used to deliver events.
type Sender interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
}

// MQPublisher sends events to a single message queue channel.
type MQPublisher struct {
	sender  Sender
	channel string
	logger  *zap.Logger
}

func NewMQPublisher(sender Sender, channel string, logger *zap.Logger) *MQPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MQPublisher{sender: sender, channel: channel, logger: logger}
}

// Publish encodes and sends event. The send is detached from ctx cancellation
// so a finished request does not abort it.
func (p *MQPublisher) Publish(ctx context.Context, event Event) {
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	data, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("encode auth event", zap.String("type", event.Type), zap.Error(err))
		return
	}

	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	attrs := map[string]string{
		mq.AttrContentType: "application/json",
		"event_type":       event.Type,
	}
	id, err := p.sender.Publish(sendCtx, p.channel, data, attrs)
	if err != nil {
		p.logger.Warn("publish auth event",
			zap.String("type", event.Type),
			zap.String("user_id", event.UserID),
			zap.Error(err),
		)
		return
	}
	p.logger.Debug("auth event published", zap.String("type", event.Type), zap.String("message_id", id))
}

// Decode parses a message produced by MQPublisher.
func Decode(msg mq.Message) (Event, error) {
	var event Event
	err := json.Unmarshal(msg.Data, &event)
	return event, err
}

// Subscriber is the subset of mq.MQ used to consume events.
type Subscriber interface {
	Subscribe(ctx context.Context, channel string, handler mq.Handler) error
}

// Consume delivers every event on channel to fn until ctx is done. Messages
// that do not decode are logged and dropped so they are not redelivered.
func Consume(ctx context.Context, sub Subscriber, channel string, logger *zap.Logger, fn func(context.Context, Event) error) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	return sub.Subscribe(ctx, channel, func(ctx context.Context, msg mq.Message) error {
		event, err := Decode(msg)
		if err != nil {
			logger.Warn("drop undecodable auth event", zap.String("message_id", msg.ID), zap.Error(err))
			return nil
		}
		return fn(ctx, event)
	})
}

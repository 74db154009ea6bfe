package event

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/agentdesk/frontend/internal/model/chat"
)

// Topic carries every chat session event.
const Topic = "chat.events"

// Kind names what changed in the session.
type Kind string

const (
	KindMessage  Kind = "message"
	KindState    Kind = "state"
	KindError    Kind = "error"
	KindRedirect Kind = "redirect"
	KindReset    Kind = "reset"
)

// Event is published after every session change. It always carries the full
// snapshot so a subscriber that missed earlier events can still render.
type Event struct {
	Kind     Kind          `json:"event"`
	Message  *chat.Message `json:"message,omitempty"`
	Redirect string        `json:"redirect,omitempty"`
	Snapshot chat.Snapshot `json:"snapshot"`
	At       time.Time     `json:"at"`
}

// Bus fans session events out to views over an in-process watermill pub/sub.
type Bus struct {
	pubsub *gochannel.GoChannel
}

// NewBus creates an in-process bus.
func NewBus() *Bus {
	pubsub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer:            64,
		BlockPublishUntilSubscriberAck: true,
	}, watermill.NopLogger{})
	return &Bus{pubsub: pubsub}
}

// Publish delivers ev to every current subscriber.
func (b *Bus) Publish(ev Event) error {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "marshal event")
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	return errors.Wrap(b.pubsub.Publish(Topic, msg), "publish event")
}

// Subscribe streams events until ctx ends. Events are dropped for a
// subscriber whose buffer is full rather than stalling the publisher.
func (b *Bus) Subscribe(ctx context.Context, buffer int) (<-chan Event, error) {
	messages, err := b.pubsub.Subscribe(ctx, Topic)
	if err != nil {
		return nil, errors.Wrap(err, "subscribe")
	}
	if buffer < 1 {
		buffer = 1
	}

	out := make(chan Event, buffer)
	go func() {
		defer close(out)
		for msg := range messages {
			var ev Event
			if err := json.Unmarshal(msg.Payload, &ev); err != nil {
				log.Warn().Err(err).Msg("[event] dropping undecodable event")
				msg.Ack()
				continue
			}
			select {
			case out <- ev:
			default:
				log.Debug().Str("event", string(ev.Kind)).Msg("[event] subscriber lagging, event dropped")
			}
			msg.Ack()
		}
	}()
	return out, nil
}

// Close stops the bus and closes every subscription.
func (b *Bus) Close() error {
	return b.pubsub.Close()
}

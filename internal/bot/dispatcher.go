// Package bot routes decoded Viber callback events to their persistence
// actions and builds the scripted replies. The dispatcher is stateless
// across requests; all durable state lives in Redis.
package bot

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/viberbot/welcome-bot/internal/messaging"
	"github.com/viberbot/welcome-bot/internal/metrics"
	"github.com/viberbot/welcome-bot/internal/store"
	"github.com/viberbot/welcome-bot/internal/viber"
)

// DefaultStorageTimeout bounds each storage call made while handling an
// event when no timeout is configured.
const DefaultStorageTimeout = 3 * time.Second

// Store is the narrow persistence surface the dispatcher needs.
type Store interface {
	Upsert(ctx context.Context, key string, user viber.User) error
	Unsubscribe(ctx context.Context, key string) error
}

// Publisher fans subscriber lifecycle events out to downstream services.
// Publishing is best-effort and never fails the request.
type Publisher interface {
	PublishSubscribed(ev messaging.SubscriberEvent) error
	PublishUnsubscribed(ev messaging.SubscriberEvent) error
}

// Auditor records inbound events for operational history. Best-effort.
type Auditor interface {
	Record(ctx context.Context, eventType string, userID string, messageToken int64, payload []byte) error
}

// EventHandler handles one decoded event and returns the reply body.
type EventHandler func(ctx context.Context, event interface{}) ([]byte, error)

// Dispatcher maps inbound callback events to handlers based on the event
// discriminator. Events without a registered handler resolve to the empty
// acknowledgement, never to an error.
type Dispatcher struct {
	handlers       map[string]EventHandler
	users          Store
	publisher      Publisher
	auditor        Auditor
	storageTimeout time.Duration
	log            zerolog.Logger
}

// NewDispatcher creates a dispatcher with the built-in handlers registered.
// publisher and auditor may be nil, disabling the corresponding side effect.
// A non-positive storageTimeout falls back to DefaultStorageTimeout.
func NewDispatcher(users Store, publisher Publisher, auditor Auditor, storageTimeout time.Duration, logger zerolog.Logger) *Dispatcher {
	if storageTimeout <= 0 {
		storageTimeout = DefaultStorageTimeout
	}
	d := &Dispatcher{
		handlers:       make(map[string]EventHandler),
		users:          users,
		publisher:      publisher,
		auditor:        auditor,
		storageTimeout: storageTimeout,
		log:            logger,
	}
	d.Register(viber.EventConversationStarted, d.handleConversationStarted)
	d.Register(viber.EventSubscribed, d.handleSubscribed)
	d.Register(viber.EventUnsubscribed, d.handleUnsubscribed)
	return d
}

// Register associates an EventHandler with an event type. If a handler was
// already registered for the given type, it is silently replaced.
func (d *Dispatcher) Register(eventType string, handler EventHandler) {
	d.handlers[eventType] = handler
}

// Dispatch parses the raw callback body into a typed event and routes it to
// the registered handler. It returns the reply body to send to the platform.
//
// Error contract: a *viber.DecodeError means the body named a recognized
// event but was malformed (client error); a *store.StorageError means a
// required write failed (server error, no scripted reply). Unrecognized
// events are not errors and yield the empty acknowledgement.
func (d *Dispatcher) Dispatch(ctx context.Context, body []byte) ([]byte, error) {
	eventType, event, err := viber.ParseEvent(body)
	if err != nil {
		metrics.DecodeErrorsTotal.Inc()
		return nil, err
	}

	metrics.EventsTotal.WithLabelValues(eventType).Inc()

	handler, ok := d.handlers[eventType]
	if !ok {
		// Unknown and unregistered events acknowledge without touching
		// storage.
		return EmptyReply(), nil
	}

	reply, err := handler(ctx, event)
	if err != nil {
		metrics.StorageErrorsTotal.Inc()
		return nil, err
	}

	d.audit(ctx, eventType, body, event)
	return reply, nil
}

// handleConversationStarted upserts the user and replies with the scripted
// welcome picture. The write completes before the reply is returned;
// replying "Welcome" without having stored the user would silently lose
// data.
func (d *Dispatcher) handleConversationStarted(ctx context.Context, event interface{}) ([]byte, error) {
	ev := event.(viber.ConversationStartedEvent)
	if err := d.persistUser(ctx, ev.User, ev.Timestamp); err != nil {
		return nil, err
	}
	return WelcomeReply(), nil
}

// handleSubscribed upserts the user and acknowledges with an empty body.
func (d *Dispatcher) handleSubscribed(ctx context.Context, event interface{}) ([]byte, error) {
	ev := event.(viber.SubscribedEvent)
	if err := d.persistUser(ctx, ev.User, ev.Timestamp); err != nil {
		return nil, err
	}
	return EmptyReply(), nil
}

// handleUnsubscribed drops the user's key from the subscribed set. The user
// record itself is retained.
func (d *Dispatcher) handleUnsubscribed(ctx context.Context, event interface{}) ([]byte, error) {
	ev := event.(viber.UnsubscribedEvent)

	sctx, cancel := context.WithTimeout(ctx, d.storageTimeout)
	defer cancel()
	if err := d.users.Unsubscribe(sctx, store.UserKey(ev.UserID)); err != nil {
		return nil, err
	}

	if d.publisher != nil {
		if err := d.publisher.PublishUnsubscribed(messaging.SubscriberEvent{
			UserID:    ev.UserID,
			Timestamp: ev.Timestamp,
		}); err != nil {
			d.log.Warn().Err(err).Str("user_id", ev.UserID).Msg("unsubscribed publish failed")
		}
	}
	return EmptyReply(), nil
}

// persistUser writes the user record and registers it in the subscribed set
// under a bounded timeout, then publishes the lifecycle event.
func (d *Dispatcher) persistUser(ctx context.Context, user viber.User, timestamp int64) error {
	sctx, cancel := context.WithTimeout(ctx, d.storageTimeout)
	defer cancel()
	if err := d.users.Upsert(sctx, store.UserKey(user.ID), user); err != nil {
		return err
	}

	if d.publisher != nil {
		if err := d.publisher.PublishSubscribed(messaging.SubscriberEvent{
			UserID:    user.ID,
			Name:      user.Name,
			Timestamp: timestamp,
		}); err != nil {
			d.log.Warn().Err(err).Str("user_id", user.ID).Msg("subscribed publish failed")
		}
	}
	return nil
}

// audit records the handled event. Failures are logged, never surfaced.
func (d *Dispatcher) audit(ctx context.Context, eventType string, body []byte, event interface{}) {
	if d.auditor == nil {
		return
	}

	var userID string
	var messageToken int64
	switch ev := event.(type) {
	case viber.ConversationStartedEvent:
		userID, messageToken = ev.User.ID, ev.MessageToken
	case viber.SubscribedEvent:
		userID, messageToken = ev.User.ID, ev.MessageToken
	case viber.UnsubscribedEvent:
		userID, messageToken = ev.UserID, ev.MessageToken
	}

	if err := d.auditor.Record(ctx, eventType, userID, messageToken, body); err != nil {
		d.log.Warn().Err(err).Str("event", eventType).Msg("audit record failed")
	}
}

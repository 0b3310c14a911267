// Package viber defines the inbound Viber callback event types and the
// outbound platform API client. All callbacks arrive as JSON objects with an
// "event" discriminator field; decoding follows an envelope-then-concrete
// scheme so that unrecognized events degrade to UnknownEvent instead of
// failing the request.
package viber

import (
	"encoding/json"
	"fmt"
)

// ---------------------------------------------------------------------------
// Event type constants
// ---------------------------------------------------------------------------

// Inbound callback event types sent by the Viber platform.
const (
	EventConversationStarted = "conversation_started"
	EventSubscribed          = "subscribed"
	EventUnsubscribed        = "unsubscribed"

	// EventUnknown is the catch-all for any discriminator value this service
	// does not handle. It is not a wire value.
	EventUnknown = "unknown"
)

// ---------------------------------------------------------------------------
// User
// ---------------------------------------------------------------------------

// User is the per-subscriber profile embedded in callback payloads and
// persisted to the store. ID and Name are always present on valid payloads;
// the remaining fields are optional and omitted from the canonical JSON when
// empty.
type User struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Avatar     string `json:"avatar,omitempty"`
	Country    string `json:"country,omitempty"`
	Language   string `json:"language,omitempty"`
	APIVersion int    `json:"api_version,omitempty"`
}

// ---------------------------------------------------------------------------
// Envelope — used for initial JSON parsing to extract the discriminator.
// ---------------------------------------------------------------------------

// Envelope holds the event discriminator and the raw JSON payload for
// deferred parsing into a concrete struct.
type Envelope struct {
	Event string          `json:"event"`
	Raw   json.RawMessage `json:"-"`
}

// UnmarshalJSON captures the full raw bytes and extracts only the "event"
// field so that the rest of the payload can be decoded later into the
// appropriate concrete struct. A missing or non-string "event" field is not
// an error; it leaves Event empty, which resolves to UnknownEvent downstream.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	e.Raw = make(json.RawMessage, len(data))
	copy(e.Raw, data)

	var partial struct {
		Event json.RawMessage `json:"event"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("viber: failed to unmarshal envelope: %w", err)
	}

	var event string
	if len(partial.Event) > 0 {
		// Tolerate non-string discriminators; they resolve to unknown.
		_ = json.Unmarshal(partial.Event, &event)
	}
	e.Event = event
	return nil
}

// ---------------------------------------------------------------------------
// Concrete event structs
// ---------------------------------------------------------------------------

// ConversationStartedEvent fires when a user opens a conversation with the
// bot, before any subscription exists.
type ConversationStartedEvent struct {
	Event        string `json:"event"`
	Timestamp    int64  `json:"timestamp"`
	MessageToken int64  `json:"message_token"`
	Type         string `json:"type"`
	Context      string `json:"context"`
	User         User   `json:"user"`
	Subscribed   bool   `json:"subscribed"`
}

// SubscribedEvent fires when a user subscribes to the bot's public account.
type SubscribedEvent struct {
	Event        string `json:"event"`
	Timestamp    int64  `json:"timestamp"`
	MessageToken int64  `json:"message_token"`
	User         User   `json:"user"`
}

// UnsubscribedEvent fires when a user unsubscribes. Viber sends only the
// user id for this event, not a full profile.
type UnsubscribedEvent struct {
	Event        string `json:"event"`
	Timestamp    int64  `json:"timestamp"`
	MessageToken int64  `json:"message_token"`
	UserID       string `json:"user_id"`
}

// UnknownEvent is produced for any discriminator this service does not
// handle. It carries no payload guarantees.
type UnknownEvent struct{}

// ---------------------------------------------------------------------------
// Decode error
// ---------------------------------------------------------------------------

// DecodeError reports a payload that named a recognized event but did not
// satisfy that event's required shape. It maps to a client error at the
// transport layer.
type DecodeError struct {
	Event  string
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("viber: invalid %q payload: %s", e.Event, e.Reason)
}

// ---------------------------------------------------------------------------
// Parsing
// ---------------------------------------------------------------------------

// ParseEvent parses a raw callback body into a typed event. It returns the
// event type string, the decoded struct, and any error encountered.
//
// Unrecognized or absent discriminators never fail: they resolve to
// (EventUnknown, UnknownEvent{}, nil). A recognized discriminator whose
// payload is missing required fields returns a *DecodeError. Only a body
// that is not a JSON object at all is rejected outright.
func ParseEvent(data []byte) (string, interface{}, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, &DecodeError{Event: "", Reason: "body is not a JSON object"}
	}

	switch env.Event {
	case EventConversationStarted:
		var ev ConversationStartedEvent
		if err := json.Unmarshal(env.Raw, &ev); err != nil {
			return "", nil, &DecodeError{Event: env.Event, Reason: err.Error()}
		}
		if err := validateUser(env.Event, ev.User); err != nil {
			return "", nil, err
		}
		return env.Event, ev, nil

	case EventSubscribed:
		var ev SubscribedEvent
		if err := json.Unmarshal(env.Raw, &ev); err != nil {
			return "", nil, &DecodeError{Event: env.Event, Reason: err.Error()}
		}
		if err := validateUser(env.Event, ev.User); err != nil {
			return "", nil, err
		}
		return env.Event, ev, nil

	case EventUnsubscribed:
		var ev UnsubscribedEvent
		if err := json.Unmarshal(env.Raw, &ev); err != nil {
			return "", nil, &DecodeError{Event: env.Event, Reason: err.Error()}
		}
		if ev.UserID == "" {
			return "", nil, &DecodeError{Event: env.Event, Reason: "missing user_id"}
		}
		return env.Event, ev, nil

	default:
		return EventUnknown, UnknownEvent{}, nil
	}
}

// validateUser enforces the required fields of an embedded user profile.
func validateUser(event string, u User) error {
	if u.ID == "" {
		return &DecodeError{Event: event, Reason: "missing user.id"}
	}
	if u.Name == "" {
		return &DecodeError{Event: event, Reason: "missing user.name"}
	}
	return nil
}

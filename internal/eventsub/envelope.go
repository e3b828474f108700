package eventsub

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrMalformedEnvelope is returned when a message is not a valid envelope.
var ErrMalformedEnvelope = errors.New("eventsub: malformed envelope")

// Message types carried in metadata.message_type.
const (
	TypeSessionWelcome   = "session_welcome"
	TypeSessionKeepalive = "session_keepalive"
	TypeNotification     = "notification"
	TypeSessionReconnect = "session_reconnect"
	TypeRevocation       = "revocation"
)

// Subscription types and versions used by this module.
const (
	SubscriptionStreamOnline        = "stream.online"
	SubscriptionStreamOnlineVersion = "1"
)

// Envelope is a decoded EventSub WebSocket message.
type Envelope struct {
	Metadata Metadata
	Payload  Payload
}

// Metadata identifies a message.
type Metadata struct {
	MessageID           string    `json:"message_id"`
	MessageType         string    `json:"message_type"`
	MessageTimestamp    time.Time `json:"message_timestamp"`
	SubscriptionType    string    `json:"subscription_type,omitempty"`
	SubscriptionVersion string    `json:"subscription_version,omitempty"`
}

// Payload holds the variant carried by a message. Only the fields relevant
// to the message type are set.
type Payload struct {
	Session      *Session
	Subscription *Subscription
	Event        *Event

	// RawEvent is the undecoded event object, nil when absent.
	RawEvent json.RawMessage
}

// Session describes the WebSocket session (welcome, reconnect).
type Session struct {
	ID                      string    `json:"id"`
	Status                  string    `json:"status"`
	ConnectedAt             time.Time `json:"connected_at"`
	KeepaliveTimeoutSeconds int       `json:"keepalive_timeout_seconds"`
	ReconnectURL            string    `json:"reconnect_url"`
}

// Subscription describes a server-side subscription. The same shape is
// returned by the subscriptions REST endpoint.
type Subscription struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	Type      string    `json:"type"`
	Version   string    `json:"version"`
	Cost      int       `json:"cost"`
	Condition Condition `json:"condition"`
	Transport Transport `json:"transport"`
	CreatedAt time.Time `json:"created_at"`
}

// Condition selects the entity a subscription targets.
type Condition struct {
	BroadcasterUserID string `json:"broadcaster_user_id"`
}

// Transport is the delivery destination of a subscription.
type Transport struct {
	Method    string `json:"method"`
	SessionID string `json:"session_id,omitempty"`
}

// Event holds the fields of a stream.online event.
type Event struct {
	ID                   string    `json:"id"`
	BroadcasterUserID    string    `json:"broadcaster_user_id"`
	BroadcasterUserLogin string    `json:"broadcaster_user_login"`
	BroadcasterUserName  string    `json:"broadcaster_user_name"`
	Type                 string    `json:"type"`
	StartedAt            time.Time `json:"started_at"`
}

// Wire types for JSON parsing

type envelopeWire struct {
	Metadata *Metadata   `json:"metadata"`
	Payload  payloadWire `json:"payload"`
}

type payloadWire struct {
	Session      *Session        `json:"session"`
	Subscription *Subscription   `json:"subscription"`
	Event        json.RawMessage `json:"event"`
}

// Decode parses a single message.
func Decode(data []byte) (Envelope, error) {
	var w envelopeWire
	if err := json.Unmarshal(data, &w); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if w.Metadata == nil || w.Metadata.MessageType == "" {
		return Envelope{}, fmt.Errorf("%w: missing metadata.message_type", ErrMalformedEnvelope)
	}

	env := Envelope{
		Metadata: *w.Metadata,
		Payload: Payload{
			Session:      w.Payload.Session,
			Subscription: w.Payload.Subscription,
		},
	}

	if len(w.Payload.Event) > 0 && string(w.Payload.Event) != "null" {
		// Copy: data may alias a reused read buffer.
		raw := make(json.RawMessage, len(w.Payload.Event))
		copy(raw, w.Payload.Event)
		env.Payload.RawEvent = raw

		var ev Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			return Envelope{}, fmt.Errorf("%w: event: %v", ErrMalformedEnvelope, err)
		}
		env.Payload.Event = &ev
	}

	switch env.Metadata.MessageType {
	case TypeSessionWelcome, TypeSessionReconnect:
		if env.Payload.Session == nil || env.Payload.Session.ID == "" {
			return Envelope{}, fmt.Errorf("%w: %s without session id", ErrMalformedEnvelope, env.Metadata.MessageType)
		}
	case TypeNotification, TypeRevocation:
		if env.Payload.Subscription == nil {
			return Envelope{}, fmt.Errorf("%w: %s without subscription", ErrMalformedEnvelope, env.Metadata.MessageType)
		}
	}

	return env, nil
}

// Keepalive returns the keepalive interval announced by a welcome message,
// or zero if none.
func (e Envelope) Keepalive() time.Duration {
	if e.Payload.Session == nil {
		return 0
	}
	return time.Duration(e.Payload.Session.KeepaliveTimeoutSeconds) * time.Second
}

// SessionID returns the session id carried by the payload, if any.
func (e Envelope) SessionID() string {
	if e.Payload.Session == nil {
		return ""
	}
	return e.Payload.Session.ID
}

// IsStreamOnline reports whether e is a stream.online notification.
func (e Envelope) IsStreamOnline() bool {
	return e.Metadata.MessageType == TypeNotification &&
		e.Payload.Subscription != nil &&
		e.Payload.Subscription.Type == SubscriptionStreamOnline &&
		e.Payload.Event != nil
}

// Package transport exposes the subsystem over HTTP and WebSocket: gin
// routes for the request/response surface and one upgraded connection per
// browser tab for the live channel.
package transport

import (
	"time"

	"market-live/domain"
	"market-live/domain/event"
)

// EnvelopeKind enumerates live-channel event kinds in both directions.
type EnvelopeKind string

const (
	KindJoinRoom          EnvelopeKind = "join-room"
	KindLeaveRoom         EnvelopeKind = "leave-room"
	KindNewMessage        EnvelopeKind = "new-message"
	KindTypingStart       EnvelopeKind = "typing-start"
	KindTypingStop        EnvelopeKind = "typing-stop"
	KindReadReceipt       EnvelopeKind = "read-receipt"
	KindFocus             EnvelopeKind = "focus"
	KindHeartbeat         EnvelopeKind = "heartbeat"
	KindParticipantJoined EnvelopeKind = "participant-joined"
	KindParticipantLeft   EnvelopeKind = "participant-left"
	KindNotification      EnvelopeKind = "notification"
	KindRateLimitExceeded EnvelopeKind = "rate-limit-exceeded"
	KindAuthExpired       EnvelopeKind = "auth-expired"
	KindError             EnvelopeKind = "error"
)

// Envelope wraps every payload sent over the live channel.
type Envelope struct {
	Kind    EnvelopeKind    `json:"kind"`
	ChatID  string          `json:"chat_id,omitempty"`
	UserID  string          `json:"user_id,omitempty"`
	Message *MessagePayload `json:"message,omitempty"`
	Notif   *NotifPayload   `json:"notification,omitempty"`
	Body    string          `json:"body,omitempty"`
	// RetryAfterMs rides only on rate-limit-exceeded envelopes.
	RetryAfterMs int64 `json:"retry_after_ms,omitempty"`
}

type MessagePayload struct {
	ID            string    `json:"id"`
	ChatID        string    `json:"chat_id"`
	SenderID      string    `json:"sender_id"`
	Body          string    `json:"body"`
	CreatedAt     time.Time `json:"created_at"`
	DeliveryState string    `json:"delivery_state"`
}

type NotifPayload struct {
	ID          string     `json:"id"`
	SenderID    string     `json:"sender_id"`
	Kind        string     `json:"kind"`
	SubjectType string     `json:"subject_type"`
	SubjectID   string     `json:"subject_id"`
	CreatedAt   time.Time  `json:"created_at"`
	ReadAt      *time.Time `json:"read_at,omitempty"`
}

func toMessagePayload(m domain.Message) *MessagePayload {
	return &MessagePayload{
		ID:            m.ID.String(),
		ChatID:        m.ChatID.String(),
		SenderID:      m.SenderID,
		Body:          m.Body,
		CreatedAt:     m.CreatedAt,
		DeliveryState: string(m.DeliveryState),
	}
}

func toNotifPayload(n domain.Notification) *NotifPayload {
	return &NotifPayload{
		ID:          n.ID.String(),
		SenderID:    n.SenderID,
		Kind:        string(n.Kind),
		SubjectType: n.Subject.Type,
		SubjectID:   n.Subject.ID,
		CreatedAt:   n.CreatedAt,
		ReadAt:      n.ReadAt,
	}
}

// toEnvelope converts a domain event into its wire form. The switch is
// exhaustive over the event union; an unknown type falls through to nil
// and is dropped by the caller.
func toEnvelope(e event.DomainEvent) *Envelope {
	switch evt := e.(type) {
	case event.MessageDelivered:
		return &Envelope{
			Kind:    KindNewMessage,
			ChatID:  evt.Message.ChatID.String(),
			Message: toMessagePayload(evt.Message),
		}
	case event.ReadAcknowledged:
		return &Envelope{Kind: KindReadReceipt, ChatID: evt.ChatID.String(), UserID: evt.UserID}
	case event.TypingStarted:
		return &Envelope{Kind: KindTypingStart, ChatID: evt.ChatID.String(), UserID: evt.UserID}
	case event.TypingStopped:
		return &Envelope{Kind: KindTypingStop, ChatID: evt.ChatID.String(), UserID: evt.UserID}
	case event.ParticipantJoined:
		return &Envelope{Kind: KindParticipantJoined, ChatID: evt.ChatID.String(), UserID: evt.UserID}
	case event.ParticipantLeft:
		return &Envelope{Kind: KindParticipantLeft, ChatID: evt.ChatID.String(), UserID: evt.UserID}
	case event.NotificationPushed:
		return &Envelope{Kind: KindNotification, Notif: toNotifPayload(evt.Notification)}
	case event.RateLimited:
		return &Envelope{Kind: KindRateLimitExceeded, RetryAfterMs: evt.RetryAfter.Milliseconds()}
	case event.AuthExpired:
		return &Envelope{Kind: KindAuthExpired}
	default:
		return nil
	}
}

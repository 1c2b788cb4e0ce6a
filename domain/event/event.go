// Package event defines the typed union of live-channel events. Consumers
// switch on the concrete type, which keeps event handling exhaustive at
// compile time instead of string-keyed.
package event

import (
	"time"

	"github.com/google/uuid"

	"market-live/domain"
)

type DomainEvent interface {
	Chat() domain.ChatID
}

// MessageDelivered carries a persisted message to every live connection of
// every active participant.
type MessageDelivered struct {
	Message domain.Message
}

func (e MessageDelivered) Chat() domain.ChatID { return e.Message.ChatID }

// ReadAcknowledged propagates a counter reset to the reader's other
// connections so multi-tab badge state converges.
type ReadAcknowledged struct {
	ChatID domain.ChatID
	UserID string
	At     time.Time
}

func (e ReadAcknowledged) Chat() domain.ChatID { return e.ChatID }

// TypingStarted and TypingStopped are fire-and-forget. Losing one degrades
// UX (a stale indicator) but never touches counters or messages.
type TypingStarted struct {
	ChatID domain.ChatID
	UserID string
}

func (e TypingStarted) Chat() domain.ChatID { return e.ChatID }

type TypingStopped struct {
	ChatID domain.ChatID
	UserID string
}

func (e TypingStopped) Chat() domain.ChatID { return e.ChatID }

type ParticipantJoined struct {
	ChatID domain.ChatID
	UserID string
}

func (e ParticipantJoined) Chat() domain.ChatID { return e.ChatID }

type ParticipantLeft struct {
	ChatID domain.ChatID
	UserID string
}

func (e ParticipantLeft) Chat() domain.ChatID { return e.ChatID }

// NotificationPushed is not chat-scoped; it targets a single recipient
// across all their connections.
type NotificationPushed struct {
	Notification domain.Notification
}

func (e NotificationPushed) Chat() domain.ChatID { return uuid.Nil }

// RateLimited tells one connection to hold off for RetryAfter instead of
// busy-retrying. Distinct from a generic error on purpose.
type RateLimited struct {
	RetryAfter time.Duration
}

func (e RateLimited) Chat() domain.ChatID { return uuid.Nil }

// AuthExpired forces a client-side logout; the server closes the
// connection right after emitting it.
type AuthExpired struct{}

func (e AuthExpired) Chat() domain.ChatID { return uuid.Nil }

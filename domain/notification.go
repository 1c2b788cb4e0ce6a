package domain

import (
	"time"

	"github.com/google/uuid"
)

type NotificationKind string

const (
	KindMessage NotificationKind = "message"
	KindComment NotificationKind = "comment"
	KindVote    NotificationKind = "vote"
	KindReport  NotificationKind = "report"
)

// SubjectRef points at the entity the notification is about. Only the
// identifier travels; consumers resolve it on demand instead of receiving
// an embedded object graph.
type SubjectRef struct {
	Type string
	ID   string
}

// Notification is the uniform envelope around any cross-feature event.
// It is always persisted, whatever the recipient's online status, so a
// later pull sees the complete list.
type Notification struct {
	ID          uuid.UUID
	RecipientID string
	SenderID    string
	Kind        NotificationKind
	Subject     SubjectRef
	CreatedAt   time.Time
	ReadAt      *time.Time
}

func NewNotification(recipientID, senderID string, kind NotificationKind, subject SubjectRef, now time.Time) Notification {
	return Notification{
		ID:          uuid.New(),
		RecipientID: recipientID,
		SenderID:    senderID,
		Kind:        kind,
		Subject:     subject,
		CreatedAt:   now,
	}
}

package domain

import (
	"time"

	"github.com/google/uuid"
)

type DeliveryState string

const (
	DeliverySent    DeliveryState = "sent"
	DeliveryPartial DeliveryState = "delivered-partial"
	DeliveryAll     DeliveryState = "delivered-all"
)

// Message is immutable once created except for its delivery state.
// "Clear conversation" is a per-user visibility cutoff, never a delete.
type Message struct {
	ID            uuid.UUID
	ChatID        ChatID
	SenderID      string
	Body          string
	CreatedAt     time.Time
	DeliveryState DeliveryState
}

// DeliveryStateFor derives the state from the first fan-out attempt:
// every live recipient connection reached means delivered-all, some reached
// means delivered-partial, none stays at sent.
func DeliveryStateFor(reached, liveConnections int) DeliveryState {
	switch {
	case liveConnections == 0 || reached == 0:
		return DeliverySent
	case reached < liveConnections:
		return DeliveryPartial
	default:
		return DeliveryAll
	}
}

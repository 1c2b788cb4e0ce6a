//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"
	"time"

	"github.com/google/uuid"

	"market-live/domain"
	"market-live/domain/event"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// EventSink is one live connection's inbox. A sink that cannot accept an
// event returns an error; the caller logs and skips, it never retries inline.
type EventSink interface {
	Consume(ctx context.Context, e event.DomainEvent) error
}

// IRegistry is the session registry: which connections belong to which
// user, and which chats each connection has joined.
type IRegistry interface {
	Register(userID string, sink EventSink) uuid.UUID
	Deregister(connectionID uuid.UUID)
	ConnectionsFor(userID string) []EventSink
	JoinChat(connectionID uuid.UUID, chatID domain.ChatID)
	LeaveChat(connectionID uuid.UUID, chatID domain.ChatID)
	SetFocus(connectionID uuid.UUID, chatID *domain.ChatID)
	IsViewing(userID string, chatID domain.ChatID) bool
	Heartbeat(connectionID uuid.UUID)
	ReapIdle(olderThan time.Duration) int
}

// IDispatcher converts domain events into uniform notifications: pushed to
// every live connection of the recipient and always persisted for the pull
// path. Producers fire and forget.
type IDispatcher interface {
	Dispatch(ctx context.Context, n domain.Notification) error
}

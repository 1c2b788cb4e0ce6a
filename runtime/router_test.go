package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"market-live/domain"
	"market-live/domain/event"
	apperrors "market-live/errors"
	"market-live/mocks"
	"market-live/observability"
	"market-live/repositories"
)

type routerFixture struct {
	router     *Router
	registry   *Registry
	chats      repositories.ChatRepository
	counters   repositories.CounterRepository
	dispatcher *mocks.MockIDispatcher
}

func newRouterFixture(t *testing.T, ctrl *gomock.Controller) routerFixture {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	log := slog.Default()
	registry := NewRegistry()
	chats := repositories.NewChatRepository(db, log)
	messages := repositories.NewMessageRepository(db, log, nil)
	counters := repositories.NewCounterRepository(db)
	dispatcher := mocks.NewMockIDispatcher(ctrl)

	router := NewRouter(log, registry, chats, messages, counters,
		dispatcher, nil, observability.NewMonitoringManager(log))

	return routerFixture{
		router:     router,
		registry:   registry,
		chats:      chats,
		counters:   counters,
		dispatcher: dispatcher,
	}
}

func Test_Send_Rejects_Non_Participant(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	fx := newRouterFixture(t, ctrl)

	chat, _, err := fx.chats.CreateDirect("alice", "bob", time.Now().UTC())
	req.NoError(err)

	_, err = fx.router.Send(context.Background(), domain.PostMessageCommand{
		ChatID:    chat.ID,
		SenderID:  "mallory",
		Body:      "hi",
		CreatedAt: time.Now().UTC(),
	})
	req.ErrorIs(err, apperrors.ErrNotParticipant)

	// Nothing persisted, nothing counted
	unread, err := fx.counters.GetUnread(chat.ID, "bob")
	req.NoError(err)
	req.Equal(0, unread)
}

func Test_Send_Rejects_Invalid_Body(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	fx := newRouterFixture(t, ctrl)

	chat, _, err := fx.chats.CreateDirect("alice", "bob", time.Now().UTC())
	req.NoError(err)

	// An empty body never reaches persistence
	_, err = fx.router.Send(context.Background(), domain.PostMessageCommand{
		ChatID: chat.ID, SenderID: "alice", Body: "", CreatedAt: time.Now().UTC(),
	})
	req.ErrorIs(err, apperrors.ErrInvalidMessage)

	// Neither does one past the 4000 rune cap
	_, err = fx.router.Send(context.Background(), domain.PostMessageCommand{
		ChatID:    chat.ID,
		SenderID:  "alice",
		Body:      strings.Repeat("é", 4001),
		CreatedAt: time.Now().UTC(),
	})
	req.ErrorIs(err, apperrors.ErrInvalidMessage)

	unread, err := fx.counters.GetUnread(chat.ID, "bob")
	req.NoError(err)
	req.Equal(0, unread)
}

func Test_Direct_Pair_Can_Message_Again_After_Leave(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	fx := newRouterFixture(t, ctrl)

	chat, _, err := fx.chats.CreateDirect("alice", "bob", time.Now().UTC())
	req.NoError(err)

	// Given Bob left the direct chat
	req.NoError(fx.router.Leave(context.Background(), domain.LeaveCommand{
		ChatID: chat.ID, UserID: "bob",
	}))

	// When Bob opens a direct chat with Alice again
	reopened, created, err := fx.chats.CreateDirect("bob", "alice", time.Now().UTC())
	req.NoError(err)
	req.False(created)
	req.Equal(chat.ID, reopened.ID)

	// Then he can send again, and Alice accrues from zero
	fx.dispatcher.EXPECT().Dispatch(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	_, err = fx.router.Send(context.Background(), domain.PostMessageCommand{
		ChatID: chat.ID, SenderID: "bob", Body: "I'm back", CreatedAt: time.Now().UTC(),
	})
	req.NoError(err)

	aliceUnread, err := fx.counters.GetUnread(chat.ID, "alice")
	req.NoError(err)
	req.Equal(1, aliceUnread)

	bobUnread, err := fx.counters.GetUnread(chat.ID, "bob")
	req.NoError(err)
	req.Equal(0, bobUnread)
}

func Test_Send_Fans_Out_And_Counts_Offline_Recipient(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	fx := newRouterFixture(t, ctrl)

	chat, _, err := fx.chats.CreateDirect("alice", "bob", time.Now().UTC())
	req.NoError(err)

	// Given Alice is online on two tabs, Bob offline
	var delivered []event.DomainEvent
	var mu sync.Mutex
	sink := mocks.NewMockEventSink(ctrl)
	sink.EXPECT().Consume(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, e event.DomainEvent) error {
			mu.Lock()
			defer mu.Unlock()
			delivered = append(delivered, e)
			return nil
		}).AnyTimes()
	fx.registry.Register("alice", sink)
	fx.registry.Register("alice", sink)

	// Bob is offline, so a notification must be dispatched for him
	fx.dispatcher.EXPECT().
		Dispatch(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, n domain.Notification) error {
			req.Equal("bob", n.RecipientID)
			req.Equal(domain.KindMessage, n.Kind)
			return nil
		}).Times(1)

	message, err := fx.router.Send(context.Background(), domain.PostMessageCommand{
		ChatID:    chat.ID,
		SenderID:  "alice",
		Body:      "are you there?",
		CreatedAt: time.Now().UTC(),
	})
	req.NoError(err)

	// Both of Alice's tabs saw the message
	mu.Lock()
	req.Len(delivered, 2)
	mu.Unlock()

	// No live recipient connection was reached, so the state stays sent
	req.Equal(domain.DeliverySent, message.DeliveryState)

	unread, err := fx.counters.GetUnread(chat.ID, "bob")
	req.NoError(err)
	req.Equal(1, unread)
}

func Test_Send_Skips_Notification_When_Viewing(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	fx := newRouterFixture(t, ctrl)

	chat, _, err := fx.chats.CreateDirect("alice", "bob", time.Now().UTC())
	req.NoError(err)

	sink := mocks.NewMockEventSink(ctrl)
	sink.EXPECT().Consume(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	connID := fx.registry.Register("bob", sink)
	fx.registry.SetFocus(connID, &chat.ID)

	// Bob is viewing the chat: fan-out yes, notification no
	fx.dispatcher.EXPECT().Dispatch(gomock.Any(), gomock.Any()).Times(0)

	message, err := fx.router.Send(context.Background(), domain.PostMessageCommand{
		ChatID:    chat.ID,
		SenderID:  "alice",
		Body:      "seen this?",
		CreatedAt: time.Now().UTC(),
	})
	req.NoError(err)
	req.Equal(domain.DeliveryAll, message.DeliveryState)
}

func Test_Concurrent_Senders_Never_Lose_Counts(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	fx := newRouterFixture(t, ctrl)

	now := time.Now().UTC()
	chat := domain.NewGroup("alice", []string{"bob", "clara"}, "deals", now)
	req.NoError(fx.chats.CreateGroup(chat))

	fx.dispatcher.EXPECT().Dispatch(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()

	// When 10 goroutines each send 5 messages as Alice and Bob alternately
	const goroutines = 10
	const perGoroutine = 5
	var wg sync.WaitGroup
	senders := []string{"alice", "bob"}
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			sender := senders[g%len(senders)]
			for i := 0; i < perGoroutine; i++ {
				_, err := fx.router.Send(context.Background(), domain.PostMessageCommand{
					ChatID:    chat.ID,
					SenderID:  sender,
					Body:      fmt.Sprintf("from %s #%d", sender, i),
					CreatedAt: time.Now().UTC(),
				})
				if err != nil {
					t.Error(err)
				}
			}
		}(g)
	}
	wg.Wait()

	// Then Clara, who never read nor wrote, owns exactly every message
	unread, err := fx.counters.GetUnread(chat.ID, "clara")
	req.NoError(err)
	req.Equal(goroutines*perGoroutine, unread)

	// Alice and Bob each end at the count accrued after their own last send,
	// never above what the other sent
	aliceUnread, err := fx.counters.GetUnread(chat.ID, "alice")
	req.NoError(err)
	req.LessOrEqual(aliceUnread, goroutines/2*perGoroutine)
}

func Test_MarkRead_Resets_And_Acknowledges(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	fx := newRouterFixture(t, ctrl)

	chat, _, err := fx.chats.CreateDirect("alice", "bob", time.Now().UTC())
	req.NoError(err)

	fx.dispatcher.EXPECT().Dispatch(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	_, err = fx.router.Send(context.Background(), domain.PostMessageCommand{
		ChatID: chat.ID, SenderID: "alice", Body: "ping", CreatedAt: time.Now().UTC(),
	})
	req.NoError(err)

	// Given Bob is connected on another tab that must observe the ack
	acks := 0
	sink := mocks.NewMockEventSink(ctrl)
	sink.EXPECT().Consume(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, e event.DomainEvent) error {
			if _, ok := e.(event.ReadAcknowledged); ok {
				acks++
			}
			return nil
		}).AnyTimes()
	fx.registry.Register("bob", sink)

	req.NoError(fx.router.MarkRead(context.Background(), domain.MarkReadCommand{
		ChatID: chat.ID, UserID: "bob",
	}))

	unread, err := fx.counters.GetUnread(chat.ID, "bob")
	req.NoError(err)
	req.Equal(0, unread)
	req.Equal(1, acks)
}

func Test_Removed_Participant_Stops_Accruing(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	fx := newRouterFixture(t, ctrl)

	now := time.Now().UTC()
	chat := domain.NewGroup("alice", []string{"bob", "clara"}, "deals", now)
	req.NoError(fx.chats.CreateGroup(chat))

	fx.dispatcher.EXPECT().Dispatch(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()

	// When Alice removes Clara and then sends
	req.NoError(fx.router.RemoveParticipant(context.Background(), domain.RemoveParticipantCommand{
		ChatID: chat.ID, ActorID: "alice", UserID: "clara",
	}))
	_, err := fx.router.Send(context.Background(), domain.PostMessageCommand{
		ChatID: chat.ID, SenderID: "alice", Body: "clara left", CreatedAt: time.Now().UTC(),
	})
	req.NoError(err)

	// Then Clara can neither read nor accrue
	_, _, err = fx.router.History(domain.GetMessagesCommand{ChatID: chat.ID, UserID: "clara"})
	req.ErrorIs(err, apperrors.ErrNotParticipant)

	counts, err := fx.counters.UnreadForChat(chat.ID)
	req.NoError(err)
	_, exists := counts["clara"]
	req.False(exists)
	req.Equal(1, counts["bob"])
}

func Test_Permissions_For_Group_Management(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	fx := newRouterFixture(t, ctrl)

	now := time.Now().UTC()
	chat := domain.NewGroup("alice", []string{"bob"}, "deals", now)
	req.NoError(fx.chats.CreateGroup(chat))

	ctx := context.Background()

	// A plain member cannot add or remove others, nor rename
	err := fx.router.AddParticipant(ctx, domain.AddParticipantCommand{
		ChatID: chat.ID, ActorID: "bob", UserID: "clara",
	})
	req.ErrorIs(err, apperrors.ErrPermissionDenied)

	err = fx.router.RemoveParticipant(ctx, domain.RemoveParticipantCommand{
		ChatID: chat.ID, ActorID: "bob", UserID: "alice",
	})
	req.ErrorIs(err, apperrors.ErrPermissionDenied)

	err = fx.router.Rename(domain.RenameCommand{ChatID: chat.ID, ActorID: "bob", Name: "bob's deals"})
	req.ErrorIs(err, apperrors.ErrPermissionDenied)

	// But anyone may leave
	req.NoError(fx.router.Leave(ctx, domain.LeaveCommand{ChatID: chat.ID, UserID: "bob"}))

	// The admin can do all three
	req.NoError(fx.router.AddParticipant(ctx, domain.AddParticipantCommand{
		ChatID: chat.ID, ActorID: "alice", UserID: "clara",
	}))
	req.NoError(fx.router.Rename(domain.RenameCommand{ChatID: chat.ID, ActorID: "alice", Name: "fresh deals"}))

	updated, err := fx.chats.Get(chat.ID)
	req.NoError(err)
	req.Equal("fresh deals", updated.Name)
	req.True(updated.IsActiveParticipant("clara"))
	req.False(updated.IsActiveParticipant("bob"))
}

func Test_ClearHistory_Hides_Only_For_Caller(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	fx := newRouterFixture(t, ctrl)

	chat, _, err := fx.chats.CreateDirect("alice", "bob", time.Now().UTC())
	req.NoError(err)

	fx.dispatcher.EXPECT().Dispatch(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	_, err = fx.router.Send(context.Background(), domain.PostMessageCommand{
		ChatID: chat.ID, SenderID: "alice", Body: "before the clear", CreatedAt: time.Now().UTC(),
	})
	req.NoError(err)

	req.NoError(fx.router.ClearHistory(chat.ID, "bob"))

	bobView, _, err := fx.router.History(domain.GetMessagesCommand{ChatID: chat.ID, UserID: "bob"})
	req.NoError(err)
	req.Empty(bobView)

	aliceView, _, err := fx.router.History(domain.GetMessagesCommand{ChatID: chat.ID, UserID: "alice"})
	req.NoError(err)
	req.Len(aliceView, 1)
}

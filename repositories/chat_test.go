package repositories

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"market-live/domain"
	apperrors "market-live/errors"
)

func Test_CreateDirect_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)
	chats := NewChatRepository(db, slog.Default())

	now := time.Now().UTC()
	first, created, err := chats.CreateDirect("alice", "bob", now)
	req.NoError(err)
	req.True(created)

	// When the same pair asks again, in either order
	second, created, err := chats.CreateDirect("bob", "alice", now)
	req.NoError(err)
	req.False(created)
	req.Equal(first.ID, second.ID)
}

func Test_CreateDirect_Reopens_Soft_Closed_Chat(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)
	chats := NewChatRepository(db, slog.Default())
	counters := NewCounterRepository(db)

	now := time.Now().UTC()
	chat, _, err := chats.CreateDirect("alice", "bob", now)
	req.NoError(err)

	// Given Bob left, so the chat is one-sided-inactive
	req.True(chat.Deactivate("bob", now))
	req.NoError(chats.UpdateParticipants(chat, nil, []string{"bob"}, now))

	// When Bob messages Alice again
	later := now.Add(time.Hour)
	reopened, created, err := chats.CreateDirect("bob", "alice", later)
	req.NoError(err)

	// Then the same chat comes back with Bob active again
	req.False(created)
	req.Equal(chat.ID, reopened.ID)
	req.True(reopened.IsActiveParticipant("bob"))

	// His membership row carries a fresh JoinedAt, no LeftAt
	for _, p := range reopened.Participants {
		if p.UserID == "bob" {
			req.True(p.JoinedAt.Equal(later))
			req.Nil(p.LeftAt)
		}
	}

	// And he rejoins at zero, with his chat list restored
	unread, err := counters.GetUnread(chat.ID, "bob")
	req.NoError(err)
	req.Equal(0, unread)

	bobChats, err := chats.ListForUser("bob")
	req.NoError(err)
	req.Len(bobChats, 1)
}

func Test_ListForUser_Resolves_Membership(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)
	chats := NewChatRepository(db, slog.Default())

	now := time.Now().UTC()
	_, _, err := chats.CreateDirect("alice", "bob", now)
	req.NoError(err)
	req.NoError(chats.CreateGroup(domain.NewGroup("alice", []string{"clara"}, "deals", now)))

	aliceChats, err := chats.ListForUser("alice")
	req.NoError(err)
	req.Len(aliceChats, 2)

	bobChats, err := chats.ListForUser("bob")
	req.NoError(err)
	req.Len(bobChats, 1)
}

func Test_UpdateParticipants_Reconciles_Index(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)
	chats := NewChatRepository(db, slog.Default())
	counters := NewCounterRepository(db)

	now := time.Now().UTC()
	chat := domain.NewGroup("alice", []string{"bob"}, "deals", now)
	req.NoError(chats.CreateGroup(chat))

	// When Clara joins
	chat.Add("clara", now)
	req.NoError(chats.UpdateParticipants(chat, []string{"clara"}, nil, now))

	claraChats, err := chats.ListForUser("clara")
	req.NoError(err)
	req.Len(claraChats, 1)

	// A joiner starts at zero, whatever happened before
	unread, err := counters.GetUnread(chat.ID, "clara")
	req.NoError(err)
	req.Equal(0, unread)

	// When Bob is removed, his index entry and counter disappear
	req.True(chat.Deactivate("bob", now))
	req.NoError(chats.UpdateParticipants(chat, nil, []string{"bob"}, now))

	bobChats, err := chats.ListForUser("bob")
	req.NoError(err)
	req.Empty(bobChats)

	err = counters.Reset(chat.ID, "bob")
	req.ErrorIs(err, apperrors.ErrNotFound)
}

func Test_Get_Unknown_Chat(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)
	chats := NewChatRepository(db, slog.Default())

	_, err := chats.Get(domain.ChatID{})
	req.ErrorIs(err, apperrors.ErrNotFound)
}

package repositories

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"market-live/domain"
)

func Test_GetTotal_Sums_Across_Chats(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)

	chats := NewChatRepository(db, slog.Default())
	messages := NewMessageRepository(db, slog.Default(), nil)
	counters := NewCounterRepository(db)

	now := time.Now().UTC()
	direct, _, err := chats.CreateDirect("alice", "bob", now)
	req.NoError(err)
	group := domain.NewGroup("clara", []string{"bob", "alice"}, "deals", now)
	req.NoError(chats.CreateGroup(group))

	// Given Bob accrued unread messages in both chats
	req.NoError(messages.Append(newMessage(direct.ID, "alice", "one", now), []string{"bob"}))
	req.NoError(messages.Append(newMessage(group.ID, "clara", "two", now), []string{"bob", "alice"}))
	req.NoError(messages.Append(newMessage(group.ID, "clara", "three", now.Add(time.Second)), []string{"bob", "alice"}))

	total, err := counters.GetTotal("bob")
	req.NoError(err)
	req.Equal(3, total)

	// When one chat is read, only that chat's share disappears
	req.NoError(counters.Reset(group.ID, "bob"))

	total, err = counters.GetTotal("bob")
	req.NoError(err)
	req.Equal(1, total)
}

func Test_Reset_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)

	chats := NewChatRepository(db, slog.Default())
	counters := NewCounterRepository(db)

	chat, _, err := chats.CreateDirect("alice", "bob", time.Now().UTC())
	req.NoError(err)

	req.NoError(counters.Reset(chat.ID, "bob"))
	req.NoError(counters.Reset(chat.ID, "bob"))
}

func Test_Clear_Cutoff_Roundtrip(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)
	counters := NewCounterRepository(db)

	chatID := domain.ChatID{}
	// No cutoff recorded yet means the zero time, everything visible
	cutoff, err := counters.GetClearCutoff(chatID, "alice")
	req.NoError(err)
	req.True(cutoff.IsZero())

	at := time.Now().UTC().Truncate(time.Nanosecond)
	req.NoError(counters.SetClearCutoff(chatID, "alice", at))

	cutoff, err = counters.GetClearCutoff(chatID, "alice")
	req.NoError(err)
	req.Equal(at.UnixNano(), cutoff.UnixNano())
}

package repositories

import (
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"market-live/domain"
)

func openTestDB(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newMessage(chatID domain.ChatID, senderID, body string, at time.Time) domain.Message {
	return domain.Message{
		ID:            uuid.New(),
		ChatID:        chatID,
		SenderID:      senderID,
		Body:          body,
		CreatedAt:     at,
		DeliveryState: domain.DeliverySent,
	}
}

func Test_Append_Moves_Counters_Atomically(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)

	chats := NewChatRepository(db, slog.Default())
	messages := NewMessageRepository(db, slog.Default(), nil)
	counters := NewCounterRepository(db)

	// Given a direct chat between Alice and Bob
	chat, created, err := chats.CreateDirect("alice", "bob", time.Now().UTC())
	req.NoError(err)
	req.True(created)

	// When Alice sends two messages
	at := time.Now().UTC()
	req.NoError(messages.Append(newMessage(chat.ID, "alice", "hi", at), []string{"bob"}))
	req.NoError(messages.Append(newMessage(chat.ID, "alice", "still there?", at.Add(time.Second)), []string{"bob"}))

	// Then Bob's counter reflects both, and Alice's stays at zero
	bobUnread, err := counters.GetUnread(chat.ID, "bob")
	req.NoError(err)
	req.Equal(2, bobUnread)

	aliceUnread, err := counters.GetUnread(chat.ID, "alice")
	req.NoError(err)
	req.Equal(0, aliceUnread)
}

func Test_Append_Skips_Removed_Recipient(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)

	chats := NewChatRepository(db, slog.Default())
	messages := NewMessageRepository(db, slog.Default(), nil)
	counters := NewCounterRepository(db)

	now := time.Now().UTC()
	chat := domain.NewGroup("alice", []string{"bob", "clara"}, "deals", now)
	req.NoError(chats.CreateGroup(chat))

	// Given Clara was removed, so her unread entry is gone
	req.True(chat.Deactivate("clara", now))
	req.NoError(chats.UpdateParticipants(chat, nil, []string{"clara"}, now))

	// When a message still lists her as recipient (stale snapshot)
	req.NoError(messages.Append(newMessage(chat.ID, "alice", "gone?", now), []string{"bob", "clara"}))

	// Then her entry is not resurrected
	counts, err := counters.UnreadForChat(chat.ID)
	req.NoError(err)
	req.Equal(1, counts["bob"])
	_, exists := counts["clara"]
	req.False(exists)
}

func Test_GetMessages_Sorted_And_Paginated(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)

	limit := 2
	messages := NewMessageRepository(db, slog.Default(), &limit)
	chatID := uuid.New()

	at := time.Now().UTC()
	for i := 0; i < 5; i++ {
		m := newMessage(chatID, "alice", fmt.Sprintf("message %d", i), at.Add(time.Duration(i)*time.Minute))
		req.NoError(messages.Append(m, nil))
	}

	// When fetching the first page
	page, cursor, err := messages.GetMessages(chatID, nil, time.Time{})
	req.NoError(err)

	// Then the newest messages come first, bounded by the limit
	req.Len(page, limit)
	req.Equal("message 4", page[0].Body)
	req.Equal("message 3", page[1].Body)
	req.NotNil(cursor)

	// And the next page continues where the cursor left off
	page, cursor, err = messages.GetMessages(chatID, cursor, time.Time{})
	req.NoError(err)
	req.Len(page, limit)
	req.Equal("message 2", page[0].Body)
	req.Equal("message 1", page[1].Body)

	// The last partial page still carries a cursor
	page, cursor, err = messages.GetMessages(chatID, cursor, time.Time{})
	req.NoError(err)
	req.Len(page, 1)
	req.Equal("message 0", page[0].Body)
	req.NotNil(cursor)

	// One step past the oldest message the cursor goes nil: done
	page, cursor, err = messages.GetMessages(chatID, cursor, time.Time{})
	req.NoError(err)
	req.Empty(page)
	req.Nil(cursor)
}

func Test_GetMessages_Empty_Chat_Has_No_Cursor(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)

	messages := NewMessageRepository(db, slog.Default(), nil)

	page, cursor, err := messages.GetMessages(uuid.New(), nil, time.Time{})
	req.NoError(err)
	req.Empty(page)
	req.Nil(cursor)
}

func Test_GetMessages_Honours_Clear_Cutoff(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)

	messages := NewMessageRepository(db, slog.Default(), nil)
	chatID := uuid.New()

	at := time.Now().UTC()
	req.NoError(messages.Append(newMessage(chatID, "alice", "old", at), nil))
	req.NoError(messages.Append(newMessage(chatID, "alice", "new", at.Add(time.Hour)), nil))

	// When reading with a cutoff between the two messages
	page, _, err := messages.GetMessages(chatID, nil, at.Add(30*time.Minute))
	req.NoError(err)

	// Then only the newer message is visible
	req.Len(page, 1)
	req.Equal("new", page[0].Body)
}

func Test_SetDeliveryState_Rewrites_Record(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)

	messages := NewMessageRepository(db, slog.Default(), nil)
	chatID := uuid.New()

	m := newMessage(chatID, "alice", "ping", time.Now().UTC())
	req.NoError(messages.Append(m, nil))
	req.NoError(messages.SetDeliveryState(m, domain.DeliveryAll))

	page, _, err := messages.GetMessages(chatID, nil, time.Time{})
	req.NoError(err)
	req.Len(page, 1)
	req.Equal(domain.DeliveryAll, page[0].DeliveryState)
}

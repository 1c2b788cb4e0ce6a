//go:generate go run go.uber.org/mock/mockgen -source=chat.go -destination=../mocks/mock_chat_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"market-live/domain"
	apperrors "market-live/errors"
)

type IChatRepository interface {
	CreateDirect(userA, userB string, now time.Time) (domain.Chat, bool, error)
	CreateGroup(chat domain.Chat) error
	Get(chatID domain.ChatID) (domain.Chat, error)
	Save(chat domain.Chat) error
	UpdateParticipants(chat domain.Chat, added, removed []string, now time.Time) error
	ListForUser(userID string) ([]domain.Chat, error)
}

type ChatRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewChatRepository(db *badger.DB, log *slog.Logger) ChatRepository {
	return ChatRepository{db: db, log: log}
}

type participantRecord struct {
	UserID   string     `json:"user_id"`
	Role     string     `json:"role"`
	IsActive bool       `json:"is_active"`
	JoinedAt time.Time  `json:"joined_at"`
	LeftAt   *time.Time `json:"left_at,omitempty"`
}

type chatRecord struct {
	ID            string              `json:"id"`
	Type          string              `json:"type"`
	Name          string              `json:"name,omitempty"`
	Participants  []participantRecord `json:"participants"`
	CreatedAt     time.Time           `json:"created_at"`
	LastMessageAt time.Time           `json:"last_message_at"`
}

// CreateDirect returns the existing chat when the same pair already shares
// a direct chat, instead of creating a duplicate. A soft-closed chat is
// reopened: whichever side had left rejoins with a fresh JoinedAt and a
// zero counter, so the pair can always message again. The boolean reports
// whether a new chat was created.
func (r ChatRepository) CreateDirect(userA, userB string, now time.Time) (domain.Chat, bool, error) {
	var chat domain.Chat
	created := false

	err := r.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(directKey(userA, userB))
		if err == nil {
			var existingID []byte
			if existingID, err = item.ValueCopy(nil); err != nil {
				return err
			}
			chatID, err := uuid.Parse(string(existingID))
			if err != nil {
				return err
			}
			if chat, err = getChat(txn, chatID); err != nil {
				return err
			}
			return reviveDirect(txn, &chat, userA, userB, now)
		}
		if err != badger.ErrKeyNotFound {
			return err
		}

		chat = domain.NewDirect(userA, userB, now)
		created = true
		if err = putChat(txn, chat); err != nil {
			return err
		}
		if err = txn.Set(directKey(userA, userB), []byte(chat.ID.String())); err != nil {
			return err
		}
		return initialiseMembership(txn, chat.ID, chat.ActiveParticipantIDs())
	})

	return chat, created, err
}

// reviveDirect reactivates whichever side of the pair had left. The
// rejoining user gets back a membership entry and a zero counter; messages
// sent during their absence are never retroactively counted.
func reviveDirect(txn *badger.Txn, chat *domain.Chat, userA, userB string, now time.Time) error {
	var revived []string
	for _, userID := range []string{userA, userB} {
		if chat.Reactivate(userID, now) {
			revived = append(revived, userID)
		}
	}
	if len(revived) == 0 {
		return nil
	}
	if err := putChat(txn, *chat); err != nil {
		return err
	}
	return initialiseMembership(txn, chat.ID, revived)
}

// CreateGroup persists the chat record plus the membership index and a zero
// unread entry for every active participant, all in one transaction.
func (r ChatRepository) CreateGroup(chat domain.Chat) error {
	return r.db.Update(func(txn *badger.Txn) error {
		if err := putChat(txn, chat); err != nil {
			return err
		}
		return initialiseMembership(txn, chat.ID, chat.ActiveParticipantIDs())
	})
}

func (r ChatRepository) Get(chatID domain.ChatID) (domain.Chat, error) {
	var chat domain.Chat
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		chat, err = getChat(txn, chatID)
		return err
	})
	return chat, err
}

func (r ChatRepository) Save(chat domain.Chat) error {
	return r.db.Update(func(txn *badger.Txn) error {
		return putChat(txn, chat)
	})
}

// UpdateParticipants stores the mutated chat record and reconciles the
// per-user index keys: added users gain a membership entry and a zero
// counter (back-dated messages are never counted), removed users lose both.
func (r ChatRepository) UpdateParticipants(chat domain.Chat, added, removed []string, now time.Time) error {
	return r.db.Update(func(txn *badger.Txn) error {
		if err := putChat(txn, chat); err != nil {
			return err
		}
		for _, userID := range added {
			if err := txn.Set(memberKey(userID, chat.ID), nil); err != nil {
				return err
			}
			if err := txn.Set(unreadKey(chat.ID, userID), []byte("0")); err != nil {
				return err
			}
		}
		for _, userID := range removed {
			if err := txn.Delete(memberKey(userID, chat.ID)); err != nil {
				return err
			}
			if err := txn.Delete(unreadKey(chat.ID, userID)); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListForUser resolves the membership index into full chat records.
func (r ChatRepository) ListForUser(userID string) ([]domain.Chat, error) {
	var chatIDs []domain.ChatID

	err := r.db.View(func(txn *badger.Txn) error {
		prefix := memberPrefix(userID)
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			raw := string(it.Item().Key()[len(prefix):])
			chatID, err := uuid.Parse(raw)
			if err != nil {
				r.log.Warn("Skipping malformed membership key", "key", string(it.Item().Key()))
				continue
			}
			chatIDs = append(chatIDs, chatID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var chats []domain.Chat
	for _, chatID := range chatIDs {
		chat, err := r.Get(chatID)
		if err != nil {
			return nil, err
		}
		chats = append(chats, chat)
	}
	return chats, nil
}

func getChat(txn *badger.Txn, chatID domain.ChatID) (domain.Chat, error) {
	item, err := txn.Get(chatKey(chatID))
	if err == badger.ErrKeyNotFound {
		return domain.Chat{}, fmt.Errorf("%w: chat %s", apperrors.ErrNotFound, chatID)
	}
	if err != nil {
		return domain.Chat{}, err
	}

	var record chatRecord
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &record)
	})
	if err != nil {
		return domain.Chat{}, err
	}
	return toChat(record)
}

func putChat(txn *badger.Txn, chat domain.Chat) error {
	data, err := json.Marshal(fromChat(chat))
	if err != nil {
		return fmt.Errorf("marshal failed: %w", err)
	}
	return txn.Set(chatKey(chat.ID), data)
}

func initialiseMembership(txn *badger.Txn, chatID domain.ChatID, userIDs []string) error {
	for _, userID := range userIDs {
		if err := txn.Set(memberKey(userID, chatID), nil); err != nil {
			return err
		}
		if err := txn.Set(unreadKey(chatID, userID), []byte("0")); err != nil {
			return err
		}
	}
	return nil
}

func fromChat(chat domain.Chat) chatRecord {
	return chatRecord{
		ID:            chat.ID.String(),
		Type:          string(chat.Type),
		Name:          chat.Name,
		CreatedAt:     chat.CreatedAt,
		LastMessageAt: chat.LastMessageAt,
		Participants: lo.Map(chat.Participants, func(p domain.Participant, _ int) participantRecord {
			return participantRecord{
				UserID:   p.UserID,
				Role:     string(p.Role),
				IsActive: p.IsActive,
				JoinedAt: p.JoinedAt,
				LeftAt:   p.LeftAt,
			}
		}),
	}
}

func toChat(record chatRecord) (domain.Chat, error) {
	chatID, err := uuid.Parse(record.ID)
	if err != nil {
		return domain.Chat{}, err
	}
	return domain.Chat{
		ID:            chatID,
		Type:          domain.ChatType(record.Type),
		Name:          record.Name,
		CreatedAt:     record.CreatedAt,
		LastMessageAt: record.LastMessageAt,
		Participants: lo.Map(record.Participants, func(p participantRecord, _ int) domain.Participant {
			return domain.Participant{
				UserID:   p.UserID,
				Role:     domain.Role(p.Role),
				IsActive: p.IsActive,
				JoinedAt: p.JoinedAt,
				LeftAt:   p.LeftAt,
			}
		}),
	}, nil
}

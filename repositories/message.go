//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"market-live/domain"
)

type IMessageRepository interface {
	Append(message domain.Message, recipients []string) error
	GetMessages(chatID domain.ChatID, cursor *string, notBefore time.Time) ([]domain.Message, *string, error)
	SetDeliveryState(message domain.Message, state domain.DeliveryState) error
}

type MessageRepository struct {
	db            *badger.DB
	log           *slog.Logger
	limitMessages *int
}

func NewMessageRepository(db *badger.DB, log *slog.Logger, limitMessages *int) MessageRepository {
	return MessageRepository{db: db, log: log, limitMessages: limitMessages}
}

type messageRecord struct {
	ID            string `json:"id"`
	ChatID        string `json:"chat_id"`
	SenderID      string `json:"sender_id"`
	Body          string `json:"body"`
	CreatedAt     int64  `json:"created_at"` // unix nano
	DeliveryState string `json:"delivery_state"`
}

// Append persists the message and moves every unread counter in the same
// transaction: each recipient gains +1, the sender drops to 0. Either the
// message and all counter moves commit together or none of them do, so a
// persistence failure can never leave counters pointing at a message that
// does not exist.
func (m MessageRepository) Append(message domain.Message, recipients []string) error {
	data, err := json.Marshal(fromMessage(message))
	if err != nil {
		return fmt.Errorf("marshal failed: %w", err)
	}

	return m.db.Update(func(txn *badger.Txn) error {
		key := messageKey(message.ChatID, message.CreatedAt, message.ID)
		if err := txn.Set(key, data); err != nil {
			return err
		}
		for _, userID := range recipients {
			if err := incrementCounter(txn, unreadKey(message.ChatID, userID)); err != nil {
				return err
			}
		}
		// A user who just spoke has implicitly read their own chat.
		return txn.Set(unreadKey(message.ChatID, message.SenderID), []byte("0"))
	})
}

// GetMessages walks the chat's history newest-first using a reverse prefix
// scan. The padded timestamp in the key keeps messages naturally sorted,
// the cursor is the key suffix of the last returned message, and notBefore
// implements the caller's per-user "clear conversation" cutoff. A nil
// returned cursor means the history is exhausted.
func (m MessageRepository) GetMessages(chatID domain.ChatID, cursor *string, notBefore time.Time) ([]domain.Message, *string, error) {
	var rawValues [][]byte
	var lastKey string

	err := m.db.View(func(txn *badger.Txn) error {
		prefix := messagePrefix(chatID)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		var seekKey []byte
		switch cursor {
		case nil:
			// Seek past any possible timestamp, then walk back in time.
			seekKey = append(append([]byte{}, prefix...), []byte("9999999999999999999")...)
		default:
			seekKey = append(append([]byte{}, prefix...), []byte(*cursor)...)
		}

		it.Seek(seekKey)
		if cursor != nil && it.ValidForPrefix(prefix) {
			it.Next()
		}

		for ; it.ValidForPrefix(prefix); it.Next() {
			if m.limitMessages != nil && len(rawValues) == *m.limitMessages {
				m.log.Debug(fmt.Sprintf("Maximum of %d messages reached", *m.limitMessages))
				break
			}
			item := it.Item()
			lastKey = string(item.Key()[len(prefix):])
			err := item.Value(func(value []byte) error {
				rawValues = append(rawValues, append([]byte{}, value...))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	var messages []domain.Message
	for _, raw := range rawValues {
		var record messageRecord
		if err = json.Unmarshal(raw, &record); err != nil {
			return nil, nil, err
		}
		message, err := toMessage(record)
		if err != nil {
			return nil, nil, err
		}
		if message.CreatedAt.Before(notBefore) {
			continue
		}
		messages = append(messages, message)
	}
	if lastKey == "" {
		return messages, nil, nil
	}
	return messages, &lastKey, nil
}

// SetDeliveryState rewrites the record in place. The key is fully
// deterministic from the message itself, no lookup scan needed.
func (m MessageRepository) SetDeliveryState(message domain.Message, state domain.DeliveryState) error {
	message.DeliveryState = state
	data, err := json.Marshal(fromMessage(message))
	if err != nil {
		return err
	}
	return m.db.Update(func(txn *badger.Txn) error {
		return txn.Set(messageKey(message.ChatID, message.CreatedAt, message.ID), data)
	})
}

// incrementCounter is a read-modify-write inside a serializable badger
// transaction; concurrent increments conflict and retry at the router's
// per-chat lock, never silently losing a count.
func incrementCounter(txn *badger.Txn, key []byte) error {
	count := 0
	item, err := txn.Get(key)
	switch err {
	case nil:
		err = item.Value(func(val []byte) error {
			count, err = strconv.Atoi(string(val))
			return err
		})
		if err != nil {
			return err
		}
	case badger.ErrKeyNotFound:
		// Recipient was removed between the participant snapshot and this
		// write; their counter entry must not be resurrected.
		return nil
	default:
		return err
	}
	return txn.Set(key, []byte(strconv.Itoa(count+1)))
}

func fromMessage(message domain.Message) messageRecord {
	return messageRecord{
		ID:            message.ID.String(),
		ChatID:        message.ChatID.String(),
		SenderID:      message.SenderID,
		Body:          message.Body,
		CreatedAt:     message.CreatedAt.UnixNano(),
		DeliveryState: string(message.DeliveryState),
	}
}

func toMessage(record messageRecord) (domain.Message, error) {
	parsedID, err := uuid.Parse(record.ID)
	if err != nil {
		return domain.Message{}, err
	}
	chatID, err := uuid.Parse(record.ChatID)
	if err != nil {
		return domain.Message{}, err
	}
	return domain.Message{
		ID:            parsedID,
		ChatID:        chatID,
		SenderID:      record.SenderID,
		Body:          record.Body,
		CreatedAt:     time.Unix(0, record.CreatedAt).UTC(),
		DeliveryState: domain.DeliveryState(record.DeliveryState),
	}, nil
}

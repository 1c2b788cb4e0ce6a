//go:generate go run go.uber.org/mock/mockgen -source=counter.go -destination=../mocks/mock_counter_repository.go -package=mocks
package repositories

import (
	"fmt"
	"strconv"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"market-live/domain"
	apperrors "market-live/errors"
)

// ICounterRepository is the source of truth for per-(chat, user) unread
// counts. Counters are maintained incrementally by the message append
// transaction; nothing here ever recomputes from message history.
type ICounterRepository interface {
	GetUnread(chatID domain.ChatID, userID string) (int, error)
	GetTotal(userID string) (int, error)
	Reset(chatID domain.ChatID, userID string) error
	UnreadForChat(chatID domain.ChatID) (map[string]int, error)
	SetClearCutoff(chatID domain.ChatID, userID string, at time.Time) error
	GetClearCutoff(chatID domain.ChatID, userID string) (time.Time, error)
}

type CounterRepository struct {
	db *badger.DB
}

func NewCounterRepository(db *badger.DB) CounterRepository {
	return CounterRepository{db: db}
}

func (r CounterRepository) GetUnread(chatID domain.ChatID, userID string) (int, error) {
	count := 0
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		count, err = readCounter(txn, unreadKey(chatID, userID))
		return err
	})
	return count, err
}

// GetTotal sums the user's counters across all chats they belong to, via
// the membership index. Per-chat values are each consistent; the sum is
// eventually consistent across chats, which is acceptable, and never
// undercounts a committed message because increments commit with appends.
func (r CounterRepository) GetTotal(userID string) (int, error) {
	total := 0
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := memberPrefix(userID)
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			chatID, err := uuid.Parse(string(it.Item().Key()[len(prefix):]))
			if err != nil {
				continue
			}
			count, err := readCounter(txn, unreadKey(chatID, userID))
			if err != nil {
				return err
			}
			total += count
		}
		return nil
	})
	return total, err
}

// Reset sets the entry to 0. Idempotent; resetting an entry already at 0
// is a no-op, resetting a removed participant's entry is ErrNotFound.
func (r CounterRepository) Reset(chatID domain.ChatID, userID string) error {
	return r.db.Update(func(txn *badger.Txn) error {
		key := unreadKey(chatID, userID)
		if _, err := txn.Get(key); err == badger.ErrKeyNotFound {
			return fmt.Errorf("%w: no unread entry for user %s in chat %s",
				apperrors.ErrNotFound, userID, chatID)
		} else if err != nil {
			return err
		}
		return txn.Set(key, []byte("0"))
	})
}

// UnreadForChat is the diagnostic read used by the debug surface. It must
// never mutate counters.
func (r CounterRepository) UnreadForChat(chatID domain.ChatID) (map[string]int, error) {
	counts := make(map[string]int)
	prefix := []byte("unread:" + chatID.String() + ":")

	err := r.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			userID := string(item.Key()[len(prefix):])
			err := item.Value(func(val []byte) error {
				count, err := strconv.Atoi(string(val))
				if err != nil {
					return err
				}
				counts[userID] = count
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return counts, err
}

// SetClearCutoff records the per-user visibility cutoff for "clear
// conversation". History before the cutoff disappears for this user only;
// no message data is deleted.
func (r CounterRepository) SetClearCutoff(chatID domain.ChatID, userID string, at time.Time) error {
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(clearKey(chatID, userID), []byte(strconv.FormatInt(at.UnixNano(), 10)))
	})
}

func (r CounterRepository) GetClearCutoff(chatID domain.ChatID, userID string) (time.Time, error) {
	cutoff := time.Time{}
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(clearKey(chatID, userID))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			nanos, err := strconv.ParseInt(string(val), 10, 64)
			if err != nil {
				return err
			}
			cutoff = time.Unix(0, nanos).UTC()
			return nil
		})
	})
	return cutoff, err
}

func readCounter(txn *badger.Txn, key []byte) (int, error) {
	item, err := txn.Get(key)
	if err == badger.ErrKeyNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	count := 0
	err = item.Value(func(val []byte) error {
		count, err = strconv.Atoi(string(val))
		return err
	})
	return count, err
}

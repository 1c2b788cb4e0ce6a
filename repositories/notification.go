//go:generate go run go.uber.org/mock/mockgen -source=notification.go -destination=../mocks/mock_notification_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"market-live/domain"
	apperrors "market-live/errors"
)

type INotificationRepository interface {
	Store(n domain.Notification) error
	ListForUser(userID string, limit int) ([]domain.Notification, error)
	MarkRead(userID string, notificationID uuid.UUID, at time.Time) error
}

type NotificationRepository struct {
	db *badger.DB
}

func NewNotificationRepository(db *badger.DB) NotificationRepository {
	return NotificationRepository{db: db}
}

type notificationRecord struct {
	ID          string `json:"id"`
	RecipientID string `json:"recipient_id"`
	SenderID    string `json:"sender_id"`
	Kind        string `json:"kind"`
	SubjectType string `json:"subject_type"`
	SubjectID   string `json:"subject_id"`
	CreatedAt   int64  `json:"created_at"` // unix nano
	ReadAt      *int64 `json:"read_at,omitempty"`
}

func (r NotificationRepository) Store(n domain.Notification) error {
	data, err := json.Marshal(fromNotification(n))
	if err != nil {
		return fmt.Errorf("marshal failed: %w", err)
	}
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(notificationKey(n.RecipientID, n.CreatedAt, n.ID), data)
	})
}

// ListForUser returns the recipient's notifications newest first. Same
// trick as the message scan: the padded timestamp in the key provides the
// ordering.
func (r NotificationRepository) ListForUser(userID string, limit int) ([]domain.Notification, error) {
	var notifications []domain.Notification

	err := r.db.View(func(txn *badger.Txn) error {
		prefix := notificationPrefix(userID)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		seekKey := append(append([]byte{}, prefix...), []byte("9999999999999999999")...)
		for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(notifications) == limit {
				break
			}
			err := it.Item().Value(func(val []byte) error {
				var record notificationRecord
				if err := json.Unmarshal(val, &record); err != nil {
					return err
				}
				n, err := toNotification(record)
				if err != nil {
					return err
				}
				notifications = append(notifications, n)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return notifications, err
}

// MarkRead stamps the record. The scan is bounded by the recipient's own
// prefix; retention pruning keeps that range small.
func (r NotificationRepository) MarkRead(userID string, notificationID uuid.UUID, at time.Time) error {
	suffix := []byte(notificationID.String())

	return r.db.Update(func(txn *badger.Txn) error {
		prefix := notificationPrefix(userID)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			key := item.Key()
			if len(key) < len(suffix) || string(key[len(key)-len(suffix):]) != string(suffix) {
				continue
			}

			var record notificationRecord
			err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &record)
			})
			if err != nil {
				return err
			}
			nanos := at.UnixNano()
			record.ReadAt = &nanos
			data, err := json.Marshal(record)
			if err != nil {
				return err
			}
			return txn.Set(append([]byte{}, key...), data)
		}
		return fmt.Errorf("%w: notification %s", apperrors.ErrNotFound, notificationID)
	})
}

func fromNotification(n domain.Notification) notificationRecord {
	record := notificationRecord{
		ID:          n.ID.String(),
		RecipientID: n.RecipientID,
		SenderID:    n.SenderID,
		Kind:        string(n.Kind),
		SubjectType: n.Subject.Type,
		SubjectID:   n.Subject.ID,
		CreatedAt:   n.CreatedAt.UnixNano(),
	}
	if n.ReadAt != nil {
		nanos := n.ReadAt.UnixNano()
		record.ReadAt = &nanos
	}
	return record
}

func toNotification(record notificationRecord) (domain.Notification, error) {
	parsedID, err := uuid.Parse(record.ID)
	if err != nil {
		return domain.Notification{}, err
	}
	n := domain.Notification{
		ID:          parsedID,
		RecipientID: record.RecipientID,
		SenderID:    record.SenderID,
		Kind:        domain.NotificationKind(record.Kind),
		Subject:     domain.SubjectRef{Type: record.SubjectType, ID: record.SubjectID},
		CreatedAt:   time.Unix(0, record.CreatedAt).UTC(),
	}
	if record.ReadAt != nil {
		readAt := time.Unix(0, *record.ReadAt).UTC()
		n.ReadAt = &readAt
	}
	return n, nil
}

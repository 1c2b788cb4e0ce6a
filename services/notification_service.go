package services

import (
	"time"

	"github.com/google/uuid"

	"market-live/domain"
	"market-live/repositories"
)

type INotificationService interface {
	List(userID string, limit int) ([]domain.Notification, error)
	MarkRead(userID string, notificationID uuid.UUID) error
	TotalUnread(userID string) (int, error)
	UnreadForChat(chatID domain.ChatID, userID string) (int, error)
}

// NotificationService backs the pull side of the resync protocol: a
// reconnecting client rebuilds state from these reads instead of trusting
// anything buffered before the disconnect.
type NotificationService struct {
	notifications repositories.INotificationRepository
	counters      repositories.ICounterRepository
}

func NewNotificationService(
	notifications repositories.INotificationRepository,
	counters repositories.ICounterRepository,
) *NotificationService {
	return &NotificationService{notifications: notifications, counters: counters}
}

func (s *NotificationService) List(userID string, limit int) ([]domain.Notification, error) {
	return s.notifications.ListForUser(userID, limit)
}

func (s *NotificationService) MarkRead(userID string, notificationID uuid.UUID) error {
	return s.notifications.MarkRead(userID, notificationID, time.Now().UTC())
}

// TotalUnread is the badge count: the sum of the user's per-chat counters,
// maintained incrementally, never recomputed from message history.
func (s *NotificationService) TotalUnread(userID string) (int, error) {
	return s.counters.GetTotal(userID)
}

func (s *NotificationService) UnreadForChat(chatID domain.ChatID, userID string) (int, error) {
	return s.counters.GetUnread(chatID, userID)
}

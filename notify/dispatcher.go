// Package notify converts domain events from any producer (message router,
// comment and vote handlers, moderation outcomes) into a uniform
// notification delivered to online recipients and queued for offline ones.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"market-live/contract"
	"market-live/domain"
	"market-live/domain/event"
	"market-live/observability"
	"market-live/repositories"
)

var _ contract.IDispatcher = (*Dispatcher)(nil)

type Dispatcher struct {
	log           *slog.Logger
	registry      contract.IRegistry
	notifications repositories.INotificationRepository
	monitoring    *observability.MonitoringManager
}

func NewDispatcher(
	log *slog.Logger,
	registry contract.IRegistry,
	notifications repositories.INotificationRepository,
	monitoring *observability.MonitoringManager,
) *Dispatcher {
	return &Dispatcher{
		log:           log,
		registry:      registry,
		notifications: notifications,
		monitoring:    monitoring,
	}
}

// Dispatch always persists the notification first, whatever the
// recipient's online status, so a later "fetch my notifications" call is
// complete. Only then does it push to every live connection; a dead
// connection is skipped, the pull path covers it after resync.
func (d *Dispatcher) Dispatch(ctx context.Context, n domain.Notification) error {
	if err := d.notifications.Store(n); err != nil {
		return fmt.Errorf("notification persistence failed: %w", err)
	}
	d.monitoring.IncrNotificationsSent()

	pushed := event.NotificationPushed{Notification: n}
	for _, sink := range d.registry.ConnectionsFor(n.RecipientID) {
		if err := sink.Consume(ctx, pushed); err != nil {
			d.monitoring.IncrDeliveryFailures()
			d.log.Warn("Skipping unreachable connection during notification push",
				"recipient_id", n.RecipientID, "error", err)
		}
	}
	return nil
}

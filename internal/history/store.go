package history

import (
	"context"

	"github.com/notifyhub/notification-engine/internal/domain"
)

// Store is the external persistence collaborator for delivery history.
// The engine mirrors every record transition here; RetryFailed replays
// notifications out of it.
type Store interface {
	// SaveNotification upserts the notification so failed deliveries can be
	// replayed later.
	SaveNotification(ctx context.Context, n *domain.Notification) error

	// SaveHistory upserts the current state of a delivery record.
	SaveHistory(ctx context.Context, r *domain.DeliveryRecord) error

	// LoadHistory returns all delivery records for a notification.
	LoadHistory(ctx context.Context, notificationID string) ([]*domain.DeliveryRecord, error)

	// LoadFailed returns notifications whose most recent delivery record
	// within the past hoursBack hours is failed. An empty notificationID
	// searches across all notifications.
	LoadFailed(ctx context.Context, notificationID string, hoursBack int) ([]*domain.Notification, error)
}

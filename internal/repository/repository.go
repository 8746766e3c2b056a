// Package repository defines the storage interfaces the services depend on.
// Implementations live in subpackages (sqlite).
package repository

import (
	"context"

	"github.com/nhasan/ghtracker/internal/model"
)

// ListOptions paginates and filters notification listings. Limit and Skip
// are assumed already clamped by the service layer. A nil Processed means no
// filter; otherwise only rows with that processed state are returned.
type ListOptions struct {
	Limit     int
	Skip      int
	Processed *bool
}

// UserRepository persists user accounts keyed by internal ID, with lookup
// by the GitHub identity fields.
type UserRepository interface {
	// Upsert inserts the user or, when a row with the same GitHub ID exists,
	// updates it in place. On update the stored internal ID, creation time,
	// and webhook flag are preserved and written back into user.
	Upsert(ctx context.Context, user *model.User) error

	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByGitHubID(ctx context.Context, githubID int64) (*model.User, error)
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)

	// SetWebhookConfigured flips the user's webhook flag.
	SetWebhookConfigured(ctx context.Context, id string, configured bool) error
}

// NotificationRepository persists webhook event deliveries.
type NotificationRepository interface {
	CreateNotification(ctx context.Context, n *model.Notification) error
	GetNotificationByID(ctx context.Context, id string) (*model.Notification, error)

	// ListNotifications returns the user's notifications newest first.
	ListNotifications(ctx context.Context, userID string, opts ListOptions) ([]model.Notification, error)

	// MarkProcessed marks one notification processed and reports whether a
	// row was actually updated. Already-processed and missing rows both
	// report false.
	MarkProcessed(ctx context.Context, userID, id string) (bool, error)

	// MarkAllProcessed marks every unprocessed notification for the user and
	// returns how many rows changed.
	MarkAllProcessed(ctx context.Context, userID string) (int64, error)

	CountNotifications(ctx context.Context, userID string, unprocessedOnly bool) (int64, error)
	DeleteNotification(ctx context.Context, userID, id string) (bool, error)
}

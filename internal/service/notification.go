package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rs/xid"

	"github.com/nhasan/ghtracker/internal/apperror"
	"github.com/nhasan/ghtracker/internal/model"
	"github.com/nhasan/ghtracker/internal/repository"
)

// Listing bounds. Requests outside the window are clamped rather than
// rejected; a non-positive limit falls back to the default.
const (
	defaultListLimit = 50
	maxListLimit     = 100
)

// NotificationService manages stored webhook notifications.
type NotificationService struct {
	notifications repository.NotificationRepository
	logger        *slog.Logger
}

func NewNotificationService(notifications repository.NotificationRepository, logger *slog.Logger) *NotificationService {
	return &NotificationService{
		notifications: notifications,
		logger:        logger,
	}
}

// Create stores a webhook event delivery for a user.
func (s *NotificationService) Create(ctx context.Context, n *model.Notification) error {
	if n.UserID == "" {
		return apperror.ValidationFailed("user_id", "notification must reference a user")
	}
	if n.Repository == "" {
		return apperror.ValidationFailed("repository", "notification must name a repository")
	}
	if n.EventType == "" {
		return apperror.ValidationFailed("event_type", "notification must carry an event type")
	}

	if err := s.notifications.CreateNotification(ctx, n); err != nil {
		return fmt.Errorf("service/notification: creating notification: %w", err)
	}

	s.logger.Info("stored webhook notification",
		slog.String("notificationID", n.ID),
		slog.String("userID", n.UserID),
		slog.String("repository", n.Repository),
		slog.String("eventType", n.EventType),
	)

	return nil
}

// ListForUser returns the user's notifications newest first. limit is clamped
// to [1, 100] with non-positive values defaulting to 50; a negative skip
// becomes 0. A nil processed returns all notifications, otherwise only those
// in the given processed state.
func (s *NotificationService) ListForUser(ctx context.Context, userID string, limit, skip int, processed *bool) ([]model.Notification, error) {
	if limit < 1 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if skip < 0 {
		skip = 0
	}

	notifications, err := s.notifications.ListNotifications(ctx, userID, repository.ListOptions{
		Limit:     limit,
		Skip:      skip,
		Processed: processed,
	})
	if err != nil {
		return nil, fmt.Errorf("service/notification: listing for user %s: %w", userID, err)
	}

	return notifications, nil
}

// GetByID returns a single notification owned by the user.
func (s *NotificationService) GetByID(ctx context.Context, userID, id string) (*model.Notification, error) {
	if _, err := xid.FromString(id); err != nil {
		return nil, apperror.ValidationFailed("id", "invalid notification ID format")
	}

	n, err := s.notifications.GetNotificationByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/notification: fetching notification %s: %w", id, err)
	}
	if n.UserID != userID {
		// Report another user's notification as absent, not forbidden.
		return nil, apperror.NotFound("notification", id)
	}

	return n, nil
}

// MarkProcessed marks one notification processed and reports whether a row
// changed. Missing, foreign, and already-processed notifications all report
// false without error.
func (s *NotificationService) MarkProcessed(ctx context.Context, userID, id string) (bool, error) {
	if _, err := xid.FromString(id); err != nil {
		return false, apperror.ValidationFailed("id", "invalid notification ID format")
	}

	ok, err := s.notifications.MarkProcessed(ctx, userID, id)
	if err != nil {
		return false, fmt.Errorf("service/notification: marking %s processed: %w", id, err)
	}

	return ok, nil
}

// MarkAllProcessed marks every unprocessed notification for the user and
// returns the count of rows changed.
func (s *NotificationService) MarkAllProcessed(ctx context.Context, userID string) (int64, error) {
	count, err := s.notifications.MarkAllProcessed(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("service/notification: marking all processed for user %s: %w", userID, err)
	}

	if count > 0 {
		s.logger.Info("marked notifications processed",
			slog.String("userID", userID),
			slog.Int64("count", count),
		)
	}

	return count, nil
}

// Count returns how many notifications the user has, optionally only the
// unprocessed ones.
func (s *NotificationService) Count(ctx context.Context, userID string, unprocessedOnly bool) (int64, error) {
	count, err := s.notifications.CountNotifications(ctx, userID, unprocessedOnly)
	if err != nil {
		return 0, fmt.Errorf("service/notification: counting for user %s: %w", userID, err)
	}
	return count, nil
}

// Delete removes a notification owned by the user.
func (s *NotificationService) Delete(ctx context.Context, userID, id string) (bool, error) {
	if _, err := xid.FromString(id); err != nil {
		return false, apperror.ValidationFailed("id", "invalid notification ID format")
	}

	ok, err := s.notifications.DeleteNotification(ctx, userID, id)
	if err != nil {
		return false, fmt.Errorf("service/notification: deleting %s: %w", id, err)
	}

	return ok, nil
}

package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/nhasan/ghtracker/internal/apperror"
	"github.com/nhasan/ghtracker/internal/model"
	"github.com/nhasan/ghtracker/internal/repository"
)

var _ repository.NotificationRepository = (*DB)(nil)

const notificationColumns = `id, user_id, repository, event_type, action, payload,
	processed, created_at, processed_at`

// CreateNotification stores a delivered webhook event. The payload document
// is serialized to JSON text; an empty payload stores "{}".
func (db *DB) CreateNotification(ctx context.Context, n *model.Notification) error {
	payload := []byte("{}")
	if n.Payload != nil {
		encoded, err := json.Marshal(n.Payload)
		if err != nil {
			return fmt.Errorf("sqlite: encoding notification payload: %w", err)
		}
		payload = encoded
	}

	n.ID = xid.New().String()
	n.CreatedAt = time.Now().UTC()
	n.Processed = false
	n.ProcessedAt = nil

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO webhook_notifications
		   (id, user_id, repository, event_type, action, payload, processed, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, 0, ?)`,
		n.ID,
		n.UserID,
		n.Repository,
		n.EventType,
		n.Action,
		string(payload),
		n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting notification for user %s: %w", n.UserID, err)
	}

	return nil
}

// GetNotificationByID retrieves a single notification.
func (db *DB) GetNotificationByID(ctx context.Context, id string) (*model.Notification, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+notificationColumns+` FROM webhook_notifications WHERE id = ?`, id,
	)

	n, err := scanNotification(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("notification", id)
		}
		return nil, fmt.Errorf("sqlite: getting notification %s: %w", id, err)
	}

	return n, nil
}

// ListNotifications returns the user's notifications newest first.
func (db *DB) ListNotifications(ctx context.Context, userID string, opts repository.ListOptions) ([]model.Notification, error) {
	query := `SELECT ` + notificationColumns + `
		 FROM webhook_notifications
		 WHERE user_id = ?`
	args := []any{userID}

	if opts.Processed != nil {
		query += ` AND processed = ?`
		args = append(args, *opts.Processed)
	}

	query += ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, opts.Limit, opts.Skip)

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing notifications for user %s: %w", userID, err)
	}
	defer rows.Close()

	notifications := make([]model.Notification, 0)
	for rows.Next() {
		n, err := scanNotification(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning notification row: %w", err)
		}
		notifications = append(notifications, *n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating notification rows: %w", err)
	}

	return notifications, nil
}

// MarkProcessed marks one notification processed. The user filter keeps one
// user from acknowledging another's notifications; the processed filter makes
// a repeat call report false rather than bump processed_at.
func (db *DB) MarkProcessed(ctx context.Context, userID, id string) (bool, error) {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE webhook_notifications
		 SET processed = 1, processed_at = ?
		 WHERE id = ? AND user_id = ? AND processed = 0`,
		time.Now().UTC(), id, userID,
	)
	if err != nil {
		return false, fmt.Errorf("sqlite: marking notification %s processed: %w", id, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: reading rows affected: %w", err)
	}

	return affected > 0, nil
}

// MarkAllProcessed marks every unprocessed notification for the user and
// returns how many rows changed.
func (db *DB) MarkAllProcessed(ctx context.Context, userID string) (int64, error) {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE webhook_notifications
		 SET processed = 1, processed_at = ?
		 WHERE user_id = ? AND processed = 0`,
		time.Now().UTC(), userID,
	)
	if err != nil {
		return 0, fmt.Errorf("sqlite: marking all notifications processed for user %s: %w", userID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: reading rows affected: %w", err)
	}

	return affected, nil
}

// CountNotifications counts the user's notifications, optionally only the
// unprocessed ones.
func (db *DB) CountNotifications(ctx context.Context, userID string, unprocessedOnly bool) (int64, error) {
	query := `SELECT COUNT(*) FROM webhook_notifications WHERE user_id = ?`
	if unprocessedOnly {
		query += ` AND processed = 0`
	}

	var count int64
	if err := db.conn.QueryRowContext(ctx, query, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("sqlite: counting notifications for user %s: %w", userID, err)
	}

	return count, nil
}

// DeleteNotification removes a notification owned by the user and reports
// whether a row was deleted.
func (db *DB) DeleteNotification(ctx context.Context, userID, id string) (bool, error) {
	res, err := db.conn.ExecContext(ctx,
		`DELETE FROM webhook_notifications WHERE id = ? AND user_id = ?`,
		id, userID,
	)
	if err != nil {
		return false, fmt.Errorf("sqlite: deleting notification %s: %w", id, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: reading rows affected: %w", err)
	}

	return affected > 0, nil
}

// scanNotification reads one row regardless of whether it came from QueryRow
// or Rows. The payload column round-trips through JSON text.
func scanNotification(scan func(dest ...any) error) (*model.Notification, error) {
	var (
		n       model.Notification
		payload string
	)

	err := scan(
		&n.ID,
		&n.UserID,
		&n.Repository,
		&n.EventType,
		&n.Action,
		&payload,
		&n.Processed,
		&n.CreatedAt,
		&n.ProcessedAt,
	)
	if err != nil {
		return nil, err
	}

	if payload != "" && payload != "{}" {
		if err := json.Unmarshal([]byte(payload), &n.Payload); err != nil {
			return nil, fmt.Errorf("decoding payload for notification %s: %w", n.ID, err)
		}
	}

	return &n, nil
}

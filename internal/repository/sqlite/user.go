package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/nhasan/ghtracker/internal/apperror"
	"github.com/nhasan/ghtracker/internal/model"
	"github.com/nhasan/ghtracker/internal/repository"
)

var _ repository.UserRepository = (*DB)(nil)

const userColumns = `id, github_id, username, name, email, avatar_url, profile_url,
	github_access_token, github_token_expires_at, webhook_configured, created_at, updated_at`

// Upsert inserts a user or refreshes the existing row with the same GitHub ID.
//
// The GitHub ID is the identity key. On update, the internal ID, creation
// time, and webhook flag survive the profile refresh and are written back into
// user so the caller always holds the canonical record. Two-step
// select-then-write rather than ON CONFLICT because the preserved fields must
// flow back to the caller, not just stay in the row.
func (db *DB) Upsert(ctx context.Context, user *model.User) error {
	existing, err := db.GetUserByGitHubID(ctx, user.GitHubID)
	if err != nil && !errors.Is(err, apperror.ErrNotFound) {
		return err
	}

	now := time.Now().UTC()

	if existing != nil {
		user.ID = existing.ID
		user.CreatedAt = existing.CreatedAt
		user.WebhookConfigured = existing.WebhookConfigured
		user.UpdatedAt = now

		_, err = db.conn.ExecContext(ctx,
			`UPDATE users
			 SET username = ?, name = ?, email = ?, avatar_url = ?, profile_url = ?,
			     github_access_token = ?, github_token_expires_at = ?, updated_at = ?
			 WHERE id = ?`,
			user.Username,
			user.Name,
			user.Email,
			user.AvatarURL,
			user.ProfileURL,
			user.GitHubAccessToken,
			user.GitHubTokenExpiresAt,
			user.UpdatedAt,
			user.ID,
		)
		if err != nil {
			return fmt.Errorf("sqlite: updating user %s: %w", user.ID, err)
		}
		return nil
	}

	user.ID = xid.New().String()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO users (id, github_id, username, name, email, avatar_url, profile_url,
		                    github_access_token, github_token_expires_at, webhook_configured,
		                    created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.GitHubID,
		user.Username,
		user.Name,
		user.Email,
		user.AvatarURL,
		user.ProfileURL,
		user.GitHubAccessToken,
		user.GitHubTokenExpiresAt,
		user.WebhookConfigured,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting user (githubID=%d): %w", user.GitHubID, err)
	}

	return nil
}

// GetUserByID retrieves a user by internal ID.
// Returns apperror.ErrNotFound if no such user exists.
func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return db.getUser(ctx, `WHERE id = ?`, id)
}

// GetUserByGitHubID retrieves a user by their GitHub numeric ID.
func (db *DB) GetUserByGitHubID(ctx context.Context, githubID int64) (*model.User, error) {
	return db.getUser(ctx, `WHERE github_id = ?`, githubID)
}

// GetUserByUsername retrieves a user by their GitHub login.
func (db *DB) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	return db.getUser(ctx, `WHERE username = ?`, username)
}

func (db *DB) getUser(ctx context.Context, where string, arg any) (*model.User, error) {
	var u model.User

	err := db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users `+where, arg,
	).Scan(
		&u.ID,
		&u.GitHubID,
		&u.Username,
		&u.Name,
		&u.Email,
		&u.AvatarURL,
		&u.ProfileURL,
		&u.GitHubAccessToken,
		&u.GitHubTokenExpiresAt,
		&u.WebhookConfigured,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", fmt.Sprint(arg))
		}
		return nil, fmt.Errorf("sqlite: getting user (%v): %w", arg, err)
	}

	return &u, nil
}

// SetWebhookConfigured flips the user's webhook flag.
func (db *DB) SetWebhookConfigured(ctx context.Context, id string, configured bool) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE users SET webhook_configured = ?, updated_at = ? WHERE id = ?`,
		configured, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: setting webhook flag for user %s: %w", id, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: reading rows affected: %w", err)
	}
	if affected == 0 {
		return apperror.NotFound("user", id)
	}

	return nil
}

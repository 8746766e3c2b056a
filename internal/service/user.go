// Package service holds the business logic between the HTTP handlers and the
// repositories. Services validate input, enforce domain rules, and translate
// between the GitHub wire documents and the stored models; they never touch
// HTTP concerns.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rs/xid"

	"github.com/nhasan/ghtracker/internal/apperror"
	"github.com/nhasan/ghtracker/internal/model"
	"github.com/nhasan/ghtracker/internal/repository"
)

// TokenVerifier introspects a GitHub access token upstream. Implemented by
// the GitHub client; narrowed to an interface so tests can stub it.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, accessToken string) bool
}

// UserService manages user accounts sourced from GitHub OAuth logins.
type UserService struct {
	users    repository.UserRepository
	verifier TokenVerifier
	logger   *slog.Logger
}

func NewUserService(users repository.UserRepository, verifier TokenVerifier, logger *slog.Logger) *UserService {
	return &UserService{
		users:    users,
		verifier: verifier,
		logger:   logger,
	}
}

// Upsert records a login: it maps the GitHub profile document onto a user and
// inserts or refreshes the stored row keyed by GitHub ID. The profile must
// carry a numeric id and a login; anything else is a validation failure, not
// a partial write.
//
// tokenExpiry is nil for classic OAuth tokens, which never expire.
func (s *UserService) Upsert(ctx context.Context, profile model.Document, accessToken string, tokenExpiry *time.Time) (*model.User, error) {
	githubID := model.DocInt64(profile, "id")
	if githubID <= 0 {
		return nil, apperror.ValidationFailed("id", "GitHub profile is missing a numeric id")
	}
	username := model.DocString(profile, "login")
	if username == "" {
		return nil, apperror.ValidationFailed("login", "GitHub profile is missing a login")
	}
	if accessToken == "" {
		return nil, apperror.ValidationFailed("access_token", "access token must not be empty")
	}

	user := &model.User{
		GitHubID:             githubID,
		Username:             username,
		Name:                 model.DocString(profile, "name"),
		Email:                model.DocString(profile, "email"),
		AvatarURL:            model.DocString(profile, "avatar_url"),
		ProfileURL:           model.DocString(profile, "html_url"),
		GitHubAccessToken:    accessToken,
		GitHubTokenExpiresAt: tokenExpiry,
	}

	if err := s.users.Upsert(ctx, user); err != nil {
		return nil, fmt.Errorf("service/user: upserting user (githubID=%d): %w", githubID, err)
	}

	s.logger.Info("user logged in",
		slog.String("userID", user.ID),
		slog.String("username", user.Username),
	)

	return user, nil
}

// GetByID returns the user with the given internal ID. A string that is not
// a well-formed ID fails validation before touching storage.
func (s *UserService) GetByID(ctx context.Context, id string) (*model.User, error) {
	if _, err := xid.FromString(id); err != nil {
		return nil, apperror.ValidationFailed("id", "invalid user ID format")
	}

	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/user: fetching user %s: %w", id, err)
	}

	return user, nil
}

// GetByGitHubID returns the user with the given GitHub numeric ID.
func (s *UserService) GetByGitHubID(ctx context.Context, githubID int64) (*model.User, error) {
	if githubID <= 0 {
		return nil, apperror.ValidationFailed("github_id", "GitHub ID must be positive")
	}

	user, err := s.users.GetUserByGitHubID(ctx, githubID)
	if err != nil {
		return nil, fmt.Errorf("service/user: fetching user by githubID %d: %w", githubID, err)
	}

	return user, nil
}

// GetByUsername returns the user with the given GitHub login, or (nil, nil)
// when no such user is registered. The nil-without-error shape exists for the
// webhook ingest path, where an unknown owner is an expected outcome rather
// than a failure.
func (s *UserService) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	if username == "" {
		return nil, apperror.ValidationFailed("username", "username must not be empty")
	}

	user, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("service/user: fetching user %s: %w", username, err)
	}

	return user, nil
}

// SetWebhookConfigured flips the user's webhook flag.
func (s *UserService) SetWebhookConfigured(ctx context.Context, id string, configured bool) error {
	if err := s.users.SetWebhookConfigured(ctx, id, configured); err != nil {
		return fmt.Errorf("service/user: setting webhook flag for user %s: %w", id, err)
	}
	return nil
}

// TokensStillValid reports whether the user's stored GitHub token is still
// usable. A stored expiry in the past answers without a network call; only
// an unexpired (or non-expiring) token is introspected upstream. Unknown
// users and upstream failures both read as invalid.
func (s *UserService) TokensStillValid(ctx context.Context, id string) bool {
	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return false
	}
	if user.GitHubAccessToken == "" {
		return false
	}

	if user.GitHubTokenExpiresAt != nil && time.Now().After(*user.GitHubTokenExpiresAt) {
		s.logger.Debug("stored github token expired", slog.String("userID", id))
		return false
	}

	return s.verifier.VerifyToken(ctx, user.GitHubAccessToken)
}

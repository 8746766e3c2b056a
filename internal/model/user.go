// Package model defines the data structures used throughout the application.
package model

import "time"

// User represents a registered user account.
//
// We use GitHub OAuth as the identity provider, so the primary external
// identifier is the GitHub user ID (an integer). We still generate our own
// internal string ID (xid) to avoid tying our primary keys to a third-party's
// numbering scheme. The internal ID is immutable once assigned; the GitHub ID
// carries a UNIQUE constraint so one GitHub account maps to exactly one row.
//
// GitHubAccessToken is the user's upstream OAuth token. It is a secret: we
// store it so we can call the GitHub API on the user's behalf, but it must
// never appear in API responses; PublicProfile strips it.
type User struct {
	ID                   string     `json:"id"                db:"id"`
	GitHubID             int64      `json:"githubId"          db:"github_id"` // GitHub's numeric user ID
	Username             string     `json:"username"          db:"username"`  // GitHub login, e.g. "nhasan"
	Name                 string     `json:"name"              db:"name"`      // Display name (may be empty)
	AvatarURL            string     `json:"avatarUrl"         db:"avatar_url"`
	Email                string     `json:"email"             db:"email"` // Primary public email (may be empty)
	ProfileURL           string     `json:"profileUrl"        db:"profile_url"`
	GitHubAccessToken    string     `json:"-"                 db:"github_access_token"`
	GitHubTokenExpiresAt *time.Time `json:"-"                 db:"github_token_expires_at"`
	WebhookConfigured    bool       `json:"webhookConfigured" db:"webhook_configured"`
	CreatedAt            time.Time  `json:"createdAt"         db:"created_at"`
	UpdatedAt            time.Time  `json:"updatedAt"         db:"updated_at"`
}

// PublicProfile is the user representation returned by the API.
// It deliberately omits the GitHub access token and its expiry.
type PublicProfile struct {
	ID                string    `json:"id"`
	GitHubID          int64     `json:"githubId"`
	Username          string    `json:"username"`
	Name              string    `json:"name,omitempty"`
	AvatarURL         string    `json:"avatarUrl,omitempty"`
	Email             string    `json:"email,omitempty"`
	ProfileURL        string    `json:"profileUrl"`
	WebhookConfigured bool      `json:"webhookConfigured"`
	CreatedAt         time.Time `json:"createdAt"`
}

// PublicProfile returns the API-safe view of the user.
func (u *User) PublicProfile() PublicProfile {
	return PublicProfile{
		ID:                u.ID,
		GitHubID:          u.GitHubID,
		Username:          u.Username,
		Name:              u.Name,
		AvatarURL:         u.AvatarURL,
		Email:             u.Email,
		ProfileURL:        u.ProfileURL,
		WebhookConfigured: u.WebhookConfigured,
		CreatedAt:         u.CreatedAt,
	}
}

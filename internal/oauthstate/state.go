// Package oauthstate manages single-use anti-CSRF state tokens for the OAuth
// login flow.
//
// States live in Redis so that any server instance can validate a callback
// regardless of which instance started the flow. Each state is a random
// URL-safe token stored under a prefixed key with a fixed TTL; it is consumed
// by an atomic DEL, which makes it valid for exactly one callback. There is
// deliberately no in-process fallback: if Redis is unreachable, login fails
// rather than degrading to per-instance state, which would reopen the CSRF
// window the shared store exists to close.
package oauthstate

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// TTL is how long a state token stays valid. Long enough for the user
	// to approve the authorization on GitHub, short enough to bound replay.
	TTL = 600 * time.Second

	keyPrefix = "oauth_state:"

	// stateBytes is the entropy of a generated token (before encoding).
	stateBytes = 32
)

// Manager stores, verifies, and consumes OAuth state tokens in Redis.
// Safe for concurrent use across goroutines and across server instances
// sharing the same Redis: single-use semantics come from the store's
// atomicity, not from any process-local locking.
type Manager struct {
	client *redis.Client
	logger *slog.Logger
}

// NewManager creates a Manager on an existing Redis client. The client is
// owned by the caller (the composition root), which closes it on shutdown.
func NewManager(client *redis.Client, logger *slog.Logger) *Manager {
	return &Manager{client: client, logger: logger}
}

// NewToken returns a fresh cryptographically random state token,
// URL-safe base64 encoded.
func NewToken() (string, error) {
	buf := make([]byte, stateBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Create stores a state token with the fixed TTL. It returns false on any
// store failure instead of an error: the caller surfaces a generic 500
// without leaking store internals, and the login flow stops there.
func (m *Manager) Create(ctx context.Context, state string) bool {
	if state == "" {
		return false
	}

	// SETEX: value and expiry land atomically. The value is a sentinel;
	// only key existence matters.
	if err := m.client.SetEx(ctx, keyPrefix+state, "1", TTL).Err(); err != nil {
		m.logger.Error("failed to store oauth state",
			slog.String("state", truncate(state)),
			slog.String("error", err.Error()),
		)
		return false
	}

	m.logger.Debug("created oauth state", slog.String("state", truncate(state)))
	return true
}

// VerifyAndConsume atomically deletes the state and reports whether it
// existed. DEL returns the number of keys removed, so existence check and
// consumption are a single round trip; two concurrent callbacks racing on
// the same state cannot both observe it as present.
//
// Returns false for states that were never created, already consumed, or
// whose TTL has elapsed, and on any store error.
func (m *Manager) VerifyAndConsume(ctx context.Context, state string) bool {
	if state == "" {
		return false
	}

	deleted, err := m.client.Del(ctx, keyPrefix+state).Result()
	if err != nil {
		m.logger.Error("failed to consume oauth state",
			slog.String("state", truncate(state)),
			slog.String("error", err.Error()),
		)
		return false
	}

	if deleted == 0 {
		m.logger.Warn("oauth state not found or already consumed",
			slog.String("state", truncate(state)),
		)
		return false
	}

	return true
}

// HealthCheck reports whether Redis is reachable. Best effort; never panics.
func (m *Manager) HealthCheck(ctx context.Context) bool {
	if err := m.client.Ping(ctx).Err(); err != nil {
		m.logger.Error("redis health check failed", slog.String("error", err.Error()))
		return false
	}
	return true
}

// truncate shortens a state token for logging. Full tokens stay out of logs.
func truncate(state string) string {
	if len(state) <= 8 {
		return state
	}
	return state[:8] + "..."
}

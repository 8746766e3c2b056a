package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/nhasan/ghtracker/internal/model"
)

// contextKey is an unexported type used for context keys in this package.
// Only this package can create keys of this type, so no other package can
// read or shadow the values we store in the request context.
type contextKey string

const userKey contextKey = "user"

// UserSource is the slice of the user service the middleware needs: load a
// user by internal ID and check that their GitHub token is still usable.
type UserSource interface {
	GetByID(ctx context.Context, id string) (*model.User, error)
	TokensStillValid(ctx context.Context, id string) bool
}

// RequireAuth gates protected routes. Per request it:
//
//  1. extracts the bearer token from the Authorization header,
//  2. verifies it as an access token,
//  3. loads the user the token's subject names,
//  4. checks the user's GitHub token is still valid (stored expiry first,
//     then a live introspection call).
//
// On success the loaded user is stored in the request context, where handlers
// read it via UserFromContext and the rate limiter uses the user ID to key
// per-user rather than per-IP limits. Every failure is a 401 with the same
// generic body, so the response never reveals which step rejected the request.
func RequireAuth(tokens *TokenService, users UserSource, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, reason := authenticate(r, tokens, users)
			if user == nil {
				logger.Warn("request rejected", slog.String("reason", reason), slog.String("path", r.URL.Path))
				unauthorized(w)
				return
			}

			ctx := context.WithValue(r.Context(), userKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalAuth attaches the user identity when a valid token is present but
// never blocks the request. Endpoints that behave differently for anonymous
// and authenticated callers check UserFromContext themselves.
func OptionalAuth(tokens *TokenService, users UserSource) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if user, _ := authenticate(r, tokens, users); user != nil {
				ctx := context.WithValue(r.Context(), userKey, user)
				r = r.WithContext(ctx)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// UserFromContext retrieves the authenticated user from the request context.
// Returns (nil, false) if the request is anonymous.
func UserFromContext(ctx context.Context) (*model.User, bool) {
	user, ok := ctx.Value(userKey).(*model.User)
	return user, ok && user != nil
}

// UserIDFromContext retrieves the authenticated user's internal ID from the
// request context. Used by the rate limiter to key limits per user.
func UserIDFromContext(ctx context.Context) (string, bool) {
	user, ok := UserFromContext(ctx)
	if !ok {
		return "", false
	}
	return user.ID, true
}

// authenticate runs the full guard pipeline. It returns the loaded user on
// success, or nil plus a short reason string for server-side logging.
func authenticate(r *http.Request, tokens *TokenService, users UserSource) (*model.User, string) {
	tokenStr, ok := bearerToken(r)
	if !ok {
		return nil, "missing bearer token"
	}

	userID, err := tokens.Verify(tokenStr, TokenTypeAccess)
	if err != nil {
		return nil, "invalid access token"
	}

	user, err := users.GetByID(r.Context(), userID)
	if err != nil || user == nil {
		return nil, "user not found"
	}

	if !users.TokensStillValid(r.Context(), user.ID) {
		return nil, "github session expired"
	}

	return user, ""
}

// bearerToken extracts the token from an "Authorization: Bearer <token>"
// header. The scheme comparison is case-insensitive per RFC 7235.
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}

	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}

	token = strings.TrimSpace(token)
	return token, token != ""
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized","message":"could not validate credentials"}`))
}

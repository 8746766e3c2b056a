package handler

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"

	"github.com/nhasan/ghtracker/internal/auth"
	"github.com/nhasan/ghtracker/internal/github"
	"github.com/nhasan/ghtracker/internal/model"
	"github.com/nhasan/ghtracker/internal/oauthstate"
	"github.com/nhasan/ghtracker/internal/repository/sqlite"
	"github.com/nhasan/ghtracker/internal/service"
)

const testWebhookSecret = "handler-test-webhook-secret"

// testEnv wires the full handler stack against in-memory infrastructure:
// sqlite for storage, miniredis for OAuth state, and an httptest server
// standing in for the GitHub API.
type testEnv struct {
	auth          *AuthHandler
	activity      *ActivityHandler
	webhooks      *WebhookHandler
	users         *service.UserService
	notifications *service.NotificationService
	tokens        *auth.TokenService
	states        *oauthstate.Manager
	redis         *miniredis.Miniredis
	router        chi.Router
}

// newTestEnv builds the stack. githubAPI handles every request the GitHub
// client makes, OAuth token endpoint included (it is mounted at
// /login/oauth/access_token on the same server).
func newTestEnv(t *testing.T, githubAPI http.Handler) *testEnv {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	db, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("sqlite.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = redisClient.Close() })

	ghServer := httptest.NewServer(githubAPI)
	t.Cleanup(ghServer.Close)

	ghClient := github.NewClient(github.Config{
		ClientID:      "test-client-id",
		ClientSecret:  "test-client-secret",
		RedirectURI:   "http://localhost:8080/auth/github/callback",
		WebhookURL:    "https://tracker.example.com/webhooks/github",
		WebhookSecret: testWebhookSecret,
		BaseURL:       ghServer.URL,
		Endpoint: oauth2.Endpoint{
			AuthURL:  ghServer.URL + "/login/oauth/authorize",
			TokenURL: ghServer.URL + "/login/oauth/access_token",
		},
	}, logger)

	tokens, err := auth.NewTokenService("handler-test-secret-32-characters!!", 15*time.Minute, 7*24*time.Hour)
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}

	states := oauthstate.NewManager(redisClient, logger)
	users := service.NewUserService(db, ghClient, logger)
	notifications := service.NewNotificationService(db, logger)
	verifier := auth.NewSignatureVerifier(testWebhookSecret)

	env := &testEnv{
		auth:          NewAuthHandler(ghClient, tokens, states, users, logger),
		activity:      NewActivityHandler(ghClient, logger),
		webhooks:      NewWebhookHandler(ghClient, verifier, users, notifications, logger),
		users:         users,
		notifications: notifications,
		tokens:        tokens,
		states:        states,
		redis:         mr,
	}

	guard := auth.RequireAuth(tokens, users, logger)

	r := chi.NewRouter()
	r.Get("/auth/github/login", env.auth.HandleLogin)
	r.Get("/auth/github/callback", env.auth.HandleCallback)
	r.Post("/auth/refresh", env.auth.HandleRefresh)
	r.Post("/auth/logout", env.auth.HandleLogout)
	r.With(guard).Get("/auth/me", env.auth.HandleMe)

	r.With(guard).Get("/activity/repositories", env.activity.HandleRepositories)
	r.With(guard).Get("/activity/events", env.activity.HandleEvents)

	r.Post("/webhooks/github", env.webhooks.HandleInbound)
	r.Group(func(r chi.Router) {
		r.Use(guard)
		r.Post("/webhooks/setup/{owner}/{repo}", env.webhooks.HandleSetup)
		r.Get("/webhooks/list/{owner}/{repo}", env.webhooks.HandleList)
		r.Delete("/webhooks/remove/{owner}/{repo}/{hookID}", env.webhooks.HandleRemove)
		r.Get("/webhooks/notifications", env.webhooks.HandleNotifications)
		r.Post("/webhooks/notifications/mark-all-processed", env.webhooks.HandleMarkAllProcessed)
		r.Post("/webhooks/notifications/{id}/mark-processed", env.webhooks.HandleMarkProcessed)
		r.Delete("/webhooks/notifications/{id}", env.webhooks.HandleDeleteNotification)
	})
	env.router = r

	return env
}

// registerUser creates a user directly through the service and returns the
// user plus a valid access token for them.
func (env *testEnv) registerUser(t *testing.T, githubID float64, username string) (*model.User, string) {
	t.Helper()

	profile := model.Document{
		"id":         githubID,
		"login":      username,
		"name":       "Test User",
		"email":      username + "@example.com",
		"avatar_url": "https://avatars.githubusercontent.com/u/1",
		"html_url":   "https://github.com/" + username,
	}
	user, err := env.users.Upsert(context.Background(), profile, "gho_"+username, nil)
	if err != nil {
		t.Fatalf("registering user: %v", err)
	}

	token, _, err := env.tokens.IssueAccess(user.ID)
	if err != nil {
		t.Fatalf("issuing access token: %v", err)
	}

	return user, token
}

// serve runs one request through the router.
func (env *testEnv) serve(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	return rec
}

package handler

import (
	"log/slog"
	"net/http"

	"github.com/nhasan/ghtracker/internal/auth"
	"github.com/nhasan/ghtracker/internal/github"
	"github.com/nhasan/ghtracker/internal/service"
)

// ActivityHandler serves the authenticated user's GitHub repositories and
// recent activity events, proxied live from the GitHub API with the user's
// stored access token.
type ActivityHandler struct {
	github *github.Client
	logger *slog.Logger
}

func NewActivityHandler(gh *github.Client, logger *slog.Logger) *ActivityHandler {
	return &ActivityHandler{github: gh, logger: logger}
}

// HandleRepositories lists the user's repositories.
//
// HTTP: GET /activity/repositories?q=<filter> (requires auth)
//
// The optional q parameter filters by case-insensitive substring over name,
// description, language, owner login, and topics. Filtering happens here
// rather than upstream so one GitHub call serves any query.
func (h *ActivityHandler) HandleRepositories(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		unauthorizedJSON(w)
		return
	}

	repos, err := h.github.UserRepos(r.Context(), user.GitHubAccessToken)
	if err != nil {
		writeError(w, err)
		return
	}

	if q := r.URL.Query().Get("q"); q != "" {
		repos = service.FilterRepositories(repos, q)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"repositories": repos,
		"count":        len(repos),
	})
}

// HandleEvents lists the user's recent public activity.
//
// HTTP: GET /activity/events (requires auth)
func (h *ActivityHandler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		unauthorizedJSON(w)
		return
	}

	events, err := h.github.UserEvents(r.Context(), user.GitHubAccessToken, user.Username)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"events": events,
		"count":  len(events),
	})
}

package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/nhasan/ghtracker/internal/auth"
	"github.com/nhasan/ghtracker/internal/github"
	"github.com/nhasan/ghtracker/internal/oauthstate"
	"github.com/nhasan/ghtracker/internal/service"
)

// AuthHandler drives the GitHub OAuth login flow and session token lifecycle.
//
// The flow is API-shaped rather than browser-redirect-shaped: the login
// endpoint hands the client the GitHub authorization URL plus a state token,
// and the callback trades the code for this service's own JWT pair. The state
// lives in the shared store, not a cookie, so any instance can complete a
// flow another instance started.
type AuthHandler struct {
	github *github.Client
	tokens *auth.TokenService
	states *oauthstate.Manager
	users  *service.UserService
	logger *slog.Logger
}

func NewAuthHandler(
	gh *github.Client,
	tokens *auth.TokenService,
	states *oauthstate.Manager,
	users *service.UserService,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		github: gh,
		tokens: tokens,
		states: states,
		users:  users,
		logger: logger,
	}
}

// TokenResponse is the session token pair issued after a successful login.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"` // access token lifetime, seconds
}

// HandleLogin starts the OAuth flow.
//
// HTTP: GET /auth/github/login
//
// Generates a single-use state token, records it in the shared store, and
// returns the GitHub authorization URL for the client to navigate to.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	state, err := oauthstate.NewToken()
	if err != nil {
		h.logger.Error("login: generating state failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "could not start login flow",
		})
		return
	}

	if !h.states.Create(r.Context(), state) {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "could not start login flow",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"authorization_url": h.github.AuthorizationURL(state),
		"state":             state,
	})
}

// HandleCallback completes the OAuth flow.
//
// HTTP: GET /auth/github/callback?code=...&state=...
//
// The state must consume successfully (single use, unexpired) before the
// code is touched. A failed code exchange is the client's problem (401),
// while profile or storage failures after a good exchange are ours.
func (h *AuthHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")

	if code == "" || state == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "code and state are required",
		})
		return
	}

	if !h.states.VerifyAndConsume(r.Context(), state) {
		h.logger.Warn("callback: invalid or expired state")
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "invalid or expired state parameter",
		})
		return
	}

	accessToken, tokenExpiry, err := h.github.ExchangeCode(r.Context(), code)
	if err != nil {
		writeError(w, err)
		return
	}

	profile, err := h.github.UserInfo(r.Context(), accessToken)
	if err != nil {
		writeError(w, err)
		return
	}

	user, err := h.users.Upsert(r.Context(), profile, accessToken, tokenExpiry)
	if err != nil {
		h.logger.Error("callback: upsert failed", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}

	h.issueTokens(w, user.ID)
}

// HandleRefresh issues a new access token against a valid refresh token.
//
// HTTP: POST /auth/refresh  (Authorization: Bearer <refresh token>)
//
// The refresh token itself is not rotated. The user must still exist and
// their GitHub token must still be live; a revoked upstream session kills
// this session too.
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	refreshToken, ok := bearerToken(r)
	if !ok {
		unauthorizedJSON(w)
		return
	}

	userID, err := h.tokens.Verify(refreshToken, auth.TokenTypeRefresh)
	if err != nil {
		writeError(w, err)
		return
	}

	user, err := h.users.GetByID(r.Context(), userID)
	if err != nil {
		h.logger.Warn("refresh: user lookup failed", slog.String("userID", userID))
		unauthorizedJSON(w)
		return
	}

	if !h.users.TokensStillValid(r.Context(), user.ID) {
		h.logger.Info("refresh: github token no longer valid", slog.String("userID", user.ID))
		unauthorizedJSON(w)
		return
	}

	access, _, err := h.tokens.IssueAccess(user.ID)
	if err != nil {
		h.logger.Error("issuing access token failed", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"access_token": access,
		"token_type":   "bearer",
	})
}

// HandleLogout ends the session.
//
// HTTP: POST /auth/logout
//
// Sessions are stateless JWTs, so logout is advisory: the client discards
// its tokens and the short access lifetime bounds any residual validity.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "successfully logged out"})
}

// HandleMe returns the authenticated user's profile.
//
// HTTP: GET /auth/me (requires auth)
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		unauthorizedJSON(w)
		return
	}

	writeJSON(w, http.StatusOK, user.PublicProfile())
}

func (h *AuthHandler) issueTokens(w http.ResponseWriter, userID string) {
	access, _, err := h.tokens.IssueAccess(userID)
	if err != nil {
		h.logger.Error("issuing access token failed", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}
	refresh, _, err := h.tokens.IssueRefresh(userID)
	if err != nil {
		h.logger.Error("issuing refresh token failed", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, TokenResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		ExpiresIn:    int64(h.tokens.AccessTTL().Seconds()),
	})
}

// bearerToken pulls the credential out of an Authorization: Bearer header.
func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func unauthorizedJSON(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	writeJSON(w, http.StatusUnauthorized, ErrorResponse{
		Error:   "unauthorized",
		Message: "could not validate credentials",
	})
}

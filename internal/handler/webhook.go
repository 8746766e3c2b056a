package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nhasan/ghtracker/internal/auth"
	"github.com/nhasan/ghtracker/internal/github"
	"github.com/nhasan/ghtracker/internal/model"
	"github.com/nhasan/ghtracker/internal/service"
)

// maxWebhookBody bounds an inbound delivery payload. GitHub caps payloads at
// 25 MB; anything bigger is not a webhook.
const maxWebhookBody = 25 << 20

// WebhookHandler has two faces: the public ingest endpoint GitHub delivers
// events to, and the authenticated management endpoints users drive to
// configure hooks on their repositories and read their stored notifications.
type WebhookHandler struct {
	github        *github.Client
	verifier      *auth.SignatureVerifier
	users         *service.UserService
	notifications *service.NotificationService
	logger        *slog.Logger
}

func NewWebhookHandler(
	gh *github.Client,
	verifier *auth.SignatureVerifier,
	users *service.UserService,
	notifications *service.NotificationService,
	logger *slog.Logger,
) *WebhookHandler {
	return &WebhookHandler{
		github:        gh,
		verifier:      verifier,
		users:         users,
		notifications: notifications,
		logger:        logger,
	}
}

// HandleInbound receives a webhook delivery from GitHub.
//
// HTTP: POST /webhooks/github (public; HMAC-authenticated)
//
// The HMAC signature is checked against the raw body before any parsing:
// an unsigned or mis-signed delivery gets 401 and nothing else happens.
// The recipient is resolved from the payload's repository owner login. A
// delivery for an owner with no account here is acknowledged with 200 and
// dropped: GitHub retries on non-2xx, and there is nothing to retry into.
func (h *WebhookHandler) HandleInbound(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "could not read request body",
		})
		return
	}

	if !h.verifier.Verify(body, r.Header.Get("X-Hub-Signature-256")) {
		h.logger.Warn("webhook delivery with invalid signature",
			slog.String("remote", r.RemoteAddr),
		)
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{
			Error:   "unauthorized",
			Message: "invalid webhook signature",
		})
		return
	}

	var payload model.Document
	if err := json.Unmarshal(body, &payload); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "invalid JSON payload",
		})
		return
	}

	eventType := r.Header.Get("X-GitHub-Event")
	if eventType == "" {
		eventType = "unknown"
	}

	repo := model.DocNested(payload, "repository")
	repoFullName := model.DocString(repo, "full_name")
	ownerLogin := model.DocString(model.DocNested(repo, "owner"), "login")

	if ownerLogin == "" {
		// Ping and meta events arrive without a usable repository block.
		writeJSON(w, http.StatusOK, map[string]string{"message": "event ignored"})
		return
	}

	user, err := h.users.GetByUsername(r.Context(), ownerLogin)
	if err != nil {
		h.logger.Error("webhook: resolving recipient failed",
			slog.String("owner", ownerLogin),
			slog.String("error", err.Error()),
		)
		writeError(w, err)
		return
	}
	if user == nil {
		h.logger.Info("webhook for unregistered owner ignored",
			slog.String("owner", ownerLogin),
			slog.String("eventType", eventType),
		)
		writeJSON(w, http.StatusOK, map[string]string{"message": "event ignored"})
		return
	}

	n := &model.Notification{
		UserID:     user.ID,
		Repository: repoFullName,
		EventType:  eventType,
		Action:     model.DocString(payload, "action"),
		Payload:    payload,
	}
	if err := h.notifications.Create(r.Context(), n); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message":         "event received",
		"notification_id": n.ID,
	})
}

// HandleSetup creates a webhook on the user's repository.
//
// HTTP: POST /webhooks/setup/{owner}/{repo} (requires auth)
//
// On success the user's webhook flag is set; the hook exists on GitHub
// either way, so a flag write failure is logged but not fatal.
func (h *WebhookHandler) HandleSetup(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		unauthorizedJSON(w)
		return
	}

	owner := chi.URLParam(r, "owner")
	repo := chi.URLParam(r, "repo")

	hook, err := h.github.CreateWebhook(r.Context(), user.GitHubAccessToken, owner, repo)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.users.SetWebhookConfigured(r.Context(), user.ID, true); err != nil {
		h.logger.Error("webhook setup: flag update failed",
			slog.String("userID", user.ID),
			slog.String("error", err.Error()),
		)
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "webhook created",
		"webhook": hook,
	})
}

// HandleList lists the webhooks on the user's repository.
//
// HTTP: GET /webhooks/list/{owner}/{repo} (requires auth)
func (h *WebhookHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		unauthorizedJSON(w)
		return
	}

	hooks, err := h.github.ListWebhooks(r.Context(), user.GitHubAccessToken, chi.URLParam(r, "owner"), chi.URLParam(r, "repo"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"webhooks": hooks,
		"count":    len(hooks),
	})
}

// HandleRemove deletes a webhook from the user's repository.
//
// HTTP: DELETE /webhooks/remove/{owner}/{repo}/{hookID} (requires auth)
func (h *WebhookHandler) HandleRemove(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		unauthorizedJSON(w)
		return
	}

	hookID, err := strconv.ParseInt(chi.URLParam(r, "hookID"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "webhook ID must be numeric",
		})
		return
	}

	if err := h.github.DeleteWebhook(r.Context(), user.GitHubAccessToken, chi.URLParam(r, "owner"), chi.URLParam(r, "repo"), hookID); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "webhook deleted"})
}

// HandleNotifications lists the user's stored notifications.
//
// HTTP: GET /webhooks/notifications?processed=&limit=&skip= (requires auth)
//
// Out-of-range paging values are clamped by the service, never rejected. An
// absent or unparsable processed parameter means no filter.
func (h *WebhookHandler) HandleNotifications(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		unauthorizedJSON(w)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	skip, _ := strconv.Atoi(r.URL.Query().Get("skip"))

	var processed *bool
	if v, err := strconv.ParseBool(r.URL.Query().Get("processed")); err == nil {
		processed = &v
	}

	notifications, err := h.notifications.ListForUser(r.Context(), user.ID, limit, skip, processed)
	if err != nil {
		writeError(w, err)
		return
	}

	unprocessed, err := h.notifications.Count(r.Context(), user.ID, true)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"notifications":     notifications,
		"count":             len(notifications),
		"unprocessed_count": unprocessed,
	})
}

// HandleMarkProcessed acknowledges one notification.
//
// HTTP: POST /webhooks/notifications/{id}/mark-processed (requires auth)
//
// success is false when the notification is missing, foreign, or already
// processed; the response is 200 in every such case.
func (h *WebhookHandler) HandleMarkProcessed(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		unauthorizedJSON(w)
		return
	}

	updated, err := h.notifications.MarkProcessed(r.Context(), user.ID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": updated})
}

// HandleMarkAllProcessed acknowledges every unprocessed notification.
//
// HTTP: POST /webhooks/notifications/mark-all-processed (requires auth)
func (h *WebhookHandler) HandleMarkAllProcessed(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		unauthorizedJSON(w)
		return
	}

	count, err := h.notifications.MarkAllProcessed(r.Context(), user.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int64{"marked_count": count})
}

// HandleDeleteNotification removes one stored notification.
//
// HTTP: DELETE /webhooks/notifications/{id} (requires auth)
func (h *WebhookHandler) HandleDeleteNotification(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		unauthorizedJSON(w)
		return
	}

	deleted, err := h.notifications.Delete(r.Context(), user.ID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if !deleted {
		writeJSON(w, http.StatusNotFound, ErrorResponse{
			Error:   "not_found",
			Message: "notification not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "notification deleted"})
}

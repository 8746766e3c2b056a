// Package github is the client for GitHub's OAuth and REST APIs.
//
// It is the single place the application talks to GitHub: the authorization
// code flow, profile lookup, token introspection, repository and activity
// listing, and webhook management all go through Client. Upstream failures
// are translated into the apperror taxonomy here, so callers and HTTP
// handlers never inspect GitHub status codes directly.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	oauthgithub "golang.org/x/oauth2/github"

	"github.com/nhasan/ghtracker/internal/apperror"
	"github.com/nhasan/ghtracker/internal/model"
)

const (
	defaultBaseURL = "https://api.github.com"

	// requestTimeout bounds every outbound call. A timeout surfaces to the
	// caller as a distinct gateway-timeout condition, not a generic failure.
	requestTimeout = 30 * time.Second

	userAgent = "ghtracker/1.0"
)

// oauthScopes cover profile access, repository listing, and webhook
// administration on the user's behalf.
var oauthScopes = []string{"repo", "read:user", "user:email", "admin:repo_hook"}

// defaultWebhookEvents is the event set subscribed when the application
// creates a webhook for a repository.
var defaultWebhookEvents = []string{
	"push",
	"pull_request",
	"issues",
	"issue_comment",
	"commit_comment",
	"create",
	"delete",
	"fork",
	"star",
	"watch",
	"release",
}

// Config holds the credentials and endpoints for a Client.
// BaseURL and Endpoint exist so tests can point the client at httptest
// servers; production leaves them zero.
type Config struct {
	ClientID      string
	ClientSecret  string
	RedirectURI   string
	WebhookURL    string // public URL GitHub delivers events to
	WebhookSecret string // shared HMAC secret for webhook deliveries

	BaseURL  string          // REST API base; defaults to api.github.com
	Endpoint oauth2.Endpoint // OAuth endpoints; defaults to GitHub's
}

// Client talks to GitHub. It is safe for concurrent use.
type Client struct {
	oauth         *oauth2.Config
	http          *http.Client
	baseURL       string
	webhookURL    string
	webhookSecret string
	logger        *slog.Logger
}

// NewClient creates a Client from the given configuration.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	endpoint := cfg.Endpoint
	if endpoint.AuthURL == "" {
		endpoint = oauthgithub.Endpoint
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	return &Client{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       oauthScopes,
			Endpoint:     endpoint,
		},
		http:          &http.Client{Timeout: requestTimeout},
		baseURL:       strings.TrimRight(baseURL, "/"),
		webhookURL:    cfg.WebhookURL,
		webhookSecret: cfg.WebhookSecret,
		logger:        logger,
	}
}

// AuthorizationURL returns the GitHub authorization page URL for the given
// anti-CSRF state token.
func (c *Client) AuthorizationURL(state string) string {
	return c.oauth.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// ExchangeCode trades an authorization code for a GitHub access token.
// The returned expiry pointer is nil when GitHub does not report one
// (classic OAuth apps issue non-expiring tokens).
func (c *Client) ExchangeCode(ctx context.Context, code string) (string, *time.Time, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.http)

	token, err := c.oauth.Exchange(ctx, code)
	if err != nil {
		if isTimeout(err) {
			return "", nil, apperror.GatewayTimeout("GitHub API request timed out")
		}
		c.logger.Error("oauth code exchange failed", slog.String("error", err.Error()))
		return "", nil, apperror.Unauthorized("failed to obtain access token from GitHub")
	}
	if token.AccessToken == "" {
		return "", nil, apperror.Unauthorized("failed to obtain access token from GitHub")
	}

	var expiry *time.Time
	if !token.Expiry.IsZero() {
		e := token.Expiry
		expiry = &e
	}

	return token.AccessToken, expiry, nil
}

// UserInfo fetches the authenticated user's profile. The result is the raw
// GitHub document; callers read the handful of fields they need.
func (c *Client) UserInfo(ctx context.Context, accessToken string) (model.Document, error) {
	resp, err := c.get(ctx, accessToken, "/user", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.classify(resp, "invalid GitHub token")
	}

	var doc model.Document
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, apperror.Upstream("decoding GitHub user response")
	}

	return doc, nil
}

// VerifyToken reports whether the access token is still accepted by GitHub.
// Any failure, network or timeout or non-200, reads as invalid.
func (c *Client) VerifyToken(ctx context.Context, accessToken string) bool {
	resp, err := c.get(ctx, accessToken, "/user", nil)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}

// UserRepos lists repositories accessible to the authenticated user,
// most recently updated first.
func (c *Client) UserRepos(ctx context.Context, accessToken string) ([]model.Document, error) {
	resp, err := c.get(ctx, accessToken, "/user/repos", map[string]string{
		"sort":     "updated",
		"per_page": "100",
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.classify(resp, "failed to fetch repositories")
	}

	return decodeList(resp)
}

// UserEvents lists recent activity events for the given username.
func (c *Client) UserEvents(ctx context.Context, accessToken, username string) ([]model.Document, error) {
	resp, err := c.get(ctx, accessToken, "/users/"+username+"/events", map[string]string{
		"per_page": "100",
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.classify(resp, fmt.Sprintf("failed to fetch activity for user %s", username))
	}

	return decodeList(resp)
}

// CreateWebhook registers a webhook on owner/repo pointing at the
// application's delivery URL, subscribed to the default event set and
// secured with the shared secret.
func (c *Client) CreateWebhook(ctx context.Context, accessToken, owner, repo string) (model.Document, error) {
	body := model.Document{
		"name":   "web",
		"active": true,
		"events": defaultWebhookEvents,
		"config": model.Document{
			"url":          c.webhookURL,
			"content_type": "json",
			"secret":       c.webhookSecret,
			"insecure_ssl": "0",
		},
	}

	resp, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/repos/%s/%s/hooks", owner, repo), accessToken, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, c.classify(resp, fmt.Sprintf("failed to create webhook on %s/%s", owner, repo))
	}

	var doc model.Document
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, apperror.Upstream("decoding GitHub webhook response")
	}

	return doc, nil
}

// ListWebhooks lists the webhooks configured on owner/repo.
func (c *Client) ListWebhooks(ctx context.Context, accessToken, owner, repo string) ([]model.Document, error) {
	resp, err := c.get(ctx, accessToken, fmt.Sprintf("/repos/%s/%s/hooks", owner, repo), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.classify(resp, fmt.Sprintf("failed to list webhooks for %s/%s", owner, repo))
	}

	return decodeList(resp)
}

// DeleteWebhook removes a webhook from owner/repo. GitHub answers 204 on
// success; anything else maps through the usual taxonomy.
func (c *Client) DeleteWebhook(ctx context.Context, accessToken, owner, repo string, hookID int64) error {
	resp, err := c.do(ctx, http.MethodDelete, fmt.Sprintf("/repos/%s/%s/hooks/%d", owner, repo, hookID), accessToken, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		return c.classify(resp, fmt.Sprintf("failed to delete webhook %d from %s/%s", hookID, owner, repo))
	}

	return nil
}

func (c *Client) get(ctx context.Context, accessToken, path string, params map[string]string) (*http.Response, error) {
	if len(params) > 0 {
		values := url.Values{}
		for k, v := range params {
			values.Set(k, v)
		}
		path += "?" + values.Encode()
	}
	return c.do(ctx, http.MethodGet, path, accessToken, nil)
}

// do issues a request against the REST base URL with GitHub's standard
// headers, encoding body as JSON when present.
func (c *Client) do(ctx context.Context, method, path, accessToken string, body any) (*http.Response, error) {
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("github: encoding request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("github: building request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", userAgent)
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, apperror.GatewayTimeout("GitHub API request timed out")
		}
		c.logger.Error("github request failed",
			slog.String("method", method),
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return nil, apperror.Upstream("GitHub API request failed")
	}

	return resp, nil
}

// classify maps an error response from GitHub onto the apperror taxonomy:
// 401 → unauthorized, 403 with a rate-limit message → rate limited,
// other 403 → forbidden, 404 → not found, 422 → conflict, rest → upstream.
// The response body is drained for its "message" field, falling back to the
// supplied default.
func (c *Client) classify(resp *http.Response, defaultMessage string) error {
	message := defaultMessage
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err == nil && payload.Message != "" {
		message = payload.Message
	}

	c.logger.Error("github api error",
		slog.Int("status", resp.StatusCode),
		slog.String("message", message),
	)

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return apperror.Unauthorized(message)
	case resp.StatusCode == http.StatusForbidden && strings.Contains(strings.ToLower(message), "rate limit"):
		return apperror.RateLimited("GitHub API rate limit exceeded")
	case resp.StatusCode == http.StatusForbidden:
		return apperror.Forbidden(message)
	case resp.StatusCode == http.StatusNotFound:
		return apperror.NotFound("github resource", message)
	case resp.StatusCode == http.StatusUnprocessableEntity:
		return apperror.Conflict("github", message)
	default:
		return apperror.Upstream(message)
	}
}

func decodeList(resp *http.Response) ([]model.Document, error) {
	var docs []model.Document
	if err := json.NewDecoder(resp.Body).Decode(&docs); err != nil {
		return nil, apperror.Upstream("decoding GitHub list response")
	}
	return docs, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}

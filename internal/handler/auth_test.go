package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// githubStub fakes the two GitHub endpoints the login flow touches and the
// token introspection the auth guard performs.
func githubStub() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/login/oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.FormValue("code") != "valid-code" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "gho_flowuser",
			"token_type":   "bearer",
		})
	})

	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		// The guard introspects stored tokens; any gho_ token is live.
		if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer gho_") {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":         float64(777),
			"login":      "flowuser",
			"name":       "Flow User",
			"email":      "flow@example.com",
			"avatar_url": "https://avatars.githubusercontent.com/u/777",
			"html_url":   "https://github.com/flowuser",
		})
	})

	return mux
}

func TestHandleLogin(t *testing.T) {
	env := newTestEnv(t, githubStub())

	rec := env.serve(httptest.NewRequest(http.MethodGet, "/auth/github/login", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	state := resp["state"]
	require.NotEmpty(t, state)

	authURL, err := url.Parse(resp["authorization_url"])
	require.NoError(t, err)
	assert.Equal(t, state, authURL.Query().Get("state"))
	assert.Equal(t, "test-client-id", authURL.Query().Get("client_id"))

	// The state is registered in the shared store with its TTL.
	assert.True(t, env.redis.Exists("oauth_state:"+state))
}

func TestHandleCallback_FullFlow(t *testing.T) {
	env := newTestEnv(t, githubStub())

	// Start the flow to obtain a stored state.
	loginRec := env.serve(httptest.NewRequest(http.MethodGet, "/auth/github/login", nil))
	var login map[string]string
	require.NoError(t, json.Unmarshal(loginRec.Body.Bytes(), &login))

	rec := env.serve(httptest.NewRequest(http.MethodGet,
		"/auth/github/callback?code=valid-code&state="+login["state"], nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var tokens TokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tokens))
	assert.NotEmpty(t, tokens.AccessToken)
	assert.NotEmpty(t, tokens.RefreshToken)
	assert.Equal(t, "bearer", tokens.TokenType)
	assert.EqualValues(t, 15*60, tokens.ExpiresIn)

	// The session works: /auth/me returns the profile without secrets.
	meReq := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	meReq.Header.Set("Authorization", "Bearer "+tokens.AccessToken)
	meRec := env.serve(meReq)
	require.Equal(t, http.StatusOK, meRec.Code, meRec.Body.String())

	var me map[string]any
	require.NoError(t, json.Unmarshal(meRec.Body.Bytes(), &me))
	assert.Equal(t, "flowuser", me["username"])
	assert.NotContains(t, meRec.Body.String(), "gho_flowuser")
}

func TestHandleCallback_StateSingleUse(t *testing.T) {
	env := newTestEnv(t, githubStub())

	loginRec := env.serve(httptest.NewRequest(http.MethodGet, "/auth/github/login", nil))
	var login map[string]string
	require.NoError(t, json.Unmarshal(loginRec.Body.Bytes(), &login))

	first := env.serve(httptest.NewRequest(http.MethodGet,
		"/auth/github/callback?code=valid-code&state="+login["state"], nil))
	require.Equal(t, http.StatusOK, first.Code)

	// Replaying the same state must fail.
	second := env.serve(httptest.NewRequest(http.MethodGet,
		"/auth/github/callback?code=valid-code&state="+login["state"], nil))
	assert.Equal(t, http.StatusBadRequest, second.Code)
}

func TestHandleCallback_BadInputs(t *testing.T) {
	env := newTestEnv(t, githubStub())

	cases := []struct {
		name  string
		query string
		want  int
	}{
		{"missing code", "?state=abc", http.StatusBadRequest},
		{"missing state", "?code=valid-code", http.StatusBadRequest},
		{"unknown state", "?code=valid-code&state=never-stored", http.StatusBadRequest},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := env.serve(httptest.NewRequest(http.MethodGet, "/auth/github/callback"+tc.query, nil))
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestHandleCallback_ExchangeFailure(t *testing.T) {
	env := newTestEnv(t, githubStub())

	loginRec := env.serve(httptest.NewRequest(http.MethodGet, "/auth/github/login", nil))
	var login map[string]string
	require.NoError(t, json.Unmarshal(loginRec.Body.Bytes(), &login))

	rec := env.serve(httptest.NewRequest(http.MethodGet,
		"/auth/github/callback?code=stolen-code&state="+login["state"], nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandleRefresh(t *testing.T) {
	env := newTestEnv(t, githubStub())
	user, _ := env.registerUser(t, 777, "flowuser")

	refresh, _, err := env.tokens.IssueRefresh(user.ID)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/auth/refresh", nil)
	req.Header.Set("Authorization", "Bearer "+refresh)
	rec := env.serve(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp["access_token"])
	assert.Equal(t, "bearer", resp["token_type"])
	assert.NotContains(t, resp, "refresh_token")

	// The minted access token is usable.
	meReq := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	meReq.Header.Set("Authorization", "Bearer "+resp["access_token"])
	assert.Equal(t, http.StatusOK, env.serve(meReq).Code)
}

func TestHandleRefresh_Rejections(t *testing.T) {
	env := newTestEnv(t, githubStub())
	_, access := env.registerUser(t, 777, "flowuser")

	cases := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"wrong scheme", "Basic dXNlcjpwYXNz"},
		{"empty credential", "Bearer "},
		{"garbage token", "Bearer not-a-jwt"},
		{"access token instead of refresh", "Bearer " + access},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/auth/refresh", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := env.serve(req)
			assert.Equal(t, http.StatusUnauthorized, rec.Code, rec.Body.String())
		})
	}
}

func TestHandleLogout(t *testing.T) {
	env := newTestEnv(t, githubStub())

	rec := env.serve(httptest.NewRequest(http.MethodPost, "/auth/logout", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleMe_RequiresAuth(t *testing.T) {
	env := newTestEnv(t, githubStub())

	rec := env.serve(httptest.NewRequest(http.MethodGet, "/auth/me", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))
}

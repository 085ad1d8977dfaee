package oauth2_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	oauth2lib "golang.org/x/oauth2"

	"github.com/panyam/authrepo/oauth2"
)

// mockOAuthServer serves /token, /userinfo and /emails
type mockOAuthServer struct {
	server *httptest.Server

	tokenResponse    map[string]any
	userInfoResponse map[string]any
	emailsResponse   []map[string]any
	tokenError       bool
	userInfoError    bool
	lastBearer       string
}

func newMockOAuthServer(t *testing.T) *mockOAuthServer {
	mock := &mockOAuthServer{
		tokenResponse: map[string]any{
			"access_token":  "mock_access_token",
			"token_type":    "Bearer",
			"expires_in":    3600,
			"refresh_token": "mock_refresh_token",
		},
		userInfoResponse: map[string]any{"id": "12345", "email": "testuser@example.com", "name": "Test User"},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if mock.tokenError {
			http.Error(w, "token exchange failed", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(mock.tokenResponse)
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		mock.lastBearer = r.Header.Get("Authorization")
		if mock.userInfoError {
			http.Error(w, "user info failed", http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(mock.userInfoResponse)
	})
	mux.HandleFunc("/emails", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(mock.emailsResponse)
	})

	mock.server = httptest.NewServer(mux)
	t.Cleanup(mock.server.Close)
	return mock
}

func (m *mockOAuthServer) configure(b *oauth2.BaseOAuth2) {
	b.UserInfoURL = m.server.URL + "/userinfo"
	b.SetHTTPClient(m.server.Client())
	b.SetOAuthEndpoint(oauth2lib.Endpoint{
		AuthURL:  m.server.URL + "/auth",
		TokenURL: m.server.URL + "/token",
	})
}

type handledLogin struct {
	called   bool
	provider string
	token    *oauth2lib.Token
	userInfo map[string]any
}

func (h *handledLogin) handle(authtype, provider string, token *oauth2lib.Token, userInfo map[string]any, w http.ResponseWriter, r *http.Request) {
	h.called = true
	h.provider = provider
	h.token = token
	h.userInfo = userInfo
	w.WriteHeader(http.StatusOK)
}

func callback(handler http.Handler, query, state string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/callback/?"+query, nil)
	if state != "" {
		req.AddCookie(&http.Cookie{Name: "oauthstate", Value: state})
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func TestOauthRedirector(t *testing.T) {
	config := &oauth2lib.Config{
		ClientID:    "test-client-id",
		RedirectURL: "http://localhost:8080/callback",
		Scopes:      []string{"email", "profile"},
		Endpoint: oauth2lib.Endpoint{
			AuthURL:  "https://provider.example.com/auth",
			TokenURL: "https://provider.example.com/token",
		},
	}
	redirector := oauth2.OauthRedirector(config)

	t.Run("redirects to OAuth provider", func(t *testing.T) {
		rr := httptest.NewRecorder()
		redirector(rr, httptest.NewRequest(http.MethodGet, "/login", nil))

		if rr.Code != http.StatusFound {
			t.Errorf("Expected status %d, got %d", http.StatusFound, rr.Code)
		}
		parsedURL, err := url.Parse(rr.Header().Get("Location"))
		if err != nil {
			t.Fatalf("Failed to parse redirect URL: %v", err)
		}
		if parsedURL.Host != "provider.example.com" {
			t.Errorf("Expected redirect to OAuth provider, got: %s", parsedURL)
		}
		query := parsedURL.Query()
		if query.Get("client_id") != "test-client-id" {
			t.Errorf("Expected client_id in URL")
		}
		if query.Get("redirect_uri") != "http://localhost:8080/callback" {
			t.Errorf("Expected redirect_uri in URL")
		}
		if query.Get("response_type") != "code" {
			t.Errorf("Expected response_type=code in URL")
		}

		var stateCookie *http.Cookie
		for _, c := range rr.Result().Cookies() {
			if c.Name == "oauthstate" {
				stateCookie = c
			}
		}
		if stateCookie == nil || stateCookie.Value != query.Get("state") {
			t.Errorf("Expected oauthstate cookie to match state %q", query.Get("state"))
		}
	})

	t.Run("stores callback URL", func(t *testing.T) {
		rr := httptest.NewRecorder()
		redirector(rr, httptest.NewRequest(http.MethodGet, "/login?callbackURL=/dashboard", nil))

		found := false
		for _, c := range rr.Result().Cookies() {
			if c.Name == "oauthCallbackURL" && c.Value == "/dashboard" {
				found = true
			}
		}
		if !found {
			t.Error("Expected oauthCallbackURL cookie")
		}
	})
}

func TestGoogleOAuth2Callback(t *testing.T) {
	mock := newMockOAuthServer(t)
	handled := &handledLogin{}
	googleAuth := oauth2.NewGoogleOAuth2("test-client-id", "test-client-secret", "http://localhost:8080/callback", handled.handle)
	mock.configure(googleAuth.BaseOAuth2)

	t.Run("rejects missing state cookie", func(t *testing.T) {
		*handled = handledLogin{}
		rr := callback(googleAuth.Handler(), "code=test_code&state=test_state", "")
		if rr.Code != http.StatusBadRequest {
			t.Errorf("Expected status %d, got %d", http.StatusBadRequest, rr.Code)
		}
		if handled.called {
			t.Error("HandleUser should not be called without state cookie")
		}
	})

	t.Run("rejects mismatched state", func(t *testing.T) {
		*handled = handledLogin{}
		rr := callback(googleAuth.Handler(), "code=test_code&state=wrong_state", "correct_state")
		if rr.Code != http.StatusBadRequest {
			t.Errorf("Expected status %d, got %d", http.StatusBadRequest, rr.Code)
		}
		if !strings.Contains(rr.Body.String(), "invalid oauth google state") {
			t.Errorf("Expected invalid oauth error, got: %s", rr.Body.String())
		}
	})

	t.Run("successful callback flow", func(t *testing.T) {
		*handled = handledLogin{}
		mock.userInfoResponse = map[string]any{"sub": "google123", "email": "user@gmail.com", "name": "Google User"}

		callback(googleAuth.Handler(), "code=valid_code&state=valid_state", "valid_state")

		if !handled.called {
			t.Fatal("HandleUser should have been called")
		}
		if handled.provider != "google" {
			t.Errorf("Expected provider 'google', got '%s'", handled.provider)
		}
		if handled.userInfo["email"] != "user@gmail.com" {
			t.Errorf("Expected email 'user@gmail.com', got '%v'", handled.userInfo["email"])
		}
		if handled.token.AccessToken != "mock_access_token" {
			t.Errorf("Expected exchanged access token, got %q", handled.token.AccessToken)
		}
		if mock.lastBearer != "Bearer mock_access_token" {
			t.Errorf("Expected bearer credential on userinfo, got %q", mock.lastBearer)
		}
	})

	t.Run("redirects on token exchange failure", func(t *testing.T) {
		*handled = handledLogin{}
		mock.tokenError = true
		defer func() { mock.tokenError = false }()

		rr := callback(googleAuth.Handler(), "code=bad_code&state=valid_state", "valid_state")
		if rr.Code != http.StatusTemporaryRedirect {
			t.Errorf("Expected redirect status, got %d", rr.Code)
		}
		if rr.Header().Get("Location") != "/auth/google/fail/" {
			t.Errorf("Expected failure redirect, got %q", rr.Header().Get("Location"))
		}
		if handled.called {
			t.Error("HandleUser should not be called on token exchange failure")
		}
	})

	t.Run("redirects on user info failure", func(t *testing.T) {
		*handled = handledLogin{}
		mock.userInfoError = true
		defer func() { mock.userInfoError = false }()

		rr := callback(googleAuth.Handler(), "code=valid_code&state=valid_state", "valid_state")
		if rr.Code != http.StatusTemporaryRedirect {
			t.Errorf("Expected redirect status, got %d", rr.Code)
		}
		if handled.called {
			t.Error("HandleUser should not be called on user info failure")
		}
	})
}

func TestGithubOAuth2Callback(t *testing.T) {
	mock := newMockOAuthServer(t)
	handled := &handledLogin{}
	githubAuth := oauth2.NewGithubOAuth2("test-client-id", "test-client-secret", "http://localhost:8080/callback", handled.handle)
	mock.configure(githubAuth.BaseOAuth2)
	githubAuth.EmailsURL = mock.server.URL + "/emails"

	t.Run("public email is kept", func(t *testing.T) {
		*handled = handledLogin{}
		mock.userInfoResponse = map[string]any{"id": 583231, "login": "octocat", "email": "octo@example.com"}
		mock.emailsResponse = []map[string]any{{"email": "other@example.com", "primary": true, "verified": true}}

		callback(githubAuth.Handler(), "code=valid_code&state=s", "s")
		if !handled.called {
			t.Fatal("HandleUser should have been called")
		}
		if handled.provider != "github" {
			t.Errorf("Expected provider 'github', got '%s'", handled.provider)
		}
		if handled.userInfo["email"] != "octo@example.com" {
			t.Errorf("Expected public email, got %v", handled.userInfo["email"])
		}
	})

	t.Run("hidden email comes from the primary verified address", func(t *testing.T) {
		*handled = handledLogin{}
		mock.userInfoResponse = map[string]any{"id": 583231, "login": "octocat", "email": nil}
		mock.emailsResponse = []map[string]any{
			{"email": "unverified@example.com", "primary": true, "verified": false},
			{"email": "secondary@example.com", "primary": false, "verified": true},
			{"email": "primary@example.com", "primary": true, "verified": true},
		}

		callback(githubAuth.Handler(), "code=valid_code&state=s", "s")
		if handled.userInfo["email"] != "primary@example.com" {
			t.Errorf("Expected primary email, got %v", handled.userInfo["email"])
		}
	})
}

func TestOAuthEndpointConfiguration(t *testing.T) {
	googleAuth := oauth2.NewGoogleOAuth2("id", "secret", "http://localhost:8080/callback", nil)
	if googleAuth.UserInfoURL != "https://www.googleapis.com/oauth2/v3/userinfo" {
		t.Errorf("unexpected Google UserInfoURL %q", googleAuth.UserInfoURL)
	}
	if googleAuth.HTTPClient != nil {
		t.Error("Expected HTTPClient to be nil by default")
	}

	githubAuth := oauth2.NewGithubOAuth2("id", "secret", "http://localhost:8080/callback", nil)
	if githubAuth.UserInfoURL != "https://api.github.com/user" {
		t.Errorf("unexpected GitHub UserInfoURL %q", githubAuth.UserInfoURL)
	}
	if cfg := githubAuth.OAuthConfig(); cfg.Endpoint.TokenURL != "https://github.com/login/oauth/access_token" {
		t.Errorf("unexpected GitHub token URL %q", cfg.Endpoint.TokenURL)
	}
}

func TestEnvironmentVariableDefaults(t *testing.T) {
	t.Setenv("OAUTH2_GITHUB_CLIENT_ID", " env-client-id ")
	t.Setenv("OAUTH2_GITHUB_CALLBACK_URL", "http://env.example.com/callback")

	githubAuth := oauth2.NewGithubOAuth2("", "explicit-secret", "", nil)
	if githubAuth.ClientID != "env-client-id" {
		t.Errorf("Expected ClientID from environment, got %q", githubAuth.ClientID)
	}
	if githubAuth.ClientSecret != "explicit-secret" {
		t.Errorf("Expected explicit secret to win, got %q", githubAuth.ClientSecret)
	}
	if githubAuth.OAuthConfig().RedirectURL != "http://env.example.com/callback" {
		t.Errorf("Expected callback from environment, got %q", githubAuth.OAuthConfig().RedirectURL)
	}

	googleAuth := oauth2.NewGoogleOAuth2("explicit-client-id", "", "", nil)
	if googleAuth.ClientID != "explicit-client-id" {
		t.Errorf("Expected explicit ClientID, got %q", googleAuth.ClientID)
	}

	cfg, err := oauth2.LoadClientConfig("OAUTH2_GITHUB_")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.CallbackURL != "http://env.example.com/callback" {
		t.Errorf("unexpected CallbackURL %q", cfg.CallbackURL)
	}
}

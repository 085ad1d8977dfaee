// Package oauth2 runs the browser side of the OAuth2 authorization code flow
// for Google and GitHub and hands the resulting token and userinfo to a
// HandleUserFunc, typically authrepo.AuthHandlers.SaveProviderLogin.
//
// Each provider serves two routes relative to where it is mounted:
//
//	GET /login      redirect to the provider (optional ?callbackURL=)
//	GET /callback/  exchange the code, fetch userinfo, call HandleUser
package oauth2

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/caarlos0/env/v11"
	"golang.org/x/oauth2"
)

// ClientConfig is read from the environment with a provider prefix, eg
// OAUTH2_GITHUB_CLIENT_ID.
type ClientConfig struct {
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	CallbackURL  string `env:"CALLBACK_URL"`
}

// LoadClientConfig parses the variables under prefix
func LoadClientConfig(prefix string) (ClientConfig, error) {
	var cfg ClientConfig
	err := env.ParseWithOptions(&cfg, env.Options{Prefix: prefix})
	return cfg, err
}

// withDefaults fills empty explicit values from the environment
func (c ClientConfig) withDefaults(prefix string) ClientConfig {
	fromEnv, err := LoadClientConfig(prefix)
	if err != nil {
		slog.Warn("error reading oauth2 environment", "prefix", prefix, "err", err)
		return c
	}
	if c.ClientID == "" {
		c.ClientID = strings.TrimSpace(fromEnv.ClientID)
	}
	if c.ClientSecret == "" {
		c.ClientSecret = strings.TrimSpace(fromEnv.ClientSecret)
	}
	if c.CallbackURL == "" {
		c.CallbackURL = strings.TrimSpace(fromEnv.CallbackURL)
	}
	return c
}

type BaseOAuth2 struct {
	ClientConfig
	Provider   string
	HandleUser HandleUserFunc

	// Where failed exchanges are redirected.  Defaults to /auth/<provider>/fail/
	AuthFailureUrl string

	// UserInfoURL is fetched with the access token as a Bearer credential.
	UserInfoURL string

	// HTTPClient is used for the token exchange and userinfo calls when set.
	HTTPClient *http.Client

	oauthConfig oauth2.Config
	mux         *http.ServeMux

	// completeUserInfo lets a provider add to the userinfo payload
	completeUserInfo func(ctx context.Context, token *oauth2.Token, userInfo map[string]any)
}

func newBaseOAuth2(provider string, cfg ClientConfig, endpoint oauth2.Endpoint, scopes []string, handleUser HandleUserFunc) *BaseOAuth2 {
	out := &BaseOAuth2{
		ClientConfig:   cfg,
		Provider:       provider,
		HandleUser:     handleUser,
		AuthFailureUrl: "/auth/" + provider + "/fail/",
		mux:            http.NewServeMux(),
		oauthConfig: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.CallbackURL,
			Scopes:       scopes,
			Endpoint:     endpoint,
		},
	}
	out.mux.HandleFunc("GET /login", OauthRedirector(&out.oauthConfig))
	out.mux.HandleFunc("GET /callback/", out.handleCallback)
	return out
}

// Handler serves the login and callback routes.  Mount it with
// http.StripPrefix.
func (b *BaseOAuth2) Handler() http.Handler {
	return b.mux
}

func (b *BaseOAuth2) SetHTTPClient(client *http.Client) {
	b.HTTPClient = client
}

func (b *BaseOAuth2) SetOAuthEndpoint(endpoint oauth2.Endpoint) {
	b.oauthConfig.Endpoint = endpoint
}

// OAuthConfig returns a copy of the x/oauth2 configuration in use
func (b *BaseOAuth2) OAuthConfig() oauth2.Config {
	return b.oauthConfig
}

func (b *BaseOAuth2) getHTTPClient() *http.Client {
	if b.HTTPClient != nil {
		return b.HTTPClient
	}
	return http.DefaultClient
}

// ExchangeContext carries HTTPClient into x/oauth2
func (b *BaseOAuth2) ExchangeContext(ctx context.Context) context.Context {
	if b.HTTPClient != nil {
		return context.WithValue(ctx, oauth2.HTTPClient, b.HTTPClient)
	}
	return ctx
}

func (b *BaseOAuth2) handleCallback(w http.ResponseWriter, r *http.Request) {
	oauthState, _ := r.Cookie("oauthstate")
	if oauthState == nil {
		http.Error(w, "OauthState is nil", http.StatusBadRequest)
		return
	}
	if r.FormValue("state") != oauthState.Value {
		http.SetCookie(w, &http.Cookie{Name: "oauthstate", Path: "/", MaxAge: -1})
		http.Error(w, fmt.Sprintf("invalid oauth %s state", b.Provider), http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	token, err := b.oauthConfig.Exchange(b.ExchangeContext(ctx), r.FormValue("code"))
	if err != nil {
		slog.Info("invalid code exchange", "provider", b.Provider, "err", err)
		http.Redirect(w, r, b.AuthFailureUrl, http.StatusTemporaryRedirect)
		return
	}

	userInfo, err := b.getUserInfo(ctx, token)
	if err != nil {
		slog.Info("error fetching userinfo", "provider", b.Provider, "err", err)
		http.Redirect(w, r, b.AuthFailureUrl, http.StatusTemporaryRedirect)
		return
	}
	if b.completeUserInfo != nil {
		b.completeUserInfo(ctx, token, userInfo)
	}
	b.HandleUser("oauth", b.Provider, token, userInfo, w, r)
}

func (b *BaseOAuth2) getJSON(ctx context.Context, url string, token *oauth2.Token, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	req.Header.Set("Accept", "application/json")

	response, err := b.getHTTPClient().Do(req)
	if err != nil {
		return fmt.Errorf("failed getting %s: %w", url, err)
	}
	defer response.Body.Close()

	contents, err := io.ReadAll(response.Body)
	if err != nil {
		return fmt.Errorf("failed read response: %w", err)
	}
	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned %d", url, response.StatusCode)
	}
	if err := json.Unmarshal(contents, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func (b *BaseOAuth2) getUserInfo(ctx context.Context, token *oauth2.Token) (map[string]any, error) {
	var userInfo map[string]any
	if err := b.getJSON(ctx, b.UserInfoURL, token, &userInfo); err != nil {
		return nil, err
	}
	if userInfo == nil {
		return nil, fmt.Errorf("empty userinfo from %s", b.Provider)
	}
	return userInfo, nil
}

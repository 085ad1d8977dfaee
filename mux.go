package authrepo

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/alexedwards/scs/v2"
	"golang.org/x/oauth2"
)

// Session keys used by AuthHandlers
const (
	SessionKeyUserID = "loggedInUserId"
)

// Prefix of the session store keys holding the last nc accepted per nonce
const digestCounterPrefix = "digest-nc:"

// AuthHandlers exposes a Repository over HTTP using scs sessions.
//
//	POST /login      password login (form or JSON)
//	POST /register   create an account and log in
//	GET  /digest     HTTP Digest challenge / login
//	POST /logout     destroy the session
//	GET  /session    the hydrated session of the logged in user
//
// SaveProviderLogin is meant to be handed to the oauth2 providers as their
// HandleUserFunc.
type AuthHandlers struct {
	mux        *http.ServeMux
	Repo       *Repository
	Session    *scs.SessionManager
	Middleware Middleware

	// Key mixed into digest nonces.  Must be set for /digest to work.
	DigestPrivateKey string

	// How long an issued digest nonce stays fresh.  Defaults to 300 seconds.
	NonceTimeoutSeconds int

	// Take the client address from X-Forwarded-For / X-Real-IP instead of
	// the connection.  Only set this behind a proxy that overwrites them.
	TrustProxyHeaders bool

	// guards the check-and-bump of digest nonce counters
	digestMu sync.Mutex

	// Field names read from login and register requests
	UsernameField string
	EmailField    string
	PasswordField string

	// Where SaveProviderLogin sends the browser when no callback cookie is set
	DefaultRedirectURL string
}

func NewAuthHandlers(repo *Repository, session *scs.SessionManager) *AuthHandlers {
	return (&AuthHandlers{Repo: repo, Session: session}).EnsureDefaults()
}

func (a *AuthHandlers) EnsureDefaults() *AuthHandlers {
	if a.Session == nil {
		a.Session = scs.New()
	}
	if a.NonceTimeoutSeconds <= 0 {
		a.NonceTimeoutSeconds = 300
	}
	if a.UsernameField == "" {
		a.UsernameField = "username"
	}
	if a.EmailField == "" {
		a.EmailField = "email"
	}
	if a.PasswordField == "" {
		a.PasswordField = "password"
	}
	if a.DefaultRedirectURL == "" {
		a.DefaultRedirectURL = "/"
	}
	if a.Middleware.SessionGetter == nil {
		a.Middleware.SessionGetter = func(r *http.Request, param string) any {
			return a.Session.GetString(r.Context(), param)
		}
	}
	if a.Middleware.UserParamName == "" {
		a.Middleware.UserParamName = SessionKeyUserID
	}
	if a.Middleware.Repo == nil {
		a.Middleware.Repo = a.Repo
	}
	return a
}

// Handler returns the routes wrapped in the session middleware.
func (a *AuthHandlers) Handler() http.Handler {
	return a.Session.LoadAndSave(a.Routes())
}

// Routes returns the bare routes for hosts that already run
// Session.LoadAndSave around their whole router.
func (a *AuthHandlers) Routes() http.Handler {
	return a.setupRoutes().mux
}

func (a *AuthHandlers) setupRoutes() *AuthHandlers {
	if a.mux == nil {
		a.EnsureDefaults()
		a.mux = http.NewServeMux()
		a.mux.HandleFunc("POST /login", a.HandleLogin)
		a.mux.HandleFunc("POST /register", a.HandleRegister)
		a.mux.HandleFunc("GET /digest", a.HandleDigest)
		a.mux.HandleFunc("POST /logout", a.HandleLogout)
		a.mux.Handle("GET /session", a.Middleware.EnsureUser(http.HandlerFunc(a.HandleSession)))
	}
	return a
}

// CurrentSession builds the AuthSession of the request, hydrated from the
// store if someone is logged in.
func (a *AuthHandlers) CurrentSession(r *http.Request) (*AuthSession, error) {
	session := &AuthSession{
		ID:         a.Session.Token(r.Context()),
		UserAuthID: a.Middleware.GetLoggedInUserId(r),
	}
	if session.UserAuthID == "" {
		return session, nil
	}
	session.IsAuthenticated = true
	if err := a.Repo.LoadUserAuth(session, nil); err != nil {
		return nil, err
	}
	return session, nil
}

// logIn binds the account to the session, renewing the token against fixation
func (a *AuthHandlers) logIn(user *UserAuth, r *http.Request) (*AuthSession, error) {
	if err := a.Session.RenewToken(r.Context()); err != nil {
		return nil, err
	}
	a.Session.Put(r.Context(), SessionKeyUserID, user.ID)
	session := &AuthSession{ID: a.Session.Token(r.Context()), UserAuthID: user.ID, IsAuthenticated: true}
	if err := a.Repo.LoadUserAuth(session, nil); err != nil {
		return nil, err
	}
	return session, nil
}

func (a *AuthHandlers) HandleSession(w http.ResponseWriter, r *http.Request) {
	session, err := a.CurrentSession(r)
	if err != nil {
		slog.Error("error loading session", "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "could not load session", "")
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (a *AuthHandlers) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if err := a.Session.Destroy(r.Context()); err != nil {
		slog.Warn("error destroying session", "err", err)
	}
	toURL := r.URL.Query().Get("to")
	if toURL == "" {
		writeJSON(w, http.StatusOK, map[string]any{"message": "logged out"})
		return
	}
	http.Redirect(w, r, toURL, http.StatusFound)
}

// SaveProviderLogin is called by an OAuth provider after a successful flow.
// The provider account is merged into the logged in account, if any, and the
// browser is sent to the callback URL the redirector stashed in a cookie.
func (a *AuthHandlers) SaveProviderLogin(authtype, provider string, token *oauth2.Token, userInfo map[string]any, w http.ResponseWriter, r *http.Request) {
	tokens := TokensFromUserInfo(provider, token, userInfo)
	session, err := a.CurrentSession(r)
	if err == nil {
		var id string
		id, err = a.Repo.CreateOrMergeAuthSession(session, tokens)
		if err == nil {
			session.UserAuthID = id
			_, err = a.logIn(&UserAuth{ID: id}, r)
		}
	}
	if err != nil {
		slog.Info("provider login failed", "provider", provider, "err", err)
		writeAuthError(w, err)
		return
	}

	callbackURL := a.DefaultRedirectURL
	if cookie, _ := r.Cookie("oauthCallbackURL"); cookie != nil && cookie.Value != "" {
		if u, err := url.Parse(cookie.Value); err == nil && u.Host == "" {
			callbackURL = cookie.Value
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:    "oauthCallbackURL",
		Value:   "",
		Path:    "/",
		MaxAge:  -1,
		Expires: time.Now(),
	})
	http.Redirect(w, r, callbackURL, http.StatusFound)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Warn("error encoding response", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, message, field string) {
	writeJSON(w, status, map[string]any{
		"error": message,
		"code":  code,
		"field": field,
	})
}

// writeAuthError maps repository errors onto HTTP statuses.  Storage faults
// are not described to the client.
func writeAuthError(w http.ResponseWriter, err error) {
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		slog.Error("storage failure", "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "internal error", "")
		return
	}
	status := http.StatusUnauthorized
	switch authErr.Code {
	case CodeInvalidArgument:
		status = http.StatusBadRequest
	case CodeDuplicateUser, CodeDuplicateEmail:
		status = http.StatusConflict
	}
	writeError(w, status, authErr.Code, authErr.Error(), authErr.Field)
}

// RequireRole wraps next so only logged in accounts holding role reach it.
// Others get 401 (not logged in) or 403.
func (a *AuthHandlers) RequireRole(role string, next http.Handler) http.Handler {
	return a.Middleware.EnsureUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session, err := a.CurrentSession(r)
		if err != nil {
			slog.Error("error loading session", "err", err)
			writeError(w, http.StatusInternalServerError, "internal", "could not load session", "")
			return
		}
		if !session.HasRole(role) {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "missing role", role)
			return
		}
		next.ServeHTTP(w, r)
	}))
}

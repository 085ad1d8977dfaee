package authrepo

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"
)

// parseForm reads the named fields from a urlencoded form or a JSON object
func parseForm(r *http.Request, fields ...string) (map[string]string, error) {
	out := make(map[string]string, len(fields))
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded") {
		if err := r.ParseForm(); err != nil {
			return nil, fmt.Errorf("error parsing form")
		}
		for _, f := range fields {
			out[f] = r.FormValue(f)
		}
		return out, nil
	}

	var data map[string]any
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil || data == nil {
		return nil, fmt.Errorf("invalid post body")
	}
	for _, f := range fields {
		if v, ok := data[f].(string); ok {
			out[f] = v
		}
	}
	return out, nil
}

// HandleLogin authenticates a username (or email) and password.  The
// username field may carry either.
func (a *AuthHandlers) HandleLogin(w http.ResponseWriter, r *http.Request) {
	form, err := parseForm(r, a.UsernameField, a.PasswordField)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidArgument, err.Error(), "")
		return
	}
	username, password := form[a.UsernameField], form[a.PasswordField]
	if username == "" || password == "" {
		writeError(w, http.StatusBadRequest, CodeInvalidArgument, "username and password required", a.UsernameField)
		return
	}

	user, err := a.Repo.TryAuthenticate(username, password)
	if err != nil {
		writeAuthError(w, err)
		return
	}
	session, err := a.logIn(user, r)
	if err != nil {
		writeAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// HandleDigest answers with a challenge until the client sends a valid
// Digest Authorization header, then logs the account in.  The last nc
// accepted for a nonce is kept in the session store, shared by all clients,
// so a replayed header fails whichever cookie it arrives with.
func (a *AuthHandlers) HandleDigest(w http.ResponseWriter, r *http.Request) {
	if a.DigestPrivateKey == "" {
		writeError(w, http.StatusNotImplemented, "digest_disabled", "digest authentication is not configured", "")
		return
	}

	ip := a.clientIP(r)
	headers := ParseDigestHeader(r.Header.Get("Authorization"))
	if headers == nil {
		a.challenge(w, r, ip, false)
		return
	}
	headers[HeaderMethod] = r.Method
	headers[HeaderUserHostAddress] = ip

	user, err := a.acceptDigest(headers)
	if err != nil {
		if !IsNotFound(err) {
			writeAuthError(w, err)
			return
		}
		stale := ValidateNonce(headers[HeaderNonce], ip, a.DigestPrivateKey) &&
			IsStaleNonce(headers[HeaderNonce], a.NonceTimeoutSeconds, a.Repo.Now())
		a.challenge(w, r, ip, stale)
		return
	}

	session, err := a.logIn(user, r)
	if err != nil {
		writeAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// acceptDigest validates headers against the last nc recorded for their
// nonce and records the new one on success.
func (a *AuthHandlers) acceptDigest(headers map[string]string) (*UserAuth, error) {
	a.digestMu.Lock()
	defer a.digestMu.Unlock()

	key := digestCounterPrefix + headers[HeaderNonce]
	last, found, err := a.Session.Store.Find(key)
	if err != nil {
		return nil, err
	}
	sequence := ""
	if found {
		sequence = string(last)
	}

	user, err := a.Repo.TryAuthenticateDigest(headers, a.DigestPrivateKey, a.NonceTimeoutSeconds, sequence)
	if err != nil {
		return nil, err
	}
	expiry := time.Now().Add(time.Duration(a.NonceTimeoutSeconds) * time.Second)
	if err := a.Session.Store.Commit(key, []byte(headers[HeaderNc]), expiry); err != nil {
		return nil, err
	}
	return user, nil
}

func (a *AuthHandlers) challenge(w http.ResponseWriter, r *http.Request, ip string, stale bool) {
	nonce := CreateNonce(ip, a.DigestPrivateKey, a.Repo.Now())
	w.Header().Set("WWW-Authenticate", DigestChallenge(a.Repo.Realm, nonce, stale))
	slog.Debug("issued digest challenge", "stale", stale, "path", r.URL.Path)
	writeError(w, http.StatusUnauthorized, CodeNotFound, "digest authentication required", "")
}

// clientIP is the connection's address unless proxy headers are trusted
func (a *AuthHandlers) clientIP(r *http.Request) string {
	if a.TrustProxyHeaders {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			return strings.TrimSpace(first)
		}
		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			return strings.TrimSpace(xri)
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

package authrepo

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

type userParamNameKey string

// Middleware resolves the logged in account of a request, from the session
// first and from HTTP Basic credentials second.
type Middleware struct {
	UserParamName    string
	CallbackURLParam string
	SessionGetter    func(r *http.Request, param string) any
	GetRedirURL      func(r *http.Request) string

	// Repo verifies Basic credentials.  Leave nil to only trust the session.
	Repo *Repository
}

// EnsureReasonableDefaults fills in unset fields
func (a *Middleware) EnsureReasonableDefaults() {
	if a.UserParamName == "" {
		a.UserParamName = SessionKeyUserID
	}
	if a.CallbackURLParam == "" {
		a.CallbackURLParam = "callbackURL"
	}
}

// GetLoggedInUserId returns the account ID of the request or ""
func (a *Middleware) GetLoggedInUserId(r *http.Request) string {
	a.EnsureReasonableDefaults()
	if v, ok := r.Context().Value(userParamNameKey(a.UserParamName)).(string); ok && v != "" {
		return v
	}

	if a.SessionGetter != nil {
		if userParam, ok := a.SessionGetter(r, a.UserParamName).(string); ok && userParam != "" {
			return userParam
		}
	}

	if a.Repo == nil {
		return ""
	}
	username, password, ok := r.BasicAuth()
	if !ok {
		return ""
	}
	user, err := a.Repo.TryAuthenticate(username, password)
	if err != nil {
		if !IsNotFound(err) {
			slog.Warn("error verifying basic credentials", "error", err)
		}
		return ""
	}
	return user.ID
}

// ExtractUser makes the logged in account ID (possibly "") available downstream
func (a *Middleware) ExtractUser(next http.Handler) http.Handler {
	a.EnsureReasonableDefaults()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, a.setLoggedInUserId(a.GetLoggedInUserId(r), r))
	})
}

// EnsureUser rejects requests without a logged in account, redirecting to
// GetRedirURL when one is configured.
func (a *Middleware) EnsureUser(next http.Handler) http.Handler {
	a.EnsureReasonableDefaults()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userId := a.GetLoggedInUserId(r)
		if userId != "" {
			next.ServeHTTP(w, a.setLoggedInUserId(userId, r))
			return
		}

		redirUrl := ""
		if a.GetRedirURL != nil {
			redirUrl = a.GetRedirURL(r)
		}
		if redirUrl == "" {
			http.Error(w, "Login Required", http.StatusUnauthorized)
			return
		}
		encodedUrl := strings.Replace(url.QueryEscape(r.URL.Path), "+", "%20", -1)
		http.Redirect(w, r, fmt.Sprintf("%s?%s=%s", redirUrl, a.CallbackURLParam, encodedUrl), http.StatusFound)
	})
}

// LoggedInUserId returns the account ID that ExtractUser or EnsureUser stored.
func (a *Middleware) LoggedInUserId(ctx context.Context) string {
	v, _ := ctx.Value(userParamNameKey(a.UserParamName)).(string)
	return v
}

func (a *Middleware) setLoggedInUserId(userId string, r *http.Request) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), userParamNameKey(a.UserParamName), userId))
}

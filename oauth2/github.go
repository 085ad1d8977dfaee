package oauth2

import (
	"context"
	"log/slog"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

type GithubOAuth2 struct {
	*BaseOAuth2

	// EmailsURL lists the account's addresses.  Consulted when the public
	// profile hides the email.
	EmailsURL string
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

// NewGithubOAuth2 falls back to OAUTH2_GITHUB_CLIENT_ID, _CLIENT_SECRET and
// _CALLBACK_URL for empty arguments.
func NewGithubOAuth2(clientId string, clientSecret string, callbackUrl string, handleUser HandleUserFunc) *GithubOAuth2 {
	cfg := ClientConfig{ClientID: clientId, ClientSecret: clientSecret, CallbackURL: callbackUrl}.withDefaults("OAUTH2_GITHUB_")
	out := &GithubOAuth2{
		BaseOAuth2: newBaseOAuth2("github", cfg, github.Endpoint, []string{"read:user", "user:email"}, handleUser),
		EmailsURL:  "https://api.github.com/user/emails",
	}
	out.UserInfoURL = "https://api.github.com/user"
	out.completeUserInfo = out.addPrimaryEmail
	return out
}

// addPrimaryEmail fills userInfo["email"] from the verified primary address
func (g *GithubOAuth2) addPrimaryEmail(ctx context.Context, token *oauth2.Token, userInfo map[string]any) {
	if email, _ := userInfo["email"].(string); email != "" || g.EmailsURL == "" {
		return
	}
	var emails []githubEmail
	if err := g.getJSON(ctx, g.EmailsURL, token, &emails); err != nil {
		slog.Info("error listing github emails", "err", err)
		return
	}
	for _, e := range emails {
		if e.Primary && e.Verified {
			userInfo["email"] = e.Email
			return
		}
	}
}

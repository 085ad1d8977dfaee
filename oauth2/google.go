package oauth2

import (
	"golang.org/x/oauth2/google"
)

type GoogleOAuth2 struct {
	*BaseOAuth2
}

// NewGoogleOAuth2 falls back to OAUTH2_GOOGLE_CLIENT_ID, _CLIENT_SECRET and
// _CALLBACK_URL for empty arguments.
func NewGoogleOAuth2(clientId string, clientSecret string, callbackUrl string, handleUser HandleUserFunc) *GoogleOAuth2 {
	cfg := ClientConfig{ClientID: clientId, ClientSecret: clientSecret, CallbackURL: callbackUrl}.withDefaults("OAUTH2_GOOGLE_")
	out := &GoogleOAuth2{
		BaseOAuth2: newBaseOAuth2("google", cfg, google.Endpoint, []string{
			"openid",
			"https://www.googleapis.com/auth/userinfo.email",
			"https://www.googleapis.com/auth/userinfo.profile",
		}, handleUser),
	}
	out.UserInfoURL = "https://www.googleapis.com/oauth2/v3/userinfo"
	return out
}

package authrepo

import (
	"fmt"
	"strconv"
	"time"

	"golang.org/x/oauth2"
)

// TokensFromUserInfo builds OAuthTokens from an x/oauth2 token and the
// provider's userinfo payload.  Keys understood:
//
//	id | sub                          -> UserID
//	login | preferred_username | username -> UserName
//	name, given_name, family_name, email
//
// Refresh token, token type, expiry and any avatar URL go into Items.
func TokensFromUserInfo(provider string, token *oauth2.Token, userInfo map[string]any) *OAuthTokens {
	out := &OAuthTokens{
		Provider:    provider,
		UserID:      firstString(userInfo, "id", "sub"),
		UserName:    firstString(userInfo, "login", "preferred_username", "username"),
		DisplayName: firstString(userInfo, "name"),
		FirstName:   firstString(userInfo, "given_name", "first_name"),
		LastName:    firstString(userInfo, "family_name", "last_name"),
		Email:       firstString(userInfo, "email"),
		Items:       map[string]string{},
	}

	if avatar := firstString(userInfo, "avatar_url", "picture"); avatar != "" {
		out.Items["avatar_url"] = avatar
	}
	if token != nil {
		out.AccessToken = token.AccessToken
		if token.RefreshToken != "" {
			out.Items["refresh_token"] = token.RefreshToken
		}
		if token.TokenType != "" {
			out.Items["token_type"] = token.TokenType
		}
		if !token.Expiry.IsZero() {
			out.Items["expiry"] = token.Expiry.UTC().Format(time.RFC3339)
		}
	}
	if len(out.Items) == 0 {
		out.Items = nil
	}
	return out
}

// firstString returns the first non empty value among keys.  JSON numbers
// (GitHub user ids) are rendered without a fraction.
func firstString(m map[string]any, keys ...string) string {
	for _, key := range keys {
		switch v := m[key].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		case int, int64, int32:
			return fmt.Sprintf("%d", v)
		}
	}
	return ""
}

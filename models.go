package authrepo

import "time"

// UserAuth is the canonical account record.  At least one of UserName or
// Email is set.  Both are unique across all records when present.
type UserAuth struct {
	ID       string `json:"id"`
	UserName string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`

	PrimaryEmail string `json:"primary_email,omitempty"`
	DisplayName  string `json:"display_name,omitempty"`
	FirstName    string `json:"first_name,omitempty"`
	LastName     string `json:"last_name,omitempty"`

	Salt          string `json:"salt,omitempty"`
	PasswordHash  string `json:"password_hash,omitempty"`
	DigestHA1Hash string `json:"digest_ha1_hash,omitempty"`

	Roles       []string          `json:"roles,omitempty"`
	Permissions []string          `json:"permissions,omitempty"`
	Meta        map[string]string `json:"meta,omitempty"`

	CreatedDate  time.Time `json:"created_date"`
	ModifiedDate time.Time `json:"modified_date"`
}

// Clone returns a deep copy so callers can mutate without touching stored state.
func (u *UserAuth) Clone() *UserAuth {
	if u == nil {
		return nil
	}
	out := *u
	out.Roles = cloneStrings(u.Roles)
	out.Permissions = cloneStrings(u.Permissions)
	out.Meta = cloneItems(u.Meta)
	return &out
}

// UserOAuthProvider links one external provider account to a UserAuth.
// (Provider, UserID) is unique.
type UserOAuthProvider struct {
	ID         string `json:"id"`
	UserAuthID string `json:"user_auth_id"`
	Provider   string `json:"provider"`
	UserID     string `json:"user_id"`

	UserName    string `json:"username,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	FirstName   string `json:"first_name,omitempty"`
	LastName    string `json:"last_name,omitempty"`
	Email       string `json:"email,omitempty"`

	RequestToken       string `json:"request_token,omitempty"`
	RequestTokenSecret string `json:"request_token_secret,omitempty"`
	AccessToken        string `json:"access_token,omitempty"`
	AccessTokenSecret  string `json:"access_token_secret,omitempty"`

	Items map[string]string `json:"items,omitempty"`

	CreatedDate  time.Time `json:"created_date"`
	ModifiedDate time.Time `json:"modified_date"`
}

func (p *UserOAuthProvider) Clone() *UserOAuthProvider {
	if p == nil {
		return nil
	}
	out := *p
	out.Items = cloneItems(p.Items)
	return &out
}

// OAuthTokens is what a provider login hands to the repository.
type OAuthTokens struct {
	Provider string
	UserID   string

	UserName    string
	DisplayName string
	FirstName   string
	LastName    string
	Email       string

	RequestToken       string
	RequestTokenSecret string
	AccessToken        string
	AccessTokenSecret  string

	Items map[string]string
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string(nil), in...)
}

func cloneItems(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

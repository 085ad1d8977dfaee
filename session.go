package authrepo

import "time"

// AuthSession is the in-memory view of a logged in user held by the host.
type AuthSession struct {
	// ID is owned by the host's session layer and never replaced by hydration
	ID string `json:"id"`

	UserAuthID   string `json:"user_auth_id,omitempty"`
	UserAuthName string `json:"user_auth_name,omitempty"`

	UserName     string `json:"username,omitempty"`
	Email        string `json:"email,omitempty"`
	PrimaryEmail string `json:"primary_email,omitempty"`
	DisplayName  string `json:"display_name,omitempty"`
	FirstName    string `json:"first_name,omitempty"`
	LastName     string `json:"last_name,omitempty"`

	Roles       []string `json:"roles,omitempty"`
	Permissions []string `json:"permissions,omitempty"`

	IsAuthenticated bool      `json:"is_authenticated"`
	CreatedAt       time.Time `json:"created_at"`
	LastModified    time.Time `json:"last_modified"`

	ProviderOAuthAccess []*UserOAuthProvider `json:"provider_oauth_access,omitempty"`
}

// GetProvider returns the attached link for a provider, if any.
func (s *AuthSession) GetProvider(provider string) *UserOAuthProvider {
	for _, link := range s.ProviderOAuthAccess {
		if link.Provider == provider {
			return link
		}
	}
	return nil
}

// HydrateSession copies a stored account and its provider links onto session.
// Profile fields are overwritten with the stored values.  The session ID is
// kept as is.
func HydrateSession(session *AuthSession, user *UserAuth, links []*UserOAuthProvider) {
	if session == nil || user == nil {
		return
	}
	session.UserAuthID = user.ID
	session.UserAuthName = user.UserName
	if session.UserAuthName == "" {
		session.UserAuthName = user.Email
	}

	session.UserName = user.UserName
	session.Email = user.Email
	session.PrimaryEmail = user.PrimaryEmail
	session.DisplayName = user.DisplayName
	session.FirstName = user.FirstName
	session.LastName = user.LastName
	session.Roles = cloneStrings(user.Roles)
	session.Permissions = cloneStrings(user.Permissions)
	if session.CreatedAt.IsZero() {
		session.CreatedAt = user.CreatedDate
	}
	session.LastModified = user.ModifiedDate

	session.ProviderOAuthAccess = make([]*UserOAuthProvider, 0, len(links))
	for _, link := range links {
		session.ProviderOAuthAccess = append(session.ProviderOAuthAccess, link.Clone())
	}
}

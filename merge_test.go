package authrepo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPopulateProviderFromTokens(t *testing.T) {
	link := &UserOAuthProvider{
		Provider:    "github",
		UserID:      "42",
		DisplayName: "Kept",
		Items:       map[string]string{"scope": "old"},
	}
	PopulateProviderFromTokens(link, &OAuthTokens{
		Provider:          "ignored",
		UserID:            "ignored",
		DisplayName:       "Replaced?",
		FirstName:         "Octo",
		AccessToken:       "token",
		AccessTokenSecret: "secret",
		Items:             map[string]string{"scope": "new", "login": "octocat"},
	})

	assert.Equal(t, "github", link.Provider)
	assert.Equal(t, "42", link.UserID)
	assert.Equal(t, "Kept", link.DisplayName)
	assert.Equal(t, "Octo", link.FirstName)
	assert.Equal(t, "token", link.AccessToken)
	assert.Equal(t, "secret", link.AccessTokenSecret)
	assert.Equal(t, map[string]string{"scope": "old", "login": "octocat"}, link.Items)

	PopulateProviderFromTokens(nil, &OAuthTokens{})
	PopulateProviderFromTokens(link, nil)
}

func TestPopulateUserAuthFromProvider(t *testing.T) {
	user := &UserAuth{UserName: "john", LastName: "Smith"}
	PopulateUserAuthFromProvider(user, &UserOAuthProvider{
		UserName:    "octocat",
		DisplayName: "The Octocat",
		FirstName:   "Octo",
		LastName:    "Cat",
		Email:       "octo@github.com",
	})
	assert.Equal(t, "john", user.UserName)
	assert.Empty(t, user.Email)
	assert.Equal(t, "octo@github.com", user.PrimaryEmail)
	assert.Equal(t, "The Octocat", user.DisplayName)
	assert.Equal(t, "Octo", user.FirstName)
	assert.Equal(t, "Smith", user.LastName)
}

func TestPopulateUserAuthFromSession(t *testing.T) {
	user := &UserAuth{DisplayName: "Stored", Roles: []string{"user"}}
	session := &AuthSession{UserName: "john", DisplayName: "Session", Roles: []string{"admin"}, Permissions: []string{"read"}}
	PopulateUserAuthFromSession(user, session)
	assert.Equal(t, "john", user.UserName)
	assert.Equal(t, "Stored", user.DisplayName)
	assert.Equal(t, []string{"user"}, user.Roles)
	assert.Equal(t, []string{"read"}, user.Permissions)

	session.Permissions[0] = "mutated"
	assert.Equal(t, []string{"read"}, user.Permissions)
}

func TestHydrateSession(t *testing.T) {
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	user := &UserAuth{
		ID:           "u1",
		Email:        "john@example.com",
		DisplayName:  "John",
		Roles:        []string{"admin"},
		CreatedDate:  created,
		ModifiedDate: created.Add(time.Hour),
	}
	links := []*UserOAuthProvider{{ID: "l1", Provider: "github", Items: map[string]string{"a": "b"}}}
	session := &AuthSession{ID: "sess", DisplayName: "Old", UserName: "stale"}

	HydrateSession(session, user, links)
	assert.Equal(t, "sess", session.ID)
	assert.Equal(t, "u1", session.UserAuthID)
	assert.Equal(t, "john@example.com", session.UserAuthName, "email stands in for a missing username")
	assert.Equal(t, "John", session.DisplayName)
	assert.Empty(t, session.UserName)
	assert.Equal(t, created, session.CreatedAt)
	assert.Equal(t, created.Add(time.Hour), session.LastModified)
	assert.Len(t, session.ProviderOAuthAccess, 1)

	links[0].Items["a"] = "changed"
	assert.Equal(t, "b", session.ProviderOAuthAccess[0].Items["a"], "links are copied")
	assert.Nil(t, session.GetProvider("google"))

	HydrateSession(session, nil, nil)
	assert.Equal(t, "u1", session.UserAuthID)
}

func TestUserAuthClone(t *testing.T) {
	user := &UserAuth{ID: "u1", Roles: []string{"a"}, Meta: map[string]string{"k": "v"}}
	clone := user.Clone()
	clone.Roles[0] = "b"
	clone.Meta["k"] = "w"
	assert.Equal(t, "a", user.Roles[0])
	assert.Equal(t, "v", user.Meta["k"])
	assert.Nil(t, (*UserAuth)(nil).Clone())
}

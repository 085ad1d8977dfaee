// Package storetest is a conformance suite every ar.IdentityStore must pass.
//
//	func TestFSIdentityStore(t *testing.T) {
//	    storetest.RunIdentityStoreTests(t, func(t *testing.T) ar.IdentityStore {
//	        return fs.NewFSIdentityStore(t.TempDir())
//	    })
//	}
package storetest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ar "github.com/panyam/authrepo"
)

// NewStoreFunc returns an empty store with its schema in place.
type NewStoreFunc func(t *testing.T) ar.IdentityStore

var baseTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// RunIdentityStoreTests runs the full suite against fresh stores from newStore.
func RunIdentityStoreTests(t *testing.T, newStore NewStoreFunc) {
	t.Run("UserAuthRoundTrip", func(t *testing.T) { testUserAuthRoundTrip(t, newStore(t)) })
	t.Run("MissingUserAuth", func(t *testing.T) { testMissingUserAuth(t, newStore(t)) })
	t.Run("UpdateKeepsID", func(t *testing.T) { testUpdateKeepsID(t, newStore(t)) })
	t.Run("UniqueUserName", func(t *testing.T) { testUniqueUserName(t, newStore(t)) })
	t.Run("UniqueEmail", func(t *testing.T) { testUniqueEmail(t, newStore(t)) })
	t.Run("EmptyKeysNotUnique", func(t *testing.T) { testEmptyKeysNotUnique(t, newStore(t)) })
	t.Run("ProviderLinkUpsert", func(t *testing.T) { testProviderLinkUpsert(t, newStore(t)) })
	t.Run("ProviderLinksOrdered", func(t *testing.T) { testProviderLinksOrdered(t, newStore(t)) })
	t.Run("ResetSchema", func(t *testing.T) { testResetSchema(t, newStore(t)) })
}

func sameTime(t *testing.T, want, got time.Time) {
	t.Helper()
	assert.True(t, want.Equal(got), "want %v, got %v", want, got)
}

func newUser(userName, email string) *ar.UserAuth {
	return &ar.UserAuth{
		UserName:      userName,
		Email:         email,
		DisplayName:   "Display " + userName,
		PasswordHash:  "hash",
		Salt:          "salt",
		DigestHA1Hash: "ha1",
		Roles:         []string{"admin"},
		Meta:          map[string]string{"k": "v"},
		CreatedDate:   baseTime,
		ModifiedDate:  baseTime,
	}
}

func testUserAuthRoundTrip(t *testing.T, store ar.IdentityStore) {
	user := newUser("john", "john@example.com")
	require.NoError(t, store.SaveUserAuth(user))
	require.NotEmpty(t, user.ID, "store must assign an id")

	got, err := store.GetUserAuth(user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
	assert.Equal(t, "john", got.UserName)
	assert.Equal(t, "john@example.com", got.Email)
	assert.Equal(t, "Display john", got.DisplayName)
	assert.Equal(t, "hash", got.PasswordHash)
	assert.Equal(t, "salt", got.Salt)
	assert.Equal(t, "ha1", got.DigestHA1Hash)
	assert.Equal(t, []string{"admin"}, got.Roles)
	assert.Equal(t, map[string]string{"k": "v"}, got.Meta)
	sameTime(t, baseTime, got.CreatedDate)
	sameTime(t, baseTime, got.ModifiedDate)

	byName, err := store.GetUserAuthByUserName("john")
	require.NoError(t, err)
	assert.Equal(t, user.ID, byName.ID)

	byEmail, err := store.GetUserAuthByEmail("john@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, byEmail.ID)
}

func testMissingUserAuth(t *testing.T, store ar.IdentityStore) {
	_, err := store.GetUserAuth("missing")
	assert.ErrorIs(t, err, ar.ErrNotFound)
	_, err = store.GetUserAuthByUserName("nobody")
	assert.ErrorIs(t, err, ar.ErrNotFound)
	_, err = store.GetUserAuthByEmail("nobody@example.com")
	assert.ErrorIs(t, err, ar.ErrNotFound)
	_, err = store.GetProviderLink("github", "42")
	assert.ErrorIs(t, err, ar.ErrNotFound)

	links, err := store.GetProviderLinks("missing")
	require.NoError(t, err)
	assert.Empty(t, links)
}

func testUpdateKeepsID(t *testing.T, store ar.IdentityStore) {
	user := newUser("john", "john@example.com")
	require.NoError(t, store.SaveUserAuth(user))
	id := user.ID

	user.UserName = "johnny"
	user.Email = "johnny@example.com"
	user.ModifiedDate = baseTime.Add(time.Hour)
	require.NoError(t, store.SaveUserAuth(user))
	assert.Equal(t, id, user.ID)

	got, err := store.GetUserAuthByUserName("johnny")
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
	sameTime(t, baseTime.Add(time.Hour), got.ModifiedDate)

	_, err = store.GetUserAuthByUserName("john")
	assert.ErrorIs(t, err, ar.ErrNotFound, "old username must be released")
	_, err = store.GetUserAuthByEmail("john@example.com")
	assert.ErrorIs(t, err, ar.ErrNotFound, "old email must be released")

	// the released name is free for someone else
	require.NoError(t, store.SaveUserAuth(newUser("john", "other@example.com")))
}

func testUniqueUserName(t *testing.T, store ar.IdentityStore) {
	require.NoError(t, store.SaveUserAuth(newUser("john", "john@example.com")))

	err := store.SaveUserAuth(newUser("john", "different@example.com"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ar.ErrDuplicateUser)

	_, err = store.GetUserAuthByEmail("different@example.com")
	assert.ErrorIs(t, err, ar.ErrNotFound, "rejected record must not be visible")
}

func testUniqueEmail(t *testing.T, store ar.IdentityStore) {
	require.NoError(t, store.SaveUserAuth(newUser("john", "john@example.com")))

	err := store.SaveUserAuth(newUser("jane", "john@example.com"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ar.ErrDuplicateEmail)

	_, err = store.GetUserAuthByUserName("jane")
	assert.ErrorIs(t, err, ar.ErrNotFound, "rejected record must not be visible")
}

func testEmptyKeysNotUnique(t *testing.T, store ar.IdentityStore) {
	first := &ar.UserAuth{DisplayName: "first", CreatedDate: baseTime, ModifiedDate: baseTime}
	second := &ar.UserAuth{DisplayName: "second", CreatedDate: baseTime, ModifiedDate: baseTime}
	require.NoError(t, store.SaveUserAuth(first))
	require.NoError(t, store.SaveUserAuth(second))
	assert.NotEqual(t, first.ID, second.ID)
}

func testProviderLinkUpsert(t *testing.T, store ar.IdentityStore) {
	user := newUser("john", "john@example.com")
	require.NoError(t, store.SaveUserAuth(user))

	link := &ar.UserOAuthProvider{
		UserAuthID:   user.ID,
		Provider:     "github",
		UserID:       "42",
		AccessToken:  "token-1",
		Items:        map[string]string{"scope": "read:user"},
		CreatedDate:  baseTime,
		ModifiedDate: baseTime,
	}
	require.NoError(t, store.SaveProviderLink(link))
	require.NotEmpty(t, link.ID)

	again := &ar.UserOAuthProvider{
		UserAuthID:   user.ID,
		Provider:     "github",
		UserID:       "42",
		AccessToken:  "token-2",
		CreatedDate:  baseTime,
		ModifiedDate: baseTime.Add(time.Minute),
	}
	require.NoError(t, store.SaveProviderLink(again))
	assert.Equal(t, link.ID, again.ID, "same provider account must reuse the link")

	got, err := store.GetProviderLink("github", "42")
	require.NoError(t, err)
	assert.Equal(t, link.ID, got.ID)
	assert.Equal(t, user.ID, got.UserAuthID)
	assert.Equal(t, "token-2", got.AccessToken)

	links, err := store.GetProviderLinks(user.ID)
	require.NoError(t, err)
	assert.Len(t, links, 1)

	// items survive verbatim
	link.Items = map[string]string{"scope": "read:user", "avatar_url": "https://example.com/a.png"}
	require.NoError(t, store.SaveProviderLink(link))
	got, err = store.GetProviderLink("github", "42")
	require.NoError(t, err)
	assert.Equal(t, link.Items, got.Items)
}

func testProviderLinksOrdered(t *testing.T, store ar.IdentityStore) {
	user := newUser("john", "john@example.com")
	require.NoError(t, store.SaveUserAuth(user))

	providers := []struct {
		name     string
		modified time.Time
	}{
		{"twitter", baseTime.Add(3 * time.Hour)},
		{"github", baseTime.Add(1 * time.Hour)},
		{"google", baseTime.Add(2 * time.Hour)},
	}
	for _, p := range providers {
		require.NoError(t, store.SaveProviderLink(&ar.UserOAuthProvider{
			UserAuthID:   user.ID,
			Provider:     p.name,
			UserID:       "ext-" + p.name,
			CreatedDate:  baseTime,
			ModifiedDate: p.modified,
		}))
	}
	// a link of someone else
	require.NoError(t, store.SaveProviderLink(&ar.UserOAuthProvider{
		UserAuthID: "someone-else", Provider: "github", UserID: "other",
		CreatedDate: baseTime, ModifiedDate: baseTime,
	}))

	links, err := store.GetProviderLinks(user.ID)
	require.NoError(t, err)
	require.Len(t, links, 3)
	assert.Equal(t, "github", links[0].Provider)
	assert.Equal(t, "google", links[1].Provider)
	assert.Equal(t, "twitter", links[2].Provider)
}

func testResetSchema(t *testing.T, store ar.IdentityStore) {
	user := newUser("john", "john@example.com")
	require.NoError(t, store.SaveUserAuth(user))
	require.NoError(t, store.SaveProviderLink(&ar.UserOAuthProvider{
		UserAuthID: user.ID, Provider: "github", UserID: "42",
		CreatedDate: baseTime, ModifiedDate: baseTime,
	}))

	require.NoError(t, store.ResetSchema())

	_, err := store.GetUserAuthByUserName("john")
	assert.ErrorIs(t, err, ar.ErrNotFound)
	_, err = store.GetProviderLink("github", "42")
	assert.ErrorIs(t, err, ar.ErrNotFound)

	require.NoError(t, store.SaveUserAuth(newUser("john", "john@example.com")))
}

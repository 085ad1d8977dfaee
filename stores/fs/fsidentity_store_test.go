package fs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ar "github.com/panyam/authrepo"
	"github.com/panyam/authrepo/stores/storetest"
)

func newTestStore(t *testing.T) *FSIdentityStore {
	store := NewFSIdentityStore(t.TempDir())
	require.NoError(t, store.EnsureSchema())
	return store
}

func TestFSIdentityStore(t *testing.T) {
	storetest.RunIdentityStoreTests(t, func(t *testing.T) ar.IdentityStore {
		return newTestStore(t)
	})
}

func TestFSIdentityStore_IndexFilesAreHexNamed(t *testing.T) {
	store := newTestStore(t)
	user := &ar.UserAuth{UserName: "John", Email: "../escape@example.com"}
	require.NoError(t, store.SaveUserAuth(user))

	// "John" in hex
	_, err := os.Stat(filepath.Join(store.StoragePath, dirUserNameIndex, "4a6f686e.json"))
	assert.NoError(t, err)

	// case differs, so a distinct key
	_, err = store.GetUserAuthByUserName("john")
	assert.ErrorIs(t, err, ar.ErrNotFound)

	got, err := store.GetUserAuthByEmail("../escape@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
}

func TestFSIdentityStore_DuplicateEmailReleasesNewUserName(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.SaveUserAuth(&ar.UserAuth{UserName: "john", Email: "shared@example.com"}))

	err := store.SaveUserAuth(&ar.UserAuth{UserName: "jane", Email: "shared@example.com"})
	require.ErrorIs(t, err, ar.ErrDuplicateEmail)

	// "jane" must not stay reserved by the failed write
	require.NoError(t, store.SaveUserAuth(&ar.UserAuth{UserName: "jane", Email: "jane@example.com"}))
}

func TestFSIdentityStore_DuplicateEmailWithoutUserName(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.SaveUserAuth(&ar.UserAuth{UserName: "john", Email: "shared@example.com"}))

	err := store.SaveUserAuth(&ar.UserAuth{Email: "shared@example.com"})
	require.ErrorIs(t, err, ar.ErrDuplicateEmail)
	assert.Equal(t, ar.NewDuplicateEmailError("shared@example.com").Error(), err.Error())

	entries, err := os.ReadDir(filepath.Join(store.StoragePath, dirUserNameIndex))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "6a6f686e.json", entries[0].Name())
}

func TestFSIdentityStore_CorruptRecord(t *testing.T) {
	store := newTestStore(t)
	path := store.userAuthPath("broken")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	_, err := store.GetUserAuth("broken")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ar.ErrNotFound)
}

//go:build !wasm

package gae

import (
	"context"
	"os"
	"testing"
	"time"

	"cloud.google.com/go/datastore"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ar "github.com/panyam/authrepo"
	"github.com/panyam/authrepo/stores/storetest"
)

// TestIdentityStore runs against the Datastore emulator when
// DATASTORE_EMULATOR_HOST is set (gcloud beta emulators datastore start).
func TestIdentityStore(t *testing.T) {
	if os.Getenv("DATASTORE_EMULATOR_HOST") == "" {
		t.Skip("DATASTORE_EMULATOR_HOST not set, skipping datastore tests")
	}
	ctx := context.Background()
	client, err := datastore.NewClient(ctx, "authrepo-test")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	storetest.RunIdentityStoreTests(t, func(t *testing.T) ar.IdentityStore {
		return NewIdentityStore(client, "test-"+uuid.NewString()).WithContext(ctx)
	})
}

func TestUserAuthEntityRoundTrip(t *testing.T) {
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	user := &ar.UserAuth{
		ID:           "6f1c",
		UserName:     "john",
		Email:        "john@example.com",
		DisplayName:  "John",
		Roles:        []string{"admin"},
		Meta:         map[string]string{"k": "v"},
		CreatedDate:  created,
		ModifiedDate: created,
	}
	key := datastore.NameKey(KindUserAuth, user.ID, nil)

	entity, err := UserAuthToEntity(user, key)
	require.NoError(t, err)
	assert.JSONEq(t, `{"k":"v"}`, string(entity.Meta))

	back, err := entity.ToUserAuth()
	require.NoError(t, err)
	assert.Equal(t, user, back)
}

func TestProviderLinkEntityRoundTrip(t *testing.T) {
	link := &ar.UserOAuthProvider{
		ID:         "a1",
		UserAuthID: "6f1c",
		Provider:   "github",
		UserID:     "42",
		Items:      map[string]string{"scope": "read:user"},
	}
	entity, err := ProviderLinkToEntity(link, datastore.NameKey(KindProviderLink, providerKeyName("github", "42"), nil))
	require.NoError(t, err)
	assert.Equal(t, "github\x0042", entity.Key.Name)

	back, err := entity.ToProviderLink()
	require.NoError(t, err)
	assert.Equal(t, link, back)

	entity.Items = []byte("{not json")
	_, err = entity.ToProviderLink()
	assert.Error(t, err)
}

func TestProviderKeyNameIsUnambiguous(t *testing.T) {
	assert.NotEqual(t, providerKeyName("a:b", "c"), providerKeyName("a", "b:c"))
	assert.NotEqual(t, providerKeyName("github", "42"), providerKeyName("github4", "2"))
}

func TestNamespacedKey(t *testing.T) {
	store := NewIdentityStore(nil, "tenant-123")
	key := store.namespacedKey(KindUserName, "john")
	assert.Equal(t, "tenant-123", key.Namespace)
	assert.Equal(t, KindUserName, key.Kind)
	assert.Equal(t, "john", key.Name)
}

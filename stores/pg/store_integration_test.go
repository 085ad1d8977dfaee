//go:build integration

package pg_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	ar "github.com/panyam/authrepo"
	"github.com/panyam/authrepo/internal/testpg"
	"github.com/panyam/authrepo/stores/pg"
	"github.com/panyam/authrepo/stores/storetest"
)

func TestPGIdentityStore(t *testing.T) {
	dsn := testpg.Start(t)
	store, err := pg.NewIdentityStore(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(store.Close)

	storetest.RunIdentityStoreTests(t, func(t *testing.T) ar.IdentityStore {
		require.NoError(t, store.ResetSchema())
		return store
	})
}

package pg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ar "github.com/panyam/authrepo"
)

var created = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newMockStore(t *testing.T) (*IdentityStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err, "failed to create mock")
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet(), "unfulfilled expectations")
		mock.Close()
	})
	return NewIdentityStoreWithPool(context.Background(), mock, ""), mock
}

func anyArgs(n int) []any {
	args := make([]any, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

func strPtr(s string) *string { return &s }

func userAuthRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{"id", "user_name", "email", "primary_email", "display_name", "first_name",
		"last_name", "salt", "password_hash", "digest_ha1_hash", "roles", "permissions", "meta",
		"created_date", "modified_date"})
}

func providerLinkRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{"id", "user_auth_id", "provider", "user_id", "user_name", "display_name",
		"first_name", "last_name", "email", "request_token", "request_token_secret", "access_token",
		"access_token_secret", "items", "created_date", "modified_date"})
}

func TestGetUserAuth(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(`(?s)SELECT .* FROM user_auths WHERE id = \$1`).
		WithArgs("01HQ").
		WillReturnRows(userAuthRows().AddRow("01HQ", strPtr("john"), nil, "", "John", "", "",
			"c2FsdA", "$argon2id$", "ha1", []byte(`["admin"]`), nil, []byte(`{"k":"v"}`), created, created))

	user, err := store.GetUserAuth("01HQ")
	require.NoError(t, err)
	assert.Equal(t, "john", user.UserName)
	assert.Equal(t, "", user.Email)
	assert.Equal(t, "John", user.DisplayName)
	assert.Equal(t, []string{"admin"}, user.Roles)
	assert.Nil(t, user.Permissions)
	assert.Equal(t, map[string]string{"k": "v"}, user.Meta)
	assert.True(t, created.Equal(user.CreatedDate))
}

func TestGetUserAuth_NotFound(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(`(?s)SELECT .* FROM user_auths WHERE user_name = \$1`).
		WithArgs("nobody").
		WillReturnRows(userAuthRows())

	_, err := store.GetUserAuthByUserName("nobody")
	assert.ErrorIs(t, err, ar.ErrNotFound)

	// empty keys never reach the database
	_, err = store.GetUserAuthByEmail("")
	assert.ErrorIs(t, err, ar.ErrNotFound)
}

func TestGetUserAuth_QueryError(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(`(?s)SELECT .* FROM user_auths WHERE email = \$1`).
		WithArgs("john@example.com").
		WillReturnError(errors.New("connection refused"))

	_, err := store.GetUserAuthByEmail("john@example.com")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ar.ErrNotFound)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestSaveUserAuth(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec(`INSERT INTO user_auths`).
		WithArgs(anyArgs(15)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	user := &ar.UserAuth{UserName: "john", CreatedDate: created, ModifiedDate: created}
	require.NoError(t, store.SaveUserAuth(user))
	assert.Len(t, user.ID, 26, "new accounts get a ULID")
}

func TestSaveUserAuth_UniqueViolations(t *testing.T) {
	tests := []struct {
		name       string
		constraint string
		want       error
	}{
		{"username", constraintUserName, ar.ErrDuplicateUser},
		{"email", constraintEmail, ar.ErrDuplicateEmail},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, mock := newMockStore(t)
			mock.ExpectExec(`INSERT INTO user_auths`).
				WithArgs(anyArgs(15)...).
				WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: tt.constraint})

			user := &ar.UserAuth{UserName: "john", Email: "john@example.com"}
			err := store.SaveUserAuth(user)
			assert.ErrorIs(t, err, tt.want)
			assert.Empty(t, user.ID, "failed insert must not assign an id")
		})
	}
}

func TestSaveUserAuth_OtherError(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec(`INSERT INTO user_auths`).
		WithArgs(anyArgs(15)...).
		WillReturnError(&pgconn.PgError{Code: pgerrcode.NotNullViolation, ConstraintName: "x"})

	err := store.SaveUserAuth(&ar.UserAuth{ID: "01HQ", UserName: "john"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ar.ErrDuplicateUser)
	assert.NotErrorIs(t, err, ar.ErrDuplicateEmail)
}

func TestGetProviderLinks(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(`(?s)SELECT .* FROM user_oauth_providers WHERE user_auth_id = \$1\s+ORDER BY modified_date ASC, id ASC`).
		WithArgs("01HQ").
		WillReturnRows(providerLinkRows().
			AddRow("L1", "01HQ", "github", "42", "octocat", "", "", "", "", "", "", "gho", "", []byte(`{"scope":"read:user"}`), created, created).
			AddRow("L2", "01HQ", "google", "1098", "", "", "", "", "j@gmail.com", "", "", "ya29", "", nil, created, created.Add(time.Hour)))

	links, err := store.GetProviderLinks("01HQ")
	require.NoError(t, err)
	require.Len(t, links, 2)
	assert.Equal(t, "github", links[0].Provider)
	assert.Equal(t, map[string]string{"scope": "read:user"}, links[0].Items)
	assert.Equal(t, "google", links[1].Provider)
	assert.Nil(t, links[1].Items)
}

func TestGetProviderLink_NotFound(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(`(?s)SELECT .* FROM user_oauth_providers WHERE provider = \$1 AND user_id = \$2`).
		WithArgs("github", "42").
		WillReturnRows(providerLinkRows())

	_, err := store.GetProviderLink("github", "42")
	assert.ErrorIs(t, err, ar.ErrNotFound)
}

func TestSaveProviderLink_ReusesStoredID(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(`(?s)INSERT INTO user_oauth_providers .* ON CONFLICT \(provider, user_id\)`).
		WithArgs(anyArgs(16)...).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("EXISTING"))

	link := &ar.UserOAuthProvider{UserAuthID: "01HQ", Provider: "github", UserID: "42"}
	require.NoError(t, store.SaveProviderLink(link))
	assert.Equal(t, "EXISTING", link.ID)
}

type fakeMigrator struct {
	calls []string
	upErr error
}

func (f *fakeMigrator) Up() error {
	f.calls = append(f.calls, "up")
	return f.upErr
}

func (f *fakeMigrator) Down() error {
	f.calls = append(f.calls, "down")
	return nil
}

func (f *fakeMigrator) Close() error {
	f.calls = append(f.calls, "close")
	return nil
}

func TestSchemaManagement(t *testing.T) {
	store, _ := newMockStore(t)
	fake := &fakeMigrator{}
	store.newMigrator = func() (schemaMigrator, error) { return fake, nil }

	require.NoError(t, store.EnsureSchema())
	assert.Equal(t, []string{"up", "close"}, fake.calls)

	fake.calls = nil
	require.NoError(t, store.ResetSchema())
	assert.Equal(t, []string{"down", "up", "close"}, fake.calls)

	fake.upErr = errors.New("dirty database")
	assert.Error(t, store.EnsureSchema())
}

func TestWithContext(t *testing.T) {
	store, _ := newMockStore(t)
	type key struct{}
	ctx := context.WithValue(context.Background(), key{}, "request")
	bound := store.WithContext(ctx)
	assert.Equal(t, ctx, bound.ctx)
	assert.NotEqual(t, ctx, store.ctx)
}

// Package pg is an ar.IdentityStore on PostgreSQL through pgx.  The schema
// lives in embedded golang-migrate migrations; uniqueness of usernames,
// emails and (provider, user id) pairs is enforced by table constraints.
package pg

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	ar "github.com/panyam/authrepo"
)

// Constraint names from the migrations
const (
	constraintUserName = "user_auths_user_name_key"
	constraintEmail    = "user_auths_email_key"
)

const userAuthColumns = `id, user_name, email, primary_email, display_name, first_name, last_name,
	salt, password_hash, digest_ha1_hash, roles, permissions, meta, created_date, modified_date`

const providerLinkColumns = `id, user_auth_id, provider, user_id, user_name, display_name, first_name, last_name,
	email, request_token, request_token_secret, access_token, access_token_secret, items, created_date, modified_date`

// schemaMigrator is satisfied by *Migrator
type schemaMigrator interface {
	Up() error
	Down() error
	Close() error
}

// poolIface is satisfied by *pgxpool.Pool and pgxmock pools
type poolIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// IdentityStore implements ar.IdentityStore on a pgx pool.  Calls run under
// the context the store was created with; use WithContext per request.
type IdentityStore struct {
	pool        poolIface
	ctx         context.Context
	newMigrator func() (schemaMigrator, error)
}

// NewIdentityStore connects to databaseURL
func NewIdentityStore(ctx context.Context, databaseURL string) (*IdentityStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, oops.With("operation", "connect").Wrap(err)
	}
	return NewIdentityStoreWithPool(ctx, pool, databaseURL), nil
}

// NewIdentityStoreWithPool wraps an existing pool.  databaseURL is only used
// for migrations.
func NewIdentityStoreWithPool(ctx context.Context, pool poolIface, databaseURL string) *IdentityStore {
	return &IdentityStore{
		pool: pool,
		ctx:  ctx,
		newMigrator: func() (schemaMigrator, error) {
			m, err := NewMigrator(databaseURL)
			if err != nil {
				return nil, err
			}
			return m, nil
		},
	}
}

// WithContext returns a copy of the store bound to ctx
func (s *IdentityStore) WithContext(ctx context.Context) *IdentityStore {
	out := *s
	out.ctx = ctx
	return &out
}

// Close closes the connection pool.
func (s *IdentityStore) Close() {
	s.pool.Close()
}

func (s *IdentityStore) migrate(fn func(m schemaMigrator) error) error {
	m, err := s.newMigrator()
	if err != nil {
		return err
	}
	defer m.Close()
	return fn(m)
}

// EnsureSchema applies pending migrations
func (s *IdentityStore) EnsureSchema() error {
	return s.migrate(func(m schemaMigrator) error { return m.Up() })
}

// ResetSchema migrates all the way down and back up
func (s *IdentityStore) ResetSchema() error {
	return s.migrate(func(m schemaMigrator) error {
		if err := m.Down(); err != nil {
			return err
		}
		return m.Up()
	})
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// marshalJSON stores empty collections as NULL
func marshalJSON[T any](v []T) ([]byte, error) {
	if len(v) == 0 {
		return nil, nil
	}
	return json.Marshal(v)
}

func marshalMap(m map[string]string) ([]byte, error) {
	if len(m) == 0 {
		return nil, nil
	}
	return json.Marshal(m)
}

func unmarshalJSON(data []byte, out any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, out)
}

func scanUserAuth(row pgx.Row) (*ar.UserAuth, error) {
	var u ar.UserAuth
	var userName, email *string
	var roles, permissions, meta []byte
	err := row.Scan(&u.ID, &userName, &email, &u.PrimaryEmail, &u.DisplayName, &u.FirstName, &u.LastName,
		&u.Salt, &u.PasswordHash, &u.DigestHA1Hash, &roles, &permissions, &meta, &u.CreatedDate, &u.ModifiedDate)
	if err != nil {
		return nil, err
	}
	u.UserName, u.Email = deref(userName), deref(email)
	if err := unmarshalJSON(roles, &u.Roles); err != nil {
		return nil, oops.With("column", "roles").With("id", u.ID).Wrap(err)
	}
	if err := unmarshalJSON(permissions, &u.Permissions); err != nil {
		return nil, oops.With("column", "permissions").With("id", u.ID).Wrap(err)
	}
	if err := unmarshalJSON(meta, &u.Meta); err != nil {
		return nil, oops.With("column", "meta").With("id", u.ID).Wrap(err)
	}
	u.CreatedDate, u.ModifiedDate = u.CreatedDate.UTC(), u.ModifiedDate.UTC()
	return &u, nil
}

func (s *IdentityStore) getUserAuth(operation, where, arg string) (*ar.UserAuth, error) {
	if arg == "" {
		return nil, ar.ErrNotFound
	}
	row := s.pool.QueryRow(s.ctx, `SELECT `+userAuthColumns+` FROM user_auths WHERE `+where+` = $1`, arg)
	user, err := scanUserAuth(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ar.ErrNotFound
	}
	if err != nil {
		return nil, oops.With("operation", operation).With("key", arg).Wrap(err)
	}
	return user, nil
}

func (s *IdentityStore) GetUserAuth(id string) (*ar.UserAuth, error) {
	return s.getUserAuth("get user auth", "id", id)
}

func (s *IdentityStore) GetUserAuthByUserName(userName string) (*ar.UserAuth, error) {
	return s.getUserAuth("get user auth by username", "user_name", userName)
}

func (s *IdentityStore) GetUserAuthByEmail(email string) (*ar.UserAuth, error) {
	return s.getUserAuth("get user auth by email", "email", email)
}

// SaveUserAuth upserts on id.  Username or email collisions surface as the
// violated unique constraint.
func (s *IdentityStore) SaveUserAuth(user *ar.UserAuth) error {
	roles, err := marshalJSON(user.Roles)
	if err != nil {
		return oops.With("operation", "encode roles").Wrap(err)
	}
	permissions, err := marshalJSON(user.Permissions)
	if err != nil {
		return oops.With("operation", "encode permissions").Wrap(err)
	}
	meta, err := marshalMap(user.Meta)
	if err != nil {
		return oops.With("operation", "encode meta").Wrap(err)
	}

	id := user.ID
	if id == "" {
		id = ulid.Make().String()
	}
	_, err = s.pool.Exec(s.ctx,
		`INSERT INTO user_auths (`+userAuthColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		 ON CONFLICT (id) DO UPDATE SET
			user_name = EXCLUDED.user_name, email = EXCLUDED.email, primary_email = EXCLUDED.primary_email,
			display_name = EXCLUDED.display_name, first_name = EXCLUDED.first_name, last_name = EXCLUDED.last_name,
			salt = EXCLUDED.salt, password_hash = EXCLUDED.password_hash, digest_ha1_hash = EXCLUDED.digest_ha1_hash,
			roles = EXCLUDED.roles, permissions = EXCLUDED.permissions, meta = EXCLUDED.meta,
			created_date = EXCLUDED.created_date, modified_date = EXCLUDED.modified_date`,
		id, nullable(user.UserName), nullable(user.Email), user.PrimaryEmail, user.DisplayName,
		user.FirstName, user.LastName, user.Salt, user.PasswordHash, user.DigestHA1Hash,
		roles, permissions, meta, user.CreatedDate, user.ModifiedDate)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			switch pgErr.ConstraintName {
			case constraintUserName:
				return ar.NewDuplicateUserError(user.UserName)
			case constraintEmail:
				return ar.NewDuplicateEmailError(user.Email)
			}
		}
		return oops.With("operation", "save user auth").With("id", id).Wrap(err)
	}
	user.ID = id
	return nil
}

func scanProviderLink(row pgx.Row) (*ar.UserOAuthProvider, error) {
	var l ar.UserOAuthProvider
	var items []byte
	err := row.Scan(&l.ID, &l.UserAuthID, &l.Provider, &l.UserID, &l.UserName, &l.DisplayName, &l.FirstName,
		&l.LastName, &l.Email, &l.RequestToken, &l.RequestTokenSecret, &l.AccessToken, &l.AccessTokenSecret,
		&items, &l.CreatedDate, &l.ModifiedDate)
	if err != nil {
		return nil, err
	}
	if err := unmarshalJSON(items, &l.Items); err != nil {
		return nil, oops.With("column", "items").With("id", l.ID).Wrap(err)
	}
	l.CreatedDate, l.ModifiedDate = l.CreatedDate.UTC(), l.ModifiedDate.UTC()
	return &l, nil
}

func (s *IdentityStore) GetProviderLink(provider, userID string) (*ar.UserOAuthProvider, error) {
	row := s.pool.QueryRow(s.ctx,
		`SELECT `+providerLinkColumns+` FROM user_oauth_providers WHERE provider = $1 AND user_id = $2`,
		provider, userID)
	link, err := scanProviderLink(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ar.ErrNotFound
	}
	if err != nil {
		return nil, oops.With("operation", "get provider link").With("provider", provider).With("user_id", userID).Wrap(err)
	}
	return link, nil
}

func (s *IdentityStore) GetProviderLinks(userAuthID string) ([]*ar.UserOAuthProvider, error) {
	rows, err := s.pool.Query(s.ctx,
		`SELECT `+providerLinkColumns+` FROM user_oauth_providers WHERE user_auth_id = $1
		 ORDER BY modified_date ASC, id ASC`, userAuthID)
	if err != nil {
		return nil, oops.With("operation", "get provider links").With("user_auth_id", userAuthID).Wrap(err)
	}
	defer rows.Close()

	var links []*ar.UserOAuthProvider
	for rows.Next() {
		link, err := scanProviderLink(rows)
		if err != nil {
			return nil, oops.With("operation", "scan provider link").Wrap(err)
		}
		links = append(links, link)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.With("operation", "iterate provider links").Wrap(err)
	}
	return links, nil
}

// SaveProviderLink upserts on (provider, user_id).  The stored row keeps its
// id, which is written back onto link.
func (s *IdentityStore) SaveProviderLink(link *ar.UserOAuthProvider) error {
	items, err := marshalMap(link.Items)
	if err != nil {
		return oops.With("operation", "encode items").Wrap(err)
	}
	id := link.ID
	if id == "" {
		id = ulid.Make().String()
	}
	err = s.pool.QueryRow(s.ctx,
		`INSERT INTO user_oauth_providers (`+providerLinkColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		 ON CONFLICT (provider, user_id) DO UPDATE SET
			user_auth_id = EXCLUDED.user_auth_id, user_name = EXCLUDED.user_name,
			display_name = EXCLUDED.display_name, first_name = EXCLUDED.first_name, last_name = EXCLUDED.last_name,
			email = EXCLUDED.email, request_token = EXCLUDED.request_token,
			request_token_secret = EXCLUDED.request_token_secret, access_token = EXCLUDED.access_token,
			access_token_secret = EXCLUDED.access_token_secret, items = EXCLUDED.items,
			modified_date = EXCLUDED.modified_date
		 RETURNING id`,
		id, link.UserAuthID, link.Provider, link.UserID, link.UserName, link.DisplayName, link.FirstName,
		link.LastName, link.Email, link.RequestToken, link.RequestTokenSecret, link.AccessToken,
		link.AccessTokenSecret, items, link.CreatedDate, link.ModifiedDate).Scan(&link.ID)
	if err != nil {
		return oops.With("operation", "save provider link").With("provider", link.Provider).With("user_id", link.UserID).Wrap(err)
	}
	return nil
}

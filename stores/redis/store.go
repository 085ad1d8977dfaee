package redis

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/go-redis/redis/v8"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	ar "github.com/panyam/authrepo"
)

// maxWatchRetries bounds optimistic transaction retries on a contended link
const maxWatchRetries = 5

const scanBatchSize = 500

// releaseScript deletes an index key only while it still points at ARGV[1]
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// IdentityStore implements ar.IdentityStore on a Redis client.
type IdentityStore struct {
	client redis.UniversalClient
	prefix string
	ctx    context.Context
}

// NewIdentityStore stores keys under prefix, or DefaultPrefix when empty.
func NewIdentityStore(client redis.UniversalClient, prefix string) *IdentityStore {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &IdentityStore{
		client: client,
		prefix: prefix,
		ctx:    context.Background(),
	}
}

// WithContext returns a copy of the store bound to ctx
func (s *IdentityStore) WithContext(ctx context.Context) *IdentityStore {
	out := *s
	out.ctx = ctx
	return &out
}

func (s *IdentityStore) userKey(id string) string          { return s.prefix + "user:" + id }
func (s *IdentityStore) userNameKey(userName string) string { return s.prefix + "username:" + userName }
func (s *IdentityStore) emailKey(email string) string       { return s.prefix + "email:" + email }
func (s *IdentityStore) linksKey(userAuthID string) string  { return s.prefix + "links:" + userAuthID }

func (s *IdentityStore) linkKey(provider, userID string) string {
	return s.prefix + "link:" + provider + "\x00" + userID
}

// EnsureSchema checks the server is reachable.  Redis needs no provisioning.
func (s *IdentityStore) EnsureSchema() error {
	if err := s.client.Ping(s.ctx).Err(); err != nil {
		return oops.With("operation", "ping").Wrap(err)
	}
	return nil
}

// ResetSchema deletes every key under the store's prefix.
func (s *IdentityStore) ResetSchema() error {
	if cluster, ok := s.client.(*redis.ClusterClient); ok {
		return cluster.ForEachMaster(s.ctx, func(ctx context.Context, node *redis.Client) error {
			return s.deletePrefixed(ctx, node)
		})
	}
	return s.deletePrefixed(s.ctx, s.client)
}

func (s *IdentityStore) deletePrefixed(ctx context.Context, c redis.Cmdable) error {
	var cursor uint64
	for {
		keys, next, err := c.Scan(ctx, cursor, s.prefix+"*", scanBatchSize).Result()
		if err != nil {
			return oops.With("operation", "scan").With("prefix", s.prefix).Wrap(err)
		}
		if len(keys) > 0 {
			pipe := c.Pipeline()
			for _, key := range keys {
				pipe.Del(ctx, key)
			}
			if _, err := pipe.Exec(ctx); err != nil {
				return oops.With("operation", "delete").With("prefix", s.prefix).Wrap(err)
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

func (s *IdentityStore) GetUserAuth(id string) (*ar.UserAuth, error) {
	if id == "" {
		return nil, ar.ErrNotFound
	}
	data, err := s.client.Get(s.ctx, s.userKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ar.ErrNotFound
	}
	if err != nil {
		return nil, oops.With("operation", "get user auth").With("id", id).Wrap(err)
	}
	var user ar.UserAuth
	if err := json.Unmarshal(data, &user); err != nil {
		return nil, oops.With("operation", "decode user auth").With("id", id).Wrap(err)
	}
	return &user, nil
}

// lookup follows an index key to its account.  An index left behind by an
// interrupted write is treated as a miss.
func (s *IdentityStore) lookup(indexKey string, matches func(*ar.UserAuth) bool) (*ar.UserAuth, error) {
	id, err := s.client.Get(s.ctx, indexKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ar.ErrNotFound
	}
	if err != nil {
		return nil, oops.With("operation", "get index").With("key", indexKey).Wrap(err)
	}
	user, err := s.GetUserAuth(id)
	if err != nil {
		return nil, err
	}
	if !matches(user) {
		return nil, ar.ErrNotFound
	}
	return user, nil
}

func (s *IdentityStore) GetUserAuthByUserName(userName string) (*ar.UserAuth, error) {
	if userName == "" {
		return nil, ar.ErrNotFound
	}
	return s.lookup(s.userNameKey(userName), func(u *ar.UserAuth) bool { return u.UserName == userName })
}

func (s *IdentityStore) GetUserAuthByEmail(email string) (*ar.UserAuth, error) {
	if email == "" {
		return nil, ar.ErrNotFound
	}
	return s.lookup(s.emailKey(email), func(u *ar.UserAuth) bool { return u.Email == email })
}

// reserve claims key for id.  A key already pointing at id counts as claimed.
// A reservation left by a write that died before releasing it has to be
// removed by hand.
func (s *IdentityStore) reserve(key, id string) (bool, error) {
	ok, err := s.client.SetNX(s.ctx, key, id, 0).Result()
	if err != nil {
		return false, oops.With("operation", "reserve").With("key", key).Wrap(err)
	}
	if ok {
		return true, nil
	}
	owner, err := s.client.Get(s.ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return s.reserve(key, id)
	}
	if err != nil {
		return false, oops.With("operation", "reserve").With("key", key).Wrap(err)
	}
	return owner == id, nil
}

func (s *IdentityStore) release(key, id string) error {
	if err := releaseScript.Run(s.ctx, s.client, []string{key}, id).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return oops.With("operation", "release").With("key", key).Wrap(err)
	}
	return nil
}

// SaveUserAuth reserves any new username or email before writing the
// account, then releases the ones it replaced.
func (s *IdentityStore) SaveUserAuth(user *ar.UserAuth) error {
	id := user.ID
	var previous *ar.UserAuth
	if id == "" {
		id = ulid.Make().String()
	} else {
		existing, err := s.GetUserAuth(id)
		if err != nil && !errors.Is(err, ar.ErrNotFound) {
			return err
		}
		previous = existing
	}

	var reserved []string
	undo := func() {
		for _, key := range reserved {
			_ = s.release(key, id)
		}
	}
	claim := func(key string, duplicate func() error) error {
		ok, err := s.reserve(key, id)
		if err != nil {
			return err
		}
		if !ok {
			return duplicate()
		}
		reserved = append(reserved, key)
		return nil
	}

	if user.UserName != "" && (previous == nil || previous.UserName != user.UserName) {
		err := claim(s.userNameKey(user.UserName), func() error { return ar.NewDuplicateUserError(user.UserName) })
		if err != nil {
			undo()
			return err
		}
	}
	if user.Email != "" && (previous == nil || previous.Email != user.Email) {
		err := claim(s.emailKey(user.Email), func() error { return ar.NewDuplicateEmailError(user.Email) })
		if err != nil {
			undo()
			return err
		}
	}

	stored := *user
	stored.ID = id
	data, err := json.Marshal(&stored)
	if err != nil {
		undo()
		return oops.With("operation", "encode user auth").With("id", id).Wrap(err)
	}
	if err := s.client.Set(s.ctx, s.userKey(id), data, 0).Err(); err != nil {
		undo()
		return oops.With("operation", "save user auth").With("id", id).Wrap(err)
	}
	user.ID = id

	if previous != nil {
		if previous.UserName != "" && previous.UserName != user.UserName {
			if err := s.release(s.userNameKey(previous.UserName), id); err != nil {
				return err
			}
		}
		if previous.Email != "" && previous.Email != user.Email {
			if err := s.release(s.emailKey(previous.Email), id); err != nil {
				return err
			}
		}
	}
	return nil
}

func decodeLink(data []byte) (*ar.UserOAuthProvider, error) {
	var link ar.UserOAuthProvider
	if err := json.Unmarshal(data, &link); err != nil {
		return nil, err
	}
	return &link, nil
}

func (s *IdentityStore) GetProviderLink(provider, userID string) (*ar.UserOAuthProvider, error) {
	data, err := s.client.Get(s.ctx, s.linkKey(provider, userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ar.ErrNotFound
	}
	if err != nil {
		return nil, oops.With("operation", "get provider link").With("provider", provider).With("user_id", userID).Wrap(err)
	}
	link, err := decodeLink(data)
	if err != nil {
		return nil, oops.With("operation", "decode provider link").With("provider", provider).With("user_id", userID).Wrap(err)
	}
	return link, nil
}

func (s *IdentityStore) GetProviderLinks(userAuthID string) ([]*ar.UserOAuthProvider, error) {
	keys, err := s.client.SMembers(s.ctx, s.linksKey(userAuthID)).Result()
	if err != nil {
		return nil, oops.With("operation", "get provider links").With("user_auth_id", userAuthID).Wrap(err)
	}
	if len(keys) == 0 {
		return nil, nil
	}
	values, err := s.client.MGet(s.ctx, keys...).Result()
	if err != nil {
		return nil, oops.With("operation", "get provider links").With("user_auth_id", userAuthID).Wrap(err)
	}

	links := make([]*ar.UserOAuthProvider, 0, len(values))
	for i, value := range values {
		data, ok := value.(string)
		if !ok {
			continue
		}
		link, err := decodeLink([]byte(data))
		if err != nil {
			return nil, oops.With("operation", "decode provider link").With("key", keys[i]).Wrap(err)
		}
		if link.UserAuthID == userAuthID {
			links = append(links, link)
		}
	}
	ar.SortProviderLinks(links)
	return links, nil
}

// SaveProviderLink upserts on (provider, user id) in a WATCH transaction.
// The stored link keeps its id and creation date.
func (s *IdentityStore) SaveProviderLink(link *ar.UserOAuthProvider) error {
	key := s.linkKey(link.Provider, link.UserID)
	var savedID string

	txn := func(tx *redis.Tx) error {
		stored := *link
		var previous *ar.UserOAuthProvider
		data, err := tx.Get(s.ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			if previous, err = decodeLink(data); err != nil {
				return err
			}
		}

		if previous != nil {
			stored.ID = previous.ID
			stored.CreatedDate = previous.CreatedDate
		} else if stored.ID == "" {
			stored.ID = ulid.Make().String()
		}
		encoded, err := json.Marshal(&stored)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(s.ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(s.ctx, key, encoded, 0)
			pipe.SAdd(s.ctx, s.linksKey(stored.UserAuthID), key)
			if previous != nil && previous.UserAuthID != stored.UserAuthID {
				pipe.SRem(s.ctx, s.linksKey(previous.UserAuthID), key)
			}
			return nil
		})
		if err == nil {
			savedID = stored.ID
		}
		return err
	}

	var err error
	for i := 0; i < maxWatchRetries; i++ {
		err = s.client.Watch(s.ctx, txn, key)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}
	if err != nil {
		return oops.With("operation", "save provider link").With("provider", link.Provider).With("user_id", link.UserID).Wrap(err)
	}
	link.ID = savedID
	return nil
}

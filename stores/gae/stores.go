//go:build !wasm
// +build !wasm

package gae

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/datastore"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"

	ar "github.com/panyam/authrepo"
)

// deleteBatchSize is the Datastore limit on keys per DeleteMulti
const deleteBatchSize = 500

// IdentityStore implements ar.IdentityStore using Google Cloud Datastore
type IdentityStore struct {
	client    *datastore.Client
	namespace string
	ctx       context.Context
}

// NewIdentityStore creates a new Datastore-backed IdentityStore
func NewIdentityStore(client *datastore.Client, namespace string) *IdentityStore {
	return &IdentityStore{
		client:    client,
		namespace: namespace,
		ctx:       context.Background(),
	}
}

func (s *IdentityStore) WithContext(ctx context.Context) *IdentityStore {
	return &IdentityStore{
		client:    s.client,
		namespace: s.namespace,
		ctx:       ctx,
	}
}

func (s *IdentityStore) namespacedKey(kind, name string) *datastore.Key {
	key := datastore.NameKey(kind, name, nil)
	key.Namespace = s.namespace
	return key
}

func (s *IdentityStore) query(kind string) *datastore.Query {
	query := datastore.NewQuery(kind)
	if s.namespace != "" {
		query = query.Namespace(s.namespace)
	}
	return query
}

// Provider names carry no NUL, so each pair gets a distinct key
func providerKeyName(provider, userID string) string {
	return provider + "\x00" + userID
}

// EnsureSchema is a no-op; Datastore kinds need no provisioning.
func (s *IdentityStore) EnsureSchema() error {
	return nil
}

// ResetSchema deletes every entity of the authrepo kinds in the namespace
func (s *IdentityStore) ResetSchema() error {
	for _, kind := range []string{KindProviderLink, KindEmail, KindUserName, KindUserAuth} {
		keys, err := s.client.GetAll(s.ctx, s.query(kind).KeysOnly(), nil)
		if err != nil {
			return fmt.Errorf("failed to list %s: %w", kind, err)
		}
		for start := 0; start < len(keys); start += deleteBatchSize {
			end := min(start+deleteBatchSize, len(keys))
			if err := s.client.DeleteMulti(s.ctx, keys[start:end]); err != nil {
				return fmt.Errorf("failed to delete %s: %w", kind, err)
			}
		}
	}
	return nil
}

func (s *IdentityStore) getUserAuth(get func(key *datastore.Key, dst any) error, id string) (*ar.UserAuth, error) {
	if id == "" {
		return nil, ar.ErrNotFound
	}
	var entity UserAuthEntity
	if err := get(s.namespacedKey(KindUserAuth, id), &entity); err != nil {
		if errors.Is(err, datastore.ErrNoSuchEntity) {
			return nil, ar.ErrNotFound
		}
		return nil, err
	}
	return entity.ToUserAuth()
}

func (s *IdentityStore) clientGet(key *datastore.Key, dst any) error {
	return s.client.Get(s.ctx, key, dst)
}

func (s *IdentityStore) GetUserAuth(id string) (*ar.UserAuth, error) {
	return s.getUserAuth(s.clientGet, id)
}

// byReservation resolves a username or email through its reservation
func (s *IdentityStore) byReservation(kind, value string) (*ar.UserAuth, error) {
	if value == "" {
		return nil, ar.ErrNotFound
	}
	var reservation ReservationEntity
	if err := s.client.Get(s.ctx, s.namespacedKey(kind, value), &reservation); err != nil {
		if errors.Is(err, datastore.ErrNoSuchEntity) {
			return nil, ar.ErrNotFound
		}
		return nil, err
	}
	return s.GetUserAuth(reservation.UserAuthID)
}

func (s *IdentityStore) GetUserAuthByUserName(userName string) (*ar.UserAuth, error) {
	return s.byReservation(KindUserName, userName)
}

func (s *IdentityStore) GetUserAuthByEmail(email string) (*ar.UserAuth, error) {
	return s.byReservation(KindEmail, email)
}

// reserve claims value for id inside tx.  ok is false when another account
// holds it.
func (s *IdentityStore) reserve(tx *datastore.Transaction, kind, value, id string) (ok bool, err error) {
	key := s.namespacedKey(kind, value)
	var existing ReservationEntity
	err = tx.Get(key, &existing)
	switch {
	case err == nil:
		return existing.UserAuthID == id, nil
	case !errors.Is(err, datastore.ErrNoSuchEntity):
		return false, err
	}
	_, err = tx.Put(key, &ReservationEntity{UserAuthID: id, CreatedAt: time.Now().UTC()})
	return err == nil, err
}

// SaveUserAuth writes the account and its reservations in one transaction,
// releasing the reservations of a previous username or email.
func (s *IdentityStore) SaveUserAuth(user *ar.UserAuth) error {
	id := user.ID
	if id == "" {
		id = uuid.NewString()
	}
	key := s.namespacedKey(KindUserAuth, id)
	entity, err := UserAuthToEntity(user, key)
	if err != nil {
		return err
	}

	_, err = s.client.RunInTransaction(s.ctx, func(tx *datastore.Transaction) error {
		previous, err := s.getUserAuth(tx.Get, id)
		if err != nil && !ar.IsNotFound(err) {
			return err
		}

		if user.UserName != "" {
			ok, err := s.reserve(tx, KindUserName, user.UserName, id)
			if err != nil {
				return err
			}
			if !ok {
				return ar.NewDuplicateUserError(user.UserName)
			}
		}
		if user.Email != "" {
			ok, err := s.reserve(tx, KindEmail, user.Email, id)
			if err != nil {
				return err
			}
			if !ok {
				return ar.NewDuplicateEmailError(user.Email)
			}
		}

		if _, err := tx.Put(key, entity); err != nil {
			return err
		}
		if previous != nil {
			if previous.UserName != "" && previous.UserName != user.UserName {
				if err := tx.Delete(s.namespacedKey(KindUserName, previous.UserName)); err != nil {
					return err
				}
			}
			if previous.Email != "" && previous.Email != user.Email {
				if err := tx.Delete(s.namespacedKey(KindEmail, previous.Email)); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	user.ID = id
	return nil
}

func (s *IdentityStore) GetProviderLink(provider, userID string) (*ar.UserOAuthProvider, error) {
	var entity ProviderLinkEntity
	err := s.client.Get(s.ctx, s.namespacedKey(KindProviderLink, providerKeyName(provider, userID)), &entity)
	if err != nil {
		if errors.Is(err, datastore.ErrNoSuchEntity) {
			return nil, ar.ErrNotFound
		}
		return nil, err
	}
	return entity.ToProviderLink()
}

// GetProviderLinks filters on user_auth_id and sorts in memory, which keeps
// the query within the built-in single property indexes.
func (s *IdentityStore) GetProviderLinks(userAuthID string) ([]*ar.UserOAuthProvider, error) {
	var links []*ar.UserOAuthProvider
	it := s.client.Run(s.ctx, s.query(KindProviderLink).FilterField("user_auth_id", "=", userAuthID))
	for {
		var entity ProviderLinkEntity
		_, err := it.Next(&entity)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		link, err := entity.ToProviderLink()
		if err != nil {
			return nil, err
		}
		links = append(links, link)
	}
	ar.SortProviderLinks(links)
	return links, nil
}

// SaveProviderLink upserts the link under its (provider, user id) key,
// keeping the ID of an existing entity.
func (s *IdentityStore) SaveProviderLink(link *ar.UserOAuthProvider) error {
	key := s.namespacedKey(KindProviderLink, providerKeyName(link.Provider, link.UserID))
	var assigned string
	_, err := s.client.RunInTransaction(s.ctx, func(tx *datastore.Transaction) error {
		var existing ProviderLinkEntity
		err := tx.Get(key, &existing)
		switch {
		case err == nil:
			assigned = existing.ID
		case !errors.Is(err, datastore.ErrNoSuchEntity):
			return err
		case link.ID != "":
			assigned = link.ID
		default:
			assigned = uuid.NewString()
		}

		toSave := *link
		toSave.ID = assigned
		entity, err := ProviderLinkToEntity(&toSave, key)
		if err != nil {
			return err
		}
		_, err = tx.Put(key, entity)
		return err
	})
	if err != nil {
		return err
	}
	link.ID = assigned
	return nil
}

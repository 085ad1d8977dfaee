package fs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	ar "github.com/panyam/authrepo"
)

// Directory names under StoragePath
const (
	dirUserAuths       = "userauths"
	dirUserNameIndex   = "userauth_usernames"
	dirEmailIndex      = "userauth_emails"
	dirProviderLinks   = "provider_links"
	dirProviderLinkKey = "provider_link_keys"
)

// FSIdentityStore implements ar.IdentityStore using JSON files.
//
// # File Structure
//
//	{StoragePath}/
//	├── userauths/{id}.json
//	├── userauth_usernames/{hex(username)}.json
//	├── userauth_emails/{hex(email)}.json
//	├── provider_links/{id}.json
//	└── provider_link_keys/{hex(provider NUL user id)}.json
//
// # Concurrency Model
//
// A mutex serializes all writes within one process, which makes the
// uniqueness indexes authoritative.  Several processes sharing one
// StoragePath are not supported.
type FSIdentityStore struct {
	StoragePath string

	mu sync.Mutex
}

func NewFSIdentityStore(storagePath string) *FSIdentityStore {
	return &FSIdentityStore{StoragePath: storagePath}
}

func (s *FSIdentityStore) dir(name string) string {
	return filepath.Join(s.StoragePath, name)
}

func (s *FSIdentityStore) userAuthPath(id string) string {
	return filepath.Join(s.dir(dirUserAuths), filepath.Base(id)+".json")
}

func (s *FSIdentityStore) userNames() fsIndex { return fsIndex{dir: s.dir(dirUserNameIndex)} }
func (s *FSIdentityStore) emails() fsIndex    { return fsIndex{dir: s.dir(dirEmailIndex)} }

// EnsureSchema creates the storage directories
func (s *FSIdentityStore) EnsureSchema() error {
	for _, name := range []string{dirUserAuths, dirUserNameIndex, dirEmailIndex, dirProviderLinks, dirProviderLinkKey} {
		if err := os.MkdirAll(s.dir(name), 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", name, err)
		}
	}
	return nil
}

// ResetSchema removes every record and recreates empty directories
func (s *FSIdentityStore) ResetSchema() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, name := range []string{dirUserAuths, dirUserNameIndex, dirEmailIndex, dirProviderLinks, dirProviderLinkKey} {
		if err := os.RemoveAll(s.dir(name)); err != nil {
			return fmt.Errorf("failed to remove %s: %w", name, err)
		}
	}
	return s.EnsureSchema()
}

func (s *FSIdentityStore) readUserAuth(id string) (*ar.UserAuth, error) {
	var user ar.UserAuth
	found, err := readJSON(s.userAuthPath(id), &user)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ar.ErrNotFound
	}
	return &user, nil
}

func (s *FSIdentityStore) GetUserAuth(id string) (*ar.UserAuth, error) {
	if id == "" {
		return nil, ar.ErrNotFound
	}
	return s.readUserAuth(id)
}

func (s *FSIdentityStore) getByIndex(index fsIndex, key string) (*ar.UserAuth, error) {
	if key == "" {
		return nil, ar.ErrNotFound
	}
	id, err := index.lookup(key)
	if err != nil {
		return nil, err
	}
	if id == "" {
		return nil, ar.ErrNotFound
	}
	return s.readUserAuth(id)
}

func (s *FSIdentityStore) GetUserAuthByUserName(userName string) (*ar.UserAuth, error) {
	return s.getByIndex(s.userNames(), userName)
}

func (s *FSIdentityStore) GetUserAuthByEmail(email string) (*ar.UserAuth, error) {
	return s.getByIndex(s.emails(), email)
}

// SaveUserAuth upserts an account.  Username and email reservations are
// claimed before the record is written and stale ones released after.
func (s *FSIdentityStore) SaveUserAuth(user *ar.UserAuth) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user.ID == "" {
		user.ID = uuid.NewString()
	}

	previous, err := s.readUserAuth(user.ID)
	if err != nil && !ar.IsNotFound(err) {
		return err
	}

	if user.UserName != "" {
		ok, err := s.userNames().reserve(user.UserName, user.ID)
		if err != nil {
			return err
		}
		if !ok {
			return ar.NewDuplicateUserError(user.UserName)
		}
	}
	if user.Email != "" {
		ok, err := s.emails().reserve(user.Email, user.ID)
		if err != nil {
			return err
		}
		if !ok {
			dup := ar.NewDuplicateEmailError(user.Email)
			if user.UserName != "" && (previous == nil || previous.UserName != user.UserName) {
				if err := s.userNames().release(user.UserName, user.ID); err != nil {
					return errors.Join(dup, fmt.Errorf("releasing username %q: %w", user.UserName, err))
				}
			}
			return dup
		}
	}

	if err := writeJSON(s.userAuthPath(user.ID), user); err != nil {
		return err
	}

	if previous != nil {
		if previous.UserName != "" && previous.UserName != user.UserName {
			if err := s.userNames().release(previous.UserName, user.ID); err != nil {
				return err
			}
		}
		if previous.Email != "" && previous.Email != user.Email {
			if err := s.emails().release(previous.Email, user.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

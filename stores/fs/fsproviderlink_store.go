package fs

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	ar "github.com/panyam/authrepo"
)

func (s *FSIdentityStore) providerLinkPath(id string) string {
	return filepath.Join(s.dir(dirProviderLinks), filepath.Base(id)+".json")
}

func (s *FSIdentityStore) providerKeys() fsIndex { return fsIndex{dir: s.dir(dirProviderLinkKey)} }

func providerKey(provider, userID string) string {
	return provider + "\x00" + userID
}

func (s *FSIdentityStore) readProviderLink(id string) (*ar.UserOAuthProvider, error) {
	var link ar.UserOAuthProvider
	found, err := readJSON(s.providerLinkPath(id), &link)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ar.ErrNotFound
	}
	return &link, nil
}

func (s *FSIdentityStore) GetProviderLink(provider, userID string) (*ar.UserOAuthProvider, error) {
	id, err := s.providerKeys().lookup(providerKey(provider, userID))
	if err != nil {
		return nil, err
	}
	if id == "" {
		return nil, ar.ErrNotFound
	}
	return s.readProviderLink(id)
}

// GetProviderLinks scans every link file.  Fine for the small data sets this
// store is meant for.
func (s *FSIdentityStore) GetProviderLinks(userAuthID string) ([]*ar.UserOAuthProvider, error) {
	entries, err := os.ReadDir(s.dir(dirProviderLinks))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var out []*ar.UserOAuthProvider
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") || strings.HasPrefix(name, ".tmp-") {
			continue
		}
		link, err := s.readProviderLink(strings.TrimSuffix(name, ".json"))
		if err != nil {
			return nil, err
		}
		if link.UserAuthID == userAuthID {
			out = append(out, link)
		}
	}
	ar.SortProviderLinks(out)
	return out, nil
}

// SaveProviderLink upserts a link keyed on (Provider, UserID).  If the pair
// is already stored the existing ID is reused.
func (s *FSIdentityStore) SaveProviderLink(link *ar.UserOAuthProvider) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := providerKey(link.Provider, link.UserID)
	owner, err := s.providerKeys().lookup(key)
	if err != nil {
		return err
	}
	switch {
	case owner != "":
		link.ID = owner
	case link.ID == "":
		link.ID = uuid.NewString()
	}

	if _, err := s.providerKeys().reserve(key, link.ID); err != nil {
		return err
	}
	return writeJSON(s.providerLinkPath(link.ID), link)
}

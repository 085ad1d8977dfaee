package authrepo

import "sort"

// UserAuthStore manages account records.
//
// Lookups return ErrNotFound (possibly wrapped) when nothing matches.  Saves
// must enforce uniqueness of UserName and Email at the storage level and
// report violations as ErrDuplicateUser / ErrDuplicateEmail, since the
// repository's own check races with concurrent writers.
type UserAuthStore interface {
	// GetUserAuth retrieves an account by its ID
	GetUserAuth(id string) (*UserAuth, error)

	// GetUserAuthByUserName retrieves an account by exact username
	GetUserAuthByUserName(userName string) (*UserAuth, error)

	// GetUserAuthByEmail retrieves an account by exact email
	GetUserAuthByEmail(email string) (*UserAuth, error)

	// SaveUserAuth creates or updates an account (upsert).  An empty ID is
	// assigned by the store and written back onto user.
	SaveUserAuth(user *UserAuth) error
}

// ProviderLinkStore manages UserOAuthProvider records.
type ProviderLinkStore interface {
	// GetProviderLink retrieves the link for an external account
	GetProviderLink(provider, userID string) (*UserOAuthProvider, error)

	// GetProviderLinks returns all links of an account ordered by ModifiedDate ascending
	GetProviderLinks(userAuthID string) ([]*UserOAuthProvider, error)

	// SaveProviderLink creates or updates a link (upsert keyed on Provider + UserID).
	// An empty ID is assigned by the store.
	SaveProviderLink(link *UserOAuthProvider) error
}

// SchemaManager provisions the backing storage.  Administrative only.
type SchemaManager interface {
	// EnsureSchema creates any missing tables, indexes or directories
	EnsureSchema() error

	// ResetSchema drops everything and recreates it empty
	ResetSchema() error
}

// IdentityStore is everything the Repository needs from a backend.
type IdentityStore interface {
	UserAuthStore
	ProviderLinkStore
	SchemaManager
}

// SortProviderLinks orders links by ModifiedDate ascending, breaking ties on ID.
func SortProviderLinks(links []*UserOAuthProvider) {
	sort.SliceStable(links, func(i, j int) bool {
		if links[i].ModifiedDate.Equal(links[j].ModifiedDate) {
			return links[i].ID < links[j].ID
		}
		return links[i].ModifiedDate.Before(links[j].ModifiedDate)
	})
}

//go:build !wasm
// +build !wasm

package gae

import (
	"encoding/json"
	"time"

	"cloud.google.com/go/datastore"

	ar "github.com/panyam/authrepo"
)

// Datastore kinds
const (
	KindUserAuth     = "UserAuth"
	KindUserName     = "UserAuthName"
	KindEmail        = "UserAuthEmail"
	KindProviderLink = "UserOAuthProvider"
)

// UserAuthEntity is the Datastore entity for accounts
type UserAuthEntity struct {
	Key           *datastore.Key `datastore:"__key__"`
	UserName      string         `datastore:"user_name"`
	Email         string         `datastore:"email"`
	PrimaryEmail  string         `datastore:"primary_email,noindex"`
	DisplayName   string         `datastore:"display_name,noindex"`
	FirstName     string         `datastore:"first_name,noindex"`
	LastName      string         `datastore:"last_name,noindex"`
	Salt          string         `datastore:"salt,noindex"`
	PasswordHash  string         `datastore:"password_hash,noindex"`
	DigestHA1Hash string         `datastore:"digest_ha1_hash,noindex"`
	Roles         []string       `datastore:"roles,noindex"`
	Permissions   []string       `datastore:"permissions,noindex"`
	Meta          []byte         `datastore:"meta,noindex"` // JSON encoded
	CreatedDate   time.Time      `datastore:"created_date"`
	ModifiedDate  time.Time      `datastore:"modified_date"`
}

// ReservationEntity claims a username or email for one account
type ReservationEntity struct {
	Key        *datastore.Key `datastore:"__key__"`
	UserAuthID string         `datastore:"user_auth_id"`
	CreatedAt  time.Time      `datastore:"created_at,noindex"`
}

// ProviderLinkEntity is the Datastore entity for provider links
// Key format: Provider + ":" + UserID
type ProviderLinkEntity struct {
	Key                *datastore.Key `datastore:"__key__"`
	ID                 string         `datastore:"id"`
	UserAuthID         string         `datastore:"user_auth_id"`
	Provider           string         `datastore:"provider"`
	UserID             string         `datastore:"user_id"`
	UserName           string         `datastore:"user_name,noindex"`
	DisplayName        string         `datastore:"display_name,noindex"`
	FirstName          string         `datastore:"first_name,noindex"`
	LastName           string         `datastore:"last_name,noindex"`
	Email              string         `datastore:"email,noindex"`
	RequestToken       string         `datastore:"request_token,noindex"`
	RequestTokenSecret string         `datastore:"request_token_secret,noindex"`
	AccessToken        string         `datastore:"access_token,noindex"`
	AccessTokenSecret  string         `datastore:"access_token_secret,noindex"`
	Items              []byte         `datastore:"items,noindex"` // JSON encoded
	CreatedDate        time.Time      `datastore:"created_date"`
	ModifiedDate       time.Time      `datastore:"modified_date"`
}

func encodeMap(m map[string]string) ([]byte, error) {
	if len(m) == 0 {
		return nil, nil
	}
	return json.Marshal(m)
}

func decodeMap(data []byte) (map[string]string, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var out map[string]string
	err := json.Unmarshal(data, &out)
	return out, err
}

func (e *UserAuthEntity) ToUserAuth() (*ar.UserAuth, error) {
	meta, err := decodeMap(e.Meta)
	if err != nil {
		return nil, err
	}
	return &ar.UserAuth{
		ID:            e.Key.Name,
		UserName:      e.UserName,
		Email:         e.Email,
		PrimaryEmail:  e.PrimaryEmail,
		DisplayName:   e.DisplayName,
		FirstName:     e.FirstName,
		LastName:      e.LastName,
		Salt:          e.Salt,
		PasswordHash:  e.PasswordHash,
		DigestHA1Hash: e.DigestHA1Hash,
		Roles:         e.Roles,
		Permissions:   e.Permissions,
		Meta:          meta,
		CreatedDate:   e.CreatedDate.UTC(),
		ModifiedDate:  e.ModifiedDate.UTC(),
	}, nil
}

func UserAuthToEntity(u *ar.UserAuth, key *datastore.Key) (*UserAuthEntity, error) {
	meta, err := encodeMap(u.Meta)
	if err != nil {
		return nil, err
	}
	return &UserAuthEntity{
		Key:           key,
		UserName:      u.UserName,
		Email:         u.Email,
		PrimaryEmail:  u.PrimaryEmail,
		DisplayName:   u.DisplayName,
		FirstName:     u.FirstName,
		LastName:      u.LastName,
		Salt:          u.Salt,
		PasswordHash:  u.PasswordHash,
		DigestHA1Hash: u.DigestHA1Hash,
		Roles:         u.Roles,
		Permissions:   u.Permissions,
		Meta:          meta,
		CreatedDate:   u.CreatedDate,
		ModifiedDate:  u.ModifiedDate,
	}, nil
}

func (e *ProviderLinkEntity) ToProviderLink() (*ar.UserOAuthProvider, error) {
	items, err := decodeMap(e.Items)
	if err != nil {
		return nil, err
	}
	return &ar.UserOAuthProvider{
		ID:                 e.ID,
		UserAuthID:         e.UserAuthID,
		Provider:           e.Provider,
		UserID:             e.UserID,
		UserName:           e.UserName,
		DisplayName:        e.DisplayName,
		FirstName:          e.FirstName,
		LastName:           e.LastName,
		Email:              e.Email,
		RequestToken:       e.RequestToken,
		RequestTokenSecret: e.RequestTokenSecret,
		AccessToken:        e.AccessToken,
		AccessTokenSecret:  e.AccessTokenSecret,
		Items:              items,
		CreatedDate:        e.CreatedDate.UTC(),
		ModifiedDate:       e.ModifiedDate.UTC(),
	}, nil
}

func ProviderLinkToEntity(l *ar.UserOAuthProvider, key *datastore.Key) (*ProviderLinkEntity, error) {
	items, err := encodeMap(l.Items)
	if err != nil {
		return nil, err
	}
	return &ProviderLinkEntity{
		Key:                key,
		ID:                 l.ID,
		UserAuthID:         l.UserAuthID,
		Provider:           l.Provider,
		UserID:             l.UserID,
		UserName:           l.UserName,
		DisplayName:        l.DisplayName,
		FirstName:          l.FirstName,
		LastName:           l.LastName,
		Email:              l.Email,
		RequestToken:       l.RequestToken,
		RequestTokenSecret: l.RequestTokenSecret,
		AccessToken:        l.AccessToken,
		AccessTokenSecret:  l.AccessTokenSecret,
		Items:              items,
		CreatedDate:        l.CreatedDate,
		ModifiedDate:       l.ModifiedDate,
	}, nil
}

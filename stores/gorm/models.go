//go:build !wasm
// +build !wasm

package gorm

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	ar "github.com/panyam/authrepo"
)

// Unique index names, matched against constraint violations
const (
	idxUserName = "idx_user_auths_user_name"
	idxEmail    = "idx_user_auths_email"
)

func scanJSON(value any, out any) error {
	switch v := value.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, out)
	case string:
		return json.Unmarshal([]byte(v), out)
	default:
		return fmt.Errorf("cannot scan %T as json", value)
	}
}

// StringSlice is a helper type for storing string slices in GORM
type StringSlice []string

func (s StringSlice) Value() (driver.Value, error) {
	if s == nil {
		return nil, nil
	}
	return json.Marshal(s)
}

func (s *StringSlice) Scan(value any) error {
	*s = nil
	return scanJSON(value, s)
}

// StringMap is a helper type for storing string maps in GORM
type StringMap map[string]string

func (m StringMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func (m *StringMap) Scan(value any) error {
	*m = nil
	return scanJSON(value, m)
}

// UserAuthModel is the GORM model for accounts.  Empty usernames and emails
// are stored as NULL so they stay out of the unique indexes.
type UserAuthModel struct {
	ID            string      `gorm:"primaryKey;size:64"`
	UserName      *string     `gorm:"size:255;uniqueIndex:idx_user_auths_user_name"`
	Email         *string     `gorm:"size:320;uniqueIndex:idx_user_auths_email"`
	PrimaryEmail  string      `gorm:"size:320"`
	DisplayName   string      `gorm:"size:255"`
	FirstName     string      `gorm:"size:255"`
	LastName      string      `gorm:"size:255"`
	Salt          string      `gorm:"size:64"`
	PasswordHash  string      `gorm:"size:255"`
	DigestHA1Hash string      `gorm:"size:64"`
	Roles         StringSlice `gorm:"type:jsonb"`
	Permissions   StringSlice `gorm:"type:jsonb"`
	Meta          StringMap   `gorm:"type:jsonb"`
	CreatedDate   time.Time
	ModifiedDate  time.Time
}

func (UserAuthModel) TableName() string {
	return "user_auths"
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

func (m *UserAuthModel) ToUserAuth() *ar.UserAuth {
	return &ar.UserAuth{
		ID:            m.ID,
		UserName:      deref(m.UserName),
		Email:         deref(m.Email),
		PrimaryEmail:  m.PrimaryEmail,
		DisplayName:   m.DisplayName,
		FirstName:     m.FirstName,
		LastName:      m.LastName,
		Salt:          m.Salt,
		PasswordHash:  m.PasswordHash,
		DigestHA1Hash: m.DigestHA1Hash,
		Roles:         []string(m.Roles),
		Permissions:   []string(m.Permissions),
		Meta:          map[string]string(m.Meta),
		CreatedDate:   m.CreatedDate.UTC(),
		ModifiedDate:  m.ModifiedDate.UTC(),
	}
}

func UserAuthToModel(u *ar.UserAuth) *UserAuthModel {
	return &UserAuthModel{
		ID:            u.ID,
		UserName:      nullable(u.UserName),
		Email:         nullable(u.Email),
		PrimaryEmail:  u.PrimaryEmail,
		DisplayName:   u.DisplayName,
		FirstName:     u.FirstName,
		LastName:      u.LastName,
		Salt:          u.Salt,
		PasswordHash:  u.PasswordHash,
		DigestHA1Hash: u.DigestHA1Hash,
		Roles:         StringSlice(u.Roles),
		Permissions:   StringSlice(u.Permissions),
		Meta:          StringMap(u.Meta),
		CreatedDate:   u.CreatedDate,
		ModifiedDate:  u.ModifiedDate,
	}
}

// ProviderLinkModel is the GORM model for UserOAuthProvider records
type ProviderLinkModel struct {
	ID                 string    `gorm:"primaryKey;size:64"`
	UserAuthID         string    `gorm:"size:64;index"`
	Provider           string    `gorm:"size:64;uniqueIndex:idx_user_oauth_providers_provider_user,priority:1"`
	UserID             string    `gorm:"size:255;uniqueIndex:idx_user_oauth_providers_provider_user,priority:2"`
	UserName           string    `gorm:"size:255"`
	DisplayName        string    `gorm:"size:255"`
	FirstName          string    `gorm:"size:255"`
	LastName           string    `gorm:"size:255"`
	Email              string    `gorm:"size:320"`
	RequestToken       string    `gorm:"type:text"`
	RequestTokenSecret string    `gorm:"type:text"`
	AccessToken        string    `gorm:"type:text"`
	AccessTokenSecret  string    `gorm:"type:text"`
	Items              StringMap `gorm:"type:jsonb"`
	CreatedDate        time.Time
	ModifiedDate       time.Time `gorm:"index"`
}

func (ProviderLinkModel) TableName() string {
	return "user_oauth_providers"
}

func (m *ProviderLinkModel) ToProviderLink() *ar.UserOAuthProvider {
	return &ar.UserOAuthProvider{
		ID:                 m.ID,
		UserAuthID:         m.UserAuthID,
		Provider:           m.Provider,
		UserID:             m.UserID,
		UserName:           m.UserName,
		DisplayName:        m.DisplayName,
		FirstName:          m.FirstName,
		LastName:           m.LastName,
		Email:              m.Email,
		RequestToken:       m.RequestToken,
		RequestTokenSecret: m.RequestTokenSecret,
		AccessToken:        m.AccessToken,
		AccessTokenSecret:  m.AccessTokenSecret,
		Items:              map[string]string(m.Items),
		CreatedDate:        m.CreatedDate.UTC(),
		ModifiedDate:       m.ModifiedDate.UTC(),
	}
}

func ProviderLinkToModel(l *ar.UserOAuthProvider) *ProviderLinkModel {
	return &ProviderLinkModel{
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
		Items:              StringMap(l.Items),
		CreatedDate:        l.CreatedDate,
		ModifiedDate:       l.ModifiedDate,
	}
}

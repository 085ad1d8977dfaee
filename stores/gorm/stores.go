//go:build !wasm
// +build !wasm

package gorm

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"

	ar "github.com/panyam/authrepo"
)

// AutoMigrate creates or updates the authrepo tables
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&UserAuthModel{}, &ProviderLinkModel{})
}

// IdentityStore implements ar.IdentityStore using GORM
type IdentityStore struct {
	db *gorm.DB
}

func NewIdentityStore(db *gorm.DB) *IdentityStore {
	return &IdentityStore{db: db}
}

func (s *IdentityStore) EnsureSchema() error {
	return AutoMigrate(s.db)
}

func (s *IdentityStore) ResetSchema() error {
	if err := s.db.Migrator().DropTable(&ProviderLinkModel{}, &UserAuthModel{}); err != nil {
		return fmt.Errorf("failed to drop tables: %w", err)
	}
	return s.EnsureSchema()
}

func (s *IdentityStore) findUserAuth(query string, arg string) (*ar.UserAuth, error) {
	if arg == "" {
		return nil, ar.ErrNotFound
	}
	var model UserAuthModel
	if err := s.db.First(&model, query, arg).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ar.ErrNotFound
		}
		return nil, err
	}
	return model.ToUserAuth(), nil
}

func (s *IdentityStore) GetUserAuth(id string) (*ar.UserAuth, error) {
	return s.findUserAuth("id = ?", id)
}

func (s *IdentityStore) GetUserAuthByUserName(userName string) (*ar.UserAuth, error) {
	return s.findUserAuth("user_name = ?", userName)
}

func (s *IdentityStore) GetUserAuthByEmail(email string) (*ar.UserAuth, error) {
	return s.findUserAuth("email = ?", email)
}

// SaveUserAuth upserts an account.  New accounts get a ULID.
func (s *IdentityStore) SaveUserAuth(user *ar.UserAuth) error {
	if user.ID == "" {
		user.ID = ulid.Make().String()
	}
	if err := s.db.Save(UserAuthToModel(user)).Error; err != nil {
		return s.mapSaveError(err, user)
	}
	return nil
}

// mapSaveError turns unique violations into the repository's duplicate
// errors.  PostgreSQL names the violated index; other dialects are probed.
func (s *IdentityStore) mapSaveError(err error, user *ar.UserAuth) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		switch {
		case pgErr.ConstraintName == idxUserName:
			return ar.NewDuplicateUserError(user.UserName)
		case pgErr.ConstraintName == idxEmail:
			return ar.NewDuplicateEmailError(user.Email)
		}
	} else if !errors.Is(err, gorm.ErrDuplicatedKey) && !strings.Contains(strings.ToLower(err.Error()), "unique") {
		return fmt.Errorf("failed to save user auth: %w", err)
	}

	if other, lookupErr := s.GetUserAuthByUserName(user.UserName); lookupErr == nil && other.ID != user.ID {
		return ar.NewDuplicateUserError(user.UserName)
	}
	if other, lookupErr := s.GetUserAuthByEmail(user.Email); lookupErr == nil && other.ID != user.ID {
		return ar.NewDuplicateEmailError(user.Email)
	}
	return fmt.Errorf("failed to save user auth: %w", err)
}

func (s *IdentityStore) GetProviderLink(provider, userID string) (*ar.UserOAuthProvider, error) {
	var model ProviderLinkModel
	err := s.db.First(&model, "provider = ? AND user_id = ?", provider, userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ar.ErrNotFound
		}
		return nil, err
	}
	return model.ToProviderLink(), nil
}

func (s *IdentityStore) GetProviderLinks(userAuthID string) ([]*ar.UserOAuthProvider, error) {
	var models []ProviderLinkModel
	if err := s.db.Where("user_auth_id = ?", userAuthID).Order("modified_date ASC, id ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	links := make([]*ar.UserOAuthProvider, len(models))
	for i := range models {
		links[i] = models[i].ToProviderLink()
	}
	return links, nil
}

// SaveProviderLink upserts on (Provider, UserID), reusing the stored ID.
func (s *IdentityStore) SaveProviderLink(link *ar.UserOAuthProvider) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var existing ProviderLinkModel
		err := tx.Select("id").First(&existing, "provider = ? AND user_id = ?", link.Provider, link.UserID).Error
		switch {
		case err == nil:
			link.ID = existing.ID
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		case link.ID == "":
			link.ID = ulid.Make().String()
		}
		return tx.Save(ProviderLinkToModel(link)).Error
	})
}

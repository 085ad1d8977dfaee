package authrepo

import (
	"errors"
	"log/slog"
	"time"
)

// Authentication methods reported to an AuthObserver
const (
	MethodPassword = "password"
	MethodDigest   = "digest"
	MethodOAuth    = "oauth"
)

// AuthObserver is told about every authentication attempt.
type AuthObserver interface {
	ObserveAuthentication(method string, success bool)
}

// Repository creates, authenticates and merges accounts against an IdentityStore.
// It holds no mutable state of its own and is safe for concurrent use as long
// as the store is.
type Repository struct {
	Store  IdentityStore
	Hasher PasswordHasher

	// Realm that digest HA1 values are bound to.  Defaults to DefaultRealm.
	Realm string

	Logger   *slog.Logger
	Observer AuthObserver

	// Now is the clock used for timestamps and nonce freshness
	Now func() time.Time
}

func NewRepository(store IdentityStore) *Repository {
	return (&Repository{Store: store}).EnsureDefaults()
}

// EnsureDefaults fills in any unset fields.
func (r *Repository) EnsureDefaults() *Repository {
	if r.Hasher == nil {
		r.Hasher = NewSaltedHasher()
	}
	if r.Realm == "" {
		r.Realm = DefaultRealm
	}
	if r.Logger == nil {
		r.Logger = slog.Default()
	}
	if r.Now == nil {
		r.Now = func() time.Time { return time.Now().UTC() }
	}
	return r
}

func (r *Repository) observe(method string, success bool) {
	if r.Observer != nil {
		r.Observer.ObserveAuthentication(method, success)
	}
}

// digestIdentity is the name a digest client logs in with
func digestIdentity(user *UserAuth) string {
	if user.UserName != "" {
		return user.UserName
	}
	return user.Email
}

func invalidCredentials() error {
	return &AuthError{Code: CodeNotFound, Message: "invalid username or password"}
}

// CreateUserAuth validates and persists a new account.
func (r *Repository) CreateUserAuth(newUser *UserAuth, password string) (*UserAuth, error) {
	if err := ValidateNewUser(newUser, password); err != nil {
		return nil, err
	}
	if err := r.assertNoExistingUser(newUser, ""); err != nil {
		return nil, err
	}

	hash, salt, err := r.Hasher.HashPassword(password)
	if err != nil {
		return nil, err
	}

	user := newUser.Clone()
	user.ID = ""
	user.PasswordHash = hash
	user.Salt = salt
	user.DigestHA1Hash = CreateHA1(digestIdentity(user), r.Realm, password)
	user.CreatedDate = r.Now()
	user.ModifiedDate = user.CreatedDate

	if err := r.Store.SaveUserAuth(user); err != nil {
		return nil, err
	}
	r.Logger.Info("created user auth", "id", user.ID, "username", user.UserName)
	return user, nil
}

// UpdateUserAuth replaces existing with updated, keeping the existing ID and
// CreatedDate.  An empty password keeps the stored credentials.  Renaming
// without a new password clears the digest verifier, since HA1 is bound to
// the login name and cannot be recomputed without the password.
func (r *Repository) UpdateUserAuth(existing, updated *UserAuth, password string) (*UserAuth, error) {
	if existing == nil || existing.ID == "" {
		return nil, NewInvalidArgumentError("UserAuth", "existing user must have an id")
	}
	if err := ValidateUpdatedUser(updated); err != nil {
		return nil, err
	}
	if err := r.assertNoExistingUser(updated, existing.ID); err != nil {
		return nil, err
	}

	user := updated.Clone()
	user.ID = existing.ID

	if password != "" {
		hash, salt, err := r.Hasher.HashPassword(password)
		if err != nil {
			return nil, err
		}
		user.PasswordHash = hash
		user.Salt = salt
		user.DigestHA1Hash = CreateHA1(digestIdentity(user), r.Realm, password)
	} else {
		user.PasswordHash = existing.PasswordHash
		user.Salt = existing.Salt
		user.DigestHA1Hash = existing.DigestHA1Hash
		if digestIdentity(user) != digestIdentity(existing) {
			user.DigestHA1Hash = ""
		}
	}

	user.CreatedDate = existing.CreatedDate
	user.ModifiedDate = r.Now()
	if user.CreatedDate.IsZero() {
		user.CreatedDate = user.ModifiedDate
	}

	if err := r.Store.SaveUserAuth(user); err != nil {
		return nil, err
	}
	r.Logger.Info("updated user auth", "id", user.ID, "username", user.UserName)
	return user, nil
}

// assertNoExistingUser fails if another account (not excludeID) already owns
// the username or email of user.
func (r *Repository) assertNoExistingUser(user *UserAuth, excludeID string) error {
	if user.UserName != "" {
		existing, err := r.Store.GetUserAuthByUserName(user.UserName)
		if err != nil && !IsNotFound(err) {
			return err
		}
		if err == nil && existing != nil && (excludeID == "" || existing.ID != excludeID) {
			return NewDuplicateUserError(user.UserName)
		}
	}
	if user.Email != "" {
		existing, err := r.Store.GetUserAuthByEmail(user.Email)
		if err != nil && !IsNotFound(err) {
			return err
		}
		if err == nil && existing != nil && (excludeID == "" || existing.ID != excludeID) {
			return NewDuplicateEmailError(user.Email)
		}
	}
	return nil
}

// GetUserAuth loads an account by ID.
func (r *Repository) GetUserAuth(id string) (*UserAuth, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	return r.Store.GetUserAuth(id)
}

// GetUserAuthByUserName loads an account by username, or by email when the
// identifier contains "@".
func (r *Repository) GetUserAuthByUserName(userNameOrEmail string) (*UserAuth, error) {
	if userNameOrEmail == "" {
		return nil, ErrNotFound
	}
	if DetectUsernameType(userNameOrEmail) == IdentifierEmail {
		return r.Store.GetUserAuthByEmail(userNameOrEmail)
	}
	return r.Store.GetUserAuthByUserName(userNameOrEmail)
}

// TryAuthenticate verifies a password login.  Unknown identifiers and wrong
// passwords both return the same not found error.
func (r *Repository) TryAuthenticate(userNameOrEmail, password string) (*UserAuth, error) {
	user, err := r.GetUserAuthByUserName(userNameOrEmail)
	if err != nil {
		if IsNotFound(err) {
			r.Logger.Debug("password login for unknown user")
			r.observe(MethodPassword, false)
			return nil, invalidCredentials()
		}
		return nil, err
	}
	if !r.Hasher.VerifyPassword(password, user.PasswordHash, user.Salt) {
		r.Logger.Debug("password mismatch", "id", user.ID)
		r.observe(MethodPassword, false)
		return nil, invalidCredentials()
	}
	r.observe(MethodPassword, true)
	return user, nil
}

// TryAuthenticateDigest verifies a parsed Digest header set.  headers must
// carry the request method and client address as well as the header fields.
func (r *Repository) TryAuthenticateDigest(headers map[string]string, privateKey string, nonceTimeoutSeconds int, sequence string) (*UserAuth, error) {
	user, err := r.GetUserAuthByUserName(headers[HeaderUserName])
	if err != nil {
		if IsNotFound(err) {
			r.observe(MethodDigest, false)
			return nil, invalidCredentials()
		}
		return nil, err
	}
	if !ValidateDigestResponseAt(headers, privateKey, nonceTimeoutSeconds, user.DigestHA1Hash, sequence, r.Now()) {
		r.Logger.Debug("digest verification failed", "id", user.ID)
		r.observe(MethodDigest, false)
		return nil, invalidCredentials()
	}
	r.observe(MethodDigest, true)
	return user, nil
}

// ResolveUserAuth finds the account a session belongs to, trying in order
// the session's account id, its username and finally the provider link
// named by tokens.  Each step falls through to the next on a miss.
func (r *Repository) ResolveUserAuth(session *AuthSession, tokens *OAuthTokens) (*UserAuth, error) {
	if session != nil {
		if session.UserAuthID != "" {
			user, err := r.Store.GetUserAuth(session.UserAuthID)
			if err == nil {
				return user, nil
			}
			if !IsNotFound(err) {
				return nil, err
			}
		}
		name := session.UserAuthName
		if name == "" {
			name = session.UserName
		}
		if name != "" {
			user, err := r.GetUserAuthByUserName(name)
			if err == nil {
				return user, nil
			}
			if !IsNotFound(err) {
				return nil, err
			}
		}
	}

	if tokens == nil || tokens.Provider == "" || tokens.UserID == "" {
		return nil, ErrNotFound
	}
	link, err := r.Store.GetProviderLink(tokens.Provider, tokens.UserID)
	if err != nil {
		return nil, err
	}
	if link.UserAuthID == "" {
		return nil, ErrNotFound
	}
	return r.Store.GetUserAuth(link.UserAuthID)
}

// CreateOrMergeAuthSession records a provider login.  The account is resolved
// (or started empty), the provider link is loaded (or started), and both are
// merged with populate-missing rules.  The account is saved first so the
// link can point at its ID.  A failure between the two saves leaves the link
// stale; nothing is rolled back.
func (r *Repository) CreateOrMergeAuthSession(session *AuthSession, tokens *OAuthTokens) (string, error) {
	if tokens == nil || tokens.Provider == "" || tokens.UserID == "" {
		return "", NewInvalidArgumentError("OAuthTokens", "provider and user id are required")
	}

	user, err := r.ResolveUserAuth(session, tokens)
	if err != nil {
		if !IsNotFound(err) {
			return "", err
		}
		user = &UserAuth{}
	}

	link, err := r.Store.GetProviderLink(tokens.Provider, tokens.UserID)
	if err != nil {
		if !IsNotFound(err) {
			return "", err
		}
		link = &UserOAuthProvider{Provider: tokens.Provider, UserID: tokens.UserID}
	}

	PopulateProviderFromTokens(link, tokens)
	PopulateUserAuthFromProvider(user, link)

	user.ModifiedDate = r.Now()
	if user.CreatedDate.IsZero() {
		user.CreatedDate = user.ModifiedDate
	}
	link.ModifiedDate = user.ModifiedDate
	if link.CreatedDate.IsZero() {
		link.CreatedDate = user.ModifiedDate
	}

	if err := r.Store.SaveUserAuth(user); err != nil {
		return "", err
	}
	previous := link.UserAuthID
	link.UserAuthID = user.ID
	if err := r.Store.SaveProviderLink(link); err != nil {
		return "", err
	}

	if previous != "" && previous != user.ID {
		r.Logger.Info("moved provider link", "provider", link.Provider, "from", previous, "to", user.ID)
	}
	r.Logger.Info("merged provider login", "provider", link.Provider, "id", user.ID)
	r.observe(MethodOAuth, true)
	return user.ID, nil
}

// LoadUserAuth hydrates session from the store.  Nothing happens if no
// account resolves.
func (r *Repository) LoadUserAuth(session *AuthSession, tokens *OAuthTokens) error {
	if session == nil {
		return nil
	}
	user, err := r.ResolveUserAuth(session, tokens)
	if err != nil {
		if IsNotFound(err) {
			return nil
		}
		return err
	}
	links, err := r.Store.GetProviderLinks(user.ID)
	if err != nil {
		return err
	}
	HydrateSession(session, user, links)
	return nil
}

// GetUserOAuthProviders lists an account's provider links, oldest change first.
func (r *Repository) GetUserOAuthProviders(userAuthID string) ([]*UserOAuthProvider, error) {
	return r.Store.GetProviderLinks(userAuthID)
}

// SaveUserAuth writes the session's profile onto its account, creating the
// account if the session has none yet.  Stored values win over session values.
func (r *Repository) SaveUserAuth(session *AuthSession) error {
	if session == nil {
		return NewInvalidArgumentError("AuthSession", "session is required")
	}

	var user *UserAuth
	if session.UserAuthID != "" {
		existing, err := r.Store.GetUserAuth(session.UserAuthID)
		switch {
		case err == nil:
			user = existing
		case errors.Is(err, ErrNotFound):
			user = &UserAuth{ID: session.UserAuthID}
		default:
			return err
		}
	} else {
		user = &UserAuth{}
	}

	PopulateUserAuthFromSession(user, session)
	if err := r.SaveUserAuthRecord(user); err != nil {
		return err
	}
	session.UserAuthID = user.ID
	return nil
}

// SaveUserAuthRecord persists user as is, stamping its timestamps.
func (r *Repository) SaveUserAuthRecord(user *UserAuth) error {
	if user == nil {
		return NewInvalidArgumentError("UserAuth", "user is required")
	}
	user.ModifiedDate = r.Now()
	if user.CreatedDate.IsZero() {
		user.CreatedDate = user.ModifiedDate
	}
	return r.Store.SaveUserAuth(user)
}

func (r *Repository) EnsureSchema() error {
	return r.Store.EnsureSchema()
}

func (r *Repository) ResetSchema() error {
	return r.Store.ResetSchema()
}

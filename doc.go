// Package authrepo is a storage agnostic user authentication repository.
//
// It persists account records (UserAuth) and their links to external
// identity providers (UserOAuthProvider), verifies passwords and HTTP Digest
// credentials, and reconciles local accounts with OAuth logins.
//
// # Architecture
//
// Repository: the orchestrator.  It validates input, hashes credentials,
// enforces username and email uniqueness and merges provider logins into
// accounts.  It is written once against the IdentityStore interface.
//
// IdentityStore: the storage contract.  Implementations live under stores/:
//   - stores/fs: JSON files on local disk
//   - stores/gorm: any GORM supported relational database
//   - stores/pg: PostgreSQL through pgx with embedded migrations
//   - stores/redis: Redis JSON values with SETNX maintained indexes
//   - stores/gae: Google Cloud Datastore
//
// Every store enforces unique usernames and emails itself so that two
// concurrent creates with the same name cannot both succeed.
//
// AuthSession: the host's in-memory view of a logged in user.  LoadUserAuth
// hydrates it from the store; CreateOrMergeAuthSession records a provider
// login against it.
//
// # Basic Usage
//
//	store := fs.NewFSIdentityStore("/var/data/auth")
//	repo := authrepo.NewRepository(store)
//	if err := repo.EnsureSchema(); err != nil {
//	    log.Fatal(err)
//	}
//
//	user, err := repo.CreateUserAuth(&authrepo.UserAuth{UserName: "john", Email: "john@example.com"}, "secret")
//	if errors.Is(err, authrepo.ErrDuplicateUser) {
//	    // username taken
//	}
//
//	user, err = repo.TryAuthenticate("john", "secret")
//	if authrepo.IsNotFound(err) {
//	    // unknown user or wrong password
//	}
//
// # Provider Logins
//
// After an OAuth callback, build OAuthTokens (TokensFromUserInfo does this
// for x/oauth2 tokens) and merge them:
//
//	session := &authrepo.AuthSession{ID: sessionID}
//	accountID, err := repo.CreateOrMergeAuthSession(session, tokens)
//	session.UserAuthID = accountID
//	err = repo.LoadUserAuth(session, tokens)
//
// # HTTP Digest
//
// HA1 = MD5(username:realm:password) is stored with each account.  The host
// issues nonces with CreateNonce, parses the Authorization header with
// ParseDigestHeader and calls TryAuthenticateDigest with the last nc it
// accepted for that nonce.  Only qop=auth responses are accepted.
// AuthHandlers wires all of this to net/http, keeping the counters in the
// scs session store.
package authrepo

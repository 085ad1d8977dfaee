// Package grpc authenticates gRPC calls against an authrepo Repository and
// carries the resolved account ID through the call context.
//
// Clients send HTTP Basic credentials in the "authorization" metadata key.
// A gateway that already authenticated the caller over HTTP may instead
// forward the account ID in "x-user-id" when the server is configured to
// trust it.
package grpc

import (
	"context"
	"encoding/base64"
	"strings"

	"google.golang.org/grpc/metadata"
)

const (
	// MetadataKeyAuthorization carries "Basic <base64(user:password)>"
	MetadataKeyAuthorization = "authorization"

	// DefaultMetadataKeyUserID is the metadata key a trusted gateway forwards
	// the authenticated account ID in
	DefaultMetadataKeyUserID = "x-user-id"
)

// Config holds the metadata key configuration for auth context.
type Config struct {
	// MetadataKeyUserID defaults to "x-user-id".
	MetadataKeyUserID string

	// TrustForwardedUserID accepts MetadataKeyUserID without credentials.
	// Only enable behind a gateway that strips the key from client requests.
	TrustForwardedUserID bool
}

func DefaultConfig() *Config {
	return &Config{MetadataKeyUserID: DefaultMetadataKeyUserID}
}

// EnsureDefaults fills in default values for any unset fields.
func (c *Config) EnsureDefaults() {
	if c.MetadataKeyUserID == "" {
		c.MetadataKeyUserID = DefaultMetadataKeyUserID
	}
}

type userIDKey struct{}

// WithUserID returns ctx carrying the authenticated account ID
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

// UserIDFromContext returns the account ID the interceptor resolved, or "".
func UserIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(userIDKey{}).(string)
	return v
}

// IsAuthenticated returns true if there is an authenticated user in the context.
func IsAuthenticated(ctx context.Context) bool {
	return UserIDFromContext(ctx) != ""
}

// BasicCredentialsToOutgoingContext attaches Basic credentials for the
// interceptor on the other end.
func BasicCredentialsToOutgoingContext(ctx context.Context, userName, password string) context.Context {
	encoded := base64.StdEncoding.EncodeToString([]byte(userName + ":" + password))
	return metadata.AppendToOutgoingContext(ctx, MetadataKeyAuthorization, "Basic "+encoded)
}

// UserIDToOutgoingContext forwards an already authenticated account ID.
func UserIDToOutgoingContext(ctx context.Context, userID string) context.Context {
	return UserIDToOutgoingContextWithKey(ctx, userID, DefaultMetadataKeyUserID)
}

func UserIDToOutgoingContextWithKey(ctx context.Context, userID string, key string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, key, userID)
}

// basicCredentials decodes the first Basic authorization value in md
func basicCredentials(md metadata.MD) (userName, password string, ok bool) {
	for _, value := range md.Get(MetadataKeyAuthorization) {
		const prefix = "basic "
		if len(value) < len(prefix) || !strings.EqualFold(value[:len(prefix)], prefix) {
			continue
		}
		decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(value[len(prefix):]))
		if err != nil {
			return "", "", false
		}
		userName, password, ok = strings.Cut(string(decoded), ":")
		return userName, password, ok
	}
	return "", "", false
}

func forwardedUserID(md metadata.MD, config *Config) string {
	if !config.TrustForwardedUserID {
		return ""
	}
	if values := md.Get(config.MetadataKeyUserID); len(values) > 0 {
		return values[0]
	}
	return ""
}

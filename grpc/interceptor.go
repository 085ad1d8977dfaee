package grpc

import (
	"context"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/panyam/authrepo"
)

// Authenticator verifies a username (or email) and password.
// *authrepo.Repository satisfies it.
type Authenticator interface {
	TryAuthenticate(userNameOrEmail, password string) (*authrepo.UserAuth, error)
}

// InterceptorConfig configures the auth interceptor behavior.
type InterceptorConfig struct {
	*Config

	Authenticator Authenticator

	// RequireAuth when true rejects unauthenticated requests.
	// When false, requests proceed but UserIDFromContext returns empty.
	RequireAuth bool

	// Full method names like "/package.Service/Method" that skip RequireAuth.
	PublicMethods map[string]bool
}

// DefaultInterceptorConfig returns a config that requires auth for all methods.
func DefaultInterceptorConfig(auth Authenticator) *InterceptorConfig {
	return &InterceptorConfig{
		Config:        DefaultConfig(),
		Authenticator: auth,
		RequireAuth:   true,
		PublicMethods: make(map[string]bool),
	}
}

// NewPublicMethodsConfig creates a config with the specified public methods.
func NewPublicMethodsConfig(auth Authenticator, publicMethods ...string) *InterceptorConfig {
	config := DefaultInterceptorConfig(auth)
	for _, method := range publicMethods {
		config.PublicMethods[method] = true
	}
	return config
}

// OptionalAuthConfig returns a config that allows unauthenticated requests.
func OptionalAuthConfig(auth Authenticator) *InterceptorConfig {
	config := DefaultInterceptorConfig(auth)
	config.RequireAuth = false
	return config
}

func (config *InterceptorConfig) ensureDefaults() *InterceptorConfig {
	if config == nil {
		config = DefaultInterceptorConfig(nil)
	}
	if config.Config == nil {
		config.Config = DefaultConfig()
	}
	if config.PublicMethods == nil {
		config.PublicMethods = make(map[string]bool)
	}
	config.Config.EnsureDefaults()
	return config
}

// authenticate resolves the caller and returns ctx carrying its account ID.
// Wrong credentials fail even on public methods.
func (config *InterceptorConfig) authenticate(ctx context.Context, method string) (context.Context, error) {
	userID := ""
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if userName, password, ok := basicCredentials(md); ok {
			if config.Authenticator == nil {
				return nil, status.Error(codes.Unimplemented, "password authentication not configured")
			}
			user, err := config.Authenticator.TryAuthenticate(userName, password)
			if err != nil {
				if authrepo.IsNotFound(err) {
					return nil, status.Error(codes.Unauthenticated, "invalid username or password")
				}
				slog.Error("error authenticating grpc call", "method", method, "err", err)
				return nil, status.Error(codes.Internal, "authentication failed")
			}
			userID = user.ID
		} else {
			userID = forwardedUserID(md, config.Config)
		}
	}

	if userID == "" && config.RequireAuth && !config.PublicMethods[method] {
		return nil, status.Error(codes.Unauthenticated, "authentication required")
	}
	if userID == "" {
		return ctx, nil
	}
	return WithUserID(ctx, userID), nil
}

// UnaryAuthInterceptor returns a gRPC unary interceptor that authenticates
// the caller.
func UnaryAuthInterceptor(config *InterceptorConfig) grpc.UnaryServerInterceptor {
	config = config.ensureDefaults()
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx, err := config.authenticate(ctx, info.FullMethod)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// StreamAuthInterceptor returns a gRPC stream interceptor that authenticates
// the caller.
func StreamAuthInterceptor(config *InterceptorConfig) grpc.StreamServerInterceptor {
	config = config.ensureDefaults()
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx, err := config.authenticate(ss.Context(), info.FullMethod)
		if err != nil {
			return err
		}
		return handler(srv, &authenticatedStream{ServerStream: ss, ctx: ctx})
	}
}

type authenticatedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *authenticatedStream) Context() context.Context { return s.ctx }

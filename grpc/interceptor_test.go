package grpc

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/panyam/authrepo"
	"github.com/panyam/authrepo/stores/fs"
)

func newTestRepository(t *testing.T) *authrepo.Repository {
	t.Helper()
	repo := authrepo.NewRepository(fs.NewFSIdentityStore(t.TempDir()))
	if _, err := repo.CreateUserAuth(&authrepo.UserAuth{UserName: "john", Email: "john@example.com"}, "secret"); err != nil {
		t.Fatalf("creating user: %v", err)
	}
	return repo
}

func incoming(userName, password string) context.Context {
	out := BasicCredentialsToOutgoingContext(context.Background(), userName, password)
	md, _ := metadata.FromOutgoingContext(out)
	return metadata.NewIncomingContext(context.Background(), md)
}

func callUnary(t *testing.T, config *InterceptorConfig, ctx context.Context, method string) (string, error) {
	t.Helper()
	userID := ""
	_, err := UnaryAuthInterceptor(config)(ctx, nil, &grpc.UnaryServerInfo{FullMethod: method},
		func(ctx context.Context, req any) (any, error) {
			userID = UserIDFromContext(ctx)
			return "result", nil
		})
	return userID, err
}

func expectCode(t *testing.T, err error, code codes.Code) {
	t.Helper()
	st, ok := status.FromError(err)
	if !ok {
		t.Fatalf("expected grpc status error, got %v", err)
	}
	if st.Code() != code {
		t.Errorf("expected %v, got %v", code, st.Code())
	}
}

func TestUnaryAuthInterceptor_RequireAuth_NoUser(t *testing.T) {
	_, err := callUnary(t, DefaultInterceptorConfig(newTestRepository(t)), context.Background(), "/pkg.Svc/Method")
	expectCode(t, err, codes.Unauthenticated)
}

func TestUnaryAuthInterceptor_BasicCredentials(t *testing.T) {
	repo := newTestRepository(t)
	user, err := repo.GetUserAuthByUserName("john")
	if err != nil {
		t.Fatal(err)
	}

	for _, login := range []string{"john", "john@example.com"} {
		userID, err := callUnary(t, DefaultInterceptorConfig(repo), incoming(login, "secret"), "/pkg.Svc/Method")
		if err != nil {
			t.Fatalf("unexpected error for %s: %v", login, err)
		}
		if userID != user.ID {
			t.Errorf("expected user ID %q, got %q", user.ID, userID)
		}
	}
}

func TestUnaryAuthInterceptor_WrongPassword(t *testing.T) {
	config := NewPublicMethodsConfig(newTestRepository(t), "/pkg.Svc/Public")
	_, err := callUnary(t, config, incoming("john", "wrong"), "/pkg.Svc/Method")
	expectCode(t, err, codes.Unauthenticated)

	// bad credentials are rejected on public methods too
	_, err = callUnary(t, config, incoming("john", "wrong"), "/pkg.Svc/Public")
	expectCode(t, err, codes.Unauthenticated)
}

func TestUnaryAuthInterceptor_PublicMethod(t *testing.T) {
	config := NewPublicMethodsConfig(newTestRepository(t), "/pkg.Svc/Public")
	userID, err := callUnary(t, config, context.Background(), "/pkg.Svc/Public")
	if err != nil {
		t.Fatalf("unexpected error for public method: %v", err)
	}
	if userID != "" {
		t.Errorf("expected anonymous call, got %q", userID)
	}
}

func TestUnaryAuthInterceptor_OptionalAuth(t *testing.T) {
	_, err := callUnary(t, OptionalAuthConfig(newTestRepository(t)), context.Background(), "/pkg.Svc/Method")
	if err != nil {
		t.Fatalf("unexpected error with optional auth: %v", err)
	}
}

func TestUnaryAuthInterceptor_ForwardedUserID(t *testing.T) {
	md := metadata.Pairs(DefaultMetadataKeyUserID, "gateway-user")
	ctx := metadata.NewIncomingContext(context.Background(), md)

	config := DefaultInterceptorConfig(nil)
	_, err := callUnary(t, config, ctx, "/pkg.Svc/Method")
	expectCode(t, err, codes.Unauthenticated)

	config.TrustForwardedUserID = true
	userID, err := callUnary(t, config, ctx, "/pkg.Svc/Method")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if userID != "gateway-user" {
		t.Errorf("expected %q, got %q", "gateway-user", userID)
	}
}

type failingAuthenticator struct{}

func (failingAuthenticator) TryAuthenticate(string, string) (*authrepo.UserAuth, error) {
	return nil, errors.New("connection refused")
}

func TestUnaryAuthInterceptor_StorageFailure(t *testing.T) {
	_, err := callUnary(t, DefaultInterceptorConfig(failingAuthenticator{}), incoming("john", "secret"), "/pkg.Svc/Method")
	expectCode(t, err, codes.Internal)

	_, err = callUnary(t, DefaultInterceptorConfig(nil), incoming("john", "secret"), "/pkg.Svc/Method")
	expectCode(t, err, codes.Unimplemented)
}

type mockServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (m *mockServerStream) Context() context.Context { return m.ctx }

func TestStreamAuthInterceptor(t *testing.T) {
	repo := newTestRepository(t)
	interceptor := StreamAuthInterceptor(DefaultInterceptorConfig(repo))
	info := &grpc.StreamServerInfo{FullMethod: "/pkg.Svc/Stream"}

	err := interceptor(nil, &mockServerStream{ctx: context.Background()}, info, func(srv any, stream grpc.ServerStream) error {
		t.Error("handler should not be called")
		return nil
	})
	expectCode(t, err, codes.Unauthenticated)

	userID := ""
	err = interceptor(nil, &mockServerStream{ctx: incoming("john", "secret")}, info, func(srv any, stream grpc.ServerStream) error {
		userID = UserIDFromContext(stream.Context())
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if userID == "" {
		t.Error("expected stream context to carry the user ID")
	}
}

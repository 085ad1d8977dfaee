package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/gorilla/mux"
	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	ar "github.com/panyam/authrepo"
	authgrpc "github.com/panyam/authrepo/grpc"
	"github.com/panyam/authrepo/internal/config"
	"github.com/panyam/authrepo/internal/metrics"
	"github.com/panyam/authrepo/oauth2"
)

const shutdownTimeout = 10 * time.Second

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the login endpoints and gRPC authentication",
		Long: `Serve the HTTP login, registration, digest and OAuth endpoints under /auth,
Prometheus metrics, and (when grpc.addr is set) a gRPC server whose
interceptors authenticate Basic credentials against the store.`,
		RunE: runServe,
	}
	cmd.Flags().String("addr", "", "HTTP listen address")
	cmd.Flags().String("grpc-addr", "", "gRPC listen address (empty = disabled)")
	return cmd
}

// server wires the repository into the HTTP and gRPC front ends.
type server struct {
	cfg      *config.Config
	logger   *slog.Logger
	repo     *ar.Repository
	handlers *ar.AuthHandlers
	metrics  *metrics.Metrics
	router   *mux.Router
	health   *health.Server
}

func newServer(cfg *config.Config, store ar.IdentityStore, logger *slog.Logger) *server {
	m := metrics.New()
	repo := (&ar.Repository{
		Store:    store,
		Realm:    cfg.Digest.Realm,
		Logger:   logger,
		Observer: m,
	}).EnsureDefaults()

	session := scs.New()
	session.Lifetime = cfg.HTTP.SessionLifetime
	session.Cookie.Secure = cfg.HTTP.SecureCookies
	session.Cookie.HttpOnly = true

	handlers := ar.NewAuthHandlers(repo, session)
	handlers.DigestPrivateKey = cfg.Digest.PrivateKey
	handlers.NonceTimeoutSeconds = cfg.Digest.NonceTimeoutSeconds
	handlers.TrustProxyHeaders = cfg.HTTP.TrustProxyHeaders

	s := &server{
		cfg:      cfg,
		logger:   logger,
		repo:     repo,
		handlers: handlers,
		metrics:  m,
		health:   health.NewServer(),
	}
	s.router = s.setupRoutes()
	return s
}

func (s *server) setupRoutes() *mux.Router {
	r := mux.NewRouter()
	r.Handle(s.cfg.HTTP.MetricsPath, s.metrics.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	r.HandleFunc("/auth/failed", s.handleOAuthFailure).Methods(http.MethodGet)
	for _, provider := range s.oauthProviders() {
		prefix := "/auth/" + provider.Provider
		provider.AuthFailureUrl = "/auth/failed"
		r.PathPrefix(prefix + "/").Handler(http.StripPrefix(prefix, provider.Handler()))
		s.logger.Info("oauth provider enabled", "provider", provider.Provider, "path", prefix)
	}
	r.PathPrefix("/auth/").Handler(http.StripPrefix("/auth", s.handlers.Routes()))

	r.Handle("/admin/accounts/{id}",
		s.handlers.RequireRole(ar.RoleAdmin, http.HandlerFunc(s.handleGetAccount))).Methods(http.MethodGet)
	return r
}

// oauthProviders returns the providers that have a client id configured.
func (s *server) oauthProviders() []*oauth2.BaseOAuth2 {
	var out []*oauth2.BaseOAuth2
	google := oauth2.NewGoogleOAuth2(s.cfg.OAuth.Google.ClientID, s.cfg.OAuth.Google.ClientSecret,
		s.cfg.OAuth.Google.CallbackURL, s.handlers.SaveProviderLogin)
	if google.ClientID != "" {
		out = append(out, google.BaseOAuth2)
	}
	github := oauth2.NewGithubOAuth2(s.cfg.OAuth.GitHub.ClientID, s.cfg.OAuth.GitHub.ClientSecret,
		s.cfg.OAuth.GitHub.CallbackURL, s.handlers.SaveProviderLogin)
	if github.ClientID != "" {
		out = append(out, github.BaseOAuth2)
	}
	return out
}

// Handler is the full HTTP stack: request counting, then session load/save,
// then the router.
func (s *server) Handler() http.Handler {
	return s.metrics.Instrument(s.handlers.Session.LoadAndSave(s.router))
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func (s *server) handleOAuthFailure(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "oauth login failed", "code": "OAUTH_FAILED"})
}

func (s *server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	user, err := s.repo.GetUserAuth(id)
	if ar.IsNotFound(err) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no such account", "code": ar.CodeNotFound})
		return
	}
	if err != nil {
		s.logger.Error("error loading account", "id", id, "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "could not load account", "code": "internal"})
		return
	}
	links, err := s.repo.GetUserOAuthProviders(user.ID)
	if err != nil {
		s.logger.Error("error loading provider links", "id", id, "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "could not load account", "code": "internal"})
		return
	}
	writeJSON(w, http.StatusOK, newUserView(user, links))
}

// newGRPCServer authenticates every call except health checks.
func (s *server) newGRPCServer() *grpc.Server {
	interceptorConfig := authgrpc.NewPublicMethodsConfig(s.repo,
		healthpb.Health_Check_FullMethodName,
		healthpb.Health_Watch_FullMethodName,
	)
	interceptorConfig.TrustForwardedUserID = s.cfg.GRPC.TrustForwardedUserID

	gs := grpc.NewServer(
		grpc.ChainUnaryInterceptor(authgrpc.UnaryAuthInterceptor(interceptorConfig)),
		grpc.ChainStreamInterceptor(authgrpc.StreamAuthInterceptor(interceptorConfig)),
	)
	healthpb.RegisterHealthServer(gs, s.health)
	return gs
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	store, closeStore, err := openStore(cmd.Context(), cfg.Store)
	if err != nil {
		return oops.Code("STORE_CONNECT_FAILED").With("backend", cfg.Store.Backend).Wrap(err)
	}
	defer closeStore()

	if err := store.EnsureSchema(); err != nil {
		return oops.Code("SCHEMA_FAILED").With("operation", "ensure schema").Wrap(err)
	}
	if cfg.Digest.PrivateKey == "" {
		logger.Warn("digest.private_key is not set, digest login is disabled")
	}

	srv := newServer(cfg, store, logger)
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 2)
	httpServer := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("http server listening", "addr", cfg.HTTP.Addr, "backend", cfg.Store.Backend)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- oops.With("addr", cfg.HTTP.Addr).Wrap(err)
		}
	}()

	var grpcServer *grpc.Server
	if cfg.GRPC.Addr != "" {
		listener, err := net.Listen("tcp", cfg.GRPC.Addr)
		if err != nil {
			return oops.With("addr", cfg.GRPC.Addr).Wrap(err)
		}
		grpcServer = srv.newGRPCServer()
		go func() {
			logger.Info("grpc server listening", "addr", cfg.GRPC.Addr)
			if err := grpcServer.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				errCh <- oops.With("addr", cfg.GRPC.Addr).Wrap(err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		return err
	}

	srv.health.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
	return httpServer.Shutdown(shutdownCtx)
}

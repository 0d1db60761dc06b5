// Command webauth serves the demo methods over HTTP behind authentication.
// Basic credentials come from the config's bcrypt user table; bearer tokens
// are accepted when a JWT secret or an OIDC issuer is configured.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mnehpets/rpcserve/auth"
	"github.com/mnehpets/rpcserve/config"
	"github.com/mnehpets/rpcserve/example/demo"
	"github.com/mnehpets/rpcserve/jsonrpc"
	"github.com/mnehpets/rpcserve/web"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	logger := cfg.Logger()
	if err != nil {
		logger.Error("loading config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	guard, err := newGuard(ctx, cfg)
	if err != nil {
		logger.Error("configuring authentication", "error", err)
		os.Exit(1)
	}

	root, err := demo.NewHandler()
	if err != nil {
		logger.Error("building handler", "error", err)
		os.Exit(1)
	}
	root.MustRegister("whoami", func(ctx context.Context) string {
		p, _ := auth.PrincipalFromContext(ctx)
		return p.Subject
	}, jsonrpc.WithHelp("Return the authenticated user."))
	d := jsonrpc.NewDispatcher(root, jsonrpc.WithLogger(logger))

	mux := http.NewServeMux()
	mux.Handle(cfg.HTTP.Path, web.NewResource(d,
		web.WithLogger(logger),
		web.WithProcessors(web.AccessLog(logger), web.RateLimit(cfg.HTTP.RateLimit, cfg.HTTP.RateBurst), guard),
	))
	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("http auth server listening", "addr", cfg.HTTP.Addr, "realm", cfg.Auth.Realm)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func newGuard(ctx context.Context, cfg config.Config) (*auth.Guard, error) {
	users := auth.BcryptUsers(cfg.Auth.Users)
	if len(users) == 0 {
		hash, err := auth.HashPassword("p4ssw0rd")
		if err != nil {
			return nil, err
		}
		users = auth.BcryptUsers{"bob": hash}
		cfg.Logger().Warn("no users configured, accepting bob/p4ssw0rd")
	}
	authenticators := []auth.Authenticator{&auth.Basic{Checker: users}}

	if cfg.Auth.JWTSecret != "" {
		b, err := auth.NewJWTBearer([]byte(cfg.Auth.JWTSecret), cfg.Auth.JWTIssuer)
		if err != nil {
			return nil, err
		}
		authenticators = append(authenticators, b)
	}
	if cfg.Auth.OIDCIssuer != "" {
		b, err := auth.NewOIDCBearer(ctx, cfg.Auth.OIDCIssuer, cfg.Auth.OIDCClientID)
		if err != nil {
			return nil, err
		}
		authenticators = append(authenticators, b)
	}

	opts := []auth.GuardOption{auth.WithLogger(cfg.Logger())}
	key, err := cfg.SessionKeyBytes()
	if err != nil {
		return nil, err
	}
	if key != nil {
		// Plain http on localhost, so the cookie cannot be Secure.
		cookie, err := auth.NewSessionCookie("rpcserve_session", "k1", map[string][]byte{"k1": key}, auth.WithSecure(false))
		if err != nil {
			return nil, err
		}
		opts = append(opts, auth.WithSession(cookie, cfg.Auth.SessionTTL))
	}
	return auth.NewGuard(cfg.Auth.Realm, authenticators, opts...)
}

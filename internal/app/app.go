package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/heartmarshall/curation-backend/internal/auth"
	"github.com/heartmarshall/curation-backend/internal/config"
	"github.com/heartmarshall/curation-backend/internal/service/assignindex"
	"github.com/heartmarshall/curation-backend/internal/service/assignment"
	"github.com/heartmarshall/curation-backend/internal/service/workflow"
	"github.com/heartmarshall/curation-backend/internal/store"
	"github.com/heartmarshall/curation-backend/internal/transport/middleware"
	"github.com/heartmarshall/curation-backend/internal/transport/rest"
)

// Run is the application entry point. It loads configuration, connects the
// selected backend, wires the services and serves HTTP until ctx is done.
func Run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := NewLogger(cfg.Log)

	logger.Info("starting application",
		slog.String("version", BuildVersion()),
		slog.String("log_level", cfg.Log.Level),
		slog.String("store_backend", cfg.Store.Backend),
	)

	backends, err := OpenBackends(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open backend: %w", err)
	}
	defer backends.Close()

	st, err := store.New(logger, backends.Items, store.Options{
		ReadAttempts:   cfg.Store.ReadAttempts,
		ReadRetryDelay: cfg.Store.ReadRetryDelay,
		CallTimeout:    cfg.Store.CallTimeout,
	})
	if err != nil {
		return fmt.Errorf("create store: %w", err)
	}

	validator, err := newTokenValidator(ctx, cfg.Auth, logger)
	if err != nil {
		return err
	}

	policy := cfg.Policy()
	index := assignindex.NewIndex(logger, backends.Records, st)
	sampler := assignment.NewSampler(logger, st, policy, assignment.SamplerOptions{
		GroupWeights:   cfg.Assignment.GroupWeights,
		StatsTTL:       cfg.Assignment.StatsCacheTTL,
		StatsCacheSize: cfg.Assignment.StatsCacheSize,
	})
	orchestrator := assignment.NewOrchestrator(logger, st, assignment.NewEngine(logger, st), sampler, index, policy, cfg.Assignment.MaxBatch)
	updates := workflow.NewEngine(logger, st, index, policy)

	limiter := middleware.NewRateLimiter(time.Minute)
	defer limiter.Stop()

	handler := rest.NewRouter(rest.RouterDeps{
		Logger:         logger,
		Items:          rest.NewItemHandler(logger, orchestrator, updates, index, st, policy),
		Admin:          rest.NewAdminHandler(logger, st, sampler),
		Health:         rest.NewHealthHandler(st, cfg.Store.Backend, BuildVersion()),
		Auth:           middleware.Auth(validator),
		CORS:           middleware.CORS(cfg.CORS),
		RateLimit:      limiter.Limit(cfg.Server.RateLimitPerMinute),
		MetricsEnabled: cfg.Server.MetricsEnabled,
	})

	srv := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening",
			slog.String("addr", srv.Addr),
			slog.String("capability", st.Capability().String()),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
		defer cancel()

		logger.Info("shutting down http server")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("application stopped")
	return nil
}

type tokenValidator interface {
	ValidateToken(ctx context.Context, token string) (auth.Identity, error)
}

// newTokenValidator prefers the external identity provider when a JWKS URL
// is configured, otherwise falls back to the shared HS256 secret.
func newTokenValidator(ctx context.Context, cfg config.AuthConfig, log *slog.Logger) (tokenValidator, error) {
	if cfg.UsesJWKS() {
		v, err := auth.NewJWKSVerifier(ctx, log, auth.JWKSOptions{
			URL:             cfg.JWKSURL,
			Issuer:          cfg.JWTIssuer,
			RefreshInterval: cfg.JWKSRefresh,
			Leeway:          5 * time.Second,
		})
		if err != nil {
			return nil, fmt.Errorf("jwks verifier: %w", err)
		}
		log.Info("token verification via jwks", slog.String("url", cfg.JWKSURL))
		return v, nil
	}
	return auth.NewJWTManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.AccessTokenTTL), nil
}

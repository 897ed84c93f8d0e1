package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/gemvault/api/internal/di"
	"github.com/gemvault/api/internal/handlers"
	"github.com/gemvault/api/internal/platform/auth"
	"github.com/gemvault/api/internal/platform/config"
	"github.com/gemvault/api/internal/platform/idempotency"
	"github.com/gemvault/api/internal/platform/observability"
	"github.com/gemvault/api/internal/platform/secrets"
)

const (
	shutdownTimeout  = 10 * time.Second
	authAttemptLimit = 10
	authAttemptSpan  = time.Minute
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "gemvault api: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	startedAt := time.Now().UTC()

	secretsCfg, err := config.LoadSecrets()
	if err != nil {
		return fmt.Errorf("read secret settings: %w", err)
	}
	bootLogger, err := observability.NewLogger(config.LoggingConfig{})
	if err != nil {
		return fmt.Errorf("initialise logger: %w", err)
	}
	fetcher, err := secrets.NewFetcher(ctx,
		secrets.WithProject(secretsCfg.ProjectID),
		secrets.WithFallbackFile(secretsCfg.FallbackFile),
		secrets.WithLogger(bootLogger.Named("secrets")),
	)
	if err != nil {
		return fmt.Errorf("initialise secret fetcher: %w", err)
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			bootLogger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(fetcher),
		config.WithRequiredSecrets("Auth.JWTSecret"),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			bootLogger.Error("required secrets unresolved", zap.Strings("secrets", missing.Names()))
		}
		var invalid *config.ValidationError
		if errors.As(err, &invalid) {
			bootLogger.Error("configuration incomplete", zap.Strings("fields", invalid.Fields()))
		}
		return fmt.Errorf("load configuration: %w", err)
	}

	baseLogger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("initialise logger: %w", err)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()
	logger := baseLogger.Named("api")

	container, err := di.NewContainer(ctx, cfg,
		di.WithLogger(logger),
		di.WithMeter(otel.GetMeterProvider().Meter("github.com/gemvault/api")),
		di.WithStartedAt(startedAt),
	)
	if err != nil {
		return fmt.Errorf("initialise dependencies: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := container.Close(closeCtx); err != nil {
			logger.Warn("dependency close error", zap.Error(err))
		}
	}()

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      newRouter(cfg, container, logger),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverLogger := logger.Named("http").With(
		zap.String("addr", server.Addr),
		zap.String("database", cfg.Database.Driver),
		zap.String("storage", cfg.Storage.Driver),
	)
	serveErr := make(chan error, 1)
	go func() {
		serverLogger.Info("gemvault api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
	return nil
}

// newRouter mounts the API handlers behind the observability and auth middleware chain.
func newRouter(cfg config.Config, c *di.Container, logger *zap.Logger) http.Handler {
	httpLogger := logger.Named("http")
	authenticator := auth.NewAuthenticator(c.Tokens)

	owner := []func(http.Handler) http.Handler{auth.SameUser("userID")}
	if cfg.Auth.Required {
		owner = append([]func(http.Handler) http.Handler{authenticator.Require()}, owner...)
	}

	orderHandlers := handlers.NewOrderHandlers(c.Services.Orders,
		handlers.WithPlacementMiddleware(idempotency.Middleware(c.Replays)),
	)
	userHandlers := handlers.NewUserHandlers(c.Services.Users,
		handlers.WithOwnerMiddleware(owner...),
		handlers.WithUserScopedRoutes(orderHandlers.UserRoutes),
		handlers.WithAuthRateLimit(authAttemptLimit, authAttemptSpan),
	)
	productHandlers := handlers.NewProductHandlers(c.Services.Products, c.Blobs,
		handlers.WithUploadConcurrency(cfg.Uploads.Concurrency),
		handlers.WithMultipartMemory(cfg.Uploads.MaxMemory),
		handlers.WithMaxFormBody(cfg.Uploads.MaxBody),
	)

	return handlers.NewRouter(
		handlers.WithMiddlewares(
			observability.TraceMiddleware(traceProjectID(cfg)),
			observability.InjectLoggerMiddleware(httpLogger),
			observability.RequestLoggerMiddleware(otel.GetMeterProvider().Meter("github.com/gemvault/api/http")),
			observability.RecoveryMiddleware(httpLogger),
			authenticator.Optional(),
			observability.IdentityRecorder,
		),
		handlers.WithHealthHandlers(handlers.NewHealthHandlers(c.Services.System)),
		handlers.WithCatalogRoutes(handlers.NewCatalogHandlers(c.Services.Catalog)),
		handlers.WithProductRoutes(productHandlers),
		handlers.WithUserRoutes(userHandlers),
		handlers.WithOrderRoutes(orderHandlers),
	)
}

func traceProjectID(cfg config.Config) string {
	for _, candidate := range []string{cfg.Database.Firestore.ProjectID, cfg.Events.ProjectID, cfg.Secrets.ProjectID} {
		if trimmed := strings.TrimSpace(candidate); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	goredis "github.com/redis/go-redis/v9"

	"github.com/joelborellis/mcp-registry/internal/audit"
	auditHandler "github.com/joelborellis/mcp-registry/internal/audit/handler"
	"github.com/joelborellis/mcp-registry/internal/identity"
	"github.com/joelborellis/mcp-registry/internal/platform/config"
	"github.com/joelborellis/mcp-registry/internal/platform/httpserver"
	"github.com/joelborellis/mcp-registry/internal/platform/logger"
	"github.com/joelborellis/mcp-registry/internal/platform/metrics"
	"github.com/joelborellis/mcp-registry/internal/platform/postgres"
	"github.com/joelborellis/mcp-registry/internal/platform/redis"
	"github.com/joelborellis/mcp-registry/internal/ratelimit"
	"github.com/joelborellis/mcp-registry/internal/registration"
	registrationHandler "github.com/joelborellis/mcp-registry/internal/registration/handler"
	registrationMetrics "github.com/joelborellis/mcp-registry/internal/registration/metrics"
	httptransport "github.com/joelborellis/mcp-registry/internal/transport/http"
	"github.com/joelborellis/mcp-registry/internal/user"
	userHandler "github.com/joelborellis/mcp-registry/internal/user/handler"
	"github.com/joelborellis/mcp-registry/pkg/platform/middleware/admin"
	"github.com/joelborellis/mcp-registry/pkg/platform/middleware/auth"
	"github.com/joelborellis/mcp-registry/pkg/platform/tx"
)

// main wires high-level dependencies and keeps the server lifecycle
// small. Business logic lives in the internal service packages.
func main() {
	cfg, err := config.Load(os.Getenv("MCPREG_CONFIG"))
	if err != nil {
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level)
	ctx := context.Background()

	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		log.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := postgres.Migrate(db); err != nil {
		log.Error("failed to apply migrations", "error", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		log.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	verifier, err := identity.NewVerifier(ctx, cfg.Auth.IssuerURL, cfg.Auth.Audience)
	if err != nil {
		log.Error("failed to set up token verifier", "error", err)
		os.Exit(1)
	}

	// Stores and services.
	runner := tx.NewSQLRunner(db)

	userStore := user.NewPostgresStore(db)
	userService := user.NewService(userStore, cfg.Auth.AdminGroupID != "")

	auditStore := audit.NewPostgresStore(db)
	auditService := audit.NewService(auditStore)

	registrationStore := registration.NewPostgresStore(db)
	registrationService := registration.NewService(registrationStore, auditService, runner, registrationMetrics.New())

	// Middleware.
	requireAuth := auth.RequireAuth(verifier, userService, cfg.Auth.AdminGroupID, log)
	requireAdmin := admin.RequireAdmin(cfg.Auth.BootstrapTokenHash, log)

	var rdb *goredis.Client
	if redisClient != nil {
		rdb = redisClient.Client
	}
	limiter := ratelimit.New(rdb, cfg.RateLimit.Requests, cfg.RateLimit.Window, cfg.RateLimit.Enabled, log)

	router := httptransport.NewRouter(httptransport.Deps{
		Logger:      log,
		HTTPMetrics: metrics.NewHTTP(),
		DB:          db,
		RequireAuth: requireAuth,
		Handlers: []httptransport.RouteRegistrar{
			registrationHandler.New(registrationService, requireAdmin, limiter.Middleware, log),
			auditHandler.New(auditService, requireAdmin, log),
			userHandler.New(userService, requireAdmin, log),
		},
	})

	srv := httpserver.New(cfg.Server, router)

	go func() {
		log.Info("starting mcp-registry", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

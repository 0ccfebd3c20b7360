package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/taskguard/taskguard-go/internal/config"
	"github.com/taskguard/taskguard-go/internal/crypto"
	"github.com/taskguard/taskguard-go/internal/handler"
	"github.com/taskguard/taskguard-go/internal/policy"
	"github.com/taskguard/taskguard-go/internal/repository"
	"github.com/taskguard/taskguard-go/internal/service"
)

func main() {
	cfg, dotenv, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger := cfg.NewLogger(os.Stdout)
	slog.SetDefault(logger)
	if !dotenv {
		logger.Warn("no .env file found, using environment variables")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg)
	if err != nil {
		logger.Error("store connection failed", "driver", cfg.StoreDriver, "error", err)
		os.Exit(1)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := store.Close(closeCtx); err != nil {
			logger.Error("store close failed", "error", err)
		}
	}()

	deny, closeDeny, err := openDenyList(ctx, cfg)
	if err != nil {
		logger.Error("redis connection failed", "error", err)
		os.Exit(1)
	}
	defer closeDeny()

	hasher := crypto.NewHasher(cfg.HashParams())
	tokens := crypto.NewTokenService(cfg.SecretKey,
		crypto.WithIssuer(cfg.JWTIssuer),
		crypto.WithAudience(cfg.JWTAudience),
	)
	engine := policy.New()

	identity := service.NewIdentityService(store, tokens, deny, logger)
	authService := service.NewAuthService(store, hasher, tokens, deny, cfg.TokenTTL, logger)
	userService := service.NewUserService(store, hasher, engine)
	taskService := service.NewTaskService(store, engine)

	generated, err := authService.Bootstrap(ctx, cfg.BootstrapAdminEmail, cfg.BootstrapAdminPassword)
	if err != nil {
		logger.Error("bootstrap admin failed", "error", err)
		os.Exit(1)
	}
	if generated != "" {
		// Shown once on stderr, never through the logger.
		fmt.Fprintf(os.Stderr, "bootstrap admin %s created with password: %s\n", cfg.BootstrapAdminEmail, generated)
	}

	srv := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: handler.NewRouter(handler.RouterConfig{
			Logger:     logger,
			Production: cfg.IsProduction(),
			Identity:   identity,
			Auth:       authService,
			Users:      userService,
			Tasks:      taskService,
			Ping:       store.Ping,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server starting", "port", cfg.Port, "env", cfg.Env, "store", cfg.StoreDriver)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced shutdown", "error", err)
		return
	}

	logger.Info("server stopped")
}

func openStore(ctx context.Context, cfg config.Config) (repository.Store, error) {
	switch cfg.StoreDriver {
	case config.StoreMySQL:
		return repository.NewMySQLStore(ctx, cfg.DatabaseDSN)
	case config.StoreMemory:
		return repository.NewMemoryStore(), nil
	default:
		return repository.NewMongoStore(ctx, cfg.MongoURI, cfg.DBName)
	}
}

// openDenyList uses Redis when REDIS_ADDR is set and a process-local list
// otherwise.
func openDenyList(ctx context.Context, cfg config.Config) (repository.DenyList, func(), error) {
	if cfg.RedisAddr == "" {
		slog.Warn("REDIS_ADDR not set, revoked tokens are tracked in memory only")
		return repository.NewMemoryDenyList(), func() {}, nil
	}

	client, err := repository.NewRedisClient(ctx, cfg.RedisAddr)
	if err != nil {
		return nil, nil, err
	}
	return repository.NewRedisDenyList(client), func() { _ = client.Close() }, nil
}

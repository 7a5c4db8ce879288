package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BlackMission/credlink/internal/apikey"
	"github.com/BlackMission/credlink/internal/auth"
	"github.com/BlackMission/credlink/internal/config"
	"github.com/BlackMission/credlink/internal/connection"
	"github.com/BlackMission/credlink/internal/domain"
	"github.com/BlackMission/credlink/internal/oauthflow"
	"github.com/BlackMission/credlink/internal/providers/github"
	"github.com/BlackMission/credlink/internal/providers/monday"
	"github.com/BlackMission/credlink/internal/redirect"
	"github.com/BlackMission/credlink/internal/server"
	"github.com/BlackMission/credlink/internal/session"
	"github.com/BlackMission/credlink/internal/state"
	"github.com/BlackMission/credlink/internal/store"
	"github.com/BlackMission/credlink/internal/store/memory"
	"github.com/BlackMission/credlink/internal/store/pgstore"
	"github.com/BlackMission/credlink/internal/store/redisstore"
	"github.com/BlackMission/credlink/internal/store/seal"
	"github.com/BlackMission/credlink/internal/store/sqlitestore"
)

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("credlink stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx := context.Background()

	codec, err := seal.NewCodec([]byte(cfg.Secrets.ConnectionEncryptionKey))
	if err != nil {
		return fmt.Errorf("create connection codec: %w", err)
	}

	// Build connection store
	backend, err := openStore(ctx, cfg, codec, logger)
	if err != nil {
		return err
	}
	defer backend.close()

	// Build state service and replay guard
	stateSvc := state.NewService([]byte(cfg.Secrets.StateSigningKey), cfg.Flow.StateTTL)
	var guard state.Guard
	if cfg.Flow.StateSingleUse {
		if backend.redis != nil {
			guard = state.NewRedisGuard(backend.redis)
		} else {
			guard = state.NewMemoryGuard()
		}
	}

	// Build provider registry
	providers := auth.NewRegistry()
	if gc := cfg.Providers.GitHub; gc.Enabled() {
		p := github.New(github.Config{
			ClientID:     gc.ClientID,
			ClientSecret: gc.ClientSecret,
			Scopes:       gc.Scopes,
			CallbackURL:  cfg.CallbackURL(domain.ProviderGitHub),
		})
		if err := providers.Register(p); err != nil {
			return fmt.Errorf("register github provider: %w", err)
		}
		logger.Info("registered provider", zap.String("provider", domain.ProviderGitHub))
	}
	if mc := cfg.Providers.Monday; mc.Enabled() {
		p := monday.New(monday.Config{
			ClientID:     mc.ClientID,
			ClientSecret: mc.ClientSecret,
			Scopes:       mc.Scopes,
			CallbackURL:  cfg.CallbackURL(domain.ProviderMonday),
		})
		if err := providers.Register(p); err != nil {
			return fmt.Errorf("register monday provider: %w", err)
		}
		logger.Info("registered provider", zap.String("provider", domain.ProviderMonday))
	}

	allowlist, err := redirect.NewAllowlist(cfg.Flow.AllowedBackToHosts)
	if err != nil {
		return fmt.Errorf("build redirect allowlist: %w", err)
	}
	if len(cfg.Flow.AllowedBackToHosts) == 0 {
		logger.Warn("ALLOWED_BACK_TO_HOSTS is empty, any return destination is accepted")
	}

	connections := connection.NewService(backend.store, logger)
	orch, err := oauthflow.New(cfg.Flow.RequiredProviders, oauthflow.Deps{
		Providers:   providers,
		Connections: connections,
		State:       stateSvc,
		Guard:       guard,
		Allowlist:   allowlist,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("build oauth flow: %w", err)
	}

	// Build and start server
	srv := server.New(server.Config{
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
	}, server.Deps{
		Orchestrator: orch,
		Connections:  connections,
		APIKeys:      apikey.NewService(connections),
		Sessions:     session.NewVerifier([]byte(cfg.Secrets.MondaySigningSecret)),
		Pinger:       backend.pinger,
		Logger:       logger,
	})

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	errc := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("server error: %w", err)
	case <-quit:
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

type storeBackend struct {
	store  store.Store
	pinger store.Pinger
	// redis is set for the redis driver so the replay guard shares the client.
	redis redis.UniversalClient
	close func()
}

func openStore(ctx context.Context, cfg *config.Config, codec *seal.Codec, logger *zap.Logger) (*storeBackend, error) {
	logger = logger.With(zap.String("driver", cfg.Storage.Driver))

	switch cfg.Storage.Driver {
	case config.DriverRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Storage.Redis.Addr,
			Password: cfg.Storage.Redis.Password,
			DB:       cfg.Storage.Redis.DB,
		})
		s := redisstore.New(rdb, codec)
		if err := s.Ping(ctx); err != nil {
			rdb.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		logger.Info("connection store ready", zap.String("addr", cfg.Storage.Redis.Addr))
		return &storeBackend{store: s, pinger: s, redis: rdb, close: func() { rdb.Close() }}, nil

	case config.DriverSQLite:
		s, err := sqlitestore.Open(cfg.Storage.SQLitePath, codec)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		logger.Info("connection store ready", zap.String("path", cfg.Storage.SQLitePath))
		return &storeBackend{store: s, pinger: s, close: func() { s.Close() }}, nil

	case config.DriverPostgres:
		s, err := pgstore.Open(ctx, cfg.Storage.PostgresDSN, codec)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		logger.Info("connection store ready")
		return &storeBackend{store: s, pinger: s, close: s.Close}, nil

	default:
		logger.Warn("using in-memory connection store, records are lost on restart")
		s := memory.New()
		return &storeBackend{store: s, pinger: s, close: func() {}}, nil
	}
}

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	zc := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

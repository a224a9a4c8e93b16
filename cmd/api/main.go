package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/Devesh-22/expense-tracker-api/internal/app/migrate"
	httpx "github.com/Devesh-22/expense-tracker-api/internal/http"
	"github.com/Devesh-22/expense-tracker-api/internal/repository"
	"github.com/Devesh-22/expense-tracker-api/internal/repository/memory"
	"github.com/Devesh-22/expense-tracker-api/internal/repository/postgres"
	"github.com/Devesh-22/expense-tracker-api/internal/service/auth"
	"github.com/Devesh-22/expense-tracker-api/internal/service/expense"
	"github.com/Devesh-22/expense-tracker-api/pkg/config"
	"github.com/Devesh-22/expense-tracker-api/pkg/crypto"
	jwtpkg "github.com/Devesh-22/expense-tracker-api/pkg/jwt"
	"github.com/Devesh-22/expense-tracker-api/pkg/logger"
)

type store interface {
	repository.UserRepository
	repository.ExpenseRepository
}

func main() {
	cfg := config.LoadAPIConfig()
	log := logger.New("api", logger.ParseLevel(cfg.LogLevel))
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, health, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Error("failed to open store", "driver", cfg.StoreDriver, "error", err)
		os.Exit(1)
	}
	defer closeStore()

	issuer, err := jwtpkg.NewIssuer(cfg.JWTSecret, jwtpkg.WithTTL(cfg.TokenTTL))
	if err != nil {
		log.Error("failed to configure token issuer", "error", err)
		os.Exit(1)
	}
	hasher := crypto.NewHasher(cfg.BcryptCost)

	authSvc := auth.New(repo, hasher, issuer, log, cfg)
	expenseSvc := expense.New(repo, log, cfg)

	var registry *prometheus.Registry
	if cfg.MetricsEnabled {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	router := httpx.NewRouter(log, authSvc, expenseSvc, registry, health)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       time.Minute,
	}

	errorCh := make(chan error, 1)
	go func() {
		log.Info("api server starting",
			"addr", cfg.Addr,
			"env", cfg.Environment,
			"store", cfg.StoreDriver,
			"bcrypt_cost", hasher.Cost(),
			"token_ttl", issuer.TTL().String(),
		)
		errorCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		log.Info("api server stopped")
	case err := <-errorCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}
}

func openStore(ctx context.Context, cfg config.APIConfig, log *slog.Logger) (store, func(context.Context) error, func(), error) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		log.Warn("using in-memory store; data is lost on restart")
		repo := memory.New()
		return repo, repo.Ping, func() {}, nil
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	runner, err := migrate.New(pool, cfg.DatabaseURL, log)
	if err != nil {
		pool.Close()
		return nil, nil, nil, fmt.Errorf("configure migrations: %w", err)
	}
	if err := runner.Ping(ctx); err != nil {
		runner.Close()
		return nil, nil, nil, err
	}
	if cfg.AutoMigrate {
		if err := runner.Ensure(ctx); err != nil {
			runner.Close()
			return nil, nil, nil, err
		}
	}
	return postgres.New(pool), pool.Ping, runner.Close, nil
}

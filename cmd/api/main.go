package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ej-moran/tillpoint/internal/config"
	"github.com/ej-moran/tillpoint/internal/handler"
	"github.com/ej-moran/tillpoint/internal/logging"
	"github.com/ej-moran/tillpoint/internal/metrics"
	"github.com/ej-moran/tillpoint/internal/middleware"
	"github.com/ej-moran/tillpoint/internal/repository"
	"github.com/ej-moran/tillpoint/internal/service/deposit"
	"github.com/ej-moran/tillpoint/internal/service/till"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logging.Init("tillpoint-api", cfg.LogLevel, cfg.AppEnv)
	metrics.Init()

	db, err := connectDB(cfg)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	tillRepo := repository.NewTillRepository(db)
	balanceRepo := repository.NewBalanceRepository(db)
	itemRepo := repository.NewItemRepository(db)
	depositRepo := repository.NewDepositRepository(db)
	accountRepo := repository.NewAccountRepository(db)
	userRepo := repository.NewUserRepository(db)

	tillSvc := till.NewService(tillRepo, balanceRepo, itemRepo, depositRepo, accountRepo, db)
	depositSvc := deposit.NewService(depositRepo, balanceRepo, db)

	jwtExpiry := time.Duration(cfg.JWTExpiryM) * time.Minute
	authHandler := handler.NewAuthHandler(userRepo, cfg.JWTSecret, jwtExpiry)
	tillHandler := handler.NewTillHandler(tillSvc)
	depositHandler := handler.NewDepositHandler(depositSvc)
	healthHandler := handler.NewHealthHandler(db)

	authed := middleware.Auth(cfg.JWTSecret)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health/live", healthHandler.Liveness)
	mux.HandleFunc("GET /health/ready", healthHandler.Readiness)
	mux.Handle("GET /metrics", metrics.Handler())

	mux.HandleFunc("POST /api/v1/auth/login", authHandler.Login)

	mux.Handle("GET /api/v1/tills", authed(http.HandlerFunc(tillHandler.List)))
	mux.Handle("GET /api/v1/tills/{id}", authed(http.HandlerFunc(tillHandler.Get)))
	mux.Handle("GET /api/v1/tills/{id}/balance", authed(http.HandlerFunc(tillHandler.OpenBalance)))
	mux.Handle("POST /api/v1/tills/{id}/items", authed(http.HandlerFunc(tillHandler.RecordItem)))
	mux.Handle("POST /api/v1/items/{id}/post", authed(http.HandlerFunc(tillHandler.PostItem)))
	mux.Handle("POST /api/v1/balances/{id}/start-clear", authed(http.HandlerFunc(tillHandler.StartClear)))
	mux.Handle("POST /api/v1/balances/{id}/clear", authed(http.HandlerFunc(tillHandler.Clear)))
	mux.Handle("POST /api/v1/balances/{id}/transfer", authed(http.HandlerFunc(tillHandler.Transfer)))
	mux.Handle("POST /api/v1/balances/{id}/recompute", authed(http.HandlerFunc(tillHandler.Recompute)))
	mux.Handle("GET /api/v1/deposits", authed(http.HandlerFunc(depositHandler.List)))
	mux.Handle("GET /api/v1/deposits/{id}", authed(http.HandlerFunc(depositHandler.Get)))
	mux.Handle("POST /api/v1/deposits/{id}/deposit", authed(http.HandlerFunc(depositHandler.Deposit)))

	root := middleware.Tracing(middleware.Logging(middleware.Recovery(mux)))

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           root,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("server started", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

func connectDB(cfg *config.Config) (*sql.DB, error) {
	pool := repository.PoolConfig{
		MaxOpenConns:     cfg.DBMaxOpenConns,
		MaxIdleConns:     cfg.DBMaxIdleConns,
		ConnMaxLifetimeS: cfg.DBConnMaxLifetimeS,
		ConnMaxIdleTimeS: cfg.DBConnMaxIdleTimeS,
	}

	var lastErr error
	for i := range 30 {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		db, err := repository.NewPostgresDB(ctx, cfg.DatabaseURL, pool)
		cancel()
		if err == nil {
			return db, nil
		}
		lastErr = err
		slog.Info("waiting for database", "attempt", i+1)
		time.Sleep(time.Second)
	}

	return nil, fmt.Errorf("connectDB: gave up after 30 attempts: %w", lastErr)
}

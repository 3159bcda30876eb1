package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"

	"github.com/splax/todo/internal/app/migrate"
	httpx "github.com/splax/todo/internal/http"
	"github.com/splax/todo/internal/repository"
	"github.com/splax/todo/internal/repository/postgres"
	redisrepo "github.com/splax/todo/internal/repository/redis"
	"github.com/splax/todo/internal/service/auth"
	"github.com/splax/todo/internal/service/todo"
	"github.com/splax/todo/internal/ws"
	"github.com/splax/todo/pkg/config"
	"github.com/splax/todo/pkg/logger"
)

func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		slog.Error("failed to load .env", "error", err)
		os.Exit(1)
	}
	cfg := config.LoadAppConfig()
	log := logger.New("todo-api", logger.ParseLevel(cfg.LogLevel))

	if cfg.IsProduction() && (cfg.SessionSecret == "supersecuresecret" || cfg.CSRFSecret == "supersecurecsrfsecret") {
		log.Error("refusing to start with default secrets in production")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	runner, err := migrate.New(pool, cfg.DatabaseURL, cfg.MigrationsDir, log)
	if err != nil {
		log.Error("failed to configure migrations", "error", err)
		os.Exit(1)
	}
	if err := runner.Ping(ctx); err != nil {
		log.Error("database ping failed", "error", err)
		os.Exit(1)
	}
	if err := runner.Ensure(ctx); err != nil {
		log.Error("migrations failed", "error", err)
		os.Exit(1)
	}

	repo := postgres.New(pool)

	var (
		revocations repository.SessionRevocations
		limiter     httpx.RateLimiter
	)
	if addr := strings.TrimSpace(cfg.RedisAddr); addr != "" {
		client := goredis.NewClient(&goredis.Options{Addr: addr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := client.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			log.Warn("redis unavailable, using in-memory rate limits without session revocation", "addr", addr, "error", err)
			_ = client.Close()
		} else {
			defer client.Close()
			revocations = redisrepo.NewRevocations(client)
			limiter = httpx.NewRedisRateLimiter(client, log)
			log.Info("redis connected", "addr", addr)
		}
	}

	hub := ws.NewHub()
	defer hub.Close()

	authSvc := auth.New(repo, revocations, log, cfg)
	todoSvc := todo.New(repo, log, cfg.Location())

	router, err := httpx.NewRouter(log, authSvc, todoSvc, hub, limiter, httpx.Options{
		CSRFSecret:   cfg.CSRFSecret,
		CookieName:   cfg.SessionCookieName,
		CookieSecure: cfg.SessionCookieSecure,
		DBHealth:     pool.Ping,
	})
	if err != nil {
		log.Error("failed to build router", "error", err)
		os.Exit(1)
	}
	defer router.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errorCh := make(chan error, 1)
	go func() {
		log.Info("todo server starting", "addr", cfg.Addr, "env", cfg.Environment, "timezone", cfg.Location().String())
		errorCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		hub.Close()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		log.Info("todo server stopped")
	case err := <-errorCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}
}

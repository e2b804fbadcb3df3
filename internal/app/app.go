package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/httplog/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/vadimbarashkov/shortlink/internal/adapter/cache/redis"
	"github.com/vadimbarashkov/shortlink/internal/adapter/repository/postgres"
	"github.com/vadimbarashkov/shortlink/internal/config"
	"github.com/vadimbarashkov/shortlink/internal/usecase"
	"github.com/vadimbarashkov/shortlink/migrations"
	"golang.org/x/sync/errgroup"

	delivery "github.com/vadimbarashkov/shortlink/internal/adapter/delivery/http"
	pgpkg "github.com/vadimbarashkov/shortlink/pkg/postgres"
	redispkg "github.com/vadimbarashkov/shortlink/pkg/redis"
)

const serviceName = "shortlink"

func Run(ctx context.Context, cfg *config.Config) error {
	const op = "app.Run"

	logger, err := NewLogger(cfg)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	db, err := pgpkg.New(
		ctx,
		cfg.Postgres.DSN(),
		pgpkg.WithConnMaxIdleTime(cfg.Postgres.ConnMaxIdleTime),
		pgpkg.WithConnMaxLifetime(cfg.Postgres.ConnMaxLifetime),
		pgpkg.WithMaxIdleConns(cfg.Postgres.MaxIdleConns),
		pgpkg.WithMaxOpenConns(cfg.Postgres.MaxOpenConns),
	)
	if err != nil {
		return fmt.Errorf("%s: failed to connect to database: %w", op, err)
	}
	defer db.Close()

	if err := pgpkg.RunMigrations(migrations.FS, cfg.Postgres.DSN()); err != nil {
		return fmt.Errorf("%s: failed to run migrations: %w", op, err)
	}

	rdb, err := redispkg.New(ctx, redisOptions(cfg.Redis))
	if err != nil {
		return fmt.Errorf("%s: failed to connect to redis: %w", op, err)
	}
	defer rdb.Close()

	urlRepo := postgres.NewURLRepository(db, postgres.WithQueryTimeout(cfg.Postgres.QueryTimeout))
	urlCache := redis.NewURLCache(rdb, redis.WithTTL(cfg.Redis.CacheTTL))
	cachedRepo := redis.NewReadThroughRepository(urlRepo, urlCache, logger.Logger)

	urlUseCase := usecase.NewURLUseCase(cachedRepo, urlCache,
		usecase.WithURLTTL(cfg.Shortener.URLTTL),
		usecase.WithIncrementTimeout(cfg.Shortener.IncrementTimeout),
		usecase.WithMaxPendingIncrements(cfg.Shortener.MaxPendingIncrements),
		usecase.WithLogger(logger.Logger),
	)

	server := &http.Server{
		Addr:           cfg.HTTPServer.Addr(),
		Handler:        delivery.NewRouter(logger, urlUseCase),
		ReadTimeout:    cfg.HTTPServer.ReadTimeout,
		WriteTimeout:   cfg.HTTPServer.WriteTimeout,
		IdleTimeout:    cfg.HTTPServer.IdleTimeout,
		MaxHeaderBytes: cfg.HTTPServer.MaxHeaderBytes,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting http server", slog.String("addr", server.Addr), slog.String("env", cfg.Env))

		var err error

		switch cfg.Env {
		case config.EnvProd:
			err = server.ListenAndServeTLS(cfg.HTTPServer.CertFile, cfg.HTTPServer.KeyFile)
		default:
			err = server.ListenAndServe()
		}

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("%s: server error occurred: %w", op, err)
		}

		return nil
	})

	g.Go(func() error {
		<-ctx.Done()

		logger.Info("shutting down http server")

		if err := server.Shutdown(context.Background()); err != nil {
			return fmt.Errorf("%s: failed to shutdown server: %w", op, err)
		}

		return nil
	})

	if cfg.Expiration.SweepInterval > 0 {
		g.Go(func() error {
			runSweeper(ctx, logger.Logger, urlUseCase, cfg.Expiration.SweepInterval)
			return nil
		})
	}

	err = g.Wait()

	// Pending access counter updates must land before the store is closed.
	_ = urlUseCase.Wait()

	return err
}

type sweeper interface {
	SweepExpired(ctx context.Context) (int64, error)
}

// runSweeper deletes expired mappings every interval until ctx is done.
func runSweeper(ctx context.Context, logger *slog.Logger, s sweeper, interval time.Duration) {
	const op = "app.runSweeper"

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.SweepExpired(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}

				logger.ErrorContext(ctx, "failed to sweep expired urls",
					slog.String("op", op),
					slog.Any("err", err),
				)
				continue
			}

			if n > 0 {
				logger.InfoContext(ctx, "expired urls deleted", slog.Int64("count", n))
			}
		}
	}
}

// NewLogger builds the service logger. Production logs are JSON, everything else is text.
func NewLogger(cfg *config.Config) (*httplog.Logger, error) {
	const op = "app.NewLogger"

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		return nil, fmt.Errorf("%s: invalid log level %q: %w", op, cfg.LogLevel, err)
	}

	return httplog.NewLogger(serviceName, httplog.Options{
		LogLevel:         level,
		JSON:             cfg.Env == config.EnvProd,
		Concise:          cfg.Env != config.EnvProd,
		MessageFieldName: "message",
		QuietDownRoutes:  []string{"/health"},
		QuietDownPeriod:  10 * time.Second,
		Tags: map[string]string{
			"env": cfg.Env,
		},
	}), nil
}

func redisOptions(cfg config.Redis) *goredis.Options {
	return &goredis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolSize:     cfg.PoolSize,
	}
}

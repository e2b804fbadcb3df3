//go:build integration

package http_test

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gavv/httpexpect/v2"
	"github.com/go-chi/httplog/v2"
	"github.com/jmoiron/sqlx"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/vadimbarashkov/shortlink/internal/adapter/cache/redis"
	"github.com/vadimbarashkov/shortlink/internal/adapter/repository/postgres"
	"github.com/vadimbarashkov/shortlink/internal/config"
	"github.com/vadimbarashkov/shortlink/internal/usecase"
	"github.com/vadimbarashkov/shortlink/migrations"

	delivery "github.com/vadimbarashkov/shortlink/internal/adapter/delivery/http"
	pgpkg "github.com/vadimbarashkov/shortlink/pkg/postgres"
	redispkg "github.com/vadimbarashkov/shortlink/pkg/redis"
)

const longURL = "https://example.com/very/long/url"

type APITestSuite struct {
	suite.Suite
	db         *sqlx.DB
	rdb        *goredis.Client
	urlUseCase *usecase.URLUseCase
	server     *httptest.Server
	e          *httpexpect.Expect
}

func startContainer(t testing.TB, req testcontainers.ContainerRequest) testcontainers.Container {
	t.Helper()

	ctx := context.Background()

	cont, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start %s container: %v", req.Image, err)
	}
	t.Cleanup(func() {
		if err := cont.Terminate(ctx); err != nil {
			t.Fatalf("Failed to terminate %s container: %v", req.Image, err)
		}
	})

	return cont
}

func (suite *APITestSuite) SetupSuite() {
	ctx := context.Background()
	t := suite.T()

	pgCont := startContainer(t, testcontainers.ContainerRequest{
		Image: "postgres:16-alpine",
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "shortlink",
		},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(time.Minute),
	})

	redisCont := startContainer(t, testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	})

	pgHost, err := pgCont.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get postgres container host: %v", err)
	}
	pgPort, err := pgCont.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get postgres container port: %v", err)
	}

	redisHost, err := redisCont.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get redis container host: %v", err)
	}
	redisPort, err := redisCont.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get redis container port: %v", err)
	}

	pgCfg := config.Postgres{
		User:     "test",
		Password: "test",
		Host:     pgHost,
		Port:     pgPort.Int(),
		DB:       "shortlink",
		SSLMode:  "disable",
	}

	if err := pgpkg.RunMigrations(migrations.FS, pgCfg.DSN()); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	suite.db, err = pgpkg.New(ctx, pgCfg.DSN())
	if err != nil {
		t.Fatalf("Failed to connect to database: %v", err)
	}
	t.Cleanup(func() {
		suite.db.Close()
	})

	suite.rdb, err = redispkg.New(ctx, &goredis.Options{
		Addr: net.JoinHostPort(redisHost, redisPort.Port()),
	})
	if err != nil {
		t.Fatalf("Failed to connect to redis: %v", err)
	}
	t.Cleanup(func() {
		suite.rdb.Close()
	})

	logger := httplog.NewLogger("", httplog.Options{Writer: io.Discard})
	silent := slog.New(slog.NewTextHandler(io.Discard, nil))

	urlCache := redis.NewURLCache(suite.rdb)
	urlRepo := redis.NewReadThroughRepository(postgres.NewURLRepository(suite.db), urlCache, silent)
	suite.urlUseCase = usecase.NewURLUseCase(urlRepo, urlCache, usecase.WithLogger(silent))

	suite.server = httptest.NewServer(delivery.NewRouter(logger, suite.urlUseCase))
	t.Cleanup(suite.server.Close)

	suite.e = httpexpect.WithConfig(httpexpect.Config{
		BaseURL:  suite.server.URL,
		Reporter: httpexpect.NewAssertReporter(t),
		Client: &http.Client{
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	})
}

func (suite *APITestSuite) TearDownSubTest() {
	ctx := context.Background()

	if err := suite.urlUseCase.Wait(); err != nil {
		suite.T().Fatalf("Failed to drain increments: %v", err)
	}
	if _, err := suite.db.ExecContext(ctx, `TRUNCATE TABLE urls`); err != nil {
		suite.T().Fatalf("Failed to clean urls table: %v", err)
	}
	if err := suite.rdb.FlushDB(ctx).Err(); err != nil {
		suite.T().Fatalf("Failed to flush redis: %v", err)
	}
}

func (suite *APITestSuite) TestShortenAndResolve() {
	suite.Run("create, dedup, redirect, stats", func() {
		created := suite.e.POST("/url").
			WithJSON(map[string]string{"longUrl": longURL}).
			Expect().
			Status(http.StatusCreated).
			JSON().Object()

		created.HasValue("shortUrl", "8ec596c44bd62b6b")
		ttl := created.Value("ttl").Number().Raw()

		suite.e.POST("/url").
			WithJSON(map[string]string{"longUrl": longURL}).
			Expect().
			Status(http.StatusOK).
			JSON().Object().
			HasValue("shortUrl", "8ec596c44bd62b6b").
			HasValue("ttl", ttl)

		for range 3 {
			suite.e.GET("/url/{shortUrl}", "8ec596c44bd62b6b").
				Expect().
				Status(http.StatusMovedPermanently).
				Header("Location").IsEqual(longURL)
		}

		exists, err := suite.rdb.Exists(context.Background(), "url:8ec596c44bd62b6b").Result()
		suite.Require().NoError(err)
		suite.Equal(int64(1), exists)

		suite.Require().NoError(suite.urlUseCase.Wait())

		suite.e.GET("/url/{shortUrl}/stats", "8ec596c44bd62b6b").
			Expect().
			Status(http.StatusOK).
			JSON().Object().
			HasValue("accessCount", 3).
			HasValue("longUrl", longURL)
	})

	suite.Run("long url with nul byte", func() {
		created := suite.e.POST("/url").
			WithJSON(map[string]string{"longUrl": "a\x00b"}).
			Expect().
			Status(http.StatusCreated).
			JSON().Object()

		created.HasValue("longUrl", "a\x00b")
		shortURL := created.Value("shortUrl").String().Raw()

		suite.e.GET("/url/{shortUrl}/stats", shortURL).
			Expect().
			Status(http.StatusOK).
			JSON().Object().
			HasValue("longUrl", "a\x00b")
	})

	suite.Run("unknown code", func() {
		suite.e.GET("/url/{shortUrl}", "0000000000000000").
			Expect().
			Status(http.StatusNotFound).
			JSON().Object().
			IsEqual(map[string]any{"error": "URL not found"})
	})
}

func TestAPI(t *testing.T) {
	suite.Run(t, new(APITestSuite))
}

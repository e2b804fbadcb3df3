package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/suite"
	"github.com/vadimbarashkov/shortlink/internal/entity"

	goredis "github.com/redis/go-redis/v9"
)

type URLCacheTestSuite struct {
	suite.Suite
	now   time.Time
	mr    *miniredis.Miniredis
	cache *URLCache
}

func (suite *URLCacheTestSuite) SetupSuite() {
	suite.now = time.Unix(1_700_000_000, 0)
}

func (suite *URLCacheTestSuite) SetupSubTest() {
	suite.mr = miniredis.RunT(suite.T())

	rdb := goredis.NewClient(&goredis.Options{Addr: suite.mr.Addr()})
	suite.T().Cleanup(func() {
		rdb.Close()
	})
	suite.Require().NoError(rdb.Ping(context.Background()).Err())

	suite.cache = NewURLCache(rdb,
		WithTTL(10*time.Minute),
		WithClock(func() time.Time { return suite.now }),
	)
}

func (suite *URLCacheTestSuite) TestGet() {
	suite.Run("cache miss", func() {
		url, err := suite.cache.Get(context.Background(), "0000000000000000")

		suite.Error(err)
		suite.ErrorIs(err, entity.ErrCacheMiss)
		suite.Nil(url)
	})

	suite.Run("corrupted entry", func() {
		suite.Require().NoError(suite.mr.Set(key("100680ad546ce6a5"), "not json"))

		url, err := suite.cache.Get(context.Background(), "100680ad546ce6a5")

		suite.Error(err)
		suite.NotErrorIs(err, entity.ErrCacheMiss)
		suite.Nil(url)
	})

	suite.Run("expired record", func() {
		suite.Require().NoError(suite.mr.Set(key("100680ad546ce6a5"),
			`{"original_url":"aHR0cHM6Ly9leGFtcGxlLmNvbQ==","expires_at":1699999999,"created_at":1600000000}`))

		url, err := suite.cache.Get(context.Background(), "100680ad546ce6a5")

		suite.Error(err)
		suite.ErrorIs(err, entity.ErrCacheMiss)
		suite.Nil(url)
	})

	suite.Run("server error", func() {
		suite.mr.SetError("ERR server failure")

		url, err := suite.cache.Get(context.Background(), "100680ad546ce6a5")

		suite.Error(err)
		suite.NotErrorIs(err, entity.ErrCacheMiss)
		suite.Nil(url)
	})

	suite.Run("success", func() {
		suite.Require().NoError(suite.mr.Set(key("100680ad546ce6a5"),
			`{"original_url":"aHR0cHM6Ly9leGFtcGxlLmNvbQ==","expires_at":1700003600,"created_at":1600000000}`))

		url, err := suite.cache.Get(context.Background(), "100680ad546ce6a5")

		suite.NoError(err)
		suite.NotNil(url)
		suite.Equal("100680ad546ce6a5", url.ShortCode)
		suite.Equal("https://example.com", url.OriginalURL)
		suite.Equal(int64(1700003600), url.ExpiresAt.Unix())
	})
}

func (suite *URLCacheTestSuite) TestSet() {
	suite.Run("ttl capped by cache ttl", func() {
		url := &entity.URL{
			ShortCode:   "100680ad546ce6a5",
			OriginalURL: "https://example.com",
			ExpiresAt:   suite.now.Add(365 * 24 * time.Hour),
			CreatedAt:   suite.now,
		}

		err := suite.cache.Set(context.Background(), url)

		suite.NoError(err)
		suite.Equal(10*time.Minute, suite.mr.TTL(key(url.ShortCode)))

		got, err := suite.cache.Get(context.Background(), url.ShortCode)
		suite.NoError(err)
		suite.Equal(url.OriginalURL, got.OriginalURL)
	})

	suite.Run("nul and invalid utf-8 bytes", func() {
		url := &entity.URL{
			ShortCode:   "d5ba0c5ff8ed48b4",
			OriginalURL: "a\x00b\xff\xfe",
			ExpiresAt:   suite.now.Add(time.Hour),
			CreatedAt:   suite.now,
		}

		suite.Require().NoError(suite.cache.Set(context.Background(), url))

		got, err := suite.cache.Get(context.Background(), url.ShortCode)
		suite.NoError(err)
		suite.Equal(url.OriginalURL, got.OriginalURL)
	})

	suite.Run("ttl capped by record expiration", func() {
		url := &entity.URL{
			ShortCode:   "100680ad546ce6a5",
			OriginalURL: "https://example.com",
			ExpiresAt:   suite.now.Add(time.Minute),
			CreatedAt:   suite.now,
		}

		err := suite.cache.Set(context.Background(), url)

		suite.NoError(err)
		suite.Equal(time.Minute, suite.mr.TTL(key(url.ShortCode)))
	})

	suite.Run("expired record is not stored", func() {
		url := &entity.URL{
			ShortCode:   "100680ad546ce6a5",
			OriginalURL: "https://example.com",
			ExpiresAt:   suite.now.Add(-time.Minute),
			CreatedAt:   suite.now.Add(-time.Hour),
		}

		err := suite.cache.Set(context.Background(), url)

		suite.NoError(err)
		suite.False(suite.mr.Exists(key(url.ShortCode)))
	})

	suite.Run("server error", func() {
		suite.mr.SetError("ERR server failure")

		err := suite.cache.Set(context.Background(), &entity.URL{
			ShortCode:   "100680ad546ce6a5",
			OriginalURL: "https://example.com",
			ExpiresAt:   suite.now.Add(time.Hour),
		})

		suite.Error(err)
	})
}

func TestURLCache(t *testing.T) {
	suite.Run(t, new(URLCacheTestSuite))
}

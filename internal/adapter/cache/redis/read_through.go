package redis

import (
	"context"
	"log/slog"

	"github.com/vadimbarashkov/shortlink/internal/entity"
)

type urlStore interface {
	Save(ctx context.Context, url *entity.URL) (*entity.URL, error)
	RetrieveByShortCode(ctx context.Context, shortCode string) (*entity.URL, error)
	RetrieveByOriginalURL(ctx context.Context, originalURL string) (*entity.URL, error)
	IncrementAccessCount(ctx context.Context, shortCode string) error
	DeleteExpired(ctx context.Context) (int64, error)
}

// ReadThroughRepository passes every call to the wrapped store and fills the cache
// after a successful read by short code.
type ReadThroughRepository struct {
	urlStore
	cache  *URLCache
	logger *slog.Logger
}

func NewReadThroughRepository(store urlStore, cache *URLCache, logger *slog.Logger) *ReadThroughRepository {
	return &ReadThroughRepository{
		urlStore: store,
		cache:    cache,
		logger:   logger,
	}
}

// RetrieveByShortCode reads from the store. A failed cache fill is logged and the record
// is still returned.
func (r *ReadThroughRepository) RetrieveByShortCode(ctx context.Context, shortCode string) (*entity.URL, error) {
	const op = "adapter.cache.redis.ReadThroughRepository.RetrieveByShortCode"

	url, err := r.urlStore.RetrieveByShortCode(ctx, shortCode)
	if err != nil {
		return nil, err
	}

	if err := r.cache.Set(ctx, url); err != nil {
		r.logger.WarnContext(ctx, "failed to fill cache",
			slog.String("op", op),
			slog.String("short_code", shortCode),
			slog.Any("err", err),
		)
	}

	return url, nil
}

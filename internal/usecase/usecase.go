package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vadimbarashkov/shortlink/internal/entity"
	"github.com/vadimbarashkov/shortlink/pkg/shortcode"
	"golang.org/x/sync/errgroup"
)

const (
	defaultURLTTL               = 365 * 24 * time.Hour
	defaultIncrementTimeout     = 2 * time.Second
	defaultMaxPendingIncrements = 1024
)

type urlRepository interface {
	Save(ctx context.Context, url *entity.URL) (*entity.URL, error)
	RetrieveByShortCode(ctx context.Context, shortCode string) (*entity.URL, error)
	RetrieveByOriginalURL(ctx context.Context, originalURL string) (*entity.URL, error)
	IncrementAccessCount(ctx context.Context, shortCode string) error
	DeleteExpired(ctx context.Context) (int64, error)
}

type urlCache interface {
	Get(ctx context.Context, shortCode string) (*entity.URL, error)
}

// Option configures a URLUseCase.
type Option func(*URLUseCase)

// WithURLTTL sets how long a newly created record stays resolvable.
func WithURLTTL(d time.Duration) Option {
	return func(uc *URLUseCase) {
		uc.urlTTL = d
	}
}

// WithIncrementTimeout bounds each detached access counter update.
func WithIncrementTimeout(d time.Duration) Option {
	return func(uc *URLUseCase) {
		uc.incrementTimeout = d
	}
}

// WithMaxPendingIncrements limits how many counter updates may run at once.
// Updates scheduled beyond the limit are dropped. Values below 1 keep the default.
func WithMaxPendingIncrements(n int) Option {
	return func(uc *URLUseCase) {
		uc.maxPendingIncrements = n
	}
}

// WithLogger sets the logger for dropped or failed counter updates and short code collisions.
func WithLogger(logger *slog.Logger) Option {
	return func(uc *URLUseCase) {
		uc.logger = logger
	}
}

// WithClock replaces the clock used for creation and expiration times.
func WithClock(now func() time.Time) Option {
	return func(uc *URLUseCase) {
		uc.now = now
	}
}

type URLUseCase struct {
	urlRepo              urlRepository
	urlCache             urlCache
	logger               *slog.Logger
	urlTTL               time.Duration
	incrementTimeout     time.Duration
	maxPendingIncrements int
	increments           errgroup.Group
	now                  func() time.Time
}

// NewURLUseCase wires the use case to the mapping store and the cache. urlRepo is expected
// to refresh the cache on reads by short code.
func NewURLUseCase(urlRepo urlRepository, urlCache urlCache, opts ...Option) *URLUseCase {
	uc := &URLUseCase{
		urlRepo:              urlRepo,
		urlCache:             urlCache,
		logger:               slog.Default(),
		urlTTL:               defaultURLTTL,
		incrementTimeout:     defaultIncrementTimeout,
		maxPendingIncrements: defaultMaxPendingIncrements,
		now:                  time.Now,
	}

	for _, opt := range opts {
		opt(uc)
	}

	if uc.maxPendingIncrements < 1 {
		uc.maxPendingIncrements = defaultMaxPendingIncrements
	}
	uc.increments.SetLimit(uc.maxPendingIncrements)

	return uc
}

// ShortenURL returns the record for originalURL, creating it on first sight.
// The boolean result reports whether a record was created by this call.
func (uc *URLUseCase) ShortenURL(ctx context.Context, originalURL string) (*entity.URL, bool, error) {
	const op = "usecase.URLUseCase.ShortenURL"

	if originalURL == "" {
		return nil, false, fmt.Errorf("%s: %w", op, entity.ErrEmptyURL)
	}

	url, err := uc.urlRepo.RetrieveByOriginalURL(ctx, originalURL)
	if err == nil {
		return url, false, nil
	}
	if !errors.Is(err, entity.ErrURLNotFound) {
		return nil, false, fmt.Errorf("%s: failed to look up original url: %w", op, err)
	}

	now := uc.now().Truncate(time.Second)
	code := shortcode.Generate(originalURL)

	url, err = uc.urlRepo.Save(ctx, &entity.URL{
		ShortCode:   code,
		OriginalURL: originalURL,
		ExpiresAt:   now.Add(uc.urlTTL),
		CreatedAt:   now,
	})
	if err == nil {
		return url, true, nil
	}
	if !errors.Is(err, entity.ErrShortCodeExists) {
		return nil, false, fmt.Errorf("%s: failed to save url: %w", op, err)
	}

	// A concurrent request for the same URL won the insert.
	url, err = uc.urlRepo.RetrieveByOriginalURL(ctx, originalURL)
	if err != nil {
		if errors.Is(err, entity.ErrURLNotFound) {
			uc.logger.ErrorContext(ctx, "short code held by another url",
				slog.String("op", op),
				slog.String("short_code", code),
			)

			return nil, false, fmt.Errorf("%s: %s: %w", op, code, entity.ErrShortCodeCollision)
		}

		return nil, false, fmt.Errorf("%s: failed to reread url after conflict: %w", op, err)
	}

	return url, false, nil
}

// ResolveShortCode returns the live record for shortCode, trying the cache before the store,
// and schedules an access counter update that the caller never waits for.
func (uc *URLUseCase) ResolveShortCode(ctx context.Context, shortCode string) (*entity.URL, error) {
	const op = "usecase.URLUseCase.ResolveShortCode"

	url, err := uc.urlCache.Get(ctx, shortCode)
	if err != nil {
		if !errors.Is(err, entity.ErrCacheMiss) {
			return nil, fmt.Errorf("%s: failed to read cache: %w", op, err)
		}

		url, err = uc.urlRepo.RetrieveByShortCode(ctx, shortCode)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to resolve short code: %w", op, err)
		}
	}

	if url.Expired(uc.now()) {
		return nil, fmt.Errorf("%s: %w", op, entity.ErrURLNotFound)
	}

	uc.scheduleIncrement(ctx, shortCode)

	return url, nil
}

func (uc *URLUseCase) scheduleIncrement(ctx context.Context, shortCode string) {
	const op = "usecase.URLUseCase.scheduleIncrement"

	ctx = context.WithoutCancel(ctx)

	scheduled := uc.increments.TryGo(func() error {
		ctx, cancel := context.WithTimeout(ctx, uc.incrementTimeout)
		defer cancel()

		if err := uc.urlRepo.IncrementAccessCount(ctx, shortCode); err != nil {
			uc.logger.WarnContext(ctx, "failed to increment access count",
				slog.String("op", op),
				slog.String("short_code", shortCode),
				slog.Any("err", err),
			)
		}

		return nil
	})
	if !scheduled {
		uc.logger.WarnContext(ctx, "too many pending increments, access count update dropped",
			slog.String("op", op),
			slog.String("short_code", shortCode),
		)
	}
}

// GetURLStats reads the record straight from the store, where the access counter lives.
func (uc *URLUseCase) GetURLStats(ctx context.Context, shortCode string) (*entity.URL, error) {
	const op = "usecase.URLUseCase.GetURLStats"

	url, err := uc.urlRepo.RetrieveByShortCode(ctx, shortCode)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to get url stats: %w", op, err)
	}

	return url, nil
}

// SweepExpired deletes expired records and returns how many were removed.
func (uc *URLUseCase) SweepExpired(ctx context.Context) (int64, error) {
	const op = "usecase.URLUseCase.SweepExpired"

	n, err := uc.urlRepo.DeleteExpired(ctx)
	if err != nil {
		return 0, fmt.Errorf("%s: failed to delete expired urls: %w", op, err)
	}

	return n, nil
}

// Wait blocks until every scheduled access counter update has finished.
func (uc *URLUseCase) Wait() error {
	return uc.increments.Wait()
}

// Package postgres implements the mapping store on top of a Postgres table.
//
// Expired rows stay in the table until DeleteExpired removes them, so every read filters
// on expires_at and the conditional insert is allowed to replace an expired row.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/vadimbarashkov/shortlink/internal/entity"
)

const uniqueViolationErrCode = "23505"

const defaultQueryTimeout = 3 * time.Second

const urlColumns = `short_code, original_url, access_count, expires_at, created_at`

func isUniqueViolationError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.SQLState() == uniqueViolationErrCode
}

// urlDB is a urls table row. original_url is BYTEA so any byte string round-trips,
// including NUL and invalid UTF-8.
type urlDB struct {
	ShortCode   string    `db:"short_code"`
	OriginalURL []byte    `db:"original_url"`
	AccessCount int64     `db:"access_count"`
	ExpiresAt   int64     `db:"expires_at"`
	CreatedAt   time.Time `db:"created_at"`
}

func (u *urlDB) toEntity() *entity.URL {
	return &entity.URL{
		ShortCode:   u.ShortCode,
		OriginalURL: string(u.OriginalURL),
		URLStats: entity.URLStats{
			AccessCount: u.AccessCount,
		},
		ExpiresAt: time.Unix(u.ExpiresAt, 0),
		CreatedAt: u.CreatedAt,
	}
}

// Option configures a URLRepository.
type Option func(*URLRepository)

// WithQueryTimeout bounds every statement issued by the repository.
func WithQueryTimeout(d time.Duration) Option {
	return func(r *URLRepository) {
		r.queryTimeout = d
	}
}

// WithClock replaces the clock used to decide which rows are expired.
func WithClock(now func() time.Time) Option {
	return func(r *URLRepository) {
		r.now = now
	}
}

type URLRepository struct {
	db           *sqlx.DB
	queryTimeout time.Duration
	now          func() time.Time
}

func NewURLRepository(db *sqlx.DB, opts ...Option) *URLRepository {
	r := &URLRepository{
		db:           db,
		queryTimeout: defaultQueryTimeout,
		now:          time.Now,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

func (r *URLRepository) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.queryTimeout)
}

// Save inserts url unless a live row already holds its short code, in which case
// entity.ErrShortCodeExists is returned. An expired row with the same code is replaced.
func (r *URLRepository) Save(ctx context.Context, url *entity.URL) (*entity.URL, error) {
	const op = "adapter.repository.postgres.URLRepository.Save"
	const query = `INSERT INTO urls (short_code, original_url, access_count, expires_at, created_at)
VALUES ($1, $2, 0, $3, $4)
ON CONFLICT (short_code) DO UPDATE
SET original_url = EXCLUDED.original_url,
    access_count = 0,
    expires_at = EXCLUDED.expires_at,
    created_at = EXCLUDED.created_at
WHERE urls.expires_at <= $5
RETURNING ` + urlColumns

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var row urlDB

	err := r.db.GetContext(ctx, &row, query,
		url.ShortCode, []byte(url.OriginalURL), url.ExpiresAt.Unix(), url.CreatedAt, r.now().Unix())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || isUniqueViolationError(err) {
			return nil, fmt.Errorf("%s: %w", op, entity.ErrShortCodeExists)
		}

		return nil, fmt.Errorf("%s: failed to insert into urls table: %w", op, err)
	}

	return row.toEntity(), nil
}

func (r *URLRepository) RetrieveByShortCode(ctx context.Context, shortCode string) (*entity.URL, error) {
	const op = "adapter.repository.postgres.URLRepository.RetrieveByShortCode"
	const query = `SELECT ` + urlColumns + ` FROM urls WHERE short_code = $1 AND expires_at > $2`

	return r.retrieve(ctx, op, query, shortCode)
}

// RetrieveByOriginalURL looks the live record up through the original_url index.
func (r *URLRepository) RetrieveByOriginalURL(ctx context.Context, originalURL string) (*entity.URL, error) {
	const op = "adapter.repository.postgres.URLRepository.RetrieveByOriginalURL"
	const query = `SELECT ` + urlColumns + ` FROM urls WHERE original_url = $1 AND expires_at > $2`

	return r.retrieve(ctx, op, query, []byte(originalURL))
}

func (r *URLRepository) retrieve(ctx context.Context, op, query string, arg any) (*entity.URL, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var row urlDB

	if err := r.db.GetContext(ctx, &row, query, arg, r.now().Unix()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, entity.ErrURLNotFound)
		}

		return nil, fmt.Errorf("%s: failed to get row from urls table: %w", op, err)
	}

	return row.toEntity(), nil
}

func (r *URLRepository) IncrementAccessCount(ctx context.Context, shortCode string) error {
	const op = "adapter.repository.postgres.URLRepository.IncrementAccessCount"
	const query = `UPDATE urls SET access_count = access_count + 1 WHERE short_code = $1 AND expires_at > $2`

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	res, err := r.db.ExecContext(ctx, query, shortCode, r.now().Unix())
	if err != nil {
		return fmt.Errorf("%s: failed to update urls table row: %w", op, err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: failed to get number of affected rows: %w", op, err)
	}

	if rowsAffected != 1 {
		return fmt.Errorf("%s: %w", op, entity.ErrURLNotFound)
	}

	return nil
}

// DeleteExpired removes every row past its expiration and reports how many were removed.
func (r *URLRepository) DeleteExpired(ctx context.Context) (int64, error) {
	const op = "adapter.repository.postgres.URLRepository.DeleteExpired"
	const query = `DELETE FROM urls WHERE expires_at <= $1`

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	res, err := r.db.ExecContext(ctx, query, r.now().Unix())
	if err != nil {
		return 0, fmt.Errorf("%s: failed to delete from urls table: %w", op, err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: failed to get number of affected rows: %w", op, err)
	}

	return rowsAffected, nil
}

// Package entity defines the record persisted by the service and the errors
// shared between its layers.
package entity

import (
	"errors"
	"time"
)

var (
	// ErrEmptyURL is returned when a shortening request carries no original URL.
	ErrEmptyURL = errors.New("original url is empty")
	// ErrShortCodeExists is returned by a conditional insert when a live record already holds the short code.
	ErrShortCodeExists = errors.New("short code exists")
	// ErrShortCodeCollision is returned when a short code is held by a different original URL.
	ErrShortCodeCollision = errors.New("short code collision")
	// ErrURLNotFound is returned when no live record exists for the short code.
	ErrURLNotFound = errors.New("url not found")
	// ErrCacheMiss is returned by the cache when it holds no entry for the short code.
	ErrCacheMiss = errors.New("cache miss")
)

// URL represents a shortened URL.
type URL struct {
	ShortCode   string    // ShortCode is derived from OriginalURL and never changes.
	OriginalURL string    // OriginalURL is the full URL that the short code resolves to.
	URLStats              // URLStats contains statistics about the URL.
	ExpiresAt   time.Time // ExpiresAt is the moment after which the record is treated as absent.
	CreatedAt   time.Time // CreatedAt is the timestamp when the URL was created.
}

// URLStats contains statistics related to a shortened URL.
type URLStats struct {
	AccessCount int64 // AccessCount is a best-effort count of resolutions.
}

// Expired reports whether the record is past its expiration at the given moment.
func (u *URL) Expired(now time.Time) bool {
	return !now.Before(u.ExpiresAt)
}

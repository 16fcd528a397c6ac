package models

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// ErrInvalidMapping возвращается при нарушении инвариантов Mapping
var ErrInvalidMapping = errors.New("invalid mapping")

// Mapping связь короткого идентификатора с оригинальным URL
type Mapping struct {
	ShortID     string    `json:"short_id" bson:"shortId"`
	OriginalURL string    `json:"original_url" bson:"originalUrl"`
	ExpiresAt   time.Time `json:"expires_at" bson:"expiresAt"`
	CreatedAt   time.Time `json:"created_at" bson:"createdAt"`
}

// CreateMappingInput входные данные для создания Mapping
type CreateMappingInput struct {
	OriginalURL string
	Expiry      time.Duration
}

// NewMapping создаёт Mapping с проверкой инвариантов
func NewMapping(shortID, originalURL string, expiresAt, now time.Time) (*Mapping, error) {
	if shortID == "" {
		return nil, fmt.Errorf("%w: empty short id", ErrInvalidMapping)
	}
	if !HasSupportedScheme(originalURL) {
		return nil, fmt.Errorf("%w: unsupported url %q", ErrInvalidMapping, originalURL)
	}
	if !expiresAt.After(now) {
		return nil, fmt.Errorf("%w: expiry %s is not in the future", ErrInvalidMapping, expiresAt.Format(time.RFC3339))
	}

	return &Mapping{
		ShortID:     shortID,
		OriginalURL: originalURL,
		ExpiresAt:   expiresAt,
		CreatedAt:   now,
	}, nil
}

// Remaining returns the lifetime left at now, never negative.
func (m *Mapping) Remaining(now time.Time) time.Duration {
	d := m.ExpiresAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// IsExpired reports whether the record is no longer resolvable at now.
func (m *Mapping) IsExpired(now time.Time) bool {
	return !now.Before(m.ExpiresAt)
}

// CacheTTL is min(limit, Remaining(now)) truncated to milliseconds.
// Zero means the mapping must not be cached.
func (m *Mapping) CacheTTL(limit time.Duration, now time.Time) time.Duration {
	ttl := m.Remaining(now)
	if limit > 0 && limit < ttl {
		ttl = limit
	}
	return ttl.Truncate(time.Millisecond)
}

// HasSupportedScheme проверяет что URL начинается с http:// или https:// и содержит хост
func HasSupportedScheme(raw string) bool {
	if raw == "" || strings.ContainsAny(raw, " \t\r\n") {
		return false
	}
	lower := strings.ToLower(raw)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return u.Host != ""
}

package repository

import (
	"context"
	"errors"

	"github.com/SergeiKhy/shortlink/internal/models"
)

var (
	ErrMappingNotFound = errors.New("mapping not found")
	ErrShortIDExists   = errors.New("short id already exists")
)

// RecordRepository долговременное хранилище Mapping с собственным истечением срока.
// Записи с истёкшим expires_at считаются отсутствующими.
type RecordRepository interface {
	Create(ctx context.Context, mapping *models.Mapping) error
	GetByShortID(ctx context.Context, shortID string) (*models.Mapping, error)
	EnsureSchema(ctx context.Context) error
}

// Purger удаляет истёкшие записи
type Purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

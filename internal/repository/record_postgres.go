package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/SergeiKhy/shortlink/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolationCode = "23505"

type postgresRecordRepository struct {
	db        *PostgresDB
	batchSize int
}

// PostgresRecordRepository реализует RecordRepository и Purger поверх PostgreSQL
type PostgresRecordRepository interface {
	RecordRepository
	Purger
}

func NewPostgresRecordRepository(db *PostgresDB, batchSize int) PostgresRecordRepository {
	if batchSize < 1 {
		batchSize = 1000
	}
	return &postgresRecordRepository{db: db, batchSize: batchSize}
}

func (r *postgresRecordRepository) EnsureSchema(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS mappings (
			short_id     TEXT PRIMARY KEY,
			original_url TEXT NOT NULL,
			expires_at   TIMESTAMPTZ NOT NULL,
			created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS mappings_expires_at_idx ON mappings (expires_at)`,
	}

	for _, q := range queries {
		if _, err := r.db.Pool.Exec(ctx, q); err != nil {
			return fmt.Errorf("failed to ensure schema: %w", err)
		}
	}

	return nil
}

// Create вставляет запись. Истёкшая, но ещё не удалённая запись с тем же
// short_id перезаписывается; живая запись даёт ErrShortIDExists.
func (r *postgresRecordRepository) Create(ctx context.Context, mapping *models.Mapping) error {
	query := `
		INSERT INTO mappings (short_id, original_url, expires_at, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (short_id) DO UPDATE
		SET original_url = EXCLUDED.original_url,
			expires_at = EXCLUDED.expires_at,
			created_at = EXCLUDED.created_at
		WHERE mappings.expires_at <= NOW()
		RETURNING short_id
	`

	var shortID string
	err := r.db.Pool.QueryRow(
		ctx,
		query,
		mapping.ShortID,
		mapping.OriginalURL,
		mapping.ExpiresAt,
		mapping.CreatedAt,
	).Scan(&shortID)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isUniqueViolation(err) {
			return ErrShortIDExists
		}
		return fmt.Errorf("failed to create mapping: %w", err)
	}

	return nil
}

func (r *postgresRecordRepository) GetByShortID(ctx context.Context, shortID string) (*models.Mapping, error) {
	query := `
		SELECT short_id, original_url, expires_at, created_at
		FROM mappings
		WHERE short_id = $1 AND expires_at > NOW()
	`

	mapping := &models.Mapping{}
	err := r.db.Pool.QueryRow(ctx, query, shortID).Scan(
		&mapping.ShortID,
		&mapping.OriginalURL,
		&mapping.ExpiresAt,
		&mapping.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMappingNotFound
		}
		return nil, fmt.Errorf("failed to get mapping: %w", err)
	}

	return mapping, nil
}

// PurgeExpired удаляет истёкшие записи пачками по batchSize
func (r *postgresRecordRepository) PurgeExpired(ctx context.Context) (int64, error) {
	query := `
		DELETE FROM mappings
		WHERE short_id IN (
			SELECT short_id FROM mappings
			WHERE expires_at <= NOW()
			LIMIT $1
		)
	`

	var total int64
	for {
		result, err := r.db.Pool.Exec(ctx, query, r.batchSize)
		if err != nil {
			return total, fmt.Errorf("failed to purge expired mappings: %w", err)
		}

		total += result.RowsAffected()
		if result.RowsAffected() < int64(r.batchSize) {
			return total, nil
		}
	}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}

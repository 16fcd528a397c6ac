package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/SergeiKhy/shortlink/internal/idgen"
	"github.com/SergeiKhy/shortlink/internal/models"
	"github.com/SergeiKhy/shortlink/internal/repository"
	"go.uber.org/zap"
)

// Значения по умолчанию
const (
	defaultCacheTTL          = 24 * time.Hour
	defaultStoreTimeout      = 2 * time.Second
	defaultCacheTimeout      = 500 * time.Millisecond
	defaultMaxCreateAttempts = 5
	defaultMaxExpiry         = 365 * 24 * time.Hour
	maxShortIDLength         = 64
)

// MappingService создание и разрешение коротких ссылок
type MappingService interface {
	CreateMapping(ctx context.Context, input *models.CreateMappingInput) (*CreateResult, error)
	ResolveMapping(ctx context.Context, shortID string) (string, error)
}

// CreateResult результат создания короткой ссылки
type CreateResult struct {
	Mapping  *models.Mapping
	ShortURL string
}

// Options параметры сервиса
type Options struct {
	BaseURL           string
	CacheTTL          time.Duration
	StoreTimeout      time.Duration
	CacheTimeout      time.Duration
	MaxCreateAttempts int
	MaxExpiry         time.Duration
}

// Option функциональная опция сервиса
type Option func(*mappingService)

// WithClock подменяет источник времени
func WithClock(now func() time.Time) Option {
	return func(s *mappingService) {
		s.now = now
	}
}

type mappingService struct {
	records   repository.RecordRepository
	cache     repository.CacheRepository
	generator idgen.Generator
	opts      Options
	logger    *zap.Logger
	now       func() time.Time
}

// NewMappingService создаёт сервис поверх хранилища и кэша
func NewMappingService(
	records repository.RecordRepository,
	cache repository.CacheRepository,
	generator idgen.Generator,
	opts Options,
	logger *zap.Logger,
	options ...Option,
) MappingService {
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = defaultCacheTTL
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = defaultStoreTimeout
	}
	if opts.CacheTimeout <= 0 {
		opts.CacheTimeout = defaultCacheTimeout
	}
	if opts.MaxCreateAttempts < 1 {
		opts.MaxCreateAttempts = defaultMaxCreateAttempts
	}
	if opts.MaxExpiry <= 0 {
		opts.MaxExpiry = defaultMaxExpiry
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &mappingService{
		records:   records,
		cache:     cache,
		generator: generator,
		opts:      opts,
		logger:    logger,
		now:       time.Now,
	}
	for _, o := range options {
		o(s)
	}

	return s
}

// CreateMapping валидирует вход, сохраняет запись с повтором при коллизии
// идентификатора и заполняет кэш. Ошибка кэша не прерывает создание.
func (s *mappingService) CreateMapping(ctx context.Context, input *models.CreateMappingInput) (*CreateResult, error) {
	if input == nil || !models.HasSupportedScheme(input.OriginalURL) {
		return nil, ErrInvalidURL
	}
	if input.Expiry <= 0 || input.Expiry > s.opts.MaxExpiry {
		return nil, ErrInvalidExpiry
	}

	for attempt := 1; attempt <= s.opts.MaxCreateAttempts; attempt++ {
		shortID, err := s.generator.Generate()
		if err != nil {
			return nil, fmt.Errorf("%w: generate id: %v", ErrCreationFailed, err)
		}

		now := s.now()
		mapping, err := models.NewMapping(shortID, input.OriginalURL, now.Add(input.Expiry), now)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCreationFailed, err)
		}

		err = s.persist(ctx, mapping)
		if err == nil {
			s.populateCache(ctx, mapping)
			return &CreateResult{
				Mapping:  mapping,
				ShortURL: s.opts.BaseURL + "/" + mapping.ShortID,
			}, nil
		}

		if !errors.Is(err, repository.ErrShortIDExists) {
			s.logger.Error("Failed to persist mapping",
				zap.String("short_id", shortID),
				zap.Error(err),
			)
			return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
		}

		s.logger.Debug("Short id collision, regenerating",
			zap.String("short_id", shortID),
			zap.Int("attempt", attempt),
		)
	}

	s.logger.Error("Short id retry budget exhausted", zap.Int("attempts", s.opts.MaxCreateAttempts))
	return nil, fmt.Errorf("%w after %d attempts", ErrCreationFailed, s.opts.MaxCreateAttempts)
}

// ResolveMapping сначала проверяет кэш, при промахе читает хранилище и
// заполняет кэш. Попадание в кэш не сверяется с хранилищем.
func (s *mappingService) ResolveMapping(ctx context.Context, shortID string) (string, error) {
	if shortID == "" || len(shortID) > maxShortIDLength {
		return "", ErrNotFound
	}

	url, err := s.cacheGet(ctx, shortID)
	if err == nil {
		return url, nil
	}
	if !errors.Is(err, repository.ErrCacheMiss) {
		s.logger.Warn("Cache lookup failed, falling back to record store",
			zap.String("short_id", shortID),
			zap.Error(err),
		)
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()

	mapping, err := s.records.GetByShortID(storeCtx, shortID)
	if err != nil {
		if errors.Is(err, repository.ErrMappingNotFound) {
			return "", ErrNotFound
		}
		s.logger.Error("Failed to read mapping",
			zap.String("short_id", shortID),
			zap.Error(err),
		)
		return "", fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	s.populateCache(ctx, mapping)

	return mapping.OriginalURL, nil
}

func (s *mappingService) persist(ctx context.Context, mapping *models.Mapping) error {
	ctx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()
	return s.records.Create(ctx, mapping)
}

func (s *mappingService) cacheGet(ctx context.Context, shortID string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.CacheTimeout)
	defer cancel()
	return s.cache.Get(ctx, shortID)
}

// populateCache пишет в кэш с TTL не больше оставшегося времени жизни записи.
// Запись в хранилище уже сделана, поэтому отмена запроса клиентом не мешает.
func (s *mappingService) populateCache(ctx context.Context, mapping *models.Mapping) {
	ttl := mapping.CacheTTL(s.opts.CacheTTL, s.now())
	if ttl <= 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.CacheTimeout)
	defer cancel()

	if err := s.cache.Set(ctx, mapping.ShortID, mapping.OriginalURL, ttl); err != nil {
		s.logger.Warn("Failed to cache mapping",
			zap.String("short_id", mapping.ShortID),
			zap.Error(err),
		)
	}
}

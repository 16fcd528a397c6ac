package service_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/SergeiKhy/shortlink/internal/idgen"
	"github.com/SergeiKhy/shortlink/internal/models"
	"github.com/SergeiKhy/shortlink/internal/repository"
	"github.com/SergeiKhy/shortlink/internal/service"
	"github.com/SergeiKhy/shortlink/internal/service/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBaseURL = "https://sho.rt"

type testEnv struct {
	service service.MappingService
	records *mocks.MockRecordRepository
	cache   *mocks.MockCacheRepository
	clock   *mocks.Clock
}

// setupTestService создаёт тестовое окружение с моковыми репозиториями
func setupTestService(t *testing.T, gen idgen.Generator) *testEnv {
	t.Helper()

	clock := mocks.NewClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	records := mocks.NewMockRecordRepository(clock.Now)
	cache := mocks.NewMockCacheRepository(clock.Now)

	if gen == nil {
		var err error
		gen, err = idgen.NewNanoID(idgen.DefaultLength, idgen.DefaultAlphabet)
		require.NoError(t, err)
	}

	logger, _ := zap.NewDevelopment()
	svc := service.NewMappingService(records, cache, gen, service.Options{
		BaseURL:           testBaseURL,
		CacheTTL:          24 * time.Hour,
		StoreTimeout:      time.Second,
		CacheTimeout:      time.Second,
		MaxCreateAttempts: 3,
		MaxExpiry:         365 * 24 * time.Hour,
	}, logger, service.WithClock(clock.Now))

	return &testEnv{service: svc, records: records, cache: cache, clock: clock}
}

func create(t *testing.T, env *testEnv, url string, expiry time.Duration) *service.CreateResult {
	t.Helper()
	res, err := env.service.CreateMapping(context.Background(), &models.CreateMappingInput{
		OriginalURL: url,
		Expiry:      expiry,
	})
	require.NoError(t, err)
	return res
}

func TestMappingService_CreateMapping_Success(t *testing.T) {
	env := setupTestService(t, nil)

	res := create(t, env, "https://example.com/path", 86400*time.Second)

	assert.Len(t, res.Mapping.ShortID, 6)
	assert.Equal(t, testBaseURL+"/"+res.Mapping.ShortID, res.ShortURL)
	assert.Equal(t, "https://example.com/path", res.Mapping.OriginalURL)
	assert.Equal(t, env.clock.Now().Add(24*time.Hour), res.Mapping.ExpiresAt)

	assert.Equal(t, 1, env.records.Len())
	assert.True(t, env.cache.Has(res.Mapping.ShortID))
	assert.Equal(t, 24*time.Hour, env.cache.LastTTL[res.Mapping.ShortID])
}

func TestMappingService_RoundTrip(t *testing.T) {
	env := setupTestService(t, nil)
	ctx := context.Background()

	urls := []string{
		"https://example.com/path",
		"http://example.com/?q=1&b=2",
		"https://sub.example.com:8443/a/b#frag",
	}

	for _, url := range urls {
		res := create(t, env, url, time.Hour)

		got, err := env.service.ResolveMapping(ctx, res.Mapping.ShortID)
		require.NoError(t, err)
		assert.Equal(t, url, got)
	}
}

func TestMappingService_CreateMapping_InvalidURL(t *testing.T) {
	env := setupTestService(t, nil)

	invalidURLs := []string{
		"",
		"not-a-url",
		"example.com",
		"ftp://example.com",
		"javascript:alert(1)",
		"https://",
		"https://exa mple.com",
	}

	for _, url := range invalidURLs {
		res, err := env.service.CreateMapping(context.Background(), &models.CreateMappingInput{
			OriginalURL: url,
			Expiry:      time.Hour,
		})
		assert.ErrorIs(t, err, service.ErrInvalidInput, "url %q", url)
		assert.ErrorIs(t, err, service.ErrInvalidURL, "url %q", url)
		assert.Nil(t, res)
	}

	// Ни одной записи в хранилища
	assert.Zero(t, env.records.CreateCalls)
	assert.Zero(t, env.cache.SetCalls)

	res, err := env.service.CreateMapping(context.Background(), nil)
	assert.ErrorIs(t, err, service.ErrInvalidInput)
	assert.Nil(t, res)
}

func TestMappingService_CreateMapping_InvalidExpiry(t *testing.T) {
	env := setupTestService(t, nil)

	for _, expiry := range []time.Duration{0, -time.Second, 366 * 24 * time.Hour} {
		res, err := env.service.CreateMapping(context.Background(), &models.CreateMappingInput{
			OriginalURL: "https://example.com",
			Expiry:      expiry,
		})
		assert.ErrorIs(t, err, service.ErrInvalidExpiry, "expiry %s", expiry)
		assert.ErrorIs(t, err, service.ErrInvalidInput)
		assert.Nil(t, res)
	}

	assert.Zero(t, env.records.CreateCalls)
}

func TestMappingService_CreateMapping_RetriesOnCollision(t *testing.T) {
	gen := mocks.NewSequenceGenerator(nil, "taken1", "fresh1")
	env := setupTestService(t, gen)

	env.records.Put(models.Mapping{
		ShortID:     "taken1",
		OriginalURL: "https://other.example.com",
		ExpiresAt:   env.clock.Now().Add(time.Hour),
		CreatedAt:   env.clock.Now(),
	})

	res := create(t, env, "https://example.com/new", time.Hour)
	assert.Equal(t, "fresh1", res.Mapping.ShortID)
	assert.Equal(t, 2, env.records.CreateCalls)

	// Существующая запись не тронута
	got, err := env.service.ResolveMapping(context.Background(), "taken1")
	require.NoError(t, err)
	assert.Equal(t, "https://other.example.com", got)
}

func TestMappingService_CreateMapping_RetryBudgetExhausted(t *testing.T) {
	gen := idgen.Func(func() (string, error) { return "same01", nil })
	env := setupTestService(t, gen)

	env.records.Put(models.Mapping{
		ShortID:     "same01",
		OriginalURL: "https://other.example.com",
		ExpiresAt:   env.clock.Now().Add(time.Hour),
	})

	res, err := env.service.CreateMapping(context.Background(), &models.CreateMappingInput{
		OriginalURL: "https://example.com",
		Expiry:      time.Hour,
	})
	assert.ErrorIs(t, err, service.ErrCreationFailed)
	assert.Nil(t, res)
	assert.Equal(t, 3, env.records.CreateCalls)
	assert.Zero(t, env.cache.SetCalls)
}

func TestMappingService_CreateMapping_GeneratorError(t *testing.T) {
	gen := idgen.Func(func() (string, error) { return "", errors.New("entropy exhausted") })
	env := setupTestService(t, gen)

	_, err := env.service.CreateMapping(context.Background(), &models.CreateMappingInput{
		OriginalURL: "https://example.com",
		Expiry:      time.Hour,
	})
	assert.ErrorIs(t, err, service.ErrCreationFailed)
	assert.Zero(t, env.records.CreateCalls)
}

func TestMappingService_CreateMapping_StoreUnavailable(t *testing.T) {
	env := setupTestService(t, nil)
	env.records.CreateErr = errors.New("connection refused")

	res, err := env.service.CreateMapping(context.Background(), &models.CreateMappingInput{
		OriginalURL: "https://example.com",
		Expiry:      time.Hour,
	})
	assert.ErrorIs(t, err, service.ErrStoreUnavailable)
	assert.Nil(t, res)
	assert.Equal(t, 1, env.records.CreateCalls, "store errors other than collisions are not retried")
	assert.Zero(t, env.cache.SetCalls)

	// После восстановления хранилища создание снова работает
	env.records.Reset()
	res = create(t, env, "https://example.com/recovered", time.Hour)
	assert.Equal(t, 1, env.records.CreateCalls)
	assert.True(t, env.cache.Has(res.Mapping.ShortID))
}

func TestMappingService_CreateMapping_CacheFailureTolerated(t *testing.T) {
	env := setupTestService(t, nil)
	env.cache.SetErr = errors.New("redis: connection pool timeout")

	res := create(t, env, "https://example.com/cache-down", time.Hour)
	assert.Equal(t, 1, env.cache.SetCalls)
	assert.False(t, env.cache.Has(res.Mapping.ShortID))

	// Следующее разрешение идёт в хранилище и заполняет кэш
	env.cache.Reset()
	got, err := env.service.ResolveMapping(context.Background(), res.Mapping.ShortID)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/cache-down", got)
	assert.True(t, env.cache.Has(res.Mapping.ShortID))
}

// cancellingRepository отменяет контекст вызывающего сразу после записи
type cancellingRepository struct {
	repository.RecordRepository
	cancel context.CancelFunc
}

func (r *cancellingRepository) Create(ctx context.Context, mapping *models.Mapping) error {
	err := r.RecordRepository.Create(ctx, mapping)
	r.cancel()
	return err
}

func TestMappingService_CreateMapping_CallerCancelledAfterPersist(t *testing.T) {
	clock := mocks.NewClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	records := mocks.NewMockRecordRepository(clock.Now)
	cache := mocks.NewMockCacheRepository(clock.Now)
	gen, err := idgen.NewNanoID(6, idgen.DefaultAlphabet)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc := service.NewMappingService(
		&cancellingRepository{RecordRepository: records, cancel: cancel},
		cache, gen, service.Options{BaseURL: testBaseURL}, zap.NewNop(),
		service.WithClock(clock.Now),
	)

	res, err := svc.CreateMapping(ctx, &models.CreateMappingInput{
		OriginalURL: "https://example.com",
		Expiry:      time.Hour,
	})
	require.NoError(t, err)
	assert.True(t, cache.Has(res.Mapping.ShortID), "committed mapping is cached even if the caller went away")
}

func TestMappingService_CreateMapping_CancelledBeforePersist(t *testing.T) {
	env := setupTestService(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := env.service.CreateMapping(ctx, &models.CreateMappingInput{
		OriginalURL: "https://example.com",
		Expiry:      time.Hour,
	})
	assert.ErrorIs(t, err, service.ErrStoreUnavailable)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, env.records.Len())
}

// blockingCache зависает до отмены контекста, как Redis без ответа
type blockingCache struct{}

func (blockingCache) Get(ctx context.Context, shortID string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func (blockingCache) Set(ctx context.Context, shortID, originalURL string, ttl time.Duration) error {
	<-ctx.Done()
	return ctx.Err()
}

// blockingRecords зависает на записи до отмены контекста
type blockingRecords struct {
	repository.RecordRepository
}

func (blockingRecords) Create(ctx context.Context, mapping *models.Mapping) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestMappingService_ResolveMapping_CacheTimeout(t *testing.T) {
	records := mocks.NewMockRecordRepository(time.Now)
	mapping, err := models.NewMapping("slow01", "https://example.com/slow-cache", time.Now().Add(time.Hour), time.Now())
	require.NoError(t, err)
	records.Put(*mapping)

	svc := service.NewMappingService(records, blockingCache{}, idgen.Func(func() (string, error) {
		return "unused", nil
	}), service.Options{
		BaseURL:      testBaseURL,
		StoreTimeout: time.Second,
		CacheTimeout: 20 * time.Millisecond,
	}, zap.NewNop())

	start := time.Now()
	got, err := svc.ResolveMapping(context.Background(), "slow01")
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, "https://example.com/slow-cache", got)
	assert.Equal(t, 1, records.GetCalls)
	// чтение и запись в кэш ограничены по 20ms каждая
	assert.Less(t, elapsed, 500*time.Millisecond)
}

func TestMappingService_CreateMapping_CacheTimeout(t *testing.T) {
	records := mocks.NewMockRecordRepository(time.Now)
	gen, err := idgen.NewNanoID(idgen.DefaultLength, idgen.DefaultAlphabet)
	require.NoError(t, err)

	svc := service.NewMappingService(records, blockingCache{}, gen, service.Options{
		BaseURL:      testBaseURL,
		StoreTimeout: time.Second,
		CacheTimeout: 20 * time.Millisecond,
	}, zap.NewNop())

	start := time.Now()
	res, err := svc.CreateMapping(context.Background(), &models.CreateMappingInput{
		OriginalURL: "https://example.com/slow-cache",
		Expiry:      time.Hour,
	})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, 1, records.Len())
	assert.Equal(t, testBaseURL+"/"+res.Mapping.ShortID, res.ShortURL)
}

func TestMappingService_CreateMapping_StoreTimeout(t *testing.T) {
	cache := mocks.NewMockCacheRepository(time.Now)
	gen, err := idgen.NewNanoID(idgen.DefaultLength, idgen.DefaultAlphabet)
	require.NoError(t, err)

	svc := service.NewMappingService(blockingRecords{}, cache, gen, service.Options{
		BaseURL:      testBaseURL,
		StoreTimeout: 20 * time.Millisecond,
		CacheTimeout: time.Second,
	}, zap.NewNop())

	start := time.Now()
	res, err := svc.CreateMapping(context.Background(), &models.CreateMappingInput{
		OriginalURL: "https://example.com/slow-store",
		Expiry:      time.Hour,
	})
	elapsed := time.Since(start)

	assert.Nil(t, res)
	assert.ErrorIs(t, err, service.ErrStoreUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, elapsed, 500*time.Millisecond)
	assert.Zero(t, cache.SetCalls, "nothing is cached when the store write fails")
}

func TestMappingService_ResolveMapping_FromCache(t *testing.T) {
	env := setupTestService(t, nil)
	res := create(t, env, "https://example.com/cached", time.Hour)

	got, err := env.service.ResolveMapping(context.Background(), res.Mapping.ShortID)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/cached", got)
	assert.Zero(t, env.records.GetCalls, "cache hit must not touch the record store")
}

func TestMappingService_ResolveMapping_CacheMissRepopulates(t *testing.T) {
	env := setupTestService(t, nil)
	res := create(t, env, "https://example.com/miss", time.Hour)
	env.cache.Clear()

	got, err := env.service.ResolveMapping(context.Background(), res.Mapping.ShortID)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/miss", got)
	assert.Equal(t, 1, env.records.GetCalls)
	assert.True(t, env.cache.Has(res.Mapping.ShortID))

	// Второй запрос уже из кэша
	_, err = env.service.ResolveMapping(context.Background(), res.Mapping.ShortID)
	require.NoError(t, err)
	assert.Equal(t, 1, env.records.GetCalls)
}

func TestMappingService_ResolveMapping_CacheUnavailable(t *testing.T) {
	env := setupTestService(t, nil)
	res := create(t, env, "https://example.com/degraded", time.Hour)
	env.cache.GetErr = errors.New("dial tcp: i/o timeout")

	got, err := env.service.ResolveMapping(context.Background(), res.Mapping.ShortID)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/degraded", got)
	assert.Equal(t, 1, env.records.GetCalls)
}

func TestMappingService_ResolveMapping_NotFound(t *testing.T) {
	env := setupTestService(t, nil)

	for _, id := range []string{"nope00", "", strings.Repeat("x", 100)} {
		got, err := env.service.ResolveMapping(context.Background(), id)
		assert.ErrorIs(t, err, service.ErrNotFound)
		assert.Empty(t, got)
	}
}

func TestMappingService_ResolveMapping_StoreUnavailable(t *testing.T) {
	env := setupTestService(t, nil)
	env.records.GetErr = errors.New("connection reset by peer")

	got, err := env.service.ResolveMapping(context.Background(), "abc123")
	assert.ErrorIs(t, err, service.ErrStoreUnavailable)
	assert.NotErrorIs(t, err, service.ErrNotFound)
	assert.Empty(t, got)
}

func TestMappingService_ResolveMapping_Idempotent(t *testing.T) {
	env := setupTestService(t, nil)
	res := create(t, env, "https://example.com/same", time.Hour)

	for i := 0; i < 10; i++ {
		if i%3 == 0 {
			env.cache.Clear()
		}
		got, err := env.service.ResolveMapping(context.Background(), res.Mapping.ShortID)
		require.NoError(t, err)
		assert.Equal(t, "https://example.com/same", got)
	}
}

func TestMappingService_ExpiryBoundary(t *testing.T) {
	env := setupTestService(t, nil)
	res := create(t, env, "https://example.com/short-lived", time.Second)

	got, err := env.service.ResolveMapping(context.Background(), res.Mapping.ShortID)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/short-lived", got)

	// TTL кэша не превышает срок жизни записи
	assert.Equal(t, time.Second, env.cache.LastTTL[res.Mapping.ShortID])

	env.clock.Advance(time.Second)

	got, err = env.service.ResolveMapping(context.Background(), res.Mapping.ShortID)
	assert.ErrorIs(t, err, service.ErrNotFound)
	assert.Empty(t, got)
}

func TestMappingService_CacheTTLBoundedByRemainingLifetime(t *testing.T) {
	env := setupTestService(t, nil)

	long := create(t, env, "https://example.com/long", 7*24*time.Hour)
	assert.Equal(t, 24*time.Hour, env.cache.LastTTL[long.Mapping.ShortID])

	short := create(t, env, "https://example.com/short", time.Hour)
	assert.Equal(t, time.Hour, env.cache.LastTTL[short.Mapping.ShortID])

	// Повторное заполнение после промаха использует оставшееся время
	env.clock.Advance(40 * time.Minute)
	env.cache.Clear()

	_, err := env.service.ResolveMapping(context.Background(), short.Mapping.ShortID)
	require.NoError(t, err)
	assert.Equal(t, 20*time.Minute, env.cache.LastTTL[short.Mapping.ShortID])
}

func TestMappingService_ReuseExpiredShortID(t *testing.T) {
	gen := mocks.NewSequenceGenerator(nil, "reuse1", "reuse1")
	env := setupTestService(t, gen)

	create(t, env, "https://example.com/old", time.Second)
	env.clock.Advance(2 * time.Second)

	res := create(t, env, "https://example.com/new", time.Hour)
	assert.Equal(t, "reuse1", res.Mapping.ShortID)

	got, err := env.service.ResolveMapping(context.Background(), "reuse1")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/new", got, "stale cache entry must not resurrect the old url")
}

func TestMappingService_ConcurrentCollidingCreates(t *testing.T) {
	var mu sync.Mutex
	n := 0
	fallback := func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("uniq%02d", n), nil
	}
	gen := mocks.NewSequenceGenerator(fallback, "collid", "collid")
	env := setupTestService(t, gen)

	var wg sync.WaitGroup
	results := make([]*service.CreateResult, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = env.service.CreateMapping(context.Background(), &models.CreateMappingInput{
				OriginalURL: fmt.Sprintf("https://example.com/%d", i),
				Expiry:      time.Hour,
			})
		}(i)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	ids := []string{results[0].Mapping.ShortID, results[1].Mapping.ShortID}
	assert.Contains(t, ids, "collid")
	assert.Contains(t, ids, "uniq01")

	for i, res := range results {
		got, err := env.service.ResolveMapping(context.Background(), res.Mapping.ShortID)
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("https://example.com/%d", i), got)
	}
}

// TestMappingService_ConcurrentAccess проверяет потокобезопасность при одновременном доступе
func TestMappingService_ConcurrentAccess(t *testing.T) {
	env := setupTestService(t, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			url := fmt.Sprintf("https://example.com/test%d", id)
			res, err := env.service.CreateMapping(ctx, &models.CreateMappingInput{OriginalURL: url, Expiry: time.Hour})
			if !assert.NoError(t, err) {
				return
			}
			got, err := env.service.ResolveMapping(ctx, res.Mapping.ShortID)
			assert.NoError(t, err)
			assert.Equal(t, url, got)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 20, env.records.Len())
}

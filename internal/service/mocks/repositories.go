package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/SergeiKhy/shortlink/internal/models"
	"github.com/SergeiKhy/shortlink/internal/repository"
)

// Clock ручные часы для тестов
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(now time.Time) *Clock {
	return &Clock{now: now}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// MockRecordRepository implements repository.RecordRepository for testing.
// Records past ExpiresAt behave as absent, like the real stores.
type MockRecordRepository struct {
	mu      sync.RWMutex
	records map[string]models.Mapping
	now     func() time.Time

	CreateErr   error
	GetErr      error
	CreateCalls int
	GetCalls    int
}

func NewMockRecordRepository(now func() time.Time) *MockRecordRepository {
	return &MockRecordRepository{
		records: make(map[string]models.Mapping),
		now:     now,
	}
}

func (m *MockRecordRepository) Create(ctx context.Context, mapping *models.Mapping) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CreateCalls++
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.CreateErr != nil {
		return m.CreateErr
	}

	if existing, ok := m.records[mapping.ShortID]; ok && !existing.IsExpired(m.now()) {
		return repository.ErrShortIDExists
	}

	m.records[mapping.ShortID] = *mapping
	return nil
}

func (m *MockRecordRepository) GetByShortID(ctx context.Context, shortID string) (*models.Mapping, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.GetCalls++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.GetErr != nil {
		return nil, m.GetErr
	}

	mapping, ok := m.records[shortID]
	if !ok || mapping.IsExpired(m.now()) {
		return nil, repository.ErrMappingNotFound
	}
	return &mapping, nil
}

func (m *MockRecordRepository) EnsureSchema(ctx context.Context) error {
	return nil
}

// Put кладёт запись напрямую, минуя сервис
func (m *MockRecordRepository) Put(mapping models.Mapping) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[mapping.ShortID] = mapping
}

func (m *MockRecordRepository) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

func (m *MockRecordRepository) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = make(map[string]models.Mapping)
	m.CreateErr, m.GetErr = nil, nil
	m.CreateCalls, m.GetCalls = 0, 0
}

type cacheEntry struct {
	url       string
	expiresAt time.Time
}

// MockCacheRepository implements repository.CacheRepository for testing
type MockCacheRepository struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	now     func() time.Time

	GetErr   error
	SetErr   error
	SetCalls int
	LastTTL  map[string]time.Duration
}

func NewMockCacheRepository(now func() time.Time) *MockCacheRepository {
	return &MockCacheRepository{
		entries: make(map[string]cacheEntry),
		now:     now,
		LastTTL: make(map[string]time.Duration),
	}
}

func (m *MockCacheRepository) Get(ctx context.Context, shortID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.GetErr != nil {
		return "", m.GetErr
	}

	entry, ok := m.entries[shortID]
	if !ok || !m.now().Before(entry.expiresAt) {
		return "", repository.ErrCacheMiss
	}
	return entry.url, nil
}

func (m *MockCacheRepository) Set(ctx context.Context, shortID, originalURL string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.SetCalls++
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.SetErr != nil {
		return m.SetErr
	}
	if ttl <= 0 {
		return nil
	}

	m.entries[shortID] = cacheEntry{url: originalURL, expiresAt: m.now().Add(ttl)}
	m.LastTTL[shortID] = ttl
	return nil
}

// Has reports whether a live entry exists.
func (m *MockCacheRepository) Has(shortID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.entries[shortID]
	return ok && m.now().Before(entry.expiresAt)
}

func (m *MockCacheRepository) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]cacheEntry)
}

func (m *MockCacheRepository) Reset() {
	m.Clear()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GetErr, m.SetErr = nil, nil
	m.SetCalls = 0
	m.LastTTL = make(map[string]time.Duration)
}

// SequenceGenerator returns ids from a fixed list, then falls back to next.
type SequenceGenerator struct {
	mu   sync.Mutex
	ids  []string
	next func() (string, error)
}

func NewSequenceGenerator(next func() (string, error), ids ...string) *SequenceGenerator {
	return &SequenceGenerator{ids: ids, next: next}
}

func (g *SequenceGenerator) Generate() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.ids) > 0 {
		id := g.ids[0]
		g.ids = g.ids[1:]
		return id, nil
	}
	return g.next()
}

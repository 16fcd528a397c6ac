// Package container собирает зависимости процесса и управляет их жизненным циклом.
package container

import (
	"context"
	"fmt"

	"github.com/SergeiKhy/shortlink/internal/config"
	"github.com/SergeiKhy/shortlink/internal/handler"
	"github.com/SergeiKhy/shortlink/internal/idgen"
	"github.com/SergeiKhy/shortlink/internal/repository"
	"github.com/SergeiKhy/shortlink/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/samber/do"
	"go.uber.org/zap"
)

// New регистрирует ленивые провайдеры. Подключения открываются при первом Invoke
// и закрываются в обратном порядке в injector.Shutdown().
func New(cfg *config.Config, logger *zap.Logger) (*do.Injector, error) {
	injector := do.New()

	do.ProvideValue(injector, cfg)
	do.ProvideValue(injector, logger)

	do.Provide(injector, func(i *do.Injector) (idgen.Generator, error) {
		return idgen.NewNanoID(cfg.ID.Length, cfg.ID.Alphabet)
	})

	do.Provide(injector, func(i *do.Injector) (*repository.RedisDB, error) {
		return repository.NewRedisClient(cfg.Redis, logger)
	})
	do.Provide(injector, func(i *do.Injector) (repository.CacheRepository, error) {
		redisDB, err := do.Invoke[*repository.RedisDB](i)
		if err != nil {
			return nil, err
		}
		return repository.NewCacheRepository(redisDB, cfg.Cache.KeyPrefix), nil
	})

	switch driver := cfg.RecordStore.Driver(); driver {
	case "postgres":
		providePostgres(injector, cfg, logger)
	case "mongodb":
		provideMongo(injector, cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported record store url %q", cfg.RecordStore.URL)
	}

	do.Provide(injector, func(i *do.Injector) (service.MappingService, error) {
		records, err := do.Invoke[repository.RecordRepository](i)
		if err != nil {
			return nil, err
		}
		cache, err := do.Invoke[repository.CacheRepository](i)
		if err != nil {
			return nil, err
		}
		gen, err := do.Invoke[idgen.Generator](i)
		if err != nil {
			return nil, err
		}

		return service.NewMappingService(records, cache, gen, service.Options{
			BaseURL:           cfg.App.BaseURL,
			CacheTTL:          cfg.Cache.TTL,
			StoreTimeout:      cfg.RecordStore.Timeout,
			CacheTimeout:      cfg.Cache.Timeout,
			MaxCreateAttempts: cfg.Mapping.MaxCreateAttempts,
			MaxExpiry:         cfg.Mapping.MaxExpiry,
		}, logger), nil
	})

	do.Provide(injector, func(i *do.Injector) (*gin.Engine, error) {
		svc, err := do.Invoke[service.MappingService](i)
		if err != nil {
			return nil, err
		}

		return handler.NewRouter(svc, handler.RouterConfig{
			LandingURL:    cfg.App.LandingURL,
			DefaultExpiry: cfg.Mapping.DefaultExpiry,
		}, i.HealthCheck, logger), nil
	})

	return injector, nil
}

func providePostgres(injector *do.Injector, cfg *config.Config, logger *zap.Logger) {
	do.Provide(injector, func(i *do.Injector) (*repository.PostgresDB, error) {
		db, err := repository.NewPostgresDB(cfg.RecordStore)
		if err != nil {
			return nil, err
		}
		logger.Info("Connected to PostgreSQL")
		return db, nil
	})
	do.Provide(injector, func(i *do.Injector) (repository.PostgresRecordRepository, error) {
		db, err := do.Invoke[*repository.PostgresDB](i)
		if err != nil {
			return nil, err
		}
		return repository.NewPostgresRecordRepository(db, cfg.RecordStore.SweepBatchSize), nil
	})
	do.Provide(injector, func(i *do.Injector) (repository.RecordRepository, error) {
		repo, err := do.Invoke[repository.PostgresRecordRepository](i)
		if err != nil {
			return nil, err
		}
		return repo, nil
	})
	do.Provide(injector, func(i *do.Injector) (*repository.ExpirySweeper, error) {
		purger, err := do.Invoke[repository.PostgresRecordRepository](i)
		if err != nil {
			return nil, err
		}
		return repository.NewExpirySweeper(purger, cfg.RecordStore.SweepInterval, logger), nil
	})
}

func provideMongo(injector *do.Injector, cfg *config.Config, logger *zap.Logger) {
	do.Provide(injector, func(i *do.Injector) (*repository.MongoDB, error) {
		db, err := repository.NewMongoDB(cfg.RecordStore)
		if err != nil {
			return nil, err
		}
		logger.Info("Connected to MongoDB")
		return db, nil
	})
	do.Provide(injector, func(i *do.Injector) (repository.RecordRepository, error) {
		db, err := do.Invoke[*repository.MongoDB](i)
		if err != nil {
			return nil, err
		}
		return repository.NewMongoRecordRepository(db), nil
	})
}

// Start создаёт схему хранилища, прогревает подключения и запускает очистку
// истёкших записей, если хранилище в ней нуждается.
func Start(ctx context.Context, injector *do.Injector) error {
	cfg, err := do.Invoke[*config.Config](injector)
	if err != nil {
		return err
	}

	records, err := do.Invoke[repository.RecordRepository](injector)
	if err != nil {
		return err
	}
	if err := records.EnsureSchema(ctx); err != nil {
		return err
	}

	if _, err := do.Invoke[repository.CacheRepository](injector); err != nil {
		return err
	}

	// MongoDB удаляет истёкшие документы по TTL индексу сам
	if cfg.RecordStore.Driver() == "postgres" {
		sweeper, err := do.Invoke[*repository.ExpirySweeper](injector)
		if err != nil {
			return err
		}
		sweeper.Start()
	}

	return nil
}

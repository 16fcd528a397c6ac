package repository

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const defaultSweepTimeout = 30 * time.Second

// ExpirySweeper периодически удаляет истёкшие записи из хранилища,
// у которого нет собственного механизма TTL.
type ExpirySweeper struct {
	purger   Purger
	interval time.Duration
	timeout  time.Duration
	logger   *zap.Logger

	mu      sync.Mutex
	wg      sync.WaitGroup
	cancel  context.CancelFunc
	running bool
}

func NewExpirySweeper(purger Purger, interval time.Duration, logger *zap.Logger) *ExpirySweeper {
	if logger == nil {
		logger = zap.NewNop()
	}

	timeout := defaultSweepTimeout
	if interval < timeout {
		timeout = interval
	}

	return &ExpirySweeper{
		purger:   purger,
		interval: interval,
		timeout:  timeout,
		logger:   logger,
	}
}

// Start запускает фоновую очистку; повторный вызов ничего не делает
func (s *ExpirySweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.running = true

	s.logger.Info("Starting expiry sweeper", zap.Duration("interval", s.interval))

	s.wg.Add(1)
	go s.loop(ctx)
}

// Stop останавливает очистку и ждёт завершения текущего прохода
func (s *ExpirySweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.cancel()
	s.running = false
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("Expiry sweeper stopped")
}

// Shutdown implements do.Shutdownable.
func (s *ExpirySweeper) Shutdown() error {
	s.Stop()
	return nil
}

func (s *ExpirySweeper) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep выполняет один проход очистки
func (s *ExpirySweeper) Sweep(ctx context.Context) int64 {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	removed, err := s.purger.PurgeExpired(ctx)
	if err != nil {
		s.logger.Error("Failed to purge expired mappings",
			zap.Int64("removed", removed),
			zap.Error(err),
		)
		return removed
	}

	if removed > 0 {
		s.logger.Debug("Purged expired mappings", zap.Int64("removed", removed))
	}

	return removed
}

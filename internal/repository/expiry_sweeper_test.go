package repository_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/SergeiKhy/shortlink/internal/repository"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type countingPurger struct {
	calls   atomic.Int64
	removed int64
	err     error
}

func (p *countingPurger) PurgeExpired(ctx context.Context) (int64, error) {
	p.calls.Add(1)
	if _, ok := ctx.Deadline(); !ok {
		return 0, errors.New("sweep must run with a deadline")
	}
	return p.removed, p.err
}

func TestExpirySweeper_Sweep(t *testing.T) {
	purger := &countingPurger{removed: 7}
	sweeper := repository.NewExpirySweeper(purger, time.Minute, zap.NewNop())

	assert.Equal(t, int64(7), sweeper.Sweep(context.Background()))
	assert.Equal(t, int64(1), purger.calls.Load())
}

func TestExpirySweeper_SweepError(t *testing.T) {
	purger := &countingPurger{removed: 2, err: errors.New("connection reset")}
	sweeper := repository.NewExpirySweeper(purger, time.Minute, nil)

	// Ошибка логируется, частичный результат возвращается
	assert.Equal(t, int64(2), sweeper.Sweep(context.Background()))
}

func TestExpirySweeper_StartStop(t *testing.T) {
	purger := &countingPurger{}
	sweeper := repository.NewExpirySweeper(purger, 10*time.Millisecond, zap.NewNop())

	sweeper.Start()
	sweeper.Start()

	assert.Eventually(t, func() bool {
		return purger.calls.Load() >= 3
	}, time.Second, 5*time.Millisecond)

	sweeper.Stop()
	calls := purger.calls.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, calls, purger.calls.Load(), "no sweeps after Stop")

	// Повторная остановка безопасна
	sweeper.Stop()
	assert.NoError(t, sweeper.Shutdown())
}

// Package scheduler runs periodic background jobs.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gamelend/internal/middleware"
	"gamelend/internal/models"
	"gamelend/internal/observability"
	"gamelend/internal/service"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// OverdueLockKey serialises sweeps across replicas.
const OverdueLockKey = "scheduler:overdue-sweep:lock"

var releaseLock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// OverdueRecords is the part of the lending record service the sweep uses.
type OverdueRecords interface {
	FindOverdue(ctx context.Context) ([]models.LendingRecord, error)
	MarkOverdue(ctx context.Context, id uint, actorID uint, reason string) (*models.LendingRecord, bool, error)
}

// SweepResult summarises one sweep.
type SweepResult struct {
	Skipped bool
	Found   int
	Marked  int
	Failed  int
}

// OverdueSweeper periodically finds ACTIVE records past their end date and,
// when auto-marking is enabled, moves them to OVERDUE.
type OverdueSweeper struct {
	records  OverdueRecords
	rdb      *redis.Client
	interval time.Duration
	autoMark bool

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewOverdueSweeper returns a sweeper. A nil rdb runs without the cross-replica lock.
func NewOverdueSweeper(records OverdueRecords, rdb *redis.Client, interval time.Duration, autoMark bool) *OverdueSweeper {
	return &OverdueSweeper{
		records:  records,
		rdb:      rdb,
		interval: interval,
		autoMark: autoMark,
		stopCh:   make(chan struct{}),
	}
}

// Start launches the sweep loop. It returns immediately and does nothing
// when the interval is not positive.
func (s *OverdueSweeper) Start(ctx context.Context) {
	if s.interval <= 0 {
		middleware.Logger.Info("Overdue sweep disabled")
		return
	}
	s.wg.Add(1)
	go s.loop(ctx)
}

// Stop ends the loop and waits for an in-flight sweep to finish.
func (s *OverdueSweeper) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

func (s *OverdueSweeper) loop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				middleware.Logger.ErrorContext(ctx, "overdue sweep failed", slog.String("error", err.Error()))
			}
		}
	}
}

// RunOnce performs a single sweep.
func (s *OverdueSweeper) RunOnce(ctx context.Context) (result SweepResult, err error) {
	ctx = observability.EnsureCorrelationID(ctx)
	fields := map[string]interface{}{"auto_mark": s.autoMark}
	observability.LogAsyncOperationStart(ctx, "overdue_sweep", fields)

	defer func() {
		switch {
		case err != nil:
			observability.OverdueSweepRuns.WithLabelValues("error").Inc()
			observability.LogAsyncOperationError(ctx, "overdue_sweep", err, fields)
		case result.Skipped:
			observability.OverdueSweepRuns.WithLabelValues("skipped").Inc()
		default:
			observability.OverdueSweepRuns.WithLabelValues("ok").Inc()
			observability.LogAsyncOperationEnd(ctx, "overdue_sweep", map[string]interface{}{
				"found":  result.Found,
				"marked": result.Marked,
				"failed": result.Failed,
			})
		}
	}()

	release, acquired, err := s.lock(ctx)
	if err != nil {
		return result, err
	}
	if !acquired {
		result.Skipped = true
		return result, nil
	}
	defer release()

	overdue, err := s.records.FindOverdue(ctx)
	if err != nil {
		return result, err
	}
	result.Found = len(overdue)
	observability.OverdueRecords.Set(float64(len(overdue)))

	if !s.autoMark {
		for _, record := range overdue {
			middleware.Logger.InfoContext(ctx, "lending record past end date",
				slog.Uint64("record_id", uint64(record.ID)),
				slog.String("reference", record.Reference),
				slog.Time("end_date", record.EndDate),
			)
		}
		return result, nil
	}

	for _, record := range overdue {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		_, changed, err := s.records.MarkOverdue(ctx, record.ID, service.SystemActorID, "end date passed")
		if err != nil {
			result.Failed++
			middleware.Logger.WarnContext(ctx, "failed to mark record overdue",
				slog.Uint64("record_id", uint64(record.ID)),
				slog.String("error", err.Error()),
			)
			continue
		}
		if changed {
			result.Marked++
		}
	}
	return result, nil
}

func (s *OverdueSweeper) lock(ctx context.Context) (func(), bool, error) {
	if s.rdb == nil {
		return func() {}, true, nil
	}

	ttl := s.interval
	if ttl <= 0 {
		ttl = time.Minute
	}
	token := uuid.NewString()
	acquired, err := s.rdb.SetNX(ctx, OverdueLockKey, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire sweep lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return func() {
		if err := releaseLock.Run(context.WithoutCancel(ctx), s.rdb, []string{OverdueLockKey}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
			middleware.Logger.WarnContext(ctx, "failed to release sweep lock", slog.String("error", err.Error()))
		}
	}, true, nil
}

package discount

import (
	"context"
	"errors"
	"sync"
	"time"

	"urbansprout/internal/monitor"
	"urbansprout/internal/repository"
	"urbansprout/pkg/lock"
	"urbansprout/pkg/log"
)

// Scheduler drives discount lifecycle transitions on a fixed interval.
// A scan is never re-entered: a tick arriving while the previous scan
// still runs is skipped, and a Redis lock keeps concurrent instances
// from scanning at once.
type Scheduler struct {
	discountRepo repository.DiscountRepository
	applicator   Applicator
	redisLock    *lock.RedisLock
	metrics      *monitor.MetricsCollector
	tracer       *monitor.Tracer

	interval    time.Duration
	itemTimeout time.Duration

	scanMu sync.Mutex
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler
func NewScheduler(
	discountRepo repository.DiscountRepository,
	applicator Applicator,
	redisLock *lock.RedisLock,
	metrics *monitor.MetricsCollector,
	tracer *monitor.Tracer,
	interval, itemTimeout time.Duration,
) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	if itemTimeout <= 0 {
		itemTimeout = 30 * time.Second
	}
	return &Scheduler{
		discountRepo: discountRepo,
		applicator:   applicator,
		redisLock:    redisLock,
		metrics:      metrics,
		tracer:       tracer,
		interval:     interval,
		itemTimeout:  itemTimeout,
		stopCh:       make(chan struct{}),
	}
}

// Start launches the scan loop. An initial scan runs right away so a
// restart does not wait a full interval to catch up.
func (s *Scheduler) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		log.Info("discount scheduler started", "interval", s.interval.String())

		s.Scan(ctx)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			case <-ticker.C:
				s.Scan(ctx)
			}
		}
	}()
}

// Stop stops the scan loop and waits for an in-flight scan to finish
func (s *Scheduler) Stop() {
	close(s.stopCh)
	s.wg.Wait()
	log.Info("discount scheduler stopped")
}

// Scan runs one lifecycle pass. Returns false when skipped because a
// scan is already running here or on another instance.
func (s *Scheduler) Scan(ctx context.Context) bool {
	if !s.scanMu.TryLock() {
		log.Debug("discount scan skipped, previous scan still running")
		return false
	}
	defer s.scanMu.Unlock()

	if s.redisLock != nil {
		if err := s.redisLock.Lock(ctx); err != nil {
			if errors.Is(err, lock.ErrLockFailed) {
				log.Debug("discount scan skipped, lock held elsewhere")
			} else {
				log.Warn("discount scan lock error", "error", err)
			}
			return false
		}
		defer s.redisLock.Unlock(ctx)
	}

	start := time.Now()
	if s.tracer != nil {
		var end func()
		ctx, end = s.startScanSpan(ctx)
		defer end()
	}

	now := time.Now()
	s.scanApplies(ctx, now)
	s.scanRevokes(ctx, now)

	if s.metrics != nil {
		s.metrics.RecordDiscountScanDuration(time.Since(start))
	}
	return true
}

// scanApplies materializes discounts whose window has opened
func (s *Scheduler) scanApplies(ctx context.Context, now time.Time) {
	due, err := s.discountRepo.FindDueForApply(ctx, now)
	if err != nil {
		log.Error("find discounts due for apply failed", "error", err)
		return
	}

	for _, d := range due {
		itemCtx, cancel := context.WithTimeout(ctx, s.itemTimeout)
		err := s.applicator.Apply(itemCtx, d)
		cancel()

		if err != nil {
			// Isolated: the rest of the batch still runs, this
			// discount is retried next tick.
			log.WithFields(map[string]interface{}{
				"discount_id": d.ID,
				"error":       err.Error(),
			}).Error("Discount apply failed")
			s.recordItem("error")
			continue
		}
		s.recordItem("applied")
	}
}

// scanRevokes strips discounts that expired or were deactivated
func (s *Scheduler) scanRevokes(ctx context.Context, now time.Time) {
	due, err := s.discountRepo.FindDueForRevoke(ctx, now)
	if err != nil {
		log.Error("find discounts due for revoke failed", "error", err)
		return
	}

	for _, d := range due {
		itemCtx, cancel := context.WithTimeout(ctx, s.itemTimeout)
		err := s.applicator.Revoke(itemCtx, d)
		cancel()

		if err != nil {
			log.WithFields(map[string]interface{}{
				"discount_id": d.ID,
				"error":       err.Error(),
			}).Error("Discount revoke failed")
			s.recordItem("error")
			continue
		}
		s.recordItem("revoked")
	}
}

func (s *Scheduler) startScanSpan(ctx context.Context) (context.Context, func()) {
	ctx, span := s.tracer.StartScanSpan(ctx)
	return ctx, func() { span.End() }
}

func (s *Scheduler) recordItem(status string) {
	if s.metrics != nil {
		s.metrics.RecordDiscountScanItem(status)
	}
}

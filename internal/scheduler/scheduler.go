// Package scheduler owns the periodic expiry sweeps: unpaid orders past the
// expiry threshold and promotions past their end date.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"go-storefront/pkg/clock"
	"go-storefront/pkg/lock"
	"go-storefront/pkg/logger"
	"go-storefront/pkg/metrics"
)

// Sweep names, also used as lease and metric labels
const (
	SweepOrders     = "orders"
	SweepPromotions = "promotions"
)

// OrderSweeper flags stale unpaid orders
type OrderSweeper interface {
	SweepExpirations(ctx context.Context, now time.Time, threshold time.Duration) (int, error)
}

// PromotionSweeper deactivates promotions past their end date
type PromotionSweeper interface {
	SweepExpired(ctx context.Context, now time.Time) (int, error)
}

// Config tunes the sweep cadence
type Config struct {
	Interval             time.Duration
	OrderExpiryThreshold time.Duration
	// LeaseTTL bounds how long one replica holds a sweep; defaults to Interval
	LeaseTTL time.Duration
}

// Report is the outcome of one pass
type Report struct {
	OrdersExpired         int
	PromotionsDeactivated int
}

// Scheduler runs both sweeps on a cron schedule
type Scheduler struct {
	cron       *cron.Cron
	orders     OrderSweeper
	promotions PromotionSweeper
	locker     lock.Locker
	clock      clock.Clock
	cfg        Config
	log        *logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

// New builds a scheduler; nothing runs until Start
func New(orders OrderSweeper, promotions PromotionSweeper, locker lock.Locker, clk clock.Clock, cfg Config, log *logger.Logger) (*Scheduler, error) {
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("sweep interval must be positive, got %s", cfg.Interval)
	}
	if cfg.OrderExpiryThreshold <= 0 {
		return nil, fmt.Errorf("order expiry threshold must be positive, got %s", cfg.OrderExpiryThreshold)
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = cfg.Interval
	}
	if locker == nil {
		locker = lock.Noop{}
	}

	log = log.Named("scheduler")
	c := cron.New(cron.WithChain(
		cron.Recover(cronLogger{log}),
		cron.SkipIfStillRunning(cronLogger{log}),
	))

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cron:       c,
		orders:     orders,
		promotions: promotions,
		locker:     locker,
		clock:      clk,
		cfg:        cfg,
		log:        log,
		ctx:        ctx,
		cancel:     cancel,
	}

	if _, err := c.AddFunc("@every "+cfg.Interval.String(), s.tick); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to schedule sweeps: %w", err)
	}
	return s, nil
}

// Start begins ticking in the background
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("expiry scheduler started",
		zap.Duration("interval", s.cfg.Interval),
		zap.Duration("order_expiry_threshold", s.cfg.OrderExpiryThreshold),
	)
}

// Stop stops ticking and waits for a running pass. When ctx ends first the
// running pass is cancelled and ctx's error returned.
func (s *Scheduler) Stop(ctx context.Context) error {
	var err error
	s.once.Do(func() {
		done := s.cron.Stop()
		select {
		case <-done.Done():
		case <-ctx.Done():
			err = ctx.Err()
		}
		s.cancel()
		s.log.Info("expiry scheduler stopped")
	})
	return err
}

func (s *Scheduler) tick() {
	report, err := s.RunOnce(s.ctx)
	if err != nil {
		s.log.Error("sweep pass finished with errors",
			zap.Error(err),
			zap.Int("orders_expired", report.OrdersExpired),
			zap.Int("promotions_deactivated", report.PromotionsDeactivated),
		)
	}
}

// RunOnce runs the order sweep then the promotion sweep. A failing or
// panicking sweep does not stop the other; their errors are combined.
func (s *Scheduler) RunOnce(ctx context.Context) (Report, error) {
	var report Report
	now := s.clock.Now()

	ordersExpired, orderErr := s.runSweep(ctx, SweepOrders, func(ctx context.Context) (int, error) {
		return s.orders.SweepExpirations(ctx, now, s.cfg.OrderExpiryThreshold)
	})
	report.OrdersExpired = ordersExpired

	deactivated, promoErr := s.runSweep(ctx, SweepPromotions, func(ctx context.Context) (int, error) {
		return s.promotions.SweepExpired(ctx, now)
	})
	report.PromotionsDeactivated = deactivated

	return report, multierr.Combine(orderErr, promoErr)
}

func (s *Scheduler) runSweep(ctx context.Context, name string, sweep func(context.Context) (int, error)) (n int, err error) {
	log := s.log.WithContext(ctx).With(zap.String("sweep", name))

	release, lerr := s.locker.Acquire(ctx, "sweep:"+name, s.cfg.LeaseTTL)
	switch {
	case errors.Is(lerr, lock.ErrNotAcquired):
		log.Debug("sweep lease held by another replica")
		return 0, nil
	case lerr != nil:
		// sweeps are idempotent, so run unguarded rather than not at all
		log.Warn("sweep lease unavailable", zap.Error(lerr))
	default:
		defer func() {
			if rerr := release(context.WithoutCancel(ctx)); rerr != nil {
				log.Warn("failed to release sweep lease", zap.Error(rerr))
			}
		}()
	}

	defer func() {
		if r := recover(); r != nil {
			metrics.RecordSweepFailure(name)
			log.Error("sweep panicked", zap.Any("panic", r), zap.Stack("stack"))
			err = fmt.Errorf("%s sweep panicked: %v", name, r)
		}
	}()

	n, err = sweep(ctx)
	if err != nil {
		return n, fmt.Errorf("%s sweep: %w", name, err)
	}
	log.Debug("sweep finished", zap.Int("count", n))
	return n, nil
}

// cronLogger adapts the service logger to cron's logging interface
type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Sugar().Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Sugar().With(zap.Error(err)).Errorw(msg, keysAndValues...)
}

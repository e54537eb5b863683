// Package scheduler запускает проверку истёкших подписок по расписанию cron
// и по запросу из админ-консоли. Одновременно выполняется не больше одной проверки.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/magabrotheeeer/vpn-shop/internal/config"
	"github.com/magabrotheeeer/vpn-shop/internal/lib/sl"
	"github.com/magabrotheeeer/vpn-shop/internal/services/entitlement"
)

// ErrAlreadyRunning — проверка уже идёт.
var ErrAlreadyRunning = errors.New("sweep already running")

// Sweeper выполняет одну проверку.
type Sweeper interface {
	SweepExpiredSubscriptions(ctx context.Context, now time.Time) (*entitlement.SweepReport, error)
}

// Scheduler управляет cron-задачей проверки.
type Scheduler struct {
	cron     *cron.Cron
	sweeper  Sweeper
	log      *slog.Logger
	schedule string
	timeout  time.Duration
	now      func() time.Time

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// New создаёт планировщик. Задача регистрируется в Start.
func New(sweeper Sweeper, log *slog.Logger, cfg config.Sweep) *Scheduler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(log.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(
		cron.Recover(cronLogger),
		cron.SkipIfStillRunning(cronLogger),
	))

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:     c,
		sweeper:  sweeper,
		log:      log,
		schedule: cfg.Schedule,
		timeout:  cfg.Timeout,
		now:      time.Now,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start регистрирует задачу и запускает cron.
func (s *Scheduler) Start() error {
	const op = "scheduler.Start"

	if _, err := s.cron.AddFunc(s.schedule, s.runScheduled); err != nil {
		return fmt.Errorf("%s: schedule %q: %w", op, s.schedule, err)
	}
	s.log.Info("scheduled expiry sweep", slog.String("schedule", s.schedule))
	s.cron.Start()
	return nil
}

// Stop отменяет идущую проверку и останавливает cron. Возвращённый контекст
// завершается, когда задача досчитала.
func (s *Scheduler) Stop() context.Context {
	s.cancel()
	return s.cron.Stop()
}

// TryRun запускает проверку немедленно. Если проверка уже идёт,
// возвращает ErrAlreadyRunning.
func (s *Scheduler) TryRun(ctx context.Context) (*entitlement.SweepReport, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRunning
	}
	defer s.running.Store(false)

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	return s.sweeper.SweepExpiredSubscriptions(ctx, s.now())
}

func (s *Scheduler) runScheduled() {
	report, err := s.TryRun(s.ctx)
	switch {
	case errors.Is(err, ErrAlreadyRunning):
		s.log.Info("expiry sweep skipped, previous run still active")
	case err != nil:
		s.log.Error("expiry sweep failed", sl.Err(err))
	default:
		s.log.Info("expiry sweep done",
			slog.String("run_id", report.RunID),
			slog.Int("expired", report.Expired),
			slog.Int("failed", len(report.Failures)))
	}
}

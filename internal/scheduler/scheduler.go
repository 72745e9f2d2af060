// Package scheduler triggers periodic sync runs on a cron cadence.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/himanshusaroha648/toonstream-cloudflare/internal/syncer"
)

// Runner starts one sync run. *syncer.Syncer satisfies it.
type Runner interface {
	Run(ctx context.Context, force bool) (syncer.RunStats, error)
}

// Config wires the cron trigger.
type Config struct {
	CronExpr   string
	RunOnStart bool
}

// Scheduler drives a Runner from a standard five-field cron expression.
// Ticks that land while a run is active are skipped, never queued.
type Scheduler struct {
	cfg    Config
	runner Runner
	logger *zap.Logger
	cron   *cron.Cron
}

// New validates the cron expression and prepares the scheduler.
func New(cfg Config, runner Runner, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if _, err := cron.ParseStandard(cfg.CronExpr); err != nil {
		return nil, fmt.Errorf("parse cron expression %q: %w", cfg.CronExpr, err)
	}
	return &Scheduler{cfg: cfg, runner: runner, logger: logger}, nil
}

// Start begins ticking. ctx bounds every triggered run; once it is canceled
// ticks become no-ops. Start must be called at most once.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.cron != nil {
		return errors.New("scheduler already started")
	}
	cl := cronLogger{s.logger.Sugar()}
	s.cron = cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	if _, err := s.cron.AddFunc(s.cfg.CronExpr, func() { s.tick(ctx) }); err != nil {
		return fmt.Errorf("schedule sync: %w", err)
	}
	s.cron.Start()
	s.logger.Info("scheduler started",
		zap.String("cron", s.cfg.CronExpr),
		zap.Bool("run_on_start", s.cfg.RunOnStart),
	)

	if s.cfg.RunOnStart {
		go s.tick(ctx)
	}
	return nil
}

// Stop halts ticking and blocks until an in-flight tick returns. Safe to
// call without a prior Start.
func (s *Scheduler) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	stats, err := s.runner.Run(ctx, false)
	switch {
	case errors.Is(err, syncer.ErrRunActive):
		s.logger.Info("tick skipped, a run is already active")
	case err != nil:
		s.logger.Error("scheduled run failed",
			zap.Error(err),
			zap.Duration("after", time.Since(start)),
		)
	default:
		s.logger.Info("scheduled run finished",
			zap.String("run_id", stats.ID),
			zap.Int("synced", stats.EpisodesSynced),
			zap.Int("failed", stats.EpisodesFailed),
			zap.Duration("took", time.Since(start)),
		)
	}
}

// cronLogger adapts zap to the cron logging interface.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}

// Package scheduler runs the periodic maker health check and wallet sync.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/harrylevesque/makerdash/internal/metrics"
)

const (
	JobHealth = "health"
	JobSync   = "sync"

	DefaultHealthSpec = "@every 30s"
	DefaultSyncSpec   = "@every 10m"
)

// Makers is the part of the maker manager the jobs drive.
type Makers interface {
	PingAll(ctx context.Context) map[string]error
	ListMakers() []string
	MakerCount() int
	SyncWallet(ctx context.Context, id string) error
}

// Config holds the cron specs. Empty specs fall back to the defaults.
type Config struct {
	Health string
	Sync   string
}

// HealthHook receives the per-maker ping results after each health run.
type HealthHook func(results map[string]error)

// Scheduler owns the cron runner.
type Scheduler struct {
	cron   *cron.Cron
	makers Makers
	logger *zap.Logger
	hook   HealthHook

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once

	jobTimeout time.Duration
}

type Option func(*Scheduler)

// WithHealthHook registers fn to run after every health check.
func WithHealthHook(fn HealthHook) Option {
	return func(s *Scheduler) { s.hook = fn }
}

// WithJobTimeout bounds a single job run. The default is 5 minutes.
func WithJobTimeout(d time.Duration) Option {
	return func(s *Scheduler) { s.jobTimeout = d }
}

// New registers the health and sync jobs. It fails on an invalid cron expression.
func New(makers Makers, cfg Config, logger *zap.Logger, opts ...Option) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Health == "" {
		cfg.Health = DefaultHealthSpec
	}
	if cfg.Sync == "" {
		cfg.Sync = DefaultSyncSpec
	}

	cl := cronLogger{logger.Named("cron")}
	s := &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.Recover(cl),
			cron.SkipIfStillRunning(cl),
		), cron.WithLogger(cl)),
		makers:     makers,
		logger:     logger,
		jobTimeout: 5 * time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	if _, err := s.cron.AddFunc(cfg.Health, s.job(JobHealth, s.RunHealth)); err != nil {
		return nil, fmt.Errorf("schedule.health %q: %w", cfg.Health, err)
	}
	if _, err := s.cron.AddFunc(cfg.Sync, s.job(JobSync, s.RunSync)); err != nil {
		return nil, fmt.Errorf("schedule.sync %q: %w", cfg.Sync, err)
	}
	return s, nil
}

func (s *Scheduler) job(name string, fn func(context.Context) error) func() {
	return func() {
		ctx, cancel := context.WithTimeout(s.ctx, s.jobTimeout)
		defer cancel()
		err := fn(ctx)
		metrics.RecordJobRun(name, err == nil)
		if err != nil {
			s.logger.Warn("scheduled job failed", zap.String("job", name), zap.Error(err))
		}
	}
}

// RunHealth pings every maker and updates the running gauge.
func (s *Scheduler) RunHealth(ctx context.Context) error {
	results := s.makers.PingAll(ctx)
	metrics.SetMakersRunning(s.makers.MakerCount())

	failed := 0
	for id, err := range results {
		if err != nil {
			failed++
			s.logger.Warn("maker health check failed", zap.String("maker_id", id), zap.Error(err))
		}
	}
	if s.hook != nil {
		s.hook(results)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d makers failed the health check", failed, len(results))
	}
	return nil
}

// RunSync syncs every running maker's wallet one after another.
func (s *Scheduler) RunSync(ctx context.Context) error {
	var failed int
	for _, id := range s.makers.ListMakers() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.makers.SyncWallet(ctx, id); err != nil {
			failed++
			s.logger.Warn("wallet sync failed", zap.String("maker_id", id), zap.Error(err))
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d wallet syncs failed", failed)
	}
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started", zap.Int("jobs", len(s.cron.Entries())))
}

// Stop cancels running jobs and waits for them until ctx ends.
func (s *Scheduler) Stop(ctx context.Context) error {
	var done context.Context
	s.once.Do(func() {
		s.cancel()
		done = s.cron.Stop()
	})
	if done == nil {
		return nil
	}
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	l *zap.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Sugar().Debugw(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Sugar().With(zap.Error(err)).Errorw(msg, keysAndValues...)
}

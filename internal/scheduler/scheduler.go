package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"DataHub/internal/model"
	"DataHub/internal/notifier"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// RangeGetter is the part of the hub the warm-up job needs.
type RangeGetter interface {
	GetRange(ctx context.Context, symbol string, start, end time.Time) (model.Series, error)
}

// Scheduler keeps the cache warm by requesting a trailing window for each
// configured symbol on a cron schedule.
type Scheduler struct {
	Cron     *cron.Cron
	Hub      RangeGetter
	Notifier notifier.Notifier
	Symbols  []string
	Lookback int
	Limit    int
	Ctx      context.Context

	now    func() time.Time
	logger *zap.Logger
	mu     sync.Mutex
	bg     sync.WaitGroup
}

// NewScheduler creates a new Scheduler.
func NewScheduler(ctx context.Context, hub RangeGetter, n notifier.Notifier, symbols []string, lookbackDays, limit int, logger *zap.Logger) *Scheduler {
	if n == nil {
		n = notifier.NoopNotifier{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if limit <= 0 {
		limit = 1
	}
	return &Scheduler{
		Cron:     cron.New(cron.WithSeconds()),
		Hub:      hub,
		Notifier: n,
		Symbols:  symbols,
		Lookback: lookbackDays,
		Limit:    limit,
		Ctx:      ctx,
		now:      time.Now,
		logger:   logger.Named("scheduler"),
	}
}

// RegisterAll registers the warm-up task.
func (s *Scheduler) RegisterAll(warmupCron string) error {
	if _, err := s.Cron.AddFunc(warmupCron, func() { s.RunNow() }); err != nil {
		return fmt.Errorf("register warmup task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	s.logger.Info("scheduler started", zap.Int("symbols", len(s.Symbols)))
}

// Stop stops the cron scheduler and waits for running and triggered jobs to finish.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	s.bg.Wait()
	s.logger.Info("scheduler stopped")
}

// Trigger starts a warm-up in the background. Stop waits for it.
func (s *Scheduler) Trigger() {
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		s.RunNow()
	}()
}

// RunNow warms every symbol once and sends a summary. Overlapping runs are
// serialized.
func (s *Scheduler) RunNow() []notifier.WarmupResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	started := s.now()
	end := model.Day(started)
	start := end.AddDate(0, 0, -s.Lookback)

	results := make([]notifier.WarmupResult, len(s.Symbols))
	g, ctx := errgroup.WithContext(s.Ctx)
	g.SetLimit(s.Limit)
	for i, sym := range s.Symbols {
		g.Go(func() error {
			bars, err := s.Hub.GetRange(ctx, sym, start, end)
			results[i] = notifier.WarmupResult{Symbol: sym, Rows: len(bars), Err: err}
			if err != nil {
				s.logger.Warn("warmup failed", zap.String("symbol", sym), zap.Error(err))
			}
			// One symbol failing must not cancel the others.
			return nil
		})
	}
	_ = g.Wait()

	elapsed := s.now().Sub(started)
	s.logger.Info("warmup finished", zap.Int("symbols", len(results)), zap.Duration("elapsed", elapsed))

	if err := s.Notifier.Notify(s.Ctx, notifier.FormatWarmupSummary(started, results, elapsed)); err != nil {
		s.logger.Warn("send warmup summary", zap.Error(err))
	}
	return results
}

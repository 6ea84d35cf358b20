package schedule

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mohamedkhairy/stock-screener/internal/export"
	"github.com/mohamedkhairy/stock-screener/internal/models"
	"github.com/mohamedkhairy/stock-screener/internal/rules"
	"github.com/mohamedkhairy/stock-screener/pkg/logger"
	"github.com/robfig/cron/v3"
)

// RuleRunner runs one saved rule
type RuleRunner interface {
	RunRule(ctx context.Context, rule *models.SavedRule) (models.RunResult, error)
}

// Config holds scheduler timing
type Config struct {
	ReloadInterval time.Duration
	RunTimeout     time.Duration
}

type entry struct {
	cronID    cron.EntryID
	spec      string
	updatedAt time.Time
}

// Scheduler runs enabled saved rules on their cron schedules and publishes
// the results to a sink
type Scheduler struct {
	cron   *cron.Cron
	store  rules.RuleStore
	runner RuleRunner
	sink   export.Sink
	config Config

	mu      sync.Mutex
	entries map[string]entry // rule_id -> cron entry

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewScheduler creates a scheduler. sink may be nil.
func NewScheduler(store rules.RuleStore, runner RuleRunner, sink export.Sink, config Config) *Scheduler {
	if sink == nil {
		sink = export.Multi()
	}
	if config.RunTimeout <= 0 {
		config.RunTimeout = 2 * time.Minute
	}
	return &Scheduler{
		cron: cron.New(
			cron.WithParser(rules.ScheduleParser),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		store:   store,
		runner:  runner,
		sink:    sink,
		config:  config,
		entries: make(map[string]entry),
		stop:    make(chan struct{}),
	}
}

// Start loads the scheduled rules and starts the cron loop. With a reload
// interval set, jobs are resynced with the store periodically.
func (s *Scheduler) Start(ctx context.Context) error {
	if err := s.Reload(ctx); err != nil {
		return fmt.Errorf("failed to load scheduled rules: %w", err)
	}
	s.cron.Start()

	if s.config.ReloadInterval > 0 {
		s.wg.Add(1)
		go s.reloadLoop()
	}

	logger.Info("Scheduler started",
		logger.Int("jobs", len(s.Jobs())),
		logger.Duration("reload_interval", s.config.ReloadInterval),
	)
	return nil
}

// Stop stops the cron loop and waits for running jobs. Later calls are
// no-ops.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
		s.wg.Wait()
		<-s.cron.Stop().Done()
		logger.Info("Scheduler stopped")
	})
}

func (s *Scheduler) reloadLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.config.ReloadInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if err := s.Reload(ctx); err != nil {
				logger.Error("Failed to reload scheduled rules", logger.ErrorField(err))
			}
			cancel()
		}
	}
}

// Reload resyncs cron jobs with the store. Rules that were removed, disabled
// or changed since the last reload are rescheduled.
func (s *Scheduler) Reload(ctx context.Context) error {
	scheduled, err := rules.ScheduledRules(ctx, s.store)
	if err != nil {
		return err
	}

	want := make(map[string]*models.SavedRule, len(scheduled))
	for _, r := range scheduled {
		want[r.ID] = r
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, e := range s.entries {
		r, ok := want[id]
		if ok && r.Schedule == e.spec && r.UpdatedAt.Equal(e.updatedAt) {
			continue
		}
		s.cron.Remove(e.cronID)
		delete(s.entries, id)
	}

	for id, r := range want {
		if _, ok := s.entries[id]; ok {
			continue
		}
		rule := r
		cronID, err := s.cron.AddFunc(rule.Schedule, func() {
			s.RunNow(context.Background(), rule)
		})
		if err != nil {
			// Stores validate schedules, so this only happens for rows
			// written around them
			logger.Warn("Skipping rule with invalid schedule",
				logger.String("rule_id", id),
				logger.String("schedule", rule.Schedule),
				logger.ErrorField(err),
			)
			continue
		}
		s.entries[id] = entry{cronID: cronID, spec: rule.Schedule, updatedAt: rule.UpdatedAt}
	}
	return nil
}

// Jobs returns the ids of the scheduled rules
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Next returns the next activation of a scheduled rule
func (s *Scheduler) Next(ruleID string) (time.Time, bool) {
	s.mu.Lock()
	e, ok := s.entries[ruleID]
	s.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	return s.cron.Entry(e.cronID).Next, true
}

// RunNow runs rule once and publishes its result
func (s *Scheduler) RunNow(ctx context.Context, rule *models.SavedRule) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.RunTimeout)
	defer cancel()
	ctx = logger.WithTraceID(ctx, logger.NewTraceID())
	log := logger.WithContext(logger.WithRuleID(ctx, rule.ID))

	start := time.Now()
	result, err := s.runner.RunRule(ctx, rule)
	if err != nil {
		logger.ScheduledRuns.WithLabelValues("failed").Inc()
		log.Error("Scheduled run failed", logger.ErrorField(err))
		return err
	}

	if err := s.sink.Publish(ctx, result); err != nil {
		logger.ScheduledRuns.WithLabelValues("export_failed").Inc()
		log.Error("Failed to export scheduled run", logger.ErrorField(err))
		return err
	}

	logger.ScheduledRuns.WithLabelValues("succeeded").Inc()
	log.Info("Scheduled run completed",
		logger.Int("rows", len(result.Rows)),
		logger.Duration("duration", time.Since(start)),
	)
	return nil
}

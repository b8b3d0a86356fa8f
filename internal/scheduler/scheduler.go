// Package scheduler arms the daily sync sweep and runs manual triggers in the background.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/vipul43/kiwis-sync-scheduler/internal/repository"
	"github.com/vipul43/kiwis-sync-scheduler/internal/service"
)

const (
	DefaultCronSpec = "0 6 * * *"
	DefaultTimezone = "UTC"
)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Dispatcher is the sweep side of service.Dispatcher
type Dispatcher interface {
	RunFullSweep(ctx context.Context) service.SweepResult
	SyncAccount(ctx context.Context, accountID string) (service.DispatchOutcome, error)
	IsRunning() bool
}

// Reporter supplies the status counts
type Reporter interface {
	Counts(ctx context.Context) service.StatusCounts
}

type Config struct {
	CronSpec string
	Timezone string
}

// Status is the read-only snapshot served by the control surface
type Status struct {
	Armed     bool       `json:"armed"`
	IsRunning bool       `json:"isRunning"`
	Schedule  string     `json:"schedule"`
	NextRunAt *time.Time `json:"nextRunAt,omitempty"`
	service.StatusCounts
}

type Scheduler struct {
	dispatcher  Dispatcher
	reporter    Reporter
	logger      *zap.SugaredLogger
	spec        string
	location    *time.Location
	description string

	// ctx is handed to sweeps and manual triggers; Shutdown cancels it,
	// which only ends the pause between batches
	ctx    context.Context
	cancel context.CancelFunc
	tasks  sync.WaitGroup

	mu     sync.Mutex
	cron   *cron.Cron
	entry  cron.EntryID
	closed bool
}

// New validates the schedule. The scheduler starts Stopped.
func New(dispatcher Dispatcher, reporter Reporter, cfg Config, logger *zap.SugaredLogger) (*Scheduler, error) {
	spec := strings.TrimSpace(cfg.CronSpec)
	if spec == "" {
		spec = DefaultCronSpec
	}
	if _, err := cronParser.Parse(spec); err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", spec, err)
	}

	tz := cfg.Timezone
	if tz == "" {
		tz = DefaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", tz, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		dispatcher:  dispatcher,
		reporter:    reporter,
		logger:      logger,
		spec:        spec,
		location:    loc,
		description: describe(spec, loc),
		ctx:         ctx,
		cancel:      cancel,
	}, nil
}

// Start arms the recurring sweep. Calling it while armed is a no-op.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.New("scheduler is shut down")
	}
	if s.cron != nil {
		s.logger.Infow("Scheduler already started", "schedule", s.description)
		return nil
	}

	c := cron.New(
		cron.WithParser(cronParser),
		cron.WithLocation(s.location),
		cron.WithLogger(cronLogger{s.logger}),
	)
	entry, err := c.AddFunc(s.spec, s.runScheduledSweep)
	if err != nil {
		return fmt.Errorf("failed to register sweep: %w", err)
	}
	c.Start()

	s.cron = c
	s.entry = entry
	s.logger.Infow("Scheduler started",
		"schedule", s.description,
		"next_run_at", c.Entry(entry).Next,
	)
	return nil
}

// Stop disarms the recurring sweep. A sweep already in progress keeps running.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron == nil {
		return
	}
	s.cron.Stop()
	s.cron = nil
	s.entry = 0
	s.logger.Infow("Scheduler stopped")
}

func (s *Scheduler) Armed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cron != nil
}

// entries returns the number of registered recurring triggers
func (s *Scheduler) entries() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron == nil {
		return 0
	}
	return len(s.cron.Entries())
}

// TriggerManualSync starts a sync in the background and returns at once.
// An empty accountID runs a full sweep.
func (s *Scheduler) TriggerManualSync(accountID string) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		s.RunFullSweep()
		return
	}

	s.goTask(func(ctx context.Context) {
		log := s.logger.With("account_id", accountID)
		outcome, err := s.dispatcher.SyncAccount(ctx, accountID)
		switch {
		case errors.Is(err, service.ErrAccountNotEligible), errors.Is(err, repository.ErrAccountNotFound):
			log.Warnw("Manual sync rejected", "error", err)
		case err != nil:
			log.Errorw("Manual sync failed", "error", err)
		default:
			log.Infow("Manual sync finished", "outcome", outcome)
		}
	})
}

// RunFullSweep starts a sweep in the background, outside the schedule
func (s *Scheduler) RunFullSweep() {
	s.goTask(func(ctx context.Context) {
		s.dispatcher.RunFullSweep(ctx)
	})
}

func (s *Scheduler) Status(ctx context.Context) Status {
	st := Status{
		IsRunning:    s.dispatcher.IsRunning(),
		Schedule:     s.description,
		StatusCounts: s.reporter.Counts(ctx),
	}

	s.mu.Lock()
	if s.cron != nil {
		st.Armed = true
		if next := s.cron.Entry(s.entry).Next; !next.IsZero() {
			st.NextRunAt = &next
		}
	}
	s.mu.Unlock()

	return st
}

// wait blocks until every background task has returned
func (s *Scheduler) wait() {
	s.tasks.Wait()
}

// Shutdown disarms the schedule and waits for background tasks until ctx expires.
// A sweep in progress stops at its next batch boundary; accounts already being
// dispatched finish.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.Stop()

	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.tasks.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("background sync tasks did not finish: %w", ctx.Err())
	}
}

func (s *Scheduler) runScheduledSweep() {
	if !s.track() {
		return
	}
	defer s.tasks.Done()

	s.logger.Infow("Scheduled sweep triggered")
	s.dispatcher.RunFullSweep(s.ctx)
}

func (s *Scheduler) goTask(fn func(ctx context.Context)) {
	if !s.track() {
		s.logger.Warnw("Scheduler is shut down, dropping manual trigger")
		return
	}
	go func() {
		defer s.tasks.Done()
		fn(s.ctx)
	}()
}

// track registers a background task unless the scheduler is shut down
func (s *Scheduler) track() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.tasks.Add(1)
	return true
}

// describe renders daily specs as "Daily at 06:00 UTC" and anything else verbatim
func describe(spec string, loc *time.Location) string {
	fields := strings.Fields(spec)
	if len(fields) == 5 && fields[2] == "*" && fields[3] == "*" && fields[4] == "*" {
		minute, errM := strconv.Atoi(fields[0])
		hour, errH := strconv.Atoi(fields[1])
		if errM == nil && errH == nil {
			return fmt.Sprintf("Daily at %02d:%02d %s", hour, minute, loc)
		}
	}
	return fmt.Sprintf("%s (%s)", spec, loc)
}

// cronLogger routes robfig/cron's logging into zap
type cronLogger struct {
	logger *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debugw("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Errorw("cron: "+msg, append(keysAndValues, "error", err)...)
}

package service

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vipul43/kiwis-sync-scheduler/internal/models"
)

// AccountCounter counts sweep-eligible accounts
type AccountCounter interface {
	CountEligible(ctx context.Context) (int64, error)
}

// JobCounter counts sync jobs by state
type JobCounter interface {
	CountActive(ctx context.Context) (int64, error)
	CountFinishedSince(ctx context.Context, status models.SyncJobStatus, since time.Time) (int64, error)
}

type StatusCounts struct {
	TotalAccounts  int64 `json:"totalAccounts"`
	ActiveJobs     int64 `json:"activeJobs"`
	CompletedToday int64 `json:"completedToday"`
	FailedToday    int64 `json:"failedToday"`
}

type StatusReporter struct {
	accounts AccountCounter
	jobs     JobCounter
	logger   *zap.SugaredLogger
	now      func() time.Time
}

func NewStatusReporter(accounts AccountCounter, jobs JobCounter, logger *zap.SugaredLogger) *StatusReporter {
	return &StatusReporter{
		accounts: accounts,
		jobs:     jobs,
		logger:   logger,
		now:      time.Now,
	}
}

// Counts runs the four status queries concurrently.
// A failed query reports zero for its field instead of failing the whole report.
func (r *StatusReporter) Counts(ctx context.Context) StatusCounts {
	now := r.now().UTC()
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	var counts StatusCounts
	var g errgroup.Group

	g.Go(func() error {
		counts.TotalAccounts = r.count("total_accounts", func() (int64, error) {
			return r.accounts.CountEligible(ctx)
		})
		return nil
	})
	g.Go(func() error {
		counts.ActiveJobs = r.count("active_jobs", func() (int64, error) {
			return r.jobs.CountActive(ctx)
		})
		return nil
	})
	g.Go(func() error {
		counts.CompletedToday = r.count("completed_today", func() (int64, error) {
			return r.jobs.CountFinishedSince(ctx, models.SyncStatusCompleted, startOfDay)
		})
		return nil
	})
	g.Go(func() error {
		counts.FailedToday = r.count("failed_today", func() (int64, error) {
			return r.jobs.CountFinishedSince(ctx, models.SyncStatusFailed, startOfDay)
		})
		return nil
	})
	_ = g.Wait()

	return counts
}

func (r *StatusReporter) count(field string, query func() (int64, error)) int64 {
	n, err := query()
	if err != nil {
		r.logger.Warnw("Status query failed, reporting zero", "field", field, "error", err)
		return 0
	}
	return n
}

package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/vipul43/kiwis-sync-scheduler/internal/models"
)

type mockAccountCounter struct {
	countEligibleFunc func(ctx context.Context) (int64, error)
}

func (m *mockAccountCounter) CountEligible(ctx context.Context) (int64, error) {
	return m.countEligibleFunc(ctx)
}

type mockJobCounter struct {
	countActiveFunc        func(ctx context.Context) (int64, error)
	countFinishedSinceFunc func(ctx context.Context, status models.SyncJobStatus, since time.Time) (int64, error)
}

func (m *mockJobCounter) CountActive(ctx context.Context) (int64, error) {
	return m.countActiveFunc(ctx)
}

func (m *mockJobCounter) CountFinishedSince(ctx context.Context, status models.SyncJobStatus, since time.Time) (int64, error) {
	return m.countFinishedSinceFunc(ctx, status, since)
}

func TestStatusReporter_Counts(t *testing.T) {
	now := time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)
	wantSince := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)

	accounts := &mockAccountCounter{
		countEligibleFunc: func(ctx context.Context) (int64, error) { return 3, nil },
	}
	jobs := &mockJobCounter{
		countActiveFunc: func(ctx context.Context) (int64, error) { return 1, nil },
		countFinishedSinceFunc: func(ctx context.Context, status models.SyncJobStatus, since time.Time) (int64, error) {
			if !since.Equal(wantSince) {
				t.Errorf("expected since %v, got %v", wantSince, since)
			}
			switch status {
			case models.SyncStatusCompleted:
				return 2, nil
			case models.SyncStatusFailed:
				return 0, nil
			}
			t.Errorf("unexpected status %s", status)
			return 0, nil
		},
	}

	r := NewStatusReporter(accounts, jobs, zap.NewNop().Sugar())
	r.now = func() time.Time { return now }

	got := r.Counts(context.Background())
	want := StatusCounts{TotalAccounts: 3, ActiveJobs: 1, CompletedToday: 2, FailedToday: 0}
	if got != want {
		t.Errorf("expected %+v, got %+v", want, got)
	}
}

func TestStatusReporter_Counts_DegradesToZero(t *testing.T) {
	accounts := &mockAccountCounter{
		countEligibleFunc: func(ctx context.Context) (int64, error) { return 0, errors.New("timeout") },
	}
	jobs := &mockJobCounter{
		countActiveFunc: func(ctx context.Context) (int64, error) { return 4, nil },
		countFinishedSinceFunc: func(ctx context.Context, status models.SyncJobStatus, since time.Time) (int64, error) {
			if status == models.SyncStatusFailed {
				return 0, errors.New("timeout")
			}
			return 7, nil
		},
	}

	got := NewStatusReporter(accounts, jobs, zap.NewNop().Sugar()).Counts(context.Background())
	want := StatusCounts{TotalAccounts: 0, ActiveJobs: 4, CompletedToday: 7, FailedToday: 0}
	if got != want {
		t.Errorf("expected %+v, got %+v", want, got)
	}
}

func TestStatusReporter_Counts_StartOfDayInUTC(t *testing.T) {
	// 01:30 in UTC+5 is still the previous day in UTC
	loc := time.FixedZone("UTC+5", 5*60*60)
	now := time.Date(2026, 3, 14, 1, 30, 0, 0, loc)
	wantSince := time.Date(2026, 3, 13, 0, 0, 0, 0, time.UTC)

	var gotSince time.Time
	jobs := &mockJobCounter{
		countActiveFunc: func(ctx context.Context) (int64, error) { return 0, nil },
		countFinishedSinceFunc: func(ctx context.Context, status models.SyncJobStatus, since time.Time) (int64, error) {
			if status == models.SyncStatusCompleted {
				gotSince = since
			}
			return 0, nil
		},
	}
	accounts := &mockAccountCounter{
		countEligibleFunc: func(ctx context.Context) (int64, error) { return 0, nil },
	}

	r := NewStatusReporter(accounts, jobs, zap.NewNop().Sugar())
	r.now = func() time.Time { return now }
	r.Counts(context.Background())

	if !gotSince.Equal(wantSince) {
		t.Errorf("expected since %v, got %v", wantSince, gotSince)
	}
}

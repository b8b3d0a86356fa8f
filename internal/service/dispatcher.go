package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vipul43/kiwis-sync-scheduler/internal/metrics"
	"github.com/vipul43/kiwis-sync-scheduler/internal/models"
	"github.com/vipul43/kiwis-sync-scheduler/internal/repository"
	"github.com/vipul43/kiwis-sync-scheduler/internal/worker"
)

const (
	DefaultBatchSize  = 5
	DefaultBatchDelay = 30 * time.Second

	// markFailedTimeout bounds the compensating write after a failed dispatch
	markFailedTimeout = 10 * time.Second
)

var ErrAccountNotEligible = errors.New("account has no confirmed integration")

// AccountRepository interface for dependency injection
type AccountRepository interface {
	GetByID(ctx context.Context, accountID string) (*models.Account, error)
	ListEligible(ctx context.Context) ([]models.Account, error)
}

// JobLedger is the part of the sync job store the dispatcher writes to
type JobLedger interface {
	FindActive(ctx context.Context, accountID string) (*models.SyncJob, error)
	Create(ctx context.Context, job *models.SyncJob) error
	MarkFailed(ctx context.Context, jobID string, reason string) error
}

// WorkerClient submits sync jobs to the remote worker
type WorkerClient interface {
	StartSync(ctx context.Context, req worker.SyncRequest) error
}

// DispatchOutcome is the result of one account's dispatch attempt
type DispatchOutcome string

const (
	OutcomeDispatched     DispatchOutcome = "dispatched"
	OutcomeSkippedActive  DispatchOutcome = "skipped_active"
	OutcomeCreateFailed   DispatchOutcome = "create_failed"
	OutcomeDispatchFailed DispatchOutcome = "dispatch_failed"
	OutcomePanicked       DispatchOutcome = "panicked"
)

// SweepResult summarizes a sweep for logs and tests. Sweeps never report errors to callers.
type SweepResult struct {
	AlreadyRunning bool
	Interrupted    bool
	Accounts       int
	Batches        int
	Dispatched     int
	Skipped        int
	Failed         int
}

type DispatcherConfig struct {
	Platform   string
	BatchSize  int
	BatchDelay time.Duration
}

type Dispatcher struct {
	accounts   AccountRepository
	jobs       JobLedger
	worker     WorkerClient
	logger     *zap.SugaredLogger
	metrics    *metrics.Metrics
	platform   string
	batchSize  int
	batchDelay time.Duration

	// pause waits between batches; replaced in tests
	pause func(ctx context.Context, d time.Duration) error

	mu      sync.Mutex
	running bool
}

func NewDispatcher(
	accounts AccountRepository,
	jobs JobLedger,
	workerClient WorkerClient,
	logger *zap.SugaredLogger,
	m *metrics.Metrics,
	cfg DispatcherConfig,
) *Dispatcher {
	platform := cfg.Platform
	if platform == "" {
		platform = models.DefaultPlatform
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	batchDelay := cfg.BatchDelay
	if batchDelay < 0 {
		batchDelay = DefaultBatchDelay
	}

	return &Dispatcher{
		accounts:   accounts,
		jobs:       jobs,
		worker:     workerClient,
		logger:     logger,
		metrics:    m,
		platform:   platform,
		batchSize:  batchSize,
		batchDelay: batchDelay,
		pause:      sleepContext,
	}
}

// IsRunning reports whether a sweep is in progress
func (d *Dispatcher) IsRunning() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

func (d *Dispatcher) tryAcquire() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return false
	}
	d.running = true
	return true
}

func (d *Dispatcher) release() {
	d.mu.Lock()
	d.running = false
	d.mu.Unlock()
}

// RunFullSweep dispatches every eligible account, batch by batch.
// Only one sweep runs at a time; a call made while one is in progress returns at once.
// Cancelling ctx stops the sweep at the next batch boundary; the batch in flight finishes.
// Failures are logged and never returned.
func (d *Dispatcher) RunFullSweep(ctx context.Context) (result SweepResult) {
	if !d.tryAcquire() {
		d.logger.Infow("Sweep already in progress, skipping")
		d.metrics.SweepRejected()
		result.AlreadyRunning = true
		return result
	}
	defer d.release()

	started := time.Now()
	outcome := metrics.SweepCompleted
	d.metrics.SweepStarted()
	defer func() {
		if r := recover(); r != nil {
			d.logger.Errorw("Sweep aborted by panic", "panic", fmt.Sprint(r))
			outcome = metrics.SweepPanicked
		}
		d.metrics.SweepFinished(outcome, time.Since(started))
	}()

	accounts, err := d.accounts.ListEligible(ctx)
	if err != nil {
		d.logger.Errorw("Failed to fetch eligible accounts", "error", err)
		accounts = nil
	}

	result.Accounts = len(accounts)
	if len(accounts) == 0 {
		d.logger.Infow("No eligible accounts to sync")
		outcome = metrics.SweepNoAccounts
		return result
	}

	batches := partition(accounts, d.batchSize)
	result.Batches = len(batches)

	d.logger.Infow("Starting sync sweep",
		"accounts", len(accounts),
		"batches", len(batches),
		"batch_size", d.batchSize,
	)

	for i, batch := range batches {
		for _, o := range d.dispatchBatch(ctx, batch) {
			switch o {
			case OutcomeDispatched:
				result.Dispatched++
			case OutcomeSkippedActive:
				result.Skipped++
			default:
				result.Failed++
			}
		}

		d.logger.Debugw("Batch dispatched", "batch", i+1, "batches", len(batches), "size", len(batch))

		if i == len(batches)-1 {
			break
		}
		if err := d.pause(ctx, d.batchDelay); err != nil {
			d.logger.Warnw("Sweep interrupted between batches",
				"completed_batches", i+1,
				"error", err,
			)
			result.Interrupted = true
			outcome = metrics.SweepInterrupted
			break
		}
	}

	d.logger.Infow("Sync sweep finished",
		"accounts", result.Accounts,
		"dispatched", result.Dispatched,
		"skipped", result.Skipped,
		"failed", result.Failed,
		"duration", time.Since(started).String(),
	)
	return result
}

// dispatchBatch dispatches every account in the batch concurrently and waits for all of them
func (d *Dispatcher) dispatchBatch(ctx context.Context, batch []models.Account) []DispatchOutcome {
	outcomes := make([]DispatchOutcome, len(batch))

	var g errgroup.Group
	for i := range batch {
		g.Go(func() error {
			outcomes[i] = d.DispatchAccount(ctx, batch[i], worker.PriorityNormal)
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

// DispatchAccount creates a pending job for the account and hands it to the worker.
// It never returns an error: every failure is logged and reflected in the outcome.
// Cancellation of ctx is ignored so a created job always reaches the worker or is marked failed.
func (d *Dispatcher) DispatchAccount(ctx context.Context, account models.Account, priority string) (outcome DispatchOutcome) {
	ctx = context.WithoutCancel(ctx)
	log := d.logger.With("account_id", account.ID)

	defer func() {
		if r := recover(); r != nil {
			log.Errorw("Account dispatch panicked", "panic", fmt.Sprint(r))
			outcome = OutcomePanicked
		}
		d.metrics.Dispatch(string(outcome))
	}()

	existing, err := d.jobs.FindActive(ctx, account.ID)
	if err != nil {
		// Fail open: the unique index on active jobs still rejects a duplicate insert
		log.Warnw("Active job lookup failed, continuing", "error", err)
	} else if existing != nil {
		log.Infow("Account already has an active sync job, skipping",
			"job_id", existing.ID,
			"status", existing.Status,
		)
		return OutcomeSkippedActive
	}

	job := &models.SyncJob{
		ID:          uuid.New().String(),
		AccountID:   account.ID,
		Platform:    d.platform,
		Status:      models.SyncStatusPending,
		FullHistory: false,
		CreatedAt:   time.Now().UTC(),
	}
	if err := d.jobs.Create(ctx, job); err != nil {
		if errors.Is(err, repository.ErrActiveJobExists) {
			log.Infow("Active sync job created concurrently, skipping")
			return OutcomeSkippedActive
		}
		log.Errorw("Failed to create sync job", "error", err)
		return OutcomeCreateFailed
	}

	log = log.With("job_id", job.ID)

	err = d.worker.StartSync(ctx, worker.SyncRequest{
		JobID:       job.ID,
		AccountID:   account.ID,
		LocationID:  account.Location(),
		FullHistory: job.FullHistory,
		Priority:    priority,
	})
	if err != nil {
		log.Errorw("Worker dispatch failed", "error", err)
		d.markFailed(ctx, log, job.ID, err.Error())
		return OutcomeDispatchFailed
	}

	log.Infow("Sync job dispatched", "account_name", account.Name, "priority", priority)
	return OutcomeDispatched
}

// markFailed runs on its own deadline, detached from the caller's cancellation,
// so a dispatch failure never leaves a pending row behind
func (d *Dispatcher) markFailed(ctx context.Context, log *zap.SugaredLogger, jobID, reason string) {
	markCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), markFailedTimeout)
	defer cancel()

	if err := d.jobs.MarkFailed(markCtx, jobID, reason); err != nil {
		log.Errorw("Failed to mark sync job failed", "error", err)
	}
}

// SyncAccount dispatches a single account outside of a sweep
func (d *Dispatcher) SyncAccount(ctx context.Context, accountID string) (DispatchOutcome, error) {
	account, err := d.accounts.GetByID(ctx, accountID)
	if err != nil {
		return "", fmt.Errorf("failed to get account: %w", err)
	}
	if !account.Eligible() {
		return "", fmt.Errorf("account %s: %w", accountID, ErrAccountNotEligible)
	}

	return d.DispatchAccount(ctx, *account, worker.PriorityHigh), nil
}

// partition splits accounts into consecutive batches of at most size accounts
func partition(accounts []models.Account, size int) [][]models.Account {
	batches := make([][]models.Account, 0, (len(accounts)+size-1)/size)
	for start := 0; start < len(accounts); start += size {
		end := min(start+size, len(accounts))
		batches = append(batches, accounts[start:end])
	}
	return batches
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

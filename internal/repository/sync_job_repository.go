package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vipul43/kiwis-sync-scheduler/internal/models"
	"gorm.io/gorm"
)

// ErrActiveJobExists is returned by Create when the account already has a
// pending or running job for the platform.
var ErrActiveJobExists = errors.New("account already has an active sync job")

type SyncJobRepository struct {
	db       *gorm.DB
	platform string
}

// NewSyncJobRepository scopes every query to platform; empty means models.DefaultPlatform
func NewSyncJobRepository(db *gorm.DB, platform string) *SyncJobRepository {
	if platform == "" {
		platform = models.DefaultPlatform
	}
	return &SyncJobRepository{db: db, platform: platform}
}

// FindActive returns the account's pending or running job, or nil when there is none
func (r *SyncJobRepository) FindActive(ctx context.Context, accountID string) (*models.SyncJob, error) {
	var jobs []models.SyncJob
	result := r.db.WithContext(ctx).
		Where("account_id = ? AND platform = ? AND status IN ?", accountID, r.platform, models.ActiveSyncStatuses).
		Order("created_at DESC").
		Limit(1).
		Find(&jobs)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to query active jobs: %w", result.Error)
	}
	if len(jobs) == 0 {
		return nil, nil
	}
	return &jobs[0], nil
}

// Create inserts a new sync job
func (r *SyncJobRepository) Create(ctx context.Context, job *models.SyncJob) error {
	if job.Platform == "" {
		job.Platform = r.platform
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}

	result := r.db.WithContext(ctx).Create(job)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return ErrActiveJobExists
		}
		return fmt.Errorf("failed to create sync job: %w", result.Error)
	}
	return nil
}

// UpdateStatus updates the job status.
// Running sets started_at; completed and failed set completed_at.
func (r *SyncJobRepository) UpdateStatus(ctx context.Context, jobID string, status models.SyncJobStatus, errorMessage *string) error {
	updates := map[string]interface{}{
		"status":        status,
		"error_message": errorMessage,
	}

	now := time.Now().UTC()
	switch {
	case status == models.SyncStatusRunning:
		updates["started_at"] = &now
	case status.IsTerminal():
		updates["completed_at"] = &now
	}

	result := r.db.WithContext(ctx).Model(&models.SyncJob{}).
		Where("id = ?", jobID).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update job status: %w", result.Error)
	}
	return nil
}

// MarkFailed records a dispatch failure on the job
func (r *SyncJobRepository) MarkFailed(ctx context.Context, jobID string, reason string) error {
	return r.UpdateStatus(ctx, jobID, models.SyncStatusFailed, &reason)
}

// CountActive counts pending and running jobs
func (r *SyncJobRepository) CountActive(ctx context.Context) (int64, error) {
	var count int64
	result := r.db.WithContext(ctx).Model(&models.SyncJob{}).
		Where("platform = ? AND status IN ?", r.platform, models.ActiveSyncStatuses).
		Count(&count)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to count active jobs: %w", result.Error)
	}
	return count, nil
}

// CountFinishedSince counts jobs that reached the given terminal status at or after since
func (r *SyncJobRepository) CountFinishedSince(ctx context.Context, status models.SyncJobStatus, since time.Time) (int64, error) {
	var count int64
	result := r.db.WithContext(ctx).Model(&models.SyncJob{}).
		Where("platform = ? AND status = ? AND completed_at >= ?", r.platform, status, since).
		Count(&count)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to count %s jobs: %w", status, result.Error)
	}
	return count, nil
}

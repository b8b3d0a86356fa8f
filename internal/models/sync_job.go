package models

import "time"

const (
	PlatformTripAdvisor = "tripadvisor"

	// DefaultPlatform is the tag written to jobs unless SYNC_PLATFORM overrides it
	DefaultPlatform = PlatformTripAdvisor
)

type SyncJobStatus string

const (
	SyncStatusPending   SyncJobStatus = "pending"
	SyncStatusRunning   SyncJobStatus = "running"
	SyncStatusCompleted SyncJobStatus = "completed"
	SyncStatusFailed    SyncJobStatus = "failed"
)

// ActiveSyncStatuses are the statuses that count toward the one-active-job-per-account limit
var ActiveSyncStatuses = []SyncJobStatus{SyncStatusPending, SyncStatusRunning}

// IsActive reports whether a job in this status is still in flight
func (s SyncJobStatus) IsActive() bool {
	return s == SyncStatusPending || s == SyncStatusRunning
}

// IsTerminal reports whether no further transitions are expected
func (s SyncJobStatus) IsTerminal() bool {
	return s == SyncStatusCompleted || s == SyncStatusFailed
}

type SyncJob struct {
	ID             string        `gorm:"column:id;primaryKey"`
	AccountID      string        `gorm:"column:account_id;index"`
	Platform       string        `gorm:"column:platform"`
	Status         SyncJobStatus `gorm:"column:status;index"`
	FullHistory    bool          `gorm:"column:full_history"`
	TotalAvailable int           `gorm:"column:total_available"`
	ImportedCount  int           `gorm:"column:imported_count"`
	ErrorMessage   *string       `gorm:"column:error_message"`
	CreatedAt      time.Time     `gorm:"column:created_at"`
	StartedAt      *time.Time    `gorm:"column:started_at"`
	CompletedAt    *time.Time    `gorm:"column:completed_at"`
}

// TableName specifies the table name for GORM
func (SyncJob) TableName() string {
	return "sync_jobs"
}

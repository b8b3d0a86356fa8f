package models

import (
	"strings"
	"time"
)

// Account is a profile with a (possibly) confirmed review-platform integration.
// Rows are owned by the profile service; the scheduler only reads them.
type Account struct {
	ID                  string     `gorm:"column:id;primaryKey"`
	Name                string     `gorm:"column:name"`
	LocationID          *string    `gorm:"column:location_id"`
	IntegrationLockedAt *time.Time `gorm:"column:integration_locked_at"`
	LastSyncAt          *time.Time `gorm:"column:last_sync_at"`
	Timezone            *string    `gorm:"column:timezone"`
}

// TableName specifies the table name for GORM
func (Account) TableName() string {
	return "accounts"
}

// Eligible reports whether the account has a confirmed integration:
// a location to sync and a lock timestamp.
func (a Account) Eligible() bool {
	return a.LocationID != nil && strings.TrimSpace(*a.LocationID) != "" && a.IntegrationLockedAt != nil
}

// Location returns the external location id, or "" when none is set
func (a Account) Location() string {
	if a.LocationID == nil {
		return ""
	}
	return *a.LocationID
}

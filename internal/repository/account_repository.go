package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/vipul43/kiwis-sync-scheduler/internal/models"
	"gorm.io/gorm"
)

var ErrAccountNotFound = errors.New("account not found")

type AccountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// eligibleAccounts limits a query to accounts with a confirmed integration
func eligibleAccounts(db *gorm.DB) *gorm.DB {
	return db.Where("location_id IS NOT NULL AND location_id <> '' AND integration_locked_at IS NOT NULL")
}

// GetByID retrieves account by ID
func (r *AccountRepository) GetByID(ctx context.Context, accountID string) (*models.Account, error) {
	var accounts []models.Account
	result := r.db.WithContext(ctx).
		Where("id = ?", accountID).
		Limit(1).
		Find(&accounts)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to get account: %w", result.Error)
	}
	if len(accounts) == 0 {
		return nil, ErrAccountNotFound
	}
	return &accounts[0], nil
}

// ListEligible retrieves every account that should take part in a sweep
func (r *AccountRepository) ListEligible(ctx context.Context) ([]models.Account, error) {
	var accounts []models.Account
	result := r.db.WithContext(ctx).
		Scopes(eligibleAccounts).
		Order("id ASC").
		Find(&accounts)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to query eligible accounts: %w", result.Error)
	}
	return accounts, nil
}

// CountEligible counts accounts with a confirmed integration
func (r *AccountRepository) CountEligible(ctx context.Context) (int64, error) {
	var count int64
	result := r.db.WithContext(ctx).
		Model(&models.Account{}).
		Scopes(eligibleAccounts).
		Count(&count)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to count eligible accounts: %w", result.Error)
	}
	return count, nil
}

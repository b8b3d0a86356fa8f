package models

import (
	"testing"
	"time"
)

func TestSyncJobStatus_Constants(t *testing.T) {
	tests := []struct {
		name     string
		status   SyncJobStatus
		expected string
	}{
		{"pending", SyncStatusPending, "pending"},
		{"running", SyncStatusRunning, "running"},
		{"completed", SyncStatusCompleted, "completed"},
		{"failed", SyncStatusFailed, "failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if string(tt.status) != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, tt.status)
			}
		})
	}
}

func TestSyncJobStatus_IsActive(t *testing.T) {
	tests := []struct {
		status   SyncJobStatus
		active   bool
		terminal bool
	}{
		{SyncStatusPending, true, false},
		{SyncStatusRunning, true, false},
		{SyncStatusCompleted, false, true},
		{SyncStatusFailed, false, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := tt.status.IsActive(); got != tt.active {
				t.Errorf("IsActive() = %v, want %v", got, tt.active)
			}
			if got := tt.status.IsTerminal(); got != tt.terminal {
				t.Errorf("IsTerminal() = %v, want %v", got, tt.terminal)
			}
		})
	}
}

func TestAccount_Eligible(t *testing.T) {
	now := time.Now()
	location := "locations/123"
	blank := "  "

	tests := []struct {
		name     string
		account  Account
		expected bool
	}{
		{"location and lock", Account{ID: "a", LocationID: &location, IntegrationLockedAt: &now}, true},
		{"missing location", Account{ID: "a", IntegrationLockedAt: &now}, false},
		{"blank location", Account{ID: "a", LocationID: &blank, IntegrationLockedAt: &now}, false},
		{"missing lock", Account{ID: "a", LocationID: &location}, false},
		{"nothing", Account{ID: "a"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.account.Eligible(); got != tt.expected {
				t.Errorf("Eligible() = %v, want %v", got, tt.expected)
			}
		})
	}
}

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SettlementStatus represents the lifecycle state of a settlement record.
type SettlementStatus string

const (
	SettlementStatusReceived   SettlementStatus = "RECEIVED"
	SettlementStatusProcessing SettlementStatus = "PROCESSING"
	SettlementStatusSuccess    SettlementStatus = "SUCCESS"
	SettlementStatusFailed     SettlementStatus = "FAILED"
)

// SettlementRecord ties a schedule item to its ledger effects. The
// idempotency key is derived deterministically from the schedule item, and
// its uniqueness is what makes replayed executions resolve to the same
// record instead of moving money twice.
type SettlementRecord struct {
	Base
	PlanID         string           `gorm:"not null;index" json:"plan_id"`
	ScheduleItemID string           `gorm:"not null;index" json:"schedule_item_id"`
	IdempotencyKey string           `gorm:"size:100;not null;uniqueIndex" json:"idempotency_key"`
	Status         SettlementStatus `gorm:"not null;default:'RECEIVED'" json:"status"`
	Amount         decimal.Decimal  `gorm:"type:numeric(18,2);not null" json:"amount"`

	RequestedAt time.Time  `gorm:"not null" json:"requested_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`

	// ExternalID is the gateway's transaction id; kept even on failed
	// records for reconciliation against the gateway.
	ExternalID string `json:"external_id,omitempty"`
	FailReason string `gorm:"size:255" json:"fail_reason,omitempty"`

	// CreditEntryID references the credit posted to the savings account.
	CreditEntryID *string `json:"credit_entry_id,omitempty"`
}

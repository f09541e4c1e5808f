package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ScheduleStatus represents the lifecycle state of a schedule item.
// PENDING is the only non-terminal state: once an item reaches SUCCESS,
// FAILED, or SKIPPED no further transition happens (an operator retry is the
// single deliberate exception, resetting FAILED back to PENDING).
type ScheduleStatus string

const (
	ScheduleStatusPending ScheduleStatus = "PENDING"
	ScheduleStatusSuccess ScheduleStatus = "SUCCESS"
	ScheduleStatusFailed  ScheduleStatus = "FAILED"
	ScheduleStatusSkipped ScheduleStatus = "SKIPPED"
)

// Terminal reports whether the status permits no further transitions.
func (s ScheduleStatus) Terminal() bool {
	return s == ScheduleStatusSuccess || s == ScheduleStatusFailed || s == ScheduleStatusSkipped
}

// ScheduleItem is one due occurrence of a savings plan.
type ScheduleItem struct {
	Base
	PlanID  string          `gorm:"not null;index" json:"plan_id"`
	DueDate time.Time       `gorm:"not null;index:idx_schedule_due" json:"due_date"`
	Amount  decimal.Decimal `gorm:"type:numeric(18,2);not null" json:"amount"`
	Status  ScheduleStatus  `gorm:"not null;default:'PENDING';index:idx_schedule_due" json:"status"`

	// ClaimedAt is stamped by the batch claimer; a pending item with a fresh
	// claim stamp is invisible to other claimers.
	ClaimedAt  *time.Time `json:"claimed_at,omitempty"`
	ExecutedAt *time.Time `json:"executed_at,omitempty"`

	ExternalID string `json:"external_id,omitempty"`
	FailReason string `gorm:"size:255" json:"fail_reason,omitempty"`

	Plan *SavingsPlan `gorm:"foreignKey:PlanID" json:"-"`
}

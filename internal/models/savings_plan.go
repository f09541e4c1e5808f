package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Cadence represents how often a savings plan falls due.
type Cadence string

const (
	CadenceMonthly Cadence = "monthly"
	CadenceWeekly  Cadence = "weekly"
)

// SavingsPlan is a recurring savings obligation: on every due date within
// [StartDate, EndDate] the per-period amount moves from the source account to
// the savings account. Plans are deactivated, never hard-deleted, while
// historical schedule items reference them.
type SavingsPlan struct {
	Base
	UserID           string          `gorm:"not null;index" json:"user_id"`
	Name             string          `gorm:"not null" json:"name"`
	SourceAccountID  string          `gorm:"not null" json:"source_account_id"`
	SavingsAccountID string          `gorm:"not null" json:"savings_account_id"`
	GoalAmount       decimal.Decimal `gorm:"type:numeric(18,2);not null" json:"goal_amount"`
	AmountPerPeriod  decimal.Decimal `gorm:"type:numeric(18,2);not null" json:"amount_per_period"`

	Cadence Cadence `gorm:"not null" json:"cadence"`
	// DayOfMonth (1-31, clamped to shorter months) is required for monthly
	// cadence, Weekday (0=Sunday) for weekly cadence.
	DayOfMonth *int `json:"day_of_month,omitempty"`
	Weekday    *int `json:"weekday,omitempty"`

	StartDate time.Time `gorm:"not null" json:"start_date"`
	EndDate   time.Time `gorm:"not null" json:"end_date"`
	IsActive  bool      `gorm:"default:true" json:"is_active"`

	// Relationships
	SourceAccount  *Account       `gorm:"foreignKey:SourceAccountID" json:"source_account,omitempty"`
	SavingsAccount *Account       `gorm:"foreignKey:SavingsAccountID" json:"savings_account,omitempty"`
	Schedules      []ScheduleItem `gorm:"foreignKey:PlanID" json:"schedules,omitempty"`
}

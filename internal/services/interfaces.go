package services

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"moara/internal/models"
	"moara/internal/pagination"
)

// PostingInput carries everything the ledger needs for one posting.
type PostingInput struct {
	AccountID       string
	Direction       models.Direction
	Amount          decimal.Decimal
	Summary         string
	Memo            string
	CounterpartyRef string
	ExternalRef     string
	IdempotencyKey  string
}

// TransferResult holds the two entries posted by a manual transfer.
type TransferResult struct {
	Debit  *models.LedgerEntry `json:"debit"`
	Credit *models.LedgerEntry `json:"credit"`
}

// LedgerServicer defines the contract for the account ledger. Post is the
// single posting primitive; it does not enforce transfer limits, which are
// the caller's responsibility (CheckLimits exists for that).
type LedgerServicer interface {
	Post(input PostingInput) (*models.LedgerEntry, error)
	PostWithDB(tx *gorm.DB, input PostingInput) (*models.LedgerEntry, error)
	Transfer(userID, fromAccountID, toAccountID string, amount decimal.Decimal, memo string) (*TransferResult, error)
	CheckLimits(tx *gorm.DB, source *models.Account, amount decimal.Decimal, now time.Time) error
	GetAccountEntries(userID, accountID string, page pagination.PageRequest) (*pagination.PageResponse[models.LedgerEntry], error)
}

// AccountServicer defines the contract for account administration.
type AccountServicer interface {
	CreateAccount(userID, name string, accType models.AccountType, currency, bankRef string, singleLimit, dailyLimit decimal.Decimal) (*models.Account, error)
	GetAccountByID(userID, accountID string) (*models.Account, error)
	GetUserAccounts(userID string, page pagination.PageRequest) (*pagination.PageResponse[models.Account], error)
	DeactivateAccount(userID, accountID string) error
}

// ScheduleServicer defines the contract for the schedule store and the
// batch claimer. ClaimDue is the only way items enter the settlement
// pipeline; concurrent calls never return overlapping sets.
type ScheduleServicer interface {
	ClaimDue(now time.Time, limit int) ([]models.ScheduleItem, error)
	GetByID(scheduleID string) (*models.ScheduleItem, error)
	MarkSuccess(scheduleID, externalID string, at time.Time) error
	MarkFailed(scheduleID, reason string, at time.Time) error
	SkipPendingForPlan(tx *gorm.DB, planID string) (int64, error)
	Retry(scheduleID string) (*models.ScheduleItem, error)
}

// BatchResult summarizes one settlement batch run.
type BatchResult struct {
	Claimed   int `json:"claimed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// SettlementServicer defines the contract for the settlement pipeline.
type SettlementServicer interface {
	ExecuteOne(ctx context.Context, scheduleID string) error
	RunBatch(ctx context.Context, now time.Time, limit int) (BatchResult, error)
	GetRecordForSchedule(scheduleID string) (*models.SettlementRecord, error)
}

// PlanInput carries the fields for creating a savings plan.
type PlanInput struct {
	UserID           string
	Name             string
	SourceAccountID  string
	SavingsAccountID string
	GoalAmount       decimal.Decimal
	AmountPerPeriod  decimal.Decimal
	Cadence          models.Cadence
	DayOfMonth       *int
	Weekday          *int
	StartDate        time.Time
	EndDate          time.Time
}

// PlanAmendment holds the optional fields of a plan amendment. Amending
// regenerates the plan's still-pending future schedule items.
type PlanAmendment struct {
	AmountPerPeriod *decimal.Decimal
	GoalAmount      *decimal.Decimal
	EndDate         *time.Time
	Cadence         *models.Cadence
	DayOfMonth      *int
	Weekday         *int
}

// PlanServicer defines the contract for plan lifecycle and the auto-close
// sweep.
type PlanServicer interface {
	CreatePlan(input PlanInput) (*models.SavingsPlan, error)
	GetPlanByID(userID, planID string) (*models.SavingsPlan, error)
	AmendPlan(userID, planID string, fields PlanAmendment) (*models.SavingsPlan, error)
	DeactivatePlan(userID, planID string) error
	ListSchedule(userID, planID string, page pagination.PageRequest) (*pagination.PageResponse[models.ScheduleItem], error)
	CloseExpired(now time.Time) (int, error)
}

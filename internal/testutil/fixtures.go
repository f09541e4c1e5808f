package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"moara/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// counter provides unique values across fixtures within a test run.
var counter atomic.Int64

func nextID() int64 {
	return counter.Add(1)
}

// NewUserID returns a unique opaque owner id. Authentication lives outside
// this service, so owners are just strings.
func NewUserID() string {
	return fmt.Sprintf("user-%d", nextID())
}

// CreateTestAccount creates an active spending account with the given balance.
func CreateTestAccount(t *testing.T, db *gorm.DB, userID string, balance decimal.Decimal) *models.Account {
	t.Helper()
	return createAccount(t, db, userID, models.AccountTypeSpending, balance)
}

// CreateTestSavingsAccount creates an active savings account with zero balance.
func CreateTestSavingsAccount(t *testing.T, db *gorm.DB, userID string) *models.Account {
	t.Helper()
	return createAccount(t, db, userID, models.AccountTypeSavings, decimal.Zero)
}

func createAccount(t *testing.T, db *gorm.DB, userID string, accType models.AccountType, balance decimal.Decimal) *models.Account {
	t.Helper()

	n := nextID()
	account := &models.Account{
		UserID:   userID,
		Name:     fmt.Sprintf("Test Account %d", n),
		Type:     accType,
		Currency: "KRW",
		Balance:  balance,
		BankRef:  fmt.Sprintf("110-%09d", n),
		IsActive: true,
	}
	if err := db.Create(account).Error; err != nil {
		t.Fatalf("failed to create test account: %v", err)
	}
	return account
}

// CreateTestPlan creates an active monthly plan between the two accounts.
func CreateTestPlan(t *testing.T, db *gorm.DB, userID string, source, savings *models.Account, perPeriod decimal.Decimal) *models.SavingsPlan {
	t.Helper()

	day := 15
	now := time.Now().UTC().Truncate(24 * time.Hour)
	plan := &models.SavingsPlan{
		UserID:           userID,
		Name:             fmt.Sprintf("Test Plan %d", nextID()),
		SourceAccountID:  source.ID,
		SavingsAccountID: savings.ID,
		GoalAmount:       perPeriod.Mul(decimal.NewFromInt(12)),
		AmountPerPeriod:  perPeriod,
		Cadence:          models.CadenceMonthly,
		DayOfMonth:       &day,
		StartDate:        now,
		EndDate:          now.AddDate(1, 0, 0),
		IsActive:         true,
	}
	if err := db.Create(plan).Error; err != nil {
		t.Fatalf("failed to create test plan: %v", err)
	}
	return plan
}

// CreateTestScheduleItem creates a pending schedule item due at the given date.
func CreateTestScheduleItem(t *testing.T, db *gorm.DB, planID string, due time.Time, amount decimal.Decimal) *models.ScheduleItem {
	t.Helper()

	item := &models.ScheduleItem{
		PlanID:  planID,
		DueDate: due,
		Amount:  amount,
		Status:  models.ScheduleStatusPending,
	}
	if err := db.Create(item).Error; err != nil {
		t.Fatalf("failed to create test schedule item: %v", err)
	}
	return item
}

// KRW builds a whole-unit decimal amount.
func KRW(n int64) decimal.Decimal {
	return decimal.NewFromInt(n)
}

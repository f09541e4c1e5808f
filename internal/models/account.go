package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountType represents the type of account
type AccountType string

const (
	AccountTypeSpending AccountType = "spending"
	AccountTypeSavings  AccountType = "savings"
)

// Account represents a balance-bearing account. The balance is only ever
// mutated through ledger postings or administrative deactivation; it must
// always equal the signed sum of the account's ledger entries.
type Account struct {
	Base
	UserID   string          `gorm:"not null;index" json:"user_id"`
	Name     string          `gorm:"not null" json:"name"`
	Type     AccountType     `gorm:"not null" json:"type"`
	Currency string          `gorm:"not null;default:'KRW'" json:"currency"`
	Balance  decimal.Decimal `gorm:"type:numeric(18,2);not null;default:0" json:"balance"`
	IsActive bool            `gorm:"default:true" json:"is_active"`

	// BankRef identifies the account at the external banking gateway.
	BankRef string `json:"bank_ref,omitempty"`

	// Transfer limits. A zero limit means unlimited.
	SingleLimit decimal.Decimal `gorm:"type:numeric(18,2);not null;default:0" json:"single_limit"`
	DailyLimit  decimal.Decimal `gorm:"type:numeric(18,2);not null;default:0" json:"daily_limit"`

	// LastSeq is the sequence number of the most recent ledger entry.
	// Incremented under the same row lock that guards the balance.
	LastSeq          int64      `gorm:"not null;default:0" json:"last_seq"`
	LastTransactedAt *time.Time `json:"last_transacted_at,omitempty"`

	// Relationships
	Entries []LedgerEntry `gorm:"foreignKey:AccountID" json:"entries,omitempty"`
}

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction represents which side of an account a ledger entry moves.
type Direction string

const (
	DirectionCredit Direction = "credit"
	DirectionDebit  Direction = "debit"
)

// LedgerEntry is one immutable row of the append-only transaction log.
// Entries are created once and never updated or deleted: replaying all of an
// account's entries in sequence order must reproduce its current balance.
type LedgerEntry struct {
	Base
	AccountID string `gorm:"not null;index;uniqueIndex:idx_entry_seq,priority:1;uniqueIndex:idx_entry_idem,priority:1" json:"account_id"`

	// Seq is unique per account and assigned under the account row lock.
	Seq       int64           `gorm:"not null;uniqueIndex:idx_entry_seq,priority:2" json:"seq"`
	Direction Direction       `gorm:"not null" json:"direction"`
	Amount    decimal.Decimal `gorm:"type:numeric(18,2);not null" json:"amount"`

	// AfterBalance is the account balance immediately after this entry.
	AfterBalance decimal.Decimal `gorm:"type:numeric(18,2);not null" json:"after_balance"`

	Summary         string `gorm:"size:100" json:"summary"`
	Memo            string `gorm:"size:500" json:"memo,omitempty"`
	CounterpartyRef string `json:"counterparty_ref,omitempty"`
	ExternalRef     string `json:"external_ref,omitempty"`

	// IdempotencyKey is NULL for plain postings; keyed postings are unique
	// per account so replays resolve to the original entry.
	IdempotencyKey *string   `gorm:"size:100;uniqueIndex:idx_entry_idem,priority:2" json:"idempotency_key,omitempty"`
	OccurredAt     time.Time `gorm:"not null;index" json:"occurred_at"`

	Account Account `gorm:"foreignKey:AccountID" json:"-"`
}

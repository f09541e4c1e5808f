package services

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	apperrors "moara/internal/errors"
	"moara/internal/models"
	"moara/internal/pagination"
	"moara/internal/uuid"
)

// ledgerService owns the append-only transaction log and the balances
// derived from it.
type ledgerService struct {
	db *gorm.DB
}

// NewLedgerService creates a new LedgerServicer.
func NewLedgerService(db *gorm.DB) LedgerServicer {
	return &ledgerService{db: db}
}

// validateAmount enforces the posting precondition: strictly positive,
// at most two decimal places.
func validateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return apperrors.ErrInvalidAmount
	}
	if !amount.Equal(amount.Round(2)) {
		return apperrors.WithMessage(apperrors.ErrInvalidAmount, "amount has more than two decimal places")
	}
	return nil
}

// Post runs the posting primitive in its own database transaction.
func (s *ledgerService) Post(input PostingInput) (*models.LedgerEntry, error) {
	var entry *models.LedgerEntry
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var txErr error
		entry, txErr = s.PostWithDB(tx, input)
		return txErr
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// PostWithDB is the posting primitive inside a caller-supplied transaction:
// lock the account row, read the balance, append exactly one immutable
// entry, and move the balance, as one atomic unit. Replaying an idempotency
// key returns the original entry without touching the balance again.
func (s *ledgerService) PostWithDB(tx *gorm.DB, input PostingInput) (*models.LedgerEntry, error) {
	if err := validateAmount(input.Amount); err != nil {
		return nil, err
	}
	if input.Direction != models.DirectionCredit && input.Direction != models.DirectionDebit {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "unknown posting direction")
	}

	// The exclusive row lock serializes every posting against this account,
	// whatever code path it arrives from.
	var account models.Account
	if err := lockForUpdate(tx).Where("id = ?", input.AccountID).First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrAccountNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	if input.IdempotencyKey != "" {
		var existing models.LedgerEntry
		err := tx.Where("account_id = ? AND idempotency_key = ?", account.ID, input.IdempotencyKey).
			First(&existing).Error
		if err == nil {
			return &existing, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
	}

	after := account.Balance
	if input.Direction == models.DirectionCredit {
		after = after.Add(input.Amount)
	} else {
		after = after.Sub(input.Amount)
	}
	after = after.Round(2)

	now := time.Now()
	entry := &models.LedgerEntry{
		AccountID:       account.ID,
		Seq:             account.LastSeq + 1,
		Direction:       input.Direction,
		Amount:          input.Amount,
		AfterBalance:    after,
		Summary:         input.Summary,
		Memo:            input.Memo,
		CounterpartyRef: input.CounterpartyRef,
		ExternalRef:     input.ExternalRef,
		OccurredAt:      now,
	}
	if input.IdempotencyKey != "" {
		key := input.IdempotencyKey
		entry.IdempotencyKey = &key
	}
	if err := tx.Create(entry).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	if err := tx.Model(&models.Account{}).Where("id = ?", account.ID).Updates(map[string]interface{}{
		"balance":            after,
		"last_seq":           entry.Seq,
		"last_transacted_at": now,
	}).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	return entry, nil
}

// Transfer moves funds between two of the user's accounts as a debit/credit
// pair in one transaction. Limit and balance checks happen here, at the
// call site, not in the posting primitive.
func (s *ledgerService) Transfer(userID, fromAccountID, toAccountID string, amount decimal.Decimal, memo string) (*TransferResult, error) {
	if fromAccountID == toAccountID {
		return nil, apperrors.ErrSameAccountTransfer
	}
	if err := validateAmount(amount); err != nil {
		return nil, err
	}

	key := "TRF-" + uuid.New()
	now := time.Now()

	var result TransferResult
	err := s.db.Transaction(func(tx *gorm.DB) error {
		locked, err := lockAccountPair(tx, fromAccountID, toAccountID)
		if err != nil {
			return err
		}
		source, dest := locked[fromAccountID], locked[toAccountID]

		for _, account := range []*models.Account{source, dest} {
			if account.UserID != userID {
				return apperrors.ErrAccountNotFound
			}
			if !account.IsActive {
				return apperrors.ErrAccountInactive
			}
		}
		if source.Balance.LessThan(amount) {
			return apperrors.ErrInsufficientBalance
		}
		if err := s.CheckLimits(tx, source, amount, now); err != nil {
			return err
		}

		debit, err := s.PostWithDB(tx, PostingInput{
			AccountID:       source.ID,
			Direction:       models.DirectionDebit,
			Amount:          amount,
			Summary:         "Transfer to " + dest.Name,
			Memo:            memo,
			CounterpartyRef: dest.ID,
			IdempotencyKey:  key + "-D",
		})
		if err != nil {
			return err
		}
		credit, err := s.PostWithDB(tx, PostingInput{
			AccountID:       dest.ID,
			Direction:       models.DirectionCredit,
			Amount:          amount,
			Summary:         "Transfer from " + source.Name,
			Memo:            memo,
			CounterpartyRef: source.ID,
			IdempotencyKey:  key + "-C",
		})
		if err != nil {
			return err
		}

		result = TransferResult{Debit: debit, Credit: credit}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// CheckLimits verifies the amount against the source account's one-time and
// daily transfer limits. A zero limit means unlimited.
func (s *ledgerService) CheckLimits(tx *gorm.DB, source *models.Account, amount decimal.Decimal, now time.Time) error {
	if source.SingleLimit.IsPositive() && amount.GreaterThan(source.SingleLimit) {
		return apperrors.WithMessage(apperrors.ErrLimitExceeded, "amount exceeds the one-time transfer limit")
	}
	if source.DailyLimit.IsPositive() {
		debited, err := s.debitedOn(tx, source.ID, now)
		if err != nil {
			return err
		}
		if debited.Add(amount).GreaterThan(source.DailyLimit) {
			return apperrors.WithMessage(apperrors.ErrLimitExceeded, "amount exceeds the daily transfer limit")
		}
	}
	return nil
}

// debitedOn sums the account's debits over the calendar day containing now.
func (s *ledgerService) debitedOn(tx *gorm.DB, accountID string, now time.Time) (decimal.Decimal, error) {
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	dayEnd := dayStart.AddDate(0, 0, 1)

	var row struct {
		Total decimal.Decimal
	}
	err := tx.Model(&models.LedgerEntry{}).
		Select("COALESCE(SUM(amount), 0) AS total").
		Where("account_id = ? AND direction = ? AND occurred_at >= ? AND occurred_at < ?",
			accountID, models.DirectionDebit, dayStart, dayEnd).
		Scan(&row).Error
	if err != nil {
		return decimal.Zero, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return row.Total, nil
}

// GetAccountEntries retrieves a paginated slice of the account's ledger, most
// recent first.
func (s *ledgerService) GetAccountEntries(userID, accountID string, page pagination.PageRequest) (*pagination.PageResponse[models.LedgerEntry], error) {
	var account models.Account
	if err := s.db.Where("id = ? AND user_id = ?", accountID, userID).First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrAccountNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	page.Defaults()

	base := s.db.Model(&models.LedgerEntry{}).Where("account_id = ?", accountID)

	var totalItems int64
	if err := base.Count(&totalItems).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var entries []models.LedgerEntry
	if err := base.Scopes(pagination.Paginate(page)).
		Order("seq DESC").
		Find(&entries).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	result := pagination.NewPageResponse(entries, page.Page, page.PageSize, totalItems)
	return &result, nil
}

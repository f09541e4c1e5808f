package services

import (
	"errors"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	apperrors "moara/internal/errors"
	"moara/internal/models"
	"moara/internal/pagination"
)

// accountService handles account administration. Balances are never touched
// here; only ledger postings move them.
type accountService struct {
	db *gorm.DB
}

// NewAccountService creates a new AccountServicer.
func NewAccountService(db *gorm.DB) AccountServicer {
	return &accountService{db: db}
}

// CreateAccount opens a spending or savings account.
func (s *accountService) CreateAccount(userID, name string, accType models.AccountType, currency, bankRef string, singleLimit, dailyLimit decimal.Decimal) (*models.Account, error) {
	if name == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "account name is required")
	}
	if accType != models.AccountTypeSpending && accType != models.AccountTypeSavings {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "unknown account type")
	}
	if singleLimit.IsNegative() || dailyLimit.IsNegative() {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "transfer limits must not be negative")
	}
	if currency == "" {
		currency = "KRW"
	}

	account := &models.Account{
		UserID:      userID,
		Name:        name,
		Type:        accType,
		Currency:    currency,
		Balance:     decimal.Zero,
		BankRef:     bankRef,
		SingleLimit: singleLimit,
		DailyLimit:  dailyLimit,
		IsActive:    true,
	}
	if err := s.db.Create(account).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return account, nil
}

// GetAccountByID retrieves an account by ID for a specific user.
func (s *accountService) GetAccountByID(userID, accountID string) (*models.Account, error) {
	var account models.Account
	if err := s.db.Where("id = ? AND user_id = ?", accountID, userID).First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrAccountNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &account, nil
}

// GetUserAccounts retrieves a paginated list of the user's active accounts.
func (s *accountService) GetUserAccounts(userID string, page pagination.PageRequest) (*pagination.PageResponse[models.Account], error) {
	page.Defaults()

	base := s.db.Model(&models.Account{}).Where("user_id = ? AND is_active = ?", userID, true)

	var totalItems int64
	if err := base.Count(&totalItems).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var accounts []models.Account
	if err := base.Scopes(pagination.Paginate(page)).Find(&accounts).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	result := pagination.NewPageResponse(accounts, page.Page, page.PageSize, totalItems)
	return &result, nil
}

// DeactivateAccount marks an account inactive. The ledger history stays.
func (s *accountService) DeactivateAccount(userID, accountID string) error {
	account, err := s.GetAccountByID(userID, accountID)
	if err != nil {
		return err
	}
	if err := s.db.Model(account).Update("is_active", false).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return nil
}

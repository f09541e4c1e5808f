package services

import (
	"errors"
	"time"

	"gorm.io/gorm"

	apperrors "moara/internal/errors"
	"moara/internal/logger"
	"moara/internal/models"
	"moara/internal/notify"
	"moara/internal/pagination"
	"moara/internal/recurrence"
)

// planService handles the savings plan lifecycle and the daily auto-close
// sweep over expired plans.
type planService struct {
	db        *gorm.DB
	accounts  AccountServicer
	schedules ScheduleServicer
	notifier  notify.Notifier
}

// NewPlanService creates a new PlanServicer. notifier may be nil.
func NewPlanService(db *gorm.DB, accounts AccountServicer, schedules ScheduleServicer, notifier notify.Notifier) PlanServicer {
	return &planService{db: db, accounts: accounts, schedules: schedules, notifier: notifier}
}

// CreatePlan validates the plan, expands its cadence, and creates the plan
// together with its pending schedule items in one transaction.
func (s *planService) CreatePlan(input PlanInput) (*models.SavingsPlan, error) {
	if input.Name == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "plan name is required")
	}
	if input.SourceAccountID == input.SavingsAccountID {
		return nil, apperrors.ErrSameAccountTransfer
	}
	if err := validateAmount(input.AmountPerPeriod); err != nil {
		return nil, err
	}
	if err := validateAmount(input.GoalAmount); err != nil {
		return nil, err
	}

	source, err := s.accounts.GetAccountByID(input.UserID, input.SourceAccountID)
	if err != nil {
		return nil, err
	}
	savings, err := s.accounts.GetAccountByID(input.UserID, input.SavingsAccountID)
	if err != nil {
		return nil, err
	}
	if !source.IsActive || !savings.IsActive {
		return nil, apperrors.ErrAccountInactive
	}
	if savings.Type != models.AccountTypeSavings {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "destination must be a savings account")
	}

	dueDates, err := recurrence.Expand(recurrence.Rule{
		Cadence:    input.Cadence,
		DayOfMonth: input.DayOfMonth,
		Weekday:    input.Weekday,
	}, input.StartDate, input.EndDate)
	if err != nil {
		return nil, err
	}

	plan := &models.SavingsPlan{
		UserID:           input.UserID,
		Name:             input.Name,
		SourceAccountID:  input.SourceAccountID,
		SavingsAccountID: input.SavingsAccountID,
		GoalAmount:       input.GoalAmount,
		AmountPerPeriod:  input.AmountPerPeriod,
		Cadence:          input.Cadence,
		DayOfMonth:       input.DayOfMonth,
		Weekday:          input.Weekday,
		StartDate:        input.StartDate,
		EndDate:          input.EndDate,
		IsActive:         true,
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(plan).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		return s.materializeSchedule(tx, plan, dueDates)
	})
	if err != nil {
		return nil, err
	}
	return plan, nil
}

// GetPlanByID retrieves a plan by ID for a specific user.
func (s *planService) GetPlanByID(userID, planID string) (*models.SavingsPlan, error) {
	var plan models.SavingsPlan
	if err := s.db.Where("id = ? AND user_id = ?", planID, userID).First(&plan).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrPlanNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &plan, nil
}

// AmendPlan applies the given fields, skips the plan's still-pending future
// items, and regenerates them from today under the amended terms. Settled
// history is untouched.
func (s *planService) AmendPlan(userID, planID string, fields PlanAmendment) (*models.SavingsPlan, error) {
	plan, err := s.GetPlanByID(userID, planID)
	if err != nil {
		return nil, err
	}
	if !plan.IsActive {
		return nil, apperrors.ErrPlanInactive
	}

	if fields.AmountPerPeriod != nil {
		if err := validateAmount(*fields.AmountPerPeriod); err != nil {
			return nil, err
		}
		plan.AmountPerPeriod = *fields.AmountPerPeriod
	}
	if fields.GoalAmount != nil {
		if err := validateAmount(*fields.GoalAmount); err != nil {
			return nil, err
		}
		plan.GoalAmount = *fields.GoalAmount
	}
	if fields.EndDate != nil {
		plan.EndDate = *fields.EndDate
	}
	if fields.Cadence != nil {
		plan.Cadence = *fields.Cadence
	}
	if fields.DayOfMonth != nil {
		plan.DayOfMonth = fields.DayOfMonth
	}
	if fields.Weekday != nil {
		plan.Weekday = fields.Weekday
	}

	today := dateOnly(time.Now())
	regenFrom := dateOnly(plan.StartDate)
	if today.After(regenFrom) {
		regenFrom = today
	}

	dueDates, err := recurrence.Expand(recurrence.Rule{
		Cadence:    plan.Cadence,
		DayOfMonth: plan.DayOfMonth,
		Weekday:    plan.Weekday,
	}, regenFrom, plan.EndDate)
	if err != nil {
		return nil, err
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(plan).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}

		// Unclaimed future obligations are superseded by the amendment.
		res := tx.Model(&models.ScheduleItem{}).
			Where("plan_id = ? AND status = ? AND claimed_at IS NULL AND due_date >= ?",
				plan.ID, models.ScheduleStatusPending, regenFrom).
			Updates(map[string]interface{}{"status": models.ScheduleStatusSkipped})
		if res.Error != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, res.Error)
		}

		return s.materializeSchedule(tx, plan, dueDates)
	})
	if err != nil {
		return nil, err
	}
	return plan, nil
}

// DeactivatePlan closes a plan early: its pending items become SKIPPED and
// the plan goes inactive. The plan row and history stay.
func (s *planService) DeactivatePlan(userID, planID string) error {
	plan, err := s.GetPlanByID(userID, planID)
	if err != nil {
		return err
	}
	if !plan.IsActive {
		return nil
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		return s.closePlan(tx, plan, false)
	})
}

// ListSchedule retrieves a paginated list of a plan's schedule items in due
// date order.
func (s *planService) ListSchedule(userID, planID string, page pagination.PageRequest) (*pagination.PageResponse[models.ScheduleItem], error) {
	if _, err := s.GetPlanByID(userID, planID); err != nil {
		return nil, err
	}

	page.Defaults()

	base := s.db.Model(&models.ScheduleItem{}).Where("plan_id = ?", planID)

	var totalItems int64
	if err := base.Count(&totalItems).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var items []models.ScheduleItem
	if err := base.Scopes(pagination.Paginate(page)).
		Order("due_date ASC").
		Find(&items).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	result := pagination.NewPageResponse(items, page.Page, page.PageSize, totalItems)
	return &result, nil
}

// CloseExpired deactivates every active plan whose end date has passed,
// skipping its pending items and deactivating its savings account. Each
// plan is processed independently: one plan's failure is logged and the
// sweep moves on.
func (s *planService) CloseExpired(now time.Time) (int, error) {
	var expired []models.SavingsPlan
	if err := s.db.Where("is_active = ? AND end_date < ?", true, dateOnly(now)).
		Find(&expired).Error; err != nil {
		return 0, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	closed := 0
	for i := range expired {
		plan := expired[i]
		err := s.db.Transaction(func(tx *gorm.DB) error {
			return s.closePlan(tx, &plan, true)
		})
		if err != nil {
			logger.Get().Errorw("auto-close failed for plan",
				"plan_id", plan.ID,
				"error", err.Error(),
			)
			continue
		}
		closed++

		if s.notifier != nil {
			s.notifier.Notify(plan.UserID, notify.Event{
				UserID:  plan.UserID,
				Kind:    notify.KindPlanClosed,
				Message: "Savings plan " + plan.Name + " has ended",
				At:      time.Now(),
			})
		}
	}

	if closed > 0 || len(expired) > 0 {
		logger.Get().Infow("auto-close sweep finished", "expired", len(expired), "closed", closed)
	}
	return closed, nil
}

// closePlan skips pending items and deactivates the plan inside tx. When
// retireSavings is set the savings account is deactivated too, as happens
// when a plan reaches its end date.
func (s *planService) closePlan(tx *gorm.DB, plan *models.SavingsPlan, retireSavings bool) error {
	if _, err := s.schedules.SkipPendingForPlan(tx, plan.ID); err != nil {
		return err
	}

	if err := tx.Model(&models.SavingsPlan{}).Where("id = ?", plan.ID).
		Update("is_active", false).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	if retireSavings {
		if err := tx.Model(&models.Account{}).Where("id = ?", plan.SavingsAccountID).
			Update("is_active", false).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
	}
	return nil
}

// materializeSchedule inserts one pending item per due date.
func (s *planService) materializeSchedule(tx *gorm.DB, plan *models.SavingsPlan, dueDates []time.Time) error {
	for _, due := range dueDates {
		item := &models.ScheduleItem{
			PlanID:  plan.ID,
			DueDate: due,
			Amount:  plan.AmountPerPeriod,
			Status:  models.ScheduleStatusPending,
		}
		if err := tx.Create(item).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
	}
	return nil
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

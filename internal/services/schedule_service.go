package services

import (
	"errors"
	"time"

	"gorm.io/gorm"

	apperrors "moara/internal/errors"
	"moara/internal/models"
)

// scheduleService is the durable store of due obligations and the batch
// claimer over them.
type scheduleService struct {
	db *gorm.DB

	// staleClaimAge is how long a claim stamp shields a still-pending item
	// from other claimers. After that the item is presumed orphaned by a
	// crashed worker and becomes claimable again; the settlement record
	// makes re-execution safe.
	staleClaimAge time.Duration
}

// NewScheduleService creates a new ScheduleServicer.
func NewScheduleService(db *gorm.DB, staleClaimAge time.Duration) ScheduleServicer {
	if staleClaimAge <= 0 {
		staleClaimAge = 15 * time.Minute
	}
	return &scheduleService{db: db, staleClaimAge: staleClaimAge}
}

// ClaimDue reserves up to limit pending items due on/before now, ordered by
// due date. Rows are selected FOR UPDATE SKIP LOCKED where the engine
// supports it, and every returned item additionally carries a fresh claim
// stamp written with a compare-and-swap on the pending status. Two
// concurrent (or back-to-back) claimers therefore never share an item:
// duplicate claims would mean duplicate money movement.
func (s *scheduleService) ClaimDue(now time.Time, limit int) ([]models.ScheduleItem, error) {
	if limit <= 0 {
		return nil, nil
	}
	cutoff := now.Add(-s.staleClaimAge)

	var claimed []models.ScheduleItem
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var candidates []models.ScheduleItem
		err := lockForClaim(tx.Model(&models.ScheduleItem{})).
			Where("status = ? AND due_date <= ?", models.ScheduleStatusPending, now).
			Where("claimed_at IS NULL OR claimed_at < ?", cutoff).
			Order("due_date ASC").
			Limit(limit).
			Find(&candidates).Error
		if err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}

		for i := range candidates {
			res := tx.Model(&models.ScheduleItem{}).
				Where("id = ? AND status = ?", candidates[i].ID, models.ScheduleStatusPending).
				Where("claimed_at IS NULL OR claimed_at < ?", cutoff).
				Update("claimed_at", now)
			if res.Error != nil {
				return apperrors.Wrap(apperrors.ErrInternalServer, res.Error)
			}
			if res.RowsAffected == 1 {
				at := now
				candidates[i].ClaimedAt = &at
				claimed = append(claimed, candidates[i])
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// GetByID loads a schedule item.
func (s *scheduleService) GetByID(scheduleID string) (*models.ScheduleItem, error) {
	var item models.ScheduleItem
	if err := s.db.Where("id = ?", scheduleID).First(&item).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrScheduleNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &item, nil
}

// MarkSuccess finalizes a pending item as SUCCESS. Finalizing an already
// terminal item is a no-op, which keeps replayed executions idempotent.
func (s *scheduleService) MarkSuccess(scheduleID, externalID string, at time.Time) error {
	return s.finalize(scheduleID, map[string]interface{}{
		"status":      models.ScheduleStatusSuccess,
		"executed_at": at,
		"external_id": externalID,
		"fail_reason": "",
	})
}

// MarkFailed finalizes a pending item as FAILED with a bounded reason.
func (s *scheduleService) MarkFailed(scheduleID, reason string, at time.Time) error {
	return s.finalize(scheduleID, map[string]interface{}{
		"status":      models.ScheduleStatusFailed,
		"executed_at": at,
		"fail_reason": truncateReason(reason),
	})
}

func (s *scheduleService) finalize(scheduleID string, updates map[string]interface{}) error {
	res := s.db.Model(&models.ScheduleItem{}).
		Where("id = ? AND status = ?", scheduleID, models.ScheduleStatusPending).
		Updates(updates)
	if res.Error != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, res.Error)
	}
	if res.RowsAffected == 0 {
		// Either missing or already terminal; distinguish for the caller.
		if _, err := s.GetByID(scheduleID); err != nil {
			return err
		}
	}
	return nil
}

// SkipPendingForPlan cancels all still-pending items of a plan inside the
// caller's transaction, returning how many were skipped.
func (s *scheduleService) SkipPendingForPlan(tx *gorm.DB, planID string) (int64, error) {
	res := tx.Model(&models.ScheduleItem{}).
		Where("plan_id = ? AND status = ?", planID, models.ScheduleStatusPending).
		Updates(map[string]interface{}{"status": models.ScheduleStatusSkipped})
	if res.Error != nil {
		return 0, apperrors.Wrap(apperrors.ErrInternalServer, res.Error)
	}
	return res.RowsAffected, nil
}

// Retry resets a FAILED item back to PENDING. This is a deliberate operator
// action, the one sanctioned exit from a terminal state; the batch never
// resurrects failures on its own.
func (s *scheduleService) Retry(scheduleID string) (*models.ScheduleItem, error) {
	res := s.db.Model(&models.ScheduleItem{}).
		Where("id = ? AND status = ?", scheduleID, models.ScheduleStatusFailed).
		Updates(map[string]interface{}{
			"status":      models.ScheduleStatusPending,
			"claimed_at":  nil,
			"executed_at": nil,
			"fail_reason": "",
		})
	if res.Error != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, res.Error)
	}
	if res.RowsAffected == 0 {
		item, err := s.GetByID(scheduleID)
		if err != nil {
			return nil, err
		}
		if item.Status != models.ScheduleStatusFailed {
			return nil, apperrors.ErrScheduleNotRetryable
		}
	}
	return s.GetByID(scheduleID)
}

// truncateReason bounds a failure reason to the column size.
func truncateReason(reason string) string {
	const max = 255
	if len(reason) > max {
		return reason[:max]
	}
	return reason
}

package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	apperrors "moara/internal/errors"
	"moara/internal/gateway"
	"moara/internal/logger"
	"moara/internal/models"
	"moara/internal/notify"
)

// settlementKeyPrefix makes idempotency keys deterministic per schedule
// item: retries of the same item always resolve to the same record.
const settlementKeyPrefix = "SET-"

func settlementKey(scheduleID string) string {
	return settlementKeyPrefix + scheduleID
}

// settlementService runs the per-obligation pipeline: validate, call the
// banking gateway, post the ledger pair, finalize. Every exit path ends in a
// terminal status write so nothing dangles for the next claim cycle.
type settlementService struct {
	db        *gorm.DB
	ledger    LedgerServicer
	schedules ScheduleServicer
	gw        gateway.Gateway
	notifier  notify.Notifier
}

// NewSettlementService creates a new SettlementServicer. notifier may be nil.
func NewSettlementService(db *gorm.DB, ledger LedgerServicer, schedules ScheduleServicer, gw gateway.Gateway, notifier notify.Notifier) SettlementServicer {
	return &settlementService{
		db:        db,
		ledger:    ledger,
		schedules: schedules,
		gw:        gw,
		notifier:  notifier,
	}
}

// settlementAggregate is the eagerly loaded context of one execution, so the
// pipeline has no mid-flight relation loads.
type settlementAggregate struct {
	item    *models.ScheduleItem
	plan    *models.SavingsPlan
	source  *models.Account
	savings *models.Account
}

// ExecuteOne settles one claimed schedule item. It is safe to call again on
// the same item: already-terminal items return immediately, and a record
// already marked SUCCESS finalizes without a second gateway call.
func (s *settlementService) ExecuteOne(ctx context.Context, scheduleID string) error {
	item, err := s.schedules.GetByID(scheduleID)
	if err != nil {
		return err
	}
	if item.Status != models.ScheduleStatusPending {
		logger.Get().Debugw("schedule item already handled", "schedule_id", scheduleID, "status", item.Status)
		return nil
	}

	now := time.Now()

	agg, err := s.loadAggregate(item)
	if err != nil {
		// Fail fast, no gateway call, no retry.
		s.failItem(item, agg, err, now)
		return err
	}
	if err := s.validateAggregate(agg, now); err != nil {
		s.failItem(item, agg, err, now)
		return err
	}

	key := settlementKey(item.ID)
	record, err := s.findOrCreateRecord(agg, key, now)
	if err != nil {
		return err
	}

	// Replay short-circuit: the gateway already moved this money once.
	if record.Status == models.SettlementStatusSuccess {
		if err := s.schedules.MarkSuccess(item.ID, record.ExternalID, now); err != nil {
			return err
		}
		return nil
	}

	// A stored external id means an earlier attempt cleared the bank but
	// died before the ledger pair landed. Finish from the stored id; never
	// present the same obligation to the gateway twice.
	if record.ExternalID != "" {
		if err := s.postAndFinalize(agg, record.ID, key, record.ExternalID); err != nil {
			s.finalizeFailure(item, record.ID, agg, truncateReason(err.Error()), record.ExternalID, now)
			return err
		}
		s.notifyOutcome(agg, notify.KindSettlementSuccess,
			fmt.Sprintf("Saved %s for plan %s", item.Amount, agg.plan.Name))
		return nil
	}

	if err := s.updateRecord(record.ID, map[string]interface{}{
		"status": models.SettlementStatusProcessing,
	}); err != nil {
		return err
	}

	externalID, gwErr := s.gw.Transfer(ctx, gateway.TransferRequest{
		SourceRef: agg.source.BankRef,
		DestRef:   agg.savings.BankRef,
		Amount:    item.Amount,
		Currency:  agg.source.Currency,
		Summary:   agg.plan.Name,
	})
	if gwErr != nil {
		reason := truncateReason(gwErr.Error())
		s.finalizeFailure(item, record.ID, agg, reason, "", now)
		return apperrors.Wrap(apperrors.ErrGatewayFailed, gwErr)
	}

	if err := s.postAndFinalize(agg, record.ID, key, externalID); err != nil {
		// The gateway succeeded but the ledger pair did not; the record
		// keeps the external id for reconciliation.
		s.finalizeFailure(item, record.ID, agg, truncateReason(err.Error()), externalID, now)
		return err
	}

	s.notifyOutcome(agg, notify.KindSettlementSuccess,
		fmt.Sprintf("Saved %s for plan %s", item.Amount, agg.plan.Name))
	return nil
}

// RunBatch claims due items and settles each within its own transactional
// boundary, so one item's failure never blocks the rest of the batch.
func (s *settlementService) RunBatch(ctx context.Context, now time.Time, limit int) (BatchResult, error) {
	items, err := s.schedules.ClaimDue(now, limit)
	if err != nil {
		return BatchResult{}, err
	}

	result := BatchResult{Claimed: len(items)}
	for _, item := range items {
		if err := s.ExecuteOne(ctx, item.ID); err != nil {
			result.Failed++
			logger.Get().Errorw("settlement failed",
				"schedule_id", item.ID,
				"plan_id", item.PlanID,
				"error", err.Error(),
			)
			continue
		}
		result.Succeeded++
	}

	if result.Claimed > 0 {
		logger.Get().Infow("settlement batch finished",
			"claimed", result.Claimed,
			"succeeded", result.Succeeded,
			"failed", result.Failed,
		)
	}
	return result, nil
}

// GetRecordForSchedule loads the settlement record of a schedule item.
func (s *settlementService) GetRecordForSchedule(scheduleID string) (*models.SettlementRecord, error) {
	var record models.SettlementRecord
	if err := s.db.Where("schedule_item_id = ?", scheduleID).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrSettlementNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &record, nil
}

// loadAggregate eagerly loads the plan and both accounts before any
// side-effecting step runs.
func (s *settlementService) loadAggregate(item *models.ScheduleItem) (*settlementAggregate, error) {
	agg := &settlementAggregate{item: item}

	var plan models.SavingsPlan
	if err := s.db.Where("id = ?", item.PlanID).First(&plan).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return agg, apperrors.WithMessage(apperrors.ErrPlanAccountMissing, "savings plan is missing")
		}
		return agg, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	agg.plan = &plan

	for _, link := range []struct {
		id     string
		target **models.Account
		label  string
	}{
		{plan.SourceAccountID, &agg.source, "source account"},
		{plan.SavingsAccountID, &agg.savings, "savings account"},
	} {
		var account models.Account
		if err := s.db.Where("id = ?", link.id).First(&account).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return agg, apperrors.WithMessage(apperrors.ErrPlanAccountMissing, link.label+" is missing")
			}
			return agg, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		*link.target = &account
	}
	return agg, nil
}

func (s *settlementService) validateAggregate(agg *settlementAggregate, now time.Time) error {
	if !agg.source.IsActive {
		return apperrors.WithMessage(apperrors.ErrAccountInactive, "source account is inactive")
	}
	if !agg.savings.IsActive {
		return apperrors.WithMessage(apperrors.ErrAccountInactive, "savings account is inactive")
	}
	return s.ledger.CheckLimits(s.db, agg.source, agg.item.Amount, now)
}

// findOrCreateRecord resolves the settlement record for (plan, key),
// creating it in RECEIVED state on first execution. The unique key absorbs
// races between concurrent executors of the same item.
func (s *settlementService) findOrCreateRecord(agg *settlementAggregate, key string, now time.Time) (*models.SettlementRecord, error) {
	var record models.SettlementRecord
	err := s.db.Where("plan_id = ? AND idempotency_key = ?", agg.plan.ID, key).First(&record).Error
	if err == nil {
		return &record, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	record = models.SettlementRecord{
		PlanID:         agg.plan.ID,
		ScheduleItemID: agg.item.ID,
		IdempotencyKey: key,
		Status:         models.SettlementStatusReceived,
		Amount:         agg.item.Amount,
		RequestedAt:    now,
	}
	if err := s.db.Create(&record).Error; err != nil {
		// Lost a creation race: the unique key means someone else inserted
		// the record; load theirs.
		var existing models.SettlementRecord
		if lookupErr := s.db.Where("idempotency_key = ?", key).First(&existing).Error; lookupErr == nil {
			return &existing, nil
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &record, nil
}

// postAndFinalize posts the debit/credit pair and marks both the record and
// the item SUCCESS, all in one local transaction. The distinct key suffixes
// make each posting individually idempotent on re-execution.
func (s *settlementService) postAndFinalize(agg *settlementAggregate, recordID, key, externalID string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if _, err := lockAccountPair(tx, agg.source.ID, agg.savings.ID); err != nil {
			return err
		}

		if _, err := s.ledger.PostWithDB(tx, PostingInput{
			AccountID:       agg.source.ID,
			Direction:       models.DirectionDebit,
			Amount:          agg.item.Amount,
			Summary:         agg.plan.Name,
			Memo:            "Recurring savings transfer",
			CounterpartyRef: agg.savings.ID,
			ExternalRef:     externalID,
			IdempotencyKey:  key + "-D",
		}); err != nil {
			return err
		}

		credit, err := s.ledger.PostWithDB(tx, PostingInput{
			AccountID:       agg.savings.ID,
			Direction:       models.DirectionCredit,
			Amount:          agg.item.Amount,
			Summary:         agg.plan.Name,
			Memo:            "Recurring savings transfer",
			CounterpartyRef: agg.source.ID,
			ExternalRef:     externalID,
			IdempotencyKey:  key + "-C",
		})
		if err != nil {
			return err
		}

		now := time.Now()
		if err := tx.Model(&models.SettlementRecord{}).Where("id = ?", recordID).
			Updates(map[string]interface{}{
				"status":          models.SettlementStatusSuccess,
				"external_id":     externalID,
				"processed_at":    now,
				"credit_entry_id": credit.ID,
				"fail_reason":     "",
			}).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}

		res := tx.Model(&models.ScheduleItem{}).
			Where("id = ? AND status = ?", agg.item.ID, models.ScheduleStatusPending).
			Updates(map[string]interface{}{
				"status":      models.ScheduleStatusSuccess,
				"executed_at": now,
				"external_id": externalID,
				"fail_reason": "",
			})
		if res.Error != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, res.Error)
		}
		return nil
	})
}

// failItem writes the terminal FAILED status for an item that never got a
// settlement record (fail-fast validation path).
func (s *settlementService) failItem(item *models.ScheduleItem, agg *settlementAggregate, cause error, now time.Time) {
	if err := s.schedules.MarkFailed(item.ID, cause.Error(), now); err != nil {
		logger.Get().Errorw("failed to mark schedule item failed", "schedule_id", item.ID, "error", err.Error())
	}
	s.notifyOutcome(agg, notify.KindSettlementFailed, "Savings transfer failed: "+cause.Error())
}

// finalizeFailure writes terminal FAILED on both the item and the record.
func (s *settlementService) finalizeFailure(item *models.ScheduleItem, recordID string, agg *settlementAggregate, reason, externalID string, now time.Time) {
	if err := s.schedules.MarkFailed(item.ID, reason, now); err != nil {
		logger.Get().Errorw("failed to mark schedule item failed", "schedule_id", item.ID, "error", err.Error())
	}
	updates := map[string]interface{}{
		"status":       models.SettlementStatusFailed,
		"fail_reason":  truncateReason(reason),
		"processed_at": now,
	}
	if externalID != "" {
		updates["external_id"] = externalID
	}
	if err := s.updateRecord(recordID, updates); err != nil {
		logger.Get().Errorw("failed to mark settlement record failed", "record_id", recordID, "error", err.Error())
	}
	s.notifyOutcome(agg, notify.KindSettlementFailed, "Savings transfer failed: "+reason)
}

func (s *settlementService) updateRecord(recordID string, updates map[string]interface{}) error {
	if err := s.db.Model(&models.SettlementRecord{}).Where("id = ?", recordID).
		Updates(updates).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return nil
}

func (s *settlementService) notifyOutcome(agg *settlementAggregate, kind, message string) {
	if s.notifier == nil || agg == nil || agg.plan == nil {
		return
	}
	s.notifier.Notify(agg.plan.UserID, notify.Event{
		UserID:  agg.plan.UserID,
		Kind:    kind,
		Message: message,
		At:      time.Now(),
	})
}

package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"gorm.io/gorm"

	"moara/internal/gateway"
	"moara/internal/models"
	"moara/internal/notify"
	"moara/internal/testutil"
)

// fakeGateway records transfer calls and can be primed to fail.
type fakeGateway struct {
	mu    sync.Mutex
	calls int
	err   error
	reqs  []gateway.TransferRequest
}

func (g *fakeGateway) Transfer(_ context.Context, req gateway.TransferRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	g.reqs = append(g.reqs, req)
	if g.err != nil {
		return "", g.err
	}
	return fmt.Sprintf("EXT-%04d", g.calls), nil
}

func (g *fakeGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

type settlementHarness struct {
	db        *gorm.DB
	gw        *fakeGateway
	registry  *notify.Registry
	svc       SettlementServicer
	schedules ScheduleServicer

	user    string
	source  *models.Account
	savings *models.Account
	plan    *models.SavingsPlan
	item    *models.ScheduleItem
}

// newSettlementHarness wires a settlement pipeline over one plan with a
// single schedule item due yesterday.
func newSettlementHarness(t *testing.T, db *gorm.DB) *settlementHarness {
	t.Helper()

	gw := &fakeGateway{}
	registry := notify.NewRegistry()
	ledger := NewLedgerService(db)
	schedules := NewScheduleService(db, 15*time.Minute)
	svc := NewSettlementService(db, ledger, schedules, gw, registry)

	user := testutil.NewUserID()
	source := testutil.CreateTestAccount(t, db, user, testutil.KRW(500000))
	savings := testutil.CreateTestSavingsAccount(t, db, user)
	plan := testutil.CreateTestPlan(t, db, user, source, savings, testutil.KRW(100000))
	item := testutil.CreateTestScheduleItem(t, db, plan.ID, time.Now().UTC().AddDate(0, 0, -1), testutil.KRW(100000))

	return &settlementHarness{
		db:        db,
		gw:        gw,
		registry:  registry,
		svc:       svc,
		schedules: schedules,
		user:      user,
		source:    source,
		savings:   savings,
		plan:      plan,
		item:      item,
	}
}

func (h *settlementHarness) reloadItem(t *testing.T) *models.ScheduleItem {
	t.Helper()
	item, err := h.schedules.GetByID(h.item.ID)
	testutil.AssertNoError(t, err)
	return item
}

func (h *settlementHarness) entryCount(t *testing.T) int64 {
	t.Helper()
	var count int64
	testutil.AssertNoError(t, h.db.Model(&models.LedgerEntry{}).Count(&count).Error)
	return count
}

func TestExecuteOne(t *testing.T) {
	t.Run("settles_a_due_item", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		h := newSettlementHarness(t, db)

		events, removeListener := h.registry.Add(h.user)
		defer removeListener()

		testutil.AssertNoError(t, h.svc.ExecuteOne(context.Background(), h.item.ID))

		item := h.reloadItem(t)
		if item.Status != models.ScheduleStatusSuccess {
			t.Fatalf("expected SUCCESS, got %s", item.Status)
		}
		if item.ExternalID == "" {
			t.Error("expected external id on settled item")
		}

		record, err := h.svc.GetRecordForSchedule(h.item.ID)
		testutil.AssertNoError(t, err)
		if record.Status != models.SettlementStatusSuccess {
			t.Errorf("expected record SUCCESS, got %s", record.Status)
		}
		if record.CreditEntryID == nil {
			t.Error("expected record to link the credit entry")
		}

		if got := h.entryCount(t); got != 2 {
			t.Fatalf("expected a debit/credit pair, got %d entries", got)
		}

		var source, savings models.Account
		testutil.AssertNoError(t, db.First(&source, "id = ?", h.source.ID).Error)
		testutil.AssertNoError(t, db.First(&savings, "id = ?", h.savings.ID).Error)
		testutil.AssertAmount(t, source.Balance, testutil.KRW(400000))
		testutil.AssertAmount(t, savings.Balance, testutil.KRW(100000))

		if h.gw.callCount() != 1 {
			t.Errorf("expected exactly one gateway call, got %d", h.gw.callCount())
		}
		if h.gw.reqs[0].SourceRef != h.source.BankRef || h.gw.reqs[0].DestRef != h.savings.BankRef {
			t.Error("expected the gateway request to carry both bank refs")
		}

		select {
		case event := <-events:
			if event.Kind != notify.KindSettlementSuccess {
				t.Errorf("expected %s event, got %s", notify.KindSettlementSuccess, event.Kind)
			}
		default:
			t.Error("expected a settlement notification")
		}
	})

	t.Run("gateway_failure_marks_item_failed", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		h := newSettlementHarness(t, db)
		h.gw.err = fmt.Errorf("insufficient funds at bank")

		err := h.svc.ExecuteOne(context.Background(), h.item.ID)
		testutil.AssertAppError(t, err, "GATEWAY_FAILED")

		item := h.reloadItem(t)
		if item.Status != models.ScheduleStatusFailed {
			t.Fatalf("expected FAILED, got %s", item.Status)
		}
		if item.FailReason == "" {
			t.Error("expected fail reason on the item")
		}

		record, err := h.svc.GetRecordForSchedule(h.item.ID)
		testutil.AssertNoError(t, err)
		if record.Status != models.SettlementStatusFailed {
			t.Errorf("expected record FAILED, got %s", record.Status)
		}

		if got := h.entryCount(t); got != 0 {
			t.Errorf("expected no ledger entries after gateway failure, got %d", got)
		}

		var source models.Account
		testutil.AssertNoError(t, db.First(&source, "id = ?", h.source.ID).Error)
		testutil.AssertAmount(t, source.Balance, testutil.KRW(500000))
	})

	t.Run("inactive_savings_account_fails_before_gateway", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		h := newSettlementHarness(t, db)

		testutil.AssertNoError(t, db.Model(h.savings).Update("is_active", false).Error)

		err := h.svc.ExecuteOne(context.Background(), h.item.ID)
		testutil.AssertAppError(t, err, "ACCOUNT_INACTIVE")

		if h.gw.callCount() != 0 {
			t.Errorf("expected no gateway call, got %d", h.gw.callCount())
		}
		item := h.reloadItem(t)
		if item.Status != models.ScheduleStatusFailed {
			t.Fatalf("expected FAILED, got %s", item.Status)
		}
		if _, err := h.svc.GetRecordForSchedule(h.item.ID); err == nil {
			t.Error("expected no settlement record for a fail-fast item")
		}
		if got := h.entryCount(t); got != 0 {
			t.Errorf("expected no ledger entries, got %d", got)
		}
	})

	t.Run("limit_breach_fails_before_gateway", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		h := newSettlementHarness(t, db)

		testutil.AssertNoError(t, db.Model(h.source).Update("single_limit", testutil.KRW(50000)).Error)

		err := h.svc.ExecuteOne(context.Background(), h.item.ID)
		testutil.AssertAppError(t, err, "LIMIT_EXCEEDED")

		if h.gw.callCount() != 0 {
			t.Errorf("expected no gateway call, got %d", h.gw.callCount())
		}
		item := h.reloadItem(t)
		if item.Status != models.ScheduleStatusFailed {
			t.Fatalf("expected FAILED, got %s", item.Status)
		}
	})

	t.Run("re_execution_of_settled_item_is_a_noop", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		h := newSettlementHarness(t, db)

		testutil.AssertNoError(t, h.svc.ExecuteOne(context.Background(), h.item.ID))
		testutil.AssertNoError(t, h.svc.ExecuteOne(context.Background(), h.item.ID))

		if h.gw.callCount() != 1 {
			t.Errorf("expected one gateway call across replays, got %d", h.gw.callCount())
		}
		if got := h.entryCount(t); got != 2 {
			t.Errorf("expected 2 entries across replays, got %d", got)
		}
	})

	t.Run("successful_record_replays_without_second_gateway_call", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		h := newSettlementHarness(t, db)

		// A prior run that crashed after the record was finalized but before
		// the item was marked: the record is SUCCESS, the item still pending.
		record := &models.SettlementRecord{
			PlanID:         h.plan.ID,
			ScheduleItemID: h.item.ID,
			IdempotencyKey: settlementKey(h.item.ID),
			Status:         models.SettlementStatusSuccess,
			Amount:         h.item.Amount,
			ExternalID:     "EXT-PRIOR",
			RequestedAt:    time.Now().Add(-time.Hour),
		}
		testutil.AssertNoError(t, db.Create(record).Error)

		testutil.AssertNoError(t, h.svc.ExecuteOne(context.Background(), h.item.ID))

		if h.gw.callCount() != 0 {
			t.Errorf("expected no gateway call on replay, got %d", h.gw.callCount())
		}
		item := h.reloadItem(t)
		if item.Status != models.ScheduleStatusSuccess {
			t.Fatalf("expected SUCCESS, got %s", item.Status)
		}
		if item.ExternalID != "EXT-PRIOR" {
			t.Errorf("expected the recorded external id, got %s", item.ExternalID)
		}
	})

	t.Run("retry_after_bank_cleared_does_not_call_gateway_again", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		h := newSettlementHarness(t, db)

		// A prior run cleared the bank but died before the ledger pair landed:
		// the record is FAILED yet carries the external id, the item is FAILED.
		record := &models.SettlementRecord{
			PlanID:         h.plan.ID,
			ScheduleItemID: h.item.ID,
			IdempotencyKey: settlementKey(h.item.ID),
			Status:         models.SettlementStatusFailed,
			Amount:         h.item.Amount,
			ExternalID:     "EXT-CLEARED",
			FailReason:     "ledger write lost",
			RequestedAt:    time.Now().Add(-time.Hour),
		}
		testutil.AssertNoError(t, db.Create(record).Error)
		testutil.AssertNoError(t, db.Model(&models.ScheduleItem{}).Where("id = ?", h.item.ID).
			Updates(map[string]interface{}{
				"status":      models.ScheduleStatusFailed,
				"fail_reason": "ledger write lost",
			}).Error)

		_, err := h.schedules.Retry(h.item.ID)
		testutil.AssertNoError(t, err)
		testutil.AssertNoError(t, h.svc.ExecuteOne(context.Background(), h.item.ID))

		if h.gw.callCount() != 0 {
			t.Fatalf("expected no gateway call for money that already moved, got %d", h.gw.callCount())
		}
		item := h.reloadItem(t)
		if item.Status != models.ScheduleStatusSuccess {
			t.Fatalf("expected SUCCESS, got %s", item.Status)
		}
		if item.ExternalID != "EXT-CLEARED" {
			t.Errorf("expected the stored external id, got %s", item.ExternalID)
		}

		reloaded, err := h.svc.GetRecordForSchedule(h.item.ID)
		testutil.AssertNoError(t, err)
		if reloaded.Status != models.SettlementStatusSuccess {
			t.Errorf("expected record SUCCESS, got %s", reloaded.Status)
		}
		if got := h.entryCount(t); got != 2 {
			t.Errorf("expected the debit/credit pair to land, got %d entries", got)
		}

		var source, savings models.Account
		testutil.AssertNoError(t, db.First(&source, "id = ?", h.source.ID).Error)
		testutil.AssertNoError(t, db.First(&savings, "id = ?", h.savings.ID).Error)
		testutil.AssertAmount(t, source.Balance, testutil.KRW(400000))
		testutil.AssertAmount(t, savings.Balance, testutil.KRW(100000))
	})

	t.Run("unknown_item", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		h := newSettlementHarness(t, db)

		err := h.svc.ExecuteOne(context.Background(), "00000000-0000-0000-0000-000000000000")
		testutil.AssertAppError(t, err, "SCHEDULE_NOT_FOUND")
	})
}

func TestRunBatch(t *testing.T) {
	t.Run("settles_every_claimed_item", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		h := newSettlementHarness(t, db)

		now := time.Now().UTC()
		testutil.CreateTestScheduleItem(t, db, h.plan.ID, now.AddDate(0, 0, -2), testutil.KRW(100000))
		testutil.CreateTestScheduleItem(t, db, h.plan.ID, now.AddDate(0, 0, 30), testutil.KRW(100000))

		result, err := h.svc.RunBatch(context.Background(), now, 10)
		testutil.AssertNoError(t, err)

		if result.Claimed != 2 || result.Succeeded != 2 || result.Failed != 0 {
			t.Fatalf("expected 2/2/0, got claimed=%d succeeded=%d failed=%d",
				result.Claimed, result.Succeeded, result.Failed)
		}

		var source models.Account
		testutil.AssertNoError(t, db.First(&source, "id = ?", h.source.ID).Error)
		testutil.AssertAmount(t, source.Balance, testutil.KRW(300000))
	})

	t.Run("one_failure_does_not_stop_the_batch", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		h := newSettlementHarness(t, db)

		// A second plan pointing at an inactive savings account.
		otherSavings := testutil.CreateTestSavingsAccount(t, db, h.user)
		otherPlan := testutil.CreateTestPlan(t, db, h.user, h.source, otherSavings, testutil.KRW(50000))
		now := time.Now().UTC()
		badItem := testutil.CreateTestScheduleItem(t, db, otherPlan.ID, now.AddDate(0, 0, -2), testutil.KRW(50000))
		testutil.AssertNoError(t, db.Model(otherSavings).Update("is_active", false).Error)

		result, err := h.svc.RunBatch(context.Background(), now, 10)
		testutil.AssertNoError(t, err)

		if result.Claimed != 2 || result.Succeeded != 1 || result.Failed != 1 {
			t.Fatalf("expected 2/1/1, got claimed=%d succeeded=%d failed=%d",
				result.Claimed, result.Succeeded, result.Failed)
		}

		good := h.reloadItem(t)
		if good.Status != models.ScheduleStatusSuccess {
			t.Errorf("expected healthy item settled, got %s", good.Status)
		}
		bad, err := h.schedules.GetByID(badItem.ID)
		testutil.AssertNoError(t, err)
		if bad.Status != models.ScheduleStatusFailed {
			t.Errorf("expected bad item FAILED, got %s", bad.Status)
		}
	})

	t.Run("second_run_claims_nothing", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		h := newSettlementHarness(t, db)

		now := time.Now().UTC()
		first, err := h.svc.RunBatch(context.Background(), now, 10)
		testutil.AssertNoError(t, err)
		if first.Claimed != 1 {
			t.Fatalf("expected 1 claimed item, got %d", first.Claimed)
		}

		second, err := h.svc.RunBatch(context.Background(), now.Add(time.Minute), 10)
		testutil.AssertNoError(t, err)
		if second.Claimed != 0 {
			t.Fatalf("expected nothing left to claim, got %d", second.Claimed)
		}
	})
}

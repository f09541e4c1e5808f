package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"moara/internal/services"
)

// SettlementHandler exposes the operator surface of the settlement engine:
// manual batch runs, failed item retries, and settlement record inspection.
type SettlementHandler struct {
	settlementService services.SettlementServicer
	scheduleService   services.ScheduleServicer
	planService       services.PlanServicer
	batchSize         int
}

// NewSettlementHandler creates a new SettlementHandler.
func NewSettlementHandler(settlementService services.SettlementServicer, scheduleService services.ScheduleServicer, planService services.PlanServicer, batchSize int) *SettlementHandler {
	return &SettlementHandler{
		settlementService: settlementService,
		scheduleService:   scheduleService,
		planService:       planService,
		batchSize:         batchSize,
	}
}

// RunBatch triggers one settlement batch immediately, outside the cron
// schedule.
func (h *SettlementHandler) RunBatch(c *gin.Context) {
	result, err := h.settlementService.RunBatch(c.Request.Context(), time.Now(), h.batchSize)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"batch": result})
}

// RunAutoClose triggers the expired plan sweep immediately.
func (h *SettlementHandler) RunAutoClose(c *gin.Context) {
	closed, err := h.planService.CloseExpired(time.Now())
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"closed": closed})
}

// RetrySchedule resets a failed schedule item back to pending so the next
// batch picks it up again.
func (h *SettlementHandler) RetrySchedule(c *gin.Context) {
	scheduleID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	item, err := h.scheduleService.Retry(scheduleID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"schedule": item})
}

// GetSettlementRecord returns the settlement record behind a schedule item,
// including the gateway's external id for reconciliation.
func (h *SettlementHandler) GetSettlementRecord(c *gin.Context) {
	scheduleID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	if _, err := h.scheduleService.GetByID(scheduleID); err != nil {
		respondWithError(c, err)
		return
	}

	record, err := h.settlementService.GetRecordForSchedule(scheduleID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"settlement": record})
}

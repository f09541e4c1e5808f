package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "moara/internal/errors"
	"moara/internal/models"
	"moara/internal/pagination"
	"moara/internal/services"
)

// PlanHandler handles savings plan lifecycle requests.
type PlanHandler struct {
	planService services.PlanServicer
}

// NewPlanHandler creates a new PlanHandler.
func NewPlanHandler(planService services.PlanServicer) *PlanHandler {
	return &PlanHandler{planService: planService}
}

// CreatePlanRequest represents the request payload for creating a savings
// plan. Dates accept RFC3339 or YYYY-MM-DD; amounts are decimal strings.
type CreatePlanRequest struct {
	Name             string `json:"name" binding:"required,min=1,max=100"`
	SourceAccountID  string `json:"source_account_id" binding:"required"`
	SavingsAccountID string `json:"savings_account_id" binding:"required"`
	GoalAmount       string `json:"goal_amount" binding:"required"`
	AmountPerPeriod  string `json:"amount_per_period" binding:"required"`
	Cadence          string `json:"cadence" binding:"required,cadence"`
	DayOfMonth       *int   `json:"day_of_month" binding:"omitempty,min=1,max=31"`
	Weekday          *int   `json:"weekday" binding:"omitempty,min=0,max=6"`
	StartDate        string `json:"start_date" binding:"required"`
	EndDate          string `json:"end_date" binding:"required"`
}

// AmendPlanRequest represents the request payload for amending a plan. All
// fields are optional; set fields replace the plan's values and regenerate
// its future schedule.
type AmendPlanRequest struct {
	AmountPerPeriod *string `json:"amount_per_period"`
	GoalAmount      *string `json:"goal_amount"`
	EndDate         *string `json:"end_date"`
	Cadence         *string `json:"cadence" binding:"omitempty,cadence"`
	DayOfMonth      *int    `json:"day_of_month" binding:"omitempty,min=1,max=31"`
	Weekday         *int    `json:"weekday" binding:"omitempty,min=0,max=6"`
}

// CreatePlan handles the creation of a new savings plan and materializes its
// schedule.
func (h *PlanHandler) CreatePlan(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req CreatePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	goal, err := parseAmount(req.GoalAmount)
	if err != nil {
		respondWithError(c, err)
		return
	}
	perPeriod, err := parseAmount(req.AmountPerPeriod)
	if err != nil {
		respondWithError(c, err)
		return
	}
	start, err := parseDate(req.StartDate)
	if err != nil {
		respondWithError(c, err)
		return
	}
	end, err := parseDate(req.EndDate)
	if err != nil {
		respondWithError(c, err)
		return
	}

	plan, err := h.planService.CreatePlan(services.PlanInput{
		UserID:           userID,
		Name:             req.Name,
		SourceAccountID:  req.SourceAccountID,
		SavingsAccountID: req.SavingsAccountID,
		GoalAmount:       goal,
		AmountPerPeriod:  perPeriod,
		Cadence:          models.Cadence(req.Cadence),
		DayOfMonth:       req.DayOfMonth,
		Weekday:          req.Weekday,
		StartDate:        start,
		EndDate:          end,
	})
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"plan": plan})
}

// GetPlanByID handles the retrieval of a specific plan for a user.
func (h *PlanHandler) GetPlanByID(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	planID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	plan, err := h.planService.GetPlanByID(userID, planID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"plan": plan})
}

// AmendPlan handles amending a plan's terms and regenerating its pending
// schedule.
func (h *PlanHandler) AmendPlan(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	planID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req AmendPlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	fields := services.PlanAmendment{
		DayOfMonth: req.DayOfMonth,
		Weekday:    req.Weekday,
	}
	if req.Cadence != nil {
		cadence := models.Cadence(*req.Cadence)
		fields.Cadence = &cadence
	}
	if req.AmountPerPeriod != nil {
		amount, err := parseAmount(*req.AmountPerPeriod)
		if err != nil {
			respondWithError(c, err)
			return
		}
		fields.AmountPerPeriod = &amount
	}
	if req.GoalAmount != nil {
		goal, err := parseAmount(*req.GoalAmount)
		if err != nil {
			respondWithError(c, err)
			return
		}
		fields.GoalAmount = &goal
	}
	if req.EndDate != nil {
		end, err := parseDate(*req.EndDate)
		if err != nil {
			respondWithError(c, err)
			return
		}
		fields.EndDate = &end
	}

	plan, err := h.planService.AmendPlan(userID, planID, fields)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"plan": plan})
}

// DeactivatePlan handles closing a plan early.
func (h *PlanHandler) DeactivatePlan(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	planID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	if err := h.planService.DeactivatePlan(userID, planID); err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Plan deactivated"})
}

// ListSchedule handles the retrieval of a plan's schedule items in due date
// order.
func (h *PlanHandler) ListSchedule(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	planID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	var page pagination.PageRequest
	if err := c.ShouldBindQuery(&page); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	result, err := h.planService.ListSchedule(userID, planID, page)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

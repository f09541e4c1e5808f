package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "moara/internal/errors"
	"moara/internal/logger"
	"moara/internal/models"
	"moara/internal/pagination"
	"moara/internal/services"
	"moara/internal/validator"
)

// --- mock plan service ---

type mockPlanService struct {
	createPlanFn     func(input services.PlanInput) (*models.SavingsPlan, error)
	getPlanByIDFn    func(userID, planID string) (*models.SavingsPlan, error)
	amendPlanFn      func(userID, planID string, fields services.PlanAmendment) (*models.SavingsPlan, error)
	deactivatePlanFn func(userID, planID string) error
	listScheduleFn   func(userID, planID string, page pagination.PageRequest) (*pagination.PageResponse[models.ScheduleItem], error)
}

func (m *mockPlanService) CreatePlan(input services.PlanInput) (*models.SavingsPlan, error) {
	if m.createPlanFn != nil {
		return m.createPlanFn(input)
	}
	return &models.SavingsPlan{}, nil
}

func (m *mockPlanService) GetPlanByID(userID, planID string) (*models.SavingsPlan, error) {
	if m.getPlanByIDFn != nil {
		return m.getPlanByIDFn(userID, planID)
	}
	return &models.SavingsPlan{}, nil
}

func (m *mockPlanService) AmendPlan(userID, planID string, fields services.PlanAmendment) (*models.SavingsPlan, error) {
	if m.amendPlanFn != nil {
		return m.amendPlanFn(userID, planID, fields)
	}
	return &models.SavingsPlan{}, nil
}

func (m *mockPlanService) DeactivatePlan(userID, planID string) error {
	if m.deactivatePlanFn != nil {
		return m.deactivatePlanFn(userID, planID)
	}
	return nil
}

func (m *mockPlanService) ListSchedule(userID, planID string, page pagination.PageRequest) (*pagination.PageResponse[models.ScheduleItem], error) {
	if m.listScheduleFn != nil {
		return m.listScheduleFn(userID, planID, page)
	}
	resp := pagination.NewPageResponse([]models.ScheduleItem{}, 1, 20, 0)
	return &resp, nil
}

func (m *mockPlanService) CloseExpired(_ time.Time) (int, error) {
	return 0, nil
}

// verify interface compliance
var _ services.PlanServicer = (*mockPlanService)(nil)

// --- test helpers ---

const testUserID = "user-0190a1b2-0000-7000-8000-000000000001"
const testPlanID = "01909999-0000-7000-8000-000000000042"

func init() {
	gin.SetMode(gin.TestMode)
	logger.Init("test")
	validator.Register()
}

func setupPlanRouter(handler *PlanHandler) *gin.Engine {
	r := gin.New()
	r.POST("/plans", handler.CreatePlan)
	r.GET("/plans/:id", handler.GetPlanByID)
	r.PATCH("/plans/:id", handler.AmendPlan)
	r.DELETE("/plans/:id", handler.DeactivatePlan)
	r.GET("/plans/:id/schedule", handler.ListSchedule)
	return r
}

func doRequest(r *gin.Engine, method, path, body, userID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func parseJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var result map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nbody: %s", err, rec.Body.String())
	}
	return result
}

func assertErrorCode(t *testing.T, result map[string]interface{}, code string) {
	t.Helper()
	errObj, ok := result["error"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected error object in response, got: %v", result)
	}
	if errObj["code"] != code {
		t.Errorf("expected error code %q, got %q", code, errObj["code"])
	}
}

// --- tests ---

func TestPlanHandler_CreatePlan(t *testing.T) {
	validBody := `{
		"name": "Jeju trip",
		"source_account_id": "01909999-0000-7000-8000-000000000001",
		"savings_account_id": "01909999-0000-7000-8000-000000000002",
		"goal_amount": "1200000",
		"amount_per_period": "100000",
		"cadence": "monthly",
		"day_of_month": 15,
		"start_date": "2026-01-01",
		"end_date": "2026-07-01"
	}`

	t.Run("returns 201 on success", func(t *testing.T) {
		planSvc := &mockPlanService{
			createPlanFn: func(input services.PlanInput) (*models.SavingsPlan, error) {
				if input.UserID != testUserID {
					t.Errorf("expected user %s, got %s", testUserID, input.UserID)
				}
				if !input.AmountPerPeriod.Equal(input.AmountPerPeriod.Round(2)) {
					t.Error("expected amount normalized to 2dp")
				}
				return &models.SavingsPlan{
					Name:     input.Name,
					Cadence:  input.Cadence,
					IsActive: true,
				}, nil
			},
		}
		r := setupPlanRouter(NewPlanHandler(planSvc))

		rec := doRequest(r, "POST", "/plans", validBody, testUserID)
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}
		result := parseJSON(t, rec)
		plan := result["plan"].(map[string]interface{})
		if plan["name"] != "Jeju trip" {
			t.Errorf("expected plan name in response, got %v", plan["name"])
		}
	})

	t.Run("returns 401 without user header", func(t *testing.T) {
		r := setupPlanRouter(NewPlanHandler(&mockPlanService{}))

		rec := doRequest(r, "POST", "/plans", validBody, "")
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
		assertErrorCode(t, parseJSON(t, rec), "UNAUTHORIZED")
	})

	t.Run("returns 400 on unknown cadence", func(t *testing.T) {
		r := setupPlanRouter(NewPlanHandler(&mockPlanService{}))

		body := strings.Replace(validBody, `"monthly"`, `"fortnightly"`, 1)
		rec := doRequest(r, "POST", "/plans", body, testUserID)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
		}
		assertErrorCode(t, parseJSON(t, rec), "INVALID_INPUT")
	})

	t.Run("returns 400 on malformed amount", func(t *testing.T) {
		r := setupPlanRouter(NewPlanHandler(&mockPlanService{}))

		body := strings.Replace(validBody, `"100000"`, `"a lot"`, 1)
		rec := doRequest(r, "POST", "/plans", body, testUserID)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
		}
		assertErrorCode(t, parseJSON(t, rec), "INVALID_AMOUNT")
	})

	t.Run("propagates service errors", func(t *testing.T) {
		planSvc := &mockPlanService{
			createPlanFn: func(_ services.PlanInput) (*models.SavingsPlan, error) {
				return nil, apperrors.ErrAccountNotFound
			},
		}
		r := setupPlanRouter(NewPlanHandler(planSvc))

		rec := doRequest(r, "POST", "/plans", validBody, testUserID)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rec.Code)
		}
		assertErrorCode(t, parseJSON(t, rec), "ACCOUNT_NOT_FOUND")
	})
}

func TestPlanHandler_AmendPlan(t *testing.T) {
	t.Run("returns 200 and passes parsed fields", func(t *testing.T) {
		planSvc := &mockPlanService{
			amendPlanFn: func(userID, planID string, fields services.PlanAmendment) (*models.SavingsPlan, error) {
				if planID != testPlanID {
					t.Errorf("expected plan id %s, got %s", testPlanID, planID)
				}
				if fields.AmountPerPeriod == nil || !fields.AmountPerPeriod.Equal(fields.AmountPerPeriod.Round(2)) {
					t.Error("expected amount_per_period to be set")
				}
				if fields.EndDate == nil {
					t.Error("expected end_date to be set")
				}
				if fields.Cadence == nil || *fields.Cadence != models.CadenceWeekly {
					t.Error("expected cadence to be set to weekly")
				}
				if fields.Weekday == nil || *fields.Weekday != 5 {
					t.Error("expected weekday to be set")
				}
				return &models.SavingsPlan{IsActive: true}, nil
			},
		}
		r := setupPlanRouter(NewPlanHandler(planSvc))

		rec := doRequest(r, "PATCH", "/plans/"+testPlanID,
			`{"amount_per_period":"150000","end_date":"2027-01-01","cadence":"weekly","weekday":5}`, testUserID)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("returns 400 on invalid plan id", func(t *testing.T) {
		r := setupPlanRouter(NewPlanHandler(&mockPlanService{}))

		rec := doRequest(r, "PATCH", "/plans/not-a-uuid", `{}`, testUserID)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("returns 400 when plan is inactive", func(t *testing.T) {
		planSvc := &mockPlanService{
			amendPlanFn: func(_, _ string, _ services.PlanAmendment) (*models.SavingsPlan, error) {
				return nil, apperrors.ErrPlanInactive
			},
		}
		r := setupPlanRouter(NewPlanHandler(planSvc))

		rec := doRequest(r, "PATCH", "/plans/"+testPlanID, `{"goal_amount":"1"}`, testUserID)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
		assertErrorCode(t, parseJSON(t, rec), "PLAN_INACTIVE")
	})
}

func TestPlanHandler_ListSchedule(t *testing.T) {
	t.Run("returns paginated schedule", func(t *testing.T) {
		planSvc := &mockPlanService{
			listScheduleFn: func(_, _ string, page pagination.PageRequest) (*pagination.PageResponse[models.ScheduleItem], error) {
				items := []models.ScheduleItem{
					{Status: models.ScheduleStatusPending},
					{Status: models.ScheduleStatusSuccess},
				}
				resp := pagination.NewPageResponse(items, 1, 20, 2)
				return &resp, nil
			},
		}
		r := setupPlanRouter(NewPlanHandler(planSvc))

		rec := doRequest(r, "GET", "/plans/"+testPlanID+"/schedule", "", testUserID)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		result := parseJSON(t, rec)
		data := result["data"].([]interface{})
		if len(data) != 2 {
			t.Errorf("expected 2 items, got %d", len(data))
		}
	})

	t.Run("returns 404 for someone else's plan", func(t *testing.T) {
		planSvc := &mockPlanService{
			listScheduleFn: func(_, _ string, _ pagination.PageRequest) (*pagination.PageResponse[models.ScheduleItem], error) {
				return nil, apperrors.ErrPlanNotFound
			},
		}
		r := setupPlanRouter(NewPlanHandler(planSvc))

		rec := doRequest(r, "GET", "/plans/"+testPlanID+"/schedule", "", testUserID)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rec.Code)
		}
	})
}

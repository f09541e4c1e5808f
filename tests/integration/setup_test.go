package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"moara/internal/gateway"
	"moara/internal/handlers"
	"moara/internal/logger"
	"moara/internal/middleware"
	"moara/internal/models"
	"moara/internal/notify"
	"moara/internal/services"
	"moara/internal/validator"
)

const operatorKey = "test-operator-key"

// testApp holds the full application stack for integration tests.
type testApp struct {
	DB      *gorm.DB
	Router  *gin.Engine
	Gateway *stubGateway
	Ledger  services.LedgerServicer
}

// stubGateway approves every transfer and counts calls.
type stubGateway struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (g *stubGateway) Transfer(_ context.Context, _ gateway.TransferRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.err != nil {
		return "", g.err
	}
	return fmt.Sprintf("BANK-%06d", g.calls), nil
}

func (g *stubGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

// dbCounter ensures each test gets a unique in-memory database.
var dbCounter atomic.Int64

func init() {
	gin.SetMode(gin.TestMode)
	logger.Init("test")
	validator.Register()
}

// setupIsolatedDB creates an isolated in-memory SQLite database for a single test.
func setupIsolatedDB(t *testing.T) *gorm.DB {
	t.Helper()

	n := dbCounter.Add(1)
	dsn := fmt.Sprintf("file:moara_itest%d?mode=memory&cache=shared", n)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	allModels := []interface{}{
		&models.Account{},
		&models.LedgerEntry{},
		&models.SavingsPlan{},
		&models.ScheduleItem{},
		&models.SettlementRecord{},
	}
	if err := db.AutoMigrate(allModels...); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	return db
}

// setupApp creates a full application stack backed by an isolated in-memory SQLite.
func setupApp(t *testing.T) *testApp {
	t.Helper()

	db := setupIsolatedDB(t)
	gw := &stubGateway{}
	registry := notify.NewRegistry()

	// Services
	ledgerService := services.NewLedgerService(db)
	accountService := services.NewAccountService(db)
	scheduleService := services.NewScheduleService(db, 15*time.Minute)
	settlementService := services.NewSettlementService(db, ledgerService, scheduleService, gw, registry)
	planService := services.NewPlanService(db, accountService, scheduleService, registry)

	// Handlers
	accountHandler := handlers.NewAccountHandler(accountService, ledgerService)
	planHandler := handlers.NewPlanHandler(planService)
	settlementHandler := handlers.NewSettlementHandler(settlementService, scheduleService, planService, 100)

	// Router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.ErrorHandler())

	v1 := router.Group("/api/v1")

	accounts := v1.Group("/accounts")
	accounts.POST("", accountHandler.CreateAccount)
	accounts.GET("", accountHandler.GetUserAccounts)
	accounts.GET("/:id", accountHandler.GetAccountByID)
	accounts.GET("/:id/entries", accountHandler.GetAccountEntries)
	accounts.DELETE("/:id", accountHandler.DeactivateAccount)

	v1.POST("/transfers", accountHandler.Transfer)

	plans := v1.Group("/plans")
	plans.POST("", planHandler.CreatePlan)
	plans.GET("/:id", planHandler.GetPlanByID)
	plans.PATCH("/:id", planHandler.AmendPlan)
	plans.DELETE("/:id", planHandler.DeactivatePlan)
	plans.GET("/:id/schedule", planHandler.ListSchedule)

	operator := v1.Group("/operator")
	operator.Use(middleware.OperatorAuthMiddleware(operatorKey))
	operator.POST("/settlements/run", settlementHandler.RunBatch)
	operator.POST("/plans/close-expired", settlementHandler.RunAutoClose)
	operator.POST("/schedules/:id/retry", settlementHandler.RetrySchedule)
	operator.GET("/schedules/:id/settlement", settlementHandler.GetSettlementRecord)

	return &testApp{DB: db, Router: router, Gateway: gw, Ledger: ledgerService}
}

// request makes an HTTP request to the test router as the given user.
func (app *testApp) request(method, path, body, userID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	rec := httptest.NewRecorder()
	app.Router.ServeHTTP(rec, req)
	return rec
}

// operatorRequest makes a request carrying the operator API key.
func (app *testApp) operatorRequest(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", operatorKey)
	rec := httptest.NewRecorder()
	app.Router.ServeHTTP(rec, req)
	return rec
}

// parseJSON parses the response body into a map.
func parseJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var result map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, rec.Body.String())
	}
	return result
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"moara/internal/config"
	"moara/internal/database"
	"moara/internal/gateway"
	"moara/internal/handlers"
	"moara/internal/jobs"
	"moara/internal/logger"
	"moara/internal/middleware"
	"moara/internal/notify"
	"moara/internal/scheduler"
	"moara/internal/services"
	"moara/internal/validator"
)

func main() {
	// Initialize logger (use ENV var if available, default to development)
	logger.Init(os.Getenv("ENV"))
	defer logger.Sync()

	if err := run(); err != nil {
		logger.Get().Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	log := logger.Get()

	// Load configuration
	appConfig, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Initialize database configuration
	dbConfig, err := database.NewConfig()
	if err != nil {
		return fmt.Errorf("failed to load database configuration: %w", err)
	}

	// Create database manager
	dbManager, err := database.NewManager(dbConfig)
	if err != nil {
		return fmt.Errorf("failed to create database manager: %w", err)
	}

	// Run migrations
	if err := dbManager.RunMigrations(); err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}

	// Register custom request validators
	validator.Register()

	// Initialize services
	db := dbManager.DB()
	registry := notify.NewRegistry()
	gatewayClient := gateway.NewClient(appConfig.GatewayBaseURL, appConfig.GatewayAPIKey, appConfig.GatewayTimeout, nil)

	ledgerService := services.NewLedgerService(db)
	accountService := services.NewAccountService(db)
	scheduleService := services.NewScheduleService(db, appConfig.StaleClaimAge)
	settlementService := services.NewSettlementService(db, ledgerService, scheduleService, gatewayClient, registry)
	planService := services.NewPlanService(db, accountService, scheduleService, registry)

	// Initialize handlers
	accountHandler := handlers.NewAccountHandler(accountService, ledgerService)
	planHandler := handlers.NewPlanHandler(planService)
	settlementHandler := handlers.NewSettlementHandler(settlementService, scheduleService, planService, appConfig.SettlementBatch)
	eventHandler := handlers.NewEventHandler(registry)

	// Initialize Gin router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogging())
	router.Use(middleware.ErrorHandler())

	// Health check endpoint
	router.GET("/api/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// API v1 group
	v1 := router.Group("/api/v1")

	// Account routes
	accounts := v1.Group("/accounts")
	accounts.POST("", accountHandler.CreateAccount)
	accounts.GET("", accountHandler.GetUserAccounts)
	accounts.GET("/:id", accountHandler.GetAccountByID)
	accounts.GET("/:id/entries", accountHandler.GetAccountEntries)
	accounts.DELETE("/:id", accountHandler.DeactivateAccount)

	// Manual transfers
	v1.POST("/transfers", accountHandler.Transfer)

	// Savings plan routes
	plans := v1.Group("/plans")
	plans.POST("", planHandler.CreatePlan)
	plans.GET("/:id", planHandler.GetPlanByID)
	plans.PATCH("/:id", planHandler.AmendPlan)
	plans.DELETE("/:id", planHandler.DeactivatePlan)
	plans.GET("/:id/schedule", planHandler.ListSchedule)

	// Notification stream
	v1.GET("/events", eventHandler.Stream)

	// Operator routes
	operator := v1.Group("/operator")
	operator.Use(middleware.OperatorAuthMiddleware(appConfig.OperatorAPIKey))
	operator.POST("/settlements/run", settlementHandler.RunBatch)
	operator.POST("/plans/close-expired", settlementHandler.RunAutoClose)
	operator.POST("/schedules/:id/retry", settlementHandler.RetrySchedule)
	operator.GET("/schedules/:id/settlement", settlementHandler.GetSettlementRecord)

	// Background jobs
	sched := scheduler.New()
	if err := sched.AddJob(appConfig.SettlementSchedule, jobs.NewSettlementBatchJob(settlementService, appConfig.SettlementBatch)); err != nil {
		return fmt.Errorf("failed to register settlement job: %w", err)
	}
	if err := sched.AddJob(appConfig.AutoCloseSchedule, jobs.NewAutoCloseJob(planService)); err != nil {
		return fmt.Errorf("failed to register auto-close job: %w", err)
	}
	sched.Start()
	defer sched.Stop()

	server := &http.Server{
		Addr:    ":" + appConfig.Port,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("Starting moara backend server on port %s", appConfig.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		log.Infof("Received %s, shutting down", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("Server stopped")
	return nil
}

package handler

import (
	"github.com/MihaCh13/PaySafe--Hackathon/internal/adapter/http/middleware"
	redisStore "github.com/MihaCh13/PaySafe--Hackathon/internal/adapter/storage/redis"
	"github.com/MihaCh13/PaySafe--Hackathon/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	AccountSvc      ports.AccountService
	TransferSvc     ports.TransferService
	EscrowSvc       ports.EscrowService
	BudgetSvc       ports.BudgetService
	LoanSvc         ports.LoanService
	SubscriptionSvc ports.SubscriptionService
	ReportingSvc    ports.ReportingService
	TokenSvc        ports.TokenService
	RateLimitStore  *redisStore.RateLimitStore // nil = rate limiting disabled
	HealthCheckers  []ports.HealthChecker
	TokenMint       bool // mounts POST /auth/token; keep off in production
	Logger          zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(1 << 20)) // 1 MB request body limit

	// Health check (deep: verifies PostgreSQL + Redis)
	r.GET("/health", HealthCheck(deps.HealthCheckers...))

	// Swagger documentation
	swagger := r.Group("/swagger")
	{
		swagger.GET("", SwaggerUI)
		swagger.GET("/spec", SwaggerSpec)
	}

	// Rate limit rules
	rules := middleware.DefaultRateLimitRules()

	// Helper: return rate limiter middleware if store is available, else noop.
	rl := func(group string) gin.HandlerFunc {
		if deps.RateLimitStore == nil {
			return func(c *gin.Context) { c.Next() }
		}
		rule, ok := rules[group]
		if !ok {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimitStore, group, rule, deps.Logger)
	}

	// API v1 routes
	v1 := r.Group("/api/v1")

	// --- Public routes (no auth) ---
	if deps.TokenMint {
		authHandler := NewAuthHandler(deps.TokenSvc)
		auth := v1.Group("/auth")
		{
			auth.POST("/token", rl("auth_token"), authHandler.IssueToken)
		}
	}

	// --- JWT-authenticated routes ---
	jwtAuth := middleware.JWTAuth(deps.TokenSvc, deps.Logger)

	accountHandler := NewAccountHandler(deps.AccountSvc, deps.ReportingSvc)
	transferHandler := NewTransferHandler(deps.TransferSvc)
	escrowHandler := NewEscrowHandler(deps.EscrowSvc)
	budgetHandler := NewBudgetHandler(deps.BudgetSvc, deps.AccountSvc)
	loanHandler := NewLoanHandler(deps.LoanSvc)
	subscriptionHandler := NewSubscriptionHandler(deps.SubscriptionSvc)
	opsHandler := NewOpsHandler(deps.ReportingSvc)

	accounts := v1.Group("/accounts", jwtAuth)
	{
		accounts.POST("/wallets", rl("accounts"), accountHandler.OpenWallet)
		accounts.POST("/budget-cards", rl("accounts"), accountHandler.OpenBudgetCard)
		accounts.GET("", rl("accounts"), accountHandler.List)
		accounts.GET("/:id", rl("accounts"), accountHandler.Get)
		accounts.POST("/:id/freeze", rl("accounts"), accountHandler.Freeze)
		accounts.POST("/:id/unfreeze", rl("accounts"), accountHandler.Unfreeze)
		accounts.POST("/:id/close", rl("accounts"), accountHandler.Close)
		accounts.GET("/:id/balance", rl("reports"), accountHandler.GetBalance)
		accounts.GET("/:id/statement", rl("reports"), accountHandler.GetStatement)
		accounts.GET("/:id/stats", rl("reports"), accountHandler.GetStats)
	}

	transfers := v1.Group("/transfers", jwtAuth)
	{
		transfers.POST("", rl("transfers"), transferHandler.Transfer)
	}

	wallets := v1.Group("/wallets", jwtAuth)
	{
		wallets.POST("/topup", rl("topup"), transferHandler.Topup)
		wallets.POST("/withdraw", rl("withdraw"), transferHandler.Withdraw)
	}

	escrow := v1.Group("/escrow/orders", jwtAuth)
	{
		escrow.POST("", rl("escrow"), escrowHandler.CreateOrder)
		escrow.GET("", rl("escrow"), escrowHandler.ListOrders)
		escrow.GET("/:id", rl("escrow"), escrowHandler.GetOrder)
		escrow.POST("/:id/release", rl("escrow"), escrowHandler.Release)
		escrow.POST("/:id/refund", rl("escrow"), escrowHandler.Refund)
	}

	budget := v1.Group("/budget", jwtAuth)
	{
		budget.POST("/allocate", rl("budget"), budgetHandler.Allocate)
		budget.POST("/spend", rl("budget"), budgetHandler.Spend)
		budget.GET("/cards/:id/can-spend", rl("budget"), budgetHandler.CanSpend)
	}

	loans := v1.Group("/loans", jwtAuth)
	{
		loans.POST("", rl("loans"), loanHandler.Disburse)
		loans.GET("", rl("loans"), loanHandler.List)
		loans.GET("/:id", rl("loans"), loanHandler.Get)
		loans.POST("/:id/repay", rl("loans"), loanHandler.Repay)
	}

	subscriptions := v1.Group("/subscriptions", jwtAuth)
	{
		subscriptions.POST("", rl("subscriptions"), subscriptionHandler.Create)
		subscriptions.GET("", rl("subscriptions"), subscriptionHandler.List)
		subscriptions.DELETE("/:id", rl("subscriptions"), subscriptionHandler.Cancel)
		subscriptions.POST("/sync", rl("ops"), subscriptionHandler.Sync)
		subscriptions.POST("/run-due", rl("ops"), subscriptionHandler.RunDue)
	}

	// --- Operator endpoints (JWT-authenticated) ---
	ops := v1.Group("/ops", jwtAuth)
	{
		ops.GET("/accounts/:id/reconcile", rl("ops"), opsHandler.Reconcile)
		ops.GET("/conservation", rl("ops"), opsHandler.Conservation)
	}

	return r
}

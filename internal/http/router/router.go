package router

import (
	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/homemaster-backend/internal/config"
	"github.com/ignatzorin/homemaster-backend/internal/http/handlers"
	"github.com/ignatzorin/homemaster-backend/internal/http/middleware"
	"github.com/ignatzorin/homemaster-backend/internal/service"
)

// Handlers все обработчики, участвующие в маршрутизации.
type Handlers struct {
	Jobs       *handlers.JobHandler
	Providers  *handlers.ProviderHandler
	Settlement *handlers.SettlementHandler
	Admin      *handlers.AdminHandler
	Media      *handlers.MediaHandler
	Health     *handlers.HealthHandler
	WS         *handlers.WSHandler
}

// New собирает gin-роутер со всеми маршрутами и middleware.
func New(cfg *config.Config, tokens *service.TokenManager, h Handlers) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))

	r.GET("/health", h.Health.Check)
	r.GET("/ws/:userId", h.WS.Subscribe)
	r.Static("/media", cfg.MediaStoragePath)

	api := r.Group("/api")
	{
		api.POST("/jobs", h.Jobs.CreateJob)
		api.GET("/jobs/:id", h.Jobs.GetJob)
		api.POST("/jobs/:id/bids",
			middleware.RateLimitMiddleware(cfg.RateLimitLimit, cfg.RateLimitPeriod),
			h.Jobs.SubmitBid)
		api.GET("/jobs/:id/offers", h.Jobs.ListOffers)
		api.POST("/jobs/:id/offers/:offerId/accept", h.Jobs.AcceptOffer)
		api.PATCH("/jobs/:id/status", h.Jobs.UpdateStatus)
		api.POST("/jobs/:id/cancel", h.Jobs.Cancel)
		api.POST("/jobs/:id/breadcrumbs", h.Jobs.AppendBreadcrumb)
		api.POST("/jobs/:id/media", h.Media.Upload)

		api.GET("/clients/:id/jobs", h.Jobs.ListClientJobs)

		api.POST("/providers", h.Providers.CreateProvider)
		api.GET("/providers/:id", h.Providers.GetProvider)
		api.GET("/providers/:id/feed", h.Providers.Feed)

		api.POST("/match/score",
			middleware.DebugTokenMiddleware(cfg.Env, cfg.DebugToken),
			h.Providers.Score)
	}

	// checkout: публичный contract платёжного шлюза
	r.GET("/setup", h.Settlement.Setup)
	r.POST("/order", h.Settlement.CreateOrder)
	r.POST("/order/:orderID/capture", h.Settlement.CaptureOrder)

	admin := r.Group("/admin")
	{
		admin.POST("/login",
			middleware.RateLimitMiddleware(cfg.RateLimitLimit, cfg.RateLimitPeriod),
			h.Admin.Login)

		authed := admin.Group("")
		authed.Use(middleware.AdminAuthMiddleware(tokens))
		{
			authed.GET("/transactions", h.Admin.ListTransactions)
			authed.GET("/transactions/:transactionId", h.Admin.GetTransaction)
			authed.GET("/transactions/:transactionId/paypal-order", h.Admin.GetPaypalOrder)
			authed.GET("/transactions/:transactionId/payout-status", h.Admin.GetPayoutStatus)
			authed.POST("/refund/:transactionId", h.Admin.Refund)
			authed.POST("/payout/:transactionId", h.Admin.Payout)
			authed.POST("/payouts/sweep", h.Admin.RunPayoutSweep)
		}
	}

	return r
}

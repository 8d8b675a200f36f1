package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sekolahku/settlement-backend/api/controllers"
	"github.com/sekolahku/settlement-backend/api/middleware"
	"github.com/sekolahku/settlement-backend/internal/directory"
	"github.com/sekolahku/settlement-backend/internal/gateway"
	"github.com/sekolahku/settlement-backend/internal/orders"
	"github.com/sekolahku/settlement-backend/internal/recon"
	"github.com/sekolahku/settlement-backend/internal/requests"
	"github.com/sekolahku/settlement-backend/internal/settlement"
	"github.com/sekolahku/settlement-backend/pkg/config"
	"github.com/sekolahku/settlement-backend/pkg/db"
	"github.com/sekolahku/settlement-backend/pkg/logger"
	"github.com/sekolahku/settlement-backend/pkg/redis"
)

// RouterParams carry everything the HTTP surface depends on.
type RouterParams struct {
	Config        *config.Config
	Logger        *logger.Logger
	DB            db.Pinger
	Redis         *redis.Client
	Directory     directory.Service
	Orders        orders.Service
	Requests      requests.Service
	Settlement    settlement.Service
	Channels      *gateway.Registry
	CallbackGuard *gateway.IdempotencyGuard
	Recon         *recon.SnapshotJob
}

func NewRouter(params RouterParams) http.Handler {
	cfg := params.Config
	logg := params.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
		middleware.Identity(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, params.DB, params.Redis))
	})

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		var limiter middleware.RateLimiter
		if params.Redis != nil {
			limiter = params.Redis
		}
		r.Use(middleware.Throttle("pay-callbacks", cfg.Gateway.CallbackRateLimit, cfg.Gateway.CallbackRateWindow, limiter, logg))
		r.Post("/pay/{channel}", controllers.PaymentCallback(params.Settlement, params.Channels, params.CallbackGuard, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/orders", func(r chi.Router) {
			r.Post("/", controllers.CreateOrder(params.Orders, params.Directory, cfg, logg))
			r.Get("/{orderId}", controllers.GetOrder(params.Orders, logg))
			r.Post("/{orderId}/cancel", controllers.CancelOrder(params.Orders, logg))
		})
		r.Route("/payments", func(r chi.Router) {
			r.Post("/", controllers.CreatePayment(params.Settlement, logg))
			r.Get("/{paymentId}", controllers.GetPayment(params.Settlement, logg))
		})
		r.Get("/payment-requests", controllers.ListMyRequests(params.Requests, logg))
	})

	r.Route("/api/v1/admin", func(r chi.Router) {
		r.Use(middleware.RequireRole(middleware.RoleAdmin, logg))
		r.Post("/payments/cash/actions", controllers.ApplyCashAction(params.Settlement, params.Channels, params.CallbackGuard, logg))
		r.Post("/class-requests", controllers.CreateClassCampaign(params.Requests, cfg, logg))
		r.Get("/class-requests/{campaignId}", controllers.GetClassCampaign(params.Requests, logg))
		r.Post("/reconciliation/run", controllers.RunReconciliation(params.Recon, logg))
	})

	return r
}

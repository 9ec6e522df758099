package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/agromarket-backend/api/controllers"
	"github.com/angelmondragon/agromarket-backend/api/middleware"
	"github.com/angelmondragon/agromarket-backend/internal/checkout"
	"github.com/angelmondragon/agromarket-backend/internal/payments"
	"github.com/angelmondragon/agromarket-backend/pkg/config"
	"github.com/angelmondragon/agromarket-backend/pkg/db"
	"github.com/angelmondragon/agromarket-backend/pkg/logger"
	"github.com/angelmondragon/agromarket-backend/pkg/redis"
)

// Dependencies are the collaborators the HTTP surface is built from.
type Dependencies struct {
	Config     *config.Config
	Logger     *logger.Logger
	DB         db.Pinger
	Redis      redis.Pinger
	Checkout   checkout.Service
	Reconciler controllers.CallbackReconciler
	Payments   payments.Repository
	Registry   controllers.NotificationRegistry
	Gatherer   prometheus.Gatherer
}

func NewRouter(deps Dependencies) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.URLs.FrontendURL, cfg.App.IsDev()),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.DB, deps.Redis))
	})

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	auth := middleware.Auth(cfg.JWT, logg)

	r.Route("/api/payment", func(r chi.Router) {
		r.With(auth).Post("/init", controllers.PaymentInit(deps.Checkout, logg))

		// Gateway callbacks arrive both as browser redirects (GET) and form posts.
		success := controllers.PaymentSuccess(deps.Reconciler, cfg.URLs.FrontendURL, logg)
		fail := controllers.PaymentFail(deps.Reconciler, cfg.URLs.FrontendURL, logg)
		cancel := controllers.PaymentCancel(deps.Reconciler, cfg.URLs.FrontendURL, logg)
		r.Get("/success", success)
		r.Post("/success", success)
		r.Get("/fail", fail)
		r.Post("/fail", fail)
		r.Get("/cancel", cancel)
		r.Post("/cancel", cancel)
		r.Post("/ipn", controllers.PaymentIPN(deps.Reconciler, logg))

		r.With(auth).Get("/verify/{transactionId}", controllers.PaymentVerify(deps.Payments, logg))
		r.Get("/status/{tran_id}", controllers.PaymentStatus(deps.Payments, logg))
	})

	r.Route("/api/notifications", func(r chi.Router) {
		r.Use(auth)
		r.Get("/stream", controllers.NotificationStream(deps.Registry, logg))
	})

	return r
}

package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/trialsignup/signup/internal/application/billing"
	"github.com/trialsignup/signup/internal/application/phoneverify"
	"github.com/trialsignup/signup/internal/application/reconcile"
	"github.com/trialsignup/signup/internal/application/verification"
	"github.com/trialsignup/signup/internal/config"
	"github.com/trialsignup/signup/internal/transport/http/handler"
	appmiddleware "github.com/trialsignup/signup/internal/transport/http/middleware"
)

// NewRouter builds and returns the application router.
func NewRouter(cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Each route gets its own per-IP bucket. Validation runs on debounced
	// keystrokes; provisioning and SMS are far rarer.
	limit := func(perSecond rate.Limit, burst int) func(http.Handler) http.Handler {
		return appmiddleware.NewRateLimiter(perSecond, burst, cfg.TrustedProxies).Limit
	}

	billingSvc := billing.NewService(billing.ServiceDeps{
		Provider: deps.Billing,
		Offer:    cfg.Offer,
		Metrics:  deps.Metrics,
	})
	verifySvc := verification.NewService(verification.ServiceDeps{
		Email:   deps.Email,
		Phone:   deps.Phone,
		Cache:   deps.VerdictCache,
		Metrics: deps.Metrics,
	})
	phoneSvc := phoneverify.NewService(deps.PhoneVerifier)
	reconciler := reconcile.NewReconciler(reconcile.ReconcilerDeps{
		Parse:    deps.EventParser,
		Secret:   cfg.StripeWebhookSecret,
		Ledger:   deps.WebhookLedger,
		Queue:    deps.SyncQueue,
		EventTTL: cfg.WebhookEventTTL,
		Metrics:  deps.Metrics,
	})

	healthH := handler.NewHealthHandler(deps.Readiness)
	billingH := handler.NewBillingHandler(billingSvc, deps.HandoffSigner)
	verifyH := handler.NewVerificationHandler(verifySvc)
	phoneH := handler.NewPhoneVerifyHandler(phoneSvc)
	webhookH := handler.NewWebhookHandler(reconciler)

	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/v1", func(r chi.Router) {
		r.Get("/health-check/{action}", healthH.Ping)
		r.Get("/offer", billingH.Offer)

		r.With(limit(10, 20)).Post("/validate/email", verifyH.ValidateEmail)
		r.With(limit(10, 20)).Post("/validate/phone", verifyH.ValidatePhone)
		r.With(limit(0.2, 3)).Post("/phone-verification/{action:request}", phoneH.Action)
		r.With(limit(1, 5)).Post("/phone-verification/{action:validate-code}", phoneH.Action)

		r.With(limit(5, 10)).Post("/customers", billingH.EnsureCustomer)
		r.With(limit(5, 10)).Post("/setup-intents", billingH.CreateSetupIntent)
		r.With(limit(5, 10)).Post("/setup-intents/confirm", billingH.ConfirmSetup)
		r.With(limit(5, 10)).Post("/setup-intents/status", billingH.SetupStatus)
		r.With(limit(5, 10)).Post("/trials", billingH.StartTrial)

		r.Post("/webhooks/billing", webhookH.Billing)
	})

	return r
}

package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dstarsfitness/dstars-backend/api/controllers"
	"github.com/dstarsfitness/dstars-backend/api/middleware"
	"github.com/dstarsfitness/dstars-backend/internal/accounts"
	"github.com/dstarsfitness/dstars-backend/internal/billing"
	"github.com/dstarsfitness/dstars-backend/internal/members"
	"github.com/dstarsfitness/dstars-backend/internal/plans"
	"github.com/dstarsfitness/dstars-backend/pkg/auth/session"
	"github.com/dstarsfitness/dstars-backend/pkg/config"
	"github.com/dstarsfitness/dstars-backend/pkg/logger"
)

// RateLimiterStore is satisfied by the Redis client.
type RateLimiterStore = middleware.RateLimiterStore

// Dependencies carries everything the router mounts.
type Dependencies struct {
	Config   *config.Config
	Logger   *logger.Logger
	Sessions session.AccessSessionChecker
	Limiter  RateLimiterStore
	Gatherer prometheus.Gatherer

	Members      members.Service
	Cards        members.CardService
	MemberAdmin  members.AdminService
	Plans        plans.Service
	Accounts     accounts.Service
	Invoices     billing.InvoiceService
	Payments     billing.PaymentService
	Summary      billing.SummaryService
	HealthProbes map[string]controllers.Pinger
}

// NewRouter wires the HTTP surface: public registration and card routes,
// admin auth, and the protected back-office API.
func NewRouter(deps Dependencies) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(middleware.Recoverer(logg))
	r.Use(middleware.RequestID(logg))
	r.Use(middleware.Logging(logg))
	r.Use(middleware.CORS(nil))

	r.Get("/health/live", controllers.HealthLive(cfg))
	r.Get("/health/ready", controllers.HealthReady(cfg, logg, deps.HealthProbes))

	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	registerLimit := middleware.AuthRateLimit(deps.Limiter, middleware.NewRegisterRateLimitPolicy(cfg.AuthRateLimit), logg)
	loginLimit := middleware.AuthRateLimit(deps.Limiter, middleware.NewLoginRateLimitPolicy(cfg.AuthRateLimit), logg)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/plans", controllers.ListPlans(deps.Plans, logg))

		r.Route("/members", func(r chi.Router) {
			r.With(registerLimit).Post("/register", controllers.Register(deps.Members, logg))
			r.With(loginLimit).Post("/verify", controllers.VerifyEmail(deps.Members, logg))
			r.With(loginLimit).Post("/resend-code", controllers.ResendCode(deps.Members, logg))
			r.Get("/validate", controllers.ValidateCard(deps.Cards, logg))
			r.Get("/{id}/virtual-card", controllers.GetVirtualCard(deps.Cards, logg))
			r.Get("/{id}/invoice", controllers.LatestInvoice(deps.Invoices, logg))
		})

		r.Post("/invoices", controllers.CreateInvoice(deps.Invoices, logg))
		r.Post("/payments", controllers.RecordPayment(deps.Payments, logg))
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			if !cfg.App.IsProd() {
				r.Post("/register", controllers.AdminRegister(deps.Accounts, logg))
			}
			r.With(loginLimit).Post("/verify-email", controllers.AdminVerifyAccount(deps.Accounts, logg))
			r.With(loginLimit).Post("/resend-code", controllers.AdminResendCode(deps.Accounts, logg))
			r.With(loginLimit).Post("/login", controllers.AdminLogin(deps.Accounts, logg))
			r.Post("/refresh", controllers.AdminRefresh(deps.Accounts, logg))
			r.Post("/logout", controllers.AdminLogout(deps.Accounts, cfg.JWT, logg))
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, deps.Sessions, logg))

			r.Route("/members", func(r chi.Router) {
				r.Get("/", controllers.AdminListMembers(deps.MemberAdmin, logg))
				r.Get("/{id}", controllers.AdminGetMember(deps.MemberAdmin, logg))
				r.Patch("/{id}", controllers.AdminUpdateMember(deps.MemberAdmin, logg))
				r.Delete("/{id}", controllers.AdminDeleteMember(deps.MemberAdmin, logg))
				r.Post("/{id}/download-token", controllers.AdminIssueDownloadToken(deps.Cards, logg))
				r.Post("/{id}/invoices", controllers.AdminCreateInvoice(deps.Invoices, logg))
				r.Get("/{id}/invoices/latest", controllers.LatestInvoice(deps.Invoices, logg))
			})

			r.Route("/plans", func(r chi.Router) {
				r.Get("/", controllers.AdminListPlans(deps.Plans, logg))
				r.Post("/", controllers.AdminCreatePlan(deps.Plans, logg))
				r.Get("/{id}", controllers.AdminGetPlan(deps.Plans, logg))
				r.Patch("/{id}", controllers.AdminUpdatePlan(deps.Plans, logg))
				r.Delete("/{id}", controllers.AdminDeletePlan(deps.Plans, logg))
			})

			r.Route("/invoices", func(r chi.Router) {
				r.Get("/", controllers.AdminListInvoices(deps.Invoices, logg))
				r.Get("/{id}", controllers.AdminGetInvoice(deps.Invoices, logg))
				r.Post("/{id}/cancel", controllers.AdminCancelInvoice(deps.Invoices, logg))
			})

			r.Route("/payments", func(r chi.Router) {
				r.Get("/", controllers.AdminListPayments(deps.Payments, logg))
				r.Post("/", controllers.RecordPayment(deps.Payments, logg))
				r.Get("/{id}", controllers.AdminGetPayment(deps.Payments, logg))
			})

			r.Get("/summary", controllers.AdminFinanceSummary(deps.Summary, logg))
		})
	})

	return r
}

package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dstarsfitness/dstars-backend/api/controllers"
	"github.com/dstarsfitness/dstars-backend/api/routes"
	"github.com/dstarsfitness/dstars-backend/internal/accounts"
	"github.com/dstarsfitness/dstars-backend/internal/billing"
	"github.com/dstarsfitness/dstars-backend/internal/members"
	"github.com/dstarsfitness/dstars-backend/internal/plans"
	"github.com/dstarsfitness/dstars-backend/pkg/auth/session"
	"github.com/dstarsfitness/dstars-backend/pkg/config"
	"github.com/dstarsfitness/dstars-backend/pkg/db"
	"github.com/dstarsfitness/dstars-backend/pkg/logger"
	"github.com/dstarsfitness/dstars-backend/pkg/mailer"
	"github.com/dstarsfitness/dstars-backend/pkg/metrics"
	"github.com/dstarsfitness/dstars-backend/pkg/migrate"
	"github.com/dstarsfitness/dstars-backend/pkg/pdf"
	"github.com/dstarsfitness/dstars-backend/pkg/redis"
	"github.com/dstarsfitness/dstars-backend/pkg/signer"
	"github.com/dstarsfitness/dstars-backend/pkg/storage"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	sessionManager, err := session.NewManager(redisClient, cfg.JWT)
	if err != nil {
		logg.Error(context.Background(), "failed to create session manager", err)
		os.Exit(1)
	}

	var mail mailer.Mailer
	if cfg.Mail.SendgridAPIKey == "" {
		logg.Warn(context.Background(), "sendgrid key not set, logging emails instead of sending")
		mail = mailer.NewDev(logg)
	} else {
		mail, err = mailer.New(cfg.Mail)
		if err != nil {
			logg.Error(context.Background(), "failed to create mailer", err)
			os.Exit(1)
		}
	}

	cardSigner, err := signer.New(cfg.Card, cfg.App.PublicURL)
	if err != nil {
		logg.Error(context.Background(), "failed to create card signer", err)
		os.Exit(1)
	}

	cardStore, err := storage.NewLocalStore(cfg.Card.StorageDir)
	if err != nil {
		logg.Error(context.Background(), "failed to create card storage", err)
		os.Exit(1)
	}

	membershipMetrics := metrics.NewMembershipMetrics(prometheus.DefaultRegisterer)

	memberRepo := members.NewRepository(dbClient.DB())
	planRepo := plans.NewRepository(dbClient.DB())
	billingRepo := billing.NewRepository(dbClient.DB())
	accountRepo := accounts.NewRepository(dbClient.DB())

	memberService, err := members.NewService(members.ServiceParams{
		DB:           dbClient,
		Repo:         memberRepo,
		Plans:        planRepo,
		Cooldowns:    redisClient.Cooldowns("member-resend"),
		Mailer:       mail,
		Logger:       logg,
		Metrics:      membershipMetrics,
		Verification: cfg.Verification,
		Billing:      cfg.Billing,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create members service", err)
		os.Exit(1)
	}

	cardService, err := members.NewCardService(members.CardServiceParams{
		DB:           dbClient,
		Repo:         memberRepo,
		Store:        cardStore,
		Renderer:     pdf.NewCardRenderer(),
		Signer:       cardSigner,
		Metrics:      membershipMetrics,
		Verification: cfg.Verification,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create card service", err)
		os.Exit(1)
	}

	memberAdminService, err := members.NewAdminService(members.AdminServiceParams{
		DB:    dbClient,
		Repo:  memberRepo,
		Plans: planRepo,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create member admin service", err)
		os.Exit(1)
	}

	planService, err := plans.NewService(plans.ServiceParams{
		Repo:    planRepo,
		Members: memberRepo,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create plans service", err)
		os.Exit(1)
	}

	accountService, err := accounts.NewService(accounts.ServiceParams{
		DB:           dbClient,
		Repo:         accountRepo,
		Sessions:     sessionManager,
		Cooldowns:    redisClient.Cooldowns("account-resend"),
		Mailer:       mail,
		Logger:       logg,
		JWT:          cfg.JWT,
		Password:     cfg.Password,
		Verification: cfg.Verification,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create accounts service", err)
		os.Exit(1)
	}

	invoiceService, err := billing.NewInvoiceService(billing.InvoiceServiceParams{
		DB:      dbClient,
		Repo:    billingRepo,
		Members: memberRepo,
		Billing: cfg.Billing,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create invoice service", err)
		os.Exit(1)
	}

	paymentService, err := billing.NewPaymentService(billing.PaymentServiceParams{
		DB:      dbClient,
		Repo:    billingRepo,
		Metrics: membershipMetrics,
		Billing: cfg.Billing,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payment service", err)
		os.Exit(1)
	}

	summaryService, err := billing.NewSummaryService(billing.SummaryServiceParams{
		Repo:    billingRepo,
		Members: memberRepo,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create summary service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Dependencies{
			Config:      cfg,
			Logger:      logg,
			Sessions:    sessionManager,
			Limiter:     redisClient,
			Gatherer:    prometheus.DefaultGatherer,
			Members:     memberService,
			Cards:       cardService,
			MemberAdmin: memberAdminService,
			Plans:       planService,
			Accounts:    accountService,
			Invoices:    invoiceService,
			Payments:    paymentService,
			Summary:     summaryService,
			HealthProbes: map[string]controllers.Pinger{
				"database": dbClient,
				"redis":    redisClient,
			},
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

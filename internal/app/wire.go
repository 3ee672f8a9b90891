package app

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/venuepass/loyalty/internal/auth"
	"github.com/venuepass/loyalty/internal/catalog"
	"github.com/venuepass/loyalty/internal/handler"
	"github.com/venuepass/loyalty/internal/ledger"
	"github.com/venuepass/loyalty/internal/notify"
	"github.com/venuepass/loyalty/internal/partner"
	"github.com/venuepass/loyalty/internal/store"
	"github.com/venuepass/loyalty/internal/visits"
	"github.com/venuepass/loyalty/internal/voucher"
	"golang.org/x/time/rate"
)

// RouterDeps holds all dependencies needed by NewRouter.
type RouterDeps struct {
	Store  store.Store
	Pool   *pgxpool.Pool // nil when the memory store is in use
	JWTMgr *auth.JWTManager
	Logger *slog.Logger

	PartnerRateLimit float64
	PartnerRateBurst int
}

// NewRouter assembles the chi.Router with all routes and middleware.
func NewRouter(deps RouterDeps) chi.Router {
	logger := deps.Logger

	// Core components
	outbox := notify.NewOutbox(deps.Store, logger)
	directory := partner.NewDirectory(deps.Store)
	ledgerLog := ledger.NewLedger(deps.Store)
	registry := visits.NewRegistry(deps.Store, ledgerLog, directory, outbox, logger)
	balances := ledger.NewReconciler(ledgerLog, registry)
	rewards := catalog.NewStoreCatalog(deps.Store)
	machine := voucher.NewMachine(deps.Store, ledgerLog, balances, registry, rewards, outbox, logger)

	// Handlers
	visitHandler := handler.NewVisitHandler(registry)
	balanceHandler := handler.NewBalanceHandler(balances)
	voucherHandler := handler.NewVoucherHandler(machine)

	partnerLimiter := rate.NewLimiter(rate.Limit(deps.PartnerRateLimit), deps.PartnerRateBurst)

	// Router
	r := chi.NewRouter()

	// Global middleware (order matters)
	r.Use(handler.Recovery(logger))
	r.Use(handler.RequestID)
	r.Use(handler.RequestLogger(logger))
	r.Use(handler.CORS)

	// Health and metrics (no auth, no JSON content-type forcing)
	r.Get("/health", handler.HealthHandler(deps.Pool))
	r.Method("GET", "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(handler.JSONContentType)

		// Booking intake and user-facing reads (authenticated upstream by
		// the API gateway)
		r.Post("/visits", visitHandler.Register)
		r.Get("/accounts/{accountID}/balance", balanceHandler.Get)
		r.Post("/vouchers", voucherHandler.Issue)
		r.Post("/vouchers/{code}/apply", voucherHandler.Apply)
		r.Get("/vouchers/{code}", voucherHandler.Get)

		// Partner-authenticated routes
		r.Group(func(r chi.Router) {
			r.Use(handler.RateLimit(partnerLimiter))
			r.Use(auth.AuthenticatePartner(deps.JWTMgr))

			r.Post("/visits/confirm", visitHandler.Confirm)
			r.Post("/vouchers/{code}/process", voucherHandler.Process)
		})
	})

	return r
}

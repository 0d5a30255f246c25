package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.uber.org/zap"

	"github.com/ayo6706/bank-ledger/internal/api/handler"
	"github.com/ayo6706/bank-ledger/internal/api/middleware"
	"github.com/ayo6706/bank-ledger/internal/api/spec"
	"github.com/ayo6706/bank-ledger/internal/config"
	"github.com/ayo6706/bank-ledger/internal/idempotency"
	"github.com/ayo6706/bank-ledger/internal/ledger"
	"github.com/ayo6706/bank-ledger/internal/service"
)

type Router struct {
	cfg       *config.Config
	logger    *zap.Logger
	store     ledger.Store
	idem      *idempotency.Store
	redis     redis.Cmdable
	accounts  *service.AccountService
	transfers *service.TransferService
	lifecycle *service.LifecycleService
	query     *service.QueryService
}

func NewRouter(
	cfg *config.Config,
	logger *zap.Logger,
	store ledger.Store,
	idem *idempotency.Store,
	rdb redis.Cmdable,
	accounts *service.AccountService,
	transfers *service.TransferService,
	lifecycle *service.LifecycleService,
	query *service.QueryService,
) *Router {
	return &Router{
		cfg:       cfg,
		logger:    logger,
		store:     store,
		idem:      idem,
		redis:     rdb,
		accounts:  accounts,
		transfers: transfers,
		lifecycle: lifecycle,
		query:     query,
	}
}

func (api *Router) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.TraceMiddleware)
	r.Use(middleware.RecoverMiddleware(api.logger))
	r.Use(middleware.LoggingMiddleware(api.logger))
	r.Use(middleware.MetricsMiddleware)
	r.Use(cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "Idempotency-Key", "X-Trace-ID"},
	}).Handler)

	accountHandler := handler.NewAccountHandler(api.accounts, api.lifecycle, api.query)
	transferHandler := handler.NewTransferHandler(api.transfers)
	logHandler := handler.NewOperationLogHandler(api.query)
	healthHandler := handler.NewHealthHandler(api.store, api.redis)

	r.Get("/healthz", healthHandler.Live)
	r.Get("/readyz", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/openapi.yaml", spec.OpenAPIHandler())
	r.Get("/docs/*", httpSwagger.Handler(httpSwagger.URL("/openapi.yaml")))

	r.Route("/v1", func(r chi.Router) {
		r.Post("/accounts", accountHandler.Create)
		r.Get("/accounts", accountHandler.List)
		r.Get("/accounts/{id}", accountHandler.Get)
		r.Put("/accounts/{id}/status", accountHandler.SetStatus)
		r.Delete("/accounts/{id}", accountHandler.Delete)
		r.Get("/accounts/{id}/transactions", accountHandler.Transactions)

		// Money movement carries the Idempotency-Key contract when a
		// redis store is configured.
		idem := middleware.IdempotencyMiddleware(api.idem, api.logger)
		r.With(idem).Post("/accounts/{id}/deposit", accountHandler.Deposit)
		r.With(idem).Post("/accounts/{id}/withdraw", accountHandler.Withdraw)
		r.With(idem).Post("/transfers", transferHandler.Transfer)

		r.Get("/operation-logs", logHandler.List)
	})

	return r
}

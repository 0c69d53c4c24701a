package http

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robertarktes/ticket-marketplace/internal/auth"
	"github.com/robertarktes/ticket-marketplace/internal/idempotency"
	"github.com/robertarktes/ticket-marketplace/internal/observability"
	"github.com/robertarktes/ticket-marketplace/internal/rateLimit"
)

type RouterDeps struct {
	Handlers    *Handlers
	Verifier    *auth.Verifier
	Logger      observability.Logger
	RateLimiter *rateLimit.RateLimiter
	Limits      rateLimit.Limits
	Idempotency *idempotency.Idempotency
}

func SetupRouter(d RouterDeps) *chi.Mux {
	h := d.Handlers
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(LoggerMiddleware(d.Logger))
	r.Use(TracingMiddleware)
	r.Use(MetricsMiddleware)

	r.Get("/v1/healthz", h.Healthz)
	r.Get("/v1/readyz", h.Readyz)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(d.Verifier, d.Logger))
		r.Use(RateLimitMiddleware(d.RateLimiter, d.Limits))

		r.Get("/v1/events", h.ListEvents)
		r.Get("/v1/events/{id}", h.GetEvent)

		r.Group(func(r chi.Router) {
			r.Use(RequireAuth(d.Logger))

			r.Post("/v1/events", h.CreateEvent)
			r.With(IdempotencyMiddleware(d.Idempotency, d.Logger)).Post("/v1/orders", h.PlaceOrder)
			r.Get("/v1/orders", h.ListOrders)
			r.Get("/v1/orders/{id}", h.GetOrder)
		})
	})

	return r
}

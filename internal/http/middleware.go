package http

import (
	"bytes"
	"net"
	"net/http"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/robertarktes/ticket-marketplace/internal/auth"
	"github.com/robertarktes/ticket-marketplace/internal/domain"
	"github.com/robertarktes/ticket-marketplace/internal/idempotency"
	"github.com/robertarktes/ticket-marketplace/internal/observability"
	"github.com/robertarktes/ticket-marketplace/internal/rateLimit"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelhttp "go.opentelemetry.io/otel/propagation"
)

func RequestIDMiddleware(next http.Handler) http.Handler {
	return middleware.RequestID(next)
}

func LoggerMiddleware(logger observability.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := middleware.GetReqID(r.Context())
			entry := logger.WithField("request_id", reqID)
			ctx := observability.ContextWithLogger(r.Context(), entry)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func TracingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), otelhttp.HeaderCarrier(r.Header))
		tracer := otel.Tracer("http")
		ctx, span := tracer.Start(ctx, r.Method+" "+r.URL.Path)
		defer span.End()

		span.SetAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.url", r.URL.String()),
		)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// MetricsMiddleware counts requests by route pattern so ids in paths do not
// explode label cardinality.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		observability.RequestsTotal.WithLabelValues(route, strconv.Itoa(status), r.Method).Inc()
	})
}

// AuthMiddleware attaches the caller's principal when a bearer token is
// present. Anonymous requests pass through; a bad token is rejected.
func AuthMiddleware(verifier *auth.Verifier, logger observability.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}
			token, ok := auth.BearerToken(header)
			if !ok {
				writeError(r.Context(), w, logger, errors.Wrap(domain.ErrUnauthorized, "malformed authorization header"))
				return
			}
			p, err := verifier.Verify(token)
			if err != nil {
				writeError(r.Context(), w, logger, err)
				return
			}

			ctx := auth.ContextWithPrincipal(r.Context(), p)
			ctx = observability.ContextWithLogger(ctx,
				observability.LoggerFromContext(ctx, logger).WithField("principal_id", p.ID))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func RequireAuth(logger observability.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := auth.PrincipalFromContext(r.Context()); !ok {
				writeError(r.Context(), w, logger, errors.Wrap(domain.ErrUnauthorized, "authentication required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimitMiddleware limits mutating requests per route, per principal and
// per client address. A nil limiter disables it.
func RateLimitMiddleware(rl *rateLimit.RateLimiter, limits rateLimit.Limits) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if rl == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			hit := rateLimit.Hit{Route: routePattern(r), ClientIP: clientIP(r)}
			if p, ok := auth.PrincipalFromContext(r.Context()); ok {
				hit.PrincipalID = p.ID
			}
			if !rl.Allow(r.Context(), hit, limits) {
				observability.RateLimitExceeded.Inc()
				w.Header().Set("Retry-After", strconv.Itoa(int(limits.Window.Seconds())))
				writeJSON(w, http.StatusTooManyRequests, errorBody{Kind: "RateLimited", Message: "rate limit exceeded"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
		return rctx.RoutePattern()
	}
	return r.URL.Path
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

const (
	IdempotencyKeyHeader = "Idempotency-Key"
	ReplayedHeader       = "Idempotent-Replayed"
)

// IdempotencyMiddleware replays the stored response for a repeated
// Idempotency-Key. It must run after authentication since keys are scoped
// per principal. Redis failures degrade to plain execution.
func IdempotencyMiddleware(idemp *idempotency.Idempotency, logger observability.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if idemp == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientKey := r.Header.Get(IdempotencyKeyHeader)
			if clientKey == "" {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			log := observability.LoggerFromContext(ctx, logger)

			p, _ := auth.PrincipalFromContext(ctx)
			key, err := idempotency.Scope(p.ID, clientKey)
			if err != nil {
				writeError(ctx, w, logger, domain.NewValidationError(IdempotencyKeyHeader, err.Error()))
				return
			}

			stored, err := idemp.Get(ctx, key)
			if err != nil {
				log.WithError(err).Warn("idempotency lookup failed")
				next.ServeHTTP(w, r)
				return
			}
			if stored != nil {
				replay(w, stored)
				return
			}

			release, err := idemp.Begin(ctx, key)
			if errors.Is(err, idempotency.ErrInFlight) {
				writeJSON(w, http.StatusConflict, errorBody{Kind: domain.KindTransient, Message: err.Error()})
				return
			}
			if err != nil {
				log.WithError(err).Warn("idempotency lock failed")
				next.ServeHTTP(w, r)
				return
			}
			defer release()

			// A duplicate may have finished between the lookup and the lock.
			stored, err = idemp.Get(ctx, key)
			if err != nil {
				log.WithError(err).Warn("idempotency lookup failed")
			}
			if stored != nil {
				replay(w, stored)
				return
			}

			var body bytes.Buffer
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			ww.Tee(&body)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status < 200 || status >= 300 {
				return
			}
			err = idemp.Set(ctx, key, idempotency.Response{
				Status:      status,
				ContentType: ww.Header().Get("Content-Type"),
				Result:      body.Bytes(),
			})
			if err != nil {
				log.WithError(err).Warn("failed to store idempotent response")
			}
		})
	}
}

func replay(w http.ResponseWriter, stored *idempotency.Response) {
	if stored.ContentType != "" {
		w.Header().Set("Content-Type", stored.ContentType)
	}
	w.Header().Set(ReplayedHeader, "true")
	w.WriteHeader(stored.Status)
	w.Write(stored.Result)
}

package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	redisclient "github.com/redis/go-redis/v9"
	"github.com/robertarktes/ticket-marketplace/internal/adapters/crdb"
	redisadapter "github.com/robertarktes/ticket-marketplace/internal/adapters/redis"
	"github.com/robertarktes/ticket-marketplace/internal/auth"
	"github.com/robertarktes/ticket-marketplace/internal/catalog"
	"github.com/robertarktes/ticket-marketplace/internal/config"
	httphandler "github.com/robertarktes/ticket-marketplace/internal/http"
	"github.com/robertarktes/ticket-marketplace/internal/idempotency"
	"github.com/robertarktes/ticket-marketplace/internal/observability"
	"github.com/robertarktes/ticket-marketplace/internal/ordering"
	"github.com/robertarktes/ticket-marketplace/internal/rateLimit"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.ValidateAuth(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdown, err := observability.SetupOTel(ctx, cfg, "marketplace-api")
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdown()

	logger := observability.NewLogger(cfg.LogLevel)

	if cfg.MigrateOnStart {
		if err := crdb.Migrate(cfg.CRDBDSN); err != nil {
			log.Fatalf("failed to migrate crdb: %v", err)
		}
	}
	pool, err := crdb.NewPool(ctx, cfg.CRDBDSN)
	if err != nil {
		log.Fatalf("failed to connect to crdb: %v", err)
	}
	defer pool.Close()
	repo := crdb.NewRepository(pool)

	verifier, err := auth.NewVerifier(cfg.JWTSecret, cfg.JWTPublicKey, cfg.JWTIssuer)
	if err != nil {
		log.Fatalf("failed to setup auth: %v", err)
	}

	redisClient := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()
	redisCache := redisadapter.NewCache(redisClient)
	idemp := idempotency.NewIdempotency(redisadapter.NewIdempotency(redisClient), cfg.IdempotencyTTL)
	rl := rateLimit.NewRateLimiter(redisCache)

	catalogSvc := catalog.NewCachedService(catalog.NewService(repo, logger), redisCache, cfg.CatalogCacheTTL, logger)
	orderSvc := ordering.NewService(repo, logger, ordering.WithMaxAttempts(cfg.OrderMaxAttempts))

	r := httphandler.SetupRouter(httphandler.RouterDeps{
		Handlers:    httphandler.NewHandlers(catalogSvc, orderSvc, repo, logger),
		Verifier:    verifier,
		Logger:      logger,
		RateLimiter: rl,
		Limits: rateLimit.Limits{
			PerPrincipal: cfg.RateLimitPerPrincipal,
			PerIP:        cfg.RateLimitPerIP,
			Window:       cfg.RateLimitWindow,
		},
		Idempotency: idemp,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.WithField("addr", cfg.HTTPAddr).Info("api listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutdown Server ...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.WithError(err).Error("server stopped with error")
	}
	logger.Info("Server exiting")
}

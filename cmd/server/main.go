package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmitrymomot/billingd/core"
	authmod "github.com/dmitrymomot/billingd/modules/auth"
	billingmod "github.com/dmitrymomot/billingd/modules/billing"
	"github.com/dmitrymomot/billingd/pkg/config"
	"github.com/dmitrymomot/billingd/pkg/httpserver"
	"github.com/dmitrymomot/billingd/pkg/logger"
	"github.com/dmitrymomot/billingd/pkg/pg"
	"github.com/dmitrymomot/billingd/pkg/ratelimiter"
	"github.com/dmitrymomot/billingd/pkg/redis"
	"github.com/dmitrymomot/billingd/pkg/requestid"
	"github.com/dmitrymomot/billingd/svc/billing"
	"github.com/dmitrymomot/billingd/svc/session"
	"github.com/dmitrymomot/billingd/svc/user"
)

const sweepInterval = time.Hour

type appConfig struct {
	Log     logger.Config
	Server  httpserver.Config
	PG      pg.Config
	Redis   redis.Config
	Session session.Config
	Auth    authmod.Config
	Stripe  billing.StripeConfig
	Billing billing.ServiceConfig
}

func main() {
	var cfg appConfig
	config.MustLoad(&cfg.Log)
	config.MustLoad(&cfg.Server)
	config.MustLoad(&cfg.PG)
	config.MustLoad(&cfg.Redis)
	config.MustLoad(&cfg.Session)
	config.MustLoad(&cfg.Auth)
	config.MustLoad(&cfg.Stripe)
	config.MustLoad(&cfg.Billing)

	log := logger.NewFromConfig(cfg.Log, logger.WithService("billingd"))
	logger.SetAsDefault(log)

	ctx := context.Background()

	pool, err := pg.Connect(ctx, cfg.PG)
	if err != nil {
		log.ErrorContext(ctx, "database connection failed", logger.Error(err))
		os.Exit(1)
	}
	defer pool.Close()

	if err := pg.Migrate(ctx, pool, cfg.PG, log); err != nil {
		log.ErrorContext(ctx, "migrations failed", logger.Error(err))
		os.Exit(1)
	}

	// Rate limiting degrades from redis to per-process memory so a cache
	// outage never takes auth down with it.
	var limiterStore ratelimiter.Store
	redisClient, err := redis.Connect(ctx, cfg.Redis)
	if err != nil {
		log.WarnContext(ctx, "redis unavailable, using in-memory rate limiting", logger.Error(err))
		limiterStore = ratelimiter.NewMemoryStore()
	} else {
		defer redisClient.Close()
		limiterStore = ratelimiter.NewRedisStore(redisClient, "billingd:ratelimit")
	}

	authBucket, err := ratelimiter.NewBucket(limiterStore, ratelimiter.Config{
		Capacity:       10,
		RefillRate:     10,
		RefillInterval: time.Minute,
	})
	if err != nil {
		log.ErrorContext(ctx, "rate limiter init failed", logger.Error(err))
		os.Exit(1)
	}

	users := user.NewPgStore(pool)
	sessions := session.NewManager(cfg.Session, session.NewPgStore(pool), log)

	billingStore := billing.NewPgStore(pool)
	audit := billing.NewPgAuditLogger(pool, log)

	var provider billing.Provider
	if cfg.Stripe.Configured() {
		provider = billing.NewStripeProvider(cfg.Stripe)
	} else {
		log.WarnContext(ctx, "stripe not configured, webhook and checkout disabled")
	}

	billingSvc := billing.NewService(billingStore, users, provider, cfg.Stripe, cfg.Billing, audit, log)
	reconciler := billing.NewReconciler(billingStore, users, provider, cfg.Stripe, audit, log)

	authModule := authmod.NewModule(users, sessions, billingSvc, cfg.Auth, log)
	billingModule := billingmod.NewModule(billingSvc, reconciler, provider, log)

	r := chi.NewRouter()
	r.Use(requestid.Middleware)
	r.Use(middleware.Recoverer)
	r.Use(core.RequestLogger(log))

	r.Get("/healthz", healthHandler(pg.Healthcheck(pool)))
	r.Mount("/auth", authModule.Router(authmod.RateLimitMiddleware(authBucket)))
	r.Mount("/billing", billingModule.Router(sessions))

	go sweepSessions(ctx, sessions, log)

	srv := httpserver.New(
		httpserver.WithConfig(cfg.Server),
		httpserver.WithLogger(log),
	)
	if err := srv.Run(ctx, r); err != nil {
		log.ErrorContext(ctx, "server stopped", logger.Error(err))
		os.Exit(1)
	}
}

func healthHandler(check func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := check(r.Context()); err != nil {
			core.Render(w, r, core.JSONError(core.ErrServiceUnavailable))
			return
		}
		core.Render(w, r, core.JSON(map[string]string{"status": "ok"}))
	}
}

// sweepSessions periodically removes expired refresh tokens. Revoked rows
// survive until expiry so reuse stays detectable.
func sweepSessions(ctx context.Context, sessions *session.Manager, log *slog.Logger) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := sessions.Sweep(ctx)
			if err != nil {
				log.ErrorContext(ctx, "session sweep failed", logger.Error(err))
				continue
			}
			if n > 0 {
				log.InfoContext(ctx, "swept expired refresh tokens", "count", n)
			}
		}
	}
}

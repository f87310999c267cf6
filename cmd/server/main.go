// Command server runs the contact submission backend.
//
// Startup order: .env → config → logger → tracing → database (+migrations)
// → rate limiter → notification dispatcher → router → HTTP server. SIGINT and
// SIGTERM trigger a graceful shutdown that stops the limiter sweep and drains
// pending notifications.
//
// @title       Contact Backend API
// @version     1.0
// @description Contact form submissions with rate limiting, spam and human verification gates, and email notification.
// @BasePath    /
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	_ "github.com/tbourn/contact-backend/docs"
	"github.com/tbourn/contact-backend/internal/config"
	httpapi "github.com/tbourn/contact-backend/internal/http"
	"github.com/tbourn/contact-backend/internal/http/middleware"
	"github.com/tbourn/contact-backend/internal/notify"
	"github.com/tbourn/contact-backend/internal/observability"
	"github.com/tbourn/contact-backend/internal/repo"
	"github.com/tbourn/contact-backend/internal/services"
	"github.com/tbourn/contact-backend/internal/sysutil"
	"github.com/tbourn/contact-backend/internal/verify"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

// idempotencyPurgeEvery is how often expired Idempotency-Key records are
// deleted.
const idempotencyPurgeEvery = time.Hour

func main() {
	if !sysutil.IsTruthy(os.Getenv("SKIP_DOTENV")) {
		// Missing .env is fine; real environment variables win.
		_ = godotenv.Load()
	}

	cfg := config.MustLoad()
	sysutil.SetupLogger(cfg.LogLevel, cfg.LogPretty, os.Stderr)
	gin.SetMode(cfg.GinMode)

	ver := sysutil.FirstNonEmpty(os.Getenv("APP_VERSION"), version)
	log.Info().
		Str("version", ver).
		Str("email_provider", cfg.Mail.Provider).
		Bool("turnstile", cfg.Turnstile.Enabled()).
		Bool("redis", cfg.Redis.Addr != "").
		Msg("starting contact backend")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, ver)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup")
	}

	db, err := repo.Open(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("open database")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate database")
	}
	if n, err := repo.CountSubmissions(ctx, db); err == nil {
		log.Info().Int64("submissions", n).Bool("postgres", cfg.DatabaseURL != "").Msg("database ready")
	}

	limiter, rdb := newLimiter(ctx, cfg)

	dispatcher := newDispatcher(cfg)
	var notifier services.Notifier
	if dispatcher != nil {
		notifier = dispatcher
	}
	svc := services.NewSubmissionService(db, verify.New(cfg.Turnstile), notifier)

	r := gin.New()
	httpapi.RegisterRoutes(r, httpapi.Deps{
		Config:  cfg,
		DB:      db,
		Service: svc,
		Limiter: limiter,
		Redis:   rdb,
	})

	go purgeIdempotency(ctx, db)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("http server")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	limiter.Stop()
	if dispatcher != nil {
		dispatcher.Stop()
	}
	if rdb != nil {
		_ = rdb.Close()
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	if err := shutdownOTel(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("otel shutdown")
	}
	log.Info().Msg("bye")
}

// newLimiter uses the shared Redis window when REDIS_ADDR is set and
// reachable, and the in-process window otherwise.
func newLimiter(ctx context.Context, cfg config.Config) (*middleware.WindowLimiter, *redis.Client) {
	rl := cfg.RateLimit
	if cfg.Redis.Addr != "" {
		rdb, err := repo.OpenRedis(ctx, cfg.Redis)
		if err == nil {
			log.Info().Str("addr", cfg.Redis.Addr).Msg("rate limiter: redis")
			return middleware.NewRedisWindowLimiter(rdb, cfg.Redis.Prefix, rl.Max, rl.Window, middleware.KeyByClient()), rdb
		}
		log.Warn().Err(err).Msg("redis unavailable; falling back to in-memory rate limiter")
	}

	limiter := middleware.NewMemoryWindowLimiter(rl.Max, rl.Window, rl.SweepEvery, middleware.KeyByClient())
	limiter.Start(ctx)
	return limiter, nil
}

// newDispatcher returns nil when notifications cannot be sent; submissions
// are still accepted and stored.
func newDispatcher(cfg config.Config) *notify.Dispatcher {
	if cfg.Mail.To == "" {
		log.Warn().Msg("CONTACT_EMAIL not set; notifications disabled")
		return nil
	}
	sender, err := notify.NewSender(cfg.Mail)
	if err != nil {
		log.Error().Err(err).Msg("email sender; notifications disabled")
		return nil
	}
	d := notify.NewDispatcher(sender, cfg.Mail)
	d.Start()
	return d
}

func purgeIdempotency(ctx context.Context, db *gorm.DB) {
	t := time.NewTicker(idempotencyPurgeEvery)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			n, err := repo.PurgeExpiredIdempotency(ctx, db, now.UTC())
			if err != nil {
				log.Warn().Err(err).Msg("purge idempotency records")
				continue
			}
			if n > 0 {
				log.Debug().Int64("deleted", n).Msg("purged expired idempotency records")
			}
		}
	}
}

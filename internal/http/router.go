// Package httpapi wires the HTTP transport (Gin) to the contact submission
// service, middleware, and route handlers. It centralizes cross-cutting
// concerns: tracing, correlation IDs, redacted logging, panic recovery,
// compression, metrics, CORS and security headers. Idempotency and rate
// limiting are scoped to the submission route.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/heptiolabs/healthcheck"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/contact-backend/internal/config"
	"github.com/tbourn/contact-backend/internal/http/handlers"
	"github.com/tbourn/contact-backend/internal/http/middleware"
	"github.com/tbourn/contact-backend/internal/repo"
)

// ContactPath is the public submission endpoint.
const ContactPath = "/api/contact-submissions"

// Deps are the collaborators RegisterRoutes mounts.
type Deps struct {
	Config  config.Config
	DB      *gorm.DB
	Service handlers.SubmissionService
	Limiter *middleware.WindowLimiter

	// Redis is the shared limiter store, when configured. It only adds a
	// readiness check here.
	Redis *redis.Client
}

// RegisterRoutes attaches middleware and endpoints to r.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. Access logger: redacting unless LOG_REDACT=false
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. gzip
//  7. Metrics
//  8. CORS and security headers
//
// The contact route then runs the idempotency validator before the rate
// limiter, so replays bypass the window. Malformed keys are charged to the
// window before they are rejected.
func RegisterRoutes(r *gin.Engine, d Deps) {
	cfg := d.Config
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(accessLogger(cfg.LogRedact))
	r.Use(middleware.Recovery())
	r.Use(limitBody(cfg.MaxBodyBytes))
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))
	r.Use(middleware.Metrics("/metrics", "/live", "/ready", "/health"))
	r.Use(corsMiddleware(cfg.CORS)...)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:    cfg.Security.EnableHSTS,
		HSTSMaxAge:    cfg.Security.HSTSMaxAge,
		NoStore:       true,
		EnablePolicy:  true,
		ExposeHeaders: middleware.DefaultExposeHeaders,
	}))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrNameNotFound, "Not Found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrNameMethodNotAllowed, "Method Not Allowed")
	})

	// Probes and metrics
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	probes := gin.WrapH(newHealth(d))
	r.GET("/live", probes)
	r.GET("/ready", probes)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	h := handlers.New(d.Service, d.DB, cfg.IdempotencyTTL)

	idemOpts := middleware.IdempotencyOptions{MaxLen: 200}
	if d.Limiter != nil {
		idemOpts.ChargeInvalid = d.Limiter.Charge
	}
	chain := []gin.HandlerFunc{
		middleware.IdempotencyValidator(idemOpts, lookupOrNil(d.DB)),
	}
	if d.Limiter != nil {
		chain = append(chain, d.Limiter.Handler())
	}
	chain = append(chain, h.CreateSubmission)
	r.POST(ContactPath, chain...)
}

// newHealth builds the /live and /ready handler. Readiness covers the
// database and, when configured, Redis.
func newHealth(d Deps) healthcheck.Handler {
	health := healthcheck.NewHandler()
	health.AddLivenessCheck("goroutine-threshold", healthcheck.GoroutineCountCheck(10000))

	if d.DB != nil {
		health.AddReadinessCheck("database", healthcheck.Timeout(func() error {
			return repo.Ping(d.DB)
		}, 2*time.Second))
	}
	if d.Redis != nil {
		health.AddReadinessCheck("redis", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return d.Redis.Ping(ctx).Err()
		})
	}
	return health
}

// accessLogger scrubs personal data from access logs unless redaction is
// turned off for local debugging.
func accessLogger(redact bool) gin.HandlerFunc {
	if !redact {
		return middleware.Logger()
	}
	return middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{"X-API-Key"},
	})
}

// corsMiddleware mirrors the allow-all posture when no origins are
// configured and an explicit allowlist otherwise.
func corsMiddleware(c config.CORSConfig) []gin.HandlerFunc {
	base := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", middleware.HeaderIdempotencyKey},
		ExposeHeaders:    append([]string{"X-Request-ID", "Content-Length"}, middleware.DefaultExposeHeaders...),
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}

	if len(c.AllowedOrigins) == 0 {
		base.AllowAllOrigins = true
		return []gin.HandlerFunc{
			// ACAO: * even without an Origin header (probes, curl).
			func(c *gin.Context) {
				c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
				c.Next()
			},
			cors.New(base),
		}
	}

	base.AllowOrigins = c.AllowedOrigins
	return []gin.HandlerFunc{cors.New(base)}
}

// lookupOrNil returns the idempotency lookup, or nil without a database.
func lookupOrNil(db *gorm.DB) middleware.IdempotencyLookup {
	if db == nil {
		return nil
	}
	return handlers.IdempotencyLookup(db)
}

// limitBody caps request bodies at maxBytes; reads past the cap fail and the
// handler answers 400.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if maxBytes > 0 && c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}

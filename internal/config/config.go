// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes settings for the
// HTTP server, logging, persistence, the contact-form rate limiter, human
// verification (Turnstile), email delivery, and observability.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Supported email delivery providers.
const (
	ProviderGmail    = "gmail"
	ProviderSendGrid = "sendgrid"
	ProviderMailgun  = "mailgun"
	ProviderResend   = "resend"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "contact-backend")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// RateLimitConfig controls the per-client submission window.
type RateLimitConfig struct {
	Max        int           // CONTACT_RATE_MAX, submissions allowed per window
	Window     time.Duration // CONTACT_RATE_WINDOW
	SweepEvery time.Duration // CONTACT_RATE_SWEEP
}

// RedisConfig enables the shared rate-limit store when Addr is set.
type RedisConfig struct {
	Addr     string // REDIS_ADDR (empty = in-memory limiter)
	Password string // REDIS_PASSWORD
	DB       int    // REDIS_DB
	Prefix   string // REDIS_PREFIX
}

// TurnstileConfig defines the human-verification gate. The gate is active
// only when SecretKey is non-empty.
type TurnstileConfig struct {
	SecretKey string        // TURNSTILE_SECRET_KEY
	VerifyURL string        // TURNSTILE_VERIFY_URL
	Timeout   time.Duration // TURNSTILE_TIMEOUT
}

// Enabled reports whether submissions must carry a verification token.
func (t TurnstileConfig) Enabled() bool { return strings.TrimSpace(t.SecretKey) != "" }

// MailConfig holds notification delivery settings. SMTP fields left empty
// fall back to the provider table in package notify.
type MailConfig struct {
	Provider string // EMAIL_PROVIDER: gmail|sendgrid|mailgun|resend

	SMTPHost   string // SMTP_HOST
	SMTPPort   int    // SMTP_PORT (0 = provider default)
	SMTPSecure *bool  // SMTP_SECURE (nil = provider default)
	SMTPUser   string // SMTP_USER
	SMTPPass   string // SMTP_PASS

	From string // SMTP_FROM (falls back to SMTP_USER)
	To   string // CONTACT_EMAIL

	ResendAPIKey string // RESEND_API_KEY (falls back to SMTP_PASS)
	ResendAPIURL string // RESEND_API_URL

	SendTimeout time.Duration // EMAIL_SEND_TIMEOUT
	RatePerSec  float64       // EMAIL_RATE_PER_SEC
	Workers     int           // EMAIL_WORKERS
	QueueSize   int           // EMAIL_QUEUE_SIZE
}

// Sender returns the From address, defaulting to the SMTP user.
func (m MailConfig) Sender() string {
	if s := strings.TrimSpace(m.From); s != "" {
		return s
	}
	return strings.TrimSpace(m.SMTPUser)
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	MaxBodyBytes      int64         // request body cap
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	LogRedact      bool   // scrub emails/phones/UUIDs from access logs
	SwaggerEnabled bool   // enable Swagger UI route

	// Persistence
	DatabaseURL string // DATABASE_URL (postgres); empty = SQLite
	DBPath      string // SQLite path

	// Contact form
	RateLimit RateLimitConfig
	Redis     RedisConfig
	Turnstile TurnstileConfig
	Mail      MailConfig

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration // how long a given Idempotency-Key is valid

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "1337"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		MaxBodyBytes:      int64(getint("MAX_BODY_BYTES", 64<<10)),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		LogRedact:      getbool("LOG_REDACT", true),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),

		// Persistence
		DatabaseURL: getenv("DATABASE_URL", ""),
		DBPath:      getenv("DB_PATH", "contact.db"),

		// Contact form
		RateLimit: RateLimitConfig{
			Max:        getint("CONTACT_RATE_MAX", 3),
			Window:     getdur("CONTACT_RATE_WINDOW", time.Hour),
			SweepEvery: getdur("CONTACT_RATE_SWEEP", 10*time.Minute),
		},
		Redis: RedisConfig{
			Addr:     getenv("REDIS_ADDR", ""),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       getint("REDIS_DB", 0),
			Prefix:   getenv("REDIS_PREFIX", "contact:ratelimit"),
		},
		Turnstile: TurnstileConfig{
			SecretKey: getenv("TURNSTILE_SECRET_KEY", ""),
			VerifyURL: getenv("TURNSTILE_VERIFY_URL", "https://challenges.cloudflare.com/turnstile/v0/siteverify"),
			Timeout:   getdur("TURNSTILE_TIMEOUT", 10*time.Second),
		},
		Mail: MailConfig{
			Provider:     strings.ToLower(strings.TrimSpace(getenv("EMAIL_PROVIDER", ProviderGmail))),
			SMTPHost:     getenv("SMTP_HOST", ""),
			SMTPPort:     getint("SMTP_PORT", 0),
			SMTPSecure:   getoptbool("SMTP_SECURE"),
			SMTPUser:     getenv("SMTP_USER", ""),
			SMTPPass:     getenv("SMTP_PASS", ""),
			From:         getenv("SMTP_FROM", ""),
			To:           getenv("CONTACT_EMAIL", ""),
			ResendAPIKey: getenv("RESEND_API_KEY", ""),
			ResendAPIURL: strings.TrimRight(getenv("RESEND_API_URL", "https://api.resend.com"), "/"),
			SendTimeout:  getdur("EMAIL_SEND_TIMEOUT", 30*time.Second),
			RatePerSec:   getfloat("EMAIL_RATE_PER_SEC", 2.0),
			Workers:      getint("EMAIL_WORKERS", 2),
			QueueSize:    getint("EMAIL_QUEUE_SIZE", 100),
		},

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Idempotency
		IdempotencyTTL: getdur("IDEMPOTENCY_TTL", 24*time.Hour),

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "contact-backend"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}
	if cfg.Mail.Provider == "" {
		cfg.Mail.Provider = ProviderGmail
	}
	if cfg.Mail.ResendAPIKey == "" {
		cfg.Mail.ResendAPIKey = cfg.Mail.SMTPPass
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if cfg.MaxBodyBytes <= 0 {
		return cfg, errors.New("MAX_BODY_BYTES must be > 0")
	}
	if strings.TrimSpace(cfg.DatabaseURL) == "" && strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("one of DATABASE_URL or DB_PATH must be set")
	}
	if cfg.RateLimit.Max < 1 {
		return cfg, errors.New("CONTACT_RATE_MAX must be >= 1")
	}
	if cfg.RateLimit.Window <= 0 || cfg.RateLimit.SweepEvery <= 0 {
		return cfg, errors.New("CONTACT_RATE_WINDOW and CONTACT_RATE_SWEEP must be positive durations")
	}
	if cfg.Turnstile.Timeout <= 0 {
		return cfg, errors.New("TURNSTILE_TIMEOUT must be > 0")
	}
	switch cfg.Mail.Provider {
	case ProviderGmail, ProviderSendGrid, ProviderMailgun, ProviderResend:
	default:
		return cfg, fmt.Errorf("EMAIL_PROVIDER %q must be one of: gmail, sendgrid, mailgun, resend", cfg.Mail.Provider)
	}
	if cfg.Mail.SMTPPort < 0 || cfg.Mail.SMTPPort > 65535 {
		return cfg, errors.New("SMTP_PORT must be a valid port")
	}
	if cfg.Mail.SendTimeout <= 0 {
		return cfg, errors.New("EMAIL_SEND_TIMEOUT must be > 0")
	}
	if cfg.Mail.RatePerSec <= 0 {
		return cfg, errors.New("EMAIL_RATE_PER_SEC must be > 0")
	}
	if cfg.Mail.Workers < 1 || cfg.Mail.QueueSize < 1 {
		return cfg, errors.New("EMAIL_WORKERS and EMAIL_QUEUE_SIZE must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.IdempotencyTTL <= 0 {
		return cfg, errors.New("IDEMPOTENCY_TTL must be > 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if b := getoptbool(k); b != nil {
		return *b
	}
	return def
}

// getoptbool returns nil when k is unset or unparsable so callers can tell
// "explicitly false" from "not configured".
func getoptbool(k string) *bool {
	v, ok := os.LookupEnv(k)
	if !ok || v == "" {
		return nil
	}
	var b bool
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y", "on":
		b = true
	case "0", "false", "no", "n", "off":
		b = false
	default:
		return nil
	}
	return &b
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

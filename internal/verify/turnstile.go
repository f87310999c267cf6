// Package verify implements the human-verification gate for public form
// submissions. The only backend is Cloudflare Turnstile's siteverify API.
package verify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/contact-backend/internal/config"
)

var (
	// ErrMissingToken is returned when verification is enabled but the client
	// sent no token. No outbound call is made.
	ErrMissingToken = errors.New("verification required")

	// ErrVerificationFailed covers every unsuccessful siteverify exchange:
	// network error, non-2xx status, undecodable body or success=false.
	ErrVerificationFailed = errors.New("verification failed")
)

// Verifier checks a client token. remoteIP is advisory and may be empty.
type Verifier interface {
	Verify(ctx context.Context, token, remoteIP string) error
}

// maxResponseBytes caps how much of the siteverify body is read.
const maxResponseBytes = 64 << 10

// siteverifyResponse is the subset of the Turnstile reply we consume.
type siteverifyResponse struct {
	Success     bool     `json:"success"`
	ErrorCodes  []string `json:"error-codes"`
	Hostname    string   `json:"hostname"`
	ChallengeTS string   `json:"challenge_ts"`
	Action      string   `json:"action"`
}

// Turnstile verifies tokens against the siteverify endpoint.
type Turnstile struct {
	Secret    string
	VerifyURL string
	Client    *http.Client
}

// NewTurnstile builds a verifier from cfg. The HTTP client timeout bounds the
// whole exchange.
func NewTurnstile(cfg config.TurnstileConfig) *Turnstile {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Turnstile{
		Secret:    cfg.SecretKey,
		VerifyURL: cfg.VerifyURL,
		Client:    &http.Client{Timeout: timeout},
	}
}

// Verify posts secret, response and remoteip as a form and returns nil only
// when the reply reports success.
func (t *Turnstile) Verify(ctx context.Context, token, remoteIP string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrMissingToken
	}

	ctx, span := otel.Tracer("verify/Turnstile").Start(ctx, "Verify",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("client.address", remoteIP)),
	)
	defer span.End()

	err := t.siteverify(ctx, token, remoteIP)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "verification failed")
		log.Warn().Err(err).Str("remote_ip", remoteIP).Msg("turnstile verification failed")
		return fmt.Errorf("%w: %v", ErrVerificationFailed, err)
	}
	return nil
}

func (t *Turnstile) siteverify(ctx context.Context, token, remoteIP string) error {
	form := url.Values{}
	form.Set("secret", t.Secret)
	form.Set("response", token)
	if remoteIP != "" && remoteIP != "unknown" {
		form.Set("remoteip", remoteIP)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.VerifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("siteverify status %d", resp.StatusCode)
	}

	var out siteverifyResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&out); err != nil {
		return fmt.Errorf("decode siteverify: %w", err)
	}
	if !out.Success {
		return fmt.Errorf("rejected: %s", strings.Join(out.ErrorCodes, ","))
	}
	return nil
}

// Noop accepts every token. It is used when no secret is configured.
type Noop struct{}

// Verify always succeeds.
func (Noop) Verify(context.Context, string, string) error { return nil }

// New returns a Turnstile verifier when a secret is configured and Noop
// otherwise.
func New(cfg config.TurnstileConfig) Verifier {
	if !cfg.Enabled() {
		return Noop{}
	}
	return NewTurnstile(cfg)
}

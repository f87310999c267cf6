// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file handles the Idempotency-Key header on the contact route. A form
// that retries after a dropped connection sends the same key again; when the
// earlier attempt from the same client produced a submission that is still
// stored, the request is marked as a replay so the rate limiter lets it
// through and the handler answers with the stored record.
package middleware

import (
	"context"
	"net/http"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey carries the client's retry key.
const HeaderIdempotencyKey = "Idempotency-Key"

const (
	ctxKeyIdemKey    = "idem.key"
	ctxKeyIdemReplay = "idem.replay" // bool: a stored submission will be replayed
	ctxKeyRateBypass = "rate.bypass" // bool: skip the rate limiter
)

var defaultKeyPattern = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)

// GetIdempotencyKey returns the validated key stashed by IdempotencyValidator.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxKeyIdemKey)
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, s != ""
}

// IsReplay reports whether the request repeats a key whose submission is
// still stored for this client.
func IsReplay(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyIdemReplay)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// IdempotencyOptions configures IdempotencyValidator.
type IdempotencyOptions struct {
	// MaxLen caps the key length. Values <= 0 default to 200.
	MaxLen int
	// Pattern restricts allowed characters; nil means ^[A-Za-z0-9._~\-:]+$.
	Pattern *regexp.Regexp
	// ClientKey scopes keys per client. Defaults to KeyByClient.
	ClientKey KeyFunc
	// ChargeInvalid, when set, runs before a malformed key is rejected so the
	// attempt still counts against the client's window. Returning false means
	// it already wrote a response.
	ChargeInvalid func(*gin.Context) bool
}

// IdempotencyLookup reports whether (clientKey, key) maps to a submission that
// can be replayed right now. Records whose submission is gone must report
// false so the request is limited like any other.
type IdempotencyLookup func(ctx context.Context, clientKey, key string, now time.Time) (exists bool, err error)

// IdempotencyValidator validates the Idempotency-Key header and marks replays.
//
//   - No header: no-op.
//   - Malformed header: charged via ChargeInvalid, then 400 BadRequestError.
//   - Lookup hit: replay and rate-bypass flags are set.
//   - Lookup error: logged, request proceeds as a fresh submission.
func IdempotencyValidator(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = 200
	}
	pat := opts.Pattern
	if pat == nil {
		pat = defaultKeyPattern
	}
	clientKey := opts.ClientKey
	if clientKey == nil {
		clientKey = KeyByClient()
	}

	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			if opts.ChargeInvalid != nil && !opts.ChargeInvalid(c) {
				return
			}
			c.AbortWithStatusJSON(http.StatusBadRequest, errorBody(
				http.StatusBadRequest, "BadRequestError", "invalid Idempotency-Key", GetRequestID(c),
			))
			return
		}

		c.Set(ctxKeyIdemKey, key)

		if lookup != nil {
			exists, err := lookup(c.Request.Context(), clientKey(c), key, time.Now().UTC())
			if err != nil {
				LoggerFrom(c).Warn().Err(err).Msg("idempotency lookup failed")
			}
			if exists {
				c.Set(ctxKeyIdemReplay, true)
				c.Set(ctxKeyRateBypass, true)
			}
		}

		c.Next()
	}
}

// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements the contact-form rate limiter: a fixed window of W
// per client identifier, allowing at most N submissions per window.
//
// Policy per identifier:
//   - no record, or the window has elapsed → start a new window with count 1
//   - count >= N → reject
//   - otherwise → increment and allow
//
// Two stores are available. The memory store keeps windows in a map guarded
// by a mutex and is swept periodically (Start/Stop). The Redis store runs an
// atomic check-and-increment script and lets key TTLs expire windows, so
// several replicas share one budget.
//
// Store errors fail open: the request proceeds and the error is logged.
package middleware

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/contact-backend/internal/sysutil"
)

// RateLimitMessage is the client-facing message of a 429 response.
const RateLimitMessage = "Too many submissions. Please try again later."

// rateLimitedTotal counts requests rejected by the window limiter.
var rateLimitedTotal = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "contact_rate_limited_total",
	Help: "Contact submissions rejected by the rate limiter.",
})

func init() {
	prometheus.MustRegister(rateLimitedTotal)
}

// KeyFunc selects the identity used to key a rate-limit window.
type KeyFunc func(*gin.Context) string

// KeyByClient keys windows by sysutil.ClientIdentifier (first X-Forwarded-For
// hop, X-Real-IP, remote address, "unknown").
func KeyByClient() KeyFunc {
	return func(c *gin.Context) string {
		return sysutil.ClientIdentifier(c.Request)
	}
}

// windowStore is implemented by memoryWindowStore and redisWindowStore.
type windowStore interface {
	// hit records one attempt for key. When rejected, retryAfter is the time
	// left in the current window.
	hit(ctx context.Context, key string, now time.Time) (allowed bool, retryAfter time.Duration, err error)
	// sweep drops expired windows and reports how many were removed.
	sweep(now time.Time) int
}

// rateWindow is the per-identifier counter.
type rateWindow struct {
	count int
	start time.Time
}

type memoryWindowStore struct {
	max    int
	window time.Duration

	mu      sync.Mutex
	windows map[string]*rateWindow
}

func newMemoryWindowStore(max int, window time.Duration) *memoryWindowStore {
	return &memoryWindowStore{max: max, window: window, windows: make(map[string]*rateWindow)}
}

func (s *memoryWindowStore) hit(_ context.Context, key string, now time.Time) (bool, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[key]
	if !ok || now.Sub(w.start) > s.window {
		s.windows[key] = &rateWindow{count: 1, start: now}
		return true, 0, nil
	}
	if w.count >= s.max {
		return false, w.start.Add(s.window).Sub(now), nil
	}
	w.count++
	return true, 0, nil
}

func (s *memoryWindowStore) sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, w := range s.windows {
		if now.Sub(w.start) > s.window {
			delete(s.windows, k)
			n++
		}
	}
	return n
}

func (s *memoryWindowStore) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows)
}

// windowScript returns {allowed, pttl}. The first hit creates the key with a
// TTL of one window; later hits only increment while under the limit.
var windowScript = redis.NewScript(`
local c = redis.call('GET', KEYS[1])
if not c then
  redis.call('SET', KEYS[1], 1, 'PX', ARGV[1])
  return {1, tonumber(ARGV[1])}
end
local ttl = redis.call('PTTL', KEYS[1])
if tonumber(c) >= tonumber(ARGV[2]) then
  return {0, ttl}
end
redis.call('INCR', KEYS[1])
return {1, ttl}
`)

type redisWindowStore struct {
	client redis.Scripter
	prefix string
	max    int
	window time.Duration
}

func (s *redisWindowStore) hit(ctx context.Context, key string, _ time.Time) (bool, time.Duration, error) {
	res, err := windowScript.Run(ctx, s.client,
		[]string{s.prefix + ":" + key},
		s.window.Milliseconds(), s.max,
	).Int64Slice()
	if err != nil {
		return false, 0, err
	}
	if len(res) != 2 {
		return false, 0, errUnexpectedScriptReply
	}
	return res[0] == 1, time.Duration(res[1]) * time.Millisecond, nil
}

// sweep is a no-op: Redis expires windows through key TTLs.
func (s *redisWindowStore) sweep(time.Time) int { return 0 }

var errUnexpectedScriptReply = errors.New("ratelimit: unexpected script reply")

// WindowLimiter enforces at most Max attempts per Window for each key.
//
// This type is safe for concurrent use.
type WindowLimiter struct {
	max        int
	window     time.Duration
	sweepEvery time.Duration
	store      windowStore
	keyFn      KeyFunc
	now        func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewMemoryWindowLimiter returns a process-local limiter. Call Start to run
// the background sweep.
func NewMemoryWindowLimiter(max int, window, sweepEvery time.Duration, keyFn KeyFunc) *WindowLimiter {
	return newWindowLimiter(max, window, sweepEvery, keyFn, newMemoryWindowStore(max, window))
}

// NewRedisWindowLimiter returns a limiter whose windows live in Redis under
// prefix. Start/Stop are no-ops for this store.
func NewRedisWindowLimiter(client redis.Scripter, prefix string, max int, window time.Duration, keyFn KeyFunc) *WindowLimiter {
	if prefix == "" {
		prefix = "contact:ratelimit"
	}
	store := &redisWindowStore{client: client, prefix: prefix, max: max, window: window}
	return newWindowLimiter(max, window, 0, keyFn, store)
}

func newWindowLimiter(max int, window, sweepEvery time.Duration, keyFn KeyFunc, store windowStore) *WindowLimiter {
	if max < 1 {
		max = 1
	}
	if keyFn == nil {
		keyFn = KeyByClient()
	}
	return &WindowLimiter{
		max:        max,
		window:     window,
		sweepEvery: sweepEvery,
		store:      store,
		keyFn:      keyFn,
		now:        time.Now,
	}
}

// Allow records an attempt for key and reports whether it is within budget.
func (l *WindowLimiter) Allow(ctx context.Context, key string) (bool, error) {
	ok, _, err := l.store.hit(ctx, key, l.now())
	return ok, err
}

// Sweep removes expired windows now. It returns the number removed.
func (l *WindowLimiter) Sweep() int {
	return l.store.sweep(l.now())
}

// Start runs the periodic sweep until ctx is cancelled or Stop is called.
// Calling Start twice has no effect.
func (l *WindowLimiter) Start(ctx context.Context) {
	if l.sweepEvery <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.done = make(chan struct{})

	t := time.NewTicker(l.sweepEvery)
	go func(done chan struct{}) {
		defer close(done)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if n := l.Sweep(); n > 0 {
					log.Debug().Int("removed", n).Msg("rate limit sweep")
				}
			}
		}
	}(l.done)
}

// Stop ends the sweep started by Start and waits for it to exit.
func (l *WindowLimiter) Stop() {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.cancel, l.done = nil, nil
	l.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
}

// IsRateBypass reports whether IdempotencyValidator marked this request for
// rate-limit bypass (i.e., it is a replay of a previously completed request).
func IsRateBypass(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyRateBypass)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// Handler returns a Gin middleware enforcing the window.
//
// The middleware emits:
//
//	HTTP/1.1 429 Too Many Requests
//	Retry-After: <seconds>
//	{
//	  "data": null,
//	  "error": {"status": 429, "name": "TooManyRequests", "message": "Too many submissions. Please try again later."}
//	}
func (l *WindowLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsRateBypass(c) || l.Charge(c) {
			c.Next()
		}
	}
}

// Charge counts the request against its client's window. When the window is
// full it writes the 429 response, aborts c and returns false.
func (l *WindowLimiter) Charge(c *gin.Context) bool {
	key := l.keyFn(c)
	ok, retry, err := l.store.hit(c.Request.Context(), key, l.now())
	if err != nil {
		LoggerFrom(c).Error().Err(err).Str("client", key).Msg("rate limit store error; allowing request")
		return true
	}
	if ok {
		return true
	}

	rateLimitedTotal.Inc()
	LoggerFrom(c).Warn().Str("client", key).Msg("contact rate limit exceeded")

	c.Header("Retry-After", strconv.Itoa(retrySeconds(retry)))
	c.AbortWithStatusJSON(http.StatusTooManyRequests, errorBody(
		http.StatusTooManyRequests, "TooManyRequests", RateLimitMessage, GetRequestID(c),
	))
	return false
}

// retrySeconds rounds d up to whole seconds, minimum 1.
func retrySeconds(d time.Duration) int {
	s := int(math.Ceil(d.Seconds()))
	if s < 1 {
		return 1
	}
	return s
}

package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"

	"github.com/tbourn/contact-backend/internal/config"
	"github.com/tbourn/contact-backend/internal/domain"
)

// Dispatcher sends notifications in the background. Callers never wait on
// delivery and delivery errors never reach them.
type Dispatcher struct {
	sender   Sender
	provider string
	from     string
	to       string
	timeout  time.Duration

	pool    *WorkerPool
	limiter *rate.Limiter

	startOnce sync.Once
	stopOnce  sync.Once
	cancel    context.CancelFunc
}

// NewDispatcher builds a dispatcher for sender using the pacing and pool
// settings in cfg. Call Start before dispatching.
func NewDispatcher(sender Sender, cfg config.MailConfig) *Dispatcher {
	timeout := cfg.SendTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	lim := rate.NewLimiter(rate.Inf, 1)
	if cfg.RatePerSec > 0 {
		lim = rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1)
	}
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" {
		provider = config.ProviderGmail
	}
	return &Dispatcher{
		sender:   sender,
		provider: provider,
		from:     cfg.Sender(),
		to:       strings.TrimSpace(cfg.To),
		timeout:  timeout,
		pool:     NewWorkerPool(cfg.Workers, cfg.QueueSize),
		limiter:  lim,
	}
}

// Start launches the workers. They run on a context detached from any
// request; Stop drains them.
func (d *Dispatcher) Start() {
	d.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		d.cancel = cancel
		d.pool.Start(ctx)
	})
}

// Stop stops accepting work, waits for queued sends to finish and releases
// the workers.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		d.pool.Stop()
		if d.cancel != nil {
			d.cancel()
		}
	})
}

// Notify renders the notification for s and enqueues it. It returns false
// when nothing was enqueued (no recipient, render error or full queue).
func (d *Dispatcher) Notify(s *domain.Submission) bool {
	if d.to == "" {
		notificationsTotal.WithLabelValues(d.provider, resultSkipped).Inc()
		log.Warn().Uint("submission_id", s.ID).Msg("CONTACT_EMAIL not set; skipping notification")
		return false
	}
	p, err := BuildPayload(s, d.from, d.to)
	if err != nil {
		notificationsTotal.WithLabelValues(d.provider, resultFailed).Inc()
		log.Error().Err(err).Uint("submission_id", s.ID).Msg("render contact notification")
		return false
	}
	return d.Dispatch(p)
}

// Dispatch enqueues p without blocking.
func (d *Dispatcher) Dispatch(p Payload) bool {
	ok := d.pool.TrySubmit(func() { d.send(p) })
	if !ok {
		notificationsTotal.WithLabelValues(d.provider, resultDropped).Inc()
		log.Error().Str("provider", d.provider).Str("reply_to", p.ReplyTo).Msg("notification queue full; dropping contact notification")
	}
	return ok
}

func (d *Dispatcher) send(p Payload) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	ctx, span := otel.Tracer("notify/Dispatcher").Start(ctx, "Send")
	span.SetAttributes(attribute.String("email.provider", d.provider))
	defer span.End()

	start := time.Now()
	err := d.limiter.Wait(ctx)
	if err == nil {
		err = d.safeSend(ctx, p)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "send failed")
		notificationsTotal.WithLabelValues(d.provider, resultFailed).Inc()
		log.Error().Err(err).
			Str("provider", d.provider).
			Dur("elapsed", time.Since(start)).
			Msg("failed to send contact form email")
		return
	}
	notificationsTotal.WithLabelValues(d.provider, resultSent).Inc()
	log.Info().
		Str("provider", d.provider).
		Str("reply_to", p.ReplyTo).
		Dur("elapsed", time.Since(start)).
		Msg("contact form email sent")
}

func (d *Dispatcher) safeSend(ctx context.Context, p Payload) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sender panic: %v", r)
		}
	}()
	return d.sender.Send(ctx, p)
}

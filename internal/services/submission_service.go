// Package services – SubmissionService
//
// This file implements the contact-submission pipeline:
// honeypot gate → verification gate → validation → persistence → dispatch.
// Each gate short-circuits; notification is handed off to a background
// dispatcher and never affects the result.
//
// Observability: Submit is OpenTelemetry-instrumented and every outcome is
// counted in contact_submissions_total.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/tbourn/contact-backend/internal/domain"
	"github.com/tbourn/contact-backend/internal/repo"
	"github.com/tbourn/contact-backend/internal/verify"
)

// SubmissionRepo defines the persistence contract required by
// SubmissionService.
type SubmissionRepo interface {
	// CreateSubmission inserts s and assigns its ID.
	CreateSubmission(ctx context.Context, db *gorm.DB, s *domain.Submission) error

	// GetSubmission fetches a submission by id.
	GetSubmission(ctx context.Context, db *gorm.DB, id uint) (*domain.Submission, error)
}

// Notifier hands a persisted submission to background delivery. It must not
// block; the return value only reports whether the notification was queued.
type Notifier interface {
	Notify(s *domain.Submission) bool
}

// gormSubmissionRepo adapts the package-level repo functions.
type gormSubmissionRepo struct{}

func (gormSubmissionRepo) CreateSubmission(ctx context.Context, db *gorm.DB, s *domain.Submission) error {
	return repo.CreateSubmission(ctx, db, s)
}

func (gormSubmissionRepo) GetSubmission(ctx context.Context, db *gorm.DB, id uint) (*domain.Submission, error) {
	return repo.GetSubmission(ctx, db, id)
}

// SubmitResult is the outcome of a successful Submit. Spam results carry a
// synthetic, unsaved submission with ID 0.
type SubmitResult struct {
	Submission *domain.Submission
	Spam       bool
}

// SubmissionService coordinates the contact-form pipeline.
type SubmissionService struct {
	DB       *gorm.DB
	Repo     SubmissionRepo
	Verifier verify.Verifier // nil disables the verification gate
	Notifier Notifier        // nil disables notifications

	// Now is used for synthetic honeypot responses. Defaults to time.Now.
	Now func() time.Time
}

// NewSubmissionService wires the service with the GORM-backed repo.
func NewSubmissionService(db *gorm.DB, v verify.Verifier, n Notifier) *SubmissionService {
	return &SubmissionService{DB: db, Repo: gormSubmissionRepo{}, Verifier: v, Notifier: n}
}

// Submit runs in through the gates and persists it. remoteIP is forwarded to
// the verifier.
//
// Errors:
//   - verify.ErrMissingToken / verify.ErrVerificationFailed
//   - ErrInvalidSubmission (wrapping the validator error)
//   - ErrPersistence (wrapping the store error)
func (s *SubmissionService) Submit(ctx context.Context, in domain.SubmissionInput, remoteIP string) (*SubmitResult, error) {
	ctx, span := otel.Tracer("services/SubmissionService").Start(ctx, "Submit")
	defer span.End()

	// Honeypot: bots fill every field. Pretend success, store nothing.
	if in.IsHoneypotFilled() {
		submissionsTotal.WithLabelValues(OutcomeSpam).Inc()
		span.SetAttributes(attribute.String("contact.outcome", OutcomeSpam))
		log.Info().Str("remote_ip", remoteIP).Msg("honeypot triggered; discarding submission")
		return &SubmitResult{Submission: in.Normalize().Echo(s.now()), Spam: true}, nil
	}

	if s.Verifier != nil {
		if err := s.Verifier.Verify(ctx, in.TurnstileToken, remoteIP); err != nil {
			submissionsTotal.WithLabelValues(OutcomeUnverified).Inc()
			span.SetAttributes(attribute.String("contact.outcome", OutcomeUnverified))
			return nil, err
		}
	}

	clean := in.Normalize()
	if err := clean.Validate(); err != nil {
		submissionsTotal.WithLabelValues(OutcomeInvalid).Inc()
		span.SetAttributes(attribute.String("contact.outcome", OutcomeInvalid))
		return nil, fmt.Errorf("%w: %w", ErrInvalidSubmission, err)
	}

	sub := clean.ToSubmission()
	if err := s.repo().CreateSubmission(ctx, s.DB, sub); err != nil {
		submissionsTotal.WithLabelValues(OutcomePersistError).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "create submission")
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	submissionsTotal.WithLabelValues(OutcomeCreated).Inc()
	span.SetAttributes(
		attribute.String("contact.outcome", OutcomeCreated),
		attribute.Int64("contact.submission_id", int64(sub.ID)),
	)

	if s.Notifier != nil {
		s.Notifier.Notify(sub)
	}
	return &SubmitResult{Submission: sub}, nil
}

// Get returns a stored submission, used to replay idempotent requests.
func (s *SubmissionService) Get(ctx context.Context, id uint) (*domain.Submission, error) {
	sub, err := s.repo().GetSubmission(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrSubmissionNotFound
	}
	if err != nil {
		return nil, err
	}
	return sub, nil
}

func (s *SubmissionService) repo() SubmissionRepo {
	if s.Repo == nil {
		return gormSubmissionRepo{}
	}
	return s.Repo
}

func (s *SubmissionService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

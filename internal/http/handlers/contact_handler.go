// Contact submission HTTP handler.
//
// This file exposes:
//   - POST /api/contact-submissions
//
// The handler is transport-thin: it decodes the {"data": {...}} body, hands
// it to the submission service, and translates the outcome into the response
// envelope. Rate limiting and Idempotency-Key validation run as route
// middleware in front of it.
//
// Idempotency:
// If the client supplies an Idempotency-Key and a stored result exists for
// (client, key), the stored submission is returned with
// `Idempotency-Replayed: true` and nothing is created or sent again.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/tbourn/contact-backend/internal/domain"
	"github.com/tbourn/contact-backend/internal/http/middleware"
	"github.com/tbourn/contact-backend/internal/repo"
	"github.com/tbourn/contact-backend/internal/services"
	"github.com/tbourn/contact-backend/internal/sysutil"
	"github.com/tbourn/contact-backend/internal/verify"
)

// SubmissionService is the application contract consumed by the handler.
type SubmissionService interface {
	// Submit runs the honeypot, verification and validation gates and
	// persists the result.
	Submit(ctx context.Context, in domain.SubmissionInput, remoteIP string) (*services.SubmitResult, error)
	// Get fetches a stored submission (used for idempotent replays).
	Get(ctx context.Context, id uint) (*domain.Submission, error)
}

// Handlers groups the contact endpoints.
type Handlers struct {
	svc SubmissionService

	// db backs the idempotency records; nil disables replay support.
	db      *gorm.DB
	idemTTL time.Duration
	now     func() time.Time
}

// New constructs Handlers. db may be nil, in which case Idempotency-Key is
// accepted but never replayed.
func New(svc SubmissionService, db *gorm.DB, idemTTL time.Duration) *Handlers {
	if idemTTL <= 0 {
		idemTTL = 24 * time.Hour
	}
	return &Handlers{svc: svc, db: db, idemTTL: idemTTL, now: time.Now}
}

//
// DTOs
//

// CreateSubmissionRequest is the JSON body of a contact submission.
type CreateSubmissionRequest struct {
	Data *domain.SubmissionInput `json:"data" binding:"required"`
}

// SubmissionResponse documents the success envelope for Swagger.
type SubmissionResponse struct {
	Data domain.Submission `json:"data"`
	Meta map[string]any    `json:"meta"`
}

// CreateSubmission godoc
// @ID          createContactSubmission
// @Summary     Submit the contact form
// @Description Stores a contact submission and emails a notification in the background.
// @Description Limited to 3 submissions per client per hour. A filled `website` field is
// @Description answered with a synthetic success (id 0) and discarded.
// @Description Supports safe retries via the Idempotency-Key header.
// @Tags        Contact
// @Accept      json
// @Produce     json
//
// @Param       Idempotency-Key  header  string  false "Idempotency key for safe retries (UUID recommended)"  example(7a8d9f4c-1b2a-4c3d-8e9f-0123456789ab)
// @Param       body             body    handlers.CreateSubmissionRequest  true  "Contact form payload"
//
// @Success     200  {object}  handlers.SubmissionResponse
// @Header      200  {string}  Idempotency-Replayed  "true when a stored result was replayed"
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid body, failed validation or verification"
// @Failure     429  {object}  handlers.ErrorResponse  "Too many submissions"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /api/contact-submissions [post]
func (h *Handlers) CreateSubmission(c *gin.Context) {
	ctx := c.Request.Context()
	client := sysutil.ClientIdentifier(c.Request)

	// Replay path: the validator middleware has already checked the key.
	idemKey, _ := middleware.GetIdempotencyKey(c)
	if prev := h.replay(ctx, client, idemKey); prev != nil {
		c.Header("Idempotency-Replayed", "true")
		ok(c, http.StatusOK, prev)
		return
	}

	var req CreateSubmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrNameValidation, MsgInvalidBody, nil)
		return
	}

	res, err := h.svc.Submit(ctx, *req.Data, client)
	if err != nil {
		switch {
		case errors.Is(err, verify.ErrMissingToken):
			fail(c, http.StatusBadRequest, ErrNameBadRequest, MsgVerificationRequired, nil)
		case errors.Is(err, verify.ErrVerificationFailed):
			fail(c, http.StatusBadRequest, ErrNameBadRequest, MsgVerificationFailed, nil)
		case errors.Is(err, services.ErrInvalidSubmission):
			fail(c, http.StatusBadRequest, ErrNameValidation, MsgInvalidSubmission, map[string]any{
				"errors": domain.Issues(err),
			})
		default:
			_ = c.Error(err)
			fail(c, http.StatusInternalServerError, ErrNameInternal, MsgInternal, nil)
		}
		return
	}

	// Store path, best effort. Spam never gets a record so a bot retrying
	// with the same key keeps receiving synthetic answers.
	if idemKey != "" && !res.Spam && h.db != nil {
		if _, err := repo.CreateIdempotency(ctx, h.db, client, idemKey, res.Submission.ID, http.StatusOK, h.idemTTL); err != nil && !errors.Is(err, repo.ErrDuplicate) {
			middleware.LoggerFrom(c).Warn().Err(err).Msg("store idempotency record")
		}
	}

	ok(c, http.StatusOK, res.Submission)
}

// replay returns the submission previously stored for (client, key), or nil.
// A record whose submission has disappeared is removed so the key can be
// stored again for the new submission.
func (h *Handlers) replay(ctx context.Context, client, key string) *domain.Submission {
	if key == "" || h.db == nil {
		return nil
	}
	rec, err := repo.ResolveIdempotency(ctx, h.db, client, key, h.now().UTC())
	if err != nil {
		return nil
	}
	prev, err := h.svc.Get(ctx, rec.SubmissionID)
	if errors.Is(err, services.ErrSubmissionNotFound) {
		_ = repo.DeleteIdempotency(ctx, h.db, rec.ID)
		return nil
	}
	if err != nil {
		return nil
	}
	return prev
}

// IdempotencyLookup adapts the idempotency table to the validator middleware.
// Only keys that still resolve to a stored submission count as replays.
func IdempotencyLookup(db *gorm.DB) middleware.IdempotencyLookup {
	return func(ctx context.Context, clientKey, key string, now time.Time) (bool, error) {
		_, err := repo.ResolveIdempotency(ctx, db, clientKey, key, now)
		if errors.Is(err, repo.ErrNotFound) {
			return false, nil
		}
		return err == nil, err
	}
}

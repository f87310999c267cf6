// Package domain defines the persistence models for contact submissions and
// the request-side input they are built from. Submission is mapped with GORM
// and forms the core data layer of the contact backend.
package domain

import (
	"errors"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
)

// Submission is a persisted contact-form entry.
//
// Fields:
//   - ID: autoincrement entity id. Zero is never assigned by the store and is
//     used as the sentinel id of synthetic (honeypot) responses.
//   - DocumentID: stable UUID exposed to API clients.
//   - Phone / Referral: optional; stored as NULL when not provided.
//   - CreatedAt / UpdatedAt: timestamps managed by GORM.
//   - PublishedAt: set on creation; submissions are published immediately.
type Submission struct {
	ID               uint      `json:"id"               gorm:"primaryKey;autoIncrement"`
	DocumentID       string    `json:"documentId"       gorm:"type:char(36);not null;uniqueIndex:ux_contact_document"`
	FirstName        string    `json:"firstName"        gorm:"type:varchar(100);not null"`
	LastName         string    `json:"lastName"         gorm:"type:varchar(100);not null"`
	Email            string    `json:"email"            gorm:"type:varchar(254);not null;index:idx_contact_email"`
	Phone            *string   `json:"phone"            gorm:"type:varchar(40)"`
	PreferredReading string    `json:"preferredReading" gorm:"type:varchar(100);not null"`
	Referral         *string   `json:"referral"         gorm:"type:varchar(255)"`
	Message          string    `json:"message"          gorm:"type:text;not null"`
	CreatedAt        time.Time `json:"createdAt"        gorm:"index:idx_contact_created"`
	UpdatedAt        time.Time `json:"updatedAt"`
	PublishedAt      time.Time `json:"publishedAt"`
}

// TableName returns the database table name for Submission.
func (Submission) TableName() string { return "contact_submissions" }

// FullName joins first and last name with a single space.
func (s Submission) FullName() string {
	return strings.TrimSpace(s.FirstName + " " + s.LastName)
}

// SubmissionInput is the client-supplied form body.
//
// Website is the honeypot field and TurnstileToken the human-verification
// token; neither is ever persisted (ToSubmission drops them).
type SubmissionInput struct {
	FirstName        string `json:"firstName"        validate:"required,max=100"`
	LastName         string `json:"lastName"         validate:"required,max=100"`
	Email            string `json:"email"            validate:"required,email,max=254"`
	Phone            string `json:"phone"            validate:"max=40"`
	PreferredReading string `json:"preferredReading" validate:"required,max=100"`
	Referral         string `json:"referral"         validate:"max=255"`
	Message          string `json:"message"          validate:"required,max=5000"`

	Website        string `json:"website"`
	TurnstileToken string `json:"turnstileToken"`
}

// IsHoneypotFilled reports whether the decoy field carries any content.
func (in SubmissionInput) IsHoneypotFilled() bool {
	return strings.TrimSpace(in.Website) != ""
}

// Normalize returns a copy with every text field trimmed and converted to
// Unicode NFC so visually identical input is stored identically.
func (in SubmissionInput) Normalize() SubmissionInput {
	clean := func(s string) string { return norm.NFC.String(strings.TrimSpace(s)) }
	return SubmissionInput{
		FirstName:        clean(in.FirstName),
		LastName:         clean(in.LastName),
		Email:            strings.ToLower(clean(in.Email)),
		Phone:            clean(in.Phone),
		PreferredReading: clean(in.PreferredReading),
		Referral:         clean(in.Referral),
		Message:          clean(in.Message),
		Website:          in.Website,
		TurnstileToken:   strings.TrimSpace(in.TurnstileToken),
	}
}

// Validate checks the persisted field set. The returned error, when non-nil,
// is a validator.ValidationErrors; use Issues to render it.
func (in SubmissionInput) Validate() error {
	return validate().Struct(in)
}

// ToSubmission builds the entity that will be handed to the store. The
// honeypot and token fields are stripped here.
func (in SubmissionInput) ToSubmission() *Submission {
	return &Submission{
		DocumentID:       uuid.NewString(),
		FirstName:        in.FirstName,
		LastName:         in.LastName,
		Email:            in.Email,
		Phone:            optional(in.Phone),
		PreferredReading: in.PreferredReading,
		Referral:         optional(in.Referral),
		Message:          in.Message,
	}
}

// Echo builds an unsaved Submission with id 0, used for responses that must
// look like a successful creation without touching the store.
func (in SubmissionInput) Echo(now time.Time) *Submission {
	s := in.ToSubmission()
	s.CreatedAt, s.UpdatedAt, s.PublishedAt = now, now, now
	return s
}

// FieldIssue describes one invalid input field.
type FieldIssue struct {
	Path    []string `json:"path"`
	Message string   `json:"message"`
	Name    string   `json:"name"`
}

// Issues converts a validation error into per-field issues. Errors that are
// not validator errors yield nil.
func Issues(err error) []FieldIssue {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	out := make([]FieldIssue, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, FieldIssue{
			Path:    []string{fe.Field()},
			Message: issueMessage(fe),
			Name:    "ValidationError",
		})
	}
	return out
}

func issueMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " must be defined."
	case "email":
		return fe.Field() + " must be a valid email"
	case "max":
		return fe.Field() + " must be at most " + fe.Param() + " characters"
	default:
		return fe.Field() + " is invalid"
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

var (
	validatorOnce sync.Once
	validatorInst *validator.Validate
)

// validate returns the shared validator, reporting fields by their JSON name.
func validate() *validator.Validate {
	validatorOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		validatorInst = v
	})
	return validatorInst
}

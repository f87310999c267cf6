// Package services defines the business logic for contact submissions.
// This file centralizes service-level error values so that they can be
// consistently returned by service methods and checked by callers.
//
// Translation into HTTP status codes is performed by the handler layer.
// Verification errors are defined in package verify and passed through
// unchanged.
package services

import "errors"

var (
	// ErrInvalidSubmission wraps field validation failures. The wrapped
	// validator error can be rendered with domain.Issues.
	ErrInvalidSubmission = errors.New("invalid submission")

	// ErrPersistence wraps store failures while creating a submission.
	ErrPersistence = errors.New("persistence failed")

	// ErrSubmissionNotFound is returned when a stored submission cannot be
	// located (e.g., an idempotent replay of a deleted record).
	ErrSubmissionNotFound = errors.New("submission not found")
)

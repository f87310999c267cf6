// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Submission
// model.
//
// All functions are context-aware and accept a *gorm.DB handle, so they can
// run inside a transaction. They carry no business logic: validation and
// honeypot/verification gates live in the service layer.
//
// Error semantics:
//   - When a submission is not found, functions return ErrNotFound.
//   - Other DB errors are propagated unchanged.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/contact-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound so callers can match either.
var ErrNotFound = gorm.ErrRecordNotFound

// CreateSubmission inserts s and fills its ID and timestamps. CreatedAt,
// UpdatedAt and PublishedAt default to the current UTC time when zero.
func CreateSubmission(ctx context.Context, db *gorm.DB, s *domain.Submission) error {
	now := time.Now().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = s.CreatedAt
	}
	if s.PublishedAt.IsZero() {
		s.PublishedAt = s.CreatedAt
	}
	return db.WithContext(ctx).Create(s).Error
}

// GetSubmission fetches a submission by its numeric id.
func GetSubmission(ctx context.Context, db *gorm.DB, id uint) (*domain.Submission, error) {
	var s domain.Submission
	err := db.WithContext(ctx).First(&s, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// CountSubmissions returns the number of stored submissions.
func CountSubmissions(ctx context.Context, db *gorm.DB) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.Submission{}).Count(&n).Error
	return n, err
}

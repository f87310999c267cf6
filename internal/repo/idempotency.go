// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository helpers for the Idempotency
// model used to implement safe-retry semantics for the contact endpoint.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/contact-backend/internal/domain"
)

// ErrDuplicate indicates that an idempotency record already exists for the
// given (client_key, key) pair.
var ErrDuplicate = errors.New("duplicate")

// GetIdempotency returns a non-expired record or ErrNotFound.
func GetIdempotency(ctx context.Context, db *gorm.DB, clientKey, key string, now time.Time) (*domain.Idempotency, error) {
	if strings.TrimSpace(key) == "" {
		return nil, ErrNotFound
	}
	var rec domain.Idempotency
	err := db.WithContext(ctx).
		Where("client_key = ? AND key = ? AND expires_at > ?", clientKey, key, now).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ResolveIdempotency returns the live record for (clientKey, key) only while
// the submission it points at still exists. A record left behind by a deleted
// submission is removed and reported as ErrNotFound, so the next attempt is
// treated as a fresh submission.
func ResolveIdempotency(ctx context.Context, db *gorm.DB, clientKey, key string, now time.Time) (*domain.Idempotency, error) {
	rec, err := GetIdempotency(ctx, db, clientKey, key, now)
	if err != nil {
		return nil, err
	}
	var n int64
	if err := db.WithContext(ctx).Model(&domain.Submission{}).Where("id = ?", rec.SubmissionID).Count(&n).Error; err != nil {
		return nil, err
	}
	if n == 0 {
		if err := DeleteIdempotency(ctx, db, rec.ID); err != nil {
			return nil, err
		}
		return nil, ErrNotFound
	}
	return rec, nil
}

// DeleteIdempotency removes a record by id. Missing records are not an error.
func DeleteIdempotency(ctx context.Context, db *gorm.DB, id string) error {
	return db.WithContext(ctx).Where("id = ?", id).Delete(&domain.Idempotency{}).Error
}

// CreateIdempotency inserts a record and returns ErrDuplicate on unique violation.
func CreateIdempotency(ctx context.Context, db *gorm.DB, clientKey, key string, submissionID uint, status int, ttl time.Duration) (*domain.Idempotency, error) {
	now := time.Now().UTC()
	rec := &domain.Idempotency{
		ID:           uuid.NewString(),
		ClientKey:    clientKey,
		Key:          key,
		SubmissionID: submissionID,
		Status:       status,
		CreatedAt:    now,
		ExpiresAt:    now.Add(ttl),
	}
	if err := db.WithContext(ctx).Create(rec).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return rec, nil
}

// PurgeExpiredIdempotency deletes records whose expiry is at or before now and
// returns how many were removed.
func PurgeExpiredIdempotency(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&domain.Idempotency{})
	return res.RowsAffected, res.Error
}

// isUniqueViolation matches GORM's translated error as well as the plain-text
// errors returned by glebarez/sqlite and pgx.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique") ||
		strings.Contains(low, "duplicate key value")
}

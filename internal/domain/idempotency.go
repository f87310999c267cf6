// Package domain defines the core persistence models for the application.
// These types are used by GORM for database schema mapping and are shared
// across the repository and service layers.
package domain

import "time"

// Idempotency records the submission produced for a given Idempotency-Key,
// scoped to the client that sent it. A retried POST carrying the same key
// replays SubmissionID instead of creating (and notifying) a second time.
type Idempotency struct {
	ID           string    `gorm:"type:varchar(36);primaryKey"`
	ClientKey    string    `gorm:"type:varchar(255);not null;uniqueIndex:ux_client_key,priority:1"`
	Key          string    `gorm:"type:varchar(255);not null;uniqueIndex:ux_client_key,priority:2"`
	SubmissionID uint      `gorm:"not null"`
	Status       int       `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null;autoCreateTime"`
	ExpiresAt    time.Time `gorm:"not null;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }

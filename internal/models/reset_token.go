package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TokenStatus is derived from the stored timestamps, never persisted.
type TokenStatus string

const (
	TokenActive   TokenStatus = "active"
	TokenExpired  TokenStatus = "expired"
	TokenConsumed TokenStatus = "consumed"
)

// ResetToken is a single-use password recovery token. The Token column holds
// the bearer secret; it must never appear in logs or any response other than
// the one-time delivery payload.
type ResetToken struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey"`
	UserID     uuid.UUID  `gorm:"type:uuid;index;not null"`
	Token      string     `gorm:"uniqueIndex;not null"`
	ExpiresAt  time.Time  `gorm:"not null"`
	ConsumedAt *time.Time `gorm:"default:null"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (t *ResetToken) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

// Status recomputes the token state from timestamps. Consumed wins over
// Expired; a token is Active strictly before ExpiresAt and invalid at the
// exact expiry instant.
func (t *ResetToken) Status(now time.Time) TokenStatus {
	if t.ConsumedAt != nil {
		return TokenConsumed
	}
	if !now.Before(t.ExpiresAt) {
		return TokenExpired
	}
	return TokenActive
}

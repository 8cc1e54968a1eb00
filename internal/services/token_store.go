package services

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/securecrop/backend/internal/config"
	"github.com/securecrop/backend/internal/models"
	"gorm.io/gorm"
)

const storeRetryAttempts = 3

// TokenStore is the single source of truth for reset token state. Every
// mutation is a conditional SQL statement so token state can never be
// corrupted by a read-then-write race.
type TokenStore struct {
	db  *gorm.DB
	cfg *config.Config
}

func NewTokenStore(db *gorm.DB, cfg *config.Config) *TokenStore {
	return &TokenStore{db: db, cfg: cfg}
}

// Create persists a new reset token inside the given transaction (or the
// base connection when tx is nil).
func (s *TokenStore) Create(tx *gorm.DB, token *models.ResetToken) error {
	if tx == nil {
		tx = s.db
	}
	if err := tx.Create(token).Error; err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// FindByToken looks up a token record by its bearer secret. Reads are
// retried a bounded number of times before reporting the store unavailable.
func (s *TokenStore) FindByToken(secret string) (*models.ResetToken, error) {
	var token models.ResetToken
	var lastErr error
	for attempt := 0; attempt < storeRetryAttempts; attempt++ {
		err := s.db.Where("token = ?", secret).First(&token).Error
		if err == nil {
			return &token, nil
		}
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidToken
		}
		lastErr = err
		time.Sleep(time.Duration(attempt+1) * 50 * time.Millisecond)
	}
	return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, lastErr)
}

// Consume atomically marks a token consumed. The condition and the write are
// one UPDATE, so under concurrent confirmations exactly one caller sees
// RowsAffected == 1; everyone else gets ErrInvalidToken. Never retried:
// re-running the statement after a success would misreport the outcome.
func (s *TokenStore) Consume(secret string, now time.Time) (*models.ResetToken, error) {
	result := s.db.Model(&models.ResetToken{}).
		Where("token = ? AND consumed_at IS NULL AND expires_at > ?", secret, now).
		Update("consumed_at", now)
	if result.Error != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrInvalidToken
	}

	var token models.ResetToken
	if err := s.db.Where("token = ?", secret).First(&token).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return &token, nil
}

// RevokeActiveForUser invalidates every active token of an account as one
// bulk conditional statement. The strategy is configurable: "expire" keeps
// the rows with expires_at forced to now, "delete" removes them outright.
func (s *TokenStore) RevokeActiveForUser(tx *gorm.DB, userID uuid.UUID, now time.Time) error {
	if tx == nil {
		tx = s.db
	}
	cond := "user_id = ? AND consumed_at IS NULL AND expires_at > ?"

	var result *gorm.DB
	if s.cfg.ResetRevokeStrategy == "delete" {
		result = tx.Where(cond, userID, now).Delete(&models.ResetToken{})
	} else {
		result = tx.Model(&models.ResetToken{}).Where(cond, userID, now).Update("expires_at", now)
	}
	if result.Error != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, result.Error)
	}
	return nil
}

// DummyRead performs a lookup of comparable cost to the real issuance path.
// Called for unknown accounts so response latency does not betray whether an
// email is registered.
func (s *TokenStore) DummyRead(now time.Time) {
	var token models.ResetToken
	err := s.db.Where("token = ? AND expires_at > ?", uuid.NewString(), now).First(&token).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		log.Printf("WARN: dummy token read failed: %v", err)
	}
}

// DeleteExpiredBefore hard-deletes tokens that expired or were consumed
// before the cutoff. Runs only from the background sweep, never on the
// request path.
func (s *TokenStore) DeleteExpiredBefore(cutoff time.Time) (int64, error) {
	result := s.db.Where("expires_at < ? OR consumed_at < ?", cutoff, cutoff).
		Delete(&models.ResetToken{})
	if result.Error != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, result.Error)
	}
	return result.RowsAffected, nil
}

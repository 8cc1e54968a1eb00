package services

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/securecrop/backend/internal/config"
	"github.com/securecrop/backend/internal/models"
	"github.com/securecrop/backend/pkg/crypto"
	"gorm.io/gorm"
)

// Passwords nobody should be allowed to reset to, regardless of length.
var weakPasswords = map[string]bool{
	"password":   true,
	"password1":  true,
	"12345678":   true,
	"123456789":  true,
	"qwertyuiop": true,
}

// CredentialService owns password hashing, storage and session invalidation.
// The reset flow never touches password hashes directly.
type CredentialService struct {
	db    *gorm.DB
	redis *redis.Client
	cfg   *config.Config
}

func NewCredentialService(db *gorm.DB, redisClient *redis.Client, cfg *config.Config) *CredentialService {
	return &CredentialService{db: db, redis: redisClient, cfg: cfg}
}

// ValidatePolicy applies credential rules beyond the minimum length check
func (s *CredentialService) ValidatePolicy(password string) error {
	if weakPasswords[strings.ToLower(password)] {
		return ErrPasswordPolicy
	}
	if strings.Count(password, string(password[0])) == len(password) {
		return ErrPasswordPolicy
	}
	return nil
}

// UpdatePassword hashes and durably stores a new credential for the account
func (s *CredentialService) UpdatePassword(userID uuid.UUID, newPassword string) error {
	hashed, err := crypto.HashPassword(newPassword, s.cfg.BcryptCost)
	if err != nil {
		return err
	}

	result := s.db.Model(&models.User{}).Where("id = ?", userID).Update("password", hashed)
	if result.Error != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// InvalidateSessions revokes the account's outstanding login sessions:
// stored refresh tokens are deleted and a revocation marker is set in Redis
// so access tokens issued before the reset can be rejected.
func (s *CredentialService) InvalidateSessions(userID uuid.UUID) error {
	if err := s.db.Where("user_id = ?", userID).Delete(&models.RefreshToken{}).Error; err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if s.redis != nil {
		key := fmt.Sprintf("sessions_revoked:%s", userID)
		if err := s.redis.Set(context.Background(), key, time.Now().UTC().Unix(), 24*time.Hour).Err(); err != nil {
			log.Printf("WARN: could not set session revocation marker for user %s: %v", userID, err)
		}
	}
	return nil
}

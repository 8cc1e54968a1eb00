package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/securecrop/backend/internal/config"
	"github.com/securecrop/backend/internal/models"
	"github.com/securecrop/backend/pkg/crypto"
	"github.com/securecrop/backend/pkg/validation"
	"gorm.io/gorm"
)

// ResetRequestMessage is returned for every issuance request, registered
// account or not. Response shape and text must not depend on account
// existence.
const ResetRequestMessage = "If your email is registered, you will receive a password reset link shortly."

// ResetService drives the password recovery flow: issuing tokens, verifying
// them and confirming the reset.
type ResetService struct {
	db          *gorm.DB
	store       *TokenStore
	users       *UserService
	credentials *CredentialService
	limiter     Limiter
	mailer      Mailer
	cfg         *config.Config
	now         func() time.Time
}

func NewResetService(db *gorm.DB, store *TokenStore, users *UserService, credentials *CredentialService, limiter Limiter, mailer Mailer, cfg *config.Config) *ResetService {
	return &ResetService{
		db:          db,
		store:       store,
		users:       users,
		credentials: credentials,
		limiter:     limiter,
		mailer:      mailer,
		cfg:         cfg,
		now:         time.Now,
	}
}

// SetNowFunc overrides the time source. Expiry is pure timestamp comparison,
// so tests can move the clock without sleeping.
func (s *ResetService) SetNowFunc(now func() time.Time) {
	s.now = now
}

// ResetRequestResult is the uniform issuance response.
type ResetRequestResult struct {
	Message   string
	DebugLink string // raw reset link, populated outside production only
}

// VerifyResult reports a valid token together with a masked account hint.
type VerifyResult struct {
	Valid bool
	Email string // masked
}

// RequestReset issues a new reset token for the account behind email. Every
// outcome other than a store outage returns the identical success-shaped
// result: unknown accounts and rate-limited callers get the same message
// with no observable difference.
func (s *ResetService) RequestReset(ctx context.Context, email, origin string) (*ResetRequestResult, error) {
	normalized := validation.NormalizeEmail(email)
	result := &ResetRequestResult{Message: ResetRequestMessage}

	// Evaluate both limiter keys unconditionally so cost does not depend on
	// which one trips.
	emailAllowed := s.limiter.Allow(ctx, "email:"+normalized)
	originAllowed := s.limiter.Allow(ctx, "ip:"+origin)
	if !emailAllowed || !originAllowed {
		log.Printf("WARN: reset request rate limited (origin %s)", origin)
		return result, nil
	}

	user, err := s.users.GetUserByEmail(normalized)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			// Equivalent-cost no-op so timing does not reveal that the
			// account does not exist.
			s.store.DummyRead(s.now())
			return result, nil
		}
		return nil, err
	}

	secret, err := crypto.GenerateResetToken()
	if err != nil {
		return nil, err
	}

	now := s.now()
	token := &models.ResetToken{
		UserID:    user.ID,
		Token:     secret,
		ExpiresAt: now.Add(s.cfg.ResetTokenTTL),
	}

	// Revoking prior tokens and creating the replacement commit together, so
	// no window exists where two active tokens coexist.
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.store.RevokeActiveForUser(tx, user.ID, now); err != nil {
			return err
		}
		return s.store.Create(tx, token)
	})
	if err != nil {
		return nil, err
	}

	resetURL := fmt.Sprintf("%s/reset-password?token=%s", s.cfg.FrontendURL, secret)

	// Delivery happens after the store write commits and is retried by the
	// mail infrastructure, not by us; a failure must not undo the token.
	go func() {
		if err := s.mailer.SendPasswordResetLink(user.Email, user.Username, resetURL); err != nil {
			log.Printf("ERROR: failed to send password reset email to %s: %v", user.Email, err)
		}
	}()

	if !s.cfg.IsProduction() && s.cfg.DebugResetLinks {
		result.DebugLink = resetURL
	}
	return result, nil
}

// VerifyToken is a pure read: it reports whether the token is currently
// active, with a masked account hint. NotFound, Expired and Consumed all
// collapse into ErrInvalidToken; the distinction stays internal.
func (s *ResetService) VerifyToken(token string) (*VerifyResult, error) {
	record, err := s.store.FindByToken(token)
	if err != nil {
		return nil, err
	}

	if status := record.Status(s.now()); status != models.TokenActive {
		log.Printf("INFO: reset token rejected (status %s)", status)
		return nil, ErrInvalidToken
	}

	user, err := s.users.GetUserByID(record.UserID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}

	return &VerifyResult{Valid: true, Email: validation.MaskEmail(user.Email)}, nil
}

// ConfirmReset consumes a token and applies the new credential. Validation
// fails fast without touching token state; the status check and the
// consumed_at write are one atomic store operation, so two concurrent calls
// with the same token cannot both succeed.
func (s *ResetService) ConfirmReset(token, newPassword, confirmPassword string) error {
	if newPassword != confirmPassword {
		return ErrPasswordMismatch
	}
	if len(newPassword) < 8 {
		return ErrPasswordTooShort
	}
	if err := s.credentials.ValidatePolicy(newPassword); err != nil {
		return err
	}

	now := s.now()
	record, err := s.store.Consume(token, now)
	if err != nil {
		return err
	}

	if err := s.credentials.UpdatePassword(record.UserID, newPassword); err != nil {
		// The token is already consumed and must stay consumed; retrying the
		// credential write could double-apply. Escalate to an operator.
		s.alertConsistencyFault(record, err)
		return fmt.Errorf("%w: %v", ErrConsistencyFault, err)
	}

	// Defense in depth after a successful reset: revoke the account's other
	// outstanding tokens and its login sessions. Best effort, the reset
	// itself already succeeded.
	if err := s.store.RevokeActiveForUser(nil, record.UserID, now); err != nil {
		log.Printf("WARN: failed to revoke outstanding tokens for user %s: %v", record.UserID, err)
	}
	if err := s.credentials.InvalidateSessions(record.UserID); err != nil {
		log.Printf("WARN: failed to invalidate sessions for user %s: %v", record.UserID, err)
	}

	return nil
}

// CleanupExpiredTokens hard-deletes tokens past the retention window. Runs
// from the background sweep only; correctness never depends on it because
// expiry is enforced by timestamp comparison on every read.
func (s *ResetService) CleanupExpiredTokens() (int64, error) {
	cutoff := s.now().Add(-s.cfg.ResetTokenRetention)
	return s.store.DeleteExpiredBefore(cutoff)
}

func (s *ResetService) alertConsistencyFault(record *models.ResetToken, cause error) {
	log.Printf("ERROR: consistency fault: token %s consumed but credential update failed for user %s: %v",
		record.ID, record.UserID, cause)

	subject := "SecureCrop: password reset consistency fault"
	body := fmt.Sprintf(`A password reset token was marked consumed but the credential update failed.

Token ID: %s
User ID:  %s
Error:    %v

The token has NOT been un-consumed. The user was told to request a new link.
Manual review is required to confirm the account's credential state.`,
		record.ID, record.UserID, cause)

	if err := s.mailer.SendOperatorAlert(subject, body); err != nil {
		log.Printf("ERROR: failed to deliver consistency fault alert: %v", err)
	}
}

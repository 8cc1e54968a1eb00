package services

import "errors"

// Sentinel errors for the password reset flow. Handlers map these to HTTP
// responses; enumeration-sensitive ones (ErrAccountNotFound, ErrRateLimited)
// must never reach a client as anything but the generic success message.
var (
	ErrInvalidToken     = errors.New("invalid or expired reset token")
	ErrPasswordMismatch = errors.New("passwords do not match")
	ErrPasswordTooShort = errors.New("password must be at least 8 characters")
	ErrPasswordPolicy   = errors.New("password is too weak")
	ErrRateLimited      = errors.New("too many reset requests")
	ErrAccountNotFound  = errors.New("account not found")
	ErrStoreUnavailable = errors.New("token store unavailable")
	ErrConsistencyFault = errors.New("credential update failed after token consumption")
)

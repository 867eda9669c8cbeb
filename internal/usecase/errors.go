package usecase

import "github.com/SYSUMSC/hackreg-t1-backend/internal/core/domain"

var (
	// ErrLoginRequired indicates the request carried no session cookie.
	ErrLoginRequired = domain.NewUnauthenticated("login required", nil)
	// ErrInvalidSession indicates the session cookie could not be verified or its account is gone.
	ErrInvalidSession = domain.NewUnauthenticated("unable to verify identity", nil)
	// ErrInvalidCredentials indicates the email or password did not match an account.
	ErrInvalidCredentials = domain.NewUnauthenticated("incorrect email or password", nil)
	// ErrAccountExists indicates the email is already registered.
	ErrAccountExists = domain.NewConflict("an account with this email already exists", nil)
	// ErrTooManyLoginAttempts indicates a login limiter bucket is exhausted.
	ErrTooManyLoginAttempts = domain.NewRateLimited("too many failed login attempts, try again later", nil)
	// ErrTooManyRequests indicates a route limiter bucket is exhausted.
	ErrTooManyRequests = domain.NewRateLimited("too many requests, try again later", nil)
	// ErrInvalidResetToken covers every way a reset confirmation can fail.
	ErrInvalidResetToken = domain.NewNotFoundOrInvalid("invalid or expired reset token", nil)
	// ErrSignupConfirmed indicates the signup form was confirmed and is now read-only.
	ErrSignupConfirmed = domain.NewForbidden("signup information is confirmed and can no longer be changed", nil)
	// ErrFileTooLarge indicates an upload exceeded the configured size limit.
	ErrFileTooLarge = domain.NewPayloadTooLarge("file size limit reached", nil)
	// ErrMissingUpload indicates the submission request carried no file.
	ErrMissingUpload = domain.NewValidationFailed("a work file is required", []string{"work"}, nil)
)

// weakPassword wraps a password policy failure as a validation error on field.
func weakPassword(field string, err error) error {
	return domain.NewValidationFailed("password does not meet complexity requirements", []string{field}, err)
}

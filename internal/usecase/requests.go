package usecase

import "github.com/SYSUMSC/hackreg-t1-backend/internal/core/domain"

// EmailBearer is implemented by payloads keyed by an email address.
type EmailBearer interface {
	EmailAddress() string
}

// CredentialsRequest is the body of register and login.
type CredentialsRequest struct {
	Email    string `json:"email" validate:"required,email,min=5,max=30"`
	Password string `json:"password" validate:"required,min=8,max=30"`
}

func (r *CredentialsRequest) EmailAddress() string { return r.Email }

// RegisterRequest additionally enforces the password policy.
type RegisterRequest struct {
	CredentialsRequest
}

func (r *RegisterRequest) CandidatePassword() (string, string, domain.PasswordContext) {
	return "password", r.Password, domain.PasswordContext{Email: r.Email}
}

// LoginRequest only checks shape; stored passwords predate the current policy.
type LoginRequest struct {
	CredentialsRequest
}

// ResetRequest asks for a reset email.
type ResetRequest struct {
	Email string `json:"email" validate:"required,email,min=5,max=30"`
}

func (r *ResetRequest) EmailAddress() string { return r.Email }

// ConfirmResetRequest redeems a reset secret for a new password.
type ConfirmResetRequest struct {
	Email    string `json:"email" validate:"required,email,min=5,max=30"`
	Password string `json:"password" validate:"required,min=8,max=30"`
	Token    string `json:"token" validate:"required,len=64"`
}

func (r *ConfirmResetRequest) EmailAddress() string { return r.Email }

func (r *ConfirmResetRequest) CandidatePassword() (string, string, domain.PasswordContext) {
	return "password", r.Password, domain.PasswordContext{Email: r.Email}
}

// UpdateSignupRequest replaces the signup form and optionally locks it.
type UpdateSignupRequest struct {
	Confirmed *bool             `json:"confirmed" validate:"required"`
	Form      domain.SignupForm `json:"form" validate:"required"`
}

package domain

import "time"

// AccountRegisteredEvent represents the payload for account.registered messages.
type AccountRegisteredEvent struct {
	EventID      string
	AccountID    string
	Email        string
	RegisteredAt time.Time
	IPAddress    string
}

// PasswordResetRequestedEvent represents the payload for account.password_reset_requested messages.
type PasswordResetRequestedEvent struct {
	EventID           string
	AccountID         string
	MaskedDestination string
	RequestedAt       time.Time
	ExpiresAt         time.Time
	IPAddress         string
}

// PasswordChangedEvent represents the payload for account.password_changed messages.
type PasswordChangedEvent struct {
	EventID   string
	AccountID string
	ChangedAt time.Time
	ChangedBy string
}

// SubmissionUploadedEvent represents the payload for submission.uploaded messages.
type SubmissionUploadedEvent struct {
	EventID    string
	AccountID  string
	Location   string
	SizeBytes  int64
	UploadedAt time.Time
}

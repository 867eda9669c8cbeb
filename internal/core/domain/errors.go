package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures surfaced to callers.
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindValidationFailed
	KindUnauthenticated
	KindForbidden
	KindConflict
	KindRateLimited
	KindNotFoundOrInvalid
	KindPayloadTooLarge
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidationFailed:
		return "validation_failed"
	case KindUnauthenticated:
		return "unauthenticated"
	case KindForbidden:
		return "forbidden"
	case KindConflict:
		return "conflict"
	case KindRateLimited:
		return "rate_limited"
	case KindNotFoundOrInvalid:
		return "not_found_or_invalid"
	case KindPayloadTooLarge:
		return "payload_too_large"
	default:
		return "internal"
	}
}

// Error is a classified failure with a message that is safe to show to clients.
type Error struct {
	Kind    ErrorKind
	Message string
	// Fields names the request fields that failed validation, if any.
	Fields []string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches errors of the same kind and message so sentinel values compare by identity of meaning.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Message == t.Message
}

func newError(kind ErrorKind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func NewValidationFailed(message string, fields []string, err error) *Error {
	e := newError(KindValidationFailed, message, err)
	e.Fields = fields
	return e
}

func NewUnauthenticated(message string, err error) *Error {
	return newError(KindUnauthenticated, message, err)
}

func NewForbidden(message string, err error) *Error {
	return newError(KindForbidden, message, err)
}

func NewConflict(message string, err error) *Error {
	return newError(KindConflict, message, err)
}

func NewRateLimited(message string, err error) *Error {
	return newError(KindRateLimited, message, err)
}

func NewNotFoundOrInvalid(message string, err error) *Error {
	return newError(KindNotFoundOrInvalid, message, err)
}

func NewPayloadTooLarge(message string, err error) *Error {
	return newError(KindPayloadTooLarge, message, err)
}

func NewInternal(err error) *Error {
	return newError(KindInternal, "internal server error", err)
}

// KindOf returns the kind of the first classified error in err's chain,
// or KindInternal when err is not classified.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

package usecase

import (
	"errors"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/SYSUMSC/hackreg-t1-backend/internal/core/domain"
	"github.com/SYSUMSC/hackreg-t1-backend/internal/core/port"
)

// ErrInvalidInput is the generic message for payloads that fail structural validation.
var ErrInvalidInput = domain.NewValidationFailed("the submitted information is invalid", nil, nil)

// NewRequestValidator returns a validator that reports fields by their JSON names.
func NewRequestValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return field.Name
		}
		return name
	})
	return v
}

// PasswordCandidate is implemented by payloads that set a new password.
type PasswordCandidate interface {
	CandidatePassword() (field, password string, ctx domain.PasswordContext)
}

// ValidatePayload runs struct validation and, for payloads carrying a new password,
// the password policy.
func ValidatePayload(v *validator.Validate, policy port.PasswordPolicyValidator, payload any) error {
	if err := v.Struct(payload); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			return domain.NewValidationFailed(ErrInvalidInput.Message, failedFields(fieldErrs), err)
		}
		return domain.NewValidationFailed(ErrInvalidInput.Message, nil, err)
	}
	if candidate, ok := payload.(PasswordCandidate); ok && policy != nil {
		field, password, ctx := candidate.CandidatePassword()
		if err := policy.Validate(password, ctx); err != nil {
			return weakPassword(field, err)
		}
	}
	return nil
}

func failedFields(errs validator.ValidationErrors) []string {
	seen := make(map[string]struct{}, len(errs))
	fields := make([]string, 0, len(errs))
	for _, fe := range errs {
		name := fe.Field()
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		fields = append(fields, name)
	}
	sort.Strings(fields)
	return fields
}

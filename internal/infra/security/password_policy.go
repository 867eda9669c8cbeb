package security

import (
	"fmt"
	"unicode"

	zxcvbn "github.com/nbutton23/zxcvbn-go"

	"github.com/SYSUMSC/hackreg-t1-backend/internal/core/domain"
)

const (
	defaultMinPasswordLength   = 8
	defaultMaxPasswordLength   = 30
	defaultMinCharacterClasses = 2
	defaultMinZxcvbnScore      = 2
)

// PasswordPolicyConfig tunes the password policy. Zero class and score minimums
// disable those checks.
type PasswordPolicyConfig struct {
	MinLength           int
	MaxLength           int
	MinCharacterClasses int
	MinStrengthScore    int
}

// DefaultPasswordPolicyConfig returns the policy used when nothing is configured.
func DefaultPasswordPolicyConfig() PasswordPolicyConfig {
	return PasswordPolicyConfig{
		MinLength:           defaultMinPasswordLength,
		MaxLength:           defaultMaxPasswordLength,
		MinCharacterClasses: defaultMinCharacterClasses,
		MinStrengthScore:    defaultMinZxcvbnScore,
	}
}

// PasswordViolation names the first rule a password broke.
type PasswordViolation struct {
	Rule    string
	Message string
}

func (v *PasswordViolation) Error() string {
	return v.Message
}

// PasswordPolicy checks new passwords on register and reset confirmation.
type PasswordPolicy struct {
	cfg PasswordPolicyConfig
}

// NewPasswordPolicy fills unset length bounds with the defaults.
func NewPasswordPolicy(cfg PasswordPolicyConfig) *PasswordPolicy {
	defaults := DefaultPasswordPolicyConfig()
	if cfg.MinLength <= 0 {
		cfg.MinLength = defaults.MinLength
	}
	if cfg.MaxLength <= 0 {
		cfg.MaxLength = defaults.MaxLength
	}
	if cfg.MinStrengthScore > 4 {
		cfg.MinStrengthScore = 4
	}
	return &PasswordPolicy{cfg: cfg}
}

// Validate returns a *PasswordViolation for the first failing rule. The account
// email is fed to zxcvbn so passwords derived from it score low.
func (p *PasswordPolicy) Validate(password string, ctx domain.PasswordContext) error {
	if p == nil {
		return fmt.Errorf("password policy not configured")
	}

	length := len([]rune(password))
	switch {
	case length < p.cfg.MinLength:
		return &PasswordViolation{
			Rule:    "min_length",
			Message: fmt.Sprintf("password must be at least %d characters long", p.cfg.MinLength),
		}
	case length > p.cfg.MaxLength:
		return &PasswordViolation{
			Rule:    "max_length",
			Message: fmt.Sprintf("password must be at most %d characters long", p.cfg.MaxLength),
		}
	}

	if classes := characterClasses(password); classes < p.cfg.MinCharacterClasses {
		return &PasswordViolation{
			Rule:    "character_classes",
			Message: fmt.Sprintf("password must include at least %d character types", p.cfg.MinCharacterClasses),
		}
	}

	if p.cfg.MinStrengthScore > 0 {
		var inputs []string
		if ctx.Email != "" {
			inputs = []string{ctx.Email}
		}
		if zxcvbn.PasswordStrength(password, inputs).Score < p.cfg.MinStrengthScore {
			return &PasswordViolation{
				Rule:    "weak_password",
				Message: "password is too weak; choose a more complex value",
			}
		}
	}
	return nil
}

// characterClasses counts how many of upper, lower, digit and symbol appear.
func characterClasses(password string) int {
	var upper, lower, digit, symbol int
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = 1
		case unicode.IsLower(r):
			lower = 1
		case unicode.IsDigit(r):
			digit = 1
		case unicode.IsSymbol(r) || unicode.IsPunct(r):
			symbol = 1
		}
	}
	return upper + lower + digit + symbol
}

package auth

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/tendant/simple-accounts/internal/config"
	"github.com/tendant/simple-accounts/pkg/domain"
)

// PasswordPolicy defines password complexity requirements.
type PasswordPolicy struct {
	MinLength        int
	RequireUppercase bool
	RequireLowercase bool
	RequireNumber    bool
	RequireSpecial   bool
}

// NewPasswordPolicy creates a PasswordPolicy from config.
func NewPasswordPolicy(cfg config.PasswordPolicyConfig) *PasswordPolicy {
	return &PasswordPolicy{
		MinLength:        cfg.MinLength,
		RequireUppercase: cfg.RequireUppercase,
		RequireLowercase: cfg.RequireLowercase,
		RequireNumber:    cfg.RequireNumber,
		RequireSpecial:   cfg.RequireSpecial,
	}
}

// ValidatePassword checks a password against the policy. Violations wrap
// domain.ErrWeakPassword.
func (p *PasswordPolicy) ValidatePassword(password string) error {
	switch {
	case p.MinLength > 0 && len(password) < p.MinLength:
		return weakPassword("must be at least %d characters long", p.MinLength)
	case p.RequireUppercase && !containsUppercase(password):
		return weakPassword("must contain at least one uppercase letter")
	case p.RequireLowercase && !containsLowercase(password):
		return weakPassword("must contain at least one lowercase letter")
	case p.RequireNumber && !containsNumber(password):
		return weakPassword("must contain at least one number")
	case p.RequireSpecial && !containsSpecial(password):
		return weakPassword("must contain at least one special character")
	}
	return nil
}

func weakPassword(format string, args ...any) error {
	return fmt.Errorf("%w: password %s", domain.ErrWeakPassword, fmt.Sprintf(format, args...))
}

// GetRequirements returns a human-readable description of the policy.
func (p *PasswordPolicy) GetRequirements() string {
	if !p.HasRequirements() {
		return "No password requirements"
	}

	var requirements []string

	if p.MinLength > 0 {
		requirements = append(requirements, fmt.Sprintf("at least %d characters", p.MinLength))
	}
	if p.RequireUppercase {
		requirements = append(requirements, "one uppercase letter")
	}
	if p.RequireLowercase {
		requirements = append(requirements, "one lowercase letter")
	}
	if p.RequireNumber {
		requirements = append(requirements, "one number")
	}
	if p.RequireSpecial {
		requirements = append(requirements, "one special character")
	}

	return "Password must contain " + strings.Join(requirements, ", ")
}

// HasRequirements returns true if the policy has any requirements.
func (p *PasswordPolicy) HasRequirements() bool {
	return p.MinLength > 0 || p.RequireUppercase || p.RequireLowercase || p.RequireNumber || p.RequireSpecial
}

// containsUppercase checks if string contains at least one uppercase letter.
func containsUppercase(s string) bool {
	return containsFunc(s, unicode.IsUpper)
}

// containsLowercase checks if string contains at least one lowercase letter.
func containsLowercase(s string) bool {
	return containsFunc(s, unicode.IsLower)
}

// containsNumber checks if string contains at least one digit.
func containsNumber(s string) bool {
	return containsFunc(s, unicode.IsDigit)
}

// containsSpecial checks if string contains at least one special character,
// meaning anything but letters, digits and whitespace.
func containsSpecial(s string) bool {
	return containsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.IsSpace(r)
	})
}

// containsFunc reports whether any rune of s satisfies f.
func containsFunc(s string, f func(rune) bool) bool {
	return strings.IndexFunc(s, f) >= 0
}

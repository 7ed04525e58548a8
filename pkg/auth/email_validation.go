package auth

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"

	"github.com/tendant/simple-accounts/pkg/domain"
)

var disposableDomains = map[string]bool{
	"tempmail.com":      true,
	"10minutemail.com":  true,
	"guerrillamail.com": true,
	"mailinator.com":    true,
	"throwaway.email":   true,
	"yopmail.com":       true,
}

// Stricter than RFC 5322: no display names, no quoted local parts.
var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9.!#$%&'*+/=?^_` + "`" + `{|}~-]+@[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(?:\.[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*$`)

const maxEmailLength = 254 // RFC 5321

// ValidateEmail checks format and length of an email address. Failures
// wrap domain.ErrInvalidEmail.
func ValidateEmail(email string, strict bool, blockDisposable bool) error {
	if strings.TrimSpace(email) == "" {
		return invalidEmail("email address is required")
	}
	if len(email) > maxEmailLength {
		return invalidEmail(fmt.Sprintf("email address is too long (max %d characters)", maxEmailLength))
	}

	normalized := NormalizeEmail(email)
	addr, err := mail.ParseAddress(normalized)
	if err != nil || addr.Address != normalized {
		return invalidEmail("invalid email address format")
	}
	if strict && !emailRegex.MatchString(addr.Address) {
		return invalidEmail("invalid email address format")
	}

	if blockDisposable && disposableDomains[emailDomain(addr.Address)] {
		return invalidEmail("disposable email addresses are not allowed")
	}
	return nil
}

// NormalizeEmail lowercases and trims an email address. Accounts are
// looked up by the normalized form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func emailDomain(email string) string {
	_, domain, ok := strings.Cut(email, "@")
	if !ok {
		return ""
	}
	return domain
}

func invalidEmail(msg string) error {
	return fmt.Errorf("%w: %s", domain.ErrInvalidEmail, msg)
}

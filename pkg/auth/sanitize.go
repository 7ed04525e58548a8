package auth

import (
	"fmt"
	"html"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/tendant/simple-accounts/pkg/domain"
)

const (
	minNameLength     = 2
	maxNameLength     = 100
	maxLocationLength = 100
)

// SanitizeInput escapes HTML and removes control characters.
func SanitizeInput(input string) string {
	return html.EscapeString(removeControlChars(strings.TrimSpace(input)))
}

// SanitizeName trims and sanitizes a display name.
func SanitizeName(name string) string {
	return SanitizeInput(name)
}

// ValidateName sanitizes name and checks its length in characters. Failures
// wrap domain.ErrInvalidName.
func ValidateName(name string) (string, error) {
	trimmed := strings.TrimSpace(removeControlChars(name))
	n := utf8.RuneCountInString(trimmed)
	if n < minNameLength || n > maxNameLength {
		return "", fmt.Errorf("%w: name must be between %d and %d characters", domain.ErrInvalidName, minNameLength, maxNameLength)
	}
	return SanitizeName(trimmed), nil
}

// SanitizeLocation truncates both fields and then sanitizes them, so an
// escaped entity is never cut. An empty location becomes nil.
func SanitizeLocation(loc *domain.Location) *domain.Location {
	if loc == nil {
		return nil
	}
	out := &domain.Location{
		City:    SanitizeInput(truncate(strings.TrimSpace(loc.City), maxLocationLength)),
		Country: SanitizeInput(truncate(strings.TrimSpace(loc.Country), maxLocationLength)),
	}
	if out.City == "" && out.Country == "" {
		return nil
	}
	return out
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}

// removeControlChars removes control characters except newline and tab.
func removeControlChars(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}

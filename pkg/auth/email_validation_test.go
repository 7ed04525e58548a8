package auth

import (
	"errors"
	"strings"
	"testing"

	"github.com/tendant/simple-accounts/pkg/domain"
)

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		name            string
		email           string
		strict          bool
		blockDisposable bool
		wantErr         bool
	}{
		{name: "valid", email: "alice@example.com"},
		{name: "mixed case is normalized", email: "  Alice@Example.COM "},
		{name: "plus tag", email: "alice+news@example.com"},
		{name: "subdomain", email: "alice@mail.example.com", strict: true},
		{name: "empty", email: "", wantErr: true},
		{name: "blank", email: "   ", wantErr: true},
		{name: "no at sign", email: "alice.example.com", wantErr: true},
		{name: "no domain", email: "alice@", wantErr: true},
		{name: "no local part", email: "@example.com", wantErr: true},
		{name: "display name", email: "Alice <alice@example.com>", wantErr: true},
		{name: "too long", email: strings.Repeat("a", 250) + "@example.com", wantErr: true},
		{name: "disposable blocked", email: "alice@mailinator.com", blockDisposable: true, wantErr: true},
		{name: "disposable allowed", email: "alice@mailinator.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateEmail(tt.email, tt.strict, tt.blockDisposable)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateEmail(%q) error = %v, wantErr %v", tt.email, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, domain.ErrInvalidEmail) {
				t.Errorf("ValidateEmail(%q) error = %v, want ErrInvalidEmail", tt.email, err)
			}
		})
	}
}

func TestNormalizeEmail(t *testing.T) {
	tests := []struct {
		email string
		want  string
	}{
		{"Alice@Example.COM", "alice@example.com"},
		{"  alice@example.com\t", "alice@example.com"},
		{"alice@example.com", "alice@example.com"},
	}

	for _, tt := range tests {
		if got := NormalizeEmail(tt.email); got != tt.want {
			t.Errorf("NormalizeEmail(%q) = %q, want %q", tt.email, got, tt.want)
		}
	}
}

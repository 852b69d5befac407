package utils

import (
	"strings"
	"testing"
)

func TestHashPassword(t *testing.T) {
	hash, err := HashPassword("formbridge-admin-2024")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if hash == "" || hash == "formbridge-admin-2024" {
		t.Fatalf("hash = %q, expected an opaque bcrypt digest", hash)
	}
	if !strings.HasPrefix(hash, "$2") {
		t.Errorf("hash %q is not in bcrypt format", hash)
	}
}

func TestHashPassword_Salted(t *testing.T) {
	hash1, _ := HashPassword("formbridge-admin-2024")
	hash2, _ := HashPassword("formbridge-admin-2024")

	if hash1 == hash2 {
		t.Error("same password should produce different hashes (due to salt)")
	}
}

func TestCheckPassword(t *testing.T) {
	hash, _ := HashPassword("correct horse battery")

	tests := []struct {
		name     string
		password string
		expected bool
	}{
		{"correct password", "correct horse battery", true},
		{"wrong password", "wrong horse battery", false},
		{"empty password", "", false},
		{"suffixed password", "correct horse battery1", false},
		{"case sensitive", "Correct Horse Battery", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CheckPassword(tt.password, hash); got != tt.expected {
				t.Errorf("CheckPassword(%q) = %v, expected %v", tt.password, got, tt.expected)
			}
		})
	}
}

func TestCheckPassword_MalformedHash(t *testing.T) {
	for _, hash := range []string{"", "invalid_hash", "$2a$corrupt"} {
		if CheckPassword("password", hash) {
			t.Errorf("CheckPassword with hash %q should return false", hash)
		}
	}
}

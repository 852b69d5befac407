package utils

import (
	"strings"
	"testing"
	"time"
)

func init() {
	SetJWTSecret("test-secret-key-for-testing")
}

func TestGenerateToken_RoundTrip(t *testing.T) {
	token, err := GenerateToken(42, "form_admin", "admin", 24)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if token == "" {
		t.Fatal("GenerateToken returned an empty token")
	}

	claims, err := ParseToken(token)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if claims.UserID != 42 {
		t.Errorf("UserID = %d, expected 42", claims.UserID)
	}
	if claims.Username != "form_admin" {
		t.Errorf("Username = %q, expected form_admin", claims.Username)
	}
	if claims.Role != "admin" {
		t.Errorf("Role = %q, expected admin", claims.Role)
	}
}

func TestGenerateToken_DifferentUsersDifferentTokens(t *testing.T) {
	token1, _ := GenerateToken(1, "form_admin", "admin", 24)
	token2, _ := GenerateToken(2, "approver", "user", 24)

	if token1 == token2 {
		t.Error("different users should produce different tokens")
	}
}

func TestParseToken_Rejections(t *testing.T) {
	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "invalid"},
		{"wrong segment count", "not.a.token"},
		{"bad signature", "eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9.invalid.signature"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseToken(tt.token); err == nil {
				t.Errorf("ParseToken(%q) should return an error", tt.token)
			}
		})
	}
}

func TestParseToken_TamperedPayload(t *testing.T) {
	token, _ := GenerateToken(7, "approver", "user", 24)

	// Swapping the payload segment invalidates the signature.
	other, _ := GenerateToken(7, "approver", "admin", 24)
	parts := strings.Split(token, ".")
	otherParts := strings.Split(other, ".")
	forged := parts[0] + "." + otherParts[1] + "." + parts[2]

	if _, err := ParseToken(forged); err == nil {
		t.Error("ParseToken should reject a token with a swapped payload")
	}
}

func TestParseToken_WrongSecret(t *testing.T) {
	SetJWTSecret("original-secret")
	token, _ := GenerateToken(1, "form_admin", "admin", 24)

	SetJWTSecret("different-secret")
	_, err := ParseToken(token)

	SetJWTSecret("test-secret-key-for-testing")

	if err == nil {
		t.Error("ParseToken should fail with the wrong secret")
	}
}

func TestParseToken_Expired(t *testing.T) {
	token, err := GenerateToken(1, "form_admin", "admin", -1)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if _, err := ParseToken(token); err == nil {
		t.Error("ParseToken should reject an expired token")
	}
}

func TestGenerateToken_Expiration(t *testing.T) {
	token, _ := GenerateToken(1, "form_admin", "admin", 1)
	claims, err := ParseToken(token)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}

	expiresAt := claims.ExpiresAt.Time
	now := time.Now()

	expectedExpiry := now.Add(1 * time.Hour)
	diff := expiresAt.Sub(expectedExpiry)
	if diff < -time.Minute || diff > time.Minute {
		t.Errorf("expiration time is off by more than 1 minute: %v", diff)
	}
}

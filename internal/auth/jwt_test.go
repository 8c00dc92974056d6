package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

const testSecret = "test-secret"

func TestIssueAndValidateToken(t *testing.T) {
	subject := uuid.New().String()
	tok, err := IssueToken(testSecret, "HS256", subject, time.Hour)
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}
	got, err := ValidateToken(testSecret, tok)
	if err != nil {
		t.Fatalf("ValidateToken failed: %v", err)
	}
	if got != subject {
		t.Errorf("Expected subject %s, got %s", subject, got)
	}
}

func TestValidateToken_WrongSecret(t *testing.T) {
	tok, err := IssueToken(testSecret, "HS256", uuid.New().String(), time.Hour)
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}
	if _, err := ValidateToken("other-secret", tok); err == nil {
		t.Error("Expected validation failure with wrong secret")
	}
}

func TestValidateToken_Expired(t *testing.T) {
	tok, err := IssueToken(testSecret, "HS256", uuid.New().String(), -time.Minute)
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}
	if _, err := ValidateToken(testSecret, tok); err == nil {
		t.Error("Expected validation failure for expired token")
	}
}

func TestValidateToken_NonUUIDSubject(t *testing.T) {
	tok, err := IssueToken(testSecret, "HS256", "not-a-uuid", time.Hour)
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}
	if _, err := ValidateToken(testSecret, tok); err == nil {
		t.Error("Expected validation failure for non-UUID subject")
	}
}

func TestIssueToken_AlgorithmConfigurable(t *testing.T) {
	subject := uuid.New().String()
	for _, alg := range []string{"HS256", "HS384", "HS512"} {
		tok, err := IssueToken(testSecret, alg, subject, time.Hour)
		if err != nil {
			t.Fatalf("IssueToken(%s) failed: %v", alg, err)
		}
		if _, err := ValidateToken(testSecret, tok); err != nil {
			t.Errorf("ValidateToken(%s) failed: %v", alg, err)
		}
	}
	if _, err := IssueToken(testSecret, "RS256", subject, time.Hour); err == nil {
		t.Error("Expected error for non-HMAC algorithm")
	}
}

package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signToken(t *testing.T, secret, issuer, subject string, expiresAt time.Time) string {
	t.Helper()
	claims := jwt.MapClaims{"sub": subject}
	if issuer != "" {
		claims["iss"] = issuer
	}
	if !expiresAt.IsZero() {
		claims["exp"] = expiresAt.Unix()
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("signing test token: %v", err)
	}
	return signed
}

func TestValidateSessionAccepted(t *testing.T) {
	svc := New("shared-secret", "tez-issuer")
	token := signToken(t, "shared-secret", "tez-issuer", "user-123", time.Now().Add(time.Hour))

	userID, err := svc.ValidateSession(token)
	if err != nil {
		t.Fatalf("ValidateSession: %v", err)
	}
	if userID != "user-123" {
		t.Errorf("userID = %q, want user-123", userID)
	}
}

func TestValidateSessionRejectsWrongSecret(t *testing.T) {
	svc := New("shared-secret", "")
	token := signToken(t, "other-secret", "", "user-123", time.Now().Add(time.Hour))

	if _, err := svc.ValidateSession(token); err == nil {
		t.Fatal("expected error for token signed with wrong secret")
	}
}

func TestValidateSessionRejectsExpiredToken(t *testing.T) {
	svc := New("shared-secret", "")
	token := signToken(t, "shared-secret", "", "user-123", time.Now().Add(-time.Hour))

	_, err := svc.ValidateSession(token)
	if err != errExpiredToken {
		t.Errorf("err = %v, want errExpiredToken", err)
	}
}

func TestValidateSessionRejectsWrongIssuer(t *testing.T) {
	svc := New("shared-secret", "tez-issuer")
	token := signToken(t, "shared-secret", "someone-else", "user-123", time.Now().Add(time.Hour))

	_, err := svc.ValidateSession(token)
	if err != errWrongIssuer {
		t.Errorf("err = %v, want errWrongIssuer", err)
	}
}

func TestValidateSessionRejectsMissingSubject(t *testing.T) {
	svc := New("shared-secret", "")
	token := signToken(t, "shared-secret", "", "", time.Now().Add(time.Hour))

	if _, err := svc.ValidateSession(token); err == nil {
		t.Fatal("expected error for token with empty subject")
	}
}

func TestExtractBearerToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"valid bearer", "Bearer abc123", "abc123"},
		{"case insensitive", "bearer abc123", "abc123"},
		{"BEARER", "BEARER abc123", "abc123"},
		{"with spaces in token", "Bearer  abc123 ", "abc123"},
		{"empty", "", ""},
		{"no bearer prefix", "Token abc123", ""},
		{"bearer only", "Bearer", ""},
		{"basic auth", "Basic dXNlcjpwYXNz", ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			got := extractBearerToken(req)
			if got != tc.want {
				t.Errorf("extractBearerToken(%q) = %q, want %q", tc.header, got, tc.want)
			}
		})
	}
}

func TestUserIDFromContext(t *testing.T) {
	ctx := context.WithValue(context.Background(), ContextKeyUserID, "user123")
	if got := UserIDFromContext(ctx); got != "user123" {
		t.Errorf("UserIDFromContext = %q, want %q", got, "user123")
	}

	if got := UserIDFromContext(context.Background()); got != "" {
		t.Errorf("UserIDFromContext(empty) = %q, want empty", got)
	}
}

func TestSessionIDFromContext(t *testing.T) {
	ctx := context.WithValue(context.Background(), ContextKeySessionID, "sess456")
	if got := SessionIDFromContext(ctx); got != "sess456" {
		t.Errorf("SessionIDFromContext = %q, want %q", got, "sess456")
	}

	if got := SessionIDFromContext(context.Background()); got != "" {
		t.Errorf("SessionIDFromContext(empty) = %q, want empty", got)
	}
}

func TestWriteAuthError(t *testing.T) {
	w := httptest.NewRecorder()
	writeAuthError(w, http.StatusUnauthorized, "test_code", "test message")

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
}

func TestAuthError_Error(t *testing.T) {
	err := &AuthError{Code: "test", Message: "test message", Status: 401}
	if got := err.Error(); got != "test message" {
		t.Errorf("Error() = %q, want %q", got, "test message")
	}
}

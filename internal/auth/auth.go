// Package auth verifies bearer tokens presented to the relay's HTTP API. The
// relay never issues or stores credentials itself — user accounts live in
// whatever system operates the Contact registry — so this package only
// validates JWTs signed by that system's shared secret and extracts the
// subject claim as the acting user id.
package auth

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/golang-jwt/jwt/v5"
)

// AuthError carries the HTTP status and wire error code a middleware should
// respond with when a token fails validation.
type AuthError struct {
	Status  int
	Code    string
	Message string
}

func (e *AuthError) Error() string { return e.Message }

func authErr(status int, code, message string) *AuthError {
	return &AuthError{Status: status, Code: code, Message: message}
}

var (
	errMissingToken = authErr(http.StatusUnauthorized, "missing_token", "Authorization header with Bearer token is required")
	errInvalidToken = authErr(http.StatusUnauthorized, "invalid_token", "bearer token is malformed or signature is invalid")
	errExpiredToken = authErr(http.StatusUnauthorized, "expired_token", "bearer token has expired")
	errWrongIssuer  = authErr(http.StatusUnauthorized, "invalid_token", "bearer token issuer does not match this relay's configured issuer")
)

// Service validates JWT bearer tokens issued by the configured issuer using
// an HMAC shared secret.
type Service struct {
	secret []byte
	issuer string
}

// New constructs a Service. issuer may be empty to skip issuer validation.
func New(secret, issuer string) *Service {
	return &Service{secret: []byte(secret), issuer: issuer}
}

// ValidateSession parses and verifies token, returning the subject claim
// (the acting user id) on success.
func (s *Service) ValidateSession(token string) (string, error) {
	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", errExpiredToken
		}
		return "", errInvalidToken
	}
	if !parsed.Valid {
		return "", errInvalidToken
	}

	if s.issuer != "" {
		iss, _ := claims.GetIssuer()
		if iss != s.issuer {
			return "", errWrongIssuer
		}
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return "", errInvalidToken
	}
	return sub, nil
}

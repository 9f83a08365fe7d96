package signature

import (
	"crypto/ed25519"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newKeypair(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	return pub, priv
}

func buildRequest(t *testing.T, method, path, host string, body []byte, signed Signed) *http.Request {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(string(body)))
	req.Host = host
	signed.Apply(req)
	return req
}

func TestSignVerifyRoundTrip(t *testing.T) {
	pub, priv := newKeypair(t)
	body := []byte(`{"hello":"world"}`)

	signed := Sign("POST", "/federation/inbox", "relay.example.com", body, "abc123", priv)
	req := buildRequest(t, "POST", "/federation/inbox", "relay.example.com", body, signed)

	lookup := func(keyID string) (ed25519.PublicKey, bool) {
		if keyID != "abc123" {
			return nil, false
		}
		return pub, true
	}

	keyID, err := Verify(req, body, "relay.example.com", 5*time.Minute, lookup)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if keyID != "abc123" {
		t.Errorf("keyID = %q, want abc123", keyID)
	}
}

func TestVerifyRejectsBodyTamper(t *testing.T) {
	pub, priv := newKeypair(t)
	body := []byte(`{"hello":"world"}`)
	signed := Sign("POST", "/federation/inbox", "relay.example.com", body, "abc123", priv)

	tampered := []byte(`{"hello":"WORLD"}`)
	req := buildRequest(t, "POST", "/federation/inbox", "relay.example.com", tampered, signed)

	lookup := func(string) (ed25519.PublicKey, bool) { return pub, true }

	if _, err := Verify(req, tampered, "relay.example.com", 5*time.Minute, lookup); err != ErrBodyModified {
		t.Errorf("err = %v, want ErrBodyModified", err)
	}
}

func TestVerifyRejectsPathTamper(t *testing.T) {
	pub, priv := newKeypair(t)
	body := []byte(`{}`)
	signed := Sign("POST", "/federation/inbox", "relay.example.com", body, "abc123", priv)

	req := buildRequest(t, "POST", "/federation/other", "relay.example.com", body, signed)
	lookup := func(string) (ed25519.PublicKey, bool) { return pub, true }

	if _, err := Verify(req, body, "relay.example.com", 5*time.Minute, lookup); err != ErrInvalidSignature {
		t.Errorf("err = %v, want ErrInvalidSignature", err)
	}
}

func TestVerifyRejectsMethodTamper(t *testing.T) {
	pub, priv := newKeypair(t)
	body := []byte(`{}`)
	signed := Sign("POST", "/federation/inbox", "relay.example.com", body, "abc123", priv)

	req := buildRequest(t, "PUT", "/federation/inbox", "relay.example.com", body, signed)
	lookup := func(string) (ed25519.PublicKey, bool) { return pub, true }

	if _, err := Verify(req, body, "relay.example.com", 5*time.Minute, lookup); err != ErrInvalidSignature {
		t.Errorf("err = %v, want ErrInvalidSignature", err)
	}
}

func TestVerifyMissingHeaders(t *testing.T) {
	pub, _ := newKeypair(t)
	req := httptest.NewRequest("POST", "/federation/inbox", strings.NewReader("{}"))
	req.Host = "relay.example.com"

	lookup := func(string) (ed25519.PublicKey, bool) { return pub, true }

	if _, err := Verify(req, []byte("{}"), "relay.example.com", 5*time.Minute, lookup); err != ErrMissingSignature {
		t.Errorf("err = %v, want ErrMissingSignature", err)
	}
}

func TestVerifyUnknownPeer(t *testing.T) {
	_, priv := newKeypair(t)
	body := []byte(`{}`)
	signed := Sign("POST", "/federation/inbox", "relay.example.com", body, "unknown-key", priv)
	req := buildRequest(t, "POST", "/federation/inbox", "relay.example.com", body, signed)

	lookup := func(string) (ed25519.PublicKey, bool) { return nil, false }

	if _, err := Verify(req, body, "relay.example.com", 5*time.Minute, lookup); err != ErrUnknownPeer {
		t.Errorf("err = %v, want ErrUnknownPeer", err)
	}
}

func TestVerifyInvalidSignatureWrongKey(t *testing.T) {
	_, priv := newKeypair(t)
	otherPub, _ := newKeypair(t)
	body := []byte(`{}`)
	signed := Sign("POST", "/federation/inbox", "relay.example.com", body, "abc123", priv)
	req := buildRequest(t, "POST", "/federation/inbox", "relay.example.com", body, signed)

	lookup := func(string) (ed25519.PublicKey, bool) { return otherPub, true }

	if _, err := Verify(req, body, "relay.example.com", 5*time.Minute, lookup); err != ErrInvalidSignature {
		t.Errorf("err = %v, want ErrInvalidSignature", err)
	}
}

func TestVerifyRejectsDateSkew(t *testing.T) {
	pub, priv := newKeypair(t)
	body := []byte(`{}`)

	req := httptest.NewRequest("POST", "/federation/inbox", strings.NewReader("{}"))
	req.Host = "relay.example.com"

	stale := time.Now().Add(-1 * time.Hour).UTC().Format(time.RFC3339)
	digest := Digest(body)
	signingString := canonicalString("POST", "/federation/inbox", "relay.example.com", stale, digest)
	sig := ed25519.Sign(priv, []byte(signingString))

	req.Header.Set(HeaderDate, stale)
	req.Header.Set(HeaderDigest, digest)
	req.Header.Set(HeaderSignature, base64.StdEncoding.EncodeToString(sig))
	req.Header.Set(HeaderSignatureInput, `sig1=("@method" "@path" "host" "date" "digest");keyid="abc123"`)

	lookup := func(string) (ed25519.PublicKey, bool) { return pub, true }

	if _, err := Verify(req, body, "relay.example.com", 5*time.Minute, lookup); err != ErrDateSkew {
		t.Errorf("err = %v, want ErrDateSkew", err)
	}
}

// Package signature implements the server-to-server HTTP signature scheme:
// deterministic canonicalization of (method, path, host, date, digest) into a
// signing string, Ed25519 signing and verification, and the Date/Digest/
// Signature/Signature-Input header set. The signature is bound to method,
// path, and host, not just the body, so a replayed body can't be redirected
// to a different endpoint.
package signature

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Header names emitted by Sign and read by Verify.
const (
	HeaderDate           = "Date"
	HeaderDigest         = "Digest"
	HeaderSignature      = "Signature"
	HeaderSignatureInput = "Signature-Input"
)

// Verification failures.
var (
	ErrMissingSignature = errors.New("MISSING_SIGNATURE")
	ErrBodyModified     = errors.New("BODY_MODIFIED")
	ErrInvalidSignature = errors.New("INVALID_SIGNATURE")
	ErrUnknownPeer      = errors.New("UNKNOWN_PEER")
	ErrDateSkew         = errors.New("date skew exceeds tolerance")
)

// components is the fixed, ordered list of tokens in the canonical signing
// string. Order matters: it is part of the signed byte string.
var components = []string{"@method", "@path", "host", "date", "digest"}

// Signed holds the header values produced by Sign, ready to attach to an
// outbound request.
type Signed struct {
	Date           string
	Digest         string
	Signature      string
	SignatureInput string
}

// Apply sets the signed headers on req.
func (s Signed) Apply(req *http.Request) {
	req.Header.Set(HeaderDate, s.Date)
	req.Header.Set(HeaderDigest, s.Digest)
	req.Header.Set(HeaderSignature, s.Signature)
	req.Header.Set(HeaderSignatureInput, s.SignatureInput)
}

// Digest computes the "SHA-256=<base64>" digest of body, as used in both the
// Digest header and the canonical signing string.
func Digest(body []byte) string {
	sum := sha256.Sum256(body)
	return "SHA-256=" + base64.StdEncoding.EncodeToString(sum[:])
}

// canonicalString builds the signing string from the raw components, in the
// fixed component order, each rendered as "<token>: <value>" joined by
// single newlines.
func canonicalString(method, path, host, date, digest string) string {
	values := map[string]string{
		"@method": strings.ToUpper(method),
		"@path":   path,
		"host":    host,
		"date":    date,
		"digest":  digest,
	}
	lines := make([]string, 0, len(components))
	for _, c := range components {
		lines = append(lines, c+": "+values[c])
	}
	return strings.Join(lines, "\n")
}

// Sign produces the header set for a request (method, path, host, body)
// signed with privateKey, attributed to keyID (the sender's server-id).
func Sign(method, path, host string, body []byte, keyID string, privateKey ed25519.PrivateKey) Signed {
	date := time.Now().UTC().Format(time.RFC3339)
	digest := Digest(body)
	signingString := canonicalString(method, path, host, date, digest)

	sig := ed25519.Sign(privateKey, []byte(signingString))

	return Signed{
		Date:      date,
		Digest:    digest,
		Signature: base64.StdEncoding.EncodeToString(sig),
		SignatureInput: fmt.Sprintf(
			`sig1=("@method" "@path" "host" "date" "digest");keyid="%s"`, keyID,
		),
	}
}

// PublicKeyLookup resolves a peer's public key by the keyId carried in
// Signature-Input. Implementations typically delegate to trust.Store.
type PublicKeyLookup func(keyID string) (ed25519.PublicKey, bool)

// Verify reconstructs the signing string from inbound headers and the raw
// request body, recomputes the digest from those raw bytes (never from a
// parsed representation), and validates the signature against the peer's
// public key. Returns the resolved keyId on success.
func Verify(r *http.Request, body []byte, host string, skew time.Duration, lookup PublicKeyLookup) (keyID string, err error) {
	date := r.Header.Get(HeaderDate)
	digestHeader := r.Header.Get(HeaderDigest)
	sigHeader := r.Header.Get(HeaderSignature)
	sigInput := r.Header.Get(HeaderSignatureInput)

	if date == "" || digestHeader == "" || sigHeader == "" || sigInput == "" {
		return "", ErrMissingSignature
	}

	keyID = extractKeyID(sigInput)
	if keyID == "" {
		return "", ErrMissingSignature
	}

	recomputed := Digest(body)
	if recomputed != digestHeader {
		return "", ErrBodyModified
	}

	parsedDate, err := time.Parse(time.RFC3339, date)
	if err != nil {
		return "", ErrMissingSignature
	}
	if d := time.Since(parsedDate); d > skew || d < -skew {
		return "", ErrDateSkew
	}

	pub, ok := lookup(keyID)
	if !ok {
		return "", ErrUnknownPeer
	}

	sig, err := base64.StdEncoding.DecodeString(sigHeader)
	if err != nil {
		return "", ErrInvalidSignature
	}

	signingString := canonicalString(r.Method, r.URL.Path, host, date, digestHeader)
	if !ed25519.Verify(pub, []byte(signingString), sig) {
		return "", ErrInvalidSignature
	}

	return keyID, nil
}

// extractKeyID pulls the keyid="..." value out of a Signature-Input header.
func extractKeyID(sigInput string) string {
	const marker = `keyid="`
	idx := strings.Index(sigInput, marker)
	if idx == -1 {
		return ""
	}
	rest := sigInput[idx+len(marker):]
	end := strings.IndexByte(rest, '"')
	if end == -1 {
		return ""
	}
	return rest[:end]
}

// Package identity manages the relay's long-lived Ed25519 server identity:
// key generation and persistence on first start, deterministic derivation of
// the 16-hex server-id, and an explicit accessor passed into the signature
// and bundle packages rather than read from a package-level global.
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

const (
	privateKeyFile = "identity.private.key"
	publicKeyFile  = "identity.public.key"
)

// Identity is the relay's cryptographic identity: its host, derived
// server-id, and Ed25519 keypair.
type Identity struct {
	Host       string
	ServerID   string
	PublicKey  ed25519.PublicKey
	PrivateKey ed25519.PrivateKey
}

// Service loads or generates the relay's identity on construction and
// exposes it through Current. Production code paths never mutate the
// identity after New returns; the mutex guards against concurrent Load
// racing with a hypothetical future rotation, not against normal reads.
type Service struct {
	mu       sync.RWMutex
	identity Identity
	logger   *slog.Logger
}

// New loads the identity from dataDir, generating and persisting a fresh
// Ed25519 keypair on first start. Subsequent calls with the same dataDir
// load the same identity.
func New(dataDir, host string, logger *slog.Logger) (*Service, error) {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("creating data directory %q: %w", dataDir, err)
	}

	privPath := filepath.Join(dataDir, privateKeyFile)
	pubPath := filepath.Join(dataDir, publicKeyFile)

	priv, pub, err := loadOrGenerate(privPath, pubPath, logger)
	if err != nil {
		return nil, err
	}

	id := Identity{
		Host:       host,
		ServerID:   DeriveServerID(pub),
		PublicKey:  pub,
		PrivateKey: priv,
	}

	logger.Info("relay identity ready",
		slog.String("host", host),
		slog.String("server_id", id.ServerID),
	)

	return &Service{identity: id, logger: logger}, nil
}

// Current returns the relay's identity.
func (s *Service) Current() Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity
}

// DeriveServerID computes the content-addressed server-id: the first 16 hex
// characters of sha256(publicKey).
func DeriveServerID(pub ed25519.PublicKey) string {
	sum := sha256.Sum256(pub)
	return hex.EncodeToString(sum[:])[:16]
}

func loadOrGenerate(privPath, pubPath string, logger *slog.Logger) (ed25519.PrivateKey, ed25519.PublicKey, error) {
	privBytes, privErr := os.ReadFile(privPath)
	pubBytes, pubErr := os.ReadFile(pubPath)

	if privErr == nil && pubErr == nil {
		priv := ed25519.PrivateKey(privBytes)
		pub := ed25519.PublicKey(pubBytes)
		if len(priv) != ed25519.PrivateKeySize || len(pub) != ed25519.PublicKeySize {
			return nil, nil, fmt.Errorf("identity key files at %q are corrupt", privPath)
		}
		return priv, pub, nil
	}
	if !os.IsNotExist(privErr) && privErr != nil {
		return nil, nil, fmt.Errorf("reading private key: %w", privErr)
	}
	if !os.IsNotExist(pubErr) && pubErr != nil {
		return nil, nil, fmt.Errorf("reading public key: %w", pubErr)
	}

	logger.Info("no existing relay identity found, generating Ed25519 keypair")

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("generating keypair: %w", err)
	}

	if err := os.WriteFile(privPath, priv, 0o600); err != nil {
		return nil, nil, fmt.Errorf("persisting private key: %w", err)
	}
	if err := os.WriteFile(pubPath, pub, 0o644); err != nil {
		return nil, nil, fmt.Errorf("persisting public key: %w", err)
	}

	return priv, pub, nil
}

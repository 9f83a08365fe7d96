package trust

import (
	"crypto/ed25519"
	"testing"
	"time"

	"github.com/tezrelay/relay/internal/cache"
	"github.com/tezrelay/relay/internal/models"
)

func TestValidTransition(t *testing.T) {
	cases := []struct {
		from, to string
		want     bool
	}{
		{models.TrustPending, models.TrustTrusted, true},
		{models.TrustPending, models.TrustBlocked, true},
		{models.TrustTrusted, models.TrustBlocked, true},
		{models.TrustBlocked, models.TrustTrusted, true},
		{models.TrustTrusted, models.TrustPending, false},
		{models.TrustBlocked, models.TrustPending, false},
		{models.TrustPending, models.TrustPending, false},
	}
	for _, c := range cases {
		if got := validTransition(c.from, c.to); got != c.want {
			t.Errorf("validTransition(%q, %q) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestPubKeyCacheRoundTrip(t *testing.T) {
	s := &Store{
		pubKeyCache: cache.New[ed25519.PublicKey](time.Minute, 4096),
	}

	if _, ok := s.cachedKey("server-a"); ok {
		t.Fatal("expected empty cache miss")
	}

	_, pub := generateTestKey(t)
	s.cacheKey("server-a", pub)

	got, ok := s.cachedKey("server-a")
	if !ok {
		t.Fatal("expected cache hit after Set")
	}
	if string(got) != string(pub) {
		t.Error("cached key does not match stored key")
	}
}

func TestPubKeyCacheExpiry(t *testing.T) {
	s := &Store{
		pubKeyCache: cache.New[ed25519.PublicKey](-time.Minute, 4096), // already expired
	}
	_, pub := generateTestKey(t)
	s.cacheKey("server-a", pub)

	if _, ok := s.cachedKey("server-a"); ok {
		t.Fatal("expected expired entry to miss")
	}
}

func TestPubKeyCacheInvalidate(t *testing.T) {
	s := &Store{
		pubKeyCache: cache.New[ed25519.PublicKey](time.Minute, 4096),
	}
	_, pub := generateTestKey(t)
	s.cacheKey("server-a", pub)
	s.invalidateCache("server-a")

	if _, ok := s.cachedKey("server-a"); ok {
		t.Fatal("expected invalidated entry to miss")
	}
}

func generateTestKey(t *testing.T) (ed25519.PrivateKey, ed25519.PublicKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	return priv, pub
}

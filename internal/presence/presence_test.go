package presence

import "testing"

func TestPrefixConstants(t *testing.T) {
	prefixes := map[string]string{
		"ratelimit": PrefixRateLimit,
		"replay":    PrefixReplay,
		"cache":     PrefixCache,
	}

	for name, prefix := range prefixes {
		if prefix == "" {
			t.Errorf("%s prefix is empty", name)
		}
		if prefix[len(prefix)-1] != ':' {
			t.Errorf("%s prefix %q does not end with ':'", name, prefix)
		}
	}
}

func TestPrefixKeyGeneration(t *testing.T) {
	tests := []struct {
		prefix string
		key    string
		want   string
	}{
		{PrefixRateLimit, "global:127.0.0.1", "ratelimit:global:127.0.0.1"},
		{PrefixReplay, "server123:abcd", "replay:server123:abcd"},
		{PrefixCache, "peer:example.com", "cache:peer:example.com"},
	}

	for _, tt := range tests {
		got := tt.prefix + tt.key
		if got != tt.want {
			t.Errorf("prefix+key = %q, want %q", got, tt.want)
		}
	}
}

func TestRateLimitResult_AllowedWhenWithinLimit(t *testing.T) {
	r := RateLimitResult{Allowed: true, Limit: 10, Remaining: 3}
	if !r.Allowed {
		t.Fatal("expected Allowed to be true")
	}
	if r.Remaining != 3 {
		t.Errorf("remaining = %d, want 3", r.Remaining)
	}
}

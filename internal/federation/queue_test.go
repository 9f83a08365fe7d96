package federation

import (
	"testing"
	"time"
)

func TestBackoffDelaySchedule(t *testing.T) {
	ceiling := time.Hour
	cases := []struct {
		attempts int
		want     time.Duration
	}{
		{0, 5 * time.Second},
		{1, 30 * time.Second},
		{2, 2 * time.Minute},
		{3, 10 * time.Minute},
		{4, time.Hour},
		{5, time.Hour},
		{100, time.Hour},
	}
	for _, c := range cases {
		if got := BackoffDelay(c.attempts, ceiling); got != c.want {
			t.Errorf("BackoffDelay(%d) = %v, want %v", c.attempts, got, c.want)
		}
	}
}

func TestBackoffDelayRespectsCeiling(t *testing.T) {
	got := BackoffDelay(4, 15*time.Minute)
	if got != 15*time.Minute {
		t.Errorf("BackoffDelay capped = %v, want 15m", got)
	}
}

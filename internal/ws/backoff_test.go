package ws

import (
	"testing"
	"time"
)

func TestBackoff_ExponentialGrowth(t *testing.T) {
	b := Backoff{Base: time.Second, Max: 30 * time.Second, MaxAttempts: 10}

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second}, // 32s capped
		{10, 30 * time.Second},
	}
	for _, c := range cases {
		if got := b.Delay(c.attempt); got != c.want {
			t.Errorf("Delay(%d) = %v, want %v", c.attempt, got, c.want)
		}
	}
}

func TestBackoff_JitterBounds(t *testing.T) {
	b := DefaultBackoff()

	for i := 0; i < 100; i++ {
		d := b.Delay(2)
		if d < 4*time.Second || d >= 4*time.Second+500*time.Millisecond {
			t.Fatalf("Delay(2) = %v, want [4s, 4.5s)", d)
		}
	}
}

func TestBackoff_AttemptCapStopsGrowth(t *testing.T) {
	b := Backoff{Base: time.Second, Max: 30 * time.Second, MaxAttempts: 10}

	// Attempts past the cap behave exactly like the cap.
	if b.Delay(50) != b.Delay(10) {
		t.Error("delay kept growing past MaxAttempts")
	}
	// Negative attempts clamp to zero.
	if b.Delay(-3) != time.Second {
		t.Error("negative attempt not clamped")
	}
}

func TestBackoff_OverflowGuard(t *testing.T) {
	b := Backoff{Base: time.Second, Max: 30 * time.Second, MaxAttempts: 80}

	// A shift this large overflows; the cap must still hold.
	if got := b.Delay(80); got != 30*time.Second {
		t.Errorf("Delay(80) = %v, want the cap", got)
	}
}

func TestBackoff_NextAttempt(t *testing.T) {
	b := Backoff{Base: time.Second, Max: 30 * time.Second, MaxAttempts: 3}

	attempt := 0
	for i := 0; i < 10; i++ {
		attempt = b.NextAttempt(attempt)
	}
	if attempt != 3 {
		t.Errorf("attempt = %d, want capped at 3", attempt)
	}
}

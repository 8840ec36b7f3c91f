package ws

import (
	"math/rand"
	"time"
)

// Backoff computes reconnect delays: exponential growth from Base, capped
// at Max, plus uniform jitter in [0, MaxJitter) so a fleet of clients does
// not reconnect in lockstep after a server restart.
type Backoff struct {
	Base      time.Duration
	Max       time.Duration
	MaxJitter time.Duration
	// MaxAttempts caps the attempt counter; the delay stops growing there
	// but reconnecting itself never stops while the session is valid.
	MaxAttempts int
}

// DefaultBackoff matches the protocol contract:
// min(1s * 2^attempt, 30s) + jitter(0..500ms), attempt capped at 10.
func DefaultBackoff() Backoff {
	return Backoff{
		Base:        time.Second,
		Max:         30 * time.Second,
		MaxJitter:   500 * time.Millisecond,
		MaxAttempts: 10,
	}
}

// Delay returns the backoff delay for the given attempt count.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > b.MaxAttempts {
		attempt = b.MaxAttempts
	}

	d := b.Base << uint(attempt)
	if d <= 0 || d > b.Max {
		d = b.Max
	}

	if b.MaxJitter > 0 {
		d += time.Duration(rand.Int63n(int64(b.MaxJitter)))
	}
	return d
}

// NextAttempt advances the attempt counter without exceeding the cap.
func (b Backoff) NextAttempt(attempt int) int {
	if attempt >= b.MaxAttempts {
		return b.MaxAttempts
	}
	return attempt + 1
}

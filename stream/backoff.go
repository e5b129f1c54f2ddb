package stream

import (
	"math/rand"
	"time"
)

// BackoffConfig shapes the delay between session restart attempts.
type BackoffConfig struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	// Jitter is the fraction of the delay randomized away, in [0, 1).
	Jitter float64
}

func DefaultBackoff() BackoffConfig {
	return BackoffConfig{
		Initial:    500 * time.Millisecond,
		Max:        30 * time.Second,
		Multiplier: 2,
		Jitter:     0.2,
	}
}

// delay computes the wait before the attempt-th retry (attempt starts
// at 0).
func (c BackoffConfig) delay(attempt int) time.Duration {
	d := float64(c.Initial)
	for i := 0; i < attempt; i++ {
		d *= c.Multiplier
		if d >= float64(c.Max) {
			d = float64(c.Max)
			break
		}
	}
	if c.Jitter > 0 {
		d -= d * c.Jitter * rand.Float64()
	}
	return time.Duration(d)
}

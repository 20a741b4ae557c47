// Package backoff computes exponential delays with jitter.
package backoff

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// Policy defines the parameters of an exponential backoff.
type Policy struct {
	// Initial is the delay before the second attempt.
	Initial time.Duration
	// Max caps every delay.
	Max time.Duration
	// Factor multiplies the delay on each attempt.
	Factor float64
	// Jitter is the randomization factor (0.0 to 1.0) added on top.
	Jitter float64
}

// AcceptPolicy paces a listener's accept loop after temporary errors.
// Initial: 5ms, Max: 1s, Factor: 2, no jitter.
func AcceptPolicy() Policy {
	return Policy{
		Initial: 5 * time.Millisecond,
		Max:     time.Second,
		Factor:  2,
	}
}

// Delay returns the backoff for the given attempt. Attempt numbers start at 1.
func (p Policy) Delay(attempt int) time.Duration {
	return p.delayWithRand(attempt, rand.Float64()) // #nosec G404 -- jitter does not require cryptographic randomness
}

func (p Policy) delayWithRand(attempt int, randomValue float64) time.Duration {
	exp := math.Max(float64(attempt-1), 0)
	factor := p.Factor
	if factor < 1 {
		factor = 1
	}

	base := float64(p.Initial) * math.Pow(factor, exp)
	total := base + base*p.Jitter*randomValue
	if p.Max > 0 {
		total = math.Min(float64(p.Max), total)
	}
	return time.Duration(total)
}

// Sleep waits for the attempt's delay. It returns ctx.Err() if the context
// ends first.
func Sleep(ctx context.Context, p Policy, attempt int) error {
	duration := p.Delay(attempt)
	if duration <= 0 {
		return nil
	}

	timer := time.NewTimer(duration)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

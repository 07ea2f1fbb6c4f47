package dropper

import (
	"math/rand/v2"
)

// Bernoulli implements a simple u<p event decision.
type Bernoulli struct {
	p   float64
	rng *rand.Rand
}

// New returns a decision with probability p drawn from rng.
func New(p float64, rng *rand.Rand) *Bernoulli { return &Bernoulli{p: p, rng: rng} }

// Hit reports whether the event fires on this draw. p<=0 and p>=1 do not
// consume randomness.
func (b *Bernoulli) Hit() bool {
	if b.p <= 0 {
		return false
	}
	if b.p >= 1 {
		return true
	}
	return b.rng.Float64() < b.p
}

// Flip returns bit inverted when the event fires.
func (b *Bernoulli) Flip(bit uint8) uint8 {
	if b.Hit() {
		return bit ^ 1
	}
	return bit
}

// Fair returns a uniform bit.
func Fair(rng *rand.Rand) uint8 { return uint8(rng.Uint64() & 1) }

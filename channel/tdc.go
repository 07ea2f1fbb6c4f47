// Package channel simulates the timing-drift channel: a binary channel whose
// symbols are read at positions shifted by a bounded random-walk drift, with
// unread positions filled by fair coin flips and substitution noise on top.
package channel

import (
	"math"
	"math/rand/v2"

	"github.com/Observe-l/tdc-polar/drift"
	"github.com/Observe-l/tdc-polar/internal/dropper"
)

// Erased marks a signal position no transmitted symbol reached.
const Erased uint8 = 2

// Params describes the channel.
type Params struct {
	Ps          float64 // substitution probability
	PassRatio   float64
	DriftStddev float64
	MaxDrift    int
	OffsetRate  float64
}

// DriftParams returns the kernel parameters a decoder with numSegments
// buckets per unit drift needs for this channel.
func (p Params) DriftParams(numSegments int) drift.Params {
	return drift.Params{
		PassRatio:   p.PassRatio,
		DriftStddev: p.DriftStddev,
		MaxDrift:    p.MaxDrift,
		NumSegments: numSegments,
		OffsetRate:  p.OffsetRate,
	}
}

// maxRedraws bounds the rejection loop for degenerate parameters.
const maxRedraws = 1 << 20

// TDC is stateless; all randomness comes from the rng passed to each call.
type TDC struct {
	params Params
}

// New returns a channel with parameters p.
func New(p Params) *TDC { return &TDC{params: p} }

// Params returns the channel parameters.
func (c *TDC) Params() Params { return c.params }

// Send transmits x and returns the received word.
func (c *TDC) Send(rng *rand.Rand, x []uint8) []uint8 {
	d := c.Drift(rng, len(x))
	y := c.Signal(x, d)
	return c.Receive(rng, y)
}

// Drift draws a drift sequence of length n starting at 0.
func (c *TDC) Drift(rng *rand.Rand, n int) []float64 {
	d := make([]float64, n)
	for i := 0; i+1 < n; i++ {
		d[i+1] = c.nextDrift(rng, d[i])
	}
	return d
}

func (c *TDC) nextDrift(rng *rand.Rand, di float64) float64 {
	p := c.params
	if p.PassRatio >= 1 {
		return di
	}
	limit := 1 - p.PassRatio
	for range maxRedraws {
		r := p.OffsetRate + rng.NormFloat64()*p.DriftStddev
		nd := di + r
		if math.Abs(r) < limit && math.Abs(nd) <= float64(p.MaxDrift) {
			return nd
		}
	}
	return di
}

// Signal places every symbol that survives its drift at the position it is
// read from. Positions nothing reaches hold Erased.
func (c *TDC) Signal(x []uint8, d []float64) []uint8 {
	n := len(x)
	y := make([]uint8, n)
	for i := range y {
		y[i] = Erased
	}
	half := 0.5 * c.params.PassRatio
	for i := 0; i < n; i++ {
		pos := float64(i) + d[i]
		j := i + int(math.Floor(d[i]+0.5))
		if j < 0 || j >= n {
			continue
		}
		if float64(j)-half < pos && pos < float64(j)+half {
			y[j] = x[i]
		}
	}
	return y
}

// Receive applies substitution noise and resolves erasures.
func (c *TDC) Receive(rng *rand.Rand, y []uint8) []uint8 {
	sub := dropper.New(c.params.Ps, rng)
	z := make([]uint8, len(y))
	for i, v := range y {
		if v == Erased {
			z[i] = dropper.Fair(rng)
			continue
		}
		z[i] = sub.Flip(v)
	}
	return z
}

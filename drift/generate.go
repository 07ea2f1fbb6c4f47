package drift

import "math"

// Generate computes the transition table for p.
//
// A drift step is normal with mean OffsetRate and deviation DriftStddev,
// truncated to |x| < 1-PassRatio and renormalized. The probability of moving
// from bucket da to db is the step mass over the bucket width 1/NumSegments
// centred on (db-da)/NumSegments. Every current row is normalized to 1.
func Generate(p Params) *Grid[float64] {
	m := p.MaxSegment()
	g := NewGrid[float64](m)

	bound := 1 - p.PassRatio
	if bound <= 0 || p.DriftStddev <= 0 || p.NumSegments <= 0 {
		for d := -m; d <= m; d++ {
			g.Set(d, d, 1)
		}
		return g
	}
	cdf := func(x float64) float64 {
		return 0.5 * (1 + math.Erf((x-p.OffsetRate)/(p.DriftStddev*math.Sqrt2)))
	}
	mass := cdf(bound) - cdf(-bound)
	if mass <= 0 {
		for d := -m; d <= m; d++ {
			g.Set(d, d, 1)
		}
		return g
	}
	c := 1 / mass
	s := float64(p.NumSegments)
	w := 1 / (2 * s)

	for da := -m; da <= m; da++ {
		sum := 0.0
		for db := -m; db <= m; db++ {
			lo := float64(db-da)/s - w
			hi := float64(db-da)/s + w
			lo = math.Max(lo, -bound)
			hi = math.Min(hi, bound)
			v := 0.0
			if hi > lo {
				v = c * (cdf(hi) - cdf(lo))
			}
			g.Set(db, da, v)
			sum += v
		}
		if sum == 0 {
			g.Set(da, da, 1)
			continue
		}
		for db := -m; db <= m; db++ {
			g.Set(db, da, g.At(db, da)/sum)
		}
	}
	return g
}

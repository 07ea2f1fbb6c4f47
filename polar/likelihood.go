package polar

import (
	"math"

	"github.com/Observe-l/tdc-polar/drift"
)

// neutral is the likelihood of a symbol nothing was read for.
const neutral = 0.5

// ChannelLikelihood is the base level of the trellis: for every codeword
// position a and drift bucket d, the pair [P(obs | x_a=0), P(obs | x_a=1)].
// It depends only on the observation and is shared read-only by all paths.
type ChannelLikelihood struct {
	size  int
	m     int
	width int
	w     []float64 // ((a*width)+(d+m))*2 + x
}

// NewChannelLikelihood tabulates the base likelihoods of obs.
func NewChannelLikelihood(obs []uint8, maxSegment, numSegments int, ps, passRatio float64) *ChannelLikelihood {
	width := 2*maxSegment + 1
	c := &ChannelLikelihood{size: len(obs), m: maxSegment, width: width, w: make([]float64, len(obs)*width*2)}
	bound := passRatio * 0.5
	s := float64(numSegments)
	for a := range obs {
		for d := -maxSegment; d <= maxSegment; d++ {
			o := (a*width + d + maxSegment) * 2
			shift := float64(d) / s
			rounded := int(math.Floor(shift + 0.5))
			rest := shift - float64(rounded)
			j := a + rounded
			if j < 0 || j >= len(obs) || rest <= -bound || rest >= bound {
				c.w[o], c.w[o+1] = neutral, neutral
				continue
			}
			if obs[j] == 0 {
				c.w[o], c.w[o+1] = 1-ps, ps
			} else {
				c.w[o], c.w[o+1] = ps, 1-ps
			}
		}
	}
	return c
}

// Len returns the observation length.
func (c *ChannelLikelihood) Len() int { return c.size }

// At returns the pair for position a at drift d.
func (c *ChannelLikelihood) At(a, d int) [2]float64 {
	o := (a*c.width + d + c.m) * 2
	return [2]float64{c.w[o], c.w[o+1]}
}

// PairGrid is a view of likelihood pairs over (incoming, outgoing) drift.
type PairGrid struct {
	m     int
	width int
	v     []float64
}

// At returns the pair for incoming drift da and outgoing drift db.
func (g PairGrid) At(da, db int) [2]float64 {
	o := ((da+g.m)*g.width + db + g.m) * 2
	return [2]float64{g.v[o], g.v[o+1]}
}

// cell memoizes one (level, block) grid. It is valid while gen matches the
// engine generation and tag equals the local index being queried.
type cell struct {
	gen uint64
	tag int
	v   []float64
}

// Engine evaluates the drift-aware SC recursion for one decoding path.
// Engines are not safe for concurrent use; list decoding keeps one per path.
type Engine struct {
	model *drift.Model
	n     int
	m     int
	width int
	span  int

	gen   uint64
	base  *ChannelLikelihood
	cells [][]cell // cells[k][block], k >= 1
	acc   []float64
}

// NewEngine allocates an engine for code length 2^n.
func NewEngine(model *drift.Model, n int) *Engine {
	m := model.MaxSegment()
	width := 2*m + 1
	e := &Engine{
		model: model,
		n:     n,
		m:     m,
		width: width,
		span:  model.Span(),
		gen:   1,
		cells: make([][]cell, n+1),
		acc:   make([]float64, width*width*2),
	}
	for k := 1; k <= n; k++ {
		e.cells[k] = make([]cell, 1<<(n-k))
	}
	return e
}

// Reset binds the engine to a new observation and invalidates every cell.
func (e *Engine) Reset(base *ChannelLikelihood) {
	e.base = base
	e.gen++
}

// CopyFrom makes e an independent duplicate of src, including its memo.
func (e *Engine) CopyFrom(src *Engine) {
	e.base = src.base
	e.gen = src.gen
	for k := 1; k <= e.n; k++ {
		for b := range e.cells[k] {
			s := &src.cells[k][b]
			d := &e.cells[k][b]
			d.gen, d.tag = s.gen, s.tag
			if s.gen != src.gen {
				continue
			}
			if d.v == nil {
				d.v = make([]float64, len(s.v))
			}
			copy(d.v, s.v)
		}
	}
}

// CalcLikelihood returns [L(u_i=0), L(u_i=1)] given the bits already in t,
// with the drift before the first symbol fixed to 0 and the final drift
// marginalized.
func (e *Engine) CalcLikelihood(i int, t *PathTable) [2]float64 {
	g := e.Likelihood(i, e.n, 0, t)
	var ll [2]float64
	for db := -e.m; db <= e.m; db++ {
		p := g.At(0, db)
		ll[0] += p[0]
		ll[1] += p[1]
	}
	return ll
}

// Likelihood returns the normalized pair grid of local bit i of the level k
// block starting at a.
func (e *Engine) Likelihood(i, k, a int, t *PathTable) PairGrid {
	return PairGrid{m: e.m, width: e.width, v: e.compute(i, k, a, t)}
}

func (e *Engine) compute(i, k, a int, t *PathTable) []float64 {
	c := &e.cells[k][a>>k]
	if c.gen == e.gen && c.tag == i {
		return c.v
	}
	if c.v == nil {
		c.v = make([]float64, e.width*e.width*2)
	}
	if k == 1 {
		e.base2(c.v, i, a, t)
	} else {
		e.merge(c.v, i, k, a, t)
	}
	normalize(c.v)
	c.gen, c.tag = e.gen, i
	return c.v
}

// base2 combines the two codeword positions a and a+1.
func (e *Engine) base2(out []float64, i, a int, t *PathTable) {
	even := i%2 == 0
	var prev uint8
	if !even {
		prev = t.Bit(1, a+i-1)
	}
	clear(out)
	for da := -e.m; da <= e.m; da++ {
		wb := e.base.At(a, da)
		for _, tr := range e.model.From(da) {
			wg := e.base.At(a+1, tr.Next)
			o := ((da+e.m)*e.width + tr.Next + e.m) * 2
			if even {
				out[o] = tr.P * (wb[0]*wg[0] + wb[1]*wg[1])
				out[o+1] = tr.P * (wb[1]*wg[0] + wb[0]*wg[1])
			} else {
				out[o] = tr.P * wb[prev] * wg[0]
				out[o+1] = tr.P * wb[prev^1] * wg[1]
			}
		}
	}
}

// merge combines the two children of the level k block at a. The drift
// transition between the children's boundary symbols is contracted into the
// left child first, then the result is combined with the right child.
func (e *Engine) merge(out []float64, i, k, a int, t *PathTable) {
	half := 1 << (k - 1)
	g := a + half
	j := i / 2
	left := e.compute(j, k-1, a, t)
	right := e.compute(j, k-1, g, t)

	even := i%2 == 0
	var prev uint8
	if !even {
		prev = t.Bit(k, a+i-1)
	}

	w, m := e.width, e.m
	acc := e.acc
	clear(acc)
	leftReach := e.span * half
	for _, tr := range e.model.NonZero() {
		for da := max(-m, tr.Current-leftReach); da <= min(m, tr.Current+leftReach); da++ {
			lo := ((da+m)*w + tr.Current + m) * 2
			ao := ((da+m)*w + tr.Next + m) * 2
			acc[ao] += tr.P * left[lo]
			acc[ao+1] += tr.P * left[lo+1]
		}
	}

	reach := e.span << k
	clear(out)
	for da := -m; da <= m; da++ {
		for db := max(-m, da-reach); db <= min(m, da+reach); db++ {
			var r0, r1 float64
			for dg := -m; dg <= m; dg++ {
				ao := ((da+m)*w + dg + m) * 2
				a0, a1 := acc[ao], acc[ao+1]
				if a0 == 0 && a1 == 0 {
					continue
				}
				ro := ((dg+m)*w + db + m) * 2
				b0, b1 := right[ro], right[ro+1]
				if even {
					r0 += a0*b0 + a1*b1
					r1 += a1*b0 + a0*b1
				} else if prev == 0 {
					r0 += a0 * b0
					r1 += a1 * b1
				} else {
					r0 += a1 * b0
					r1 += a0 * b1
				}
			}
			o := ((da+m)*w + db + m) * 2
			out[o], out[o+1] = r0, r1
		}
	}
}

// normalize rescales v to unit mass. An all-zero grid is an impossible
// configuration and is left as is.
func normalize(v []float64) {
	sum := 0.0
	for _, x := range v {
		sum += x
	}
	if sum == 0 {
		return
	}
	inv := 1 / sum
	for i := range v {
		v[i] *= inv
	}
}

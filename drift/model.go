// Package drift models the hidden drift state of the timing-drift channel:
// the transition kernel P(next | current) over signed drift buckets, where
// and how its tables are stored, and how they are generated.
package drift

import (
	"errors"
	"fmt"
)

var (
	// ErrTableNotFound is returned when no probability table exists for the
	// requested parameters. Decoding cannot proceed without one.
	ErrTableNotFound = errors.New("drift: probability table not found")
	// ErrMalformedTable is returned when a table has the wrong shape or
	// unparsable values.
	ErrMalformedTable = errors.New("drift: malformed probability table")
)

// Params selects a transition kernel.
type Params struct {
	PassRatio   float64
	DriftStddev float64
	MaxDrift    int
	NumSegments int
	// OffsetRate is the mean of a single drift step. Zero for the symmetric channel.
	OffsetRate float64
}

// MaxSegment is the largest drift bucket, MaxDrift*NumSegments.
func (p Params) MaxSegment() int { return p.MaxDrift * p.NumSegments }

func (p Params) String() string {
	return fmt.Sprintf("r=%g v=%g d=%d s=%d o=%g", p.PassRatio, p.DriftStddev, p.MaxDrift, p.NumSegments, p.OffsetRate)
}

// Transition is one non-zero edge of the kernel.
type Transition struct {
	Current int
	Next    int
	P       float64
}

// Model is an immutable transition kernel. It is safe for concurrent use.
type Model struct {
	params Params
	m      int
	probs  *Grid[float64] // probs[next][current]
	edges  []Transition
	from   [][]Transition // edges grouped by current+m
	span   int
}

// New loads the table for params from src.
func New(params Params, src Source) (*Model, error) {
	if src == nil {
		return nil, fmt.Errorf("%w: no source configured", ErrTableNotFound)
	}
	g, err := src.Table(params)
	if err != nil {
		return nil, err
	}
	return FromGrid(params, g)
}

// FromGrid wraps an already materialized table indexed [next][current].
func FromGrid(params Params, probs *Grid[float64]) (*Model, error) {
	m := params.MaxSegment()
	if probs == nil || probs.Bound() != m {
		return nil, fmt.Errorf("%w: expected bound %d", ErrMalformedTable, m)
	}
	md := &Model{params: params, m: m, probs: probs, from: make([][]Transition, 2*m+1)}
	for cur := -m; cur <= m; cur++ {
		start := len(md.edges)
		for next := -m; next <= m; next++ {
			p := probs.At(next, cur)
			if p == 0 {
				continue
			}
			md.edges = append(md.edges, Transition{Current: cur, Next: next, P: p})
			if d := abs(next - cur); d > md.span {
				md.span = d
			}
		}
		md.from[cur+m] = md.edges[start:len(md.edges):len(md.edges)]
	}
	return md, nil
}

// Params returns the parameters the model was built for.
func (md *Model) Params() Params { return md.params }

// MaxSegment returns the drift bound M.
func (md *Model) MaxSegment() int { return md.m }

// Prob returns P(next | current), or 0 when either state is out of range.
func (md *Model) Prob(next, current int) float64 {
	if abs(next) > md.m || abs(current) > md.m {
		return 0
	}
	return md.probs.At(next, current)
}

// NonZero lists every transition with non-zero probability, ordered by
// current state then next state. The slice must not be modified.
func (md *Model) NonZero() []Transition { return md.edges }

// From lists the non-zero transitions leaving current.
func (md *Model) From(current int) []Transition {
	if abs(current) > md.m {
		return nil
	}
	return md.from[current+md.m]
}

// Span is the largest |next-current| reachable in one step.
func (md *Model) Span() int { return md.span }

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// Package polar implements polar coding for the timing-drift channel:
// encoding, the butterfly path table, a drift-aware likelihood engine, SC and
// SCL(-CRC) decoding and Monte-Carlo frozen-bit selection.
//
// Bits are uint8 values 0 or 1. A frozen mask is a []bool where true means
// the position carries a fixed 0.
package polar

import (
	"errors"
	"fmt"
	"math/bits"
)

var (
	ErrCodeLength        = errors.New("polar: code length must be a power of two")
	ErrFrozenMask        = errors.New("polar: frozen mask does not match parameters")
	ErrObservationLength = errors.New("polar: observation length does not match code length")
	ErrMessageLength     = errors.New("polar: message length does not match info length")
)

// Params are the code and decoder parameters.
type Params struct {
	CodeLength  int
	InfoLength  int
	NumSegments int
}

// Exponent returns n with CodeLength = 2^n.
func (p Params) Exponent() (int, error) {
	return exponent(p.CodeLength)
}

func exponent(n int) (int, error) {
	if n < 2 || n&(n-1) != 0 {
		return 0, fmt.Errorf("%w: %d", ErrCodeLength, n)
	}
	return bits.TrailingZeros(uint(n)), nil
}

// Validate checks the structural constraints only. Channel values are not
// range checked.
func (p Params) Validate() error {
	if _, err := p.Exponent(); err != nil {
		return err
	}
	if p.InfoLength < 0 || p.InfoLength > p.CodeLength {
		return fmt.Errorf("polar: info length %d outside [0, %d]", p.InfoLength, p.CodeLength)
	}
	if p.NumSegments < 1 {
		return fmt.Errorf("polar: num segments must be positive, got %d", p.NumSegments)
	}
	return nil
}

// FreeCount counts the unfrozen positions of mask.
func FreeCount(mask []bool) int {
	c := 0
	for _, f := range mask {
		if !f {
			c++
		}
	}
	return c
}

// AllFree returns a mask with no frozen positions.
func AllFree(n int) []bool { return make([]bool, n) }

// ExtractInfo returns the first k free bits of x in position order.
func ExtractInfo(x []uint8, mask []bool, k int) []uint8 {
	m := make([]uint8, 0, k)
	for i, v := range x {
		if len(m) == k {
			break
		}
		if mask[i] {
			continue
		}
		m = append(m, v)
	}
	return m
}

// HammingDistance counts differing positions of two equal length words.
func HammingDistance(a, b []uint8) int {
	d := 0
	for i := range a {
		if a[i] != b[i] {
			d++
		}
	}
	return d
}

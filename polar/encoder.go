package polar

import "fmt"

// Encoder maps info words onto codewords for a fixed frozen mask.
type Encoder struct {
	n      int
	frozen []bool
	free   int
}

// NewEncoder validates the mask against codeLength, a power of two.
func NewEncoder(codeLength int, frozen []bool) (*Encoder, error) {
	n, err := exponent(codeLength)
	if err != nil {
		return nil, err
	}
	if len(frozen) != codeLength {
		return nil, fmt.Errorf("%w: mask length %d, code length %d", ErrFrozenMask, len(frozen), codeLength)
	}
	return &Encoder{n: n, frozen: append([]bool(nil), frozen...), free: FreeCount(frozen)}, nil
}

// InfoLength is the number of free positions.
func (e *Encoder) InfoLength() int { return e.free }

// CodeLength returns N.
func (e *Encoder) CodeLength() int { return 1 << e.n }

// Encode places m on the free positions in order, zeroes the frozen ones and
// applies the butterfly transform.
func (e *Encoder) Encode(m []uint8) ([]uint8, error) {
	if len(m) != e.free {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrMessageLength, len(m), e.free)
	}
	size := 1 << e.n
	u := make([]uint8, size)
	j := 0
	for i := range u {
		if e.frozen[i] {
			continue
		}
		u[i] = m[j]
		j++
	}
	return Transform(u), nil
}

// Transform applies the polar transform to raw bits u, level n to level 0,
// and returns the codeword. u is not modified.
func Transform(u []uint8) []uint8 {
	size := len(u)
	z := append([]uint8(nil), u...)
	tmp := make([]uint8, size)
	for half := size / 2; half >= 1; half /= 2 {
		for a := 0; a < size; a += 2 * half {
			for j := 0; j < half; j++ {
				l, r := z[a+2*j], z[a+2*j+1]
				tmp[a+j] = l ^ r
				tmp[a+half+j] = r
			}
		}
		z, tmp = tmp, z
	}
	return z
}

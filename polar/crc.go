package polar

import (
	"errors"
	"fmt"
)

// CRC is a cyclic redundancy check over GF(2). The generator polynomial is
// given most significant coefficient first, e.g. x^2+1 is [1, 0, 1].
type CRC struct {
	poly []uint8
}

// NewCRC checks poly and returns its CRC.
func NewCRC(poly []uint8) (*CRC, error) {
	if len(poly) < 2 || poly[0] != 1 {
		return nil, errors.New("polar: crc polynomial needs degree >= 1 and a leading 1")
	}
	return &CRC{poly: append([]uint8(nil), poly...)}, nil
}

// Len is the number of check bits, the degree of the polynomial.
func (c *CRC) Len() int { return len(c.poly) - 1 }

// Poly returns a copy of the generator coefficients.
func (c *CRC) Poly() []uint8 { return append([]uint8(nil), c.poly...) }

// remainder divides w by the generator and returns the last Len() bits.
func (c *CRC) remainder(w []uint8) []uint8 {
	r := append([]uint8(nil), w...)
	deg := c.Len()
	for i := 0; i+deg < len(r); i++ {
		if r[i] == 0 {
			continue
		}
		for j, p := range c.poly {
			r[i+j] ^= p
		}
	}
	return r[len(r)-deg:]
}

// Encode appends the check bits of m.
func (c *CRC) Encode(m []uint8) []uint8 {
	w := make([]uint8, len(m)+c.Len())
	copy(w, m)
	rem := c.remainder(w)
	copy(w[len(m):], rem)
	return w
}

// Check reports whether w, message followed by check bits, divides evenly.
func (c *CRC) Check(w []uint8) bool {
	if len(w) < c.Len() {
		return false
	}
	for _, b := range c.remainder(w) {
		if b != 0 {
			return false
		}
	}
	return true
}

// CRCEncoder polar encodes m followed by its CRC.
type CRCEncoder struct {
	inner *Encoder
	crc   *CRC
}

// NewCRCEncoder expects frozen to leave infoLength+crc.Len() free positions.
func NewCRCEncoder(codeLength, infoLength int, frozen []bool, crc *CRC) (*CRCEncoder, error) {
	enc, err := NewEncoder(codeLength, frozen)
	if err != nil {
		return nil, err
	}
	if enc.InfoLength() != infoLength+crc.Len() {
		return nil, fmt.Errorf("%w: %d free positions, need %d", ErrFrozenMask, enc.InfoLength(), infoLength+crc.Len())
	}
	return &CRCEncoder{inner: enc, crc: crc}, nil
}

// InfoLength excludes the check bits.
func (e *CRCEncoder) InfoLength() int { return e.inner.InfoLength() - e.crc.Len() }

// Encode appends the check bits of m and encodes the result.
func (e *CRCEncoder) Encode(m []uint8) ([]uint8, error) {
	if len(m) != e.InfoLength() {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrMessageLength, len(m), e.InfoLength())
	}
	return e.inner.Encode(e.crc.Encode(m))
}

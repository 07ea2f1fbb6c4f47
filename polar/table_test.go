package polar_test

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Observe-l/tdc-polar/polar"
)

func requireSameTable(t *testing.T, want, got *polar.PathTable) {
	t.Helper()
	for k := 0; k <= want.Levels(); k++ {
		for p := 0; p < want.Len(); p++ {
			require.Equal(t, want.Bit(k, p), got.Bit(k, p), "level %d pos %d", k, p)
		}
	}
}

func TestUpdateInOrderMatchesInit(t *testing.T) {
	rng := rand.New(rand.NewPCG(10, 1))
	raw := randomBits(rng, 32)

	want := polar.NewPathTable(5)
	want.Init(raw)

	got := polar.NewPathTable(5)
	for i, b := range raw {
		got.Update(i, b)
	}
	requireSameTable(t, want, got)
	assert.Equal(t, polar.Transform(raw), got.Codeword())
}

func TestUpdateAnyOrderMatchesInit(t *testing.T) {
	rng := rand.New(rand.NewPCG(10, 2))
	got := polar.NewPathTable(6)
	raw := make([]uint8, 64)
	for round := 0; round < 300; round++ {
		i := rng.IntN(64)
		raw[i] = uint8(rng.IntN(2))
		got.Update(i, raw[i])
	}
	want := polar.NewPathTable(6)
	want.Init(raw)
	requireSameTable(t, want, got)
}

func TestCloneIsIndependent(t *testing.T) {
	a := polar.NewPathTable(3)
	a.Update(7, 1)
	b := a.Clone()
	b.Update(2, 1)
	assert.Equal(t, uint8(0), a.Bit(3, 2))
	assert.Equal(t, uint8(1), b.Bit(3, 7))

	a.Reset()
	assert.Equal(t, make([]uint8, 8), a.Codeword())
	assert.NotEqual(t, make([]uint8, 8), b.Codeword())
}

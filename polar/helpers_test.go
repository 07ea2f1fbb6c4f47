package polar_test

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Observe-l/tdc-polar/channel"
	"github.com/Observe-l/tdc-polar/drift"
)

const testSegments = 2

// noiseless is a channel without substitutions or drift.
var noiseless = channel.Params{Ps: 0, PassRatio: 1, DriftStddev: 0, MaxDrift: 2}

// drifting is a mildly noisy channel with a drifting clock.
var drifting = channel.Params{Ps: 0.02, PassRatio: 0.6, DriftStddev: 0.3, MaxDrift: 1}

func newModel(t testing.TB, ch channel.Params) *drift.Model {
	t.Helper()
	md, err := drift.New(ch.DriftParams(testSegments), drift.GeneratorSource{})
	require.NoError(t, err)
	return md
}

func randomBits(rng *rand.Rand, n int) []uint8 {
	b := make([]uint8, n)
	for i := range b {
		b[i] = uint8(rng.IntN(2))
	}
	return b
}

// randomMask freezes all but free randomly chosen positions.
func randomMask(rng *rand.Rand, n, free int) []bool {
	mask := make([]bool, n)
	for i := range mask {
		mask[i] = true
	}
	for _, i := range rng.Perm(n)[:free] {
		mask[i] = false
	}
	return mask
}

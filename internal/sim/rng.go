// Package sim runs Monte-Carlo trials: reproducible seeding, a fork/join
// worker pool and the bit/word error rate simulator.
package sim

import (
	"math/rand/v2"
)

// seedMix decorrelates the two PCG words derived from one seed.
const seedMix = 0x9e3779b97f4a7c15

// NewRand returns the generator for one unit of work.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^seedMix))
}

// DrawSeeds draws n seeds from the driver. All seeds of a batch are drawn
// before any work starts, so the sequence does not depend on scheduling.
func DrawSeeds(driver *rand.Rand, n int) []uint64 {
	seeds := make([]uint64, n)
	for i := range seeds {
		seeds[i] = driver.Uint64()
	}
	return seeds
}

// Driver is the top-level generator of a run. Its state can be saved and
// restored so a resumed run draws the same seeds.
type Driver struct {
	src *rand.PCG
	rng *rand.Rand
}

// NewDriver seeds a driver deterministically from seed.
func NewDriver(seed uint64) *Driver {
	src := rand.NewPCG(seed, seed^seedMix)
	return &Driver{src: src, rng: rand.New(src)}
}

// Rand returns the generator view of the driver.
func (d *Driver) Rand() *rand.Rand { return d.rng }

// MarshalBinary returns the generator state.
func (d *Driver) MarshalBinary() ([]byte, error) { return d.src.MarshalBinary() }

// UnmarshalBinary restores a state saved by MarshalBinary.
func (d *Driver) UnmarshalBinary(b []byte) error { return d.src.UnmarshalBinary(b) }

package polar_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/Observe-l/tdc-polar/channel"
	"github.com/Observe-l/tdc-polar/internal/sim"
	"github.com/Observe-l/tdc-polar/polar"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

// bsc is a substitution-only channel: the drift kernel is the identity.
var bsc = channel.Params{Ps: 0.1, PassRatio: 1, DriftStddev: 0, MaxDrift: 1}

func newSelector(t *testing.T, ch channel.Params, n, k, trials int, opts ...polar.SelectorOption) *polar.FrozenBitSelector {
	t.Helper()
	opts = append([]polar.SelectorOption{polar.WithLogger(quiet)}, opts...)
	sel, err := polar.NewFrozenBitSelector(polar.Params{CodeLength: n, InfoLength: k, NumSegments: testSegments}, channel.New(ch), newModel(t, ch), trials, opts...)
	require.NoError(t, err)
	return sel
}

func TestBitCapacity(t *testing.T) {
	assert.Equal(t, 1.0, polar.BitCapacity(1, 0))
	assert.Equal(t, 0.0, polar.BitCapacity(0.5, 0.5))
	assert.Equal(t, 0.0, polar.BitCapacity(0.1, 0.9))
	assert.Equal(t, 0.0, polar.BitCapacity(0, 1))
	assert.Equal(t, 0.0, polar.BitCapacity(0, 0))
	assert.InDelta(t, 1+math.Log2(0.9), polar.BitCapacity(0.9, 0.1), 1e-12)
	// scale invariant
	assert.InDelta(t, polar.BitCapacity(0.9, 0.1), polar.BitCapacity(9e-30, 1e-30), 1e-12)
}

func TestRankCapacitiesKeepsTiesInIndexOrder(t *testing.T) {
	r := polar.RankCapacities([]float64{0.5, 0.9, 0.5, 0.1})
	idx := make([]int, len(r))
	for i, c := range r {
		idx[i] = c.Index
	}
	assert.Equal(t, []int{1, 0, 2, 3}, idx)
	assert.Equal(t, []bool{false, false, true, true}, r.FrozenBits(2))
	assert.Equal(t, []bool{true, true, true, true}, r.FrozenBits(0))
	assert.Equal(t, []bool{false, false, false, false}, r.FrozenBits(9))
}

func TestFrozenBitsUnfreezeOnePositionPerInfoBit(t *testing.T) {
	rng := rand.New(rand.NewPCG(4, 4))
	mean := make([]float64, 32)
	for i := range mean {
		mean[i] = float64(rng.IntN(5)) / 4
	}
	r := polar.RankCapacities(mean)
	for k := 0; k < len(r); k++ {
		a, b := r.FrozenBits(k), r.FrozenBits(k+1)
		for i := range a {
			if i == r[k].Index {
				assert.True(t, a[i] && !b[i], "k=%d position %d", k, i)
			} else {
				assert.Equal(t, a[i], b[i], "k=%d position %d", k, i)
			}
		}
	}
}

func TestSelectorRejectsBadParams(t *testing.T) {
	md := newModel(t, bsc)
	_, err := polar.NewFrozenBitSelector(polar.Params{CodeLength: 10, NumSegments: 1}, channel.New(bsc), md, 1)
	require.ErrorIs(t, err, polar.ErrCodeLength)
	_, err = polar.NewFrozenBitSelector(polar.Params{CodeLength: 8, NumSegments: 1}, channel.New(bsc), md, 0)
	require.Error(t, err)
}

func TestSelectRanksRepetitionBitFirst(t *testing.T) {
	sel := newSelector(t, bsc, 16, 4, 200)
	r, err := sel.Select(context.Background(), sim.NewDriver(1).Rand())
	require.NoError(t, err)
	require.Len(t, r, 16)

	assert.Equal(t, 15, r[0].Index)
	assert.Greater(t, r[0].Value, 0.9)
	for _, c := range r {
		if c.Index == 0 {
			assert.Less(t, c.Value, 0.05)
		}
	}
	for i := 1; i < len(r); i++ {
		assert.GreaterOrEqual(t, r[i-1].Value, r[i].Value)
	}
}

func TestParallelSelectMatchesSerial(t *testing.T) {
	sel := newSelector(t, drifting, 16, 8, 40)
	want, err := sel.Select(context.Background(), sim.NewDriver(3).Rand())
	require.NoError(t, err)
	for _, w := range []int{1, 3, 8} {
		got, err := sel.ParallelSelect(context.Background(), sim.NewDriver(3).Rand(), w)
		require.NoError(t, err)
		assert.Equal(t, want, got, "workers=%d", w)
	}
}

func TestRunParallelMatchesRunSerial(t *testing.T) {
	sel := newSelector(t, drifting, 16, 8, 1)
	seeds := sim.DrawSeeds(sim.NewDriver(4).Rand(), 25)
	want, err := sel.RunSerial(seeds)
	require.NoError(t, err)
	got, err := sel.RunParallel(context.Background(), seeds, 4)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, 25, got.Trials)
}

func TestSelectUsesCachedRanking(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := NewMockRankingStore(ctrl)
	sel := newSelector(t, bsc, 8, 4, 10, polar.WithStore(store))

	cached := polar.RankCapacities([]float64{0, 1, 2, 3, 4, 5, 6, 7})
	store.EXPECT().Load(gomock.Any(), sel.Key()).Return(cached, true, nil)

	r, err := sel.Select(context.Background(), sim.NewDriver(1).Rand())
	require.NoError(t, err)
	assert.Equal(t, cached, r)
}

func TestSelectFillsCacheOnMiss(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := NewMockRankingStore(ctrl)
	sel := newSelector(t, bsc, 8, 4, 10, polar.WithStore(store))

	var saved polar.Ranking
	store.EXPECT().Load(gomock.Any(), sel.Key()).Return(nil, false, nil)
	store.EXPECT().Save(gomock.Any(), sel.Key(), gomock.Any()).DoAndReturn(
		func(_ context.Context, _ polar.CapacityKey, r polar.Ranking) error {
			saved = r
			return nil
		})

	r, err := sel.Select(context.Background(), sim.NewDriver(1).Rand())
	require.NoError(t, err)
	assert.Equal(t, saved, r)
}

func TestSelectIgnoresBrokenCache(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := NewMockRankingStore(ctrl)
	sel := newSelector(t, bsc, 8, 4, 10, polar.WithStore(store))

	broken := errors.New("disk on fire")
	gomock.InOrder(
		store.EXPECT().Load(gomock.Any(), gomock.Any()).Return(nil, false, broken),
		store.EXPECT().Save(gomock.Any(), gomock.Any(), gomock.Any()).Return(broken),
	)
	want, err := newSelector(t, bsc, 8, 4, 10).Select(context.Background(), sim.NewDriver(1).Rand())
	require.NoError(t, err)

	r, err := sel.Select(context.Background(), sim.NewDriver(1).Rand())
	require.NoError(t, err)
	assert.Equal(t, want, r)
}

func TestSelectIgnoresWrongLengthCache(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := NewMockRankingStore(ctrl)
	sel := newSelector(t, bsc, 8, 4, 10, polar.WithStore(store))

	store.EXPECT().Load(gomock.Any(), gomock.Any()).Return(polar.RankCapacities([]float64{1, 2}), true, nil)
	store.EXPECT().Save(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)

	r, err := sel.Select(context.Background(), sim.NewDriver(1).Rand())
	require.NoError(t, err)
	assert.Len(t, r, 8)
}

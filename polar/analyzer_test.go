package polar_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Observe-l/tdc-polar/internal/sim"
	"github.com/Observe-l/tdc-polar/polar"
)

type memCheckpoint struct {
	st    *polar.AnalyzerState
	saves int
}

func (m *memCheckpoint) Load(context.Context) (*polar.AnalyzerState, bool, error) {
	if m.st == nil {
		return nil, false, nil
	}
	return clone(m.st), true, nil
}

func (m *memCheckpoint) Save(_ context.Context, st *polar.AnalyzerState) error {
	m.st = clone(st)
	m.saves++
	return nil
}

func clone(st *polar.AnalyzerState) *polar.AnalyzerState {
	b := *st.Batch
	b.Sums = append([]float64(nil), b.Sums...)
	b.ErrorCounts = append([]int(nil), b.ErrorCounts...)
	return &polar.AnalyzerState{
		Batch:      &b,
		PrevFrozen: append([]bool(nil), st.PrevFrozen...),
		Driver:     append([]byte(nil), st.Driver...),
	}
}

type memStore struct {
	keys []polar.CapacityKey
}

func (m *memStore) Load(context.Context, polar.CapacityKey) (polar.Ranking, bool, error) {
	return nil, false, nil
}

func (m *memStore) Save(_ context.Context, key polar.CapacityKey, _ polar.Ranking) error {
	m.keys = append(m.keys, key)
	return nil
}

func analyze(t *testing.T, trials int, ckpt polar.Checkpointer, seed uint64, opts ...polar.SelectorOption) (polar.Ranking, []polar.EpochReport) {
	t.Helper()
	sel := newSelector(t, drifting, 16, 6, trials, opts...)
	a, err := polar.NewFrozenBitAnalyzer(sel, 7, ckpt)
	require.NoError(t, err)
	var reports []polar.EpochReport
	r, err := a.Analyze(context.Background(), sim.NewDriver(seed), 3, func(rep polar.EpochReport) {
		reports = append(reports, rep)
	})
	require.NoError(t, err)
	return r, reports
}

func TestAnalyzeEpochs(t *testing.T) {
	store := &memStore{}
	r, reports := analyze(t, 30, nil, 11, polar.WithStore(store))
	require.Len(t, r, 16)
	require.Len(t, reports, 5)

	sims := make([]int, len(reports))
	for i, rep := range reports {
		sims[i] = rep.Simulations
		assert.LessOrEqual(t, rep.BLER, 1.0)
		assert.GreaterOrEqual(t, rep.BER, 0.0)
	}
	assert.Equal(t, []int{7, 14, 21, 28, 30}, sims)
	// everything starts unfrozen, so the first epoch moves every frozen position
	assert.Equal(t, 16-6, reports[0].Hamming)

	require.Len(t, store.keys, 5)
	for i, k := range store.keys {
		assert.Equal(t, sims[i], k.Trials)
		assert.Equal(t, 16, k.CodeLength)
	}
}

func TestAnalyzeResumesFromCheckpoint(t *testing.T) {
	want, full := analyze(t, 28, &memCheckpoint{}, 11)

	ckpt := &memCheckpoint{}
	_, first := analyze(t, 14, ckpt, 11)
	require.Len(t, first, 2)
	require.Equal(t, 2, ckpt.saves)

	// the driver seed is ignored: its state comes from the checkpoint
	got, rest := analyze(t, 28, ckpt, 999)
	assert.Equal(t, want, got)
	require.Len(t, rest, 2)
	assert.Equal(t, full[2:], rest)
	assert.Equal(t, 28, ckpt.st.Batch.Trials)
}

func TestAnalyzeFinishedCheckpointRunsNothing(t *testing.T) {
	ckpt := &memCheckpoint{}
	want, _ := analyze(t, 14, ckpt, 5)
	got, reports := analyze(t, 14, ckpt, 5)
	assert.Empty(t, reports)
	assert.Equal(t, want, got)
}

func TestAnalyzeRejectsForeignCheckpoint(t *testing.T) {
	ckpt := &memCheckpoint{st: &polar.AnalyzerState{
		Batch:      &polar.TrialBatch{Trials: 3, Sums: make([]float64, 8), ErrorCounts: make([]int, 8)},
		PrevFrozen: make([]bool, 8),
	}}
	sel := newSelector(t, drifting, 16, 6, 10)
	a, err := polar.NewFrozenBitAnalyzer(sel, 5, ckpt)
	require.NoError(t, err)
	_, err = a.Analyze(context.Background(), sim.NewDriver(1), 1, nil)
	require.Error(t, err)

	_, err = polar.NewFrozenBitAnalyzer(sel, 0, nil)
	require.Error(t, err)
}

package polar

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Observe-l/tdc-polar/internal/sim"
)

// AnalyzerState is everything needed to resume an analysis.
type AnalyzerState struct {
	Batch      *TrialBatch
	PrevFrozen []bool
	Driver     []byte // marshaled driver RNG
}

// Checkpointer persists analyzer state between epochs.
type Checkpointer interface {
	Load(ctx context.Context) (st *AnalyzerState, ok bool, err error)
	Save(ctx context.Context, st *AnalyzerState) error
}

// EpochReport summarizes the analysis after one epoch.
type EpochReport struct {
	Simulations int
	// Hamming is the number of positions whose frozen status changed.
	Hamming   int
	ErrorBits int
	BLER      float64
	BER       float64
}

// FrozenBitAnalyzer runs selection epoch by epoch and tracks how the frozen
// set converges.
type FrozenBitAnalyzer struct {
	sel        *FrozenBitSelector
	infoLength int
	epochSize  int
	ckpt       Checkpointer
}

// NewFrozenBitAnalyzer runs sel's trial budget in epochs of epochSize. ckpt
// may be nil.
func NewFrozenBitAnalyzer(sel *FrozenBitSelector, epochSize int, ckpt Checkpointer) (*FrozenBitAnalyzer, error) {
	if epochSize < 1 {
		return nil, fmt.Errorf("polar: epoch size must be positive, got %d", epochSize)
	}
	return &FrozenBitAnalyzer{sel: sel, infoLength: sel.params.InfoLength, epochSize: epochSize, ckpt: ckpt}, nil
}

// Analyze runs the remaining epochs. report, if set, is called after each.
func (a *FrozenBitAnalyzer) Analyze(ctx context.Context, driver *sim.Driver, workers int, report func(EpochReport)) (Ranking, error) {
	n := a.sel.params.CodeLength
	logger := a.sel.logger
	st := &AnalyzerState{Batch: newTrialBatch(n), PrevFrozen: make([]bool, n)}

	if a.ckpt != nil {
		saved, ok, err := a.ckpt.Load(ctx)
		if err != nil {
			return nil, err
		}
		if ok {
			if len(saved.Batch.Sums) != n || len(saved.PrevFrozen) != n {
				return nil, fmt.Errorf("polar: checkpoint is for code length %d, want %d", len(saved.Batch.Sums), n)
			}
			if err := driver.UnmarshalBinary(saved.Driver); err != nil {
				return nil, fmt.Errorf("restore driver rng: %w", err)
			}
			st = saved
			logger.Info("resumed analysis", slog.Int("simulations", st.Batch.Trials))
		}
	}

	ranking := RankCapacities(st.Batch.Mean())
	for st.Batch.Trials < a.sel.trials {
		epoch := min(a.epochSize, a.sel.trials-st.Batch.Trials)
		seeds := sim.DrawSeeds(driver.Rand(), epoch)
		batch, err := a.sel.RunParallel(ctx, seeds, max(workers, 1))
		if err != nil {
			return nil, err
		}
		st.Batch.Add(batch)

		ranking = RankCapacities(st.Batch.Mean())
		frozen := ranking.FrozenBits(a.infoLength)
		rep := EpochReport{Simulations: st.Batch.Trials}
		for i := range frozen {
			if frozen[i] != st.PrevFrozen[i] {
				rep.Hamming++
			}
			if !frozen[i] {
				rep.ErrorBits += st.Batch.ErrorCounts[i]
			}
		}
		rep.BLER = min(1, float64(rep.ErrorBits)/float64(rep.Simulations))
		if a.infoLength > 0 {
			rep.BER = float64(rep.ErrorBits) / float64(a.infoLength*rep.Simulations)
		}
		st.PrevFrozen = frozen
		if report != nil {
			report(rep)
		}

		if a.sel.store != nil {
			key := a.sel.Key()
			key.Trials = st.Batch.Trials
			if err := a.sel.store.Save(ctx, key, ranking); err != nil {
				logger.Warn("capacity records write failed", slog.String("error", err.Error()))
			}
		}
		if a.ckpt != nil {
			b, err := driver.MarshalBinary()
			if err != nil {
				return nil, err
			}
			st.Driver = b
			if err := a.ckpt.Save(ctx, st); err != nil {
				return nil, fmt.Errorf("write checkpoint: %w", err)
			}
		}
	}
	return ranking, nil
}

package polar

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"sort"

	"github.com/Observe-l/tdc-polar/channel"
	"github.com/Observe-l/tdc-polar/drift"
	"github.com/Observe-l/tdc-polar/internal/sim"
)

// Capacity is the estimated capacity of one raw bit position.
type Capacity struct {
	Index int
	Value float64
}

// Ranking lists every position by descending capacity. Equal capacities keep
// ascending index order.
type Ranking []Capacity

// RankCapacities orders mean capacities by value, highest first.
func RankCapacities(mean []float64) Ranking {
	r := make(Ranking, len(mean))
	for i, v := range mean {
		r[i] = Capacity{Index: i, Value: v}
	}
	sort.SliceStable(r, func(a, b int) bool { return r[a].Value > r[b].Value })
	return r
}

// FrozenBits freezes every position except the first infoLength of r.
func (r Ranking) FrozenBits(infoLength int) []bool {
	frozen := make([]bool, len(r))
	for i := range frozen {
		frozen[i] = true
	}
	for _, c := range r[:min(infoLength, len(r))] {
		frozen[c.Index] = false
	}
	return frozen
}

// MeanCapacity averages the capacities of r. By the chain rule this is the
// genie-aided estimate of the achievable rate per channel use.
func MeanCapacity(r Ranking) float64 {
	if len(r) == 0 {
		return 0
	}
	sum := 0.0
	for _, c := range r {
		sum += c.Value
	}
	return sum / float64(len(r))
}

// CapacityKey identifies a ranking: any change of these values invalidates it.
type CapacityKey struct {
	CodeLength  int
	Trials      int
	Channel     channel.Params
	NumSegments int
}

// RankingStore persists rankings between runs.
//
//go:generate mockgen -destination=mock_store_test.go -package=polar_test . RankingStore
type RankingStore interface {
	// Load returns the stored ranking, or ok=false when there is none.
	Load(ctx context.Context, key CapacityKey) (r Ranking, ok bool, err error)
	Save(ctx context.Context, key CapacityKey, r Ranking) error
}

// BitCapacity is the genie-aided capacity contribution of one decision with
// likelihood lt for the true bit and lf for the other.
func BitCapacity(lt, lf float64) float64 {
	sum := lt + lf
	if lt == 0 || sum == 0 {
		return 0
	}
	c := 1 + math.Log2(lt) - math.Log2(sum)
	return math.Min(1, math.Max(0, c))
}

// SelectorOption configures a FrozenBitSelector.
type SelectorOption func(*FrozenBitSelector)

// WithStore makes selection consult and fill s.
func WithStore(s RankingStore) SelectorOption {
	return func(f *FrozenBitSelector) { f.store = s }
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) SelectorOption {
	return func(f *FrozenBitSelector) { f.logger = l }
}

// FrozenBitSelector ranks positions by Monte-Carlo capacity estimation.
type FrozenBitSelector struct {
	params Params
	tdc    *channel.TDC
	model  *drift.Model
	trials int
	store  RankingStore
	logger *slog.Logger
}

// NewFrozenBitSelector estimates capacities over trials simulated words.
func NewFrozenBitSelector(params Params, tdc *channel.TDC, model *drift.Model, trials int, opts ...SelectorOption) (*FrozenBitSelector, error) {
	if _, err := params.Exponent(); err != nil {
		return nil, err
	}
	if trials < 1 {
		return nil, fmt.Errorf("polar: frozen bit selection needs at least one trial, got %d", trials)
	}
	s := &FrozenBitSelector{params: params, tdc: tdc, model: model, trials: trials, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Key returns the cache key of this selector's rankings.
func (s *FrozenBitSelector) Key() CapacityKey {
	return CapacityKey{
		CodeLength:  s.params.CodeLength,
		Trials:      s.trials,
		Channel:     s.tdc.Params(),
		NumSegments: s.params.NumSegments,
	}
}

// Select runs every trial on the calling goroutine.
func (s *FrozenBitSelector) Select(ctx context.Context, driver *rand.Rand) (Ranking, error) {
	return s.selectWith(ctx, driver, 0)
}

// ParallelSelect fans the trials over workers. For the same driver state the
// ranking equals the one Select returns.
func (s *FrozenBitSelector) ParallelSelect(ctx context.Context, driver *rand.Rand, workers int) (Ranking, error) {
	return s.selectWith(ctx, driver, max(workers, 1))
}

func (s *FrozenBitSelector) selectWith(ctx context.Context, driver *rand.Rand, workers int) (Ranking, error) {
	key := s.Key()
	if s.store != nil {
		r, ok, err := s.store.Load(ctx, key)
		switch {
		case err != nil:
			s.logger.Warn("capacity cache unavailable", slog.String("error", err.Error()))
		case ok && len(r) == s.params.CodeLength:
			s.logger.Info("capacity cache hit", slog.Int("code_length", key.CodeLength), slog.Int("trials", key.Trials))
			return r, nil
		}
	}

	seeds := sim.DrawSeeds(driver, s.trials)
	var res *TrialBatch
	var err error
	if workers == 0 {
		res, err = s.RunSerial(seeds)
	} else {
		res, err = s.RunParallel(ctx, seeds, workers)
	}
	if err != nil {
		return nil, err
	}
	r := RankCapacities(res.Mean())

	if s.store != nil {
		if err := s.store.Save(ctx, key, r); err != nil {
			s.logger.Warn("capacity cache write failed", slog.String("error", err.Error()))
		}
	}
	return r, nil
}

// TrialBatch aggregates the per-position results of a set of trials.
type TrialBatch struct {
	Trials      int
	Sums        []float64 // summed capacity contributions
	ErrorCounts []int     // genie-aided hard decision errors
}

func newTrialBatch(n int) *TrialBatch {
	return &TrialBatch{Sums: make([]float64, n), ErrorCounts: make([]int, n)}
}

// Mean returns the per-position mean capacity.
func (b *TrialBatch) Mean() []float64 {
	m := make([]float64, len(b.Sums))
	if b.Trials == 0 {
		return m
	}
	for i, v := range b.Sums {
		m[i] = v / float64(b.Trials)
	}
	return m
}

// Add merges o into b.
func (b *TrialBatch) Add(o *TrialBatch) {
	b.Trials += o.Trials
	for i := range b.Sums {
		b.Sums[i] += o.Sums[i]
		b.ErrorCounts[i] += o.ErrorCounts[i]
	}
}

// trialWorker holds the state one goroutine reuses across trials.
type trialWorker struct {
	dec   *SCDecoder
	table *PathTable
	z     []uint8
}

func (s *FrozenBitSelector) newWorker() (*trialWorker, error) {
	dec, err := NewSCDecoder(Params{CodeLength: s.params.CodeLength, NumSegments: s.params.NumSegments}, s.tdc.Params(), s.model, AllFree(s.params.CodeLength))
	if err != nil {
		return nil, err
	}
	return &trialWorker{dec: dec, table: NewPathTable(dec.n), z: make([]uint8, s.params.CodeLength)}, nil
}

// trial sends one random uncoded word and records, for every position, the
// capacity contribution and whether a hard decision with all earlier bits
// known would be wrong.
func (s *FrozenBitSelector) trial(w *trialWorker, rng *rand.Rand, caps []float64, wrong []bool) error {
	for i := range w.z {
		w.z[i] = uint8(rng.IntN(2))
	}
	y := s.tdc.Send(rng, Transform(w.z))
	if err := w.dec.Init(y); err != nil {
		return err
	}
	w.table.Reset()
	for i, bit := range w.z {
		ll := w.dec.CalcLikelihood(i, w.table)
		caps[i] = BitCapacity(ll[bit], ll[bit^1])
		if bit == 0 {
			wrong[i] = ll[0] < ll[1]
		} else {
			wrong[i] = ll[1] <= ll[0]
		}
		w.table.Update(i, bit)
	}
	return nil
}

// RunSerial runs one trial per seed in order.
func (s *FrozenBitSelector) RunSerial(seeds []uint64) (*TrialBatch, error) {
	n := s.params.CodeLength
	w, err := s.newWorker()
	if err != nil {
		return nil, err
	}
	batch := newTrialBatch(n)
	caps := make([]float64, n)
	wrong := make([]bool, n)
	for _, seed := range seeds {
		if err := s.trial(w, sim.NewRand(seed), caps, wrong); err != nil {
			return nil, err
		}
		accumulate(batch, caps, wrong)
	}
	return batch, nil
}

// RunParallel runs one trial per seed on workers goroutines. Per-trial
// results are merged in seed order, so the batch is independent of workers.
func (s *FrozenBitSelector) RunParallel(ctx context.Context, seeds []uint64, workers int) (*TrialBatch, error) {
	n := s.params.CodeLength
	pool := make([]*trialWorker, workers)
	for i := range pool {
		w, err := s.newWorker()
		if err != nil {
			return nil, err
		}
		pool[i] = w
	}
	caps := make([][]float64, len(seeds))
	wrong := make([][]bool, len(seeds))
	err := sim.RunParallel(ctx, seeds, workers, func(worker, t int, rng *rand.Rand) error {
		caps[t] = make([]float64, n)
		wrong[t] = make([]bool, n)
		return s.trial(pool[worker], rng, caps[t], wrong[t])
	})
	if err != nil {
		return nil, err
	}
	batch := newTrialBatch(n)
	for t := range seeds {
		accumulate(batch, caps[t], wrong[t])
	}
	return batch, nil
}

func accumulate(b *TrialBatch, caps []float64, wrong []bool) {
	b.Trials++
	for i, c := range caps {
		b.Sums[i] += c
		if wrong[i] {
			b.ErrorCounts[i]++
		}
	}
}

package polar_test

import (
	"context"
	"math/rand/v2"
	"path/filepath"
	"testing"

	"github.com/Observe-l/tdc-polar/channel"
	"github.com/Observe-l/tdc-polar/drift"
	"github.com/Observe-l/tdc-polar/internal/capstore"
	"github.com/Observe-l/tdc-polar/internal/config"
	"github.com/Observe-l/tdc-polar/internal/env"
	"github.com/Observe-l/tdc-polar/internal/sim"
	"github.com/Observe-l/tdc-polar/polar"
)

// clean never drifts and never flips a bit.
var clean = channel.Params{Ps: 0, PassRatio: 1, DriftStddev: 0, MaxDrift: 2}

func selectFrozen(t *testing.T, ch channel.Params, n, free, trials int, store polar.RankingStore) ([]bool, *drift.Model) {
	t.Helper()
	model, err := drift.New(ch.DriftParams(2), drift.GeneratorSource{})
	if err != nil {
		t.Fatalf("drift model: %v", err)
	}
	var opts []polar.SelectorOption
	if store != nil {
		opts = append(opts, polar.WithStore(store))
	}
	sel, err := polar.NewFrozenBitSelector(polar.Params{CodeLength: n, InfoLength: free, NumSegments: 2}, channel.New(ch), model, trials, opts...)
	if err != nil {
		t.Fatalf("selector: %v", err)
	}
	r, err := sel.ParallelSelect(context.Background(), sim.NewDriver(11).Rand(), 4)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	return r.FrozenBits(free), model
}

// TestSCRoundTripClean encodes, sends and decodes words at N=128 with SC.
func TestSCRoundTripClean(t *testing.T) {
	const n, k = 128, 64
	frozen, model := selectFrozen(t, clean, n, k, 10, nil)
	enc, err := polar.NewEncoder(n, frozen)
	if err != nil {
		t.Fatalf("encoder: %v", err)
	}
	dec, err := polar.NewSCDecoder(polar.Params{CodeLength: n, InfoLength: k, NumSegments: 2}, clean, model, frozen)
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}
	tdc := channel.New(clean)
	rng := rand.New(rand.NewPCG(1, 2))
	for trial := 0; trial < 20; trial++ {
		m := make([]uint8, k)
		for i := range m {
			m[i] = uint8(rng.IntN(2))
		}
		x, err := enc.Encode(m)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		mh, err := dec.Decode(tdc.Send(rng, x))
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if d := polar.HammingDistance(m, mh); d != 0 {
			t.Fatalf("trial %d: %d bit errors on a clean channel", trial, d)
		}
	}
}

// TestSCLCRCRoundTripClean does the same with list decoding and a CRC, the
// selection going through a capacity file cache.
func TestSCLCRCRoundTripClean(t *testing.T) {
	const n, k = 128, 40
	poly := []uint8{1, 1, 1, 0, 1, 0, 1, 0, 1}
	crc, err := polar.NewCRC(poly)
	if err != nil {
		t.Fatalf("crc: %v", err)
	}
	store := capstore.FileStore{Dir: t.TempDir()}
	frozen, model := selectFrozen(t, clean, n, k+crc.Len(), 10, store)
	cached, _ := selectFrozen(t, clean, n, k+crc.Len(), 10, store)
	for i := range frozen {
		if frozen[i] != cached[i] {
			t.Fatalf("cached selection differs at %d", i)
		}
	}

	enc, err := polar.NewCRCEncoder(n, k, frozen, crc)
	if err != nil {
		t.Fatalf("encoder: %v", err)
	}
	dec, err := polar.NewSCLDecoder(polar.Params{CodeLength: n, InfoLength: k, NumSegments: 2}, clean, model, frozen, 4, crc)
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}
	tdc := channel.New(clean)
	rng := rand.New(rand.NewPCG(3, 4))
	for trial := 0; trial < 10; trial++ {
		m := make([]uint8, k)
		for i := range m {
			m[i] = uint8(rng.IntN(2))
		}
		x, err := enc.Encode(m)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		mh, err := dec.Decode(tdc.Send(rng, x))
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if d := polar.HammingDistance(m, mh); d != 0 {
			t.Fatalf("trial %d: %d bit errors on a clean channel", trial, d)
		}
	}
}

// TestDriftTableFile checks a written table loads as the generated model.
func TestDriftTableFile(t *testing.T) {
	ch := channel.Params{Ps: 0.01, PassRatio: 0.5, DriftStddev: 0.4, MaxDrift: 2}
	p := ch.DriftParams(2)
	dir := t.TempDir()
	if _, err := drift.SaveTable(dir, p, drift.Generate(p)); err != nil {
		t.Fatalf("save: %v", err)
	}
	fromFile, err := drift.New(p, drift.FileSource{Dir: dir})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	generated, err := drift.New(p, drift.GeneratorSource{})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	m := generated.MaxSegment()
	for next := -m; next <= m; next++ {
		for cur := -m; cur <= m; cur++ {
			a, b := fromFile.Prob(next, cur), generated.Prob(next, cur)
			if diff := a - b; diff > 1e-9 || diff < -1e-9 {
				t.Fatalf("P(%d|%d) = %g from file, %g generated", next, cur, a, b)
			}
		}
	}
}

// TestAnalyzerResumesFromCheckpointFile interrupts an analysis half way and
// compares the resumed ranking to an uninterrupted one.
func TestAnalyzerResumesFromCheckpointFile(t *testing.T) {
	ch := channel.Params{Ps: 0.02, PassRatio: 0.6, DriftStddev: 0.3, MaxDrift: 1}
	model, err := drift.New(ch.DriftParams(2), drift.GeneratorSource{})
	if err != nil {
		t.Fatalf("drift model: %v", err)
	}
	run := func(trials int, path string) polar.Ranking {
		sel, err := polar.NewFrozenBitSelector(polar.Params{CodeLength: 16, InfoLength: 8, NumSegments: 2}, channel.New(ch), model, trials)
		if err != nil {
			t.Fatalf("selector: %v", err)
		}
		var ckpt polar.Checkpointer
		if path != "" {
			f, err := capstore.NewCheckpointFile(path, nil)
			if err != nil {
				t.Fatalf("checkpoint: %v", err)
			}
			defer f.Close()
			ckpt = f
		}
		a, err := polar.NewFrozenBitAnalyzer(sel, 4, ckpt)
		if err != nil {
			t.Fatalf("analyzer: %v", err)
		}
		r, err := a.Analyze(context.Background(), sim.NewDriver(5), 3, nil)
		if err != nil {
			t.Fatalf("analyze: %v", err)
		}
		return r
	}

	full := run(16, "")
	path := filepath.Join(t.TempDir(), "analysis.ckpt")
	run(8, path)
	resumed := run(16, path)
	for i := range full {
		if full[i] != resumed[i] {
			t.Fatalf("rank %d: resumed %+v, uninterrupted %+v", i, resumed[i], full[i])
		}
	}
}

// TestEnvironmentOnBadger runs a whole experiment through the environment
// with the capacity cache in an in-memory badger database.
func TestEnvironmentOnBadger(t *testing.T) {
	db, err := capstore.OpenBadger(capstore.BadgerConfig{InMemory: true})
	if err != nil {
		t.Fatalf("badger: %v", err)
	}
	defer db.Close()

	cfg := config.Default()
	cfg.Code = config.CodeConfig{CodeLength: 32, InfoLength: 12, CRC: "1011"}
	cfg.Channel = config.ChannelConfig{Ps: 0, PassRatio: 1, DriftStddev: 0, MaxDrift: 2}
	cfg.Decoder = config.DecoderConfig{NumSegments: 2, ListSize: 2}
	cfg.Simulation = config.SimulationConfig{Seed: 1, Workers: 3, Epochs: 16, MinErrorWords: 1, MaxSimulations: 48, FrozenTrials: 8}

	ctx := context.Background()
	srv := env.NewServer(env.WithStore(db))
	if err := srv.Configure(ctx, cfg); err != nil {
		t.Fatalf("configure: %v", err)
	}
	if _, err := srv.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
	var last *env.StepResponse
	for last == nil || !last.Done {
		if last, err = srv.Evaluate(ctx); err != nil {
			t.Fatalf("evaluate: %v", err)
		}
	}
	if last.Result.Simulations != 48 || last.Result.WordErrors != 0 {
		t.Fatalf("clean channel run ended with %+v", last.Result)
	}
	if n, err := db.Len(); err != nil || n != 1 {
		t.Fatalf("badger holds %d rankings (err %v), want 1", n, err)
	}
}

package sim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Encoder maps info words onto codewords.
type Encoder interface {
	InfoLength() int
	Encode(m []uint8) ([]uint8, error)
}

// Channel corrupts a codeword.
type Channel interface {
	Send(rng *rand.Rand, x []uint8) []uint8
}

// Decoder recovers an info word.
type Decoder interface {
	Decode(obs []uint8) ([]uint8, error)
}

// Observer receives per-trial and per-epoch results, e.g. for metrics.
type Observer interface {
	ObserveTrial(elapsed time.Duration, bitErrors int)
	ObserveEpoch(r BERResult)
}

// BEROptions bounds a simulation.
type BEROptions struct {
	Workers        int
	Epochs         int // trials per epoch
	MinErrorWords  int
	MaxSimulations int
}

// BERResult is the running outcome.
type BERResult struct {
	Simulations int
	WordErrors  int
	BitErrors   int
	BER         float64
	BLER        float64
	// Progress is the larger of the error word and simulation budgets used, in [0, 1].
	Progress float64
}

// BERSimulator measures bit and word error rates of an encoder, channel and
// decoder triple. Each worker decodes with its own decoder from newDecoder.
type BERSimulator struct {
	opts       BEROptions
	enc        Encoder
	ch         Channel
	newDecoder func() Decoder
	decoders   []Decoder
	observer   Observer
	logger     *slog.Logger

	result BERResult
}

// NewBERSimulator builds a simulator with one decoder per worker.
// observer and logger may be nil.
func NewBERSimulator(opts BEROptions, enc Encoder, ch Channel, newDecoder func() Decoder, observer Observer, logger *slog.Logger) (*BERSimulator, error) {
	if opts.Epochs < 1 {
		return nil, errors.New("sim: epochs must be positive")
	}
	if opts.MaxSimulations < 1 {
		return nil, errors.New("sim: max simulations must be positive")
	}
	opts.Workers = max(opts.Workers, 1)
	if logger == nil {
		logger = slog.Default()
	}
	s := &BERSimulator{opts: opts, enc: enc, ch: ch, newDecoder: newDecoder, observer: observer, logger: logger}
	s.decoders = make([]Decoder, opts.Workers)
	for i := range s.decoders {
		s.decoders[i] = newDecoder()
	}
	return s, nil
}

// Result returns the totals so far.
func (s *BERSimulator) Result() BERResult { return s.result }

// Done reports whether either budget is exhausted.
func (s *BERSimulator) Done() bool {
	return s.result.Simulations >= s.opts.MaxSimulations ||
		(s.opts.MinErrorWords > 0 && s.result.WordErrors >= s.opts.MinErrorWords)
}

// Step runs one epoch. Trials are counted in seed order and counting stops
// as soon as MinErrorWords is reached. It returns true when the run is over.
func (s *BERSimulator) Step(ctx context.Context, driver *rand.Rand) (bool, error) {
	ctx, span := tracer.Start(ctx, "sim.BERSimulator.Step")
	defer span.End()

	n := min(s.opts.Epochs, s.opts.MaxSimulations-s.result.Simulations)
	if n <= 0 {
		return true, nil
	}
	k := s.enc.InfoLength()
	seeds := DrawSeeds(driver, n)
	distances := make([]int, n)
	err := RunParallel(ctx, seeds, s.opts.Workers, func(worker, t int, rng *rand.Rand) error {
		start := time.Now()
		m := make([]uint8, k)
		for i := range m {
			m[i] = uint8(rng.IntN(2))
		}
		x, err := s.enc.Encode(m)
		if err != nil {
			return err
		}
		y := s.ch.Send(rng, x)
		mh, err := s.decoders[worker].Decode(y)
		if err != nil {
			return err
		}
		if len(mh) != k {
			return fmt.Errorf("sim: decoder returned %d bits, want %d", len(mh), k)
		}
		d := 0
		for i := range m {
			if m[i] != mh[i] {
				d++
			}
		}
		distances[t] = d
		if s.observer != nil {
			s.observer.ObserveTrial(time.Since(start), d)
		}
		return nil
	})
	if err != nil {
		return false, err
	}

	done := false
	for _, d := range distances {
		s.result.Simulations++
		if d > 0 {
			s.result.BitErrors += d
			s.result.WordErrors++
		}
		if s.opts.MinErrorWords > 0 && s.result.WordErrors >= s.opts.MinErrorWords {
			done = true
			break
		}
	}
	s.finish(k)
	span.SetAttributes(
		attribute.Int("simulations", s.result.Simulations),
		attribute.Int("word_errors", s.result.WordErrors),
	)
	if s.observer != nil {
		s.observer.ObserveEpoch(s.result)
	}
	return done || s.Done(), nil
}

func (s *BERSimulator) finish(k int) {
	r := &s.result
	if r.Simulations == 0 {
		return
	}
	if k > 0 {
		r.BER = float64(r.BitErrors) / float64(k*r.Simulations)
	}
	r.BLER = float64(r.WordErrors) / float64(r.Simulations)
	progress := float64(r.Simulations) / float64(s.opts.MaxSimulations)
	if s.opts.MinErrorWords > 0 {
		ew := float64(min(r.WordErrors, s.opts.MinErrorWords)) / float64(s.opts.MinErrorWords)
		progress = max(progress, ew)
	}
	r.Progress = min(progress, 1)
}

// Simulate runs epochs until a budget is exhausted. report, if set, is called
// after every epoch.
func (s *BERSimulator) Simulate(ctx context.Context, driver *rand.Rand, report func(BERResult)) (BERResult, error) {
	ctx, span := tracer.Start(ctx, "sim.BERSimulator.Simulate", trace.WithAttributes(
		attribute.Int("max_simulations", s.opts.MaxSimulations),
		attribute.Int("min_error_words", s.opts.MinErrorWords),
	))
	defer span.End()

	for !s.Done() {
		done, err := s.Step(ctx, driver)
		if err != nil {
			span.RecordError(err)
			return s.result, err
		}
		s.logger.Debug("epoch finished",
			slog.Int("simulations", s.result.Simulations),
			slog.Int("word_errors", s.result.WordErrors),
			slog.Float64("bler", s.result.BLER))
		if report != nil {
			report(s.result)
		}
		if done {
			break
		}
	}
	return s.result, nil
}

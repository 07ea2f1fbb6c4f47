// Package env is an evaluation environment around the polar code stack. A
// client configures an experiment, resets it to select frozen bits and build
// the decoder, then evaluates it epoch by epoch.
package env

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/Observe-l/tdc-polar/channel"
	"github.com/Observe-l/tdc-polar/drift"
	"github.com/Observe-l/tdc-polar/internal/config"
	"github.com/Observe-l/tdc-polar/internal/sim"
	"github.com/Observe-l/tdc-polar/polar"
)

var (
	ErrNotConfigured = errors.New("env: no experiment configured")
	ErrNotReset      = errors.New("env: experiment not reset")
)

// Observation describes the code chosen by Reset.
type Observation struct {
	InfoPositions []int
	// MeanCapacity is the mean estimated capacity over all positions.
	MeanCapacity float64
	// InfoCapacity is the summed capacity of the information positions.
	InfoCapacity float64
}

// StepRequest asks for Epochs more epochs. Zero means one.
type StepRequest struct {
	Epochs int
}

// StepResponse carries the totals after a step and whether the run is over.
type StepResponse struct {
	Result sim.BERResult
	Done   bool
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option { return func(s *Server) { s.logger = l } }

// WithStore makes Reset consult and fill s for frozen bit rankings.
func WithStore(st polar.RankingStore) Option { return func(s *Server) { s.store = st } }

// WithObserver forwards trial and epoch results, e.g. to metrics.
func WithObserver(o sim.Observer) Option { return func(s *Server) { s.observer = o } }

// Server holds one experiment. Its methods are safe for concurrent use and
// are serialized.
type Server struct {
	logger   *slog.Logger
	store    polar.RankingStore
	observer sim.Observer

	mu     sync.Mutex
	cfg    *config.Config
	model  *drift.Model
	driver *sim.Driver
	sim    *sim.BERSimulator
}

// NewServer returns an unconfigured server.
func NewServer(opts ...Option) *Server {
	s := &Server{logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Configure validates cfg and loads its drift model. Any previous experiment
// is discarded.
func (s *Server) Configure(ctx context.Context, cfg config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	model, err := drift.New(cfg.DriftParams(), cfg.DriftSource())
	if err != nil {
		return fmt.Errorf("load drift model: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = &cfg
	s.model = model
	s.sim = nil
	s.logger.Info("experiment configured",
		slog.Int("code_length", cfg.Code.CodeLength),
		slog.Int("info_length", cfg.Code.InfoLength),
		slog.Int("list_size", cfg.Decoder.ListSize),
		slog.String("drift", cfg.DriftParams().String()))
	return nil
}

// Reset selects the frozen bits, builds encoder and decoder and restarts the
// error counters from the configured seed.
func (s *Server) Reset(ctx context.Context) (*Observation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg == nil {
		return nil, ErrNotConfigured
	}
	cfg := *s.cfg
	tdc := channel.New(cfg.ChannelParams())
	s.driver = sim.NewDriver(cfg.Simulation.Seed)

	// the selector ranks for the info and check bits together
	selParams := cfg.PolarParams()
	selParams.InfoLength += cfg.CRCLen()
	opts := []polar.SelectorOption{polar.WithLogger(s.logger)}
	if s.store != nil {
		opts = append(opts, polar.WithStore(s.store))
	}
	sel, err := polar.NewFrozenBitSelector(selParams, tdc, s.model, cfg.Simulation.FrozenTrials, opts...)
	if err != nil {
		return nil, err
	}
	ranking, err := sel.ParallelSelect(ctx, s.driver.Rand(), cfg.Simulation.Workers)
	if err != nil {
		return nil, err
	}
	frozen := ranking.FrozenBits(selParams.InfoLength)

	code, err := NewCode(cfg, s.model, frozen)
	if err != nil {
		return nil, err
	}
	bs, err := sim.NewBERSimulator(sim.BEROptions{
		Workers:        cfg.Simulation.Workers,
		Epochs:         cfg.Simulation.Epochs,
		MinErrorWords:  cfg.Simulation.MinErrorWords,
		MaxSimulations: cfg.Simulation.MaxSimulations,
	}, code.Encoder, tdc, code.NewDecoder, s.observer, s.logger)
	if err != nil {
		return nil, err
	}
	s.sim = bs

	obs := &Observation{MeanCapacity: polar.MeanCapacity(ranking)}
	for _, c := range ranking[:selParams.InfoLength] {
		obs.InfoCapacity += c.Value
	}
	for i, f := range frozen {
		if !f {
			obs.InfoPositions = append(obs.InfoPositions, i)
		}
	}
	return obs, nil
}

// Evaluate runs one epoch and returns the running totals.
func (s *Server) Evaluate(ctx context.Context) (*StepResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.step(ctx, 1)
}

func (s *Server) step(ctx context.Context, epochs int) (*StepResponse, error) {
	if s.cfg == nil {
		return nil, ErrNotConfigured
	}
	if s.sim == nil {
		return nil, ErrNotReset
	}
	done := s.sim.Done()
	for e := 0; e < max(epochs, 1) && !done; e++ {
		var err error
		if done, err = s.sim.Step(ctx, s.driver.Rand()); err != nil {
			return nil, err
		}
	}
	return &StepResponse{Result: s.sim.Result(), Done: done}, nil
}

// Rollout answers every request with a step until the run is done or the
// client closes its side.
func (s *Server) Rollout(ctx context.Context, recv func() (*StepRequest, error), send func(*StepResponse) error) error {
	for {
		req, err := recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		s.mu.Lock()
		resp, err := s.step(ctx, req.Epochs)
		s.mu.Unlock()
		if err != nil {
			return err
		}
		if err := send(resp); err != nil {
			return err
		}
		if resp.Done {
			return nil
		}
	}
}

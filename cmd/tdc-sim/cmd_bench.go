package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/Observe-l/tdc-polar/channel"
	"github.com/Observe-l/tdc-polar/internal/env"
	"github.com/Observe-l/tdc-polar/internal/sim"
	"github.com/Observe-l/tdc-polar/polar"
)

func newBenchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "bench",
		Short: "Time one encode, send and decode round",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			model, err := a.model()
			if err != nil {
				return err
			}
			sel, err := a.selector(model, nil)
			if err != nil {
				return err
			}
			driver := sim.NewDriver(a.cfg.Simulation.Seed)

			printParams(out, a.cfg)
			var ranking polar.Ranking
			if err := measure(a.logger, "select frozen bits", func() error {
				ranking, err = sel.ParallelSelect(cmd.Context(), driver.Rand(), a.cfg.Simulation.Workers)
				return err
			}); err != nil {
				return err
			}
			code, err := env.NewCode(a.cfg, model, ranking.FrozenBits(a.cfg.Code.InfoLength+a.cfg.CRCLen()))
			if err != nil {
				return err
			}
			dec := code.NewDecoder()
			tdc := channel.New(a.cfg.ChannelParams())
			rng := sim.NewRand(driver.Rand().Uint64())

			m := make([]uint8, a.cfg.Code.InfoLength)
			for i := range m {
				m[i] = uint8(rng.IntN(2))
			}
			var x, y, mh []uint8
			if err := measure(a.logger, "encode", func() error {
				x, err = code.Encoder.Encode(m)
				return err
			}); err != nil {
				return err
			}
			_ = measure(a.logger, "send to channel", func() error {
				y = tdc.Send(rng, x)
				return nil
			})
			if err := measure(a.logger, "decode", func() error {
				mh, err = dec.Decode(y)
				return err
			}); err != nil {
				return err
			}

			fmt.Fprintf(out, "raw error rate: %g\n", float64(polar.HammingDistance(x, y))/float64(len(x)))
			fmt.Fprintf(out, "error rate: %g\n", float64(polar.HammingDistance(m, mh))/float64(max(len(m), 1)))
			return nil
		},
	}
}

func measure(logger *slog.Logger, stage string, fn func() error) error {
	start := time.Now()
	err := fn()
	logger.Info(stage, slog.Duration("elapsed", time.Since(start)))
	return err
}

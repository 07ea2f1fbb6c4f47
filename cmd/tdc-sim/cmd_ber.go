package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Observe-l/tdc-polar/internal/env"
)

func newBERCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ber",
		Short: "Measure bit and word error rates",
		Long: `ber selects frozen bits, then runs epochs of encode, send and decode
trials until the word error or simulation budget is used up. SC decoding is
used when there is neither a CRC nor a list size above one.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			store, closeStore, err := a.openStore()
			if err != nil {
				return err
			}
			defer closeStore()

			opts := []env.Option{env.WithLogger(a.logger)}
			if store != nil {
				opts = append(opts, env.WithStore(store))
			}
			srv := env.NewServer(opts...)
			if err := srv.Configure(ctx, a.cfg); err != nil {
				return err
			}
			printParams(out, a.cfg)
			obs, err := srv.Reset(ctx)
			if err != nil {
				return err
			}
			a.logger.Info("frozen bits selected",
				slog.Int("info_positions", len(obs.InfoPositions)),
				slog.Float64("info_capacity", obs.InfoCapacity))

			fmt.Fprintln(out, "simulations, wec, bec, bler, ber, progress")
			for {
				step, err := srv.Evaluate(ctx)
				if err != nil {
					return err
				}
				r := step.Result
				fmt.Fprintf(out, "%d, %d, %d, %e, %e, %.1f%%\n",
					r.Simulations, r.WordErrors, r.BitErrors, r.BLER, r.BER, 100*r.Progress)
				if step.Done {
					return nil
				}
			}
		},
	}
}

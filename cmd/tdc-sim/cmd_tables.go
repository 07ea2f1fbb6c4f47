package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Observe-l/tdc-polar/drift"
	"github.com/Observe-l/tdc-polar/internal/sim"
	"github.com/Observe-l/tdc-polar/polar"
)

func newDprobgenCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "dprobgen [dir]",
		Short: "Write the drift transition table of the configured channel",
		Long: `dprobgen computes the segment drift transition probabilities and writes
them to dir, or to the configured drift table directory, or to the current
directory.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := a.cfg.Storage.DriftTables
			if len(args) == 1 {
				dir = args[0]
			}
			if dir == "" {
				dir = "."
			}
			p := a.cfg.DriftParams()
			path, err := drift.SaveTable(dir, p, drift.Generate(p))
			if err != nil {
				return fmt.Errorf("write drift table: %w", err)
			}
			a.logger.Info("drift table written", slog.String("path", path), slog.String("params", p.String()))
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
}

func newCapacityCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "capacity",
		Short: "Estimate the achievable rate of the channel",
		Long: `capacity averages the genie-aided capacity of all positions of an uncoded
word, an estimate of the information rate per channel use.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, closeStore, err := a.openStore()
			if err != nil {
				return err
			}
			defer closeStore()
			model, err := a.model()
			if err != nil {
				return err
			}
			sel, err := a.selector(model, store)
			if err != nil {
				return err
			}
			ranking, err := sel.ParallelSelect(cmd.Context(), sim.NewDriver(a.cfg.Simulation.Seed).Rand(), a.cfg.Simulation.Workers)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%g\n", polar.MeanCapacity(ranking))
			return nil
		},
	}
}

package main

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/Observe-l/tdc-polar/internal/capstore"
	"github.com/Observe-l/tdc-polar/internal/metrics"
	"github.com/Observe-l/tdc-polar/internal/sim"
	"github.com/Observe-l/tdc-polar/polar"
)

func newFrozenCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "frozen",
		Short: "Rank bit positions by estimated capacity",
		Long: `frozen estimates the capacity of every position and prints the ranking
as "index capacity" records, best first. Configured capacity stores are
consulted before and filled after the estimation.`,
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
			driver := sim.NewDriver(a.cfg.Simulation.Seed)
			ranking, err := sel.ParallelSelect(cmd.Context(), driver.Rand(), a.cfg.Simulation.Workers)
			if err != nil {
				return err
			}
			return capstore.WriteRecords(cmd.OutOrStdout(), ranking)
		},
	}
}

func newAnalyzeCmd(a *app) *cobra.Command {
	var serveMetrics bool
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Track how the frozen set converges",
		Long: `analyze runs frozen bit selection in epochs and reports, after each,
the number of positions whose frozen status changed and the genie-aided
error rates of the information bits. With a checkpoint file an interrupted
run resumes where it stopped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
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

			var ckpt polar.Checkpointer
			runID := uuid.New()
			if path := a.cfg.Storage.Checkpoint; path != "" {
				f, err := capstore.NewCheckpointFile(path, a.logger)
				if err != nil {
					return err
				}
				defer f.Close()
				// adopt the stored run id before labelling metrics
				if _, _, err := f.Load(ctx); err != nil {
					return err
				}
				ckpt = f
				runID = f.RunID()
			}
			an, err := polar.NewFrozenBitAnalyzer(sel, a.cfg.Simulation.AnalysisEpoch, ckpt)
			if err != nil {
				return err
			}

			var col *metrics.Collectors
			if serveMetrics {
				reg := prometheus.NewRegistry()
				col = metrics.New(reg, runID.String())
				srv, _, err := metrics.Serve(a.cfg.Server.MetricsAddr, reg, a.logger)
				if err != nil {
					return err
				}
				defer srv.Close()
			}

			printParams(out, a.cfg)
			fmt.Fprintln(out, "simulations, hamming distance, bec, bler, ber")
			width := len(fmt.Sprint(a.cfg.Simulation.FrozenTrials))
			ranking, err := an.Analyze(ctx, sim.NewDriver(a.cfg.Simulation.Seed), a.cfg.Simulation.Workers, func(rep polar.EpochReport) {
				fmt.Fprintf(out, "%*d, %d, %d, %e, %e\n", width, rep.Simulations, rep.Hamming, rep.ErrorBits, rep.BLER, rep.BER)
				if col != nil {
					col.ObserveAnalysis(rep)
				}
			})
			if err != nil {
				return err
			}
			a.logger.Info("analysis finished", slog.Float64("mean_capacity", polar.MeanCapacity(ranking)))
			return nil
		},
	}
	cmd.Flags().BoolVar(&serveMetrics, "serve-metrics", false, "expose progress on the configured metrics address")
	return cmd
}

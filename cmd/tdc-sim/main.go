// Command tdc-sim runs polar code experiments over the timing-drift channel.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Observe-l/tdc-polar/internal/capstore"
	"github.com/Observe-l/tdc-polar/internal/config"
	"github.com/Observe-l/tdc-polar/polar"
)

// flagValues holds flag values; only flags the user set override the config.
type flagValues struct {
	configPath string
	logLevel   string

	codeLength  int
	infoLength  int
	crc         string
	ps          float64
	passRatio   float64
	driftStddev float64
	maxDrift    int
	offsetRate  float64
	numSegments int
	listSize    int

	seed           uint64
	workers        int
	epochs         int
	minErrorWords  int
	maxSimulations int
	frozenTrials   int
	analysisEpoch  int

	driftTables string
	capacities  string
	badger      string
	checkpoint  string
}

// app is the state shared by all subcommands once flags are parsed.
type app struct {
	flags  flagValues
	cfg    config.Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "tdc-sim",
		Short: "Polar code simulations over the timing-drift channel",
		Long: `tdc-sim selects frozen bits and measures error rates of polar codes
with SC and SCL-CRC decoding over a channel with timing drift.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}

	f := &a.flags
	pf := root.PersistentFlags()
	pf.StringVarP(&f.configPath, "config", "c", "", "YAML config file")
	pf.StringVar(&f.logLevel, "log-level", "info", "log level: debug|info|warn|error")

	pf.IntVarP(&f.codeLength, "code-length", "n", 0, "code length, a power of two")
	pf.IntVarP(&f.infoLength, "info-length", "k", 0, "information bits per word")
	pf.StringVar(&f.crc, "crc", "", "CRC generator polynomial bits, MSB first (\"std\" for "+config.StandardCRC+")")
	pf.Float64Var(&f.ps, "ps", 0, "substitution probability")
	pf.Float64Var(&f.passRatio, "pass-ratio", 0, "pass ratio of the sampling window")
	pf.Float64Var(&f.driftStddev, "drift-stddev", 0, "drift step standard deviation")
	pf.IntVar(&f.maxDrift, "max-drift", 0, "largest absolute drift")
	pf.Float64Var(&f.offsetRate, "offset-rate", 0, "mean drift step")
	pf.IntVar(&f.numSegments, "num-segments", 0, "segments per symbol")
	pf.IntVarP(&f.listSize, "list-size", "L", 0, "SCL list size, 1 decodes with SC")

	pf.Uint64Var(&f.seed, "seed", 0, "driver RNG seed")
	pf.IntVarP(&f.workers, "workers", "t", 0, "worker goroutines")
	pf.IntVarP(&f.epochs, "epochs", "e", 0, "trials per epoch")
	pf.IntVar(&f.minErrorWords, "min-error-words", 0, "stop after this many word errors")
	pf.IntVar(&f.maxSimulations, "max-simulations", 0, "stop after this many trials")
	pf.IntVar(&f.frozenTrials, "frozen-trials", 0, "trials of frozen bit selection")
	pf.IntVar(&f.analysisEpoch, "analysis-epoch", 0, "trials per epoch of frozen bit analysis")

	pf.StringVar(&f.driftTables, "drift-tables", "", "directory of drift tables (empty generates them)")
	pf.StringVar(&f.capacities, "capacities", "", "directory of capacity records")
	pf.StringVar(&f.badger, "badger", "", "capacity database directory")
	pf.StringVar(&f.checkpoint, "checkpoint", "", "analysis checkpoint file")

	root.AddCommand(
		newBERCmd(a),
		newFrozenCmd(a),
		newAnalyzeCmd(a),
		newDprobgenCmd(a),
		newCapacityCmd(a),
		newBenchCmd(a),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(a.flags.logLevel)); err != nil {
		return fmt.Errorf("bad --log-level: %w", err)
	}
	a.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	slog.SetDefault(a.logger)

	cfg := config.Default()
	if a.flags.configPath != "" {
		var err error
		if cfg, err = config.Load(a.flags.configPath); err != nil {
			return err
		}
	}
	a.applyFlags(cmd, &cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg
	return nil
}

func (a *app) applyFlags(cmd *cobra.Command, cfg *config.Config) {
	f := &a.flags
	set := func(name string, apply func()) {
		if cmd.Flags().Changed(name) {
			apply()
		}
	}
	set("code-length", func() { cfg.Code.CodeLength = f.codeLength })
	set("info-length", func() { cfg.Code.InfoLength = f.infoLength })
	set("crc", func() {
		cfg.Code.CRC = f.crc
		if f.crc == "std" {
			cfg.Code.CRC = config.StandardCRC
		}
	})
	set("ps", func() { cfg.Channel.Ps = f.ps })
	set("pass-ratio", func() { cfg.Channel.PassRatio = f.passRatio })
	set("drift-stddev", func() { cfg.Channel.DriftStddev = f.driftStddev })
	set("max-drift", func() { cfg.Channel.MaxDrift = f.maxDrift })
	set("offset-rate", func() { cfg.Channel.OffsetRate = f.offsetRate })
	set("num-segments", func() { cfg.Decoder.NumSegments = f.numSegments })
	set("list-size", func() { cfg.Decoder.ListSize = f.listSize })
	set("seed", func() { cfg.Simulation.Seed = f.seed })
	set("workers", func() { cfg.Simulation.Workers = f.workers })
	set("epochs", func() { cfg.Simulation.Epochs = f.epochs })
	set("min-error-words", func() { cfg.Simulation.MinErrorWords = f.minErrorWords })
	set("max-simulations", func() { cfg.Simulation.MaxSimulations = f.maxSimulations })
	set("frozen-trials", func() { cfg.Simulation.FrozenTrials = f.frozenTrials })
	set("analysis-epoch", func() { cfg.Simulation.AnalysisEpoch = f.analysisEpoch })
	set("drift-tables", func() { cfg.Storage.DriftTables = f.driftTables })
	set("capacities", func() { cfg.Storage.Capacities = f.capacities })
	set("badger", func() { cfg.Storage.Badger = f.badger })
	set("checkpoint", func() { cfg.Storage.Checkpoint = f.checkpoint })
}

// openStore returns the configured capacity stores, or nil when none is.
// The returned close func is never nil.
func (a *app) openStore() (polar.RankingStore, func(), error) {
	var chain capstore.Chain
	closeFn := func() {}
	if dir := a.cfg.Storage.Capacities; dir != "" {
		chain = append(chain, capstore.FileStore{Dir: dir})
	}
	if dir := a.cfg.Storage.Badger; dir != "" {
		db, err := capstore.OpenBadger(capstore.BadgerConfig{Path: dir, Logger: a.logger})
		if err != nil {
			return nil, closeFn, err
		}
		chain = append(chain, db)
		closeFn = func() {
			if err := db.Close(); err != nil {
				a.logger.Warn("close capacity database", slog.String("error", err.Error()))
			}
		}
	}
	if len(chain) == 0 {
		return nil, closeFn, nil
	}
	return chain, closeFn, nil
}

func printParams(w io.Writer, cfg config.Config) {
	fmt.Fprintf(w, "code parameters:\n")
	fmt.Fprintf(w, "    code length: %d\n", cfg.Code.CodeLength)
	fmt.Fprintf(w, "    info length: %d\n", cfg.Code.InfoLength)
	if cfg.Code.CRC != "" {
		fmt.Fprintf(w, "    crc: %s\n", cfg.Code.CRC)
	}
	fmt.Fprintf(w, "channel parameters:\n")
	fmt.Fprintf(w, "    ps: %g\n", cfg.Channel.Ps)
	fmt.Fprintf(w, "    pass ratio: %g\n", cfg.Channel.PassRatio)
	fmt.Fprintf(w, "    drift stddev: %g\n", cfg.Channel.DriftStddev)
	fmt.Fprintf(w, "    max drift: %d\n", cfg.Channel.MaxDrift)
	fmt.Fprintf(w, "    offset rate: %g\n", cfg.Channel.OffsetRate)
	fmt.Fprintf(w, "decoder parameters:\n")
	fmt.Fprintf(w, "    num segments: %d\n", cfg.Decoder.NumSegments)
	fmt.Fprintf(w, "    list size: %d\n", cfg.Decoder.ListSize)
	fmt.Fprintf(w, "simulation parameters:\n")
	fmt.Fprintf(w, "    seed: %d\n", cfg.Simulation.Seed)
	fmt.Fprintf(w, "    workers: %d\n", cfg.Simulation.Workers)
	fmt.Fprintf(w, "    epochs: %d\n", cfg.Simulation.Epochs)
	fmt.Fprintf(w, "    min error words: %d\n", cfg.Simulation.MinErrorWords)
	fmt.Fprintf(w, "    max simulations: %d\n", cfg.Simulation.MaxSimulations)
	fmt.Fprintf(w, "    num simulations (frozen bit): %d\n\n", cfg.Simulation.FrozenTrials)
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

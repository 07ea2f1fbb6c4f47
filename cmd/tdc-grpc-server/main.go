// Command tdc-grpc-server exports the evaluation environment over gRPC and
// its progress as prometheus metrics.
package main

import (
	"flag"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"google.golang.org/grpc"

	"github.com/Observe-l/tdc-polar/internal/capstore"
	"github.com/Observe-l/tdc-polar/internal/config"
	"github.com/Observe-l/tdc-polar/internal/env"
	"github.com/Observe-l/tdc-polar/internal/metrics"
	"github.com/Observe-l/tdc-polar/polar"
)

func main() {
	var (
		cfgPath     = flag.String("config", "", "YAML config file for addresses and storage")
		addr        = flag.String("addr", "", "gRPC listen address (overrides the config)")
		metricsAddr = flag.String("metrics-addr", "", "metrics listen address (overrides the config, \"off\" disables)")
		debug       = flag.Bool("debug", false, "debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg := config.Default()
	if *cfgPath != "" {
		var err error
		if cfg, err = config.Load(*cfgPath); err != nil {
			logger.Error("load config", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *metricsAddr != "" {
		cfg.Server.MetricsAddr = *metricsAddr
	}

	var store capstore.Chain
	if dir := cfg.Storage.Capacities; dir != "" {
		store = append(store, capstore.FileStore{Dir: dir})
	}
	var db *capstore.BadgerStore
	if dir := cfg.Storage.Badger; dir != "" {
		var err error
		if db, err = capstore.OpenBadger(capstore.BadgerConfig{Path: dir, Logger: logger}); err != nil {
			logger.Error("open capacity database", slog.String("error", err.Error()))
			os.Exit(1)
		}
		store = append(store, db)
	}
	cleanup := func() {
		if db != nil {
			_ = db.Close()
		}
	}

	opts := []env.Option{env.WithLogger(logger)}
	if len(store) > 0 {
		opts = append(opts, env.WithStore(polar.RankingStore(store)))
	}
	if cfg.Server.MetricsAddr != "off" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		opts = append(opts, env.WithObserver(metrics.New(reg, uuid.NewString())))
		srv, _, err := metrics.Serve(cfg.Server.MetricsAddr, reg, logger)
		if err != nil {
			logger.Error("metrics listen", slog.String("error", err.Error()))
			cleanup()
			os.Exit(1)
		}
		defer srv.Close()
	}

	ln, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		logger.Error("listen", slog.String("error", err.Error()))
		cleanup()
		os.Exit(1)
	}
	grpcSrv := grpc.NewServer()
	env.Register(grpcSrv, env.NewServer(opts...))

	// Trap signals to ensure cleanup
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	go func() { <-c; grpcSrv.GracefulStop() }()

	logger.Info("tdc-polar gRPC environment listening", slog.String("addr", ln.Addr().String()))
	if err := grpcSrv.Serve(ln); err != nil {
		logger.Error("grpc serve", slog.String("error", err.Error()))
	}
	cleanup()
}

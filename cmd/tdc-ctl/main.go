// Command tdc-ctl drives a tdc-grpc-server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/Observe-l/tdc-polar/internal/config"
	"github.com/Observe-l/tdc-polar/internal/env"
)

func main() {
	var (
		addr    = flag.String("addr", "127.0.0.1:50051", "Env gRPC address")
		cmd     = flag.String("cmd", "configure", "command: configure|reset|evaluate|rollout")
		cfgPath = flag.String("config", "", "experiment YAML for configure (defaults otherwise)")
		n       = flag.Int("n", 0, "code length override")
		k       = flag.Int("k", 0, "info length override")
		ps      = flag.Float64("ps", -1, "substitution probability override")
		list    = flag.Int("list", 0, "list size override")
		epochs  = flag.Int("epochs", 1, "epochs per rollout step")
		steps   = flag.Int("steps", 1000, "max rollout steps")
		timeout = flag.Duration("timeout", 10*time.Minute, "call timeout")
	)
	flag.Parse()

	conn, err := grpc.Dial(*addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		fail(err)
	}
	defer conn.Close()
	client := env.NewClient(conn)
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	switch *cmd {
	case "configure":
		cfg := config.Default()
		if *cfgPath != "" {
			if cfg, err = config.Load(*cfgPath); err != nil {
				fail(err)
			}
		}
		if *n > 0 {
			cfg.Code.CodeLength = *n
		}
		if *k > 0 {
			cfg.Code.InfoLength = *k
		}
		if *ps >= 0 {
			cfg.Channel.Ps = *ps
		}
		if *list > 0 {
			cfg.Decoder.ListSize = *list
		}
		if err := client.Configure(ctx, cfg); err != nil {
			fail(err)
		}
		fmt.Println("configured")
	case "reset":
		obs, err := client.Reset(ctx)
		if err != nil {
			fail(err)
		}
		fmt.Printf("reset ok: %d information positions, mean capacity %g\n", len(obs.InfoPositions), obs.MeanCapacity)
		fmt.Println(obs.InfoPositions)
	case "evaluate":
		resp, err := client.Evaluate(ctx)
		if err != nil {
			fail(err)
		}
		printStep(resp)
	case "rollout":
		fmt.Println("simulations, wec, bec, bler, ber, progress")
		if err := client.Rollout(ctx, *epochs, *steps, printStep); err != nil {
			fail(err)
		}
	default:
		fail(fmt.Errorf("unknown cmd %q", *cmd))
	}
}

func printStep(r *env.StepResponse) {
	fmt.Printf("%d, %d, %d, %e, %e, %.1f%%\n",
		r.Result.Simulations, r.Result.WordErrors, r.Result.BitErrors, r.Result.BLER, r.Result.BER, 100*r.Result.Progress)
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "tdc-ctl:", err)
	os.Exit(1)
}

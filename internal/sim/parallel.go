package sim

import (
	"context"
	"math/rand/v2"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("tdcpolar.sim")

// TrialFunc runs trial t on the given worker. rng is seeded for t alone.
type TrialFunc func(worker, t int, rng *rand.Rand) error

// RunParallel runs one trial per seed on a fixed pool of workers and waits
// for all of them. Cancelling ctx does not abort a batch; the first trial
// error stops the remaining trials and is returned.
func RunParallel(ctx context.Context, seeds []uint64, workers int, fn TrialFunc) error {
	_, span := tracer.Start(ctx, "sim.RunParallel", trace.WithAttributes(
		attribute.Int("trials", len(seeds)),
		attribute.Int("workers", workers),
	))
	defer span.End()

	if len(seeds) == 0 {
		return nil
	}
	workers = max(1, min(workers, len(seeds)))

	g, gctx := errgroup.WithContext(context.WithoutCancel(ctx))
	jobs := make(chan int)
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for t := range jobs {
				if err := fn(w, t, NewRand(seeds[t])); err != nil {
					return err
				}
			}
			return nil
		})
	}
feed:
	for t := range seeds {
		select {
		case jobs <- t:
		case <-gctx.Done():
			break feed
		}
	}
	close(jobs)

	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

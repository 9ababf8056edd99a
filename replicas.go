package mecgame

import (
	"context"
	"fmt"

	"github.com/iti/rngstream"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"
)

// ReplicaSeeds returns n seeds for independent runs of pd.  With a non-zero
// pd.Seed the seeds are pd.Seed, pd.Seed+1, ...; otherwise they are drawn
// in order from a random stream named after the experiment.
func ReplicaSeeds(pd *ParamDesc, n int) []uint64 {
	seeds := make([]uint64, n)
	if pd.Seed != 0 {
		for idx := range seeds {
			seeds[idx] = pd.Seed + uint64(idx)
		}
		return seeds
	}
	rng := rngstream.New(pd.Name + "-replicas")
	for idx := range seeds {
		seeds[idx] = drawSeed(rng)
	}
	return seeds
}

// RunReplicas runs n independent simulations of pd, at most workers at a
// time (workers < 1 means no limit), and returns the result of each in seed
// order.  Every run owns its parameters, probabilities, prices and history.
// A run that fails stops runs not yet started, and the first error is returned
// along with the results of the runs that did complete.  Cancelling ctx also
// stops runs not yet started; a started run is never interrupted.
func RunReplicas(ctx context.Context, pd *ParamDesc, n, workers int) ([]*Result, error) {
	if err := pd.Validate(); err != nil {
		return nil, err
	}

	// seeds are drawn before any goroutine starts, random streams are not shared
	seeds := ReplicaSeeds(pd, n)
	results := make([]*Result, n)

	g, gctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for idx := range seeds {
		idx := idx
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rpd := pd.Clone()
			rpd.Seed = seeds[idx]
			rpd.Trace = false
			rpd.Name = fmt.Sprintf("%s-rep-%d", pd.Name, idx+1)

			res, err := RunSimulation(rpd)
			results[idx] = res
			if err != nil {
				return fmt.Errorf("replica %d (seed %d): %w", idx+1, seeds[idx], err)
			}
			klog.V(1).InfoS("replica finished", "replica", idx+1, "seed", seeds[idx], "rounds", res.Rounds)
			return nil
		})
	}
	err := g.Wait()
	return results, err
}

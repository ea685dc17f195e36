// Package zonal computes mean and sum statistics of a raster inside region
// sets, optionally grouped by a categorical attribute.
package zonal

import (
	"context"
	"fmt"
	"log"
	"sync"

	"habitat-value/internal/raster"
	"habitat-value/internal/reduce"
	"habitat-value/internal/region"

	"golang.org/x/sync/errgroup"
)

// Ungrouped statistic keys.
const (
	KeyMean = "mean"
	KeySum  = "sum"
)

// Stats maps statistic names to values. Mean is NaN and sum is 0 for groups
// without samples.
type Stats map[string]float64

// MeanKey returns the key of the mean of a group.
func MeanKey(group string) string {
	return KeyMean + "_" + group
}

// SumKey returns the key of the sum of a group.
func SumKey(group string) string {
	return KeySum + "_" + group
}

// Aggregator runs zonal reductions.
type Aggregator struct {
	opts    reduce.Options
	workers int
}

// NewAggregator creates an aggregator that reduces each group with opts and
// runs at most workers groups at once. workers < 1 means one per group.
func NewAggregator(opts reduce.Options, workers int) *Aggregator {
	return &Aggregator{opts: opts, workers: workers}
}

// Stats reduces surface over set. With an empty groupAttribute the result
// holds the mean and sum over the union of the set. Otherwise each distinct
// value v of the attribute yields mean_v and sum_v over the union of the
// regions carrying it.
func (a *Aggregator) Stats(ctx context.Context, surface *raster.Raster, set region.Set, groupAttribute string) (Stats, error) {
	if groupAttribute == "" {
		s, err := a.reduceSet(ctx, surface, set, "")
		if err != nil {
			return nil, err
		}
		return Stats{KeyMean: s.Mean, KeySum: s.Sum}, nil
	}

	groups := set.Distinct(groupAttribute)
	out := make(Stats, 2*len(groups))
	var mu sync.Mutex

	eg, ctx := errgroup.WithContext(ctx)
	if a.workers > 0 {
		eg.SetLimit(a.workers)
	}
	for _, g := range groups {
		g := g
		eg.Go(func() error {
			s, err := a.reduceSet(ctx, surface, set.FilterEqual(groupAttribute, g), g)
			if err != nil {
				return fmt.Errorf("group %s=%s: %w", groupAttribute, g, err)
			}
			mu.Lock()
			out[MeanKey(g)] = s.Mean
			out[SumKey(g)] = s.Sum
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// reduceSet reduces surface over the union of set.
func (a *Aggregator) reduceSet(ctx context.Context, surface *raster.Raster, set region.Set, label string) (reduce.Summary, error) {
	union := set.Union()
	if len(union) == 0 {
		log.Printf("Zonal: no polygons for %q, reporting empty statistics", label)
		return reduce.Region(ctx, surface, nil, a.opts)
	}

	s, err := reduce.Region(ctx, surface, union, a.opts)
	if err != nil {
		return reduce.Summary{}, err
	}
	if s.Empty() {
		log.Printf("Zonal: no samples inside %q (%d regions)", label, set.Len())
	}
	return s, nil
}

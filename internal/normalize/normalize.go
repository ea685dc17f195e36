// Package normalize rescales rasters to [0, 1] using region-wide min/max.
package normalize

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"habitat-value/internal/raster"
	"habitat-value/internal/reduce"
	"habitat-value/internal/region"
)

// ErrDegenerateRange is matched by DegenerateRangeError.
var ErrDegenerateRange = errors.New("degenerate value range")

// DegenerateRangeError reports a raster that is constant, or has no samples,
// within the extent, so (x - min) / (max - min) is undefined.
type DegenerateRangeError struct {
	Band     string
	Min, Max float64
}

func (e *DegenerateRangeError) Error() string {
	return fmt.Sprintf("cannot normalize band %s: min %v, max %v", e.Band, e.Min, e.Max)
}

// Is makes errors.Is(err, ErrDegenerateRange) succeed.
func (e *DegenerateRangeError) Is(target error) bool {
	return target == ErrDegenerateRange
}

type cacheKey struct {
	raster *raster.Raster
	extent *region.Region
}

// Normalizer rescales rasters and caches the min/max reduction per
// (raster, extent) pair. Rasters are immutable, so the pair identifies the
// result. It is safe for concurrent use.
type Normalizer struct {
	opts reduce.Options

	mu         sync.Mutex
	cache      map[cacheKey]reduce.Summary
	reductions int
}

// New creates a Normalizer that reduces with opts.
func New(opts reduce.Options) *Normalizer {
	return &Normalizer{
		opts:  opts,
		cache: make(map[cacheKey]reduce.Summary),
	}
}

// Range returns the minimum and maximum of r within extent.
func (n *Normalizer) Range(ctx context.Context, r *raster.Raster, extent *region.Region) (float64, float64, error) {
	key := cacheKey{raster: r, extent: extent}

	n.mu.Lock()
	s, ok := n.cache[key]
	n.mu.Unlock()
	if ok {
		return s.Min, s.Max, nil
	}

	s, err := reduce.Region(ctx, r, extent.Geometry, n.opts)
	if err != nil {
		return 0, 0, fmt.Errorf("min/max of %s: %w", r.Band(), err)
	}

	n.mu.Lock()
	n.cache[key] = s
	n.reductions++
	n.mu.Unlock()

	return s.Min, s.Max, nil
}

// Normalize returns r rescaled so that its samples within extent span [0, 1].
func (n *Normalizer) Normalize(ctx context.Context, r *raster.Raster, extent *region.Region) (*raster.Raster, error) {
	lo, hi, err := n.Range(ctx, r, extent)
	if err != nil {
		return nil, err
	}
	// NaN bounds mean the extent held no samples.
	if !(hi > lo) {
		return nil, &DegenerateRangeError{Band: r.Band(), Min: lo, Max: hi}
	}

	log.Printf("Normalize: %s range [%g, %g]", r.Band(), lo, hi)
	span := hi - lo
	return r.Map(func(v float64) float64 {
		return (v - lo) / span
	}), nil
}

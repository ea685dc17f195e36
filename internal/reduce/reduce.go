// Package reduce computes region-bounded statistics of a raster.
//
// A single pass over the pixels inside a geometry yields the combined
// count, sum, mean, minimum and maximum, so callers that need several
// statistics share one scan. Pixels are included when their center lies
// inside the geometry; masked (NaN) samples are skipped.
package reduce

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"

	"habitat-value/internal/raster"
	"habitat-value/pkg/geometry"

	"github.com/paulmach/orb"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
)

// ErrTooManyPixels is returned when a reduction would scan more pixels than
// Options.MaxPixels allows.
var ErrTooManyPixels = errors.New("too many pixels in region")

// Options controls the sampling of a reduction.
type Options struct {
	// Scale is the sampling resolution in world units. When coarser than the
	// raster's pixel size, every n-th pixel is sampled with n = Scale/pixel.
	Scale float64
	// MaxPixels caps the number of sampled pixels. Zero means no cap.
	MaxPixels int64
	// TileScale is the number of row tiles reduced in parallel.
	TileScale int
}

// DefaultOptions returns the options used for zonal statistics.
func DefaultOptions() Options {
	return Options{
		Scale:     30,
		MaxPixels: 1e13,
		TileScale: 6,
	}
}

// WithTileScale returns a copy of the options with a different tile count.
func (o Options) WithTileScale(tiles int) Options {
	o.TileScale = tiles
	return o
}

// Summary holds the combined statistics of one reduction.
// With no samples, Count and Sum are zero and the rest are NaN.
type Summary struct {
	Count int
	Sum   float64
	Mean  float64
	Min   float64
	Max   float64
}

// Empty reports whether no samples were reduced.
func (s Summary) Empty() bool {
	return s.Count == 0
}

func emptySummary() Summary {
	return Summary{Mean: math.NaN(), Min: math.NaN(), Max: math.NaN()}
}

// Region reduces the samples of r whose pixel centers fall inside g.
func Region(ctx context.Context, r *raster.Raster, g orb.Geometry, opts Options) (Summary, error) {
	if g == nil {
		return emptySummary(), nil
	}

	rows, cols := r.Dims()
	gt := r.Transform()
	window := gt.Window(g.Bound(), cols, rows)
	if window.Empty() {
		return emptySummary(), nil
	}

	// Sample on the global grid so neighbouring regions see the same pixels.
	step := stride(gt, opts.Scale)
	window.Min = image.Pt(alignUp(window.Min.X, step), alignUp(window.Min.Y, step))
	if window.Empty() {
		return emptySummary(), nil
	}
	sampled := int64(ceilDiv(window.Dx(), step)) * int64(ceilDiv(window.Dy(), step))
	if opts.MaxPixels > 0 && sampled > opts.MaxPixels {
		return Summary{}, fmt.Errorf("%d pixels exceeds max of %d: %w", sampled, opts.MaxPixels, ErrTooManyPixels)
	}

	tiles := splitRows(window, step, opts.TileScale)
	partials := make([]Summary, len(tiles))

	eg, ctx := errgroup.WithContext(ctx)
	for i, tile := range tiles {
		i, tile := i, tile
		eg.Go(func() error {
			s, err := reduceTile(ctx, r, g, tile, step)
			if err != nil {
				return err
			}
			partials[i] = s
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return Summary{}, err
	}

	// Fold in tile order so repeated reductions are bit-identical.
	total := emptySummary()
	for _, p := range partials {
		total = combine(total, p)
	}
	return total, nil
}

// reduceTile scans one row band of the window.
func reduceTile(ctx context.Context, r *raster.Raster, g orb.Geometry, tile image.Rectangle, step int) (Summary, error) {
	gt := r.Transform()
	values := make([]float64, 0, ceilDiv(tile.Dx(), step)*ceilDiv(tile.Dy(), step))

	for row := tile.Min.Y; row < tile.Max.Y; row += step {
		if err := ctx.Err(); err != nil {
			return Summary{}, err
		}
		for col := tile.Min.X; col < tile.Max.X; col += step {
			v := r.At(row, col)
			if math.IsNaN(v) {
				continue
			}
			if !geometry.Contains(g, gt.PixelCenter(col, row)) {
				continue
			}
			values = append(values, v)
		}
	}

	if len(values) == 0 {
		return emptySummary(), nil
	}
	sum := floats.Sum(values)
	return Summary{
		Count: len(values),
		Sum:   sum,
		Mean:  sum / float64(len(values)),
		Min:   floats.Min(values),
		Max:   floats.Max(values),
	}, nil
}

// combine merges two partial summaries.
func combine(a, b Summary) Summary {
	if a.Empty() {
		return b
	}
	if b.Empty() {
		return a
	}
	out := Summary{
		Count: a.Count + b.Count,
		Sum:   a.Sum + b.Sum,
		Min:   math.Min(a.Min, b.Min),
		Max:   math.Max(a.Max, b.Max),
	}
	out.Mean = out.Sum / float64(out.Count)
	return out
}

// splitRows divides the window into at most n row bands aligned to step.
func splitRows(window image.Rectangle, step, n int) []image.Rectangle {
	sampledRows := ceilDiv(window.Dy(), step)
	if n < 1 {
		n = 1
	}
	if n > sampledRows {
		n = sampledRows
	}

	per := ceilDiv(sampledRows, n)
	var tiles []image.Rectangle
	for start := 0; start < sampledRows; start += per {
		end := min(start+per, sampledRows)
		tiles = append(tiles, image.Rect(
			window.Min.X, window.Min.Y+start*step,
			window.Max.X, min(window.Min.Y+end*step, window.Max.Y),
		))
	}
	return tiles
}

// stride returns the sampling step for a scale on a given grid.
func stride(gt geometry.AffineTransform, scale float64) int {
	px, _ := gt.PixelSize()
	if scale <= 0 || px <= 0 || scale <= px {
		return 1
	}
	return max(1, int(math.Round(scale/px)))
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

func alignUp(v, step int) int {
	return ceilDiv(v, step) * step
}

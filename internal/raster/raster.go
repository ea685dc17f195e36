// Package raster provides immutable single-band rasters and the raster
// algebra the valuation pipeline needs.
package raster

import (
	"errors"
	"fmt"
	"math"

	"habitat-value/pkg/geometry"

	"github.com/paulmach/orb"
	"gonum.org/v1/gonum/mat"
)

// DefaultBand is the band name given to rasters that are not named.
const DefaultBand = "b1"

var (
	// ErrEmpty is returned when a raster would have no rows or columns.
	ErrEmpty = errors.New("raster has no samples")
	// ErrShapeMismatch is returned when two rasters do not share a grid.
	ErrShapeMismatch = errors.New("raster grids do not match")
)

// Raster is a single-band grid of samples. Masked samples are NaN.
// A Raster is never modified after construction; every operation returns a
// new one.
type Raster struct {
	band      string
	data      *mat.Dense
	transform geometry.AffineTransform
}

// New creates a raster from row-major samples. The slice is copied.
func New(band string, rows, cols int, samples []float64, gt geometry.AffineTransform) (*Raster, error) {
	if rows <= 0 || cols <= 0 {
		return nil, ErrEmpty
	}
	if len(samples) != rows*cols {
		return nil, fmt.Errorf("expected %d samples for %dx%d raster, got %d", rows*cols, rows, cols, len(samples))
	}
	if band == "" {
		band = DefaultBand
	}
	data := make([]float64, len(samples))
	copy(data, samples)
	return &Raster{band: band, data: mat.NewDense(rows, cols, data), transform: gt}, nil
}

// Constant creates a raster with every sample set to v.
func Constant(band string, rows, cols int, v float64, gt geometry.AffineTransform) (*Raster, error) {
	if rows <= 0 || cols <= 0 {
		return nil, ErrEmpty
	}
	samples := make([]float64, rows*cols)
	for i := range samples {
		samples[i] = v
	}
	return New(band, rows, cols, samples, gt)
}

// Band returns the band name.
func (r *Raster) Band() string {
	return r.band
}

// Dims returns the number of rows and columns.
func (r *Raster) Dims() (rows, cols int) {
	return r.data.Dims()
}

// At returns the sample at (row, col).
func (r *Raster) At(row, col int) float64 {
	return r.data.At(row, col)
}

// Transform returns the pixel-to-world transform.
func (r *Raster) Transform() geometry.AffineTransform {
	return r.transform
}

// Bound returns the world extent of the raster.
func (r *Raster) Bound() orb.Bound {
	rows, cols := r.Dims()
	return r.transform.Bound(cols, rows)
}

// Samples returns a row-major copy of all samples.
func (r *Raster) Samples() []float64 {
	raw := r.data.RawMatrix()
	rows, cols := r.Dims()
	out := make([]float64, 0, rows*cols)
	for i := 0; i < rows; i++ {
		out = append(out, raw.Data[i*raw.Stride:i*raw.Stride+cols]...)
	}
	return out
}

// SameGrid reports whether both rasters have the same shape and transform.
func (r *Raster) SameGrid(other *Raster) bool {
	ar, ac := r.Dims()
	br, bc := other.Dims()
	return ar == br && ac == bc && r.transform == other.transform
}

// Rename returns a raster sharing this raster's samples under another band name.
func (r *Raster) Rename(band string) *Raster {
	if band == "" {
		band = DefaultBand
	}
	return &Raster{band: band, data: r.data, transform: r.transform}
}

// Map applies fn to every sample and returns the result as a new raster.
// Masked samples are passed through unchanged.
func (r *Raster) Map(fn func(float64) float64) *Raster {
	out := &mat.Dense{}
	out.Apply(func(_, _ int, v float64) float64 {
		if math.IsNaN(v) {
			return v
		}
		return fn(v)
	}, r.data)
	return &Raster{band: r.band, data: out, transform: r.transform}
}

// Add returns the sample-wise sum of a and b, keeping a's band name.
func Add(a, b *Raster) (*Raster, error) {
	if !a.SameGrid(b) {
		ar, ac := a.Dims()
		br, bc := b.Dims()
		return nil, fmt.Errorf("add %dx%d and %dx%d: %w", ar, ac, br, bc, ErrShapeMismatch)
	}
	out := &mat.Dense{}
	out.Add(a.data, b.data)
	return &Raster{band: a.band, data: out, transform: a.transform}, nil
}

// Clip masks every sample whose pixel center falls outside g.
func (r *Raster) Clip(g orb.Geometry) *Raster {
	rows, cols := r.Dims()
	window := r.transform.Window(g.Bound(), cols, rows)

	out := &mat.Dense{}
	out.Apply(func(i, j int, v float64) float64 {
		if j < window.Min.X || j >= window.Max.X || i < window.Min.Y || i >= window.Max.Y {
			return math.NaN()
		}
		if !geometry.Contains(g, r.transform.PixelCenter(j, i)) {
			return math.NaN()
		}
		return v
	}, r.data)
	return &Raster{band: r.band, data: out, transform: r.transform}
}

package normalize

import (
	"context"
	"errors"
	"testing"

	"habitat-value/internal/raster"
	"habitat-value/internal/reduce"
	"habitat-value/internal/region"
	"habitat-value/pkg/geometry"

	"github.com/paulmach/orb"
)

func extentOf(rows, cols int) *region.Region {
	w, h := float64(cols), float64(rows)
	return &region.Region{
		Geometry: orb.Polygon{{{0, 0}, {w, 0}, {w, h}, {0, h}, {0, 0}}},
	}
}

func newRaster(t *testing.T, rows, cols int, samples []float64) *raster.Raster {
	t.Helper()
	r, err := raster.New("connectivity", rows, cols, samples, geometry.NorthUp(0, float64(rows), 1))
	if err != nil {
		t.Fatalf("new raster: %v", err)
	}
	return r
}

func TestNormalizeRange(t *testing.T) {
	r := newRaster(t, 2, 3, []float64{12, 20, 4, 8, 36, 16})
	n := New(reduce.Options{})

	out, err := n.Normalize(context.Background(), r, extentOf(2, 3))
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}

	lo, hi, err := New(reduce.Options{}).Range(context.Background(), out, extentOf(2, 3))
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	if lo != 0 || hi != 1 {
		t.Fatalf("normalized range = [%v, %v], want [0, 1]", lo, hi)
	}
	if got := out.At(0, 0); got != 0.25 {
		t.Fatalf("At(0,0) = %v, want 0.25", got)
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	r := newRaster(t, 2, 2, []float64{3, 7, 11, 5})
	n := New(reduce.Options{})
	extent := extentOf(2, 2)

	once, err := n.Normalize(context.Background(), r, extent)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	twice, err := n.Normalize(context.Background(), once, extent)
	if err != nil {
		t.Fatalf("normalize twice: %v", err)
	}

	a, b := once.Samples(), twice.Samples()
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("sample %d: %v != %v", i, a[i], b[i])
		}
	}
}

func TestNormalizeDegenerate(t *testing.T) {
	n := New(reduce.Options{})

	constant := newRaster(t, 2, 2, []float64{4, 4, 4, 4})
	_, err := n.Normalize(context.Background(), constant, extentOf(2, 2))
	if !errors.Is(err, ErrDegenerateRange) {
		t.Fatalf("expected ErrDegenerateRange, got %v", err)
	}
	var dre *DegenerateRangeError
	if !errors.As(err, &dre) || dre.Min != 4 || dre.Max != 4 {
		t.Fatalf("expected DegenerateRangeError{4, 4}, got %v", err)
	}

	outside := &region.Region{Geometry: orb.Polygon{{{10, 10}, {11, 10}, {11, 11}, {10, 11}, {10, 10}}}}
	if _, err := n.Normalize(context.Background(), newRaster(t, 1, 2, []float64{1, 2}), outside); !errors.Is(err, ErrDegenerateRange) {
		t.Fatalf("expected ErrDegenerateRange for empty extent, got %v", err)
	}
}

func TestRangeIsCached(t *testing.T) {
	r := newRaster(t, 1, 3, []float64{1, 2, 3})
	extent := extentOf(1, 3)
	n := New(reduce.Options{})

	for i := 0; i < 3; i++ {
		if _, err := n.Normalize(context.Background(), r, extent); err != nil {
			t.Fatalf("normalize: %v", err)
		}
	}
	if n.reductions != 1 {
		t.Fatalf("reductions = %d, want 1", n.reductions)
	}

	if _, err := n.Normalize(context.Background(), r, extentOf(1, 2)); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if n.reductions != 2 {
		t.Fatalf("reductions = %d, want 2 after new extent", n.reductions)
	}
}

// Package geometry provides the affine geo transform shared by rasters and
// the pixel windows derived from it.
package geometry

import (
	"image"
	"math"

	"github.com/paulmach/orb"
)

// AffineTransform maps pixel coordinates (col, row) to world coordinates.
// [a b tx]
// [c d ty]
// This is the GDAL geotransform layout: a is the pixel width, d the
// (usually negative) pixel height, tx/ty the world position of the upper-left
// corner of pixel (0, 0).
type AffineTransform struct {
	A, B, TX float64
	C, D, TY float64
}

// Identity returns the identity transform: one world unit per pixel, origin
// at the upper-left corner, y growing downward.
func Identity() AffineTransform {
	return AffineTransform{A: 1, D: 1}
}

// NorthUp returns a transform for an unrotated grid whose upper-left corner
// sits at (originX, originY) with square pixels of the given size.
func NorthUp(originX, originY, pixelSize float64) AffineTransform {
	return AffineTransform{A: pixelSize, TX: originX, D: -pixelSize, TY: originY}
}

// Apply maps a pixel-space point to world space.
func (t AffineTransform) Apply(col, row float64) orb.Point {
	return orb.Point{
		t.A*col + t.B*row + t.TX,
		t.C*col + t.D*row + t.TY,
	}
}

// PixelCenter returns the world coordinate of the center of pixel (col, row).
func (t AffineTransform) PixelCenter(col, row int) orb.Point {
	return t.Apply(float64(col)+0.5, float64(row)+0.5)
}

// Inverse returns the inverse transform, if it exists.
func (t AffineTransform) Inverse() (AffineTransform, bool) {
	det := t.A*t.D - t.B*t.C
	if math.Abs(det) < 1e-12 {
		return AffineTransform{}, false
	}

	invDet := 1.0 / det
	return AffineTransform{
		A:  t.D * invDet,
		B:  -t.B * invDet,
		TX: (t.B*t.TY - t.D*t.TX) * invDet,
		C:  -t.C * invDet,
		D:  t.A * invDet,
		TY: (t.C*t.TX - t.A*t.TY) * invDet,
	}, true
}

// PixelSize returns the ground size of one pixel along x and y.
func (t AffineTransform) PixelSize() (float64, float64) {
	return math.Hypot(t.A, t.C), math.Hypot(t.B, t.D)
}

// Window returns the pixel rectangle covering a world bound, clamped to a
// cols x rows grid. The result is empty when the bound misses the grid.
func (t AffineTransform) Window(b orb.Bound, cols, rows int) image.Rectangle {
	grid := image.Rect(0, 0, cols, rows)
	inv, ok := t.Inverse()
	if !ok {
		return image.Rectangle{}
	}

	corners := [4]orb.Point{
		b.Min,
		{b.Max[0], b.Min[1]},
		b.Max,
		{b.Min[0], b.Max[1]},
	}
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, c := range corners {
		p := inv.Apply(c[0], c[1])
		minX = math.Min(minX, p[0])
		maxX = math.Max(maxX, p[0])
		minY = math.Min(minY, p[1])
		maxY = math.Max(maxY, p[1])
	}

	r := image.Rect(
		int(math.Floor(minX)), int(math.Floor(minY)),
		int(math.Ceil(maxX)), int(math.Ceil(maxY)),
	)
	return r.Intersect(grid)
}

// Bound returns the world bound of a cols x rows grid.
func (t AffineTransform) Bound(cols, rows int) orb.Bound {
	b := orb.Bound{Min: t.Apply(0, 0), Max: t.Apply(0, 0)}
	b = b.Extend(t.Apply(float64(cols), 0))
	b = b.Extend(t.Apply(0, float64(rows)))
	return b.Extend(t.Apply(float64(cols), float64(rows)))
}

package raster

import (
	"bytes"
	"encoding/binary"
	"errors"
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"testing"

	"habitat-value/pkg/geometry"

	"github.com/paulmach/orb"
	"golang.org/x/image/tiff"
)

func mustRaster(t *testing.T, rows, cols int, samples []float64) *Raster {
	t.Helper()
	r, err := New("", rows, cols, samples, geometry.NorthUp(0, float64(rows), 1))
	if err != nil {
		t.Fatalf("new raster: %v", err)
	}
	return r
}

func TestNewValidatesShape(t *testing.T) {
	if _, err := New("x", 0, 3, nil, geometry.Identity()); !errors.Is(err, ErrEmpty) {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}
	if _, err := New("x", 2, 2, []float64{1, 2, 3}, geometry.Identity()); err == nil {
		t.Fatal("expected sample count error")
	}
}

func TestNewCopiesSamples(t *testing.T) {
	samples := []float64{1, 2, 3, 4}
	r := mustRaster(t, 2, 2, samples)
	samples[0] = 99

	if got := r.At(0, 0); got != 1 {
		t.Fatalf("At(0,0) = %v, want 1", got)
	}
	out := r.Samples()
	out[1] = 99
	if got := r.At(0, 1); got != 2 {
		t.Fatalf("At(0,1) = %v after mutating Samples copy, want 2", got)
	}
	if r.Band() != DefaultBand {
		t.Fatalf("band = %q, want %q", r.Band(), DefaultBand)
	}
}

func TestMapSkipsMasked(t *testing.T) {
	r := mustRaster(t, 1, 3, []float64{1, math.NaN(), 3})
	doubled := r.Map(func(v float64) float64 { return v * 2 })

	if doubled == r {
		t.Fatal("expected a new raster")
	}
	if got := doubled.At(0, 0); got != 2 {
		t.Fatalf("At(0,0) = %v, want 2", got)
	}
	if got := doubled.At(0, 1); !math.IsNaN(got) {
		t.Fatalf("At(0,1) = %v, want NaN", got)
	}
	if got := r.At(0, 2); got != 3 {
		t.Fatalf("source mutated: At(0,2) = %v, want 3", got)
	}
}

func TestAdd(t *testing.T) {
	a := mustRaster(t, 1, 2, []float64{1, 2})
	b := mustRaster(t, 1, 2, []float64{0.5, 0.25})

	sum, err := Add(a, b)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if sum.At(0, 0) != 1.5 || sum.At(0, 1) != 2.25 {
		t.Fatalf("sum = %v, want [1.5 2.25]", sum.Samples())
	}

	c := mustRaster(t, 2, 1, []float64{1, 2})
	if _, err := Add(a, c); !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("expected ErrShapeMismatch, got %v", err)
	}
}

func TestClip(t *testing.T) {
	// 3x3 grid covering [0,3]x[0,3]; keep the left two columns.
	r := mustRaster(t, 3, 3, []float64{1, 2, 3, 4, 5, 6, 7, 8, 9})
	poly := orb.Polygon{{{0, 0}, {2, 0}, {2, 3}, {0, 3}, {0, 0}}}

	clipped := r.Clip(poly)
	for row := 0; row < 3; row++ {
		for col := 0; col < 3; col++ {
			v := clipped.At(row, col)
			if col == 2 {
				if !math.IsNaN(v) {
					t.Fatalf("(%d,%d) = %v, want NaN", row, col, v)
				}
				continue
			}
			if v != r.At(row, col) {
				t.Fatalf("(%d,%d) = %v, want %v", row, col, v, r.At(row, col))
			}
		}
	}
}

func TestLoadTIFF(t *testing.T) {
	img := image.NewGray16(image.Rect(0, 0, 3, 2))
	for i := 0; i < 6; i++ {
		img.SetGray16(i%3, i/3, color.Gray16{Y: uint16(i * 100)})
	}

	path := filepath.Join(t.TempDir(), "suitability.tif")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := tiff.Encode(f, img, nil); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	r, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	rows, cols := r.Dims()
	if rows != 2 || cols != 3 {
		t.Fatalf("dims = %dx%d, want 2x3", rows, cols)
	}
	if r.Band() != "suitability" {
		t.Fatalf("band = %q, want suitability", r.Band())
	}
	if got := r.At(1, 2); got != 500 {
		t.Fatalf("At(1,2) = %v, want 500", got)
	}
	if r.Transform() != geometry.Identity() {
		t.Fatalf("transform = %+v, want identity", r.Transform())
	}
}

func TestGeoTagsTransform(t *testing.T) {
	tags := geoTags{
		scale:    []float64{30, 30, 0},
		tiepoint: []float64{0, 0, 0, 600000, 4000000, 0},
	}
	gt := tags.transform()
	want := geometry.NorthUp(600000, 4000000, 30)
	if gt != want {
		t.Fatalf("transform = %+v, want %+v", gt, want)
	}

	if (geoTags{}).transform() != geometry.Identity() {
		t.Fatal("expected identity without tags")
	}
}

func TestFromImageNoData(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 2, 1))
	img.SetGray(0, 0, color.Gray{Y: 255})
	img.SetGray(1, 0, color.Gray{Y: 7})

	r, err := FromImage("b", img, geometry.Identity(), 255)
	if err != nil {
		t.Fatalf("from image: %v", err)
	}
	if !math.IsNaN(r.At(0, 0)) {
		t.Fatalf("At(0,0) = %v, want NaN", r.At(0, 0))
	}
	if r.At(0, 1) != 7 {
		t.Fatalf("At(0,1) = %v, want 7", r.At(0, 1))
	}
}

// tiffEntry is one directory entry for writeTIFF. Values of up to four
// bytes are stored inline.
type tiffEntry struct {
	tag, fieldType uint16
	count          uint32
	data           []byte
}

func shortEntry(tag uint16, v uint16) tiffEntry {
	return tiffEntry{tag: tag, fieldType: tiffShort, count: 1, data: binary.LittleEndian.AppendUint16(nil, v)}
}

func longEntry(tag uint16, v uint32) tiffEntry {
	return tiffEntry{tag: tag, fieldType: tiffLong, count: 1, data: binary.LittleEndian.AppendUint32(nil, v)}
}

func doubleEntry(tag uint16, vals ...float64) tiffEntry {
	var data []byte
	for _, v := range vals {
		data = binary.LittleEndian.AppendUint64(data, math.Float64bits(v))
	}
	return tiffEntry{tag: tag, fieldType: tiffDouble, count: uint32(len(vals)), data: data}
}

func asciiEntry(tag uint16, s string) tiffEntry {
	data := append([]byte(s), 0)
	return tiffEntry{tag: tag, fieldType: tiffASCII, count: uint32(len(data)), data: data}
}

// writeTIFF writes a little-endian TIFF with one directory followed by its
// out-of-line values and then pixels. The strip offset entry is filled in.
func writeTIFF(t *testing.T, path string, entries []tiffEntry, pixels []byte) {
	t.Helper()
	ifdSize := 2 + 12*len(entries) + 4
	extra := 8 + ifdSize
	for _, e := range entries {
		if len(e.data) > 4 {
			extra += len(e.data)
		}
	}

	var ifd, tail bytes.Buffer
	le := binary.LittleEndian
	binary.Write(&ifd, le, uint16(len(entries)))
	next := uint32(8 + ifdSize)
	for _, e := range entries {
		binary.Write(&ifd, le, e.tag)
		binary.Write(&ifd, le, e.fieldType)
		binary.Write(&ifd, le, e.count)

		data := e.data
		if e.tag == tagStripOffsets {
			data = le.AppendUint32(nil, uint32(extra))
		}
		if len(data) > 4 {
			binary.Write(&ifd, le, next)
			tail.Write(data)
			next += uint32(len(data))
			continue
		}
		inline := make([]byte, 4)
		copy(inline, data)
		ifd.Write(inline)
	}
	binary.Write(&ifd, le, uint32(0))

	var out bytes.Buffer
	out.WriteString("II")
	binary.Write(&out, le, uint16(42))
	binary.Write(&out, le, uint32(8))
	out.Write(ifd.Bytes())
	out.Write(tail.Bytes())
	out.Write(pixels)

	if err := os.WriteFile(path, out.Bytes(), 0o644); err != nil {
		t.Fatalf("write tiff: %v", err)
	}
}

func floatEntries(cols, rows int, pixelBytes uint32) []tiffEntry {
	return []tiffEntry{
		longEntry(tagImageWidth, uint32(cols)),
		longEntry(tagImageLength, uint32(rows)),
		shortEntry(tagBitsPerSample, 32),
		shortEntry(tagCompression, compressionNone),
		longEntry(tagStripOffsets, 0),
		shortEntry(tagSamplesPerPixel, 1),
		longEntry(tagStripByteCounts, pixelBytes),
		shortEntry(tagSampleFormat, sampleFormatFloat),
		doubleEntry(tagModelPixelScale, 30, 30, 0),
		doubleEntry(tagModelTiepoint, 0, 0, 0, 600000, 4000000, 0),
		asciiEntry(tagGDALNoData, "-9999"),
	}
}

func float32Pixels(vals ...float32) []byte {
	var out []byte
	for _, v := range vals {
		out = binary.LittleEndian.AppendUint32(out, math.Float32bits(v))
	}
	return out
}

func TestLoadFloatGeoTIFF(t *testing.T) {
	pixels := float32Pixels(0, 0.25, 0.5, 0.75, 1, -9999)
	path := filepath.Join(t.TempDir(), "suitability.tif")
	writeTIFF(t, path, floatEntries(3, 2, uint32(len(pixels))), pixels)

	r, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if rows, cols := r.Dims(); rows != 2 || cols != 3 {
		t.Fatalf("dims = %dx%d, want 2x3", rows, cols)
	}
	if r.Transform() != geometry.NorthUp(600000, 4000000, 30) {
		t.Fatalf("transform = %+v", r.Transform())
	}

	want := []float64{0, 0.25, 0.5, 0.75, 1}
	for i, w := range want {
		if got := r.At(i/3, i%3); got != w {
			t.Fatalf("sample %d = %v, want %v", i, got, w)
		}
	}
	if !math.IsNaN(r.At(1, 2)) {
		t.Fatalf("nodata sample = %v, want NaN", r.At(1, 2))
	}
	for _, v := range r.Samples() {
		if !math.IsNaN(v) && (v < 0 || v > 1) {
			t.Fatalf("sample %v outside [0, 1]", v)
		}
	}
}

func TestLoadRejectsCorruptCounts(t *testing.T) {
	pixels := float32Pixels(0, 1, 0, 1)

	tests := []struct {
		name   string
		mutate func([]tiffEntry)
	}{
		{"huge tiepoint count", func(e []tiffEntry) { e[9].count = 1 << 28 }},
		{"strip past end of file", func(e []tiffEntry) { e[6].data = binary.LittleEndian.AppendUint32(nil, 1<<30) }},
		{"image larger than file", func(e []tiffEntry) { e[0].data = binary.LittleEndian.AppendUint32(nil, 1<<20) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries := floatEntries(2, 2, uint32(len(pixels)))
			tt.mutate(entries)
			path := filepath.Join(t.TempDir(), "conn.tif")
			writeTIFF(t, path, entries, pixels)

			if _, err := Load(path); !errors.Is(err, ErrCorrupt) {
				t.Fatalf("err = %v, want ErrCorrupt", err)
			}
		})
	}
}

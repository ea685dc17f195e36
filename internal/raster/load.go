package raster

import (
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/png"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"habitat-value/pkg/geometry"

	_ "golang.org/x/image/tiff"
)

// ErrCorrupt is returned when a TIFF field points outside the file.
var ErrCorrupt = errors.New("corrupt TIFF")

// Baseline TIFF tag numbers.
const (
	tagImageWidth      = 256
	tagImageLength     = 257
	tagBitsPerSample   = 258
	tagCompression     = 259
	tagStripOffsets    = 273
	tagSamplesPerPixel = 277
	tagStripByteCounts = 279
	tagSampleFormat    = 339
)

// GeoTIFF and GDAL tag numbers.
const (
	tagModelPixelScale = 33550
	tagModelTiepoint   = 33922
	tagGDALNoData      = 42113
)

// TIFF field types.
const (
	tiffASCII  = 2
	tiffShort  = 3
	tiffLong   = 4
	tiffDouble = 12
)

const (
	compressionNone   = 1
	sampleFormatFloat = 3
)

// Load reads a single-band raster from a TIFF or PNG file.
// Integer images keep their native gray levels; 32 and 64 bit float TIFFs
// are read sample for sample. Transparent pixels and pixels equal to the
// GDAL_NODATA tag are masked. GeoTIFF pixel scale and tiepoint tags set the
// transform; without them the identity transform is used.
func Load(path string) (*Raster, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open raster: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat raster: %w", err)
	}

	band := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	gt := geometry.Identity()
	noData := math.NaN()

	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".tiff" || ext == ".tif" {
		dir, err := readDirectory(file, info.Size())
		if err != nil {
			return nil, fmt.Errorf("failed to read TIFF directory from %s: %w", path, err)
		}
		gt = dir.transform()
		noData = dir.noData

		if dir.sampleFormat == sampleFormatFloat {
			samples, err := dir.readFloats(file, info.Size())
			if err != nil {
				return nil, fmt.Errorf("failed to read float samples from %s: %w", path, err)
			}
			return New(band, dir.height, dir.width, samples, gt)
		}
		if _, err := file.Seek(0, io.SeekStart); err != nil {
			return nil, err
		}
	}

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("failed to decode raster %s: %w", path, err)
	}
	return FromImage(band, img, gt, noData)
}

// FromImage converts the gray levels of img into raster samples.
// Samples equal to noData are masked; pass NaN to disable.
func FromImage(band string, img image.Image, gt geometry.AffineTransform, noData float64) (*Raster, error) {
	bounds := img.Bounds()
	rows, cols := bounds.Dy(), bounds.Dx()
	if rows == 0 || cols == 0 {
		return nil, ErrEmpty
	}

	samples := make([]float64, 0, rows*cols)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			samples = append(samples, graySample(img.At(x, y), noData))
		}
	}
	return New(band, rows, cols, samples, gt)
}

// graySample returns the native gray level of c, or NaN when masked.
func graySample(c color.Color, noData float64) float64 {
	var v float64
	switch p := c.(type) {
	case color.Gray:
		v = float64(p.Y)
	case color.Gray16:
		v = float64(p.Y)
	default:
		if _, _, _, a := c.RGBA(); a == 0 {
			return math.NaN()
		}
		v = float64(color.Gray16Model.Convert(c).(color.Gray16).Y)
	}
	if v == noData {
		return math.NaN()
	}
	return v
}

// geoTags holds the georeferencing read from a TIFF directory.
type geoTags struct {
	scale    []float64
	tiepoint []float64
	noData   float64
}

// transform builds the pixel-to-world transform, falling back to identity.
func (g geoTags) transform() geometry.AffineTransform {
	if len(g.scale) < 2 || len(g.tiepoint) < 6 {
		return geometry.Identity()
	}
	// Tiepoint (i, j, k, x, y, z) anchors raster point (i, j) at world (x, y).
	i, j, x, y := g.tiepoint[0], g.tiepoint[1], g.tiepoint[3], g.tiepoint[4]
	sx, sy := g.scale[0], g.scale[1]
	return geometry.AffineTransform{
		A: sx, TX: x - i*sx,
		D: -sy, TY: y + j*sy,
	}
}

// directory is the first TIFF image directory.
type directory struct {
	geoTags
	byteOrder binary.ByteOrder

	width, height   int
	bitsPerSample   int
	samplesPerPixel int
	compression     int
	sampleFormat    int
	stripOffsets    []uint32
	stripByteCounts []uint32
}

// readDirectory walks the first TIFF directory. size is the file size; no
// field may extend past it.
func readDirectory(r io.ReadSeeker, size int64) (directory, error) {
	dir := directory{
		geoTags:         geoTags{noData: math.NaN()},
		samplesPerPixel: 1,
		compression:     compressionNone,
		sampleFormat:    1,
	}

	header := make([]byte, 8)
	if _, err := io.ReadFull(r, header); err != nil {
		return dir, err
	}

	if header[0] == 'I' && header[1] == 'I' {
		dir.byteOrder = binary.LittleEndian
	} else if header[0] == 'M' && header[1] == 'M' {
		dir.byteOrder = binary.BigEndian
	} else {
		return dir, fmt.Errorf("not a valid TIFF file")
	}
	byteOrder := dir.byteOrder

	ifdOffset := int64(byteOrder.Uint32(header[4:8]))
	if err := checkSpan(ifdOffset, 2, size); err != nil {
		return dir, err
	}
	if _, err := r.Seek(ifdOffset, io.SeekStart); err != nil {
		return dir, err
	}

	var numEntries uint16
	if err := binary.Read(r, byteOrder, &numEntries); err != nil {
		return dir, err
	}
	if err := checkSpan(ifdOffset+2, 12*int64(numEntries), size); err != nil {
		return dir, err
	}

	entries := make([]byte, 12*int(numEntries))
	if _, err := io.ReadFull(r, entries); err != nil {
		return dir, err
	}

	for i := 0; i < int(numEntries); i++ {
		entry := entries[i*12 : i*12+12]
		tag := byteOrder.Uint16(entry[0:2])
		fieldType := byteOrder.Uint16(entry[2:4])
		count := byteOrder.Uint32(entry[4:8])
		value := entry[8:12]

		switch tag {
		case tagImageWidth, tagImageLength, tagBitsPerSample, tagCompression,
			tagSamplesPerPixel, tagSampleFormat, tagStripOffsets, tagStripByteCounts:
			vals, err := readUints(r, value, fieldType, count, byteOrder, size)
			if err != nil {
				return dir, fmt.Errorf("tag %d: %w", tag, err)
			}
			if len(vals) == 0 {
				continue
			}
			switch tag {
			case tagImageWidth:
				dir.width = int(vals[0])
			case tagImageLength:
				dir.height = int(vals[0])
			case tagBitsPerSample:
				dir.bitsPerSample = int(vals[0])
			case tagCompression:
				dir.compression = int(vals[0])
			case tagSamplesPerPixel:
				dir.samplesPerPixel = int(vals[0])
			case tagSampleFormat:
				dir.sampleFormat = int(vals[0])
			case tagStripOffsets:
				dir.stripOffsets = vals
			case tagStripByteCounts:
				dir.stripByteCounts = vals
			}
		case tagModelPixelScale, tagModelTiepoint:
			if fieldType != tiffDouble {
				continue
			}
			vals, err := readDoubles(r, int64(byteOrder.Uint32(value)), count, byteOrder, size)
			if err != nil {
				return dir, fmt.Errorf("tag %d: %w", tag, err)
			}
			if tag == tagModelPixelScale {
				dir.scale = vals
			} else {
				dir.tiepoint = vals
			}
		case tagGDALNoData:
			if fieldType != tiffASCII {
				continue
			}
			s, err := readASCII(r, value, count, byteOrder, size)
			if err != nil {
				return dir, fmt.Errorf("tag %d: %w", tag, err)
			}
			if v, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
				dir.noData = v
			}
		}
	}

	return dir, nil
}

// readFloats reads the uncompressed float strips of a single-band image.
func (d directory) readFloats(r io.ReadSeeker, size int64) ([]float64, error) {
	switch {
	case d.compression != compressionNone:
		return nil, fmt.Errorf("compression %d not supported for float samples", d.compression)
	case d.samplesPerPixel != 1:
		return nil, fmt.Errorf("%d samples per pixel, want 1", d.samplesPerPixel)
	case d.bitsPerSample != 32 && d.bitsPerSample != 64:
		return nil, fmt.Errorf("%d bit float samples not supported", d.bitsPerSample)
	case d.width <= 0 || d.height <= 0:
		return nil, ErrEmpty
	case len(d.stripOffsets) == 0 || len(d.stripOffsets) != len(d.stripByteCounts):
		return nil, fmt.Errorf("missing strip layout: %w", ErrCorrupt)
	}

	bytesPer := d.bitsPerSample / 8
	n := int64(d.width) * int64(d.height)
	if n*int64(bytesPer) > size {
		return nil, fmt.Errorf("%dx%d image larger than file: %w", d.width, d.height, ErrCorrupt)
	}

	samples := make([]float64, 0, n)
	for i, off := range d.stripOffsets {
		count := int64(d.stripByteCounts[i])
		if err := checkSpan(int64(off), count, size); err != nil {
			return nil, err
		}
		if _, err := r.Seek(int64(off), io.SeekStart); err != nil {
			return nil, err
		}
		buf := make([]byte, count)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
		for p := 0; p+bytesPer <= len(buf) && int64(len(samples)) < n; p += bytesPer {
			var v float64
			if bytesPer == 4 {
				v = float64(math.Float32frombits(d.byteOrder.Uint32(buf[p:])))
			} else {
				v = math.Float64frombits(d.byteOrder.Uint64(buf[p:]))
			}
			if v == d.noData {
				v = math.NaN()
			}
			samples = append(samples, v)
		}
	}

	if int64(len(samples)) != n {
		return nil, fmt.Errorf("strips hold %d of %d samples: %w", len(samples), n, ErrCorrupt)
	}
	return samples, nil
}

// checkSpan reports whether n bytes starting at offset lie inside the file.
func checkSpan(offset, n, size int64) error {
	if offset < 0 || n < 0 || offset > size || n > size-offset {
		return fmt.Errorf("field at %d with %d bytes exceeds %d byte file: %w", offset, n, size, ErrCorrupt)
	}
	return nil
}

// readUints reads a SHORT or LONG field, which is inline when it fits in
// four bytes.
func readUints(r io.ReadSeeker, value []byte, fieldType uint16, count uint32, byteOrder binary.ByteOrder, size int64) ([]uint32, error) {
	var width int64
	switch fieldType {
	case tiffShort:
		width = 2
	case tiffLong:
		width = 4
	default:
		return nil, fmt.Errorf("field type %d, want SHORT or LONG", fieldType)
	}

	total := width * int64(count)
	buf := value
	if total > 4 {
		offset := int64(byteOrder.Uint32(value))
		if err := checkSpan(offset, total, size); err != nil {
			return nil, err
		}
		if _, err := r.Seek(offset, io.SeekStart); err != nil {
			return nil, err
		}
		buf = make([]byte, total)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
	}

	vals := make([]uint32, count)
	for i := range vals {
		if width == 2 {
			vals[i] = uint32(byteOrder.Uint16(buf[2*i:]))
		} else {
			vals[i] = byteOrder.Uint32(buf[4*i:])
		}
	}
	return vals, nil
}

// readDoubles reads count DOUBLE values stored at offset.
func readDoubles(r io.ReadSeeker, offset int64, count uint32, byteOrder binary.ByteOrder, size int64) ([]float64, error) {
	if err := checkSpan(offset, 8*int64(count), size); err != nil {
		return nil, err
	}
	if _, err := r.Seek(offset, io.SeekStart); err != nil {
		return nil, err
	}
	vals := make([]float64, count)
	if err := binary.Read(r, byteOrder, vals); err != nil {
		return nil, err
	}
	return vals, nil
}

// readASCII reads an ASCII field, which is inline when it fits in four bytes.
func readASCII(r io.ReadSeeker, value []byte, count uint32, byteOrder binary.ByteOrder, size int64) (string, error) {
	if count <= 4 {
		return strings.TrimRight(string(value[:count]), "\x00"), nil
	}
	offset := int64(byteOrder.Uint32(value))
	if err := checkSpan(offset, int64(count), size); err != nil {
		return "", err
	}
	if _, err := r.Seek(offset, io.SeekStart); err != nil {
		return "", err
	}
	buf := make([]byte, count)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return strings.TrimRight(string(buf), "\x00"), nil
}

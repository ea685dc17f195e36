// Package region provides attributed vector regions and the collection
// operations used to bound zonal reductions.
package region

import (
	"fmt"
	"os"
	"sort"

	"habitat-value/pkg/geometry"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Region is a polygonal geometry with named attributes.
type Region struct {
	Geometry   orb.Geometry
	Attributes map[string]any
}

// Attribute returns the string form of an attribute and whether it is set.
func (r Region) Attribute(name string) (string, bool) {
	v, ok := r.Attributes[name]
	if !ok || v == nil {
		return "", false
	}
	if s, ok := v.(string); ok {
		return s, true
	}
	return fmt.Sprint(v), true
}

// Set is an unordered collection of regions. Operations return new sets and
// never modify the receiver.
type Set struct {
	regions []Region
}

// NewSet creates a set from regions.
func NewSet(regions ...Region) Set {
	out := make([]Region, len(regions))
	copy(out, regions)
	return Set{regions: out}
}

// Len returns the number of regions.
func (s Set) Len() int {
	return len(s.regions)
}

// Regions returns a copy of the regions.
func (s Set) Regions() []Region {
	out := make([]Region, len(s.regions))
	copy(out, s.regions)
	return out
}

// Merge returns the regions of both sets.
func (s Set) Merge(other Set) Set {
	out := make([]Region, 0, len(s.regions)+len(other.regions))
	out = append(out, s.regions...)
	out = append(out, other.regions...)
	return Set{regions: out}
}

// FilterEqual returns the regions whose attribute equals value.
func (s Set) FilterEqual(attribute, value string) Set {
	var out []Region
	for _, r := range s.regions {
		if v, ok := r.Attribute(attribute); ok && v == value {
			out = append(out, r)
		}
	}
	return Set{regions: out}
}

// FilterBounds returns the regions whose geometry contains p.
func (s Set) FilterBounds(p orb.Point) Set {
	var out []Region
	for _, r := range s.regions {
		if r.Geometry == nil || !r.Geometry.Bound().Contains(p) {
			continue
		}
		if geometry.Contains(r.Geometry, p) {
			out = append(out, r)
		}
	}
	return Set{regions: out}
}

// Distinct returns the sorted distinct values of an attribute. Regions
// without the attribute are skipped.
func (s Set) Distinct(attribute string) []string {
	seen := make(map[string]bool)
	var values []string
	for _, r := range s.regions {
		v, ok := r.Attribute(attribute)
		if !ok || seen[v] {
			continue
		}
		seen[v] = true
		values = append(values, v)
	}
	sort.Strings(values)
	return values
}

// Union returns the polygons of every region as one multipolygon.
// Overlaps are kept; containment tests treat them as a single area.
func (s Set) Union() orb.MultiPolygon {
	var mp orb.MultiPolygon
	for _, r := range s.regions {
		if r.Geometry == nil {
			continue
		}
		mp = append(mp, geometry.Polygons(r.Geometry)...)
	}
	return mp
}

// FromFeatureCollection converts GeoJSON features into a set.
func FromFeatureCollection(fc *geojson.FeatureCollection) Set {
	regions := make([]Region, 0, len(fc.Features))
	for _, f := range fc.Features {
		attrs := make(map[string]any, len(f.Properties))
		for k, v := range f.Properties {
			attrs[k] = v
		}
		regions = append(regions, Region{Geometry: f.Geometry, Attributes: attrs})
	}
	return Set{regions: regions}
}

// LoadGeoJSON reads a GeoJSON FeatureCollection file.
func LoadGeoJSON(path string) (Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Set{}, fmt.Errorf("failed to read regions: %w", err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return Set{}, fmt.Errorf("failed to decode regions %s: %w", path, err)
	}
	return FromFeatureCollection(fc), nil
}

// LoadAll reads and merges several GeoJSON files.
func LoadAll(paths ...string) (Set, error) {
	var set Set
	for _, p := range paths {
		s, err := LoadGeoJSON(p)
		if err != nil {
			return Set{}, err
		}
		set = set.Merge(s)
	}
	return set, nil
}

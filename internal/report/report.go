// Package report formats zonal statistics for display.
package report

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"habitat-value/internal/zonal"
)

// Missing is shown for statistics without samples.
const Missing = "n/a"

// Label names a group in report lines.
type Label struct {
	Group string // attribute value
	Title string // plural display name
}

// DefaultLabels are the habitat gain and loss categories, in report order.
var DefaultLabels = []Label{
	{Group: "Proposed SMA", Title: "proposed SMAs"},
	{Group: "Conservation Area", Title: "conservation areas"},
	{Group: "Recreation Area", Title: "recreation areas"},
	{Group: "Disposal Area", Title: "disposal areas"},
}

// Total formats a sum rounded to an integer.
func Total(v float64) string {
	if math.IsNaN(v) {
		return Missing
	}
	r := math.Round(v)
	if r == 0 {
		r = 0 // drop the sign of -0
	}
	return strconv.FormatFloat(r, 'f', 0, 64)
}

// Mean formats a mean rounded to two decimals.
func Mean(v float64) string {
	if math.IsNaN(v) {
		return Missing
	}
	r := math.Round(v*100) / 100
	if r == 0 {
		r = 0
	}
	return strconv.FormatFloat(r, 'f', -1, 64)
}

// Groups returns the sorted groups present in grouped stats.
func Groups(stats zonal.Stats) []string {
	prefix := zonal.SumKey("")
	var groups []string
	for k := range stats {
		if g, ok := strings.CutPrefix(k, prefix); ok {
			groups = append(groups, g)
		}
	}
	sort.Strings(groups)
	return groups
}

// Line formats the total and mean of one group.
func Line(title string, sum, mean float64) string {
	return fmt.Sprintf("Value of %s = %s (mean = %s)", title, Total(sum), Mean(mean))
}

// GroupLines formats grouped stats. Labelled groups come first in label
// order, even when absent from stats; the remaining groups follow sorted
// and titled by their raw value.
func GroupLines(stats zonal.Stats, labels []Label) []string {
	lines := make([]string, 0, len(labels))
	seen := make(map[string]bool, len(labels))
	for _, l := range labels {
		seen[l.Group] = true
		lines = append(lines, Line(l.Title, lookup(stats, zonal.SumKey(l.Group), 0), lookup(stats, zonal.MeanKey(l.Group), math.NaN())))
	}
	for _, g := range Groups(stats) {
		if seen[g] {
			continue
		}
		lines = append(lines, Line(g, stats[zonal.SumKey(g)], lookup(stats, zonal.MeanKey(g), math.NaN())))
	}
	return lines
}

// TotalLine formats ungrouped stats.
func TotalLine(stats zonal.Stats) string {
	return Line("selected areas", lookup(stats, zonal.KeySum, 0), lookup(stats, zonal.KeyMean, math.NaN()))
}

// Inspection formats the result of a point query.
func Inspection(group string, sum, mean float64) string {
	if group == "" {
		group = "Region"
	}
	return fmt.Sprintf("%s value = %s (mean = %s)", group, Total(sum), Mean(mean))
}

func lookup(stats zonal.Stats, key string, fallback float64) float64 {
	if v, ok := stats[key]; ok {
		return v
	}
	return fallback
}

// Package transform provides the value functions that shape normalized
// habitat layers before they are combined.
//
// Every mode is a scalar function of (value, weight). Rasters are transformed
// by mapping the same scalar function over their samples, so a preview curve
// and a transformed raster always agree.
package transform

import (
	"math"
	"strings"

	"habitat-value/internal/raster"
)

// Mode selects a value function.
type Mode int

const (
	// ModeNone passes values through unchanged. Unrecognized mode names
	// resolve to it, which also hides misspelled names; ParseMode reports
	// the fallback so callers can log it.
	ModeNone Mode = iota
	ModeLinear
	ModeExponential
	ModeSigmoid
	ModeLogarithmic
)

// SigmoidMidpoint is the fixed inflection point of the sigmoid value function.
const SigmoidMidpoint = 0.5

// sigmoidSteepness scales the weight into the sigmoid slope.
const sigmoidSteepness = 10

func (m Mode) String() string {
	switch m {
	case ModeLinear:
		return "Linear"
	case ModeExponential:
		return "Exponential"
	case ModeSigmoid:
		return "Sigmoid"
	case ModeLogarithmic:
		return "Logarithmic"
	default:
		return "None"
	}
}

// Modes returns the selectable modes in menu order.
func Modes() []Mode {
	return []Mode{ModeExponential, ModeLinear, ModeLogarithmic, ModeSigmoid}
}

// ParseMode resolves a mode name as shown by String. ok is false when the
// name was not recognized and ModeNone was substituted; "None" and "" are
// recognized.
func ParseMode(name string) (mode Mode, ok bool) {
	switch strings.TrimSpace(name) {
	case "Linear":
		return ModeLinear, true
	case "Exponential":
		return ModeExponential, true
	case "Sigmoid":
		return ModeSigmoid, true
	case "Logarithmic":
		return ModeLogarithmic, true
	case "None", "":
		return ModeNone, true
	default:
		return ModeNone, false
	}
}

// Func returns the scalar value function for a mode.
func Func(m Mode) func(x, w float64) float64 {
	switch m {
	case ModeLinear:
		return Linear
	case ModeExponential:
		return Exponential
	case ModeSigmoid:
		return Sigmoid
	case ModeLogarithmic:
		return Logarithmic
	default:
		return Passthrough
	}
}

// Linear is a rectified linear ramp that saturates at 1.
func Linear(x, w float64) float64 {
	return math.Min(w*x, 1)
}

// Exponential raises x to the power w. x must be non-negative.
func Exponential(x, w float64) float64 {
	return math.Pow(x, w)
}

// Sigmoid is a logistic curve centered on SigmoidMidpoint; w controls the slope.
func Sigmoid(x, w float64) float64 {
	return 1 / (1 + math.Exp(-sigmoidSteepness*w*(x-SigmoidMidpoint)))
}

// Logarithmic is the saturating growth curve 1 - e^(-w·x).
func Logarithmic(x, w float64) float64 {
	return 1 - math.Exp(-w*x)
}

// Passthrough returns x.
func Passthrough(x, _ float64) float64 {
	return x
}

// Apply transforms every sample of r with mode m and weight w.
func Apply(r *raster.Raster, m Mode, w float64) *raster.Raster {
	fn := Func(m)
	return r.Map(func(v float64) float64 {
		return fn(v, w)
	})
}

// Point is one sample of a preview curve.
type Point struct {
	X, Y float64
}

// CurveSamples is the number of points in a preview curve.
const CurveSamples = 101

// Curve evaluates mode m with weight w at x = 0, 0.01, ..., 1.
func Curve(m Mode, w float64) []Point {
	fn := Func(m)
	pts := make([]Point, CurveSamples)
	for i := range pts {
		x := float64(i) / float64(CurveSamples-1)
		pts[i] = Point{X: x, Y: fn(x, w)}
	}
	return pts
}

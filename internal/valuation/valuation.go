// Package valuation combines transformed suitability and connectivity
// rasters into a habitat value surface.
package valuation

import (
	"errors"
	"fmt"
	"math"

	"habitat-value/internal/raster"
	"habitat-value/internal/transform"
)

// ErrInvalidWeight is returned for weights that are not finite and positive.
var ErrInvalidWeight = errors.New("weight must be finite and positive")

// ValueBand is the band name of composited surfaces.
const ValueBand = "value"

// Params fully determines a value surface for fixed inputs.
type Params struct {
	SuitWeight float64
	ConnWeight float64
	SuitMode   transform.Mode
	ConnMode   transform.Mode
}

// DefaultParams returns unit weights with linear value functions.
func DefaultParams() Params {
	return Params{
		SuitWeight: 1,
		ConnWeight: 1,
		SuitMode:   transform.ModeLinear,
		ConnMode:   transform.ModeLinear,
	}
}

// Validate checks both weights.
func (p Params) Validate() error {
	if err := ValidateWeight(p.SuitWeight); err != nil {
		return fmt.Errorf("suitability: %w", err)
	}
	if err := ValidateWeight(p.ConnWeight); err != nil {
		return fmt.Errorf("connectivity: %w", err)
	}
	return nil
}

// ValidateWeight checks a single weight.
func ValidateWeight(w float64) error {
	if math.IsNaN(w) || math.IsInf(w, 0) || w <= 0 {
		return fmt.Errorf("%v: %w", w, ErrInvalidWeight)
	}
	return nil
}

// WithSuitWeight returns a copy of params with a new suitability weight.
func (p Params) WithSuitWeight(w float64) Params {
	p.SuitWeight = w
	return p
}

// WithConnWeight returns a copy of params with a new connectivity weight.
func (p Params) WithConnWeight(w float64) Params {
	p.ConnWeight = w
	return p
}

// WithSuitMode returns a copy of params with a new suitability mode.
func (p Params) WithSuitMode(m transform.Mode) Params {
	p.SuitMode = m
	return p
}

// WithConnMode returns a copy of params with a new connectivity mode.
func (p Params) WithConnMode(m transform.Mode) Params {
	p.ConnMode = m
	return p
}

func (p Params) String() string {
	return fmt.Sprintf("suit=%s(%g) conn=%s(%g)", p.SuitMode, p.SuitWeight, p.ConnMode, p.ConnWeight)
}

// Composite transforms suit and conn independently and sums them sample-wise.
// The sum is not renormalized: with inputs in [0, 1] each term is bounded by
// its value function, so the surface lies in [0, 2].
func Composite(suit, conn *raster.Raster, p Params) (*raster.Raster, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	suitable := transform.Apply(suit, p.SuitMode, p.SuitWeight)
	connect := transform.Apply(conn, p.ConnMode, p.ConnWeight)

	value, err := raster.Add(connect, suitable)
	if err != nil {
		return nil, fmt.Errorf("composite value surface: %w", err)
	}
	return value.Rename(ValueBand), nil
}

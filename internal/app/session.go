package app

import (
	"context"
	"fmt"
	"log"

	"habitat-value/internal/config"
	"habitat-value/internal/normalize"
	"habitat-value/internal/raster"
	"habitat-value/internal/region"
	"habitat-value/internal/zonal"
)

// Inputs are the fixed layers of a valuation session.
type Inputs struct {
	Suitability  *raster.Raster
	Connectivity *raster.Raster
	Extent       *region.Region
	Regions      region.Set
}

// LoadInputs reads the configured layers, clips both rasters to the study
// extent and rescales connectivity to [0,1] over that extent. Suitability is
// rescaled too when cfg.NormalizeSuitability is set.
func LoadInputs(ctx context.Context, cfg config.Config) (*Inputs, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	extentSet, err := region.LoadGeoJSON(cfg.ExtentPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load extent: %w", err)
	}
	extent := &region.Region{Geometry: extentSet.Union()}

	suit, err := raster.Load(cfg.SuitabilityPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load suitability: %w", err)
	}
	conn, err := raster.Load(cfg.ConnectivityPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load connectivity: %w", err)
	}

	regions, err := region.LoadAll(cfg.RegionPaths...)
	if err != nil {
		return nil, fmt.Errorf("failed to load regions: %w", err)
	}

	opts := PrepareOptions{NormalizeSuitability: cfg.NormalizeSuitability}
	return Prepare(ctx, suit, conn, extent, regions, normalize.New(cfg.NormalizeOptions()), opts)
}

// PrepareOptions controls input preparation.
type PrepareOptions struct {
	NormalizeSuitability bool
}

// Prepare clips suit and conn to extent and normalizes conn with n.
// Suitability is normalized only when opts ask for it; otherwise its
// samples are expected in [0,1] and a wider range is logged.
func Prepare(ctx context.Context, suit, conn *raster.Raster, extent *region.Region, regions region.Set, n *normalize.Normalizer, opts PrepareOptions) (*Inputs, error) {
	suit = suit.Clip(extent.Geometry)
	conn = conn.Clip(extent.Geometry)

	conn, err := n.Normalize(ctx, conn, extent)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize connectivity: %w", err)
	}

	if opts.NormalizeSuitability {
		suit, err = n.Normalize(ctx, suit, extent)
		if err != nil {
			return nil, fmt.Errorf("failed to normalize suitability: %w", err)
		}
	} else {
		lo, hi, err := n.Range(ctx, suit, extent)
		if err != nil {
			return nil, err
		}
		if lo < 0 || hi > 1 {
			log.Printf("Session: suitability range [%g, %g] is outside [0, 1]; set HABITAT_NORMALIZE_SUITABILITY to rescale", lo, hi)
		}
	}

	rows, cols := suit.Dims()
	log.Printf("Session: %dx%d inputs, %d regions", cols, rows, regions.Len())
	return &Inputs{Suitability: suit, Connectivity: conn, Extent: extent, Regions: regions}, nil
}

// NewSession loads the configured inputs and builds a controller over them.
func NewSession(ctx context.Context, cfg config.Config) (*Controller, *Inputs, error) {
	in, err := LoadInputs(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	ctrl, err := NewController(in.Suitability, in.Connectivity, zonal.NewAggregator(cfg.StatsOptions(), cfg.Workers))
	if err != nil {
		return nil, nil, err
	}
	return ctrl, in, nil
}

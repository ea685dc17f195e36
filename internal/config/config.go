// Package config loads run configuration from the environment.
package config

import (
	"fmt"
	"log"

	"habitat-value/internal/reduce"

	"github.com/caarlos0/env/v11"
)

// Config describes the inputs and reduction settings of a valuation session.
type Config struct {
	SuitabilityPath  string   `env:"HABITAT_SUITABILITY"`
	ConnectivityPath string   `env:"HABITAT_CONNECTIVITY"`
	ExtentPath       string   `env:"HABITAT_EXTENT"`
	RegionPaths      []string `env:"HABITAT_REGIONS"          envSeparator:","`
	GroupAttribute   string   `env:"HABITAT_GROUP_ATTRIBUTE"  envDefault:"Type"`

	// NormalizeSuitability rescales suitability to [0,1] over the extent,
	// for inputs stored as integer levels.
	NormalizeSuitability bool `env:"HABITAT_NORMALIZE_SUITABILITY"`

	Scale              float64 `env:"HABITAT_SCALE"                envDefault:"30"`
	MaxPixels          int64   `env:"HABITAT_MAX_PIXELS"           envDefault:"10000000000000"`
	TileScale          int     `env:"HABITAT_TILE_SCALE"           envDefault:"6"`
	NormalizeTileScale int     `env:"HABITAT_NORMALIZE_TILE_SCALE" envDefault:"8"`
	Workers            int     `env:"HABITAT_WORKERS"              envDefault:"4"`
}

// Default returns the configuration used when the environment sets nothing.
func Default() Config {
	opts := reduce.DefaultOptions()
	return Config{
		GroupAttribute:     "Type",
		Scale:              opts.Scale,
		MaxPixels:          opts.MaxPixels,
		TileScale:          opts.TileScale,
		NormalizeTileScale: 8,
		Workers:            4,
	}
}

// Parse reads the configuration from environment variables.
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// LoadFromEnv returns the environment configuration, falling back to
// Default when the environment cannot be parsed.
func LoadFromEnv() Config {
	cfg, err := Parse()
	if err != nil {
		log.Printf("Config: %v, using defaults", err)
		return Default()
	}
	return cfg
}

// StatsOptions returns the reduction options for zonal statistics.
func (c Config) StatsOptions() reduce.Options {
	return reduce.Options{Scale: c.Scale, MaxPixels: c.MaxPixels, TileScale: c.TileScale}
}

// NormalizeOptions returns the reduction options for min/max normalization.
func (c Config) NormalizeOptions() reduce.Options {
	return c.StatsOptions().WithTileScale(c.NormalizeTileScale)
}

// Validate checks that the required inputs are configured.
func (c Config) Validate() error {
	switch {
	case c.SuitabilityPath == "":
		return fmt.Errorf("suitability raster path is required")
	case c.ConnectivityPath == "":
		return fmt.Errorf("connectivity raster path is required")
	case c.ExtentPath == "":
		return fmt.Errorf("extent path is required")
	}
	return nil
}

// Command valuetest computes a value surface from two rasters and prints
// zonal statistics per region group.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"habitat-value/internal/app"
	"habitat-value/internal/config"
	"habitat-value/internal/report"
	"habitat-value/internal/version"
	"habitat-value/internal/zonal"
)

func main() {
	cfg := config.LoadFromEnv()

	suitPath := flag.String("suit", cfg.SuitabilityPath, "Suitability raster (GeoTIFF or PNG)")
	connPath := flag.String("conn", cfg.ConnectivityPath, "Connectivity raster (GeoTIFF or PNG)")
	extentPath := flag.String("extent", cfg.ExtentPath, "Study extent (GeoJSON)")
	regionPaths := flag.String("regions", strings.Join(cfg.RegionPaths, ","), "Comma-separated region files (GeoJSON)")
	group := flag.String("group", cfg.GroupAttribute, "Group attribute, empty for a single total")
	suitWeight := flag.Float64("suit-weight", 1, "Suitability weight")
	connWeight := flag.Float64("conn-weight", 1, "Connectivity weight")
	suitMode := flag.String("suit-mode", "Linear", "Suitability value function")
	connMode := flag.String("conn-mode", "Linear", "Connectivity value function")
	scale := flag.Float64("scale", cfg.Scale, "Sampling scale in map units")
	normSuit := flag.Bool("normalize-suit", cfg.NormalizeSuitability, "Rescale suitability to [0,1] over the extent")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("valuetest %s\n", version.String())
		return
	}

	cfg.SuitabilityPath = *suitPath
	cfg.ConnectivityPath = *connPath
	cfg.ExtentPath = *extentPath
	cfg.RegionPaths = nil
	if *regionPaths != "" {
		cfg.RegionPaths = strings.Split(*regionPaths, ",")
	}
	cfg.GroupAttribute = *group
	cfg.Scale = *scale
	cfg.NormalizeSuitability = *normSuit

	if err := cfg.Validate(); err != nil {
		fmt.Println("Usage: valuetest -suit <tif> -conn <tif> -extent <geojson> [-regions a.geojson,b.geojson] [-group Type]")
		os.Exit(1)
	}

	ctx := context.Background()
	ctrl, in, err := app.NewSession(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load inputs: %v\n", err)
		os.Exit(1)
	}

	rows, cols := in.Suitability.Dims()
	fmt.Printf("Loaded %dx%d rasters, %d regions\n", cols, rows, in.Regions.Len())

	changes := []app.Change{
		app.WeightChange(app.FieldSuitWeight, *suitWeight),
		app.WeightChange(app.FieldConnWeight, *connWeight),
		app.ModeChange(app.FieldSuitMode, *suitMode),
		app.ModeChange(app.FieldConnMode, *connMode),
	}
	for _, ch := range changes {
		if err := ctrl.OnParameterChange(ctx, ch); err != nil {
			fmt.Fprintf(os.Stderr, "Invalid %s: %v\n", ch.Field, err)
			os.Exit(1)
		}
	}
	fmt.Printf("Parameters: %s\n", ctrl.Params())
	fmt.Printf("Scale: %g, tiles: %d, workers: %d\n\n", cfg.Scale, cfg.TileScale, cfg.Workers)

	stats, err := ctrl.ComputeStats(ctx, in.Regions, cfg.GroupAttribute)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Statistics failed: %v\n", err)
		os.Exit(1)
	}

	if cfg.GroupAttribute == "" {
		fmt.Println(report.TotalLine(stats))
		return
	}

	fmt.Printf("%-24s %12s %10s\n", "Group", "Sum", "Mean")
	fmt.Println(strings.Repeat("-", 48))
	for _, g := range report.Groups(stats) {
		fmt.Printf("%-24s %12s %10s\n", g,
			report.Total(stats[zonal.SumKey(g)]), report.Mean(stats[zonal.MeanKey(g)]))
	}
}

// Package app owns the valuation session: the current parameters, the value
// surface derived from them, and the events that keep a presentation layer
// in step with both.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"habitat-value/internal/raster"
	"habitat-value/internal/region"
	"habitat-value/internal/transform"
	"habitat-value/internal/valuation"
	"habitat-value/internal/zonal"

	"github.com/paulmach/orb"
)

// ErrStaleResult is returned when parameters changed while a statistics
// request was running. Callers should drop the result, not report it.
var ErrStaleResult = errors.New("result issued under outdated parameters")

// Field identifies one valuation parameter.
type Field int

const (
	FieldSuitWeight Field = iota
	FieldConnWeight
	FieldSuitMode
	FieldConnMode
)

func (f Field) String() string {
	switch f {
	case FieldSuitWeight:
		return "suitWeight"
	case FieldConnWeight:
		return "connWeight"
	case FieldSuitMode:
		return "suitMode"
	case FieldConnMode:
		return "connMode"
	default:
		return "unknown"
	}
}

// ParseField resolves a field name as shown by String.
func ParseField(name string) (Field, error) {
	for _, f := range []Field{FieldSuitWeight, FieldConnWeight, FieldSuitMode, FieldConnMode} {
		if f.String() == name {
			return f, nil
		}
	}
	return 0, fmt.Errorf("unknown parameter %q", name)
}

// IsWeight reports whether the field holds a weight.
func (f Field) IsWeight() bool {
	return f == FieldSuitWeight || f == FieldConnWeight
}

// IsConnectivity reports whether the field belongs to the connectivity input.
func (f Field) IsConnectivity() bool {
	return f == FieldConnWeight || f == FieldConnMode
}

// Change is a single parameter-change event.
type Change struct {
	Field  Field
	Weight float64 // for weight fields
	Mode   string  // for mode fields
}

// WeightChange returns a change setting a weight field.
func WeightChange(f Field, w float64) Change {
	return Change{Field: f, Weight: w}
}

// ModeChange returns a change setting a mode field by name.
func ModeChange(f Field, mode string) Change {
	return Change{Field: f, Mode: mode}
}

// EventType identifies controller events.
type EventType int

const (
	EventSurfaceChanged EventType = iota
	EventCurveChanged
	EventStatsReady
	EventStatsFailed
)

// EventListener is called when an event occurs.
type EventListener func(data interface{})

// SurfaceUpdate is the payload of EventSurfaceChanged.
type SurfaceUpdate struct {
	Params  valuation.Params
	Surface *raster.Raster
}

// CurveUpdate is the payload of EventCurveChanged.
type CurveUpdate struct {
	Field  Field
	Mode   transform.Mode
	Weight float64
	Points []transform.Point
}

// StatsUpdate is the payload of EventStatsReady.
type StatsUpdate struct {
	Params         valuation.Params
	GroupAttribute string
	Stats          zonal.Stats
}

// StatsAggregator reduces a surface over a region set.
type StatsAggregator interface {
	Stats(ctx context.Context, surface *raster.Raster, set region.Set, groupAttribute string) (zonal.Stats, error)
}

// Inspection is the result of a single-location query.
type Inspection struct {
	Found   bool
	Group   string // group attribute of the first region hit
	Regions int
	Mean    float64
	Sum     float64
}

// Controller holds the valuation parameters and the value surface derived
// from them. Parameters change only through OnParameterChange; each change
// recomputes the whole surface from the current parameters. Params and
// surface are always replaced together.
type Controller struct {
	// serializes OnParameterChange from apply through emit
	update sync.Mutex

	mu sync.RWMutex

	suitability  *raster.Raster
	connectivity *raster.Raster
	aggregator   StatsAggregator

	params  valuation.Params
	surface *raster.Raster

	cancelStats context.CancelFunc
	inflight    sync.WaitGroup

	listeners map[EventType][]EventListener
}

// NewController creates a controller over fixed inputs and computes the
// initial surface with valuation.DefaultParams.
func NewController(suitability, connectivity *raster.Raster, aggregator StatsAggregator) (*Controller, error) {
	params := valuation.DefaultParams()
	surface, err := valuation.Composite(suitability, connectivity, params)
	if err != nil {
		return nil, fmt.Errorf("initial value surface: %w", err)
	}
	return &Controller{
		suitability:  suitability,
		connectivity: connectivity,
		aggregator:   aggregator,
		params:       params,
		surface:      surface,
		listeners:    make(map[EventType][]EventListener),
	}, nil
}

// On registers an event listener for the specified event type.
func (c *Controller) On(event EventType, listener EventListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners[event] = append(c.listeners[event], listener)
}

// Emit triggers all listeners for the specified event type.
func (c *Controller) Emit(event EventType, data interface{}) {
	c.mu.RLock()
	listeners := c.listeners[event]
	c.mu.RUnlock()

	for _, listener := range listeners {
		listener(data)
	}
}

// Params returns the current parameters.
func (c *Controller) Params() valuation.Params {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.params
}

// CurrentSurface returns the surface for the current parameters.
func (c *Controller) CurrentSurface() *raster.Raster {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.surface
}

// Current returns the parameters and the surface built from them.
func (c *Controller) Current() SurfaceUpdate {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return SurfaceUpdate{Params: c.params, Surface: c.surface}
}

// PreviewCurve returns the scalar form of a value function for charting.
func (c *Controller) PreviewCurve(mode transform.Mode, weight float64) []transform.Point {
	return transform.Curve(mode, weight)
}

// OnParameterChange applies one parameter change, recomputes the surface
// and publishes it together with the preview curve of the changed input.
// Changes are applied one at a time in arrival order, so the last event
// published always carries the current parameters. A rejected or cancelled
// change leaves the state untouched. Listeners must not call
// OnParameterChange.
func (c *Controller) OnParameterChange(ctx context.Context, change Change) error {
	c.update.Lock()
	defer c.update.Unlock()

	next, err := apply(c.Params(), change)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	surface, err := valuation.Composite(c.suitability, c.connectivity, next)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		log.Printf("Controller: discarding surface for %s: %v", next, err)
		return err
	}

	c.mu.Lock()
	if next != c.params && c.cancelStats != nil {
		c.cancelStats()
		c.cancelStats = nil
	}
	c.params = next
	c.surface = surface
	c.mu.Unlock()

	c.Emit(EventSurfaceChanged, SurfaceUpdate{Params: next, Surface: surface})

	mode, weight := next.SuitMode, next.SuitWeight
	if change.Field.IsConnectivity() {
		mode, weight = next.ConnMode, next.ConnWeight
	}
	c.Emit(EventCurveChanged, CurveUpdate{
		Field:  change.Field,
		Mode:   mode,
		Weight: weight,
		Points: transform.Curve(mode, weight),
	})
	return nil
}

// apply returns params with one field changed.
func apply(p valuation.Params, change Change) (valuation.Params, error) {
	if change.Field.IsWeight() {
		if err := valuation.ValidateWeight(change.Weight); err != nil {
			return p, fmt.Errorf("%s: %w", change.Field, err)
		}
	}

	switch change.Field {
	case FieldSuitWeight:
		return p.WithSuitWeight(change.Weight), nil
	case FieldConnWeight:
		return p.WithConnWeight(change.Weight), nil
	case FieldSuitMode:
		return p.WithSuitMode(parseMode(change.Mode)), nil
	case FieldConnMode:
		return p.WithConnMode(parseMode(change.Mode)), nil
	default:
		return p, fmt.Errorf("unknown parameter field %d", change.Field)
	}
}

func parseMode(name string) transform.Mode {
	mode, ok := transform.ParseMode(name)
	if !ok {
		log.Printf("Controller: unrecognized mode %q, using passthrough", name)
	}
	return mode
}

// ComputeStats reduces the current surface over set. If the parameters
// change before the reduction finishes the result is discarded and the
// error matches ErrStaleResult.
func (c *Controller) ComputeStats(ctx context.Context, set region.Set, groupAttribute string) (zonal.Stats, error) {
	stats, _, err := c.computeStats(ctx, set, groupAttribute)
	return stats, err
}

// computeStats also returns the parameters the stats were computed under.
func (c *Controller) computeStats(ctx context.Context, set region.Set, groupAttribute string) (zonal.Stats, valuation.Params, error) {
	cur := c.Current()

	stats, err := c.aggregator.Stats(ctx, cur.Surface, set, groupAttribute)
	if err != nil {
		return nil, cur.Params, err
	}

	if current := c.Params(); current != cur.Params {
		log.Printf("Controller: dropping stats for %s, current is %s", cur.Params, current)
		return nil, cur.Params, fmt.Errorf("stats for %s: %w", cur.Params, ErrStaleResult)
	}
	return stats, cur.Params, nil
}

// RequestStats starts a background reduction and emits EventStatsReady when
// it completes under unchanged parameters. A newer request or a parameter
// change cancels it; cancelled and stale results are dropped without an
// event. Failures emit EventStatsFailed with the error.
func (c *Controller) RequestStats(set region.Set, groupAttribute string) {
	ctx, cancel := context.WithCancel(context.Background())

	c.mu.Lock()
	if c.cancelStats != nil {
		c.cancelStats()
	}
	c.cancelStats = cancel
	c.inflight.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.inflight.Done()
		defer cancel()

		stats, issued, err := c.computeStats(ctx, set, groupAttribute)
		switch {
		case errors.Is(err, ErrStaleResult), errors.Is(err, context.Canceled):
			log.Printf("Controller: stats request for %s superseded", issued)
		case err != nil:
			c.Emit(EventStatsFailed, err)
		default:
			c.Emit(EventStatsReady, StatsUpdate{Params: issued, GroupAttribute: groupAttribute, Stats: stats})
		}
	}()
}

// Wait blocks until all background statistics requests have finished.
func (c *Controller) Wait() {
	c.inflight.Wait()
}

// Inspect reports the statistics of the regions containing p.
func (c *Controller) Inspect(ctx context.Context, set region.Set, p orb.Point, groupAttribute string) (Inspection, error) {
	hit := set.FilterBounds(p)
	if hit.Len() == 0 {
		return Inspection{}, nil
	}

	stats, err := c.ComputeStats(ctx, hit, "")
	if err != nil {
		return Inspection{}, err
	}
	group, _ := hit.Regions()[0].Attribute(groupAttribute)
	return Inspection{
		Found:   true,
		Group:   group,
		Regions: hit.Len(),
		Mean:    stats[zonal.KeyMean],
		Sum:     stats[zonal.KeySum],
	}, nil
}

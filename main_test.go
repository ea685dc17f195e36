package main

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"

	"habitat-value/internal/app"
	"habitat-value/internal/raster"
	"habitat-value/internal/reduce"
	"habitat-value/internal/region"
	"habitat-value/internal/zonal"
	"habitat-value/pkg/geometry"

	"github.com/paulmach/orb"
)

// lockedBuffer collects output written from listener goroutines.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func testSession(t *testing.T) (*session, *lockedBuffer) {
	t.Helper()
	suit, err := raster.Constant("suitability", 2, 2, 0.25, geometry.NorthUp(0, 2, 1))
	if err != nil {
		t.Fatalf("suitability: %v", err)
	}
	conn, err := raster.Constant("connectivity", 2, 2, 0.5, geometry.NorthUp(0, 2, 1))
	if err != nil {
		t.Fatalf("connectivity: %v", err)
	}
	ctrl, err := app.NewController(suit, conn, zonal.NewAggregator(reduce.Options{}, 1))
	if err != nil {
		t.Fatalf("controller: %v", err)
	}

	regions := region.NewSet(region.Region{
		Geometry:   orb.Polygon{{{0, 0}, {2, 0}, {2, 2}, {0, 2}, {0, 0}}},
		Attributes: map[string]any{"Type": "Proposed SMA"},
	})
	out := &lockedBuffer{}
	s := &session{ctrl: ctrl, regions: regions, groupAttribute: "Type", out: out}
	s.subscribe()
	return s, out
}

func TestSessionCommands(t *testing.T) {
	s, out := testSession(t)

	s.run(context.Background(), strings.NewReader("set connWeight 2\ncalc\ninspect 1 1\nbogus\nquit\nparams\n"))
	s.ctrl.Wait()

	got := out.String()
	for _, want := range []string{
		"surface updated:",
		"Linear (weight 2):",
		"Value of proposed SMAs = 5 (mean = 1.25)",
		"Proposed SMA value = 5 (mean = 1.25)",
		`error: unknown command "bogus"`,
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}

func TestSessionRejectsBadWeight(t *testing.T) {
	s, out := testSession(t)

	s.run(context.Background(), strings.NewReader("suit-weight -1\nsuit-weight x\nset bogus 1\nset suitWeight\n"))

	if n := strings.Count(out.String(), "error:"); n != 4 {
		t.Fatalf("errors = %d, want 4:\n%s", n, out.String())
	}
}

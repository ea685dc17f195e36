// Package main provides an interactive session for exploring habitat value
// surfaces.
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"habitat-value/internal/app"
	"habitat-value/internal/config"
	"habitat-value/internal/region"
	"habitat-value/internal/report"
	"habitat-value/internal/transform"
	"habitat-value/internal/version"

	"github.com/paulmach/orb"
)

const appTitle = "Habitat Value"

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Printf("Starting %s %s", appTitle, version.String())

	cfg := config.LoadFromEnv()
	ctx := context.Background()

	ctrl, in, err := app.NewSession(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to start session: %v", err)
	}

	s := &session{ctrl: ctrl, regions: in.Regions, groupAttribute: cfg.GroupAttribute, out: os.Stdout}
	s.subscribe()
	s.run(ctx, os.Stdin)
	ctrl.Wait()
}

// session drives a controller from text commands.
type session struct {
	ctrl           *app.Controller
	regions        region.Set
	groupAttribute string
	out            io.Writer
}

func (s *session) subscribe() {
	s.ctrl.On(app.EventSurfaceChanged, func(data interface{}) {
		u := data.(app.SurfaceUpdate)
		fmt.Fprintf(s.out, "surface updated: %s\n", u.Params)
	})
	s.ctrl.On(app.EventCurveChanged, func(data interface{}) {
		u := data.(app.CurveUpdate)
		s.printCurve(u.Mode, u.Weight, u.Points)
	})
	s.ctrl.On(app.EventStatsReady, func(data interface{}) {
		u := data.(app.StatsUpdate)
		if u.GroupAttribute == "" {
			fmt.Fprintln(s.out, report.TotalLine(u.Stats))
			return
		}
		for _, line := range report.GroupLines(u.Stats, report.DefaultLabels) {
			fmt.Fprintln(s.out, line)
		}
	})
	s.ctrl.On(app.EventStatsFailed, func(data interface{}) {
		fmt.Fprintf(s.out, "calculation failed: %v\n", data)
	})
}

func (s *session) run(ctx context.Context, r io.Reader) {
	fmt.Fprintln(s.out, "type 'help' for commands")
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if fields[0] == "quit" {
			return
		}
		if err := s.exec(ctx, fields[0], fields[1:]); err != nil {
			fmt.Fprintf(s.out, "error: %v\n", err)
		}
	}
	if err := scanner.Err(); err != nil {
		log.Printf("Session: reading commands: %v", err)
	}
}

func (s *session) exec(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "help":
		fmt.Fprintln(s.out, "suit-weight W | conn-weight W | suit-mode M | conn-mode M")
		fmt.Fprintln(s.out, "set suitWeight|connWeight|suitMode|connMode VALUE")
		fmt.Fprintln(s.out, "params | modes | calc | total | inspect X Y | quit")
	case "suit-weight", "conn-weight":
		w, err := floatArg(args, 0)
		if err != nil {
			return err
		}
		field := app.FieldSuitWeight
		if cmd == "conn-weight" {
			field = app.FieldConnWeight
		}
		return s.ctrl.OnParameterChange(ctx, app.WeightChange(field, w))
	case "suit-mode", "conn-mode":
		field := app.FieldSuitMode
		if cmd == "conn-mode" {
			field = app.FieldConnMode
		}
		return s.ctrl.OnParameterChange(ctx, app.ModeChange(field, strings.Join(args, " ")))
	case "set":
		if len(args) < 2 {
			return fmt.Errorf("usage: set FIELD VALUE")
		}
		field, err := app.ParseField(args[0])
		if err != nil {
			return err
		}
		if !field.IsWeight() {
			return s.ctrl.OnParameterChange(ctx, app.ModeChange(field, strings.Join(args[1:], " ")))
		}
		w, err := floatArg(args, 1)
		if err != nil {
			return err
		}
		return s.ctrl.OnParameterChange(ctx, app.WeightChange(field, w))
	case "params":
		fmt.Fprintln(s.out, s.ctrl.Params())
	case "modes":
		for _, m := range transform.Modes() {
			fmt.Fprintln(s.out, m)
		}
	case "calc":
		s.ctrl.RequestStats(s.regions, s.groupAttribute)
	case "total":
		s.ctrl.RequestStats(s.regions, "")
	case "inspect":
		x, err := floatArg(args, 0)
		if err != nil {
			return err
		}
		y, err := floatArg(args, 1)
		if err != nil {
			return err
		}
		in, err := s.ctrl.Inspect(ctx, s.regions, orb.Point{x, y}, s.groupAttribute)
		if err != nil {
			return err
		}
		if !in.Found {
			fmt.Fprintln(s.out, "no region at that location")
			return nil
		}
		fmt.Fprintln(s.out, report.Inspection(in.Group, in.Sum, in.Mean))
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
	return nil
}

// printCurve writes a coarse view of a value function.
func (s *session) printCurve(mode transform.Mode, weight float64, points []transform.Point) {
	fmt.Fprintf(s.out, "%s (weight %g):", mode, weight)
	for i := 0; i < len(points); i += 10 {
		fmt.Fprintf(s.out, " %.2f", points[i].Y)
	}
	fmt.Fprintln(s.out)
}

func floatArg(args []string, i int) (float64, error) {
	if i >= len(args) {
		return 0, fmt.Errorf("missing argument %d", i+1)
	}
	v, err := strconv.ParseFloat(args[i], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", args[i])
	}
	return v, nil
}

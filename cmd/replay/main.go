// Command replay runs a recorded session file through the run engine and
// prints the result, for tuning the filter and arrival radius offline.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/jakubwesta/mobile-orienteering-sub001/internal/checkpoint"
	"github.com/jakubwesta/mobile-orienteering-sub001/internal/location"
	"github.com/jakubwesta/mobile-orienteering-sub001/internal/run"
)

type sessionFile struct {
	MapName     string         `yaml:"map_name"`
	Checkpoints []controlEntry `yaml:"checkpoints" validate:"required,min=1,dive"`
	Fixes       []fixEntry     `yaml:"fixes" validate:"dive"`
}

type controlEntry struct {
	ID   string  `yaml:"id" validate:"required"`
	Name string  `yaml:"name"`
	Lat  float64 `yaml:"lat" validate:"gte=-90,lte=90"`
	Lng  float64 `yaml:"lng" validate:"gte=-180,lte=180"`
}

type fixEntry struct {
	Lat       float64   `yaml:"lat"`
	Lng       float64   `yaml:"lng"`
	AccuracyM float64   `yaml:"accuracy_m"`
	Time      time.Time `yaml:"time" validate:"required"`
}

type report struct {
	Summary run.Summary        `json:"summary"`
	Visits  []checkpoint.Visit `json:"visits"`
}

func main() {
	if err := replay(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}
}

func replay(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("replay", flag.ContinueOnError)
	fs.SetOutput(out)
	var (
		input    = fs.String("i", "", "Session file (YAML)")
		alpha    = fs.Float64("smoothing", location.DefaultSmoothingFactor, "Smoothing factor in (0,1]")
		maxAcc   = fs.Float64("max-accuracy", location.DefaultMaxAccuracyM, "Ignore fixes less accurate than this, meters")
		teleport = fs.Float64("teleport", location.DefaultTeleportThresholdM, "Reset the filter on jumps longer than this, meters")
		radius   = fs.Float64("radius", checkpoint.DefaultArrivalRadiusM, "Checkpoint arrival radius, meters")
		asJSON   = fs.Bool("json", false, "Print the report as JSON")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *input == "" {
		fs.Usage()
		return errors.New("-i is required")
	}

	session, err := loadSession(*input)
	if err != nil {
		return err
	}

	cfg := run.Config{
		Filter: location.FilterConfig{
			SmoothingFactor:    *alpha,
			MaxAccuracyM:       *maxAcc,
			TeleportThresholdM: *teleport,
		},
		ArrivalRadiusM: *radius,
	}
	final, err := simulate(cfg, session)
	if err != nil {
		return err
	}

	rep := report{Summary: final.Summary(), Visits: final.Visits}
	if *asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	}

	fmt.Fprintf(out, "map: %s\n", session.MapName)
	fmt.Fprintf(out, "distance: %.1f m\n", rep.Summary.DistanceM)
	fmt.Fprintf(out, "duration: %ds\n", rep.Summary.DurationSec)
	fmt.Fprintf(out, "checkpoints: %d/%d\n", rep.Summary.CheckpointsVisited, rep.Summary.CheckpointsTotal)
	for _, v := range rep.Visits {
		fmt.Fprintf(out, "  #%d %s (%s) at +%s\n", v.Index+1, v.Name, v.CheckpointID, v.VisitedAt.Sub(final.StartedAt))
	}
	if rep.Summary.Completed {
		fmt.Fprintln(out, "course completed")
	}
	return nil
}

func loadSession(path string) (sessionFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return sessionFile{}, err
	}
	var s sessionFile
	if err := yaml.Unmarshal(data, &s); err != nil {
		return sessionFile{}, err
	}
	if err := validator.New().Struct(s); err != nil {
		return sessionFile{}, err
	}
	return s, nil
}

// simulate drives an in-process engine whose clock follows the fix times, so
// elapsed time matches the recording rather than the replay.
func simulate(cfg run.Config, s sessionFile) (run.State, error) {
	var mu sync.Mutex
	now := time.Now()
	if len(s.Fixes) > 0 {
		now = s.Fixes[0].Time
	}
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	setClock := func(t time.Time) {
		mu.Lock()
		defer mu.Unlock()
		now = t
	}

	engine := run.NewEngine(cfg, run.WithClock(clock))
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		<-engine.Done()
	}()
	go func() { _ = engine.Run(ctx) }()

	course := run.Course{MapName: s.MapName}
	for _, c := range s.Checkpoints {
		course.Checkpoints = append(course.Checkpoints, checkpoint.Checkpoint{ID: c.ID, Name: c.Name, Lat: c.Lat, Lng: c.Lng})
	}
	if _, err := engine.Start(ctx, course); err != nil {
		return run.State{}, err
	}

	for _, f := range s.Fixes {
		setClock(f.Time)
		fix := location.RawFix{Lat: f.Lat, Lng: f.Lng, AccuracyM: f.AccuracyM, Time: f.Time}
		if err := engine.OnRawFix(ctx, fix); err != nil {
			return run.State{}, err
		}
	}
	return engine.Stop(ctx)
}

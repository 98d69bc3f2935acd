package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/gocarina/gocsv"

	"github.com/UBC-Solar/shellpower/internal/constants"
	"github.com/UBC-Solar/shellpower/internal/log"
	"github.com/UBC-Solar/shellpower/internal/scenario"
	"github.com/UBC-Solar/shellpower/internal/storage"
	"github.com/UBC-Solar/shellpower/pkg/astro"
	"github.com/UBC-Solar/shellpower/pkg/raster"
	"github.com/UBC-Solar/shellpower/pkg/simulator"
)

func main() {
	scenarioFile := flag.String("scenario", "scenario.json", "Path to the JSON scenario file")
	csvFile := flag.String("csv", "sweep.csv", "CSV output file path ('-' for stdout)")
	sqliteFile := flag.String("sqlite", "", "Optional SQLite database to store the sweep in")
	resolution := flag.Int("resolution", raster.DefaultResolution, "Render target resolution (pixels per side)")
	workers := flag.Int("workers", runtime.NumCPU(), "Concurrent simulation steps")
	debug := flag.Bool("debug", false, "Turn on debugging output")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("shellpower-sweep %s\n", constants.Version)
		os.Exit(0)
	}

	if err := log.Init(*debug); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	loaded, err := scenario.Load(*scenarioFile)
	if err != nil {
		log.Errorf("Failed to load scenario: %v", err)
		os.Exit(1)
	}
	sc := loaded.Scenario
	if sc.Start.IsZero() || sc.End.IsZero() || sc.StepMinutes <= 0 {
		log.Error("Scenario needs start, end and step_minutes for a sweep")
		os.Exit(1)
	}

	points := sweepPoints(loaded)
	log.Infof("Sweeping %s → %s every %d min: %d steps, %d workers",
		sc.Start.Format(time.RFC3339), sc.End.Format(time.RFC3339), sc.StepMinutes, len(points), *workers)

	sim, err := simulator.New(simulator.Config{
		Raster: raster.Config{Resolution: *resolution},
	}, log.GetSugaredLogger())
	if err != nil {
		log.Errorf("Failed to set up simulator: %v", err)
		os.Exit(1)
	}

	start := time.Now()
	result, err := sim.Sweep(context.Background(), loaded.Input, points, *workers)
	if err != nil {
		log.Errorf("Sweep failed: %v", err)
		os.Exit(1)
	}
	log.Infof("Sweep finished in %s: average %.1f W output, %.1f W insolation",
		time.Since(start).Round(time.Millisecond), result.AveragePower, result.AverageInsolation)

	if err := writeCSV(*csvFile, result); err != nil {
		log.Errorf("Failed to write CSV: %v", err)
		os.Exit(1)
	}

	if *sqliteFile != "" {
		client, err := storage.Open(*sqliteFile)
		if err != nil {
			log.Errorf("Failed to open results database: %v", err)
			os.Exit(1)
		}
		if err := client.SaveSweep(result); err != nil {
			log.Errorf("Failed to store sweep: %v", err)
			os.Exit(1)
		}
		log.Infof("Stored %d rows in %s", len(result.Rows), *sqliteFile)
	}
}

// sweepPoints samples the scenario's time window, computing the sun direction
// for each instant. Below-horizon instants keep a zero direction so the sweep
// records them as night samples.
func sweepPoints(loaded *scenario.Loaded) []simulator.SweepPoint {
	sc := loaded.Scenario
	step := time.Duration(sc.StepMinutes) * time.Minute

	var points []simulator.SweepPoint
	for t := sc.Start; !t.After(sc.End); t = t.Add(step) {
		points = append(points, simulator.SweepPoint{
			Time:               t,
			SunDirection:       astro.SunDirection(t, loaded.Observer, sc.HeadingDeg, sc.TiltDeg),
			Insolation:         sc.Insolation,
			IndirectIrradiance: sc.IndirectIrradiance,
			Temperature:        sc.Temperature,
		})
	}
	return points
}

func writeCSV(path string, result *simulator.SweepResult) error {
	if path == "-" {
		return gocsv.Marshal(&result.Rows, os.Stdout)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := gocsv.Marshal(&result.Rows, f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

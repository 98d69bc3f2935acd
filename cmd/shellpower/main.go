package main

import (
	"context"
	"flag"
	"fmt"
	"image/png"
	"os"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/UBC-Solar/shellpower/internal/constants"
	"github.com/UBC-Solar/shellpower/internal/log"
	"github.com/UBC-Solar/shellpower/internal/scenario"
	"github.com/UBC-Solar/shellpower/pkg/astro"
	"github.com/UBC-Solar/shellpower/pkg/raster"
	"github.com/UBC-Solar/shellpower/pkg/simulator"
)

func main() {
	scenarioFile := flag.String("scenario", "scenario.json", "Path to the JSON scenario file")
	timeStr := flag.String("time", "", "UTC time of the step (RFC3339, e.g. 2024-07-01T19:30:00Z); defaults to now")
	resolution := flag.Int("resolution", raster.DefaultResolution, "Render target resolution (pixels per side)")
	overlay := flag.String("overlay", "", "Optional PNG path for the sun's-eye cell overlay")
	debug := flag.Bool("debug", false, "Turn on debugging output")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("shellpower %s\n", constants.Version)
		os.Exit(0)
	}

	if err := log.Init(*debug); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	t := time.Now().UTC()
	if *timeStr != "" {
		var err error
		t, err = time.Parse(time.RFC3339, *timeStr)
		if err != nil {
			log.Errorf("Error parsing -time: %v", err)
			os.Exit(1)
		}
	}

	loaded, err := scenario.Load(*scenarioFile)
	if err != nil {
		log.Errorf("Failed to load scenario: %v", err)
		os.Exit(1)
	}
	sc := loaded.Scenario
	log.Infof("Loaded scenario %s: %d strings, %d cells, mesh %s",
		*scenarioFile, len(loaded.Input.Array.Strings), loaded.Input.Array.CellCount(), sc.MeshFile)

	sun := astro.SunDirection(t, loaded.Observer, sc.HeadingDeg, sc.TiltDeg)
	if sun == (r3.Vec{}) {
		fmt.Printf("Sun is below the horizon at %s for %.4f,%.4f\n",
			t.Format(time.RFC3339), sc.Latitude, sc.Longitude)
		os.Exit(0)
	}

	sim, err := simulator.New(simulator.Config{
		Raster: raster.Config{Resolution: *resolution},
	}, log.GetSugaredLogger())
	if err != nil {
		log.Errorf("Failed to set up simulator: %v", err)
		os.Exit(1)
	}

	in := *loaded.Input
	in.SunDirection = sun

	out, err := sim.Simulate(context.Background(), &in)
	if err != nil {
		log.Errorf("Simulation failed: %v", err)
		os.Exit(1)
	}

	alt, az := astro.SunAltAz(t, loaded.Observer)
	fmt.Printf("Step at %s\n", t.Format(time.RFC3339))
	fmt.Printf("  Sun:          %.1f° altitude, %.1f° azimuth\n", alt, az)
	fmt.Printf("  Incoming:     %.1f W over %.3f m² lit cell area\n", out.WattsIn, out.ArrayLitArea)
	fmt.Printf("  Array output: %.1f W\n", out.ArrayPower)
	for _, str := range out.Strings {
		fmt.Printf("  %-12s %7.1f W at MPP (%.2f V × %.2f A, FF %.3f)\n",
			str.Name+":", str.Trace.Pmp, str.Trace.Vmp, str.Trace.Imp, str.Trace.FillFactor)
	}
	if out.UnlinkedWatts > 0 {
		fmt.Printf("  Warning: %.1f W on texels linked to no cell\n", out.UnlinkedWatts)
	}

	if *overlay != "" {
		if err := writeOverlay(*overlay, sim); err != nil {
			log.Errorf("Failed to write overlay: %v", err)
			os.Exit(1)
		}
		log.Infof("Wrote overlay image to %s", *overlay)
	}
}

func writeOverlay(path string, sim *simulator.Simulator) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, sim.Rasterizer().ColorImage()); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Package scenario assembles a simulation input from a scenario file: the
// parameter record, the STL body mesh, and the decoded cell layout image.
package scenario

import (
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"

	"github.com/UBC-Solar/shellpower/pkg/astro"
	"github.com/UBC-Solar/shellpower/pkg/layout"
	"github.com/UBC-Solar/shellpower/pkg/meshio"
	"github.com/UBC-Solar/shellpower/pkg/params"
	"github.com/UBC-Solar/shellpower/pkg/simulator"
)

// Loaded bundles everything a CLI needs to run steps of one scenario.
type Loaded struct {
	Scenario *params.Scenario
	Observer astro.Observer

	// Input carries the mesh, layout and electrical parameters. SunDirection
	// and Insolation are zero; callers set them per step.
	Input *simulator.Input
}

// Load reads a scenario file and its referenced mesh and layout assets.
// Relative asset paths resolve against the scenario file's directory.
func Load(path string) (*Loaded, error) {
	sc, err := params.Load(path)
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(path)

	mesh, err := meshio.LoadSTL(resolve(dir, sc.MeshFile))
	if err != nil {
		return nil, err
	}

	arr, err := loadLayout(resolve(dir, sc.LayoutFile), sc)
	if err != nil {
		return nil, err
	}

	return &Loaded{
		Scenario: sc,
		Observer: astro.Observer{Latitude: sc.Latitude, Longitude: sc.Longitude},
		Input: &simulator.Input{
			Mesh:               mesh,
			Array:              arr,
			CellSpec:           sc.Cell.CellSpec(),
			DiodeSpec:          sc.Diode.DiodeSpec(),
			Insolation:         sc.Insolation,
			IndirectIrradiance: sc.IndirectIrradiance,
			Temperature:        sc.Temperature,
			EncapsulationLoss:  sc.EncapsulationLoss,
		},
	}, nil
}

func resolve(dir, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}

// loadLayout decodes the layout image into strings and cells and attaches the
// scenario's bounds and bypass-diode placements.
func loadLayout(path string, sc *params.Scenario) (*layout.Array, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening layout image: %w", err)
	}
	defer f.Close()

	img, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	rgba, ok := img.(*image.RGBA)
	if !ok {
		rgba = image.NewRGBA(img.Bounds())
		draw.Draw(rgba, rgba.Bounds(), img, img.Bounds().Min, draw.Src)
	}

	strings, err := layout.Decode(rgba)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	for _, str := range strings {
		for _, span := range sc.BypassDiodes[str.Name] {
			if span[1] >= len(str.Cells) {
				return nil, fmt.Errorf("%s: bypass diode span [%d,%d] exceeds the %d cells of %s",
					path, span[0], span[1], len(str.Cells), str.Name)
			}
			str.Diodes = append(str.Diodes, layout.BypassDiode{First: span[0], Last: span[1]})
		}
	}

	return &layout.Array{
		Strings: strings,
		Image:   rgba,
		Bounds:  sc.LayoutBounds,
	}, nil
}

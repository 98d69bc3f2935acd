// Package params loads and saves simulation scenarios as JSON, mapping 1:1
// onto the simulator's cell, diode and sweep inputs.
package params

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/UBC-Solar/shellpower/pkg/electrical"
	"github.com/UBC-Solar/shellpower/pkg/layout"
)

// Scenario is the on-disk parameter record for a simulation run.
type Scenario struct {
	// MeshFile is the path to the STL body mesh, coordinates in meters.
	MeshFile string `json:"mesh_file"`
	// LayoutFile is the path to the color-coded layout image.
	LayoutFile string `json:"layout_file"`

	// LayoutBounds is the model-space rectangle the layout image covers.
	LayoutBounds layout.Bounds `json:"layout_bounds"`

	// Latitude and Longitude locate the array; longitude is east-positive
	// degrees.
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	// HeadingDeg is the vehicle heading clockwise from true north.
	HeadingDeg float64 `json:"heading_deg"`
	// TiltDeg pitches the vehicle nose-up.
	TiltDeg float64 `json:"tilt_deg"`

	// Start and End bound a time-averaged sweep, RFC 3339 UTC.
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	// StepMinutes is the sweep sample spacing.
	StepMinutes int `json:"step_minutes"`

	// Insolation is the direct-beam irradiance, W/m²; IndirectIrradiance the
	// flat diffuse term added to every cell.
	Insolation         float64 `json:"insolation"`
	IndirectIrradiance float64 `json:"indirect_irradiance"`
	// Temperature is the cell temperature, °C.
	Temperature float64 `json:"temperature"`
	// EncapsulationLoss is the fractional encapsulation loss, [0, 1).
	EncapsulationLoss float64 `json:"encapsulation_loss"`

	Cell  CellParams  `json:"cell"`
	Diode DiodeParams `json:"diode"`

	// BypassDiodes maps a string name to the inclusive [first,last] cell-index
	// spans its bypass diodes protect. The layout image encodes cells and
	// wiring order but not diode placement, so it lives here.
	BypassDiodes map[string][][2]int `json:"bypass_diodes,omitempty"`
}

// CellParams mirrors electrical.CellSpec with JSON field names.
type CellParams struct {
	Isc0     float64 `json:"isc0_amps"`
	Voc0     float64 `json:"voc0_volts"`
	DIscDT   float64 `json:"disc_dt"`
	DVocDT   float64 `json:"dvoc_dt"`
	Ideality float64 `json:"ideality"`
	SeriesR  float64 `json:"series_resistance"`
	Area     float64 `json:"area_m2"`
}

// DiodeParams mirrors electrical.DiodeSpec.
type DiodeParams struct {
	VoltageDrop float64 `json:"voltage_drop"`
}

// CellSpec converts to the simulator's parameter type.
func (c CellParams) CellSpec() electrical.CellSpec {
	return electrical.CellSpec{
		Isc0:     c.Isc0,
		Voc0:     c.Voc0,
		DIscDT:   c.DIscDT,
		DVocDT:   c.DVocDT,
		Ideality: c.Ideality,
		SeriesR:  c.SeriesR,
		Area:     c.Area,
	}
}

// DiodeSpec converts to the simulator's parameter type.
func (d DiodeParams) DiodeSpec() electrical.DiodeSpec {
	return electrical.DiodeSpec{VoltageDrop: d.VoltageDrop}
}

// Load reads and validates a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario: %w", err)
	}
	var sc Scenario
	if err := json.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("parsing scenario %s: %w", path, err)
	}
	if err := sc.Validate(); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}
	return &sc, nil
}

// Save writes the scenario as indented JSON.
func (sc *Scenario) Save(path string) error {
	data, err := json.MarshalIndent(sc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0644)
}

// Validate checks fields the simulator cannot default sensibly.
func (sc *Scenario) Validate() error {
	if sc.MeshFile == "" {
		return fmt.Errorf("mesh_file is required")
	}
	if sc.LayoutFile == "" {
		return fmt.Errorf("layout_file is required")
	}
	if sc.LayoutBounds.MaxX <= sc.LayoutBounds.MinX || sc.LayoutBounds.MaxZ <= sc.LayoutBounds.MinZ {
		return fmt.Errorf("layout_bounds rectangle is empty")
	}
	if err := sc.Cell.CellSpec().Validate(); err != nil {
		return err
	}
	if err := sc.Diode.DiodeSpec().Validate(); err != nil {
		return err
	}
	if sc.Latitude < -90 || sc.Latitude > 90 {
		return fmt.Errorf("latitude %g out of range", sc.Latitude)
	}
	if sc.Longitude < -180 || sc.Longitude > 180 {
		return fmt.Errorf("longitude %g out of range", sc.Longitude)
	}
	for name, spans := range sc.BypassDiodes {
		for _, span := range spans {
			if span[0] < 0 || span[1] < span[0] {
				return fmt.Errorf("bypass_diodes[%q]: bad span [%d,%d]", name, span[0], span[1])
			}
		}
	}
	if !sc.Start.IsZero() && !sc.End.IsZero() {
		if !sc.End.After(sc.Start) {
			return fmt.Errorf("sweep end %v is not after start %v", sc.End, sc.Start)
		}
		if sc.StepMinutes <= 0 {
			return fmt.Errorf("step_minutes must be positive for a sweep")
		}
	}
	return nil
}

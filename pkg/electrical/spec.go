// Package electrical implements the single-diode photovoltaic cell model and
// the series combination of cell IV curves under partial shading with
// bypass-diode clamping.
package electrical

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidParam indicates a non-physical cell parameter or operating
	// condition.
	ErrInvalidParam = errors.New("electrical: invalid parameter")

	// ErrNoConvergence indicates the implicit diode-equation solve failed to
	// reach tolerance within the iteration cap.
	ErrNoConvergence = errors.New("electrical: IV solve did not converge")
)

// CellSpec holds the physical parameters shared by all cells of an array,
// referenced to standard test conditions (1000 W/m², 25 °C).
type CellSpec struct {
	// Isc0 is the short-circuit current at standard conditions, A
	Isc0 float64
	// Voc0 is the open-circuit voltage at standard conditions, V
	Voc0 float64
	// DIscDT is the temperature coefficient of Isc, A/°C
	DIscDT float64
	// DVocDT is the temperature coefficient of Voc, V/°C
	DVocDT float64
	// Ideality is the diode ideality factor n, dimensionless, ≥ 1
	Ideality float64
	// SeriesR is the cell series resistance, Ω
	SeriesR float64
	// Area is the active cell area, m²
	Area float64
}

// Validate checks the spec for non-physical values.
func (s CellSpec) Validate() error {
	switch {
	case s.Isc0 <= 0:
		return fmt.Errorf("%w: Isc0 must be positive, got %g", ErrInvalidParam, s.Isc0)
	case s.Voc0 <= 0:
		return fmt.Errorf("%w: Voc0 must be positive, got %g", ErrInvalidParam, s.Voc0)
	case s.Ideality < 1:
		return fmt.Errorf("%w: ideality factor must be ≥ 1, got %g", ErrInvalidParam, s.Ideality)
	case s.SeriesR < 0:
		return fmt.Errorf("%w: series resistance must be non-negative, got %g", ErrInvalidParam, s.SeriesR)
	case s.Area <= 0:
		return fmt.Errorf("%w: cell area must be positive, got %g", ErrInvalidParam, s.Area)
	}
	return nil
}

// DiodeSpec holds the single forward voltage drop shared by all bypass
// diodes in the array.
type DiodeSpec struct {
	// VoltageDrop is the diode forward drop, V
	VoltageDrop float64
}

// Validate checks the spec for non-physical values.
func (s DiodeSpec) Validate() error {
	if s.VoltageDrop < 0 {
		return fmt.Errorf("%w: diode voltage drop must be non-negative, got %g", ErrInvalidParam, s.VoltageDrop)
	}
	return nil
}

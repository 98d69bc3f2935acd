package electrical

import (
	"fmt"
	"math"

	"github.com/UBC-Solar/shellpower/internal/constants"
)

const (
	// DefaultSweepSamples is the number of uniformly spaced voltage samples in
	// a cell IV sweep.
	DefaultSweepSamples = 200

	// solveTolerance is the relative current change below which the implicit
	// solve is considered converged.
	solveTolerance = 1e-6

	// solveMaxIterations caps the Newton iteration per voltage sample.
	solveMaxIterations = 100

	// minInsolation floors the irradiance used inside the logarithmic Voc
	// term so a fully shaded cell yields a degenerate near-zero trace instead
	// of log(0).
	minInsolation = 1e-3
)

// Isc returns the short-circuit current at insolation g (W/m²) and cell
// temperature t (°C): linear in irradiance, corrected linearly in
// temperature.
func (s CellSpec) Isc(g, t float64) float64 {
	isc := s.Isc0*(g/constants.StandardInsolation) + s.DIscDT*(t-constants.StandardTemperature)
	if isc < 0 {
		return 0
	}
	return isc
}

// ThermalVoltage returns n·k·T/q for cell temperature t in °C.
func (s CellSpec) ThermalVoltage(t float64) float64 {
	tK := t + constants.CelsiusToKelvin
	return s.Ideality * constants.Boltzmann * tK / constants.ElectronCharge
}

// Voc returns the open-circuit voltage at insolation g (W/m²) and cell
// temperature t (°C): logarithmic in irradiance, linear in temperature.
func (s CellSpec) Voc(g, t float64) float64 {
	if g < minInsolation {
		g = minInsolation
	}
	vt := s.ThermalVoltage(t)
	voc := s.Voc0 + s.DVocDT*(t-constants.StandardTemperature) + vt*math.Log(g/constants.StandardInsolation)
	if voc < 0 {
		return 0
	}
	return voc
}

// SweepIV computes the cell's IV curve at insolation g (W/m²) and cell
// temperature t (°C) with the given number of uniformly spaced voltage
// samples from 0 to Voc.
//
// The saturation current I0 is the unique value consistent with both sweep
// endpoints of the ideal diode equation, I0 = Isc / (exp(Voc/Vt) - 1). Each
// sample solves the implicit equation
//
//	I = Isc - I0·(exp((V + I·Rs)/Vt) - 1)
//
// by Newton iteration; a sample that fails to converge aborts the sweep with
// ErrNoConvergence rather than returning a stale value.
func (s CellSpec) SweepIV(g, t float64, samples int) (*IVTrace, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if g < 0 {
		return nil, fmt.Errorf("%w: insolation must be non-negative, got %g", ErrInvalidParam, g)
	}
	if samples < 2 {
		samples = DefaultSweepSamples
	}

	isc := s.Isc(g, t)
	voc := s.Voc(g, t)
	vt := s.ThermalVoltage(t)

	trace := &IVTrace{
		Voltages: make([]float64, samples),
		Currents: make([]float64, samples),
		Isc:      isc,
		Voc:      voc,
	}

	if isc <= 0 || voc <= 0 {
		// Fully dark cell: a flat zero curve.
		for k := 0; k < samples; k++ {
			trace.Voltages[k] = voc * float64(k) / float64(samples-1)
		}
		trace.deriveScalars()
		return trace, nil
	}

	i0 := isc / (math.Exp(voc/vt) - 1)

	i := isc
	for k := 0; k < samples; k++ {
		v := voc * float64(k) / float64(samples-1)
		var err error
		i, err = solveCurrent(v, i, isc, i0, s.SeriesR, vt)
		if err != nil {
			return nil, fmt.Errorf("sample %d (V=%.4f): %w", k, v, err)
		}
		trace.Voltages[k] = v
		trace.Currents[k] = i
	}

	// Pin the endpoints the curve was constructed from.
	trace.Currents[0] = isc
	trace.Currents[samples-1] = 0

	trace.deriveScalars()
	return trace, nil
}

// solveCurrent solves f(I) = Isc - I0·(exp((V + I·Rs)/Vt) - 1) - I = 0 by
// Newton iteration, seeded with the previous sample's current. f is strictly
// decreasing in I so the root is unique.
func solveCurrent(v, seed, isc, i0, rs, vt float64) (float64, error) {
	i := seed
	for iter := 0; iter < solveMaxIterations; iter++ {
		e := math.Exp((v + i*rs) / vt)
		f := isc - i0*(e-1) - i
		df := -i0*rs/vt*e - 1
		next := i - f/df
		if next < 0 {
			next = 0
		}
		if math.Abs(next-i) <= solveTolerance*math.Max(math.Abs(next), 1e-12) {
			return next, nil
		}
		i = next
	}
	return 0, fmt.Errorf("%w after %d iterations", ErrNoConvergence, solveMaxIterations)
}

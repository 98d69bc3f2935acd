package electrical

import (
	"fmt"
	"sort"
)

// SeriesDiode is a bypass diode spanning the contiguous cell-index run
// [First, Last] of a series string.
type SeriesDiode struct {
	First, Last int
}

// DefaultCombineSamples is the number of current samples used to resample the
// composite string curve between cell breakpoints.
const DefaultCombineSamples = 400

// CombineSeries folds per-cell IV traces, in wiring order, into one composite
// trace for the string.
//
// String current is the shared independent variable of a series circuit. At a
// candidate current each cell contributes its interpolated voltage; a cell
// whose short-circuit current is below the candidate is current-starved and
// contributes a deep reverse-bias voltage. A bypass diode clamps its run to
// -drop volts whenever the run's natural summed voltage is more negative than
// that, so one shaded cell costs the string a fixed diode drop instead of
// collapsing its current.
//
// The current axis sweeps the union of the cells' Isc breakpoints, finely
// resampled, and the composite scalars are derived from the resulting curve
// the same way as for a single cell.
func CombineSeries(traces []*IVTrace, diodes []SeriesDiode, drop float64, samples int) (*IVTrace, error) {
	if len(traces) == 0 {
		return nil, fmt.Errorf("%w: empty string", ErrInvalidParam)
	}
	for _, d := range diodes {
		if d.First < 0 || d.Last >= len(traces) || d.First > d.Last {
			return nil, fmt.Errorf("%w: bypass diode span [%d,%d] outside string of %d cells",
				ErrInvalidParam, d.First, d.Last, len(traces))
		}
	}
	if samples < 2 {
		samples = DefaultCombineSamples
	}

	currents := currentAxis(traces, samples)

	composite := &IVTrace{
		Voltages: make([]float64, len(currents)),
		Currents: currents,
	}

	for k, i := range currents {
		composite.Voltages[k] = stringVoltageAt(traces, diodes, drop, i)
	}

	composite.Voc = composite.Voltages[0] // I = 0
	composite.Isc = zeroCrossingCurrent(composite)
	composite.deriveScalars()
	return composite, nil
}

// currentAxis builds the sweep currents: every cell's Isc plus a fine uniform
// resampling up to the largest, sorted ascending and deduplicated.
func currentAxis(traces []*IVTrace, samples int) []float64 {
	var iMax float64
	for _, t := range traces {
		if t.Isc > iMax {
			iMax = t.Isc
		}
	}

	currents := make([]float64, 0, samples+len(traces))
	for k := 0; k < samples; k++ {
		currents = append(currents, iMax*float64(k)/float64(samples-1))
	}
	for _, t := range traces {
		currents = append(currents, t.Isc)
	}
	sort.Float64s(currents)

	dedup := currents[:1]
	for _, c := range currents[1:] {
		if c != dedup[len(dedup)-1] {
			dedup = append(dedup, c)
		}
	}
	return dedup
}

// stringVoltageAt sums cell voltages at string current i, left to right,
// substituting the diode clamp for any spanned run whose natural voltage has
// dropped past the diode's forward threshold.
func stringVoltageAt(traces []*IVTrace, diodes []SeriesDiode, drop float64, i float64) float64 {
	covered := make([]bool, len(traces))
	total := 0.0

	for _, d := range diodes {
		natural := 0.0
		for c := d.First; c <= d.Last; c++ {
			natural += traces[c].VoltageAt(i)
			covered[c] = true
		}
		if natural < -drop {
			total += -drop
		} else {
			total += natural
		}
	}

	for c, t := range traces {
		if !covered[c] {
			total += t.VoltageAt(i)
		}
	}
	return total
}

// zeroCrossingCurrent finds the string's short-circuit current: the current
// at which the composite voltage crosses zero, interpolated between the
// bracketing samples. A string whose voltage never goes negative is limited
// by its largest sampled current.
func zeroCrossingCurrent(t *IVTrace) float64 {
	for k := 1; k < len(t.Currents); k++ {
		v0, v1 := t.Voltages[k-1], t.Voltages[k]
		if v1 > 0 {
			continue
		}
		if v0 <= 0 {
			return t.Currents[k-1]
		}
		f := v0 / (v0 - v1)
		return t.Currents[k-1] + f*(t.Currents[k]-t.Currents[k-1])
	}
	return t.Currents[len(t.Currents)-1]
}

package electrical

// IVTrace is an ordered sample of a current-voltage curve plus the scalars
// derived from it. Traces are produced fresh each simulation step and are
// immutable once returned.
type IVTrace struct {
	// Voltages and Currents are parallel samples of the curve
	Voltages []float64
	Currents []float64

	// Isc is the short-circuit current, A
	Isc float64
	// Voc is the open-circuit voltage, V
	Voc float64
	// Imp and Vmp are the current and voltage at the maximum power point
	Imp, Vmp float64
	// Pmp is the maximum power, W
	Pmp float64
	// FillFactor is Pmp / (Isc · Voc)
	FillFactor float64
}

// deriveScalars fills in the max-power point and fill factor from the curve
// samples. Samples with negative voltage (reverse-biased string regions) do
// not participate in the power search.
func (t *IVTrace) deriveScalars() {
	t.Imp, t.Vmp, t.Pmp = 0, 0, 0
	for i, v := range t.Voltages {
		if v <= 0 {
			continue
		}
		if p := v * t.Currents[i]; p > t.Pmp {
			t.Pmp = p
			t.Vmp = v
			t.Imp = t.Currents[i]
		}
	}
	if t.Isc > 0 && t.Voc > 0 {
		t.FillFactor = t.Pmp / (t.Isc * t.Voc)
	} else {
		t.FillFactor = 0
	}
}

// VoltageAt returns the cell voltage at string current i by interpolating the
// trace. Currents beyond the cell's short-circuit current drive it into deep
// reverse bias; that regime is modeled by the constant reverseBiasVoltage,
// which is negative enough to trip any realistic bypass diode.
func (t *IVTrace) VoltageAt(i float64) float64 {
	if i <= 0 {
		return t.Voc
	}
	if i > t.Isc {
		return reverseBiasVoltage
	}
	// The sweep runs from V=0 (I=Isc) to V=Voc (I=0), so Currents is
	// monotonically decreasing. Binary search for the bracketing pair.
	lo, hi := 0, len(t.Currents)-1
	for hi-lo > 1 {
		mid := (lo + hi) / 2
		if t.Currents[mid] >= i {
			lo = mid
		} else {
			hi = mid
		}
	}
	i0, i1 := t.Currents[lo], t.Currents[hi]
	v0, v1 := t.Voltages[lo], t.Voltages[hi]
	if i0 == i1 {
		return v0
	}
	f := (i - i0) / (i1 - i0)
	return v0 + f*(v1-v0)
}

// reverseBiasVoltage stands in for the avalanche region of a current-starved
// cell. Its magnitude only needs to exceed any plausible bypass-diode drop.
const reverseBiasVoltage = -1000.0

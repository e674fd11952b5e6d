package cascade

// MaxModulation bounds the threshold shift any Modulation can produce.
const MaxModulation = 0.1

// Modulation is the bounded auxiliary context that may widen or narrow gate
// thresholds for one turn. Both fields are read as [0, 1].
type Modulation struct {
	Curiosity float64 `json:"curiosity"` // widens Gates 2-3
	Caution   float64 `json:"caution"`   // narrows every gate
}

// Delta returns the permissive shift in [-MaxModulation, MaxModulation].
// Positive loosens, negative tightens.
func (m Modulation) Delta() float64 {
	d := (unit(m.Curiosity) - unit(m.Caution)) * MaxModulation
	if d > MaxModulation {
		return MaxModulation
	}
	if d < -MaxModulation {
		return -MaxModulation
	}
	return d
}

// Tightening returns the conservative part of Delta, never positive. This is
// the only part Gate 1 sees.
func (m Modulation) Tightening() float64 {
	if d := m.Delta(); d < 0 {
		return d
	}
	return 0
}

func unit(v float64) float64 {
	if v != v || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

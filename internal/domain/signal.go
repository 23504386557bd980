package domain

// Signal identifies one derivative signal of an entry.
type Signal int

// Derivative signals in scoring order.
const (
	SignalPctVelocity Signal = iota
	SignalPctAcceleration
	SignalVolVelocity
	SignalVolAcceleration
)

// AllSignals lists every signal.
var AllSignals = []Signal{
	SignalPctVelocity,
	SignalPctAcceleration,
	SignalVolVelocity,
	SignalVolAcceleration,
}

// String returns the serialized signal name.
func (s Signal) String() string {
	switch s {
	case SignalPctVelocity:
		return "pctVelocity"
	case SignalPctAcceleration:
		return "pctAcceleration"
	case SignalVolVelocity:
		return "volVelocity"
	case SignalVolAcceleration:
		return "volAcceleration"
	default:
		return "unknown"
	}
}

// Field returns the snapshot field the signal is derived from.
func (s Signal) Field() Field {
	if s == SignalVolVelocity || s == SignalVolAcceleration {
		return FieldVolume
	}
	return FieldPctChange
}

// IsAcceleration reports whether the signal is a second derivative.
func (s Signal) IsAcceleration() bool {
	return s == SignalPctAcceleration || s == SignalVolAcceleration
}

// Kinetics holds one value per signal.
type Kinetics struct {
	PctVelocity     float64 `json:"pctVelocity"`
	PctAcceleration float64 `json:"pctAcceleration"`
	VolVelocity     float64 `json:"volVelocity"`
	VolAcceleration float64 `json:"volAcceleration"`
}

// Get returns the value of signal s.
func (k Kinetics) Get(s Signal) float64 {
	switch s {
	case SignalPctVelocity:
		return k.PctVelocity
	case SignalPctAcceleration:
		return k.PctAcceleration
	case SignalVolVelocity:
		return k.VolVelocity
	case SignalVolAcceleration:
		return k.VolAcceleration
	default:
		return 0
	}
}

// Set assigns the value of signal s.
func (k *Kinetics) Set(s Signal, v float64) {
	switch s {
	case SignalPctVelocity:
		k.PctVelocity = v
	case SignalPctAcceleration:
		k.PctAcceleration = v
	case SignalVolVelocity:
		k.VolVelocity = v
	case SignalVolAcceleration:
		k.VolAcceleration = v
	}
}

package inference

import (
	"strings"

	"github.com/couchcryptid/road-rainfall-speed/internal/domain"
)

// Conversion factors from the models' native miles per hour.
const (
	MPHToKPH = 1.60934
	MPHToMPS = 0.44704
)

// Unit is the speed unit of a prediction.
type Unit int

const (
	MPH Unit = iota
	KPH
	MPS
)

// Factor returns the multiplier from miles per hour to u.
func (u Unit) Factor() float64 {
	switch u {
	case KPH:
		return MPHToKPH
	case MPS:
		return MPHToMPS
	default:
		return 1
	}
}

func (u Unit) String() string {
	switch u {
	case KPH:
		return "kph"
	case MPS:
		return "mps"
	default:
		return "mph"
	}
}

// ParseUnit accepts mph, kph (or km/h) and mps (or m/s). Empty means mph.
func ParseUnit(s string) (Unit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "mph":
		return MPH, nil
	case "kph", "km/h", "kmh":
		return KPH, nil
	case "mps", "m/s":
		return MPS, nil
	default:
		return MPH, domain.NewValidationError("unit", s, "must be one of mph, kph, mps")
	}
}

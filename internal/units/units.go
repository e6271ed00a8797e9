// Package units converts radar velocities, which the module reports in metres
// per second, into display units.
package units

import (
	"fmt"
	"strings"
)

// Speed is a display unit for velocities.
type Speed string

// Supported speed units.
const (
	MPS  Speed = "mps"
	MPH  Speed = "mph"
	KMPH Speed = "kmph"
)

// ValidSpeeds lists every accepted unit name, aliases included.
var ValidSpeeds = []string{"mps", "mph", "kmph", "kph"}

// ParseSpeed parses a unit name. It is case-insensitive, accepts "kph" for
// KMPH and treats the empty string as MPS.
func ParseSpeed(s string) (Speed, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "mps", "m/s":
		return MPS, nil
	case "mph":
		return MPH, nil
	case "kmph", "kph", "km/h":
		return KMPH, nil
	default:
		return "", fmt.Errorf("unknown speed unit %q: expected one of %s", s, strings.Join(ValidSpeeds, ", "))
	}
}

// Convert converts a speed in metres per second to u.
func (u Speed) Convert(mps float64) float64 {
	switch u {
	case MPH:
		return mps * 2.2369362920544
	case KMPH:
		return mps * 3.6
	default:
		return mps
	}
}

// Symbol is the unit as printed after a value.
func (u Speed) Symbol() string {
	switch u {
	case MPH:
		return "mph"
	case KMPH:
		return "km/h"
	default:
		return "m/s"
	}
}

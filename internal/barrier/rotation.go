package barrier

import (
	"fmt"
	"math"
	"math/rand"
	"strings"
)

// RotationMode picks the sign of each barrier's rotation.
type RotationMode int

const (
	// RotateFixed gives every barrier the sign of the base speed.
	RotateFixed RotationMode = iota
	// RotateAlternating spins even handles with the base sign and odd handles against it.
	RotateAlternating
	// RotateRandom picks a sign per barrier from the random source.
	RotateRandom
)

func (m RotationMode) String() string {
	switch m {
	case RotateFixed:
		return "fixed"
	case RotateAlternating:
		return "alternating"
	case RotateRandom:
		return "random"
	default:
		return fmt.Sprintf("rotation(%d)", int(m))
	}
}

// ParseRotationMode resolves a rotation policy by name.
func ParseRotationMode(name string) (RotationMode, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "fixed", "":
		return RotateFixed, nil
	case "alternating", "alternating-by-index", "alternate":
		return RotateAlternating, nil
	case "random", "random-per-barrier":
		return RotateRandom, nil
	}
	return RotateFixed, fmt.Errorf("unknown rotation policy %q", name)
}

// RotationPolicy computes the signed rotation speed of new barriers.
type RotationPolicy struct {
	Mode RotationMode
	// Speed is the base rotation speed in degrees per second. Its sign is the base direction.
	Speed float64
	// Step is added to the magnitude for each handle, so outer rings can spin faster.
	Step float64
}

// SpeedFor returns the rotation speed for the barrier with the given handle.
func (p RotationPolicy) SpeedFor(h Handle, rng *rand.Rand) float64 {
	mag := math.Abs(p.Speed) + p.Step*float64(h)
	if mag < 0 {
		mag = 0
	}
	sign := 1.0
	if p.Speed < 0 {
		sign = -1
	}
	switch p.Mode {
	case RotateAlternating:
		if h%2 == 1 {
			sign = -sign
		}
	case RotateRandom:
		if rng != nil && rng.Intn(2) == 1 {
			sign = -sign
		}
	}
	return sign * mag
}

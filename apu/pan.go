package apu

import (
	"math"

	"github.com/kpax-audio/gbscore/score"
)

// Gains returns equal-power left/right gains for a normalized Pan value.
// Enum L/C/R map to -1/0/+1 before the same equal-power formula applies.
func Gains(p *score.Pan) (left, right float64) {
	if p == nil {
		return math.Sqrt2 / 2, math.Sqrt2 / 2
	}
	v := 0.0
	switch {
	case p.Numeric:
		v = p.Value
	case p.Enum == "L":
		v = -1
	case p.Enum == "R":
		v = 1
	default: // "C" or unset
		v = 0
	}
	if v < -1 {
		v = -1
	}
	if v > 1 {
		v = 1
	}
	angle := ((v + 1) / 2) * (math.Pi / 2)
	return math.Cos(angle), math.Sin(angle)
}

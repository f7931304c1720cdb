package apu

import "math"

// outputScale is the global headroom scale applied to every channel's raw
// output, per spec §4.4.
const outputScale = 0.6

// Sweep is a pulse1-only frequency sweep: time, direction, shift.
type Sweep struct {
	Time      int
	Direction string
	Shift     int
}

// PulseGen is a stateful GB pulse-channel generator, advanced one sample at
// a time via NextSample. A new PulseGen is constructed at each note onset;
// Sustain events keep advancing the same instance.
type PulseGen struct {
	duty  float64
	env   *envelopeState
	sweep *Sweep

	register     int
	silenced     bool
	phase        float64
	sweepElapsed float64
}

// NewPulseGen builds a pulse generator for a note at the given period
// register. sweep may be nil (pulse2 never sweeps).
func NewPulseGen(duty float64, env Envelope, sweep *Sweep, register int) *PulseGen {
	return &PulseGen{
		duty:     normalizeDuty(duty),
		env:      newEnvelopeState(env),
		sweep:    sweep,
		register: register,
	}
}

func normalizeDuty(d float64) float64 {
	if d > 1 {
		d /= 100
	}
	if d <= 0 {
		return 0.5
	}
	return d
}

// NextSample advances the generator by dt seconds and returns the next PCM
// sample in [-1, 1].
func (p *PulseGen) NextSample(dt float64) float64 {
	if p.silenced {
		return 0
	}

	if p.sweep != nil && p.sweep.Time > 0 {
		stepDur := float64(p.sweep.Time) / 128.0
		p.sweepElapsed += dt
		for p.sweepElapsed >= stepDur {
			p.sweepElapsed -= stepDur
			delta := p.register >> p.sweep.Shift
			if p.sweep.Direction == "down" {
				p.register -= delta
			} else {
				p.register += delta
			}
			if p.register < 0 || p.register > 2047 {
				p.silenced = true
				return 0
			}
		}
	}

	freq := FreqForRegister(p.register)
	p.phase += freq * dt
	p.phase -= math.Floor(p.phase)

	p.env.advance(dt)

	var sign float64 = -1
	if p.phase < p.duty {
		sign = 1
	}
	return sign * p.env.level() * outputScale
}

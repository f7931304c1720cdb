package apu

import "math"

// WaveGen is a stateful GB wavetable-channel generator. The table is 32
// nibbles (a 16-entry user table is duplicated by the score/instrument
// layer before it reaches here).
type WaveGen struct {
	table []int
	level float64
	phase float64
	freq  float64
}

// waveLevelFactor maps the wave channel's output-level register (one of
// 0, 25, 50, 100) to its gain factor.
func waveLevelFactor(level int) float64 {
	switch level {
	case 25:
		return 0.25
	case 50:
		return 0.5
	case 100:
		return 1.0
	default:
		return 0
	}
}

// NewWaveGen builds a wave generator for a note at the given register
// (converted to frequency) with an output level in {0,25,50,100}.
func NewWaveGen(table []int, level int, register int) *WaveGen {
	return &WaveGen{
		table: table,
		level: waveLevelFactor(level),
		freq:  FreqForRegister(register),
	}
}

// NextSample advances the generator by dt seconds and returns the next PCM
// sample in [-1, 1].
func (w *WaveGen) NextSample(dt float64) float64 {
	if len(w.table) == 0 {
		return 0
	}
	w.phase += w.freq * dt
	w.phase -= math.Floor(w.phase)

	idx := int(w.phase * float64(len(w.table)))
	if idx >= len(w.table) {
		idx = len(w.table) - 1
	}
	nibble := w.table[idx]
	sample := (float64(nibble)/15.0)*2 - 1
	return sample * w.level * outputScale
}

// Package apu implements the Game Boy Audio Processing Unit synth core
// (C4): note/frequency mapping, pulse/wave/noise sample generators, and
// the tick-driven PCM renderer shared by the WAV exporter and (indirectly,
// through the same note tables) the UGE writer.
package apu

import (
	"math"

	"github.com/kpax-audio/gbscore/notation"
)

// firstTableMidi is the note number of the lowest entry in periodTable:
// octave 3, semitone class C. The table spans 6 octaves (72 entries).
const firstTableMidi = 3 * 12

const tableSize = 72

// periodTable[i] is the 11-bit period register for note (firstTableMidi+i),
// quantized the way Game Boy hardware quantizes a continuous pitch to its
// nearest representable register value. Built once from the frequency
// formula in spec §4.4 rather than transcribed from a literal table.
var periodTable [tableSize]int

func init() {
	for i := 0; i < tableSize; i++ {
		f := freqForNoteNumber(firstTableMidi + i)
		periodTable[i] = registerForFreq(f)
	}
}

// freqForNoteNumber maps a note number to frequency using scientific pitch
// (note 57 = A4 = 440Hz, note 48 = C4 = middle C ~261.6Hz). Note numbers in
// this package run 12*octave + semitoneClass, giving C3 = 36 as named in
// spec §4.4.
func freqForNoteNumber(n int) float64 {
	return 440.0 * math.Pow(2, float64(n-57)/12.0)
}

// registerForFreq quantizes a frequency to its nearest 11-bit period
// register via f = 131072/(2048-p).
func registerForFreq(f float64) int {
	p := 2048 - int(math.Round(131072.0/f))
	if p < 0 {
		p = 0
	}
	if p > 2047 {
		p = 2047
	}
	return p
}

// FreqForRegister reconstructs frequency from an 11-bit period register.
func FreqForRegister(p int) float64 {
	if p >= 2048 {
		p = 2047
	}
	return 131072.0 / float64(2048-p)
}

// NoteNumber returns the note-number (12*octave + semitone class, C3=36)
// for a canonical or raw note token such as "C#4".
func NoteNumber(note string) (int, bool) {
	letterSharp, octave, ok := notation.Split(mustCanonical(note))
	if !ok {
		return 0, false
	}
	return octave*12 + notation.SemitoneOf(letterSharp), true
}

func mustCanonical(note string) string {
	if c, ok := notation.CanonicalNote(note); ok {
		return c
	}
	return note
}

// RegisterForNote returns the quantized period register for note, clamping
// out-of-table notes to the nearest valid octave. ok is false if note isn't
// a recognized note token at all.
func RegisterForNote(note string) (reg int, clamped bool, ok bool) {
	n, ok := NoteNumber(note)
	if !ok {
		return 0, false, false
	}
	idx := n - firstTableMidi
	clamped = false
	if idx < 0 {
		idx = 0
		clamped = true
	}
	if idx >= tableSize {
		idx = tableSize - 1
		clamped = true
	}
	return periodTable[idx], clamped, true
}

// UGENoteIndex computes the hUGETracker note index (midi-36, octave
// transposed into [0,72)). ok is false when the note can't be reached by
// any octave transposition (emit the empty-note sentinel in that case).
func UGENoteIndex(note string) (idx int, ok bool) {
	n, ok := NoteNumber(note)
	if !ok {
		return 0, false
	}
	idx = n - firstTableMidi
	for idx < 0 {
		idx += 12
	}
	for idx >= tableSize {
		idx -= 12
	}
	if idx < 0 || idx >= tableSize {
		return 0, false
	}
	return idx, true
}

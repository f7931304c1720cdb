// Package midi exports a Resolved Song to a Standard MIDI File (SMF
// Type-1), one track per channel, per spec §4.5.2.
package midi

import (
	"bytes"
	"fmt"
	"math"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/kpax-audio/gbscore/apu"
	"github.com/kpax-audio/gbscore/resolve"
)

// Options configures Export.
type Options struct {
	BPMOverride int
}

// ppq is the SMF time division: ticks per quarter note.
const ppq = 480

// percussionChannel is the GM-standard MIDI drum channel (0-indexed).
const percussionChannel = 9

// gmDefaults maps a GB instrument type to its GM program number fallback,
// used when the instrument carries no explicit `gm` override. noise has no
// entry: noise channels are routed to the percussion channel instead of
// getting a program change.
var gmDefaults = map[string]int{
	"pulse1": 80, // Lead 1 (square)
	"pulse2": 34, // Electric Bass (finger), standing in for the GB's duty-cycle second pulse
	"wave":   81, // Lead 2 (sawtooth)
}

// drumKeys maps a named hit's name to a GM percussion key; anything
// unrecognized falls back to 39 (Hand Clap).
var drumKeys = map[string]uint8{
	"snare": 38,
	"hihat": 42,
	"kick":  36,
}

const defaultDrumKey = 39

// Export renders song to SMF Type-1 bytes.
func Export(song *resolve.Song, opts Options) ([]byte, error) {
	bpm := song.BPM
	if opts.BPMOverride > 0 {
		bpm = opts.BPMOverride
	}
	if bpm <= 0 {
		return nil, fmt.Errorf("midi: invalid bpm %d", bpm)
	}

	s := smf.New()
	s.TimeFormat = smf.MetricTicks(ppq)

	var tempoTrack smf.Track
	tempoTrack.Add(0, smf.MetaTempo(float64(bpm)))
	tempoTrack.Close(0)
	if err := s.Add(tempoTrack); err != nil {
		return nil, fmt.Errorf("midi: add tempo track: %w", err)
	}

	for i, ch := range song.Channels {
		track, err := buildChannelTrack(song, ch, uint8(i%16))
		if err != nil {
			return nil, fmt.Errorf("midi: channel %d: %w", ch.ID, err)
		}
		if err := s.Add(track); err != nil {
			return nil, fmt.Errorf("midi: add channel %d track: %w", ch.ID, err)
		}
	}

	var out bytes.Buffer
	if _, err := s.WriteTo(&out); err != nil {
		return nil, fmt.Errorf("midi: write: %w", err)
	}
	return out.Bytes(), nil
}

type pendingNote struct {
	channel uint8
	key     uint8
	offTick uint32
}

// buildChannelTrack walks one resolved channel's event stream and emits a
// single SMF track, one quarter-token of PPQ/4 ticks per event.
func buildChannelTrack(song *resolve.Song, ch resolve.Channel, midiChannel uint8) (smf.Track, error) {
	var track smf.Track

	type timedMsg struct {
		tick uint32
		msg  midi.Message
	}
	var events []timedMsg
	add := func(tick uint32, msg midi.Message) {
		events = append(events, timedMsg{tick, msg})
	}

	speed := ch.Speed
	if speed <= 0 {
		speed = 1.0
	}
	ticksPerToken := uint32(math.Round(float64(ppq) / 4.0 / speed))
	if ticksPerToken < 1 {
		ticksPerToken = 1
	}

	isPercussion := false
	if inst, ok := song.Instruments[ch.DefaultInstrument]; ok && inst.Type == "noise" {
		isPercussion = true
	}

	channel := midiChannel
	if isPercussion {
		channel = percussionChannel
	} else {
		add(0, midi.ProgramChange(channel, gmProgramFor(song, ch.DefaultInstrument)))
	}

	var open *pendingNote
	loadedInstrument := ch.DefaultInstrument

	for i, ev := range ch.Events {
		tick := uint32(i) * ticksPerToken

		switch {
		case ev.IsRest():
			if open != nil {
				add(tick, midi.NoteOff(open.channel, open.key))
				open = nil
			}
		case ev.IsSustain():
			// keep the note held; nothing to emit.
		default:
			if open != nil {
				add(tick, midi.NoteOff(open.channel, open.key))
				open = nil
			}
			if note, ok := ev.AsNote(); ok {
				instName := note.Instrument
				if instName == "" {
					instName = loadedInstrument
				}
				key, ok := noteToMIDIKey(note.Pitch)
				if !ok {
					continue
				}
				noteChannel := channel
				if inst, ok := song.Instruments[instName]; ok && inst.Type == "noise" {
					noteChannel = percussionChannel
				} else if !isPercussion && instName != loadedInstrument {
					add(tick, midi.ProgramChange(channel, gmProgramFor(song, instName)))
				}
				loadedInstrument = instName
				add(tick, midi.NoteOn(noteChannel, key, 100))
				open = &pendingNote{channel: noteChannel, key: key}
				emitEffects(add, tick, noteChannel, note.Effects)
			} else if hit, ok := ev.AsNamedHit(); ok {
				key := drumKeys[hit.Name]
				if key == 0 {
					key = defaultDrumKey
				}
				add(tick, midi.NoteOn(percussionChannel, key, 100))
				add(tick+ticksPerToken-1, midi.NoteOff(percussionChannel, key))
			}
		}
	}

	endTick := uint32(len(ch.Events)) * ticksPerToken
	if open != nil {
		add(endTick, midi.NoteOff(open.channel, open.key))
	}

	var lastTick uint32
	for _, e := range events {
		if e.tick < lastTick {
			e.tick = lastTick
		}
		delta := e.tick - lastTick
		track.Add(delta, e.msg)
		lastTick = e.tick
	}
	if endTick < lastTick {
		endTick = lastTick
	}
	track.Close(endTick - lastTick)

	return track, nil
}

func gmProgramFor(song *resolve.Song, instrumentName string) uint8 {
	inst, ok := song.Instruments[instrumentName]
	if !ok {
		return 0
	}
	if inst.GM != nil {
		return uint8(*inst.GM)
	}
	if p, ok := gmDefaults[inst.Type]; ok {
		return uint8(p)
	}
	return 0
}

func noteToMIDIKey(pitch string) (uint8, bool) {
	n, ok := apu.NoteNumber(pitch)
	if !ok {
		return 0, false
	}
	// apu.NoteNumber runs 12*octave+semitone with C3=36 (spec §4.4's own
	// convention); standard MIDI runs the same scale offset by +12 (C3=48).
	key := n + 12
	if key < 0 || key > 127 {
		return 0, false
	}
	return uint8(key), true
}

// emitEffects writes text-meta fallbacks for effects with no direct SMF
// analogue (vib/port/trem), plus the two effects that do have one:
// volslide as CC#7 + text, bend as 14-bit pitch-wheel + text.
func emitEffects(add func(tick uint32, msg midi.Message), tick uint32, channel uint8, effects []resolve.Effect) {
	for _, eff := range effects {
		switch eff.Kind {
		case "vib", "port", "trem":
			add(tick, smf.MetaText(effectText(eff)))
		case "volslide":
			val := uint8(64)
			if len(eff.Params) > 0 && eff.Params[0].Numeric {
				val = clampCC(eff.Params[0].Num)
			}
			add(tick, midi.ControlChange(channel, 7, val))
			add(tick, smf.MetaText(effectText(eff)))
		case "bend":
			semis := 0.0
			if len(eff.Params) > 0 && eff.Params[0].Numeric {
				semis = eff.Params[0].Num
			}
			add(tick, midi.Pitchbend(channel, bendValue(semis)))
			add(tick, smf.MetaText(effectText(eff)))
		}
	}
}

func effectText(eff resolve.Effect) string {
	s := eff.Kind
	for _, p := range eff.Params {
		s += ":" + p.Raw
	}
	return s
}

func clampCC(v float64) uint8 {
	if v < 0 {
		v = 0
	}
	if v > 127 {
		v = 127
	}
	return uint8(v)
}

// bendValue maps semitones (nominal range +-2) to a 14-bit signed pitch
// wheel value centered at 0.
func bendValue(semitones float64) int16 {
	const nominalRange = 2.0
	v := (semitones / nominalRange) * 8191
	if v > 8191 {
		v = 8191
	}
	if v < -8192 {
		v = -8192
	}
	return int16(v)
}

package apu

import (
	"fmt"
	"math"

	"github.com/kpax-audio/gbscore/internal/comb"
	"github.com/kpax-audio/gbscore/resolve"
	"github.com/kpax-audio/gbscore/score"
)

// Generator is a stateful per-note sample source, advanced one sample at a
// time. PulseGen, WaveGen, and NoiseGen all satisfy it.
type Generator interface {
	NextSample(dt float64) float64
}

// RenderOptions configures RenderPCM.
type RenderOptions struct {
	SampleRate       int
	Channels         int // 1 or 2
	BPMOverride      int
	DurationOverride float64 // seconds; 0 = derive from the longest channel
	RenderChannels   []int   // whitelist of channel IDs; empty = all
	Normalize        bool
}

func (o RenderOptions) sampleRate() int {
	if o.SampleRate <= 0 {
		return 44100
	}
	return o.SampleRate
}

func (o RenderOptions) channels() int {
	if o.Channels != 1 && o.Channels != 2 {
		return 1
	}
	return o.Channels
}

// RenderPCM renders a Resolved Song to an interleaved float buffer in
// [-1, 1], per spec §4.4.
func RenderPCM(song *resolve.Song, opts RenderOptions) ([]float64, error) {
	bpm := song.BPM
	if opts.BPMOverride > 0 {
		bpm = opts.BPMOverride
	}
	if bpm <= 0 {
		return nil, fmt.Errorf("apu: invalid bpm %d", bpm)
	}
	baseTickSeconds := 60.0 / float64(bpm) / 4.0

	whitelist := channelWhitelist(opts.RenderChannels)

	maxDuration := 0.0
	for _, ch := range song.Channels {
		if !whitelist(ch.ID) {
			continue
		}
		d := float64(len(ch.Events)) * baseTickSeconds / channelSpeed(ch)
		if d > maxDuration {
			maxDuration = d
		}
	}
	if opts.DurationOverride > 0 {
		maxDuration = opts.DurationOverride
	}

	sampleRate := opts.sampleRate()
	totalSamples := int(math.Round(maxDuration * float64(sampleRate)))

	nch := opts.channels()
	buf := make([]float64, totalSamples*nch)

	for _, ch := range song.Channels {
		if !whitelist(ch.ID) {
			continue
		}
		tickSeconds := baseTickSeconds / channelSpeed(ch)
		numTicks := len(ch.Events)
		if opts.DurationOverride > 0 {
			numTicks = int(math.Ceil(opts.DurationOverride / tickSeconds))
		}
		renderChannel(song, ch, tickSeconds, sampleRate, numTicks, nch, totalSamples, buf)
	}

	applyEcho(song, buf, sampleRate, nch)

	normalizeBuf(buf, opts.Normalize)

	return buf, nil
}

func channelWhitelist(ids []int) func(int) bool {
	if len(ids) == 0 {
		return func(int) bool { return true }
	}
	set := map[int]bool{}
	for _, id := range ids {
		set[id] = true
	}
	return func(id int) bool { return set[id] }
}

// channelSpeed returns ch.Speed, defaulting to 1.0 for the zero value
// (unspecified speed never reaches Resolve with 0, but a direct caller
// building a Channel by hand might leave it unset).
func channelSpeed(ch resolve.Channel) float64 {
	if ch.Speed <= 0 {
		return 1.0
	}
	return ch.Speed
}

// renderChannel walks one channel's event stream tick by tick, building a
// fresh Generator at each note/named-hit onset (Sustain keeps advancing the
// prior instance) and mixing its output into buf with equal-power pan.
// tickSeconds is already scaled by the channel's speed multiplier, so a
// speed=2 channel advances through its own Events twice as fast as the
// song's base tick. numFrames bounds how many frames of buf exist, since
// faster channels can finish well inside a slower channel's duration.
func renderChannel(song *resolve.Song, ch resolve.Channel, tickSeconds float64, sampleRate, numTicks, nch, numFrames int, buf []float64) {
	var gen Generator
	var pan *score.Pan

	samplesSoFar := 0
	for tickIdx := 0; tickIdx < numTicks; tickIdx++ {
		target := int(math.Round(float64(tickIdx+1) * tickSeconds * float64(sampleRate)))
		if target > numFrames {
			target = numFrames
		}
		n := target - samplesSoFar
		samplesSoFar = target

		if tickIdx < len(ch.Events) {
			ev := ch.Events[tickIdx]
			switch {
			case ev.IsRest():
				gen = nil
				pan = nil
			case ev.IsSustain():
				// keep gen and pan as-is
			default:
				gen, pan = newGeneratorForEvent(song, ev)
			}
		}

		dt := 1.0 / float64(sampleRate)
		for s := 0; s < n; s++ {
			var sample float64
			if gen != nil {
				sample = gen.NextSample(dt)
			}
			idx := samplesSoFar - n + s
			mixInto(buf, idx, nch, sample, pan)
		}
	}
}

func mixInto(buf []float64, frame, nch int, sample float64, pan *score.Pan) {
	if nch == 1 {
		buf[frame] += sample
		return
	}
	l, r := Gains(pan)
	buf[frame*2] += sample * l
	buf[frame*2+1] += sample * r
}

func newGeneratorForEvent(song *resolve.Song, ev resolve.Event) (Generator, *score.Pan) {
	var instrumentName, pitch string
	var pan *score.Pan

	if note, ok := ev.AsNote(); ok {
		instrumentName, pitch, pan = note.Instrument, note.Pitch, note.Pan
	} else if hit, ok := ev.AsNamedHit(); ok {
		instrumentName, pitch = hit.Instrument, hit.DefaultNote
	} else {
		return nil, nil
	}

	inst, ok := song.Instruments[instrumentName]
	if !ok {
		return nil, pan
	}

	env := Envelope{Initial: 15, Direction: "down", Period: 0}
	if inst.Env != nil {
		env = Envelope{Initial: inst.Env.Initial, Direction: inst.Env.Direction, Period: inst.Env.Period}
	}

	if pan == nil {
		pan = inst.Pan
	}

	switch inst.Type {
	case "pulse1", "pulse2":
		if pitch == "" {
			pitch = "C4"
		}
		reg, _, ok := RegisterForNote(pitch)
		if !ok {
			return nil, pan
		}
		var sweep *Sweep
		if inst.Type == "pulse1" && inst.Sweep != nil {
			sweep = &Sweep{Time: inst.Sweep.Time, Direction: inst.Sweep.Direction, Shift: inst.Sweep.Shift}
		}
		return NewPulseGen(inst.Duty, env, sweep, reg), pan
	case "wave":
		if pitch == "" {
			pitch = "C4"
		}
		reg, _, ok := RegisterForNote(pitch)
		if !ok {
			return nil, pan
		}
		level := 100
		if inst.Volume != nil {
			level = *inst.Volume
		}
		return NewWaveGen(inst.Wave, level, reg), pan
	case "noise":
		width := inst.Width
		if width == 0 {
			width = 15
		}
		return NewNoiseGen(env, width, inst.Divisor, inst.Shift), pan
	default:
		return nil, pan
	}
}

// applyEcho runs the echo post-process over buf when any resolved effect
// requests it, using that effect's (delay, feedback, mix) parameters.
func applyEcho(song *resolve.Song, buf []float64, sampleRate, nch int) {
	for _, ch := range song.Channels {
		for _, ev := range ch.Events {
			note, ok := ev.AsNote()
			if !ok {
				continue
			}
			for _, eff := range note.Effects {
				if eff.Kind != "echo" {
					continue
				}
				delay, feedback, mix := 0.3, 0.4, 0.3
				if len(eff.Params) > 0 && eff.Params[0].Numeric {
					delay = eff.Params[0].Num
				}
				if len(eff.Params) > 1 && eff.Params[1].Numeric {
					feedback = eff.Params[1].Num
				}
				if len(eff.Params) > 2 && eff.Params[2].Numeric {
					mix = eff.Params[2].Num
				}
				comb.Echo(buf, sampleRate, nch, delay, feedback, mix)
				return
			}
		}
	}
}

// normalizeBuf scales buf's peak to 0.95 when normalize is true; otherwise
// it only scales down when the peak exceeds 1.0, preserving headroom
// rather than always normalizing quiet material up.
func normalizeBuf(buf []float64, normalize bool) {
	peak := 0.0
	for _, s := range buf {
		if a := math.Abs(s); a > peak {
			peak = a
		}
	}
	if peak == 0 {
		return
	}
	if normalize {
		scale := 0.95 / peak
		for i := range buf {
			buf[i] *= scale
		}
		return
	}
	if peak > 1.0 {
		scale := 0.95 / peak
		for i := range buf {
			buf[i] *= scale
		}
	}
}

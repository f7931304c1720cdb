// Package uge writes a Resolved Song as a hUGETracker v6 `.uge` binary, the
// hardest of the three exporters: no pack dependency speaks this format, so
// the writer is a hand-rolled encoding/binary struct dump in the teacher's
// own `mod.go` idiom (fixed-layout structs, written instead of read).
package uge

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/kpax-audio/gbscore/apu"
	"github.com/kpax-audio/gbscore/resolve"
	"github.com/kpax-audio/gbscore/score"
)

// Options configures Export.
type Options struct {
	BPMOverride int
	StrictGB    bool
}

const (
	ugeVersion      = 6
	slotsPerTable   = 15
	rowsPerPattern  = 64
	wavetableCount  = 16
	wavetableLen    = 32
	instrumentBytes = 1381
	routineCount    = 16

	emptyNoteSentinel = 90
	noVolumeChange    = 0x00005A00

	effectNone = 0
	effectVib  = 4
	effectPan  = 8

	instTypeDuty  = 0
	instTypeWave  = 1
	instTypeNoise = 2
)

// nr51 bit assignments per spec §4.5.3, indexed by hardware channel (0=Pulse1,
// 1=Pulse2, 2=Wave, 3=Noise).
var nr51Left = [4]byte{0x01, 0x02, 0x04, 0x08}
var nr51Right = [4]byte{0x10, 0x20, 0x40, 0x80}

// Export renders song to a `.uge` v6 byte stream.
func Export(song *resolve.Song, opts Options) ([]byte, error) {
	bpm := song.BPM
	if opts.BPMOverride > 0 {
		bpm = opts.BPMOverride
	}
	if bpm <= 0 {
		return nil, fmt.Errorf("uge: invalid bpm %d", bpm)
	}

	slots, err := classifyInstruments(song)
	if err != nil {
		return nil, err
	}

	byID, err := hardwareChannels(song)
	if err != nil {
		return nil, err
	}

	rows, err := buildRows(song, byID, slots, opts.StrictGB)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := writeHeader(&buf, song); err != nil {
		return nil, err
	}
	if err := writeInstrumentTables(&buf, slots); err != nil {
		return nil, fmt.Errorf("uge: instrument tables: %w", err)
	}
	if err := writeWavetables(&buf, slots); err != nil {
		return nil, fmt.Errorf("uge: wavetables: %w", err)
	}

	ticksPerRow := ticksPerRowForBPM(bpm)
	if err := binary.Write(&buf, binary.LittleEndian, uint32(ticksPerRow)); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.LittleEndian, uint8(0)); err != nil { // timer-based tempo disabled
		return nil, err
	}
	if err := binary.Write(&buf, binary.LittleEndian, uint32(0)); err != nil { // timer divider
		return nil, err
	}

	patterns, patternCounts, blankIdx := splitPatterns(rows)
	if err := writePatterns(&buf, patterns); err != nil {
		return nil, fmt.Errorf("uge: patterns: %w", err)
	}
	if err := writeOrderLists(&buf, patternCounts, blankIdx); err != nil {
		return nil, fmt.Errorf("uge: order lists: %w", err)
	}
	if err := writeRoutines(&buf); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// ticksPerRowForBPM implements E5: round(896/bpm) clamped to >= 1.
func ticksPerRowForBPM(bpm int) int {
	t := int(math.Round(896.0 / float64(bpm)))
	if t < 1 {
		t = 1
	}
	return t
}

func writeHeader(w *bytes.Buffer, song *resolve.Song) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(ugeVersion)); err != nil {
		return err
	}
	if err := writeShortString(w, song.Metadata.Name); err != nil {
		return err
	}
	if err := writeShortString(w, song.Metadata.Artist); err != nil {
		return err
	}
	return writeShortString(w, song.Metadata.Description)
}

// writeShortString writes a u8 length followed by a fixed 255-byte payload,
// per §4.5.3's "short-string" shape (used for header fields and instrument
// names alike).
func writeShortString(w *bytes.Buffer, s string) error {
	b := []byte(s)
	if len(b) > 255 {
		b = b[:255]
	}
	if err := binary.Write(w, binary.LittleEndian, uint8(len(b))); err != nil {
		return err
	}
	padded := make([]byte, 255)
	copy(padded, b)
	_, err := w.Write(padded)
	return err
}

// writePascalString writes a u32 length followed by exactly that many
// bytes, no NUL and no padding, for the routines section.
func writePascalString(w *bytes.Buffer, s string) error {
	b := []byte(s)
	if err := binary.Write(w, binary.LittleEndian, uint32(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func writeRoutines(w *bytes.Buffer) error {
	for i := 0; i < routineCount; i++ {
		if err := writePascalString(w, ""); err != nil {
			return err
		}
	}
	return nil
}

// instrumentSlots holds, for each of the three UGE instrument tables, the
// (at most 15) instrument names assigned a slot and a name->slot lookup.
type instrumentSlots struct {
	duty, wave, noise []string
	slot              map[string]int // 0-based, scoped within its own table
	kind              map[string]string
	byName            map[string]*score.Instrument
}

// classifyInstruments assigns each resolved instrument to the duty (pulse1
// + pulse2 share one table on real hardware), wave, or noise table, in
// InstrumentNames order, capped at 15 slots per table. Instruments beyond
// the cap are dropped from the tables; pattern cells referencing them fall
// back to "no instrument change".
func classifyInstruments(song *resolve.Song) (*instrumentSlots, error) {
	s := &instrumentSlots{slot: map[string]int{}, kind: map[string]string{}, byName: map[string]*score.Instrument{}}
	for _, name := range song.InstrumentNames {
		inst, ok := song.Instruments[name]
		if !ok {
			continue
		}
		s.byName[name] = inst
		switch inst.Type {
		case "pulse1", "pulse2":
			if len(s.duty) < slotsPerTable {
				s.slot[name] = len(s.duty)
				s.kind[name] = "duty"
				s.duty = append(s.duty, name)
			}
		case "wave":
			if len(s.wave) < slotsPerTable {
				s.slot[name] = len(s.wave)
				s.kind[name] = "wave"
				s.wave = append(s.wave, name)
			}
		case "noise":
			if len(s.noise) < slotsPerTable {
				s.slot[name] = len(s.noise)
				s.kind[name] = "noise"
				s.noise = append(s.noise, name)
			}
		}
	}
	return s, nil
}

// instrumentIndex returns the 1-based, table-relative cell reference for an
// instrument name (its slot within its own type's table, plus one), or 0
// ("no instrument change") if the instrument has no slot.
func (s *instrumentSlots) instrumentIndex(name string) uint32 {
	idx, ok := s.slot[name]
	if !ok {
		return 0
	}
	return uint32(idx + 1)
}

// instrumentParams is the type-specific fixed-size block within a
// TInstrumentV3 record, wide enough to hold the union of duty/wave/noise
// parameters with trailing reserved padding so every record is the same
// size regardless of instrument type.
type instrumentParams struct {
	Duty              uint8
	EnvelopeVolume    uint8
	EnvelopeDirection uint8
	EnvelopePeriod    uint8
	SweepTime         uint8
	SweepDirection    uint8
	SweepShift        uint8
	WaveIndex         uint8
	OutputLevel       uint8
	NoiseWidth        uint8
	NoiseDivisor      uint8
	NoiseShift        uint8
	Reserved          [85]byte
}

// subpatternRow is one row of an instrument's trailing 64-row subpattern.
// gbscore's resolver has no notion of per-instrument subpatterns (a
// source-language feature this spec doesn't expose), so every row is
// written empty; the bytes are still present per §4.5.3.
type subpatternRow struct {
	Note        uint32
	Instrument  uint32
	EffectCode  uint32
	EffectParam uint8
	_           [3]byte
}

func dutyCode(duty float64) uint8 {
	switch {
	case duty <= 0.125+0.01:
		return 0
	case duty <= 0.25+0.01:
		return 1
	case duty <= 0.5+0.01:
		return 2
	default:
		return 3
	}
}

func envDirectionCode(dir string) uint8 {
	if dir == "up" {
		return 1
	}
	return 0
}

func sweepDirectionCode(dir string) uint8 {
	if dir == "down" {
		return 1
	}
	return 0
}

func outputLevelCode(level int) uint8 {
	switch level {
	case 25:
		return 1
	case 50:
		return 2
	case 100:
		return 3
	default:
		return 0
	}
}

func widthCode(width int) uint8 {
	if width == 7 {
		return 1
	}
	return 0
}

func writeInstrumentRecord(w *bytes.Buffer, typ uint32, name string, inst *score.Instrument, waveIndex int) error {
	if err := binary.Write(w, binary.LittleEndian, typ); err != nil {
		return err
	}
	if err := writeShortString(w, name); err != nil {
		return err
	}

	var params instrumentParams
	if inst != nil {
		if inst.Env != nil {
			params.EnvelopeVolume = uint8(inst.Env.Initial)
			params.EnvelopeDirection = envDirectionCode(inst.Env.Direction)
			params.EnvelopePeriod = uint8(inst.Env.Period)
		}
		switch inst.Type {
		case "pulse1", "pulse2":
			params.Duty = dutyCode(inst.Duty)
			if inst.Sweep != nil {
				params.SweepTime = uint8(inst.Sweep.Time)
				params.SweepDirection = sweepDirectionCode(inst.Sweep.Direction)
				params.SweepShift = uint8(inst.Sweep.Shift)
			}
		case "wave":
			level := 100
			if inst.Volume != nil {
				level = *inst.Volume
			}
			params.OutputLevel = outputLevelCode(level)
			params.WaveIndex = uint8(waveIndex)
		case "noise":
			params.NoiseWidth = widthCode(inst.Width)
			params.NoiseDivisor = uint8(inst.Divisor)
			params.NoiseShift = uint8(inst.Shift)
		}
	}
	if err := binary.Write(w, binary.LittleEndian, params); err != nil {
		return err
	}

	var blank subpatternRow
	for i := 0; i < rowsPerPattern; i++ {
		if err := binary.Write(w, binary.LittleEndian, blank); err != nil {
			return err
		}
	}
	return nil
}

// writeInstrumentTables writes the three fixed-15-slot tables in order
// (duty, wave, noise), padding unused slots with blank records of the
// table's own type discriminator.
func writeInstrumentTables(w *bytes.Buffer, slots *instrumentSlots) error {
	write := func(names []string, typ uint32, kindName string) error {
		for i := 0; i < slotsPerTable; i++ {
			if i < len(names) {
				name := names[i]
				waveIdx := 0
				if kindName == "wave" {
					waveIdx = i
				}
				if err := writeInstrumentRecord(w, typ, name, slots.byName[name], waveIdx); err != nil {
					return err
				}
				continue
			}
			if err := writeInstrumentRecord(w, typ, "", nil, 0); err != nil {
				return err
			}
		}
		return nil
	}
	if err := write(slots.duty, instTypeDuty, "duty"); err != nil {
		return err
	}
	if err := write(slots.wave, instTypeWave, "wave"); err != nil {
		return err
	}
	return write(slots.noise, instTypeNoise, "noise")
}

func writeWavetables(w *bytes.Buffer, slots *instrumentSlots) error {
	tables := make([][]int, wavetableCount)
	for i := 0; i < len(slots.wave) && i < wavetableCount; i++ {
		inst := slots.byName[slots.wave[i]]
		if inst != nil {
			tables[i] = inst.Wave
		}
	}
	for _, t := range tables {
		row := make([]byte, wavetableLen)
		if len(t) == 16 {
			for i, v := range t {
				row[i] = clampNibble(v)
				row[i+16] = clampNibble(v)
			}
		} else {
			for i := 0; i < wavetableLen && i < len(t); i++ {
				row[i] = clampNibble(t[i])
			}
		}
		if _, err := w.Write(row); err != nil {
			return err
		}
	}
	return nil
}

func clampNibble(v int) byte {
	if v < 0 {
		v = 0
	}
	if v > 15 {
		v = 15
	}
	return byte(v)
}

// hardwareChannels maps each resolved channel's ID to a Game Boy hardware
// lane: 1=Pulse1, 2=Pulse2, 3=Wave, 4=Noise, the only IDs the resolver
// assigns (one `channel N` block per hardware channel per §4.1). Returns
// an index into rows/order-lists by resolved Channel slice position.
func hardwareChannels(song *resolve.Song) ([4]int, error) {
	var hw [4]int
	for i := range hw {
		hw[i] = -1
	}
	for i, ch := range song.Channels {
		if ch.ID < 1 || ch.ID > 4 {
			return hw, fmt.Errorf("uge: channel id %d out of range 1..4", ch.ID)
		}
		hw[ch.ID-1] = i
	}
	return hw, nil
}

// patternCell is the 17-byte wire record for one pattern row on one
// channel: Note, Instrument, Volume, EffectCode as u32 plus a trailing u8
// EffectParam, written in this exact field order with no padding.
type patternCell struct {
	Note        uint32
	Instrument  uint32
	Volume      uint32
	EffectCode  uint32
	EffectParam uint8
}

func blankCell() patternCell {
	return patternCell{Note: emptyNoteSentinel, Volume: noVolumeChange}
}

// resampleForSpeed maps a channel's own event stream onto the shared
// pattern-row grid that every hardware channel in a .uge file must share:
// hUGETracker has a single tempo, so a channel authored with speed>1 (its
// events advance faster than the song's base tick) compresses into fewer
// rows, and speed<1 stretches across extra rows filled with Sustain so it
// doesn't retrigger on rows that belong to the same source event.
func resampleForSpeed(events []resolve.Event, speed float64) []resolve.Event {
	if speed <= 0 {
		speed = 1.0
	}
	if speed == 1.0 {
		return events
	}
	n := len(events)
	if n == 0 {
		return events
	}
	outLen := int(math.Round(float64(n) / speed))
	if outLen < 1 {
		outLen = 1
	}
	out := make([]resolve.Event, outLen)
	lastSrc := -1
	for row := 0; row < outLen; row++ {
		src := int(float64(row) * speed)
		if src >= n {
			src = n - 1
		}
		if src == lastSrc {
			out[row] = resolve.NewSustainEvent()
		} else {
			out[row] = events[src]
		}
		lastSrc = src
	}
	return out
}

// buildRows computes, for each of the 4 hardware channels, one patternCell
// per resolved-score row (one row per token, matching the tick grid all
// channels share). Pan is resolved per note (note override, else
// instrument default, else center) and NR51 set-panning effects are woven
// in via a single chronological state machine shared across channels, per
// spec §4.5.3's "one-state tracker".
func buildRows(song *resolve.Song, hw [4]int, slots *instrumentSlots, strictGB bool) ([4][]patternCell, error) {
	var rows [4][]patternCell
	var panState [4]panBits
	for i := range panState {
		panState[i] = panBits{left: true, right: true}
	}

	var events [4][]resolve.Event
	for hwIdx, idx := range hw {
		if idx < 0 {
			continue
		}
		ch := song.Channels[idx]
		events[hwIdx] = resampleForSpeed(ch.Events, ch.Speed)
	}

	maxLen := 0
	for hwIdx := range hw {
		if hw[hwIdx] < 0 {
			continue
		}
		if n := len(events[hwIdx]); n > maxLen {
			maxLen = n
		}
	}

	for hwIdx := range rows {
		if hw[hwIdx] < 0 {
			continue
		}
		rows[hwIdx] = make([]patternCell, len(events[hwIdx]))
	}

	lastNr51 := -1
	for row := 0; row < maxLen; row++ {
		combined := byte(0)
		onsets := [4]bool{}
		notes := [4]*resolve.NotePayload{}
		hits := [4]*resolve.NamedHitPayload{}

		for hwIdx, chIdx := range hw {
			if chIdx < 0 || row >= len(events[hwIdx]) {
				continue
			}
			ev := events[hwIdx][row]
			onsets[hwIdx] = ev.SoundProducing()
			if note, ok := ev.AsNote(); ok {
				n := note
				notes[hwIdx] = &n
				resolved, err := resolvePan(song, hwIdx, note, strictGB)
				if err != nil {
					return rows, err
				}
				panState[hwIdx] = resolved
			} else if hit, ok := ev.AsNamedHit(); ok {
				h := hit
				hits[hwIdx] = &h
			}
			if panState[hwIdx].left {
				combined |= nr51Left[hwIdx]
			}
			if panState[hwIdx].right {
				combined |= nr51Right[hwIdx]
			}
		}

		panWriter := -1
		if int(combined) != lastNr51 {
			for hwIdx := 0; hwIdx < 4; hwIdx++ {
				if onsets[hwIdx] {
					panWriter = hwIdx
					break
				}
			}
			if panWriter >= 0 {
				lastNr51 = int(combined)
			}
		}

		for hwIdx, chIdx := range hw {
			if chIdx < 0 || row >= len(rows[hwIdx]) {
				continue
			}
			cell := blankCell()

			switch {
			case notes[hwIdx] != nil:
				note := notes[hwIdx]
				if idx, ok := apu.UGENoteIndex(note.Pitch); ok {
					cell.Note = uint32(idx)
				} else {
					cell.Note = emptyNoteSentinel
				}
				instName := note.Instrument
				if instName == "" {
					instName = song.Channels[chIdx].DefaultInstrument
				}
				cell.Instrument = slots.instrumentIndex(instName)
				if eff, ok := vibEffect(note.Effects); ok {
					cell.EffectCode = effectVib
					cell.EffectParam = eff
				}
			case hits[hwIdx] != nil:
				hit := hits[hwIdx]
				if idx, ok := apu.UGENoteIndex(hit.DefaultNote); ok {
					cell.Note = uint32(idx)
				} else {
					cell.Note = emptyNoteSentinel
				}
				cell.Instrument = slots.instrumentIndex(hit.Instrument)
			default:
				cell.Note = emptyNoteSentinel
			}

			if hwIdx == panWriter {
				cell.EffectCode = effectPan
				cell.EffectParam = combined
			}

			rows[hwIdx][row] = cell
		}
	}

	return rows, nil
}

type panBits struct {
	left, right bool
}

// resolvePan resolves a note's effective pan: explicit note pan, else the
// note's instrument pan, else center. strictGB rejects numeric
// pans outright; otherwise numeric values snap per spec (p<-0.33 -> L,
// p>0.33 -> R, else C).
func resolvePan(song *resolve.Song, hwIdx int, note resolve.NotePayload, strictGB bool) (panBits, error) {
	pan := note.Pan
	if pan == nil {
		if inst, ok := song.Instruments[note.Instrument]; ok {
			pan = inst.Pan
		}
	}
	if pan == nil {
		return panBits{left: true, right: true}, nil
	}
	if pan.Numeric {
		if strictGB {
			return panBits{}, fmt.Errorf("uge: strict-gb export rejects numeric pan %v on channel %d", pan.Value, hwIdx+1)
		}
		switch {
		case pan.Value < -0.33:
			return panBits{left: true}, nil
		case pan.Value > 0.33:
			return panBits{right: true}, nil
		default:
			return panBits{left: true, right: true}, nil
		}
	}
	switch pan.Enum {
	case "L":
		return panBits{left: true}, nil
	case "R":
		return panBits{right: true}, nil
	default:
		return panBits{left: true, right: true}, nil
	}
}

// vibEffect packs a `vib(depth,rate)` effect's first two numeric params
// into a single 4xy byte, each nibble clamped to [0,15].
func vibEffect(effects []resolve.Effect) (byte, bool) {
	for _, eff := range effects {
		if eff.Kind != "vib" {
			continue
		}
		depth, rate := 0, 0
		if len(eff.Params) > 0 && eff.Params[0].Numeric {
			depth = clampNibbleInt(int(eff.Params[0].Num))
		}
		if len(eff.Params) > 1 && eff.Params[1].Numeric {
			rate = clampNibbleInt(int(eff.Params[1].Num))
		}
		return byte(depth<<4 | rate), true
	}
	return 0, false
}

func clampNibbleInt(v int) int {
	if v < 0 {
		return 0
	}
	if v > 15 {
		return 15
	}
	return v
}

// splitPatterns chunks each hardware channel's rows into 64-row patterns
// (padding the final partial pattern with blank cells), numbers them
// sequentially across channels in hardware-channel order, and appends one
// shared blank pattern used to pad shorter channels' order lists.
func splitPatterns(rows [4][]patternCell) (patterns [][64]patternCell, counts [4]int, blankIdx int) {
	next := 0
	for hwIdx := 0; hwIdx < 4; hwIdx++ {
		chRows := rows[hwIdx]
		n := (len(chRows) + rowsPerPattern - 1) / rowsPerPattern
		counts[hwIdx] = n
		for p := 0; p < n; p++ {
			var pat [64]patternCell
			for r := 0; r < rowsPerPattern; r++ {
				i := p*rowsPerPattern + r
				if i < len(chRows) {
					pat[r] = chRows[i]
				} else {
					pat[r] = blankCell()
				}
			}
			patterns = append(patterns, pat)
			next++
		}
	}
	var blank [64]patternCell
	for i := range blank {
		blank[i] = blankCell()
	}
	patterns = append(patterns, blank)
	blankIdx = next
	return patterns, counts, blankIdx
}

func writePatterns(w *bytes.Buffer, patterns [][64]patternCell) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(patterns))); err != nil {
		return err
	}
	for i, pat := range patterns {
		if err := binary.Write(w, binary.LittleEndian, uint32(i)); err != nil {
			return err
		}
		for _, cell := range pat {
			if err := binary.Write(w, binary.LittleEndian, cell); err != nil {
				return err
			}
		}
	}
	return nil
}

// writeOrderLists writes the four hardware channels' pattern-order arrays,
// each u32-length-prefixed, length = max pattern count + 1 (the spec's
// off-by-one), padded beyond a channel's own pattern count with the shared
// blank pattern index, plus a trailing u32 0.
func writeOrderLists(w *bytes.Buffer, counts [4]int, blankIdx int) error {
	maxCount := 0
	for _, c := range counts {
		if c > maxCount {
			maxCount = c
		}
	}
	length := maxCount + 1

	base := 0
	for hwIdx := 0; hwIdx < 4; hwIdx++ {
		if err := binary.Write(w, binary.LittleEndian, uint32(length)); err != nil {
			return err
		}
		for i := 0; i < length; i++ {
			var idx uint32
			if i < counts[hwIdx] {
				idx = uint32(base + i)
			} else {
				idx = uint32(blankIdx)
			}
			if err := binary.Write(w, binary.LittleEndian, idx); err != nil {
				return err
			}
		}
		if err := binary.Write(w, binary.LittleEndian, uint32(0)); err != nil {
			return err
		}
		base += counts[hwIdx]
	}
	return nil
}

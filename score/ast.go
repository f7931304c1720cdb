// Package score implements the score parser (C1): it turns compact tracker
// source text into an Abstract Score, the structured representation
// consumed by the pattern expander and resolver.
package score

// Score is the Abstract Score: the parser's output. It is built once per
// source parse and is immutable thereafter.
type Score struct {
	Chip   string
	BPM    int
	Volume float64
	Play   PlayDirective
	Song   SongMeta

	PatternNames []string
	Patterns     map[string][]string

	SequenceNames []string
	Sequences     map[string][]string

	ArrangementNames []string
	Arrangements     map[string][]ArrangementRow

	InstrumentNames []string
	Instruments     map[string]*Instrument

	EffectPresetNames []string
	EffectPresets     map[string][]string

	Imports []string

	Channels []Channel
}

// PlayDirective captures the optional `play [auto] [repeat]` line.
type PlayDirective struct {
	Set    bool
	Auto   bool
	Repeat bool
}

// SongMeta holds the optional `song <key> "..."` metadata lines.
type SongMeta struct {
	Name        string
	Artist      string
	Description string
	Tags        []string
}

// Channel is a `channel <id> => ...` declaration.
type Channel struct {
	ID                int
	DefaultInstrument string
	Kind              string // "pat" or "seq"
	Refs              []string
	Speed             float64 // 0 means unset (caller defaults to 1.0)
	Line              int
}

// ArrangementRow is one row of an `arrange` block: up to four channel slot
// references plus an optional row-scoped instrument default.
type ArrangementRow struct {
	Slots       [4]string // empty string = omitted slot
	DefaultInst string
}

// Envelope is a GB volume envelope: initial volume 0..15, direction
// up|down, period 0..7.
type Envelope struct {
	Initial   int
	Direction string
	Period    int
}

// Sweep is a pulse1-only frequency sweep: time, direction, shift.
type Sweep struct {
	Time      int
	Direction string
	Shift     int
}

// Pan is a normalized pan value: either an enum (L/C/R) or a clamped
// number in [-1, +1].
type Pan struct {
	Enum      string // "L", "C", "R", or "" if numeric
	Numeric   bool
	Value     float64
}

// Instrument is an `inst NAME key=value ...` declaration.
type Instrument struct {
	Name    string
	Type    string // pulse1, pulse2, wave, noise
	Duty    float64
	Env     *Envelope
	Sweep   *Sweep
	Wave    []int
	Width   int
	Divisor int
	Shift   int
	Volume  *int // wave output level: 0, 25, 50, 100
	Pan     *Pan
	Note    string // default pitch for named-hit instruments
	GM      *int   // MIDI program hint
	Line    int
}

// Warning is a non-fatal diagnostic collected alongside a successful parse
// or resolve.
type Warning struct {
	Line    int
	Col     int
	Message string
}

func (w Warning) String() string {
	return formatDiagnostic(w.Line, w.Col, "warning", w.Message)
}

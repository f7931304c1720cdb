// Package resolve implements the resolver (C3): it walks an Abstract
// Score's per-channel token streams, expanding sequence/pattern references
// (delegating grouping and modifier application to expand) and resolving
// instrument/pan/effect state, to produce a Resolved Song — a flat,
// immutable, typed event stream per channel.
package resolve

import (
	"encoding/json"

	"github.com/kpax-audio/gbscore/score"
)

// Song is the Resolved Song: the resolver's output. Exporters and the APU
// renderer consume it read-only.
type Song struct {
	Chip     string
	BPM      int
	Volume   float64
	Play     score.PlayDirective
	Metadata score.SongMeta

	InstrumentNames []string
	Instruments     map[string]*score.Instrument

	Channels []Channel
}

// Channel is one resolved channel: a flat, tick-ordered event stream.
type Channel struct {
	ID                int
	Speed             float64
	DefaultInstrument string
	Events            []Event
}

// EventKind discriminates the ChannelEvent sum type described in spec §3.
type EventKind int

const (
	EventNote EventKind = iota
	EventRest
	EventSustain
	EventNamedHit
)

func (k EventKind) String() string {
	switch k {
	case EventNote:
		return "Note"
	case EventRest:
		return "Rest"
	case EventSustain:
		return "Sustain"
	case EventNamedHit:
		return "NamedHit"
	default:
		return "Unknown"
	}
}

// NotePayload is the data carried by an EventNote.
type NotePayload struct {
	Pitch      string
	Instrument string
	Pan        *score.Pan
	Effects    []Effect
	Legato     bool
}

// NamedHitPayload is the data carried by an EventNamedHit.
type NamedHitPayload struct {
	Name        string
	Instrument  string
	DefaultNote string
}

// Event is a tagged sum type: exactly one of note/namedHit is meaningful,
// selected by kind. Accessor methods replace type switches at call sites.
type Event struct {
	kind     EventKind
	note     NotePayload
	namedHit NamedHitPayload
}

func NewNoteEvent(p NotePayload) Event         { return Event{kind: EventNote, note: p} }
func NewRestEvent() Event                      { return Event{kind: EventRest} }
func NewSustainEvent() Event                   { return Event{kind: EventSustain} }
func NewNamedHitEvent(p NamedHitPayload) Event { return Event{kind: EventNamedHit, namedHit: p} }

// Kind reports which variant this event is.
func (e Event) Kind() EventKind { return e.kind }

// AsNote returns the note payload and true if this event is an EventNote.
func (e Event) AsNote() (NotePayload, bool) {
	if e.kind != EventNote {
		return NotePayload{}, false
	}
	return e.note, true
}

// AsNamedHit returns the named-hit payload and true if this event is an
// EventNamedHit.
func (e Event) AsNamedHit() (NamedHitPayload, bool) {
	if e.kind != EventNamedHit {
		return NamedHitPayload{}, false
	}
	return e.namedHit, true
}

// IsRest reports whether this event is an EventRest.
func (e Event) IsRest() bool { return e.kind == EventRest }

// IsSustain reports whether this event is an EventSustain.
func (e Event) IsSustain() bool { return e.kind == EventSustain }

// SoundProducing reports whether this event represents an actual sound
// (Note or NamedHit), as opposed to Rest/Sustain — the distinction the
// temp-instrument counter and UGE note-onset tracking both key off of.
func (e Event) SoundProducing() bool { return e.kind == EventNote || e.kind == EventNamedHit }

// eventJSON is Event's wire shape: the discriminant plus whichever payload
// applies, the rest omitted.
type eventJSON struct {
	Kind     string           `json:"kind"`
	Note     *NotePayload     `json:"note,omitempty"`
	NamedHit *NamedHitPayload `json:"namedHit,omitempty"`
}

// MarshalJSON exposes the tagged-union shape (kind + payload) instead of
// the unexported kind/note/namedHit fields, for export/jsonexport.
func (e Event) MarshalJSON() ([]byte, error) {
	out := eventJSON{Kind: e.kind.String()}
	switch e.kind {
	case EventNote:
		out.Note = &e.note
	case EventNamedHit:
		out.NamedHit = &e.namedHit
	}
	return json.Marshal(out)
}

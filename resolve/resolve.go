package resolve

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	clone "github.com/huandu/go-clone/generic"

	"github.com/kpax-audio/gbscore/expand"
	"github.com/kpax-audio/gbscore/notation"
	"github.com/kpax-audio/gbscore/score"
)

var (
	instRe         = regexp.MustCompile(`^inst\(([^,()]+)(?:,\s*(-?\d+))?\)$`)
	hitRe          = regexp.MustCompile(`^hit\(([^,()]+),\s*(-?\d+)\)$`)
	panRe          = regexp.MustCompile(`^pan\(([^()]*)\)$`)
	effectSuffixRe = regexp.MustCompile(`^(.+)<([^<>]*)>$`)
)

// Resolve walks sc's channel declarations and produces a Resolved Song.
// Instrument tables are deep-cloned so the returned Song shares no mutable
// state with sc.
func Resolve(sc *score.Score) (*Song, []score.Warning, error) {
	var warnings []score.Warning
	warn := func(line int, format string, args ...any) {
		warnings = append(warnings, score.Warning{Line: line, Message: fmt.Sprintf(format, args...)})
	}

	song := &Song{
		Chip:            sc.Chip,
		BPM:             sc.BPM,
		Volume:          sc.Volume,
		Play:            sc.Play,
		Metadata:        sc.Song,
		InstrumentNames: append([]string(nil), sc.InstrumentNames...),
		Instruments:     clone.Clone(sc.Instruments),
	}

	channelTokens := map[int][]string{}
	channelMeta := map[int]score.Channel{}
	for _, ch := range sc.Channels {
		toks, err := resolveChannelRefs(sc, ch.Refs)
		if err != nil {
			return nil, warnings, err
		}
		channelTokens[ch.ID] = toks
		channelMeta[ch.ID] = ch
	}

	if err := expandArrangements(sc, channelTokens); err != nil {
		return nil, warnings, err
	}

	ids := make([]int, 0, len(channelTokens))
	for id := range channelTokens {
		ids = append(ids, id)
	}
	sortInts(ids)

	for _, id := range ids {
		meta := channelMeta[id]
		speed := meta.Speed
		if speed == 0 {
			speed = 1.0
		}
		events, err := walkChannel(sc, id, meta.DefaultInstrument, channelTokens[id], warn)
		if err != nil {
			return nil, warnings, err
		}
		song.Channels = append(song.Channels, Channel{
			ID:                id,
			Speed:             speed,
			DefaultInstrument: meta.DefaultInstrument,
			Events:            events,
		})
	}

	return song, warnings, nil
}

func sortInts(s []int) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

// resolveChannelRefs expands a channel declaration's ref list (one or more
// pattern/sequence names, each possibly carrying colon modifiers) into a
// single flat token stream.
func resolveChannelRefs(sc *score.Score, refs []string) ([]string, error) {
	var out []string
	for _, ref := range refs {
		name, mods := score.SplitRef(ref)
		toks, err := expandRef(sc, name, mods, map[string]bool{})
		if err != nil {
			return nil, err
		}
		out = append(out, toks...)
	}
	return out, nil
}

// expandRef resolves name first against sequences, then patterns, else
// treats it as a literal token — per §4.2's sequence-expansion rule —
// applying mods via the pattern expander and detecting reference cycles
// with a per-traversal visiting set.
func expandRef(sc *score.Score, name string, mods []string, visiting map[string]bool) ([]string, error) {
	if seq, ok := sc.Sequences[name]; ok {
		if visiting[name] {
			return nil, &ResolutionError{Message: fmt.Sprintf("cyclic sequence reference: %s", name)}
		}
		visiting[name] = true
		var out []string
		for _, item := range seq {
			itemName, itemMods := score.SplitRef(item)
			sub, err := expandRef(sc, itemName, itemMods, visiting)
			if err != nil {
				return nil, err
			}
			out = append(out, sub...)
		}
		delete(visiting, name)
		if len(mods) > 0 {
			return expand.ApplyModifiers(out, mods)
		}
		return out, nil
	}

	if pat, ok := sc.Patterns[name]; ok {
		toks := append([]string(nil), pat...)
		if len(mods) > 0 {
			return expand.ApplyModifiers(toks, mods)
		}
		return toks, nil
	}

	toks := []string{name}
	if len(mods) > 0 {
		return expand.ApplyModifiers(toks, mods)
	}
	return toks, nil
}

type walkState struct {
	currentInstrument string
	tempInstrument    string
	tempRemaining     int
	pendingPan        *score.Pan
}

// walkChannel performs the per-channel token classification and event
// emission described in §4.3.
func walkChannel(sc *score.Score, channelID int, defaultInst string, tokens []string, warn func(line int, format string, args ...any)) ([]Event, error) {
	st := &walkState{currentInstrument: defaultInst}
	var events []Event

	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]

		base, effectsStr, hasEffects := stripEffectSuffix(tok)

		if m := instRe.FindStringSubmatch(base); m != nil {
			name := m[1]
			if m[2] == "" {
				st.currentInstrument = name
				continue
			}
			n, _ := strconv.Atoi(m[2])
			if n <= 0 {
				st.currentInstrument = name
				continue
			}
			if hasFutureSound(sc, tokens[i+1:]) {
				st.tempInstrument = name
				st.tempRemaining = n
				continue
			}
			defaultNote := instrumentNote(sc, name)
			for k := 0; k < n; k++ {
				events = append(events, NewNamedHitEvent(NamedHitPayload{Name: name, Instrument: name, DefaultNote: defaultNote}))
			}
			continue
		}

		if m := hitRe.FindStringSubmatch(base); m != nil {
			name := m[1]
			n, _ := strconv.Atoi(m[2])
			defaultNote := instrumentNote(sc, name)
			for k := 0; k < n; k++ {
				ev := NewNamedHitEvent(NamedHitPayload{Name: name, Instrument: name, DefaultNote: defaultNote})
				events = append(events, ev)
				if ev.SoundProducing() {
					decrementTemp(st)
				}
			}
			continue
		}

		if notation.IsRest(base) {
			events = append(events, NewRestEvent())
			continue
		}

		if notation.IsSustain(base) {
			events = append(events, NewSustainEvent())
			continue
		}

		if m := panRe.FindStringSubmatch(base); m != nil {
			val := strings.TrimSpace(m[1])
			if val == "" {
				st.pendingPan = nil
			} else {
				st.pendingPan = parsePanToken(val)
			}
			continue
		}

		var effects []Effect
		if hasEffects {
			effects = resolveEffectString(sc, 0, effectsStr, warn)
		}

		if _, ok := sc.Instruments[base]; ok {
			ev := NewNamedHitEvent(NamedHitPayload{
				Name:        base,
				Instrument:  base,
				DefaultNote: instrumentNote(sc, base),
			})
			events = append(events, ev)
			if ev.SoundProducing() {
				decrementTemp(st)
			}
			continue
		}

		if notation.IsNote(base) {
			canon, _ := notation.CanonicalNote(base)
			effInst := st.currentInstrument
			if st.tempRemaining > 0 {
				effInst = st.tempInstrument
			}
			pan := resolveNotePan(effects, st.pendingPan, sc, effInst)
			ev := NewNoteEvent(NotePayload{
				Pitch:      canon,
				Instrument: effInst,
				Pan:        pan,
				Effects:    withoutPan(effects),
			})
			events = append(events, ev)
			if ev.SoundProducing() {
				decrementTemp(st)
			}
			continue
		}

		return nil, &ResolutionError{Channel: channelID, Index: i, Message: fmt.Sprintf("unresolvable token %q", tok)}
	}

	return events, nil
}

func decrementTemp(st *walkState) {
	if st.tempRemaining > 0 {
		st.tempRemaining--
		if st.tempRemaining == 0 {
			st.tempInstrument = ""
		}
	}
}

func instrumentNote(sc *score.Score, name string) string {
	if inst, ok := sc.Instruments[name]; ok {
		return inst.Note
	}
	return ""
}

func stripEffectSuffix(tok string) (base, effectsStr string, ok bool) {
	if m := effectSuffixRe.FindStringSubmatch(tok); m != nil {
		return m[1], m[2], true
	}
	return tok, "", false
}

// hasFutureSound reports whether any later token in the stream would, on
// its own classification, produce a Note or NamedHit — the lookahead that
// decides whether inst(name,N) becomes a temporary-override scope or an
// immediate convenience burst of hits.
func hasFutureSound(sc *score.Score, rest []string) bool {
	for _, tok := range rest {
		base, _, _ := stripEffectSuffix(tok)
		if m := instRe.FindStringSubmatch(base); m != nil {
			if m[2] != "" {
				if n, _ := strconv.Atoi(m[2]); n > 0 {
					return true
				}
			}
			continue
		}
		if hitRe.MatchString(base) {
			return true
		}
		if notation.IsRest(base) || notation.IsSustain(base) || panRe.MatchString(base) {
			continue
		}
		if _, ok := sc.Instruments[base]; ok {
			return true
		}
		if notation.IsNote(base) {
			return true
		}
	}
	return false
}

func parsePanToken(val string) *score.Pan {
	switch strings.ToUpper(val) {
	case "L", "C", "R":
		return &score.Pan{Enum: strings.ToUpper(val)}
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return nil
	}
	if f < -1 {
		f = -1
	}
	if f > 1 {
		f = 1
	}
	return &score.Pan{Numeric: true, Value: f}
}

// resolveNotePan applies the precedence in §4.3: inline <pan:...> effect >
// pendingPan sentinel > instrument's pan field > none.
func resolveNotePan(effects []Effect, pending *score.Pan, sc *score.Score, instrument string) *score.Pan {
	for _, e := range effects {
		if e.Kind == "pan" && len(e.Params) > 0 {
			p := e.Params[0]
			if p.Numeric {
				v := p.Num
				if v < -1 {
					v = -1
				}
				if v > 1 {
					v = 1
				}
				return &score.Pan{Numeric: true, Value: v}
			}
			return parsePanToken(p.Raw)
		}
	}
	if pending != nil {
		return pending
	}
	if inst, ok := sc.Instruments[instrument]; ok && inst.Pan != nil {
		return inst.Pan
	}
	return nil
}

func withoutPan(effects []Effect) []Effect {
	var out []Effect
	for _, e := range effects {
		if e.Kind == "pan" {
			continue
		}
		out = append(out, e)
	}
	return out
}

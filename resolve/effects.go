package resolve

import (
	"strconv"
	"strings"

	"github.com/kpax-audio/gbscore/score"
)

// EffectParam is one effect parameter. Params that look numeric are also
// made available as float64 (Numeric=true); everything else (waveform
// names, directions) is kept as Raw only.
type EffectParam struct {
	Raw     string
	Num     float64
	Numeric bool
}

// Effect is `type[:comma-separated-params]`, parsed per spec §4.3. Kinds
// outside the known set are kept as opaque passthrough for MIDI's text
// fallback and JSON's effectMeta.
type Effect struct {
	Kind   string
	Params []EffectParam
}

// knownEffectKinds lists the built-in effect kinds
// (vib/port/trem/volslide/bend/cut/arp/retrig/echo/pan); cut, arp and
// retrig have no exporter mapping. Kinds outside this set still round-trip
// as opaque {type, params}.
var knownEffectKinds = map[string]bool{
	"pan": true, "vib": true, "port": true, "trem": true, "volslide": true,
	"bend": true, "cut": true, "arp": true, "retrig": true, "echo": true,
}

func newEffectParam(raw string) EffectParam {
	raw = strings.TrimSpace(raw)
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return EffectParam{Raw: raw, Num: f, Numeric: true}
	}
	return EffectParam{Raw: raw}
}

// parseEffectFields groups a flat, top-level-comma-split field list into
// Effect values: a field containing ':' starts a new effect (kind before
// the colon, first param after); a colon-less field is an additional
// param appended to the effect most recently started. This single rule
// disambiguates the inter-effect and intra-effect comma use described in
// §4.3 without a second, incompatible delimiter.
func parseEffectFields(fields []string) []Effect {
	var out []Effect
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		if idx := strings.IndexByte(f, ':'); idx >= 0 {
			kind := strings.TrimSpace(f[:idx])
			rest := strings.TrimSpace(f[idx+1:])
			eff := Effect{Kind: kind}
			if rest != "" {
				eff.Params = append(eff.Params, newEffectParam(rest))
			}
			out = append(out, eff)
			continue
		}
		if len(out) == 0 {
			// No colon and nothing started yet: this is either a preset
			// name (expanded by the caller before reaching here) or a
			// bare unknown token; keep it as a kind with no params.
			out = append(out, Effect{Kind: f})
			continue
		}
		out[len(out)-1].Params = append(out[len(out)-1].Params, newEffectParam(f))
	}
	return out
}

// resolveEffectString parses an inline `<...>` payload (already stripped
// of the angle brackets) against the effect-preset table, expanding any
// field that names a preset in place, then groups the remainder into
// Effect values. Returns the effects; warnings (arp filtering) are reported
// through warn.
func resolveEffectString(sc *score.Score, line int, payload string, warn func(line int, format string, args ...any)) []Effect {
	fields := splitTopLevelComma(payload)

	var expanded []string
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		if !strings.Contains(f, ":") {
			if preset, ok := sc.EffectPresets[f]; ok {
				expanded = append(expanded, preset...)
				continue
			}
		}
		expanded = append(expanded, f)
	}

	effects := parseEffectFields(expanded)
	return filterArp(effects, line, warn)
}

// filterArp drops negative arp offsets, per the testable property in §8:
// every emitted arp effect has all offsets >= 0.
func filterArp(effects []Effect, line int, warn func(line int, format string, args ...any)) []Effect {
	for i := range effects {
		if effects[i].Kind != "arp" {
			continue
		}
		var kept []EffectParam
		dropped := false
		for _, p := range effects[i].Params {
			if p.Numeric && p.Num < 0 {
				dropped = true
				continue
			}
			kept = append(kept, p)
		}
		if dropped {
			warn(line, "arp effect: negative offsets filtered")
		}
		effects[i].Params = kept
	}
	return effects
}

func splitTopLevelComma(s string) []string {
	var parts []string
	var cur strings.Builder
	depth := 0
	for _, r := range s {
		switch {
		case r == '(' || r == '[':
			depth++
			cur.WriteRune(r)
		case r == ')' || r == ']':
			if depth > 0 {
				depth--
			}
			cur.WriteRune(r)
		case r == ',' && depth == 0:
			parts = append(parts, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	parts = append(parts, cur.String())
	return parts
}

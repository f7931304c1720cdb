// Package expand implements the pattern expander (C2): grouping/repetition
// expansion and the modifier pipeline (oct/rev/slow/fast/semitone/inst/pan)
// applied to flat token arrays. Functions here are pure and referentially
// transparent — they carry no state beyond their arguments.
package expand

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/kpax-audio/gbscore/notation"
)

var (
	groupRe       = regexp.MustCompile(`^\((.*)\)\*?([0-9]*)$`)
	starRe        = regexp.MustCompile(`^(.+)\*([0-9]+)$`)
	durationRe    = regexp.MustCompile(`^(.+):([0-9]+)$`)
	signedIntRe   = regexp.MustCompile(`^[+-]?[0-9]+$`)
	argRe         = regexp.MustCompile(`^[A-Za-z_]+\(([^)]*)\)$`)
)

// ExpandGroups expands grouping (`(X Y)*N`) and shorthand repetition
// (`tok*N`, `tok:N`) into a flat token array. Composable and
// referentially transparent — it is safe to call repeatedly.
func ExpandGroups(tokens []string) []string {
	var out []string
	for _, tok := range tokens {
		out = append(out, expandOneGroup(tok)...)
	}
	return out
}

func expandOneGroup(tok string) []string {
	if m := groupRe.FindStringSubmatch(tok); m != nil {
		inner := splitRespectingParens(m[1])
		n := 1
		if m[2] != "" {
			n, _ = strconv.Atoi(m[2])
		}
		innerExpanded := ExpandGroups(inner)
		var out []string
		for i := 0; i < n; i++ {
			out = append(out, innerExpanded...)
		}
		return out
	}
	if m := starRe.FindStringSubmatch(tok); m != nil {
		n, err := strconv.Atoi(m[2])
		if err == nil {
			out := make([]string, 0, n)
			for i := 0; i < n; i++ {
				out = append(out, m[1])
			}
			return out
		}
	}
	if m := durationRe.FindStringSubmatch(tok); m != nil {
		n, err := strconv.Atoi(m[2])
		if err == nil {
			out := make([]string, 0, n)
			for i := 0; i < n; i++ {
				out = append(out, m[1])
			}
			return out
		}
	}
	return []string{tok}
}

func splitRespectingParens(s string) []string {
	var tokens []string
	var cur strings.Builder
	depth := 0
	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}
	for _, r := range s {
		switch {
		case r == '(':
			depth++
			cur.WriteRune(r)
		case r == ')':
			if depth > 0 {
				depth--
			}
			cur.WriteRune(r)
		case (r == ' ' || r == '\t') && depth == 0:
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return tokens
}

// ApplyModifiers applies a colon-separated modifier chain to tokens in
// left-to-right order per §4.2: rev/slow/fast apply immediately as
// encountered; octave/semitone shifts accumulate and are applied once, at
// the end, to every note token; inst/pan wrap the result with sentinel
// tokens.
func ApplyModifiers(tokens []string, mods []string) ([]string, error) {
	cur := append([]string(nil), tokens...)
	octaves, semitones := 0, 0
	var instName, panVal string
	hasInst, hasPan := false, false

	for _, raw := range mods {
		mod := strings.TrimSpace(raw)
		if mod == "" {
			continue
		}
		switch {
		case mod == "rev":
			reverseInPlace(cur)
		case strings.HasPrefix(mod, "slow"):
			f, err := argIntDefault(mod, 2)
			if err != nil {
				return nil, err
			}
			cur = inflate(cur, f)
		case strings.HasPrefix(mod, "fast"):
			f, err := argIntDefault(mod, 2)
			if err != nil {
				return nil, err
			}
			cur = decimate(cur, f)
		case strings.HasPrefix(mod, "oct"):
			k, err := argInt(mod)
			if err != nil {
				return nil, err
			}
			octaves += k
		case strings.HasPrefix(mod, "semitone") || strings.HasPrefix(mod, "st(") || strings.HasPrefix(mod, "trans"):
			k, err := argInt(mod)
			if err != nil {
				return nil, err
			}
			semitones += k
		case signedIntRe.MatchString(mod):
			k, _ := strconv.Atoi(mod)
			semitones += k
		case strings.HasPrefix(mod, "inst("):
			name, err := argString(mod)
			if err != nil {
				return nil, err
			}
			hasInst, instName = true, name
		case strings.HasPrefix(mod, "pan("):
			val, err := argString(mod)
			if err != nil {
				return nil, err
			}
			hasPan, panVal = true, val
		default:
			return nil, fmt.Errorf("unrecognized modifier %q", mod)
		}
	}

	if octaves != 0 || semitones != 0 {
		shift := 12*octaves + semitones
		for i, t := range cur {
			if transposed, ok := notation.TransposeNote(t, shift); ok {
				cur[i] = transposed
			}
		}
	}

	if hasInst {
		cur = append([]string{fmt.Sprintf("inst(%s)", instName)}, cur...)
	}
	if hasPan {
		cur = append([]string{fmt.Sprintf("pan(%s)", panVal)}, cur...)
		cur = append(cur, "pan()")
	}

	return cur, nil
}

func reverseInPlace(s []string) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

// inflate repeats each token F times in place ("slow").
func inflate(tokens []string, f int) []string {
	if f < 1 {
		return nil
	}
	out := make([]string, 0, len(tokens)*f)
	for _, t := range tokens {
		for i := 0; i < f; i++ {
			out = append(out, t)
		}
	}
	return out
}

// decimate keeps every Fth token ("fast").
func decimate(tokens []string, f int) []string {
	if f < 1 {
		f = 1
	}
	var out []string
	for i := 0; i < len(tokens); i += f {
		out = append(out, tokens[i])
	}
	return out
}

func argIntDefault(mod string, def int) (int, error) {
	m := argRe.FindStringSubmatch(mod)
	if m == nil || strings.TrimSpace(m[1]) == "" {
		return def, nil
	}
	return strconv.Atoi(strings.TrimSpace(m[1]))
}

func argInt(mod string) (int, error) {
	m := argRe.FindStringSubmatch(mod)
	if m == nil {
		return 0, fmt.Errorf("malformed modifier %q", mod)
	}
	return strconv.Atoi(strings.TrimSpace(m[1]))
}

func argString(mod string) (string, error) {
	m := argRe.FindStringSubmatch(mod)
	if m == nil {
		return "", fmt.Errorf("malformed modifier %q", mod)
	}
	return strings.TrimSpace(m[1]), nil
}

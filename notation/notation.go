// Package notation holds the note-name lexical rules shared by the parser,
// expander, and resolver: recognizing note/rest/sustain tokens and
// canonicalizing and transposing note names. It has no dependency on the
// score, expand, or resolve packages so all three can share it without a
// import cycle.
package notation

import (
	"regexp"
	"strconv"
	"strings"
)

var noteRe = regexp.MustCompile(`^(?i)([A-G])(#|b)?(-?[0-9]+)$`)

var sharpNames = []string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

var naturalSemitone = map[byte]int{
	'C': 0, 'D': 2, 'E': 4, 'F': 5, 'G': 7, 'A': 9, 'B': 11,
}

// IsNote reports whether tok lexically matches a note token.
func IsNote(tok string) bool {
	return noteRe.MatchString(tok)
}

// CanonicalNote canonicalizes a note token: upper-cases the letter and
// rewrites flats as the equivalent sharp, per the lexical rules in §4.1.
// Returns ok=false if tok is not a note token.
func CanonicalNote(tok string) (canon string, ok bool) {
	m := noteRe.FindStringSubmatch(tok)
	if m == nil {
		return "", false
	}
	letter := strings.ToUpper(m[1])[0]
	accidental := m[2]
	octave, err := strconv.Atoi(m[3])
	if err != nil {
		return "", false
	}

	semitone := naturalSemitone[letter]
	switch accidental {
	case "#":
		semitone++
	case "b", "B":
		semitone--
	}

	abs := octave*12 + semitone
	idx := abs % 12
	oct := abs / 12
	if idx < 0 {
		idx += 12
		oct--
	}

	return sharpNames[idx] + strconv.Itoa(oct), true
}

// TransposeNote shifts a canonical (or raw) note token by semitones,
// clamping the resulting octave into [-1, 9] per §4.2 step 7.
func TransposeNote(tok string, semitones int) (string, bool) {
	canon, ok := CanonicalNote(tok)
	if !ok {
		return tok, false
	}
	m := noteRe.FindStringSubmatch(canon)
	letter := m[1]
	accidental := m[2]
	octave, _ := strconv.Atoi(m[3])

	semitone := naturalSemitone[strings.ToUpper(letter)[0]]
	if accidental == "#" {
		semitone++
	}
	abs := octave*12 + semitone + semitones
	idx := abs % 12
	oct := abs / 12
	if idx < 0 {
		idx += 12
		oct--
	}
	if oct < -1 {
		oct = -1
	}
	if oct > 9 {
		oct = 9
	}
	return sharpNames[idx] + strconv.Itoa(oct), true
}

// IsRest reports whether tok is a rest token: "." or "R" (case-insensitive)
// or the literal "rest".
func IsRest(tok string) bool {
	return tok == "." || strings.EqualFold(tok, "R") || strings.EqualFold(tok, "rest")
}

// IsSustain reports whether tok is a sustain-extender token: "_" or "-".
func IsSustain(tok string) bool {
	return tok == "_" || tok == "-"
}

// Split breaks a canonical note (e.g. "C#4", "C-1") into letter+accidental
// and octave. ok is false if s is not a canonical note produced by
// CanonicalNote.
func Split(s string) (letterSharp string, octave int, ok bool) {
	m := noteRe.FindStringSubmatch(s)
	if m == nil {
		return "", 0, false
	}
	oct, err := strconv.Atoi(m[3])
	if err != nil {
		return "", 0, false
	}
	ls := strings.ToUpper(m[1])
	if m[2] == "#" {
		ls += "#"
	}
	return ls, oct, true
}

// SemitoneOf returns the 0..11 semitone class of a canonical sharp note
// name such as "C", "C#", "D", ...
func SemitoneOf(letterSharp string) int {
	base := naturalSemitone[letterSharp[0]]
	if strings.HasSuffix(letterSharp, "#") {
		base++
	}
	return base
}

// SharpNames is the 12 semitone names, index 0 = C.
var SharpNames = sharpNames

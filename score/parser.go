package score

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/kpax-audio/gbscore/expand"
)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_-]*$`)

// Parse parses source into an Abstract Score. It returns the first fatal
// error it encounters (with line/column); non-fatal issues are collected
// into the returned warning slice.
func Parse(source string) (*Score, []Warning, error) {
	p := &parser{
		sc: &Score{
			BPM:         128,
			Volume:      1.0,
			Patterns:    map[string][]string{},
			Sequences:   map[string][]string{},
			Arrangements: map[string][]ArrangementRow{},
			Instruments: map[string]*Instrument{},
			EffectPresets: map[string][]string{},
		},
	}
	if err := p.run(source); err != nil {
		return nil, p.warnings, err
	}
	if err := p.validate(); err != nil {
		return nil, p.warnings, err
	}
	return p.sc, p.warnings, nil
}

type parser struct {
	sc       *Score
	warnings []Warning
}

func (p *parser) warn(line int, format string, args ...any) {
	p.warnings = append(p.warnings, Warning{Line: line, Message: fmt.Sprintf(format, args...)})
}

func (p *parser) errf(line, col int, format string, args ...any) error {
	return &ParseError{Line: line, Col: col, Message: fmt.Sprintf(format, args...)}
}

func (p *parser) run(source string) error {
	lines := splitLines(source)

	for i := 0; i < len(lines); i++ {
		lineNo := i + 1
		raw := stripComment(lines[i])
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			continue
		}

		// Triple-quoted multi-line song values: `song key """` ... `"""`
		if idx := strings.Index(trimmed, `"""`); idx >= 0 && strings.HasPrefix(trimmed, "song ") {
			rest := trimmed[idx+3:]
			end := strings.Index(rest, `"""`)
			var body string
			if end >= 0 {
				body = rest[:end]
			} else {
				var sb strings.Builder
				sb.WriteString(rest)
				for i++; i < len(lines); i++ {
					lineNo = i + 1
					if e := strings.Index(lines[i], `"""`); e >= 0 {
						sb.WriteString("\n")
						sb.WriteString(lines[i][:e])
						break
					}
					sb.WriteString("\n")
					sb.WriteString(lines[i])
				}
				body = sb.String()
			}
			key := strings.TrimSpace(strings.TrimPrefix(trimmed[:idx], "song"))
			if err := p.applySongKey(lineNo, key, body); err != nil {
				return err
			}
			continue
		}

		word, _, _ := strings.Cut(trimmed, " ")
		word = strings.SplitN(word, "=", 2)[0]

		var err error
		switch word {
		case "chip":
			err = p.parseChip(lineNo, trimmed)
		case "bpm":
			err = p.parseBPM(lineNo, trimmed)
		case "volume":
			err = p.parseVolume(lineNo, trimmed)
		case "play":
			err = p.parsePlay(lineNo, trimmed)
		case "song":
			err = p.parseSong(lineNo, trimmed)
		case "pat":
			err = p.parsePattern(lineNo, trimmed)
		case "seq":
			err = p.parseSequence(lineNo, trimmed)
		case "arrange":
			err = p.parseArrangement(lineNo, lines, &i)
		case "channel":
			err = p.parseChannel(lineNo, trimmed)
		case "inst":
			err = p.parseInstrument(lineNo, trimmed)
		case "effect":
			err = p.parseEffectPreset(lineNo, trimmed)
		case "import":
			err = p.parseImport(lineNo, trimmed)
		default:
			err = p.errf(lineNo, 1, "unrecognized directive %q", word)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func splitLines(source string) []string {
	source = strings.ReplaceAll(source, "\r\n", "\n")
	return strings.Split(source, "\n")
}

// keyEqValue splits `name value` or `name=value` / `name = value` into key, value.
func keyEqValue(s string) (string, string) {
	if idx := strings.IndexByte(s, '='); idx >= 0 {
		return strings.TrimSpace(s[:idx]), strings.TrimSpace(s[idx+1:])
	}
	parts := strings.SplitN(s, " ", 2)
	if len(parts) < 2 {
		return strings.TrimSpace(parts[0]), ""
	}
	return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
}

func (p *parser) parseChip(line int, text string) error {
	_, v := keyEqValue(text)
	v = strings.ToLower(strings.Trim(v, `"'`))
	if v != "gameboy" {
		return p.errf(line, 1, "unsupported chip %q (only \"gameboy\" is accepted)", v)
	}
	p.sc.Chip = v
	return nil
}

func (p *parser) parseBPM(line int, text string) error {
	_, v := keyEqValue(text)
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return p.errf(line, 1, "invalid bpm %q", v)
	}
	p.sc.BPM = n
	return nil
}

func (p *parser) parseVolume(line int, text string) error {
	_, v := keyEqValue(text)
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return p.errf(line, 1, "invalid volume %q", v)
	}
	if f < 0 {
		f = 0
	}
	if f > 1 {
		f = 1
	}
	p.sc.Volume = f
	return nil
}

func (p *parser) parsePlay(line int, text string) error {
	_, rest := keyEqValue(text)
	p.sc.Play.Set = true
	for _, w := range strings.Fields(rest) {
		switch w {
		case "auto":
			p.sc.Play.Auto = true
		case "repeat":
			p.sc.Play.Repeat = true
		default:
			return p.errf(line, 1, "unrecognized play option %q", w)
		}
	}
	return nil
}

func (p *parser) parseSong(line int, text string) error {
	rest := strings.TrimSpace(strings.TrimPrefix(text, "song"))
	key, val := keyEqValue(rest)
	return p.applySongKey(line, key, unquote(val))
}

func (p *parser) applySongKey(line int, key, value string) error {
	value = unquote(strings.TrimSpace(value))
	switch key {
	case "name":
		p.sc.Song.Name = value
	case "artist":
		p.sc.Song.Artist = value
	case "description":
		p.sc.Song.Description = value
	case "tags":
		for _, t := range strings.Split(value, ",") {
			t = strings.TrimSpace(t)
			if t != "" {
				p.sc.Song.Tags = append(p.sc.Song.Tags, t)
			}
		}
	default:
		return p.errf(line, 1, "unrecognized song key %q", key)
	}
	return nil
}

func unquote(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, `"""`)
	s = strings.TrimSuffix(s, `"""`)
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

// splitNameAndModifiers splits "NAME:mod1:mod2" into name and modifier list.
// Modifier arguments may themselves contain parens, e.g. "oct(-1)", so we
// only split on colons outside of parens.
func splitNameAndModifiers(s string) (string, []string) {
	parts := splitOutsideParens(s, ':')
	if len(parts) == 0 {
		return "", nil
	}
	return parts[0], parts[1:]
}

func splitOutsideParens(s string, sep rune) []string {
	var parts []string
	var cur strings.Builder
	depth := 0
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
		case r == sep && depth == 0:
			parts = append(parts, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	parts = append(parts, cur.String())
	return parts
}

func (p *parser) parsePattern(line int, text string) error {
	rest := strings.TrimSpace(strings.TrimPrefix(text, "pat"))
	eq := strings.IndexByte(rest, '=')
	if eq < 0 {
		return p.errf(line, 1, "malformed pattern definition")
	}
	header := strings.TrimSpace(rest[:eq])
	rhs := strings.TrimSpace(rest[eq+1:])

	name, mods := splitNameAndModifiers(header)
	if !identRe.MatchString(name) {
		return p.errf(line, 1, "invalid pattern name %q", name)
	}

	tokens, err := parseRHS(rhs)
	if err != nil {
		return p.errf(line, 1, "%s", err)
	}

	tokens = expand.ExpandGroups(tokens)
	tokens, terr := expand.ApplyModifiers(tokens, mods)
	if terr != nil {
		return p.errf(line, 1, "%s", terr)
	}

	if _, exists := p.sc.Patterns[name]; exists {
		return p.errf(line, 1, "duplicate pattern name %q", name)
	}
	p.sc.Patterns[name] = tokens
	p.sc.PatternNames = append(p.sc.PatternNames, name)
	return nil
}

// parseRHS parses a pattern/sequence right-hand side: either a quoted
// string (space-split) or a bare token sequence.
func parseRHS(rhs string) ([]string, error) {
	rhs = strings.TrimSpace(rhs)
	if len(rhs) >= 2 && (rhs[0] == '"' || rhs[0] == '\'') {
		return strings.Fields(unquote(rhs)), nil
	}
	return splitTokens(rhs), nil
}

func (p *parser) parseSequence(line int, text string) error {
	rest := strings.TrimSpace(strings.TrimPrefix(text, "seq"))
	eq := strings.IndexByte(rest, '=')
	if eq < 0 {
		return p.errf(line, 1, "malformed sequence definition")
	}
	header := strings.TrimSpace(rest[:eq])
	rhs := strings.TrimSpace(rest[eq+1:])

	name, mods := splitNameAndModifiers(header)
	if len(mods) > 0 {
		return p.errf(line, 1, "sequence definitions cannot carry modifiers on the name")
	}
	if !identRe.MatchString(name) {
		return p.errf(line, 1, "invalid sequence name %q", name)
	}

	items := normalizeStarSpacing(splitTokens(rhs))
	if _, exists := p.sc.Sequences[name]; exists {
		return p.errf(line, 1, "duplicate sequence name %q", name)
	}
	p.sc.Sequences[name] = items
	p.sc.SequenceNames = append(p.sc.SequenceNames, name)
	return nil
}

// normalizeStarSpacing folds `name * N` (space-separated) into `name*N`.
func normalizeStarSpacing(tokens []string) []string {
	var out []string
	for i := 0; i < len(tokens); i++ {
		t := tokens[i]
		if t == "*" && len(out) > 0 && i+1 < len(tokens) {
			out[len(out)-1] = out[len(out)-1] + "*" + tokens[i+1]
			i++
			continue
		}
		out = append(out, t)
	}
	return out
}

func (p *parser) parseArrangement(startLine int, lines []string, i *int) error {
	text := strings.TrimSpace(lines[*i])
	rest := strings.TrimSpace(strings.TrimPrefix(stripComment(text), "arrange"))
	eq := strings.IndexByte(rest, '=')
	name := rest
	var firstRow string
	if eq >= 0 {
		name = strings.TrimSpace(rest[:eq])
		firstRow = strings.TrimSpace(rest[eq+1:])
	}
	if !identRe.MatchString(name) {
		return p.errf(startLine, 1, "invalid arrangement name %q", name)
	}

	var rowTexts []string
	if firstRow != "" {
		rowTexts = append(rowTexts, firstRow)
	}
	for *i+1 < len(lines) {
		next := strings.TrimSpace(stripComment(lines[*i+1]))
		if next == "" {
			*i++
			continue
		}
		firstWord, _, _ := strings.Cut(next, " ")
		if isDirectiveKeyword(firstWord) {
			break
		}
		*i++
		rowTexts = append(rowTexts, next)
	}

	var rows []ArrangementRow
	for _, rt := range rowTexts {
		for _, rowPart := range strings.Split(rt, ",") {
			rowPart = strings.TrimSpace(rowPart)
			if rowPart == "" {
				continue
			}
			row, err := parseArrangementRow(rowPart)
			if err != nil {
				return p.errf(startLine, 1, "%s", err)
			}
			rows = append(rows, row)
		}
	}

	if _, exists := p.sc.Arrangements[name]; exists {
		return p.errf(startLine, 1, "duplicate arrangement name %q", name)
	}
	p.sc.Arrangements[name] = rows
	p.sc.ArrangementNames = append(p.sc.ArrangementNames, name)
	return nil
}

var defaultsRe = regexp.MustCompile(`defaults\(([^)]*)\)`)

func parseArrangementRow(text string) (ArrangementRow, error) {
	var row ArrangementRow
	if m := defaultsRe.FindStringSubmatch(text); m != nil {
		for _, kv := range strings.Split(m[1], ",") {
			k, v := keyEqValue(strings.TrimSpace(kv))
			if k == "inst" {
				row.DefaultInst = v
			}
		}
		text = defaultsRe.ReplaceAllString(text, "")
	}
	fields := strings.Fields(text)
	for idx, f := range fields {
		if idx >= 4 {
			break
		}
		row.Slots[idx] = f
	}
	return row, nil
}

func isDirectiveKeyword(w string) bool {
	switch strings.SplitN(w, "=", 2)[0] {
	case "chip", "bpm", "volume", "play", "song", "pat", "seq", "arrange", "channel", "inst", "effect", "import":
		return true
	}
	return false
}

func (p *parser) parseChannel(line int, text string) error {
	rest := strings.TrimSpace(strings.TrimPrefix(text, "channel"))
	arrow := strings.Index(rest, "=>")
	if arrow < 0 {
		return p.errf(line, 1, "malformed channel declaration, expected '=>'")
	}
	idStr := strings.TrimSpace(rest[:arrow])
	id, err := strconv.Atoi(idStr)
	if err != nil || id < 1 || id > 4 {
		return p.errf(line, 1, "invalid channel id %q (must be 1..4)", idStr)
	}

	body := strings.Fields(strings.TrimSpace(rest[arrow+2:]))
	ch := Channel{ID: id, Line: line}

	idx := 0
	if idx < len(body) && body[idx] == "inst" {
		if idx+1 >= len(body) {
			return p.errf(line, 1, "missing instrument name after 'inst'")
		}
		ch.DefaultInstrument = body[idx+1]
		idx += 2
	}
	if idx >= len(body) || (body[idx] != "pat" && body[idx] != "seq") {
		return p.errf(line, 1, "channel declaration must specify 'pat' or 'seq'")
	}
	ch.Kind = body[idx]
	idx++

	for idx < len(body) {
		tok := body[idx]
		if strings.HasPrefix(tok, "bpm") {
			return &ValidationError{Context: "channel " + strconv.Itoa(id), Message: "channel-level bpm is not allowed"}
		}
		if strings.HasPrefix(tok, "speed=") {
			v, err := strconv.ParseFloat(strings.TrimPrefix(tok, "speed="), 64)
			if err != nil {
				return p.errf(line, 1, "invalid speed %q", tok)
			}
			ch.Speed = v
			idx++
			continue
		}
		if tok == "speed" {
			if idx+1 >= len(body) {
				return p.errf(line, 1, "missing value after 'speed'")
			}
			v, err := strconv.ParseFloat(body[idx+1], 64)
			if err != nil {
				return p.errf(line, 1, "invalid speed %q", body[idx+1])
			}
			ch.Speed = v
			idx += 2
			continue
		}
		ch.Refs = append(ch.Refs, tok)
		idx++
	}

	if ch.Speed != 0 && (ch.Speed < 0.25 || ch.Speed > 8) {
		return p.errf(line, 1, "channel speed %.3f out of range [0.25, 8]", ch.Speed)
	}

	p.sc.Channels = append(p.sc.Channels, ch)
	return nil
}

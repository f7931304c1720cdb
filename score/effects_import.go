package score

import (
	"strconv"
	"strings"
)

func (p *parser) parseEffectPreset(line int, text string) error {
	rest := strings.TrimSpace(strings.TrimPrefix(text, "effect"))
	eq := strings.IndexByte(rest, '=')
	if eq < 0 {
		return p.errf(line, 1, "malformed effect preset definition")
	}
	name := strings.TrimSpace(rest[:eq])
	if !identRe.MatchString(name) {
		return p.errf(line, 1, "invalid effect preset name %q", name)
	}
	rhs := strings.TrimSpace(rest[eq+1:])
	var specs []string
	for _, part := range splitOutsideParens(rhs, ',') {
		part = strings.TrimSpace(part)
		if part != "" {
			specs = append(specs, part)
		}
	}
	if _, exists := p.sc.EffectPresets[name]; exists {
		return p.errf(line, 1, "duplicate effect preset name %q", name)
	}
	p.sc.EffectPresets[name] = specs
	p.sc.EffectPresetNames = append(p.sc.EffectPresetNames, name)
	return nil
}

func (p *parser) parseImport(line int, text string) error {
	rest := strings.TrimSpace(strings.TrimPrefix(text, "import"))
	spec := unquote(rest)
	if spec == "" {
		return p.errf(line, 1, "malformed import, expected a quoted path")
	}
	p.sc.Imports = append(p.sc.Imports, spec)
	return nil
}

func (p *parser) validate() error {
	seen := map[int]bool{}
	for _, ch := range p.sc.Channels {
		if seen[ch.ID] {
			return &ValidationError{Context: "channel", Message: "duplicate channel id " + strconv.Itoa(ch.ID)}
		}
		seen[ch.ID] = true
	}
	return nil
}

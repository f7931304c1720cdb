// Package jsonexport serializes a Resolved Song to canonical JSON, the
// simplest of the four exporters, per spec §6.
package jsonexport

import (
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/kpax-audio/gbscore/resolve"
)

const schemaVersion = 1

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// nowFunc is overridable in tests so output is reproducible.
var nowFunc = time.Now

// document is the exported wire shape: the Resolved Song plus export
// metadata and a flattened effect-description list.
type document struct {
	*resolve.Song
	ExportedAt string       `json:"exportedAt"`
	Version    int          `json:"version"`
	EffectMeta []EffectMeta `json:"effectMeta"`
}

// EffectMeta names an effect instance's parameters for effect kinds with a
// well-known parameter layout; effects outside that set fall back to their
// raw parameter list.
type EffectMeta struct {
	Channel  int        `json:"channel"`
	Kind     string     `json:"kind"`
	Depth    *float64   `json:"depth,omitempty"`
	Rate     *float64   `json:"rate,omitempty"`
	Shape    *float64   `json:"shape,omitempty"`
	Speed    *float64   `json:"speed,omitempty"`
	Duration *float64   `json:"duration,omitempty"`
	Raw      []rawParam `json:"rawParams,omitempty"`
}

type rawParam struct {
	Raw     string  `json:"raw"`
	Num     float64 `json:"num,omitempty"`
	Numeric bool    `json:"numeric"`
}

// Export serializes song to UTF-8 JSON.
func Export(song *resolve.Song) ([]byte, error) {
	doc := document{
		Song:       song,
		ExportedAt: nowFunc().UTC().Format(time.RFC3339),
		Version:    schemaVersion,
		EffectMeta: collectEffectMeta(song),
	}
	return json.MarshalIndent(&doc, "", "  ")
}

func collectEffectMeta(song *resolve.Song) []EffectMeta {
	var out []EffectMeta
	for _, ch := range song.Channels {
		for _, ev := range ch.Events {
			note, ok := ev.AsNote()
			if !ok {
				continue
			}
			for _, eff := range note.Effects {
				out = append(out, describeEffect(ch.ID, eff))
			}
		}
	}
	return out
}

func describeEffect(channelID int, eff resolve.Effect) EffectMeta {
	meta := EffectMeta{Channel: channelID, Kind: eff.Kind}
	switch eff.Kind {
	case "vib":
		meta.Depth = numAt(eff, 0)
		meta.Rate = numAt(eff, 1)
		meta.Shape = numAt(eff, 2)
	case "port":
		meta.Speed = numAt(eff, 0)
		meta.Duration = numAt(eff, 1)
	default:
		meta.Raw = make([]rawParam, len(eff.Params))
		for i, p := range eff.Params {
			meta.Raw[i] = rawParam{Raw: p.Raw, Num: p.Num, Numeric: p.Numeric}
		}
	}
	return meta
}

func numAt(eff resolve.Effect, i int) *float64 {
	if i >= len(eff.Params) || !eff.Params[i].Numeric {
		return nil
	}
	v := eff.Params[i].Num
	return &v
}

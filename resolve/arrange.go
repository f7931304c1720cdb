package resolve

import "github.com/kpax-audio/gbscore/score"

// expandArrangements appends each arrangement row's per-channel slot tokens
// onto channelTokens, padding shorter slots with Rest tokens to the row's
// longest slot (§4.3). When more than one arrangement is present, "main" is
// preferred; otherwise the first declared arrangement is used — the
// Abstract Score data model names no "active arrangement" selector, so this
// is a resolver-level convention (documented as an open-question decision).
func expandArrangements(sc *score.Score, channelTokens map[int][]string) error {
	if len(sc.Arrangements) == 0 {
		return nil
	}
	name := "main"
	if _, ok := sc.Arrangements[name]; !ok {
		if len(sc.ArrangementNames) == 0 {
			return nil
		}
		name = sc.ArrangementNames[0]
	}
	rows := sc.Arrangements[name]

	for _, row := range rows {
		var slotTokens [4][]string
		maxLen := 0
		for i, slot := range row.Slots {
			if slot == "" || slot == "." || slot == "-" {
				continue
			}
			refName, mods := score.SplitRef(slot)
			toks, err := expandRef(sc, refName, mods, map[string]bool{})
			if err != nil {
				return err
			}
			if inst := row.DefaultInst; inst != "" {
				toks = append([]string{"inst(" + inst + ")"}, toks...)
			}
			slotTokens[i] = toks
			if len(toks) > maxLen {
				maxLen = len(toks)
			}
		}
		for i := 0; i < 4; i++ {
			toks := slotTokens[i]
			for len(toks) < maxLen {
				toks = append(toks, ".")
			}
			if len(toks) == 0 {
				continue
			}
			chID := i + 1
			channelTokens[chID] = append(channelTokens[chID], toks...)
		}
	}
	return nil
}

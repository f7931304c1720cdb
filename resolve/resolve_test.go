package resolve

import (
	"testing"

	"github.com/kpax-audio/gbscore/score"
)

func baseScore() *score.Score {
	return &score.Score{
		Chip:            "gb",
		BPM:             120,
		InstrumentNames: []string{"lead", "kick"},
		Instruments: map[string]*score.Instrument{
			"lead": {Name: "lead", Type: "pulse1"},
			"kick": {Name: "kick", Type: "noise", Note: "C2"},
		},
		Patterns:  map[string][]string{},
		Sequences: map[string][]string{},
	}
}

func chan1(sc *score.Score, refs ...string) {
	sc.Channels = append(sc.Channels, score.Channel{ID: 1, DefaultInstrument: "lead", Refs: refs})
}

func TestResolveBasicNoteStream(t *testing.T) {
	sc := baseScore()
	sc.Patterns["A"] = []string{"C4", ".", "_", "D4"}
	chan1(sc, "A")

	song, warnings, err := Resolve(sc)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(warnings) != 0 {
		t.Errorf("unexpected warnings: %v", warnings)
	}
	if len(song.Channels) != 1 {
		t.Fatalf("len(Channels) = %d, want 1", len(song.Channels))
	}
	events := song.Channels[0].Events
	if len(events) != 4 {
		t.Fatalf("len(events) = %d, want 4", len(events))
	}
	if note, ok := events[0].AsNote(); !ok || note.Pitch != "C4" || note.Instrument != "lead" {
		t.Errorf("events[0] = %+v, want note C4/lead", events[0])
	}
	if !events[1].IsRest() {
		t.Errorf("events[1] kind = %v, want Rest", events[1].Kind())
	}
	if !events[2].IsSustain() {
		t.Errorf("events[2] kind = %v, want Sustain", events[2].Kind())
	}
	if note, ok := events[3].AsNote(); !ok || note.Pitch != "D4" {
		t.Errorf("events[3] = %+v, want note D4", events[3])
	}
}

func TestResolveSequenceExpandsPatternsInOrder(t *testing.T) {
	sc := baseScore()
	sc.Patterns["A"] = []string{"C4"}
	sc.Patterns["B"] = []string{"D4"}
	sc.Sequences["verse"] = []string{"A", "B", "A"}
	chan1(sc, "verse")

	song, _, err := Resolve(sc)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	events := song.Channels[0].Events
	if len(events) != 3 {
		t.Fatalf("len(events) = %d, want 3", len(events))
	}
	want := []string{"C4", "D4", "C4"}
	for i, w := range want {
		n, ok := events[i].AsNote()
		if !ok || n.Pitch != w {
			t.Errorf("events[%d] = %+v, want %s", i, events[i], w)
		}
	}
}

func TestResolveCyclicSequenceIsAnError(t *testing.T) {
	sc := baseScore()
	sc.Sequences["a"] = []string{"b"}
	sc.Sequences["b"] = []string{"a"}
	chan1(sc, "a")

	_, _, err := Resolve(sc)
	if err == nil {
		t.Fatal("expected a cyclic-sequence error")
	}
}

func TestResolveInstSwitchPersistsUntilNextSwitch(t *testing.T) {
	sc := baseScore()
	sc.Patterns["A"] = []string{"inst(kick)", "C4", "D4", "inst(lead)", "E4"}
	chan1(sc, "A")

	song, _, err := Resolve(sc)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	events := song.Channels[0].Events
	if len(events) != 3 {
		t.Fatalf("len(events) = %d, want 3 (inst switches aren't events)", len(events))
	}
	for i, want := range []string{"kick", "kick", "lead"} {
		n, _ := events[i].AsNote()
		if n.Instrument != want {
			t.Errorf("events[%d].Instrument = %s, want %s", i, n.Instrument, want)
		}
	}
}

// TestResolveTempInstrumentCountsOnlySoundEvents guards the §8 invariant:
// a temp-instrument override's decrement count equals the number of
// sound-emitting events it covers, never counting rests or sustains.
func TestResolveTempInstrumentCountsOnlySoundEvents(t *testing.T) {
	sc := baseScore()
	// inst(kick,2) temp-overrides the next 2 *sound* events; rests and
	// sustains in between must not consume the budget.
	sc.Patterns["A"] = []string{"inst(kick,2)", ".", "C4", "_", "D4", "E4"}
	chan1(sc, "A")

	song, _, err := Resolve(sc)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	events := song.Channels[0].Events
	if len(events) != 5 {
		t.Fatalf("len(events) = %d, want 5", len(events))
	}
	// rest
	if !events[0].IsRest() {
		t.Fatalf("events[0] kind = %v, want Rest", events[0].Kind())
	}
	// C4 under kick override (budget 2 -> 1)
	n1, _ := events[1].AsNote()
	if n1.Instrument != "kick" {
		t.Errorf("events[1].Instrument = %s, want kick", n1.Instrument)
	}
	// sustain, doesn't consume budget
	if !events[2].IsSustain() {
		t.Fatalf("events[2] kind = %v, want Sustain", events[2].Kind())
	}
	// D4 under kick override (budget 1 -> 0)
	n2, _ := events[3].AsNote()
	if n2.Instrument != "kick" {
		t.Errorf("events[3].Instrument = %s, want kick", n2.Instrument)
	}
	// E4 back on the channel default, budget exhausted
	n3, _ := events[4].AsNote()
	if n3.Instrument != "lead" {
		t.Errorf("events[4].Instrument = %s, want lead", n3.Instrument)
	}
}

func TestResolveInstNWithNoFutureSoundEmitsImmediateHits(t *testing.T) {
	sc := baseScore()
	// No sound-emitting token follows, so inst(kick,3) becomes an immediate
	// burst of 3 named hits instead of a temp-override scope.
	sc.Patterns["A"] = []string{"inst(kick,3)"}
	chan1(sc, "A")

	song, _, err := Resolve(sc)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	events := song.Channels[0].Events
	if len(events) != 3 {
		t.Fatalf("len(events) = %d, want 3 immediate hits", len(events))
	}
	for _, ev := range events {
		hit, ok := ev.AsNamedHit()
		if !ok || hit.Instrument != "kick" {
			t.Errorf("event = %+v, want a kick named hit", ev)
		}
	}
}

func TestResolvePanPrecedenceInlineOverPendingOverInstrument(t *testing.T) {
	sc := baseScore()
	sc.Instruments["lead"].Pan = &score.Pan{Enum: "L"}
	sc.Patterns["A"] = []string{"C4", "pan(R)", "D4", "E4<pan:0.2>"}
	chan1(sc, "A")

	song, _, err := Resolve(sc)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	events := song.Channels[0].Events
	n0, _ := events[0].AsNote()
	if n0.Pan == nil || n0.Pan.Enum != "L" {
		t.Errorf("events[0].Pan = %+v, want instrument default L", n0.Pan)
	}
	n1, _ := events[1].AsNote()
	if n1.Pan == nil || n1.Pan.Enum != "R" {
		t.Errorf("events[1].Pan = %+v, want pending R", n1.Pan)
	}
	n2, _ := events[2].AsNote()
	if n2.Pan == nil || !n2.Pan.Numeric || n2.Pan.Value != 0.2 {
		t.Errorf("events[2].Pan = %+v, want inline numeric 0.2", n2.Pan)
	}
}

func TestResolveUnresolvableTokenIsAnError(t *testing.T) {
	sc := baseScore()
	sc.Patterns["A"] = []string{"not-a-token!!"}
	chan1(sc, "A")

	_, _, err := Resolve(sc)
	if err == nil {
		t.Fatal("expected an unresolvable-token error")
	}
	if _, ok := err.(*ResolutionError); !ok {
		t.Errorf("error type = %T, want *ResolutionError", err)
	}
}

func TestResolveNoteAccidentalCanonicalization(t *testing.T) {
	sc := baseScore()
	sc.Patterns["A"] = []string{"Db4"}
	chan1(sc, "A")

	song, _, err := Resolve(sc)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	n, _ := song.Channels[0].Events[0].AsNote()
	if n.Pitch != "C#4" {
		t.Errorf("Pitch = %s, want C#4 (canonicalized flat)", n.Pitch)
	}
}

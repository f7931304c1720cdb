package apu

import "testing"

func TestNoteNumberC3Is36(t *testing.T) {
	n, ok := NoteNumber("C3")
	if !ok {
		t.Fatal("NoteNumber(C3) not ok")
	}
	if n != 36 {
		t.Errorf("NoteNumber(C3) = %d, want 36", n)
	}
}

func TestNoteNumberRejectsGarbage(t *testing.T) {
	if _, ok := NoteNumber("not-a-note"); ok {
		t.Error("expected ok=false for an unrecognized token")
	}
}

func TestRegisterForNoteClampsOutOfRange(t *testing.T) {
	// C0 is well below the table's floor (octave 3); it should clamp rather
	// than fail outright.
	_, clamped, ok := RegisterForNote("C0")
	if !ok {
		t.Fatal("RegisterForNote(C0) not ok")
	}
	if !clamped {
		t.Error("expected RegisterForNote(C0) to report clamped=true")
	}
}

func TestRegisterForNoteMonotonicWithinOctave(t *testing.T) {
	regC, _, ok1 := RegisterForNote("C4")
	regD, _, ok2 := RegisterForNote("D4")
	if !ok1 || !ok2 {
		t.Fatal("RegisterForNote failed for a well-formed note")
	}
	// Higher pitch -> higher frequency -> higher period register (since
	// f = 131072/(2048-p)).
	if regD <= regC {
		t.Errorf("expected D4's period register (%d) > C4's (%d)", regD, regC)
	}
}

// TestUGENoteIndexBoundaries mirrors spec §4.4's E6 scenario directly
// against the helper export/uge relies on.
func TestUGENoteIndexBoundaries(t *testing.T) {
	cases := []struct {
		note    string
		wantIdx int
	}{
		{"C3", 0},
		{"C5", 24},
	}
	for _, c := range cases {
		idx, ok := UGENoteIndex(c.note)
		if !ok {
			t.Fatalf("UGENoteIndex(%s) not ok", c.note)
		}
		if idx != c.wantIdx {
			t.Errorf("UGENoteIndex(%s) = %d, want %d", c.note, idx, c.wantIdx)
		}
	}

	// B2 sits one semitone below the table's floor (C3); transposing up an
	// octave should land it at B3's position within [0,72).
	b2, ok := UGENoteIndex("B2")
	if !ok {
		t.Fatal("UGENoteIndex(B2) not ok")
	}
	b3, ok := UGENoteIndex("B3")
	if !ok {
		t.Fatal("UGENoteIndex(B3) not ok")
	}
	if b2 != b3 {
		t.Errorf("UGENoteIndex(B2) = %d, want it octave-transposed to match B3 = %d", b2, b3)
	}
}

func TestFreqForRegisterRoundTrip(t *testing.T) {
	reg, _, ok := RegisterForNote("A4")
	if !ok {
		t.Fatal("RegisterForNote(A4) not ok")
	}
	freq := FreqForRegister(reg)
	if freq < 439 || freq > 441 {
		t.Errorf("FreqForRegister(RegisterForNote(A4)) = %.3f, want ~440", freq)
	}
}

func TestFreqForRegisterClampsOutOfRangeRegister(t *testing.T) {
	// A register >= 2048 isn't representable in the 11-bit field; this
	// should clamp to the max register rather than divide by zero.
	f := FreqForRegister(5000)
	if f <= 0 {
		t.Errorf("FreqForRegister(5000) = %v, want a positive frequency", f)
	}
}

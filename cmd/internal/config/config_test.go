package config

import "testing"

func TestEchoPresetFromNameAcceptsKnownPresets(t *testing.T) {
	for _, preset := range []string{"light", "medium", "heavy", "none"} {
		r, err := EchoPresetFromName(preset, 44100)
		if err != nil {
			t.Errorf("EchoPresetFromName(%q): %v", preset, err)
		}
		if r == nil {
			t.Errorf("EchoPresetFromName(%q) returned a nil Reverber", preset)
		}
	}
}

func TestEchoPresetFromNameRejectsUnknown(t *testing.T) {
	if _, err := EchoPresetFromName("bogus", 44100); err == nil {
		t.Fatal("expected an error for an unrecognized echo preset")
	}
}

func TestEchoPresetFromNameNoneIsPassThrough(t *testing.T) {
	r, err := EchoPresetFromName("none", 44100)
	if err != nil {
		t.Fatalf("EchoPresetFromName(none): %v", err)
	}
	if _, ok := r.(*ReverbPassThrough); !ok {
		t.Errorf("EchoPresetFromName(none) = %T, want *ReverbPassThrough", r)
	}
}

func TestPassThroughRoundTripsSamples(t *testing.T) {
	p := NewPassThrough(16)
	in := []int16{1, 2, 3, 4}
	if n := p.InputSamples(in); n != len(in) {
		t.Fatalf("InputSamples = %d, want %d", n, len(in))
	}
	out := make([]int16, 4)
	if n := p.GetAudio(out); n != 4 {
		t.Fatalf("GetAudio = %d, want 4", n)
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("out[%d] = %d, want %d (pass-through)", i, out[i], in[i])
		}
	}
}

func TestPassThroughStopsWhenBufferFull(t *testing.T) {
	p := NewPassThrough(4)
	in := make([]int16, 10)
	n := p.InputSamples(in)
	if n != 4 {
		t.Errorf("InputSamples = %d, want 4 (capped at buffer size)", n)
	}
}

package apu

import "testing"

func TestWaveGenEmptyTableIsSilent(t *testing.T) {
	gen := NewWaveGen(nil, 100, 1000)
	if s := gen.NextSample(1.0 / 44100); s != 0 {
		t.Errorf("empty wavetable generator returned non-zero sample %v", s)
	}
}

func TestWaveGenZeroLevelIsSilent(t *testing.T) {
	table := make([]int, 32)
	for i := range table {
		table[i] = 15
	}
	gen := NewWaveGen(table, 0, 1000)
	dt := 1.0 / 44100
	for i := 0; i < 100; i++ {
		if s := gen.NextSample(dt); s != 0 {
			t.Fatalf("sample %d = %v, want 0 at output level 0", i, s)
		}
	}
}

func TestWaveGenFullLevelWithinRange(t *testing.T) {
	table := make([]int, 32)
	for i := range table {
		table[i] = i % 16
	}
	gen := NewWaveGen(table, 100, 1000)
	dt := 1.0 / 44100
	for i := 0; i < 1000; i++ {
		s := gen.NextSample(dt)
		if s < -1 || s > 1 {
			t.Fatalf("sample %d = %v, out of [-1,1]", i, s)
		}
	}
}

func TestWaveLevelFactorMapping(t *testing.T) {
	cases := map[int]float64{0: 0, 25: 0.25, 50: 0.5, 100: 1.0, 7: 0}
	for in, want := range cases {
		if got := waveLevelFactor(in); got != want {
			t.Errorf("waveLevelFactor(%d) = %v, want %v", in, got, want)
		}
	}
}

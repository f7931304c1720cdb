package wav

import (
	"bytes"
	"testing"
)

func TestExportProducesValidRIFFHeader(t *testing.T) {
	pcm := []float64{0, 0.5, -0.5, 1, -1, 0.25, -0.25, 0}
	out, err := Export(pcm, Options{SampleRate: 44100, Channels: 2, BitDepth: 16})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if len(out) < 44 {
		t.Fatalf("output too short for a WAV header: %d bytes", len(out))
	}
	if !bytes.Equal(out[0:4], []byte("RIFF")) {
		t.Errorf("missing RIFF tag, got %q", out[0:4])
	}
	if !bytes.Equal(out[8:12], []byte("WAVE")) {
		t.Errorf("missing WAVE tag, got %q", out[8:12])
	}
}

func TestExportRejectsMismatchedChannelCount(t *testing.T) {
	_, err := Export([]float64{0, 0, 0}, Options{Channels: 2})
	if err == nil {
		t.Fatal("expected an error for a buffer not divisible by the channel count")
	}
}

func TestExportClampsOutOfRangeSamples(t *testing.T) {
	pcm := []float64{2.0, -2.0}
	out, err := Export(pcm, Options{Channels: 1, BitDepth: 16})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if len(out) == 0 {
		t.Fatal("expected non-empty output")
	}
}

func TestFloatToPCMIsAsymmetricAt16Bit(t *testing.T) {
	if got := floatToPCM(-1.0, 16); got != -32768 {
		t.Errorf("floatToPCM(-1.0, 16) = %d, want -32768", got)
	}
	if got := floatToPCM(1.0, 16); got != 32767 {
		t.Errorf("floatToPCM(1.0, 16) = %d, want 32767", got)
	}
}

func TestFloatToPCMClampsBeyondUnitRange(t *testing.T) {
	if got := floatToPCM(-2.0, 16); got != -32768 {
		t.Errorf("floatToPCM(-2.0, 16) = %d, want -32768", got)
	}
	if got := floatToPCM(2.0, 16); got != 32767 {
		t.Errorf("floatToPCM(2.0, 16) = %d, want 32767", got)
	}
}

func TestExportDefaultsBitDepthTo16(t *testing.T) {
	out, err := Export([]float64{0, 0}, Options{Channels: 1, BitDepth: 9})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if len(out) < 44 {
		t.Fatalf("output too short: %d bytes", len(out))
	}
}

// Package wav encodes rendered PCM to a standard RIFF/WAVE byte stream.
package wav

import (
	"fmt"
	"math"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Options configures Export.
type Options struct {
	SampleRate int
	Channels   int // 1 or 2
	BitDepth   int // 16, 24, or 32
}

func (o Options) sampleRate() int {
	if o.SampleRate <= 0 {
		return 44100
	}
	return o.SampleRate
}

func (o Options) channels() int {
	if o.Channels != 1 && o.Channels != 2 {
		return 1
	}
	return o.Channels
}

func (o Options) bitDepth() int {
	switch o.BitDepth {
	case 16, 24, 32:
		return o.BitDepth
	default:
		return 16
	}
}

// Export encodes an interleaved float64 PCM buffer (values in [-1, 1]) to
// WAV bytes at the requested bit depth. Values that still exceed [-1, 1]
// after the apu package's own normalization pass are clamped rather than
// wrapped, so a runaway echo tail clips cleanly instead of aliasing.
func Export(pcm []float64, opts Options) ([]byte, error) {
	bitDepth := opts.bitDepth()
	nch := opts.channels()
	if len(pcm)%nch != 0 {
		return nil, fmt.Errorf("wav: pcm length %d is not a multiple of %d channels", len(pcm), nch)
	}

	ints := make([]int, len(pcm))
	for i, s := range pcm {
		ints[i] = int(floatToPCM(s, bitDepth))
	}

	buf := &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: nch,
			SampleRate:  opts.sampleRate(),
		},
		Data:           ints,
		SourceBitDepth: bitDepth,
	}

	var out memWriteSeeker
	enc := wav.NewEncoder(&out, opts.sampleRate(), bitDepth, nch, 1)
	if err := enc.Write(buf); err != nil {
		return nil, fmt.Errorf("wav: encode: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("wav: close: %w", err)
	}

	return out.buf, nil
}

// floatToPCM converts one sample in [-1, 1] to its signed integer PCM
// representation at bitDepth bits, per spec §4.5.1's asymmetric mapping:
// -1.0 lands on the true minimum (-(1<<(bitDepth-1))) and +1.0 lands one
// below the true maximum ((1<<(bitDepth-1))-1), matching how signed PCM
// actually divides the range rather than scaling both signs by the same
// positive-side magnitude. Out-of-range input is clamped first.
func floatToPCM(s float64, bitDepth int) int64 {
	if s > 1 {
		s = 1
	} else if s < -1 {
		s = -1
	}
	minVal := -(int64(1) << (bitDepth - 1))
	maxVal := (int64(1) << (bitDepth - 1)) - 1

	var v int64
	if s < 0 {
		v = int64(math.Round(s * float64(-minVal)))
	} else {
		v = int64(math.Round(s * float64(maxVal)))
	}
	if v < minVal {
		v = minVal
	} else if v > maxVal {
		v = maxVal
	}
	return v
}

// memWriteSeeker is an in-memory io.WriteSeeker. The WAV encoder writes a
// placeholder header, streams the PCM data, then seeks back to patch the
// RIFF and data chunk sizes once the final length is known, so plain
// append-only writes (as with bytes.Buffer) aren't enough.
type memWriteSeeker struct {
	buf []byte
	pos int
}

func (w *memWriteSeeker) Write(p []byte) (int, error) {
	end := w.pos + len(p)
	if end > len(w.buf) {
		w.buf = append(w.buf, make([]byte, end-len(w.buf))...)
	}
	copy(w.buf[w.pos:end], p)
	w.pos = end
	return len(p), nil
}

func (w *memWriteSeeker) Seek(offset int64, whence int) (int64, error) {
	var pos int64
	switch whence {
	case 0: // io.SeekStart
		pos = offset
	case 1: // io.SeekCurrent
		pos = int64(w.pos) + offset
	case 2: // io.SeekEnd
		pos = int64(len(w.buf)) + offset
	default:
		return 0, fmt.Errorf("wav: invalid seek whence %d", whence)
	}
	if pos < 0 {
		return 0, fmt.Errorf("wav: negative seek position %d", pos)
	}
	w.pos = int(pos)
	return pos, nil
}

package main

import (
	"math"
	"os"

	"github.com/spf13/cobra"

	"github.com/kpax-audio/gbscore/apu"
	"github.com/kpax-audio/gbscore/cmd/internal/config"
	"github.com/kpax-audio/gbscore/export/wav"
)

func newRenderCmd() *cobra.Command {
	var sampleRate, channels, bitDepth, bpmOverride int
	var normalize bool
	var echoPreset string
	var out string

	cmd := &cobra.Command{
		Use:   "render <source.gbs>",
		Short: "render a score to a WAV file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			song, err := compile(args[0])
			if err != nil {
				return err
			}

			pcm, err := apu.RenderPCM(song, apu.RenderOptions{
				SampleRate:  sampleRate,
				Channels:    channels,
				BPMOverride: bpmOverride,
				Normalize:   normalize,
			})
			if err != nil {
				return err
			}

			if echoPreset != "" && echoPreset != "none" {
				pcm, err = applyEchoPreset(pcm, echoPreset, sampleRate)
				if err != nil {
					return err
				}
			}

			data, err := wav.Export(pcm, wav.Options{
				SampleRate: sampleRate,
				Channels:   channels,
				BitDepth:   bitDepth,
			})
			if err != nil {
				return err
			}

			if out == "" {
				out = args[0] + ".wav"
			}
			return os.WriteFile(out, data, 0o644)
		},
	}

	cmd.Flags().IntVar(&sampleRate, "sample-rate", 44100, "output sample rate in Hz")
	cmd.Flags().IntVar(&channels, "channels", 1, "output channel count (1 or 2)")
	cmd.Flags().IntVar(&bitDepth, "bit-depth", 16, "output bit depth (16, 24, or 32)")
	cmd.Flags().IntVar(&bpmOverride, "bpm", 0, "override the score's bpm")
	cmd.Flags().BoolVar(&normalize, "normalize", false, "normalize peak to 0.95")
	cmd.Flags().StringVar(&echoPreset, "echo", "none", "echo preset: light, medium, heavy, or none")
	cmd.Flags().StringVar(&out, "out", "", "output path (default: <source>.wav)")
	return cmd
}

// applyEchoPreset runs pcm through the streaming comb.Reverber the teacher's
// --reverb flag drove, converting the offline float buffer to int16 chunks
// and pumping them through the same bounded ring buffer a realtime caller
// would use one audio-callback's worth at a time.
func applyEchoPreset(pcm []float64, preset string, sampleRate int) ([]float64, error) {
	reverb, err := config.EchoPresetFromName(preset, sampleRate)
	if err != nil {
		return nil, err
	}

	in := make([]int16, len(pcm))
	for i, s := range pcm {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		in[i] = int16(math.Round(s * 32767))
	}

	const chunk = 4096
	out := make([]int16, 0, len(in))
	scratch := make([]int16, chunk)

	pos := 0
	for pos < len(in) || len(out) < len(in) {
		end := pos + chunk
		if end > len(in) {
			end = len(in)
		}
		if pos < end {
			reverb.InputSamples(in[pos:end])
			pos = end
		}
		n := reverb.GetAudio(scratch)
		if n > 0 {
			out = append(out, scratch[:n]...)
		} else if pos >= len(in) {
			break
		}
	}

	result := make([]float64, len(pcm))
	for i := range result {
		if i < len(out) {
			result[i] = float64(out[i]) / 32767.0
		}
	}
	return result, nil
}

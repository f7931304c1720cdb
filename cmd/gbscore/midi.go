package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/kpax-audio/gbscore/export/midi"
)

func newMidiCmd() *cobra.Command {
	var bpmOverride int
	var out string

	cmd := &cobra.Command{
		Use:   "midi <source.gbs>",
		Short: "export a score to a Standard MIDI File",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			song, err := compile(args[0])
			if err != nil {
				return err
			}
			data, err := midi.Export(song, midi.Options{BPMOverride: bpmOverride})
			if err != nil {
				return err
			}
			if out == "" {
				out = args[0] + ".mid"
			}
			return os.WriteFile(out, data, 0o644)
		},
	}

	cmd.Flags().IntVar(&bpmOverride, "bpm", 0, "override the score's bpm")
	cmd.Flags().StringVar(&out, "out", "", "output path (default: <source>.mid)")
	return cmd
}

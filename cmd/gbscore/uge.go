package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/kpax-audio/gbscore/export/uge"
)

func newUgeCmd() *cobra.Command {
	var bpmOverride int
	var strictGB bool
	var out string

	cmd := &cobra.Command{
		Use:   "uge <source.gbs>",
		Short: "export a score to a hUGETracker .uge v6 file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			song, err := compile(args[0])
			if err != nil {
				return err
			}
			data, err := uge.Export(song, uge.Options{BPMOverride: bpmOverride, StrictGB: strictGB})
			if err != nil {
				return err
			}
			if out == "" {
				out = args[0] + ".uge"
			}
			return os.WriteFile(out, data, 0o644)
		},
	}

	cmd.Flags().IntVar(&bpmOverride, "bpm", 0, "override the score's bpm")
	cmd.Flags().BoolVar(&strictGB, "strict-gb", false, "reject constructs without a direct Game Boy hardware mapping")
	cmd.Flags().StringVar(&out, "out", "", "output path (default: <source>.uge)")
	return cmd
}

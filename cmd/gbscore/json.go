package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/kpax-audio/gbscore/export/jsonexport"
)

func newJSONCmd() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "json <source.gbs>",
		Short: "export the resolved song as canonical JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			song, err := compile(args[0])
			if err != nil {
				return err
			}
			data, err := jsonexport.Export(song)
			if err != nil {
				return err
			}
			if out == "" {
				out = args[0] + ".json"
			}
			return os.WriteFile(out, data, 0o644)
		},
	}

	cmd.Flags().StringVar(&out, "out", "", "output path (default: <source>.json)")
	return cmd
}

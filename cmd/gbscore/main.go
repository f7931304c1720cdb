// Command gbscore compiles a score source file and renders or exports it:
// check the source for errors, render to WAV, or export to MIDI/UGE/JSON.
package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	log.SetFlags(0)
	log.SetPrefix("gbscore: ")

	root := newRootCmd()
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "gbscore",
		Short:         "compile and render Game Boy tracker scores",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.AddCommand(newCheckCmd())
	cmd.AddCommand(newRenderCmd())
	cmd.AddCommand(newMidiCmd())
	cmd.AddCommand(newUgeCmd())
	cmd.AddCommand(newJSONCmd())
	return cmd
}

// Command corekv is a small introspection and benchmarking tool for a
// corekv database directory, in the spirit of the teacher's own
// cmd/pebble tool: one cobra root command with a subcommand per
// operation, rather than a REPL.
package main

import (
	"log"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "corekv [command] (flags)",
	Short: "corekv database introspection tool",
	Long:  ``,
}

func main() {
	log.SetFlags(0)

	cobra.EnableCommandSorting = false
	rootCmd.AddCommand(
		putCmd,
		getCmd,
		scanCmd,
		compactCmd,
		statsCmd,
	)

	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

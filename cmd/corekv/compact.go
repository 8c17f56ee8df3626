package main

import (
	"log"
	"strconv"

	"github.com/corekv/corekv"
	"github.com/spf13/cobra"
)

var compactCmd = &cobra.Command{
	Use:   "compact <dir> <level>",
	Short: "run one compaction out of the given level",
	Args:  cobra.ExactArgs(2),
	Run:   runCompact,
}

func runCompact(cmd *cobra.Command, args []string) {
	dir := args[0]
	level, err := strconv.Atoi(args[1])
	if err != nil {
		log.Fatalf("level: %v", err)
	}

	db, err := corekv.Open(dir, &corekv.Options{})
	if err != nil {
		log.Fatalf("open %s: %v", dir, err)
	}
	defer db.Close()

	if err := db.Compact(level); err != nil {
		log.Fatalf("compact: %v", err)
	}
}

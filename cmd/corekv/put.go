package main

import (
	"log"

	"github.com/corekv/corekv"
	"github.com/spf13/cobra"
)

var putCmd = &cobra.Command{
	Use:   "put <dir> <key> <value>",
	Short: "write a single key/value pair",
	Args:  cobra.ExactArgs(3),
	Run:   runPut,
}

func runPut(cmd *cobra.Command, args []string) {
	dir, key, value := args[0], args[1], args[2]

	db, err := corekv.Open(dir, &corekv.Options{})
	if err != nil {
		log.Fatalf("open %s: %v", dir, err)
	}
	defer db.Close()

	if err := db.Set([]byte(key), []byte(value)); err != nil {
		log.Fatalf("put: %v", err)
	}
}

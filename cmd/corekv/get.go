package main

import (
	"fmt"
	"log"

	"github.com/corekv/corekv"
	"github.com/spf13/cobra"
)

var getCmd = &cobra.Command{
	Use:   "get <dir> <key>",
	Short: "read the value for a single key",
	Args:  cobra.ExactArgs(2),
	Run:   runGet,
}

func runGet(cmd *cobra.Command, args []string) {
	dir, key := args[0], args[1]

	db, err := corekv.Open(dir, &corekv.Options{})
	if err != nil {
		log.Fatalf("open %s: %v", dir, err)
	}
	defer db.Close()

	v, err := db.Get([]byte(key))
	if err != nil {
		log.Fatalf("get: %v", err)
	}
	fmt.Println(string(v))
}

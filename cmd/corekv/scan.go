package main

import (
	"fmt"
	"log"

	"github.com/corekv/corekv"
	"github.com/corekv/corekv/internal/base"
	"github.com/spf13/cobra"
)

var scanCmd = &cobra.Command{
	Use:   "scan <dir>",
	Short: "print every key/value pair in key order",
	Args:  cobra.ExactArgs(1),
	Run:   runScan,
}

func runScan(cmd *cobra.Command, args []string) {
	dir := args[0]

	db, err := corekv.Open(dir, &corekv.Options{})
	if err != nil {
		log.Fatalf("open %s: %v", dir, err)
	}
	defer db.Close()

	it := db.NewIterator()
	defer it.Close()

	for it.SeekToFirst(); it.Valid(); it.Next() {
		ikey := base.DecodeInternalKey(it.Key())
		if ikey.Trailer.ValueType() == base.TypeDeletion {
			continue
		}
		fmt.Printf("%s: %s\n", ikey.UserKey, it.Value())
	}
	if err := it.Status().Unwrap(); err != nil {
		log.Fatalf("scan: %v", err)
	}
}

package main

import (
	"fmt"
	"log"

	"github.com/corekv/corekv"
	"github.com/corekv/corekv/metrics"
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats <dir>",
	Short: "report latency quantiles and counters for a database",
	Args:  cobra.ExactArgs(1),
	Run:   runStats,
}

func runStats(cmd *cobra.Command, args []string) {
	dir := args[0]

	db, err := corekv.Open(dir, &corekv.Options{})
	if err != nil {
		log.Fatalf("open %s: %v", dir, err)
	}
	defer db.Close()

	m := db.Metrics()

	fmt.Println("write latency:")
	printQuantiles(m.WriteLatency)
	fmt.Println("flush latency:")
	printQuantiles(m.FlushLatency)
	fmt.Println("compaction latency:")
	printQuantiles(m.CompactionLatency)
	fmt.Println("WAL sync latency:")
	printQuantiles(m.WALSyncLatency)
}

func printQuantiles(h *metrics.LatencyHistogram) {
	for _, q := range []float64{0.5, 0.95, 0.99} {
		fmt.Printf("  p%.0f: %s\n", q*100, h.Quantile(q))
	}
}

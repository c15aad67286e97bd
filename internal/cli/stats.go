package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mcdaddytn/patentgraph/internal/metrics"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show operation metrics for this process",
	Long: `Show latency and token counters collected during this process's
lifetime. Metrics are in-memory only, so this is mostly useful after
running a workflow with --watch or in a long-lived shell session.`,
	Run: func(cmd *cobra.Command, args []string) {
		snap := collector.Snapshot()
		fmt.Printf("Uptime: %.1fs\n\n", snap.UptimeSeconds)

		printOp("LLM scoring", snap.LLMScore)
		printOp("Citation lookups", snap.CitationLookup)
		printOp("Patent resolution", snap.PatentResolve)
		printOp("Database queries", snap.DBQuery)
	},
}

func printOp(label string, op *metrics.OperationSnapshot) {
	if op == nil {
		fmt.Printf("%s: no calls\n", label)
		return
	}
	fmt.Printf("%s:\n", label)
	fmt.Printf("  Calls:   %d\n", op.Count)
	fmt.Printf("  Latency: avg %.1fms, min %dms, max %dms\n", op.AvgTimeMs, op.MinTimeMs, op.MaxTimeMs)
	if op.TotalTokens != nil {
		fmt.Printf("  Tokens:  %d total", *op.TotalTokens)
		if op.AvgTokens != nil {
			fmt.Printf(", %.1f avg", *op.AvgTokens)
		}
		fmt.Println()
	}
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

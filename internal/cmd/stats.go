package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/plandeck/plandeck/internal/metrics"
	"github.com/plandeck/plandeck/internal/model"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate usage across all stored plans",
	Long: `Display plan counts by status and aggregated usage metrics
(duration, premium requests, lines changed) across every stored plan.`,
	RunE: runStats,
}

var statsJSON bool

func init() {
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "Output statistics as JSON")
	rootCmd.AddCommand(statsCmd)
}

// globalStats is the aggregate view printed by the stats command.
type globalStats struct {
	Plans     int                 `json:"plans"`
	ByStatus  map[string]int      `json:"by_status"`
	Nodes     int                 `json:"nodes"`
	Succeeded int                 `json:"nodes_succeeded"`
	Failed    int                 `json:"nodes_failed"`
	Usage     *model.UsageMetrics `json:"usage,omitempty"`
}

func runStats(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	plans, err := st.LoadAll()
	if err != nil {
		return err
	}

	stats := globalStats{ByStatus: make(map[string]int)}
	var usage []*model.UsageMetrics
	for _, plan := range plans {
		stats.Plans++
		stats.ByStatus[string(plan.Status())]++
		for _, state := range plan.NodeStates {
			stats.Nodes++
			switch state.Status {
			case model.NodeSucceeded:
				stats.Succeeded++
			case model.NodeFailed:
				stats.Failed++
			}
		}
		usage = append(usage, metrics.PlanMetrics(plan))
	}
	stats.Usage = metrics.Aggregate(usage)

	if statsJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	}

	fmt.Println()
	fmt.Println("PLANS")
	fmt.Println(strings.Repeat("─", 50))
	fmt.Printf("Total: %d\n", stats.Plans)
	for status, n := range stats.ByStatus {
		fmt.Printf("  %-10s %d\n", status, n)
	}
	fmt.Println()

	fmt.Println("NODES")
	fmt.Println(strings.Repeat("─", 50))
	fmt.Printf("Total: %d (%d succeeded, %d failed)\n", stats.Nodes, stats.Succeeded, stats.Failed)
	fmt.Println()

	if stats.Usage != nil {
		fmt.Println("USAGE")
		fmt.Println(strings.Repeat("─", 50))
		fmt.Printf("Duration: %s\n", metrics.FormatDuration(time.Duration(stats.Usage.DurationMS)*time.Millisecond))
		if stats.Usage.PremiumRequests != nil {
			fmt.Printf("Premium:  %s\n", metrics.FormatPremiumRequests(*stats.Usage.PremiumRequests))
		}
		if stats.Usage.LinesAdded != nil || stats.Usage.LinesRemoved != nil {
			var added, removed int64
			if stats.Usage.LinesAdded != nil {
				added = *stats.Usage.LinesAdded
			}
			if stats.Usage.LinesRemoved != nil {
				removed = *stats.Usage.LinesRemoved
			}
			fmt.Printf("Lines:    +%d / -%d\n", added, removed)
		}
		fmt.Println()
	}
	return nil
}

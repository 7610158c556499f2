package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/plandeck/plandeck/internal/errors"
	"github.com/plandeck/plandeck/internal/metrics"
)

var statusCmd = &cobra.Command{
	Use:   "status <plan-id>",
	Short: "Show a plan's status",
	Long:  `Display a plan's status, its per-node statuses and phases, and aggregate usage.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}

	entries, err := st.List()
	if err != nil {
		return err
	}
	planID, err := resolvePlanID(entries, args[0])
	if err != nil {
		return err
	}
	plan, err := st.Load(planID)
	if err != nil {
		return err
	}
	if plan == nil {
		return errors.NewNotFoundError("plan", planID)
	}

	fmt.Printf("Plan: %s\n", plan.Spec.Name)
	fmt.Printf("ID: %s\n", plan.ID)
	fmt.Printf("Status: %s\n", plan.Status())
	fmt.Printf("Base: %s", plan.Spec.BaseBranch)
	if plan.Spec.TargetBranch != "" {
		fmt.Printf(" -> %s", plan.Spec.TargetBranch)
	}
	fmt.Printf("\nCreated: %s\n\n", plan.CreatedAt.Format("2006-01-02 15:04:05"))

	for _, producerID := range sortedProducers(plan) {
		nodeID := plan.ProducerIDToNodeID[producerID]
		node := plan.Nodes[nodeID]
		state := plan.StateFor(nodeID)
		if node == nil || state == nil {
			continue
		}

		fmt.Printf("%s (%s)\n", producerID, state.Status)
		if state.Phase != "" {
			fmt.Printf("    Phase: %s\n", state.Phase)
		}
		if state.Attempts > 1 {
			fmt.Printf("    Attempts: %d\n", state.Attempts)
		}
		if m := metrics.NodeMetrics(state); m != nil && m.DurationMS > 0 {
			fmt.Printf("    Duration: %s\n", metrics.FormatDuration(durationMS(m.DurationMS)))
		}
		if state.Error != "" {
			fmt.Printf("    Error: %s\n", state.Error)
		}
	}

	if m := metrics.PlanMetrics(plan); m != nil && m.DurationMS > 0 {
		fmt.Printf("\nTotal duration: %s\n", metrics.FormatDuration(durationMS(m.DurationMS)))
	}
	return nil
}

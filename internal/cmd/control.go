package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/plandeck/plandeck/internal/engine"
)

// The control commands share one shape: restore stored plans into an
// engine, resolve the id argument, apply the operation. resume and
// retry keep executing in this process until the plan settles again.

var cancelCmd = &cobra.Command{
	Use:   "cancel <plan-id>",
	Short: "Cancel a plan",
	Long: `Cancel a plan. Pending nodes move to canceled and no new nodes are
admitted. Work already merged into the target branch is not undone.`,
	Args: cobra.ExactArgs(1),
	RunE: runCancel,
}

var pauseCmd = &cobra.Command{
	Use:   "pause <plan-id>",
	Short: "Pause a plan",
	Long:  `Stop admitting new nodes. Nodes already running finish their phases.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runPause,
}

var resumeCmd = &cobra.Command{
	Use:   "resume <plan-id>",
	Short: "Resume a paused plan",
	Long:  `Re-enable admission and execute the plan until it settles.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runResume,
}

var retryCmd = &cobra.Command{
	Use:   "retry <plan-id> <job-id>",
	Short: "Retry a failed job",
	Long: `Re-queue a failed, blocked, or canceled job and execute the plan until
it settles. The job resumes from its configured resume phase.`,
	Args: cobra.ExactArgs(2),
	RunE: runRetry,
}

var deleteCmd = &cobra.Command{
	Use:   "delete <plan-id>",
	Short: "Delete a plan",
	Long:  `Remove a plan: its worktrees, its node logs, and its stored state.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

func init() {
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(pauseCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(retryCmd)
	rootCmd.AddCommand(deleteCmd)
}

// withRestoredEngine builds the engine, restores stored plans, resolves
// the plan id argument, and hands both to fn.
func withRestoredEngine(arg string, fn func(eng *engine.Engine, planID string) error) error {
	eng, cleanup, err := buildEngine()
	if err != nil {
		return err
	}
	defer cleanup()

	if err := eng.Restore(); err != nil {
		return err
	}
	entries, err := eng.List()
	if err != nil {
		return err
	}
	planID, err := resolvePlanID(entries, arg)
	if err != nil {
		return err
	}
	return fn(eng, planID)
}

// waitAndReport blocks until the plan settles and prints its status.
func waitAndReport(ctx context.Context, eng *engine.Engine, planID string) error {
	if err := eng.Wait(ctx, planID); err != nil {
		return err
	}
	snap, err := eng.Snapshot(planID)
	if err != nil {
		return err
	}
	fmt.Printf("Plan %s finished %s\n", planID, snap.Status())
	return nil
}

func runCancel(cmd *cobra.Command, args []string) error {
	return withRestoredEngine(args[0], func(eng *engine.Engine, planID string) error {
		if err := eng.Cancel(planID); err != nil {
			return err
		}
		if err := eng.Wait(cmd.Context(), planID); err != nil {
			return err
		}
		fmt.Printf("Plan %s canceled\n", planID)
		return nil
	})
}

func runPause(cmd *cobra.Command, args []string) error {
	return withRestoredEngine(args[0], func(eng *engine.Engine, planID string) error {
		if err := eng.Pause(planID); err != nil {
			return err
		}
		fmt.Printf("Plan %s paused\n", planID)
		return nil
	})
}

func runResume(cmd *cobra.Command, args []string) error {
	return withRestoredEngine(args[0], func(eng *engine.Engine, planID string) error {
		if err := eng.Resume(planID); err != nil {
			return err
		}
		return waitAndReport(cmd.Context(), eng, planID)
	})
}

func runRetry(cmd *cobra.Command, args []string) error {
	return withRestoredEngine(args[0], func(eng *engine.Engine, planID string) error {
		if err := eng.Retry(planID, args[1]); err != nil {
			return err
		}
		return waitAndReport(cmd.Context(), eng, planID)
	})
}

func runDelete(cmd *cobra.Command, args []string) error {
	return withRestoredEngine(args[0], func(eng *engine.Engine, planID string) error {
		if err := eng.Delete(planID); err != nil {
			return err
		}
		fmt.Printf("Plan %s deleted\n", planID)
		return nil
	})
}

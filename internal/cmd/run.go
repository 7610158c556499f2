package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/plandeck/plandeck/internal/metrics"
	"github.com/plandeck/plandeck/internal/model"
)

var runCmd = &cobra.Command{
	Use:   "run [plan-file]",
	Short: "Execute a plan",
	Long: `Execute a plan from a YAML plan file, or a single ad-hoc job.

Examples:
  # Run a plan spec file
  plandeck run plan.yaml

  # Run a single shell job against the current branch
  plandeck run --job "make test" --base main

  # Run a single agent job
  plandeck run --agent "Add input validation to the API layer" --base main --target integration`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRun,
}

var (
	runJob         string
	runAgent       string
	runName        string
	runBase        string
	runTarget      string
	runMaxParallel int
	runCleanup     bool
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runJob, "job", "", "Run a single shell job with the given script")
	runCmd.Flags().StringVar(&runAgent, "agent", "", "Run a single agent job with the given instructions")
	runCmd.Flags().StringVar(&runName, "name", "", "Plan name (default: file name or the job itself)")
	runCmd.Flags().StringVar(&runBase, "base", "", "Base branch (overrides the plan file)")
	runCmd.Flags().StringVar(&runTarget, "target", "", "Target branch for reverse integration (overrides the plan file)")
	runCmd.Flags().IntVar(&runMaxParallel, "max-parallel", 0, "Max concurrently running nodes (0 for the configured default)")
	runCmd.Flags().BoolVar(&runCleanup, "cleanup", false, "Remove worktrees of succeeded nodes eagerly")
}

func runRun(cmd *cobra.Command, args []string) error {
	spec, err := planSpecFromArgs(args)
	if err != nil {
		return err
	}
	if runBase != "" {
		spec.BaseBranch = runBase
	}
	if runTarget != "" {
		spec.TargetBranch = runTarget
	}
	if runMaxParallel > 0 {
		spec.MaxParallel = runMaxParallel
	}
	if runCleanup {
		spec.CleanUpSuccessfulWork = true
	}

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get current directory: %w", err)
	}

	eng, cleanup, err := buildEngine()
	if err != nil {
		return err
	}
	defer cleanup()

	plan, err := eng.Enqueue(spec, cwd)
	if err != nil {
		return err
	}
	fmt.Printf("Plan %s enqueued (%d nodes)\n", plan.ID, len(plan.Nodes))

	if err := eng.Start(plan.ID); err != nil {
		return err
	}
	if err := eng.Wait(context.Background(), plan.ID); err != nil {
		return err
	}

	snap, err := eng.Snapshot(plan.ID)
	if err != nil {
		return err
	}
	printPlanResult(snap)

	if status := snap.Status(); status != model.PlanSucceeded {
		return fmt.Errorf("plan finished %s", status)
	}
	return nil
}

// planSpecFromArgs builds the plan spec from a plan file or the
// single-job flags.
func planSpecFromArgs(args []string) (*model.PlanSpec, error) {
	if len(args) == 1 {
		return loadPlanSpec(args[0])
	}

	script, instructions := runJob, runAgent
	if script == "" && instructions == "" {
		return nil, fmt.Errorf("provide a plan file, --job, or --agent")
	}
	if script != "" && instructions != "" {
		return nil, fmt.Errorf("--job and --agent are mutually exclusive")
	}

	job := model.JobSpec{ProducerID: "job"}
	name := runName
	if script != "" {
		job.Work = &model.WorkSpec{Kind: model.WorkShell, Script: script}
		if name == "" {
			name = script
		}
	} else {
		job.Work = &model.WorkSpec{Kind: model.WorkAgent, Instructions: instructions}
		if name == "" {
			name = instructions
		}
	}
	return &model.PlanSpec{Name: name, Jobs: []model.JobSpec{job}}, nil
}

// loadPlanSpec reads and decodes a YAML plan spec file.
func loadPlanSpec(path string) (*model.PlanSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan file: %w", err)
	}

	var spec model.PlanSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("failed to parse plan file %s: %w", path, err)
	}
	if spec.Name == "" {
		spec.Name = path
	}
	if runName != "" {
		spec.Name = runName
	}
	return &spec, nil
}

// printPlanResult prints the per-node outcome and aggregate usage.
func printPlanResult(plan *model.PlanInstance) {
	fmt.Printf("\nPlan %s: %s\n", plan.Spec.Name, plan.Status())

	for _, producerID := range sortedProducers(plan) {
		state := plan.StateFor(plan.ProducerIDToNodeID[producerID])
		if state == nil {
			continue
		}
		line := fmt.Sprintf("  %-20s %s", producerID, state.Status)
		if m := metrics.NodeMetrics(state); m != nil && m.DurationMS > 0 {
			line += "  " + metrics.FormatDuration(durationMS(m.DurationMS))
		}
		if state.Error != "" {
			line += "  (" + state.Error + ")"
		}
		fmt.Println(line)
	}

	if summary := plan.WorkSummary; summary != nil && summary.TotalCommits > 0 {
		fmt.Printf("\n%d commits: +%d files, ~%d files, -%d files\n",
			summary.TotalCommits, summary.TotalFilesAdded,
			summary.TotalFilesModified, summary.TotalFilesDeleted)
	}
}

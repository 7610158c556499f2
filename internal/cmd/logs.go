package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/plandeck/plandeck/internal/config"
	"github.com/plandeck/plandeck/internal/errors"
	"github.com/plandeck/plandeck/internal/logging"
)

var logsCmd = &cobra.Command{
	Use:   "logs <plan-id> <job-id>",
	Short: "View a job's log",
	Long: `Print the phase-tagged log of one job.

Examples:
  # Show the whole log
  plandeck logs 4f2a job-build

  # Show everything after byte offset 2048
  plandeck logs 4f2a job-build --offset 2048`,
	Args: cobra.ExactArgs(2),
	RunE: runLogs,
}

var logsOffset int64

func init() {
	rootCmd.AddCommand(logsCmd)

	logsCmd.Flags().Int64Var(&logsOffset, "offset", 0, "Byte offset to start reading from")
}

func runLogs(cmd *cobra.Command, args []string) error {
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

	nodeID, ok := plan.ProducerIDToNodeID[args[1]]
	if !ok {
		return errors.NewNotFoundError("node", args[1])
	}

	path := logging.NodeLogPath(config.Get().LogDir(), planID, nodeID)
	content, err := logging.ReadFrom(path, logsOffset)
	if err != nil {
		return err
	}
	if content == "" {
		fmt.Println("No log output")
		return nil
	}
	fmt.Print(content)
	return nil
}

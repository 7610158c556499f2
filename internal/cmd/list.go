package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored plans",
	Long:  `List every stored plan, newest first.`,
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}

	entries, err := st.List()
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("No stored plans")
		return nil
	}

	for _, entry := range entries {
		fmt.Printf("%s  %s  %s\n",
			entry.ID, entry.CreatedAt.Format("2006-01-02 15:04:05"), entry.Name)
	}
	return nil
}

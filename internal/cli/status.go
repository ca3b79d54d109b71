package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/docforge/docforge/internal/models"
)

// newStatusCmd creates the 'status' command.
func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <task-id>...",
		Short: "Show the current status of conversion tasks",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings()
			if err != nil {
				return err
			}
			client, err := newAPIClient(settings)
			if err != nil {
				return err
			}

			failures := 0
			for _, taskID := range args {
				task, err := client.GetTaskStatus(GetContext(), taskID)
				if err != nil {
					fmt.Printf("%s\terror: %v\n", taskID, err)
					failures++
					continue
				}
				printTaskStatus(task)
			}

			if failures > 0 {
				return fmt.Errorf("%d of %d status lookups failed", failures, len(args))
			}
			return nil
		},
	}

	return cmd
}

func printTaskStatus(task *models.Task) {
	fmt.Printf("%s\t%s", task.ID, task.Status)
	if task.Result != nil {
		if task.Result.SourceFilename != "" {
			fmt.Printf("\t%s", task.Result.SourceFilename)
		}
		switch task.Status {
		case models.StatusSuccess:
			if task.Result.OutputFileURL != "" {
				fmt.Printf("\t%s", task.Result.OutputFileURL)
			}
		case models.StatusFailed:
			if task.Result.ErrorMessage != "" {
				fmt.Printf("\t%s", task.Result.ErrorMessage)
			}
		}
	}
	fmt.Println()

	if task.Result != nil {
		for _, warning := range task.Result.Warnings {
			fmt.Printf("  warning: %s\n", warning)
		}
	}
}

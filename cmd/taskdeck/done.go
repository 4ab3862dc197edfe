package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/taskdeck/taskdeck/internal/task"
)

var doneCmd = &cobra.Command{
	Use:     "done <id>",
	GroupID: "tasks",
	Short:   "Mark a task done",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		mgr, cleanup, err := openManager(cfg)
		if err != nil {
			return err
		}
		defer cleanup()

		target, err := resolveTask(mgr, args[0])
		if err != nil {
			return err
		}

		status := task.StatusDone
		updated, err := mgr.UpdateTask(cmd.Context(), target.ID, task.Patch{Status: &status})
		if err != nil {
			return fmt.Errorf("failed to complete task: %w", err)
		}

		fmt.Printf("Done: %s\n", doneStyle.Render(updated.Title))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(doneCmd)
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var rmCmd = &cobra.Command{
	Use:     "rm <id>",
	Aliases: []string{"delete"},
	GroupID: "tasks",
	Short:   "Delete a task",
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

		if err := mgr.DeleteTask(cmd.Context(), target.ID); err != nil {
			return fmt.Errorf("failed to delete task: %w", err)
		}

		fmt.Printf("Deleted %s\n", titleStyle.Render(target.Title))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(rmCmd)
}

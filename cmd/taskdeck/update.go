package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/taskdeck/taskdeck/internal/cache"
	"github.com/taskdeck/taskdeck/internal/task"
)

var updateCmd = &cobra.Command{
	Use:     "update <id>",
	GroupID: "tasks",
	Short:   "Update a task",
	Long: `Update fields of a task. Only the given flags change; everything else is
left as it was. The change shows in the list immediately and is written to
the task database in the background of the same command.

Ids may be abbreviated to any unique prefix.`,
	Args: cobra.ExactArgs(1),
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

		patch, changed, err := patchFromFlags(cmd)
		if err != nil {
			return err
		}
		if !changed {
			return fmt.Errorf("nothing to change; pass at least one field flag")
		}

		updated, err := mgr.UpdateTask(cmd.Context(), target.ID, patch)
		if err != nil {
			return fmt.Errorf("failed to update task: %w", err)
		}

		fmt.Printf("Updated %s %s\n", idStyle.Render(shortID(updated.ID)), titleStyle.Render(updated.Title))
		return nil
	},
}

func patchFromFlags(cmd *cobra.Command) (task.Patch, bool, error) {
	var patch task.Patch
	changed := false

	if cmd.Flags().Changed("title") {
		v, _ := cmd.Flags().GetString("title")
		patch.Title = &v
		changed = true
	}
	if cmd.Flags().Changed("desc") {
		v, _ := cmd.Flags().GetString("desc")
		patch.Description = &v
		changed = true
	}
	if cmd.Flags().Changed("priority") {
		v, _ := cmd.Flags().GetString("priority")
		p := task.Priority(v)
		patch.Priority = &p
		changed = true
	}
	if cmd.Flags().Changed("status") {
		v, _ := cmd.Flags().GetString("status")
		s := task.Status(v)
		patch.Status = &s
		changed = true
	}
	if cmd.Flags().Changed("tags") {
		v, _ := cmd.Flags().GetStringSlice("tags")
		patch.Tags = v
		changed = true
	}

	clearDue, _ := cmd.Flags().GetBool("clear-due")
	if clearDue {
		var none *time.Time
		patch.DueDate = &none
		changed = true
	} else if cmd.Flags().Changed("due") {
		v, _ := cmd.Flags().GetString("due")
		dueAt, err := parseDue(v)
		if err != nil {
			return task.Patch{}, false, err
		}
		patch.DueDate = &dueAt
		changed = true
	}

	return patch, changed, nil
}

// resolveTask finds a cached task by full id or unique prefix.
func resolveTask(mgr *cache.Manager, id string) (task.Task, error) {
	var match *task.Task
	for _, t := range mgr.GetSnapshot() {
		if t.ID == id {
			return t, nil
		}
		if strings.HasPrefix(t.ID, id) {
			if match != nil {
				return task.Task{}, fmt.Errorf("id %q is ambiguous", id)
			}
			m := t
			match = &m
		}
	}
	if match == nil {
		return task.Task{}, fmt.Errorf("no task with id %q; try taskdeck list --sync", id)
	}
	return *match, nil
}

func init() {
	updateCmd.Flags().String("title", "", "New title")
	updateCmd.Flags().StringP("desc", "d", "", "New description")
	updateCmd.Flags().StringP("priority", "p", "", "New priority (low, medium, high)")
	updateCmd.Flags().String("status", "", "New status (todo, in_progress, done)")
	updateCmd.Flags().String("due", "", "New due date (natural language or YYYY-MM-DD)")
	updateCmd.Flags().Bool("clear-due", false, "Remove the due date")
	updateCmd.Flags().StringSlice("tags", nil, "Replace the tag list")

	rootCmd.AddCommand(updateCmd)
}

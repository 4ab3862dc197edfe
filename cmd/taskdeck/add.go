package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/taskdeck/taskdeck/internal/intent"
	"github.com/taskdeck/taskdeck/internal/task"
)

var addCmd = &cobra.Command{
	Use:     "add [title]",
	GroupID: "tasks",
	Short:   "Add a task",
	Long: `Add a task. The task appears in the list immediately and is written to
the task database in the background of the same command.

With no arguments an interactive form opens. With --nl the whole argument is
parsed as natural language:

  taskdeck add --nl "remind me to pay rent on friday"`,
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

		natural, _ := cmd.Flags().GetBool("nl")

		var draft task.Draft
		switch {
		case natural:
			if len(args) == 0 {
				return fmt.Errorf("--nl needs the phrase to parse")
			}
			result := intent.Extract(strings.Join(args, " "), "")
			if !result.Intent || result.NeedsClarification {
				return fmt.Errorf("could not find a task in %q", strings.Join(args, " "))
			}
			draft = result.Draft()

		case len(args) > 0:
			draft, err = draftFromFlags(cmd, strings.Join(args, " "))
			if err != nil {
				return err
			}

		default:
			draft, err = draftFromForm()
			if err != nil {
				return err
			}
		}

		created, err := mgr.AddTask(cmd.Context(), draft)
		if err != nil {
			return fmt.Errorf("failed to add task: %w", err)
		}

		fmt.Printf("Added %s %s\n", idStyle.Render(shortID(created.ID)), titleStyle.Render(created.Title))
		if created.DueDate != nil {
			fmt.Printf("Due %s\n", dueStyle.Render(created.DueDate.Local().Format("Mon Jan 2 15:04")))
		}
		return nil
	},
}

func draftFromFlags(cmd *cobra.Command, title string) (task.Draft, error) {
	description, _ := cmd.Flags().GetString("desc")
	priority, _ := cmd.Flags().GetString("priority")
	due, _ := cmd.Flags().GetString("due")
	tags, _ := cmd.Flags().GetStringSlice("tags")

	draft := task.Draft{
		Title:       title,
		Description: description,
		Priority:    task.Priority(priority),
		Tags:        tags,
	}

	if due != "" {
		dueAt, err := parseDue(due)
		if err != nil {
			return task.Draft{}, err
		}
		draft.DueDate = dueAt
	}
	return draft, nil
}

// parseDue accepts natural phrases ("tomorrow", "next friday") and RFC 3339
// dates.
func parseDue(s string) (*time.Time, error) {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)

	if r, err := w.Parse(s, time.Now()); err == nil && r != nil {
		return &r.Time, nil
	}
	if ts, err := time.Parse("2006-01-02", s); err == nil {
		return &ts, nil
	}
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return &ts, nil
	}
	return nil, fmt.Errorf("could not understand due date %q", s)
}

func draftFromForm() (task.Draft, error) {
	var (
		title       string
		description string
		priority    = string(task.PriorityMedium)
		due         string
	)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Title").
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("a task needs a title")
					}
					return nil
				}).
				Value(&title),
			huh.NewText().
				Title("Description").
				Lines(3).
				Value(&description),
			huh.NewSelect[string]().
				Title("Priority").
				Options(
					huh.NewOption("Low", string(task.PriorityLow)),
					huh.NewOption("Medium", string(task.PriorityMedium)),
					huh.NewOption("High", string(task.PriorityHigh)),
				).
				Value(&priority),
			huh.NewInput().
				Title("Due (optional, e.g. \"friday\" or \"2026-09-15\")").
				Value(&due),
		),
	)

	if err := form.Run(); err != nil {
		return task.Draft{}, fmt.Errorf("cancelled: %w", err)
	}

	draft := task.Draft{
		Title:       title,
		Description: description,
		Priority:    task.Priority(priority),
	}
	if strings.TrimSpace(due) != "" {
		dueAt, err := parseDue(due)
		if err != nil {
			return task.Draft{}, err
		}
		draft.DueDate = dueAt
	}
	return draft, nil
}

func init() {
	addCmd.Flags().StringP("desc", "d", "", "Task description")
	addCmd.Flags().StringP("priority", "p", "medium", "Priority (low, medium, high)")
	addCmd.Flags().String("due", "", "Due date (natural language or YYYY-MM-DD)")
	addCmd.Flags().StringSlice("tags", nil, "Tags (comma separated)")
	addCmd.Flags().Bool("nl", false, "Parse the whole argument as natural language")

	rootCmd.AddCommand(addCmd)
}

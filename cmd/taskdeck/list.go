package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/taskdeck/taskdeck/internal/task"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true)
	doneStyle     = lipgloss.NewStyle().Faint(true).Strikethrough(true)
	idStyle       = lipgloss.NewStyle().Faint(true)
	dueStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	tagStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	pendingStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("13"))
	highStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	mediumStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	lowStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	headerStyle   = lipgloss.NewStyle().Bold(true).Underline(true)
	staleNote     = lipgloss.NewStyle().Faint(true).Italic(true)
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	GroupID: "tasks",
	Short:   "Show the task list",
	Long: `Show the cached task list.

The cache is served as-is when fresh. A stale cache is shown immediately and
refreshed from the task database first when --sync is given or the snapshot
has passed its staleness threshold.`,
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

		forceSync, _ := cmd.Flags().GetBool("sync")
		showAll, _ := cmd.Flags().GetBool("all")
		statusFilter, _ := cmd.Flags().GetString("status")

		if forceSync || mgr.NeedsRefresh() {
			mgr.ForceSync(cmd.Context())
		}

		tasks := mgr.GetSnapshot()
		if err := mgr.LastError(); err != nil {
			fmt.Println(staleNote.Render(fmt.Sprintf("(offline, showing cached list: %v)", err)))
		}

		var shown int
		fmt.Println(headerStyle.Render(fmt.Sprintf("Tasks for %s", currentUser())))
		for _, t := range tasks {
			if !showAll && t.Status == task.StatusDone && statusFilter == "" {
				continue
			}
			if statusFilter != "" && string(t.Status) != statusFilter {
				continue
			}
			fmt.Println(renderTask(t))
			shown++
		}

		if shown == 0 {
			fmt.Println(staleNote.Render("Nothing to do."))
		}
		return nil
	},
}

func renderTask(t task.Task) string {
	var b strings.Builder

	switch t.Status {
	case task.StatusDone:
		b.WriteString("[x] ")
	case task.StatusInProgress:
		b.WriteString("[~] ")
	default:
		b.WriteString("[ ] ")
	}

	switch t.Priority {
	case task.PriorityHigh:
		b.WriteString(highStyle.Render("!") + " ")
	case task.PriorityLow:
		b.WriteString(lowStyle.Render("·") + " ")
	default:
		b.WriteString(mediumStyle.Render("-") + " ")
	}

	title := titleStyle.Render(t.Title)
	if t.Status == task.StatusDone {
		title = doneStyle.Render(t.Title)
	}
	b.WriteString(title)

	if t.DueDate != nil {
		b.WriteString(" " + dueStyle.Render("due "+t.DueDate.Local().Format("Mon Jan 2 15:04")))
	}
	for _, tag := range t.Tags {
		b.WriteString(" " + tagStyle.Render("#"+tag))
	}

	if task.IsTempID(t.ID) {
		b.WriteString(" " + pendingStyle.Render("(saving...)"))
	} else {
		b.WriteString(" " + idStyle.Render(shortID(t.ID)))
	}
	return b.String()
}

// shortID abbreviates a UUID for display; full ids still work everywhere.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func init() {
	listCmd.Flags().BoolP("sync", "s", false, "Refresh from the task database before listing")
	listCmd.Flags().BoolP("all", "a", false, "Include completed tasks")
	listCmd.Flags().String("status", "", "Only tasks with this status (todo, in_progress, done)")

	rootCmd.AddCommand(listCmd)
}

package main

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/taskdeck/taskdeck/internal/assistant"
)

var chatCmd = &cobra.Command{
	Use:     "chat",
	GroupID: "assistant",
	Short:   "Chat with the task assistant",
	Long: `Chat with the assistant. When a message implies a task ("remind me to
renew the lease next friday") the task is extracted and added to your list
in the same turn.

Requires ANTHROPIC_API_KEY for conversational replies. Without it the
assistant still extracts and creates tasks, it just doesn't chat back.`,
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

		logger := log.New(os.Stderr, "[assistant] ", log.LstdFlags)
		a := assistant.New(os.Getenv("ANTHROPIC_API_KEY"), cfg.AnthropicModel, mgr, logger)
		if !a.Enabled() {
			fmt.Println(staleNote.Render("ANTHROPIC_API_KEY not set; extraction-only mode."))
		}

		// One-shot: taskdeck chat "remind me to ...".
		if len(args) > 0 {
			return chatTurn(cmd, a, strings.Join(args, " "))
		}

		fmt.Println("Type a message, or \"quit\" to leave.")
		scanner := bufio.NewScanner(os.Stdin)
		for {
			fmt.Print("> ")
			if !scanner.Scan() {
				break
			}
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			if line == "quit" || line == "exit" {
				break
			}
			if err := chatTurn(cmd, a, line); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			}
		}
		return scanner.Err()
	},
}

func chatTurn(cmd *cobra.Command, a *assistant.Assistant, message string) error {
	reply, err := a.Chat(cmd.Context(), message)
	if err != nil {
		return err
	}

	if reply.Text != "" {
		fmt.Println(reply.Text)
	}
	if reply.Question != "" {
		fmt.Println(pendingStyle.Render(reply.Question))
	}
	if reply.Created != nil {
		fmt.Printf("Added %s %s\n", idStyle.Render(shortID(reply.Created.ID)), titleStyle.Render(reply.Created.Title))
		if reply.Created.DueDate != nil {
			fmt.Printf("Due %s\n", dueStyle.Render(reply.Created.DueDate.Local().Format("Mon Jan 2 15:04")))
		}
	}
	return nil
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

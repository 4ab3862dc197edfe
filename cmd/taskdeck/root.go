package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/taskdeck/taskdeck/internal/cache"
	"github.com/taskdeck/taskdeck/internal/config"
	"github.com/taskdeck/taskdeck/internal/localstore"
	"github.com/taskdeck/taskdeck/internal/remote"
)

var (
	configPath string
	userFlag   string
)

var rootCmd = &cobra.Command{
	Use:   "taskdeck",
	Short: "Local-first task manager with an instant-loading cache",
	Long: `taskdeck keeps your task list in a durable local cache so every command
starts from the last known snapshot instantly, then reconciles with the
shared task database in the background.

Mutations apply optimistically: the local list updates first, the database
write follows, and a failed write rolls the list back.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default ~/.taskdeck/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&userFlag, "user", "u", "", "User whose task list to operate on (default $USER)")

	rootCmd.AddGroup(
		&cobra.Group{ID: "tasks", Title: "Task commands:"},
		&cobra.Group{ID: "sync", Title: "Sync and cache commands:"},
		&cobra.Group{ID: "assistant", Title: "Assistant commands:"},
	)
}

func loadConfig() (*config.Config, error) {
	return config.Load(configPath)
}

func currentUser() string {
	if userFlag != "" {
		return userFlag
	}
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "default"
}

// openManager wires the durable local store and the shared database into a
// cache manager for the current user. The returned func releases both.
func openManager(cfg *config.Config) (*cache.Manager, func(), error) {
	userID := currentUser()
	logger := log.New(os.Stderr, "[cache] ", log.LstdFlags)

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.RemoteDSN), 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	local := localstore.OpenBadger(filepath.Join(cfg.DataDir, "cache"), logger)

	rs, err := remote.OpenSQLite(cfg.RemoteDSN)
	if err != nil {
		local.Close()
		return nil, nil, fmt.Errorf("failed to open task database: %w", err)
	}

	mgr := cache.NewManager(userID, local, remote.NewBreaker(rs), cache.Options{
		RefreshAfter: cfg.RefreshAfter,
		StaleAfter:   cfg.StaleAfter,
		Logger:       logger,
	})

	cleanup := func() {
		if err := rs.Close(); err != nil {
			logger.Printf("WARNING: failed to close task database: %v", err)
		}
		if err := local.Close(); err != nil {
			logger.Printf("WARNING: failed to close local cache: %v", err)
		}
	}
	return mgr, cleanup, nil
}

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/taskdeck/taskdeck/internal/cache"
)

var cacheCmd = &cobra.Command{
	Use:     "cache",
	GroupID: "sync",
	Short:   "Inspect and manage the local cache",
}

var cacheStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show cache age and health",
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

		fmt.Printf("User:  %s\n", currentUser())
		fmt.Printf("Tasks: %d\n", len(mgr.GetSnapshot()))

		if age := mgr.Age(); age == cache.AgeInfinite {
			fmt.Println("Age:   never synced")
		} else {
			fmt.Printf("Age:   %s", age.Round(time.Second))
			switch {
			case mgr.IsStale():
				fmt.Println(" (stale)")
			case mgr.NeedsRefresh():
				fmt.Println(" (refresh due)")
			default:
				fmt.Println(" (fresh)")
			}
		}

		if err := mgr.LastError(); err != nil {
			fmt.Printf("Last sync error: %v\n", err)
		}
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Wipe the cached task list",
	Long: `Wipe the cached task list and its durable copy. The task database is not
touched; the next list rebuilds the cache from it.`,
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

		mgr.Clear()
		fmt.Printf("Cache cleared for %s\n", currentUser())
		return nil
	},
}

var cachePurgeCmd = &cobra.Command{
	Use:   "purge-temp",
	Short: "Drop unconfirmed tasks from the cache",
	Long: `Drop tasks that were created optimistically but never confirmed by the
task database (for example after a crash mid-write).`,
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

		n := mgr.PurgeTempTasks()
		fmt.Printf("Purged %d unconfirmed task(s)\n", n)
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cacheStatusCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cachePurgeCmd)

	rootCmd.AddCommand(cacheCmd)
}

package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/taskdeck/taskdeck/internal/daemon"
)

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: "sync",
	Short:   "Run the background sync daemon",
	Long: `Run the taskdeck daemon in the foreground.

The daemon keeps the cache synchronized on a timer, subscribes to the change
feed when feed_url is configured, and imports *.json task drafts dropped
into the inbox directory.

Logs rotate under <data_dir>/logs/daemon.log.`,
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

		rotator := &lumberjack.Logger{
			Filename:   filepath.Join(cfg.DataDir, "logs", "daemon.log"),
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		}
		defer rotator.Close()
		logger := log.New(io.MultiWriter(os.Stderr, rotator), "[daemon] ", log.LstdFlags)

		d, err := daemon.New(mgr, &daemon.Config{
			InboxDir:     cfg.InboxDir,
			SyncInterval: cfg.SyncEvery,
			FeedEndpoint: cfg.FeedURL,
			Logger:       logger,
		})
		if err != nil {
			return fmt.Errorf("failed to create daemon: %w", err)
		}

		fmt.Printf("Daemon running for %s (inbox: %s)\n", currentUser(), cfg.InboxDir)
		fmt.Println("Press Ctrl+C to stop...")

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		return d.Start(ctx)
	},
}

func init() {
	rootCmd.AddCommand(daemonCmd)
}

package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/taskdeck/taskdeck/internal/feed"
)

var serveFeedCmd = &cobra.Command{
	Use:     "serve-feed",
	GroupID: "sync",
	Short:   "Run the change feed server",
	Long: `Run the WebSocket change feed server.

Daemons and app sessions subscribe at ws://<listen_addr>/feed?user=<id> and
refetch their user's task list whenever an event for that user arrives.

Example usage:
  taskdeck serve-feed                # listen on the configured address
  taskdeck serve-feed --port 9000    # override the port`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		port, _ := cmd.Flags().GetInt("port")
		if port == 0 {
			if port, err = portOf(cfg.ListenAddr); err != nil {
				return err
			}
		}

		server := feed.NewServer(&feed.ServerConfig{
			Port:   port,
			Logger: log.New(os.Stderr, "[feed] ", log.LstdFlags),
		})
		if err := server.Start(); err != nil {
			return fmt.Errorf("failed to start feed server: %w", err)
		}

		fmt.Printf("Feed server started on %s\n", server.Addr())
		fmt.Printf("WebSocket endpoint: ws://%s/feed?user=<id>\n", server.Addr())
		fmt.Printf("Health check: http://%s/health\n", server.Addr())
		fmt.Println("\nPress Ctrl+C to stop...")

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		<-ctx.Done()

		fmt.Println("\nShutting down feed server...")
		if err := server.Stop(); err != nil {
			return fmt.Errorf("error during shutdown: %w", err)
		}
		fmt.Println("Feed server stopped")
		return nil
	},
}

func portOf(addr string) (int, error) {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, fmt.Errorf("invalid listen_addr %q: %w", addr, err)
	}
	return strconv.Atoi(portStr)
}

func init() {
	serveFeedCmd.Flags().IntP("port", "p", 0, "Port to listen on (default from listen_addr)")

	rootCmd.AddCommand(serveFeedCmd)
}

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pulsechat/pulse/api/config"
)

var (
	version = "dev"
	cfg     *config.Config
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "pulse",
		Short: "Pulse realtime messaging server",
		Long: `Pulse is the realtime core of a multi-user chat platform: WebSocket
sessions, message lifecycle, receipts, presence, typing, and reactions,
fanned out across instances over Redis.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg = config.Load()
			return nil
		},
	}

	rootCmd.AddCommand(
		serveCmd(),
		migrateCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("pulse %s\n", version)
		},
	}
}
